package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"louyass/core"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixtures() (*core.Appointment, *core.User, *core.User) {
	tenant := &core.User{ID: 2, Email: "awa@example.sn", Nom: "Diop", Prenom: "Awa", Role: core.RoleTenant}
	owner := &core.User{ID: 1, Email: "moussa@example.sn", Nom: "Fall", Prenom: "Moussa", Role: core.RoleOwner}
	a := &core.Appointment{
		ID:          7,
		LocataireID: tenant.ID,
		ChambreID:   3,
		DateHeure:   time.Date(2026, 11, 2, 15, 30, 0, 0, time.UTC),
		Statut:      core.AppointmentPending,
		Chambre: &core.Room{
			ID:     3,
			Titre:  "Chambre vue mer",
			Maison: &core.House{ID: 4, ProprietaireID: owner.ID, Adresse: "Rue 10, Ouakam"},
		},
	}
	return a, tenant, owner
}

func TestAppointmentTenantMail_Subjects(t *testing.T) {
	a, tenant, _ := fixtures()

	tests := []struct {
		statut  core.AppointmentStatus
		subject string
	}{
		{core.AppointmentPending, "Demande de rendez-vous pour: Chambre vue mer"},
		{core.AppointmentConfirmed, "Rendez-vous confirmé: Chambre vue mer - 02/11/2026 à 15:30"},
		{core.AppointmentCancelled, "Rendez-vous annulé: Chambre vue mer"},
		{"inconnu", "Mise à jour de votre rendez-vous pour: Chambre vue mer"},
	}
	for _, tt := range tests {
		t.Run(string(tt.statut), func(t *testing.T) {
			m, err := AppointmentTenantMail(tt.statut, a, tenant)
			require.NoError(t, err)
			assert.Equal(t, tenant.Email, m.To)
			assert.Equal(t, tt.subject, m.Subject)
			assert.Contains(t, m.HTML, "Bonjour Awa Diop")
			assert.Contains(t, m.HTML, "L'équipe Immobilière")
			assert.NotEmpty(t, m.Text)
		})
	}
}

func TestAppointmentOwnerMail(t *testing.T) {
	a, tenant, owner := fixtures()

	m, err := AppointmentOwnerMail(OwnerCreation, a, tenant, owner)
	require.NoError(t, err)
	assert.Equal(t, owner.Email, m.To)
	assert.Equal(t, "Nouvelle demande de rendez-vous: Chambre vue mer", m.Subject)
	assert.Contains(t, m.HTML, "Rue 10, Ouakam")
	assert.Contains(t, m.HTML, "Non renseigné")
	assert.Contains(t, m.HTML, "02/11/2026 à 15:30")

	tenant.Telephone = "+221770000000"
	m, err = AppointmentOwnerMail(OwnerCreation, a, tenant, owner)
	require.NoError(t, err)
	assert.Contains(t, m.Text, "(+221770000000)")
	assert.Contains(t, m.HTML, "&#43;221770000000")

	m, err = AppointmentOwnerMail(OwnerModificationDate, a, tenant, owner)
	require.NoError(t, err)
	assert.Equal(t, "Modification de rendez-vous: Chambre vue mer", m.Subject)

	_, err = AppointmentOwnerMail("bogus", a, tenant, owner)
	assert.Error(t, err)
}

func TestTemplates_EscapeUserInput(t *testing.T) {
	a, tenant, _ := fixtures()
	tenant.Prenom = "<script>"
	m, err := AppointmentTenantMail(core.AppointmentPending, a, tenant)
	require.NoError(t, err)
	assert.NotContains(t, m.HTML, "<script>")
	assert.Contains(t, m.HTML, "&lt;script&gt;")
}

func TestPaymentReceivedMail(t *testing.T) {
	_, tenant, owner := fixtures()
	p := &core.Payment{ID: 1, ContratID: 12, Montant: 75000, Statut: core.PaymentPaid}
	m, err := PaymentReceivedMail(p, tenant, owner)
	require.NoError(t, err)
	assert.Equal(t, "Nouveau paiement reçu", m.Subject)
	assert.Equal(t, "Paiement de 75000 CFA reçu pour le contrat 12", m.Text)
}

func TestMails_PerEvent(t *testing.T) {
	a, tenant, owner := fixtures()

	tests := []struct {
		name     string
		event    Event
		subjects []string
	}{
		{
			name:     "created",
			event:    Event{Type: EventAppointmentCreated, Actor: core.RoleTenant, Appointment: a, Tenant: tenant, Owner: owner},
			subjects: []string{"Demande de rendez-vous pour: Chambre vue mer", "Nouvelle demande de rendez-vous: Chambre vue mer"},
		},
		{
			name:     "tenant reschedules",
			event:    Event{Type: EventAppointmentUpdated, Actor: core.RoleTenant, Appointment: a, Tenant: tenant, Owner: owner},
			subjects: []string{"Modification de rendez-vous: Chambre vue mer"},
		},
		{
			name: "owner confirms",
			event: Event{Type: EventAppointmentUpdated, Actor: core.RoleOwner, Tenant: tenant, Owner: owner,
				Appointment: &core.Appointment{Statut: core.AppointmentConfirmed, DateHeure: a.DateHeure, Chambre: a.Chambre}},
			subjects: []string{"Rendez-vous confirmé: Chambre vue mer - 02/11/2026 à 15:30"},
		},
		{
			name: "owner cancels",
			event: Event{Type: EventAppointmentUpdated, Actor: core.RoleOwner, Tenant: tenant, Owner: owner,
				Appointment: &core.Appointment{Statut: core.AppointmentCancelled, DateHeure: a.DateHeure, Chambre: a.Chambre}},
			subjects: []string{"Rendez-vous annulé: Chambre vue mer", "Rendez-vous annulé: Chambre vue mer"},
		},
		{
			name:     "tenant deletes",
			event:    Event{Type: EventAppointmentDeleted, Actor: core.RoleTenant, Appointment: a, Tenant: tenant, Owner: owner},
			subjects: []string{"Annulation de rendez-vous: Chambre vue mer"},
		},
		{
			name:  "message has no mail",
			event: Event{Type: EventMessageCreated, Message: &core.Message{DestinataireID: 1}},
		},
		{
			name:  "pending payment has no mail",
			event: Event{Type: EventPaymentCreated, Payment: &core.Payment{Statut: core.PaymentPending}, Owner: owner},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mails, err := Mails(tt.event)
			require.NoError(t, err)
			var subjects []string
			for _, m := range mails {
				subjects = append(subjects, m.Subject)
			}
			assert.Equal(t, tt.subjects, subjects)
		})
	}
}

func TestMailNotifier_Publish(t *testing.T) {
	a, tenant, owner := fixtures()
	q := &MockQueue{}
	n := NewMailNotifier(q, zap.NewNop().Sugar())

	n.Publish(context.Background(), Event{Type: EventAppointmentDeleted, Actor: core.RoleOwner, Appointment: a, Tenant: tenant, Owner: owner})

	mails := q.Mails()
	require.Len(t, mails, 2)
	assert.Equal(t, tenant.Email, mails[0].To)
	assert.Equal(t, owner.Email, mails[1].To)
}

func TestEvent_Recipients(t *testing.T) {
	a, tenant, owner := fixtures()
	assert.Equal(t, []int64{tenant.ID, owner.ID}, Event{Appointment: a, Tenant: tenant, Owner: owner}.Recipients())
	assert.Equal(t, []int64{9}, Event{Message: &core.Message{ExpediteurID: 1, DestinataireID: 9}}.Recipients())
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	mailer := &MockMailer{}
	d := NewDispatcher(mailer, 2, 10, zap.NewNop().Sugar())
	d.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Enqueue(Email{To: "x@example.sn", Subject: "s"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	assert.Len(t, mailer.Sent(), 5)
	assert.ErrorIs(t, d.Enqueue(Email{To: "x@example.sn"}), ErrDispatcherStopped)
	assert.NoError(t, d.Stop(ctx), "second stop is a no-op")

	d.Start()
	assert.ErrorIs(t, d.Enqueue(Email{To: "x@example.sn"}), ErrDispatcherStopped, "restart after stop is refused")
	assert.NoError(t, d.Stop(ctx))
}

type blockingMailer struct{ release chan struct{} }

func (b *blockingMailer) Send(ctx context.Context, _ Email) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcher_QueueFull(t *testing.T) {
	mailer := &blockingMailer{release: make(chan struct{})}
	d := NewDispatcher(mailer, 1, 1, zap.NewNop().Sugar())
	d.Start()

	var full bool
	for i := 0; i < 5; i++ {
		if errors.Is(d.Enqueue(Email{To: "x@example.sn"}), ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)

	close(mailer.release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestSMTPMailer_SendsMultipart(t *testing.T) {
	server, err := NewMockSMTPServer(true)
	require.NoError(t, err)
	defer server.Close()
	server.SetAuthCredentials("louyass", "secret")

	m := NewSMTPMailer(SMTPConfig{
		Host:     server.Host(),
		Port:     server.Port(),
		Username: "louyass",
		Password: "secret",
		From:     "noreply@louyass.sn",
		Timeout:  5 * time.Second,
	}, zap.NewNop().Sugar())

	a, tenant, _ := fixtures()
	email, err := AppointmentTenantMail(core.AppointmentConfirmed, a, tenant)
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), email))

	msgs := server.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "noreply@louyass.sn", msgs[0].From)
	assert.Equal(t, []string{tenant.Email}, msgs[0].To)
	assert.Equal(t, email.Subject, msgs[0].Subject)
	assert.Contains(t, msgs[0].Raw, "multipart/alternative")
	assert.Contains(t, msgs[0].Raw, "text/plain")
	assert.Contains(t, msgs[0].Raw, "text/html")
}

func TestSMTPMailer_WrongCredentials(t *testing.T) {
	server, err := NewMockSMTPServer(true)
	require.NoError(t, err)
	defer server.Close()
	server.SetAuthCredentials("louyass", "secret")

	m := NewSMTPMailer(SMTPConfig{Host: server.Host(), Port: server.Port(), Username: "louyass", Password: "wrong",
		From: "noreply@louyass.sn", Timeout: 5 * time.Second}, zap.NewNop().Sugar())
	err = m.Send(context.Background(), Email{To: "a@example.sn", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "authenticate"))
}

func TestSMTPMailer_RequireTLSWithoutStartTLS(t *testing.T) {
	server, err := NewMockSMTPServer(false)
	require.NoError(t, err)
	defer server.Close()

	m := NewSMTPMailer(SMTPConfig{Host: server.Host(), Port: server.Port(), From: "noreply@louyass.sn",
		RequireTLS: true, Timeout: 5 * time.Second}, zap.NewNop().Sugar())
	assert.Error(t, m.Send(context.Background(), Email{To: "a@example.sn", Subject: "s", Text: "t"}))
	assert.Empty(t, server.GetMessages())
}

func TestSMTPMailer_BreakerOpensAfterFailures(t *testing.T) {
	server, err := NewMockSMTPServer(false)
	require.NoError(t, err)
	defer server.Close()
	server.SetShouldFail(true)

	m := NewSMTPMailer(SMTPConfig{Host: server.Host(), Port: server.Port(), From: "noreply@louyass.sn",
		Timeout: 5 * time.Second}, zap.NewNop().Sugar())
	for i := 0; i < 3; i++ {
		assert.Error(t, m.Send(context.Background(), Email{To: "a@example.sn", Subject: "s", Text: "t"}))
	}
	assert.Equal(t, gobreaker.StateOpen, m.State())

	err = m.Send(context.Background(), Email{To: "a@example.sn", Subject: "s", Text: "t"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestSMTPConfig_Configured(t *testing.T) {
	assert.False(t, SMTPConfig{}.Configured())
	assert.True(t, SMTPConfig{Host: "smtp.example.sn", Port: 587, From: "a@example.sn"}.Configured())
}
