package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"louyass/core"
	"louyass/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusPtr(s core.AppointmentStatus) *core.AppointmentStatus { return &s }

func TestAppointmentCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	future := testNow.Add(24 * time.Hour)

	t.Run("tenant books a viewing", func(t *testing.T) {
		a, err := env.appointmentSvc.Create(ctx, tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: future})
		require.NoError(t, err)
		assert.Equal(t, core.AppointmentPending, a.Statut)
		assert.Equal(t, tenant.ID, a.Locataire.ID)

		e := env.publisher.Last(t)
		assert.Equal(t, notify.EventAppointmentCreated, e.Type)
		require.NotNil(t, e.Owner)
		assert.Equal(t, owner.ID, e.Owner.ID)
		assert.Equal(t, tenant.ID, e.Tenant.ID)
	})

	tests := []struct {
		name   string
		caller *core.User
		req    AppointmentCreate
		status int
		detail string
	}{
		{"owner cannot book", owner, AppointmentCreate{LocataireID: owner.ID, ChambreID: room.ID, DateHeure: future},
			http.StatusForbidden, "Seuls les locataires peuvent créer des rendez-vous"},
		{"booking for someone else", tenant, AppointmentCreate{LocataireID: tenant.ID + 100, ChambreID: room.ID, DateHeure: future},
			http.StatusForbidden, "Vous ne pouvez créer que vos propres rendez-vous"},
		{"unknown room", tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: 9999, DateHeure: future},
			http.StatusNotFound, "Chambre non trouvée"},
		{"non pending status", tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: future, Statut: statusPtr(core.AppointmentConfirmed)},
			http.StatusBadRequest, "Un nouveau rendez-vous doit avoir le statut 'en_attente'"},
		{"date in the past", tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(-time.Hour)},
			http.StatusBadRequest, "La date du rendez-vous doit être dans le futur"},
		{"date equal to now", tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow},
			http.StatusBadRequest, "La date du rendez-vous doit être dans le futur"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.appointmentSvc.Create(ctx, tt.caller, tt.req)
			svcErr := requireStatus(t, err, tt.status)
			assert.Equal(t, tt.detail, svcErr.Detail)
		})
	}
}

func TestAppointmentCreate_OwnRoomWithTenantRole(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, core.RoleOwner)
	room := env.createRoom(t, owner)

	// an account that owns a house but acts with the tenant role
	owner.Role = core.RoleTenant
	_, err := env.appointmentSvc.Create(context.Background(), owner, AppointmentCreate{
		LocataireID: owner.ID, ChambreID: room.ID, DateHeure: testNow.Add(time.Hour),
	})
	svcErr := requireStatus(t, err, http.StatusForbidden)
	assert.Equal(t, "Vous ne pouvez pas créer de rendez-vous pour votre propre chambre", svcErr.Detail)
}

func TestAppointmentOwnerDecisions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	other := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)

	book := func(t *testing.T) *core.Appointment {
		a, err := env.appointmentSvc.Create(ctx, tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(72 * time.Hour)})
		require.NoError(t, err)
		return a
	}

	t.Run("confirm from en_attente", func(t *testing.T) {
		a := book(t)
		got, err := env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
		require.NoError(t, err)
		assert.Equal(t, core.AppointmentConfirmed, got.Statut)

		e := env.publisher.Last(t)
		assert.Equal(t, notify.EventAppointmentUpdated, e.Type)
		assert.Equal(t, core.RoleOwner, e.Actor)

		_, err = env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
		svcErr := requireStatus(t, err, http.StatusBadRequest)
		assert.Equal(t, "Seuls les rendez-vous en attente peuvent être confirmés", svcErr.Detail)
	})

	t.Run("cancel from confirmé then cancel again", func(t *testing.T) {
		a := book(t)
		_, err := env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
		require.NoError(t, err)
		got, err := env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentCancelled)})
		require.NoError(t, err)
		assert.Equal(t, core.AppointmentCancelled, got.Statut)

		_, err = env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentCancelled)})
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("owner cannot move the date", func(t *testing.T) {
		a := book(t)
		d := testNow.Add(96 * time.Hour)
		_, err := env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{DateHeure: &d})
		svcErr := requireStatus(t, err, http.StatusForbidden)
		assert.Equal(t, "Seul le locataire peut modifier la date", svcErr.Detail)
	})

	t.Run("owner sends en_attente", func(t *testing.T) {
		a := book(t)
		_, err := env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentPending)})
		requireStatus(t, err, http.StatusBadRequest)
		_, err = env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{})
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("another owner", func(t *testing.T) {
		a := book(t)
		_, err := env.appointmentSvc.Update(ctx, other, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
		svcErr := requireStatus(t, err, http.StatusForbidden)
		assert.Equal(t, "Vous n'êtes pas le propriétaire de cette chambre", svcErr.Detail)
	})

	t.Run("missing appointment", func(t *testing.T) {
		_, err := env.appointmentSvc.Update(ctx, owner, 424242, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
		svcErr := requireStatus(t, err, http.StatusNotFound)
		assert.Equal(t, "Rendez-vous non trouvé", svcErr.Detail)
	})
}

func TestAppointmentTenantReschedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	stranger := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)

	a, err := env.appointmentSvc.Create(ctx, tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(24 * time.Hour)})
	require.NoError(t, err)
	_, err = env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
	require.NoError(t, err)

	t.Run("new date resets to en_attente", func(t *testing.T) {
		d := testNow.Add(5 * 24 * time.Hour)
		got, err := env.appointmentSvc.Update(ctx, tenant, a.ID, AppointmentUpdate{DateHeure: &d})
		require.NoError(t, err)
		assert.Equal(t, core.AppointmentPending, got.Statut)
		assert.True(t, got.DateHeure.Equal(d))

		e := env.publisher.Last(t)
		assert.Equal(t, core.RoleTenant, e.Actor)
		mails, err := notify.Mails(e)
		require.NoError(t, err)
		require.Len(t, mails, 1)
		assert.Equal(t, e.Owner.Email, mails[0].To)
	})

	t.Run("tenant may not change the status", func(t *testing.T) {
		d := testNow.Add(6 * 24 * time.Hour)
		_, err := env.appointmentSvc.Update(ctx, tenant, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed), DateHeure: &d})
		svcErr := requireStatus(t, err, http.StatusForbidden)
		assert.Equal(t, "Vous ne pouvez que modifier la date du rendez-vous", svcErr.Detail)
	})

	t.Run("date required", func(t *testing.T) {
		_, err := env.appointmentSvc.Update(ctx, tenant, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentPending)})
		svcErr := requireStatus(t, err, http.StatusBadRequest)
		assert.Equal(t, "Nouvelle date requise", svcErr.Detail)
	})

	t.Run("date in the past", func(t *testing.T) {
		d := testNow.Add(-time.Minute)
		_, err := env.appointmentSvc.Update(ctx, tenant, a.ID, AppointmentUpdate{DateHeure: &d})
		svcErr := requireStatus(t, err, http.StatusBadRequest)
		assert.Equal(t, "La nouvelle date doit être dans le futur", svcErr.Detail)
	})

	t.Run("other tenant", func(t *testing.T) {
		d := testNow.Add(48 * time.Hour)
		_, err := env.appointmentSvc.Update(ctx, stranger, a.ID, AppointmentUpdate{DateHeure: &d})
		svcErr := requireStatus(t, err, http.StatusForbidden)
		assert.Equal(t, "Vous n'êtes pas le locataire de ce rendez-vous", svcErr.Detail)
	})

	t.Run("cancelled appointment cannot be reopened", func(t *testing.T) {
		_, err := env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentCancelled)})
		require.NoError(t, err)

		d := testNow.Add(7 * 24 * time.Hour)
		_, err = env.appointmentSvc.Update(ctx, tenant, a.ID, AppointmentUpdate{DateHeure: &d})
		svcErr := requireStatus(t, err, http.StatusBadRequest)
		assert.Equal(t, "Un rendez-vous annulé ne peut pas être modifié", svcErr.Detail)

		got, err := env.appointmentSvc.Get(ctx, tenant, a.ID)
		require.NoError(t, err)
		assert.Equal(t, core.AppointmentCancelled, got.Statut)

		ok, err := env.appointments.HasConfirmedAppointment(ctx, tenant.ID, room.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestAppointmentListAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	stranger := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)

	var ids []int64
	for i := 1; i <= 3; i++ {
		a, err := env.appointmentSvc.Create(ctx, tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	_, err := env.appointmentSvc.Update(ctx, owner, ids[0], AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
	require.NoError(t, err)

	mine, err := env.appointmentSvc.List(ctx, tenant, "", 0, 100)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	theirs, err := env.appointmentSvc.List(ctx, owner, string(core.AppointmentConfirmed), 0, 100)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, ids[0], theirs[0].ID)

	none, err := env.appointmentSvc.List(ctx, stranger, "", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = env.appointmentSvc.List(ctx, tenant, "bogus", 0, 100)
	assert.Equal(t, "Statut de filtre invalide", requireStatus(t, err, http.StatusBadRequest).Detail)
	_, err = env.appointmentSvc.List(ctx, tenant, "", -1, 100)
	requireStatus(t, err, http.StatusBadRequest)
	_, err = env.appointmentSvc.List(ctx, tenant, "", 0, 201)
	requireStatus(t, err, http.StatusBadRequest)
	_, err = env.appointmentSvc.List(ctx, &core.User{ID: 77, Role: "admin"}, "", 0, 10)
	assert.Equal(t, "Rôle utilisateur non reconnu", requireStatus(t, err, http.StatusForbidden).Detail)

	got, err := env.appointmentSvc.Get(ctx, owner, ids[1])
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ChambreID)
	_, err = env.appointmentSvc.Get(ctx, stranger, ids[1])
	requireStatus(t, err, http.StatusForbidden)
}

func TestAppointmentDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	stranger := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)

	book := func() *core.Appointment {
		a, err := env.appointmentSvc.Create(ctx, tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(time.Hour)})
		require.NoError(t, err)
		return a
	}

	a := book()
	requireStatus(t, env.appointmentSvc.Delete(ctx, stranger, a.ID), http.StatusForbidden)

	require.NoError(t, env.appointmentSvc.Delete(ctx, tenant, a.ID))
	e := env.publisher.Last(t)
	assert.Equal(t, notify.EventAppointmentDeleted, e.Type)
	assert.Equal(t, core.RoleTenant, e.Actor)

	b := book()
	require.NoError(t, env.appointmentSvc.Delete(ctx, owner, b.ID))
	e = env.publisher.Last(t)
	assert.Equal(t, core.RoleOwner, e.Actor)
	mails, err := notify.Mails(e)
	require.NoError(t, err)
	assert.Len(t, mails, 2)

	requireStatus(t, env.appointmentSvc.Delete(ctx, owner, b.ID), http.StatusNotFound)
}
