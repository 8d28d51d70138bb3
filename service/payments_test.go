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

func TestPaymentCreateRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	other := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	stranger := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	c := env.lease(t, owner, tenant, room)
	paidAt := testNow.Add(-time.Hour)

	t.Run("tenant records a paid instalment", func(t *testing.T) {
		p, err := env.paymentSvc.Create(ctx, tenant, PaymentCreate{
			ContratID: c.ID, Montant: 75000, Statut: core.PaymentPaid, DateEcheance: testNow, DatePaiement: &paidAt,
		})
		require.NoError(t, err)
		assert.Equal(t, core.PaymentPaid, p.Statut)

		e := env.publisher.Last(t)
		assert.Equal(t, notify.EventPaymentCreated, e.Type)
		mails, err := notify.Mails(e)
		require.NoError(t, err)
		require.Len(t, mails, 1)
		assert.Equal(t, owner.Email, mails[0].To)
		assert.Contains(t, mails[0].Text, "Paiement de 75000 CFA reçu pour le contrat")
	})

	t.Run("tenant must send paye with a date", func(t *testing.T) {
		_, err := env.paymentSvc.Create(ctx, tenant, PaymentCreate{ContratID: c.ID, Montant: 75000, DateEcheance: testNow})
		assert.Equal(t, "Les locataires doivent marquer le paiement comme 'paye' avec date", requireStatus(t, err, http.StatusBadRequest).Detail)

		_, err = env.paymentSvc.Create(ctx, tenant, PaymentCreate{ContratID: c.ID, Montant: 75000, Statut: core.PaymentPaid, DateEcheance: testNow})
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("other tenant", func(t *testing.T) {
		_, err := env.paymentSvc.Create(ctx, stranger, PaymentCreate{ContratID: c.ID, Montant: 1, Statut: core.PaymentPaid, DateEcheance: testNow, DatePaiement: &paidAt})
		assert.Equal(t, "Action non autorisée pour ce locataire", requireStatus(t, err, http.StatusForbidden).Detail)
	})

	t.Run("other owner", func(t *testing.T) {
		_, err := env.paymentSvc.Create(ctx, other, PaymentCreate{ContratID: c.ID, Montant: 1, DateEcheance: testNow})
		assert.Equal(t, "Action non autorisée pour ce propriétaire", requireStatus(t, err, http.StatusForbidden).Detail)
	})

	t.Run("unknown contract", func(t *testing.T) {
		_, err := env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: 8888, Montant: 1, DateEcheance: testNow})
		requireStatus(t, err, http.StatusNotFound)
	})

	t.Run("terminated contract", func(t *testing.T) {
		resilie := core.ContractTerminated
		_, err := env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Statut: &resilie})
		require.NoError(t, err)
		_, err = env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 1, DateEcheance: testNow})
		assert.Equal(t, "Le contrat n'est pas actif", requireStatus(t, err, http.StatusBadRequest).Detail)
	})
}

func TestPaymentMarkPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	stranger := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	c := env.lease(t, owner, tenant, room)

	p, err := env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 75000, DateEcheance: testNow})
	require.NoError(t, err)
	assert.Equal(t, core.PaymentPending, p.Statut)
	assert.Nil(t, p.DatePaiement)

	_, err = env.paymentSvc.MarkPaid(ctx, stranger, p.ID, nil)
	assert.Equal(t, "Accès non autorisé", requireStatus(t, err, http.StatusForbidden).Detail)

	got, err := env.paymentSvc.MarkPaid(ctx, tenant, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentPaid, got.Statut)
	require.NotNil(t, got.DatePaiement)
	assert.True(t, got.DatePaiement.Equal(testNow))
	assert.Equal(t, notify.EventPaymentPaid, env.publisher.Last(t).Type)

	_, err = env.paymentSvc.MarkPaid(ctx, owner, p.ID, nil)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = env.paymentSvc.MarkPaid(ctx, owner, 123456, nil)
	assert.Equal(t, "Paiement non trouvé", requireStatus(t, err, http.StatusNotFound).Detail)
}

func TestPaymentArrearsAfterTermination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	c := env.lease(t, owner, tenant, env.createRoom(t, owner))

	due, err := env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 75000, DateEcheance: testNow})
	require.NoError(t, err)

	resilie := core.ContractTerminated
	_, err = env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Statut: &resilie})
	require.NoError(t, err)

	// no new instalment on a terminated lease
	_, err = env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 75000, DateEcheance: testNow})
	requireStatus(t, err, http.StatusBadRequest)

	// but the one already due can still be settled
	got, err := env.paymentSvc.MarkPaid(ctx, tenant, due.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentPaid, got.Statut)
}

func TestPaymentOwnerViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	c := env.lease(t, owner, tenant, room)

	dues := []time.Time{
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
	}
	for _, due := range dues {
		_, err := env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 75000, DateEcheance: due})
		require.NoError(t, err)
	}
	paid := testNow
	_, err := env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 75000, Statut: core.PaymentPaid, DateEcheance: dues[0], DatePaiement: &paid})
	require.NoError(t, err)

	pending, err := env.paymentSvc.PendingThisMonth(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "only en_attente payments due in March")

	all, err := env.paymentSvc.ListForOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	mine, err := env.paymentSvc.ListMine(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, mine, 5)

	_, err = env.paymentSvc.PendingThisMonth(ctx, tenant)
	assert.Equal(t, "Seuls les propriétaires peuvent voir les paiements en attente.", requireStatus(t, err, http.StatusForbidden).Detail)
	_, err = env.paymentSvc.ListForOwner(ctx, tenant)
	assert.Equal(t, "Seuls les propriétaires peuvent voir les paiements de leurs maisons.", requireStatus(t, err, http.StatusForbidden).Detail)

	// a month later the April instalment is the pending one
	env.clock.Advance(30 * 24 * time.Hour)
	pending, err = env.paymentSvc.PendingThisMonth(ctx, owner)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, time.April, pending[0].DateEcheance.Month())
}
