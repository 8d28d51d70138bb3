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

func TestContractCreateRequiresConfirmedAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)

	_, err := env.contractSvc.Create(ctx, owner, contractReq(tenant.ID, room.ID))
	assert.ErrorIs(t, err, ErrNoConfirmedAppointment)
	requireStatus(t, err, http.StatusConflict)

	a, err := env.appointmentSvc.Create(ctx, tenant, AppointmentCreate{LocataireID: tenant.ID, ChambreID: room.ID, DateHeure: testNow.Add(time.Hour)})
	require.NoError(t, err)
	_, err = env.contractSvc.Create(ctx, owner, contractReq(tenant.ID, room.ID))
	assert.ErrorIs(t, err, ErrNoConfirmedAppointment, "a pending appointment is not enough")

	_, err = env.appointmentSvc.Update(ctx, owner, a.ID, AppointmentUpdate{Statut: statusPtr(core.AppointmentConfirmed)})
	require.NoError(t, err)

	c, err := env.contractSvc.Create(ctx, owner, contractReq(tenant.ID, room.ID))
	require.NoError(t, err)
	assert.Equal(t, core.ContractActive, c.Statut)
	assert.False(t, c.Chambre.Disponible)

	stored, err := env.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, stored.Disponible)

	e := env.publisher.Last(t)
	assert.Equal(t, notify.EventContractCreated, e.Type)
	assert.Equal(t, tenant.ID, e.Tenant.ID)

	// the room is now leased
	_, err = env.contractSvc.Create(ctx, owner, contractReq(tenant.ID, room.ID))
	assert.ErrorIs(t, err, ErrRoomLeased)
}

func TestContractCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	other := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)

	_, err := env.contractSvc.Create(ctx, other, contractReq(tenant.ID, room.ID))
	requireStatus(t, err, http.StatusForbidden)

	_, err = env.contractSvc.Create(ctx, tenant, contractReq(tenant.ID, room.ID))
	requireStatus(t, err, http.StatusForbidden)

	_, err = env.contractSvc.Create(ctx, owner, contractReq(tenant.ID, 5555))
	assert.Equal(t, "Chambre avec l'ID 5555 non trouvée.", requireStatus(t, err, http.StatusNotFound).Detail)

	_, err = env.contractSvc.Create(ctx, owner, contractReq(6666, room.ID))
	assert.Equal(t, "Locataire avec l'ID 6666 non trouvé.", requireStatus(t, err, http.StatusNotFound).Detail)

	_, err = env.contractSvc.Create(ctx, owner, contractReq(other.ID, room.ID))
	requireStatus(t, err, http.StatusBadRequest)

	req := contractReq(tenant.ID, room.ID)
	req.DateFin = req.DateDebut
	_, err = env.contractSvc.Create(ctx, owner, req)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestContractUpdateAndTerminate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	c := env.lease(t, owner, tenant, room)

	desc := "Eau et électricité incluses"
	got, err := env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, got.Description)

	_, err = env.contractSvc.Update(ctx, tenant, c.ID, ContractUpdate{Description: &desc})
	requireStatus(t, err, http.StatusForbidden)

	badEnd := c.DateDebut.Add(-24 * time.Hour)
	_, err = env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{DateFin: &badEnd})
	requireStatus(t, err, http.StatusBadRequest)

	resilie := core.ContractTerminated
	got, err = env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Statut: &resilie})
	require.NoError(t, err)
	assert.Equal(t, core.ContractTerminated, got.Statut)

	stored, err := env.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, stored.Disponible, "termination frees the room")

	e := env.publisher.Last(t)
	assert.Equal(t, notify.EventContractTerminated, e.Type)

	actif := core.ContractActive
	_, err = env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Statut: &actif})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Description: &desc})
	assert.Equal(t, "Un contrat résilié ne peut plus être modifié", requireStatus(t, err, http.StatusBadRequest).Detail)

	// resending the current status is a no-op
	_, err = env.contractSvc.Update(ctx, owner, c.ID, ContractUpdate{Statut: &resilie})
	require.NoError(t, err)
}

func TestContractViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	stranger := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	c := env.lease(t, owner, tenant, room)

	mine, err := env.contractSvc.ListForTenant(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Chambre)
	require.NotNil(t, mine[0].Chambre.Maison)
	assert.Equal(t, "Villa Teranga", mine[0].Chambre.Maison.Nom)

	_, err = env.contractSvc.ListForTenant(ctx, owner)
	assert.Equal(t, "Seuls les locataires peuvent voir leurs contrats.", requireStatus(t, err, http.StatusForbidden).Detail)

	ownerList, err := env.contractSvc.List(ctx, owner, "")
	require.NoError(t, err)
	assert.Len(t, ownerList, 1)
	_, err = env.contractSvc.List(ctx, owner, "expire")
	requireStatus(t, err, http.StatusBadRequest)

	_, err = env.contractSvc.Get(ctx, stranger, c.ID)
	requireStatus(t, err, http.StatusForbidden)
	_, err = env.contractSvc.Get(ctx, tenant, 9999)
	assert.Equal(t, "Contrat non trouvé", requireStatus(t, err, http.StatusNotFound).Detail)

	_, err = env.paymentSvc.Create(ctx, owner, PaymentCreate{ContratID: c.ID, Montant: 75000, DateEcheance: testNow})
	require.NoError(t, err)
	payments, err := env.contractSvc.PaymentsForTenantContract(ctx, tenant, c.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	_, err = env.contractSvc.PaymentsForTenantContract(ctx, stranger, c.ID)
	assert.Equal(t, "Contrat non trouvé ou accès non autorisé", requireStatus(t, err, http.StatusNotFound).Detail)
}

func TestContractDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	c := env.lease(t, owner, tenant, room)

	requireStatus(t, env.contractSvc.Delete(ctx, tenant, c.ID), http.StatusForbidden)
	require.NoError(t, env.contractSvc.Delete(ctx, owner, c.ID))

	stored, err := env.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, stored.Disponible)
	requireStatus(t, env.contractSvc.Delete(ctx, owner, c.ID), http.StatusNotFound)
}
