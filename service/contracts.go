package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"louyass/core"
	"louyass/metrics"
	"louyass/notify"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ContractCreate is the body of a new lease
type ContractCreate struct {
	LocataireID    int64     `json:"locataire_id" validate:"required,gt=0"`
	ChambreID      int64     `json:"chambre_id" validate:"required,gt=0"`
	DateDebut      time.Time `json:"date_debut" validate:"required"`
	DateFin        time.Time `json:"date_fin" validate:"required"`
	MontantCaution float64   `json:"montant_caution" validate:"gte=0"`
	MoisCaution    int       `json:"mois_caution" validate:"gte=0,lte=24"`
	Description    string    `json:"description" validate:"max=2000"`
	ModePaiement   string    `json:"mode_paiement" validate:"required,oneof=especes virement mobile_money cheque"`
	Periodicite    string    `json:"periodicite" validate:"required,oneof=mensuel trimestriel semestriel annuel"`
}

// ContractUpdate holds the optional changes to a lease. Setting Statut to
// resilié terminates it.
type ContractUpdate struct {
	DateDebut      *time.Time           `json:"date_debut,omitempty"`
	DateFin        *time.Time           `json:"date_fin,omitempty"`
	MontantCaution *float64             `json:"montant_caution,omitempty" validate:"omitempty,gte=0"`
	MoisCaution    *int                 `json:"mois_caution,omitempty" validate:"omitempty,gte=0,lte=24"`
	Description    *string              `json:"description,omitempty" validate:"omitempty,max=2000"`
	ModePaiement   *string              `json:"mode_paiement,omitempty" validate:"omitempty,oneof=especes virement mobile_money cheque"`
	Periodicite    *string              `json:"periodicite,omitempty" validate:"omitempty,oneof=mensuel trimestriel semestriel annuel"`
	Statut         *core.ContractStatus `json:"statut,omitempty"`
}

func (u ContractUpdate) changesTerms() bool {
	return u.DateDebut != nil || u.DateFin != nil || u.MontantCaution != nil || u.MoisCaution != nil ||
		u.Description != nil || u.ModePaiement != nil || u.Periodicite != nil
}

// ContractPaymentLister lists the instalments of a contract
type ContractPaymentLister interface {
	ListPaymentsForContract(ctx context.Context, contratID int64) ([]core.Payment, error)
}

// ContractService manages leases. A lease is signed by the owner of the room
// for a tenant who had a confirmed viewing of it; the room is unavailable
// while the lease is actif.
type ContractService struct {
	contracts    ContractStore
	appointments ConfirmedAppointmentChecker
	rooms        RoomReader
	users        UserReader
	payments     ContractPaymentLister
	publisher    notify.Publisher
	clock        clockwork.Clock
	logger       *zap.SugaredLogger
}

// NewContractService creates the contract service. publisher may be nil.
func NewContractService(
	contracts ContractStore,
	appointments ConfirmedAppointmentChecker,
	rooms RoomReader,
	users UserReader,
	payments ContractPaymentLister,
	publisher notify.Publisher,
	clock clockwork.Clock,
	logger *zap.SugaredLogger,
) *ContractService {
	if contracts == nil || appointments == nil || rooms == nil || users == nil || payments == nil {
		panic("contract service storages are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ContractService{
		contracts:    contracts,
		appointments: appointments,
		rooms:        rooms,
		users:        users,
		payments:     payments,
		publisher:    publisherOrDiscard(publisher),
		clock:        clock,
		logger:       logger,
	}
}

// Create signs a lease.
//
// BUSINESS LOGIC:
//  1. the caller owns the room
//  2. the tenant exists and has the locataire role
//  3. the tenant had a confirmed appointment for the room
//  4. the room has no actif contract (checked again inside the insert transaction)
func (s *ContractService) Create(ctx context.Context, caller *core.User, req ContractCreate) (*core.Contract, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	room, err := s.rooms.GetRoomWithOwner(ctx, req.ChambreID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, fmt.Sprintf("Chambre avec l'ID %d non trouvée.", req.ChambreID), "load room")
	}
	if caller.Role != core.RoleOwner || room.OwnerID() != caller.ID {
		return nil, forbidden("Vous n'êtes pas le propriétaire de cette chambre")
	}

	tenant, err := s.users.GetUserByID(ctx, req.LocataireID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, fmt.Sprintf("Locataire avec l'ID %d non trouvé.", req.LocataireID), "load tenant")
	}
	if tenant.Role != core.RoleTenant {
		return nil, badRequest("L'utilisateur indiqué n'est pas un locataire")
	}

	c := &core.Contract{
		LocataireID:    tenant.ID,
		ChambreID:      room.ID,
		DateDebut:      req.DateDebut.UTC(),
		DateFin:        req.DateFin.UTC(),
		MontantCaution: req.MontantCaution,
		MoisCaution:    req.MoisCaution,
		Description:    req.Description,
		ModePaiement:   req.ModePaiement,
		Periodicite:    req.Periodicite,
		Statut:         core.ContractActive,
		CreeLe:         s.clock.Now().UTC(),
	}
	if err := c.ValidatePeriod(); err != nil {
		return nil, badRequest("La date de fin doit être postérieure à la date de début")
	}

	ok, err := s.appointments.HasConfirmedAppointment(ctx, tenant.ID, room.ID)
	if err != nil {
		return nil, internal("check appointment", err)
	}
	if !ok {
		return nil, ErrNoConfirmedAppointment
	}
	leased, err := s.contracts.HasActiveContractForRoom(ctx, room.ID)
	if err != nil {
		return nil, internal("check room lease", err)
	}
	if leased {
		return nil, ErrRoomLeased
	}

	if err := s.contracts.CreateContract(ctx, c); err != nil {
		if errors.Is(err, storage.ErrRoomAlreadyLeased) {
			return nil, ErrRoomLeased
		}
		return nil, internal("create contract", err)
	}
	room.Disponible = false
	c.Chambre = room
	c.Locataire = tenant.Summary()
	metrics.ContractsCreated.Inc()

	s.publisher.Publish(ctx, notify.Event{
		Type:     notify.EventContractCreated,
		Actor:    caller.Role,
		Contract: c,
		Tenant:   tenant,
		Owner:    caller,
	})
	return c, nil
}

// Get returns a contract to its tenant or to the room owner
func (s *ContractService) Get(ctx context.Context, caller *core.User, id int64) (*core.Contract, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.LocataireID != caller.ID && contractOwnerID(c) != caller.ID {
		return nil, ErrForbidden
	}
	return c, nil
}

// List returns the caller's contracts. statut may be empty.
func (s *ContractService) List(ctx context.Context, caller *core.User, statut string) ([]core.Contract, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var filter storage.ContractFilter
	switch caller.Role {
	case core.RoleTenant:
		filter.LocataireID = caller.ID
	case core.RoleOwner:
		filter.ProprietaireID = caller.ID
	default:
		return nil, forbidden("Rôle utilisateur non reconnu")
	}
	if statut != "" {
		st := core.ContractStatus(statut)
		if !st.IsValid() {
			return nil, badRequest("Statut de filtre invalide")
		}
		filter.Statut = st
	}
	items, err := s.contracts.ListContracts(ctx, filter)
	if err != nil {
		return nil, internal("list contracts", err)
	}
	return items, nil
}

// Update edits the terms of an actif lease or terminates it. Owner only.
func (s *ContractService) Update(ctx context.Context, caller *core.User, id int64, req ContractUpdate) (*core.Contract, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != core.RoleOwner || contractOwnerID(c) != caller.ID {
		return nil, forbidden("Vous n'êtes pas le propriétaire de cette chambre")
	}

	terminate := false
	if req.Statut != nil && *req.Statut != c.Statut {
		if !c.Statut.CanTransitionTo(*req.Statut) {
			return nil, badRequest(fmt.Sprintf("Transition de statut invalide: %s → %s", c.Statut, *req.Statut))
		}
		terminate = *req.Statut == core.ContractTerminated
	}

	if req.changesTerms() {
		if !c.IsActive() {
			return nil, badRequest("Un contrat résilié ne peut plus être modifié")
		}
		applyContractTerms(c, req)
		if err := c.ValidatePeriod(); err != nil {
			return nil, badRequest("La date de fin doit être postérieure à la date de début")
		}
		if err := s.contracts.UpdateContract(ctx, c); err != nil {
			return nil, notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "update contract")
		}
	}

	if terminate {
		if err := s.contracts.TerminateContract(ctx, c.ID); err != nil {
			return nil, notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "terminate contract")
		}
		c.Statut = core.ContractTerminated
		if c.Chambre != nil {
			c.Chambre.Disponible = true
		}
		metrics.ContractsTerminated.Inc()
		s.logger.Infow("Contract terminated by owner", "contract_id", c.ID, "by", caller.ID)

		tenant, _ := parties(ctx, s.users, s.logger, c.LocataireID, 0)
		s.publisher.Publish(ctx, notify.Event{
			Type:     notify.EventContractTerminated,
			Actor:    caller.Role,
			Contract: c,
			Tenant:   tenant,
			Owner:    caller,
		})
	}
	return c, nil
}

func applyContractTerms(c *core.Contract, req ContractUpdate) {
	if req.DateDebut != nil {
		c.DateDebut = req.DateDebut.UTC()
	}
	if req.DateFin != nil {
		c.DateFin = req.DateFin.UTC()
	}
	if req.MontantCaution != nil {
		c.MontantCaution = *req.MontantCaution
	}
	if req.MoisCaution != nil {
		c.MoisCaution = *req.MoisCaution
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.ModePaiement != nil {
		c.ModePaiement = *req.ModePaiement
	}
	if req.Periodicite != nil {
		c.Periodicite = *req.Periodicite
	}
}

// Delete removes a lease with its payments and issues. Owner only.
func (s *ContractService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if caller.Role != core.RoleOwner || contractOwnerID(c) != caller.ID {
		return forbidden("Vous n'êtes pas le propriétaire de cette chambre")
	}
	if err := s.contracts.DeleteContract(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "delete contract")
	}
	s.logger.Infow("Contract deleted", "contract_id", id, "by", caller.ID)
	return nil
}

// ListForTenant is the tenant's own view: each contract with its room and house
func (s *ContractService) ListForTenant(ctx context.Context, caller *core.User) ([]core.Contract, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.Role != core.RoleTenant {
		return nil, forbidden("Seuls les locataires peuvent voir leurs contrats.")
	}
	items, err := s.contracts.ListContracts(ctx, storage.ContractFilter{LocataireID: caller.ID})
	if err != nil {
		return nil, internal("list tenant contracts", err)
	}
	return items, nil
}

// PaymentsForTenantContract lists the instalments of one of the caller's
// contracts. Someone else's contract is reported as missing.
func (s *ContractService) PaymentsForTenantContract(ctx context.Context, caller *core.User, contractID int64) ([]core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.Role != core.RoleTenant {
		return nil, forbidden("Seuls les locataires peuvent voir leurs contrats.")
	}
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil || c.LocataireID != caller.ID {
		if err != nil && !errors.Is(err, storage.ErrContractNotFound) {
			return nil, internal("load contract", err)
		}
		return nil, notFound("Contrat non trouvé ou accès non autorisé")
	}
	items, err := s.payments.ListPaymentsForContract(ctx, contractID)
	if err != nil {
		return nil, internal("list contract payments", err)
	}
	return items, nil
}

func (s *ContractService) load(ctx context.Context, id int64) (*core.Contract, error) {
	c, err := s.contracts.GetContractDetails(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "load contract")
	}
	return c, nil
}

func contractOwnerID(c *core.Contract) int64 {
	if c.Chambre == nil {
		return 0
	}
	return c.Chambre.OwnerID()
}
