package service

import (
	"context"
	"errors"
	"time"

	"louyass/core"
	"louyass/metrics"
	"louyass/notify"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// PaymentCreate is the body of a new payment record
type PaymentCreate struct {
	ContratID    int64              `json:"contrat_id" validate:"required,gt=0"`
	Montant      float64            `json:"montant" validate:"required,gt=0"`
	Statut       core.PaymentStatus `json:"statut" validate:"omitempty,oneof=en_attente paye"`
	DateEcheance time.Time          `json:"date_echeance" validate:"required"`
	DatePaiement *time.Time         `json:"date_paiement,omitempty"`
}

// PaymentService records rent instalments. Tenants record what they paid;
// owners record both expected and received instalments.
type PaymentService struct {
	payments  PaymentStore
	contracts ContractReader
	users     UserReader
	publisher notify.Publisher
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
}

// NewPaymentService creates the payment service. publisher may be nil.
func NewPaymentService(
	payments PaymentStore,
	contracts ContractReader,
	users UserReader,
	publisher notify.Publisher,
	clock clockwork.Clock,
	logger *zap.SugaredLogger,
) *PaymentService {
	if payments == nil || contracts == nil || users == nil {
		panic("payment service storages are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PaymentService{
		payments:  payments,
		contracts: contracts,
		users:     users,
		publisher: publisherOrDiscard(publisher),
		clock:     clock,
		logger:    logger,
	}
}

// Create records a payment on an actif contract
func (s *PaymentService) Create(ctx context.Context, caller *core.User, req PaymentCreate) (*core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	c, err := s.contracts.GetContractDetails(ctx, req.ContratID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "load contract")
	}

	statut := req.Statut
	if statut == "" {
		statut = core.PaymentPending
	}
	if !statut.IsValid() {
		return nil, badRequest("Statut de paiement invalide")
	}

	switch caller.Role {
	case core.RoleTenant:
		if c.LocataireID != caller.ID {
			return nil, forbidden("Action non autorisée pour ce locataire")
		}
		if statut != core.PaymentPaid || req.DatePaiement == nil {
			return nil, badRequest("Les locataires doivent marquer le paiement comme 'paye' avec date")
		}
	case core.RoleOwner:
		if contractOwnerID(c) != caller.ID {
			return nil, forbidden("Action non autorisée pour ce propriétaire")
		}
	default:
		return nil, forbidden("Rôle utilisateur non reconnu")
	}
	if !c.IsActive() {
		return nil, badRequest("Le contrat n'est pas actif")
	}

	p := &core.Payment{
		ContratID:    c.ID,
		Montant:      req.Montant,
		Statut:       statut,
		DateEcheance: req.DateEcheance.UTC(),
		CreeLe:       s.clock.Now().UTC(),
	}
	if statut == core.PaymentPaid {
		paidAt := s.clock.Now().UTC()
		if req.DatePaiement != nil {
			paidAt = req.DatePaiement.UTC()
		}
		p.DatePaiement = &paidAt
	}

	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return nil, notFoundOr(err, storage.ErrContractNotFound, "Contrat non trouvé", "create payment")
	}
	p.Contrat = c
	metrics.PaymentsRecorded.WithLabelValues(string(p.Statut)).Inc()
	s.logger.Infow("Payment recorded", "payment_id", p.ID, "contract_id", c.ID, "statut", p.Statut, "by", caller.ID)

	s.publish(ctx, notify.EventPaymentCreated, caller.Role, p)
	return p, nil
}

// Get returns a payment to the tenant or the owner of its contract
func (s *PaymentService) Get(ctx context.Context, caller *core.User, id int64) (*core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeePayment(caller, p) {
		return nil, forbidden("Accès non autorisé")
	}
	return p, nil
}

// ListMine lists the payments of the caller's contracts
func (s *PaymentService) ListMine(ctx context.Context, caller *core.User) ([]core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var (
		items []core.Payment
		err   error
	)
	switch caller.Role {
	case core.RoleTenant:
		items, err = s.payments.ListPaymentsForTenant(ctx, caller.ID)
	case core.RoleOwner:
		items, err = s.payments.ListPaymentsForOwner(ctx, caller.ID)
	default:
		return nil, forbidden("Rôle utilisateur non reconnu")
	}
	if err != nil {
		return nil, internal("list payments", err)
	}
	return items, nil
}

// MarkPaid settles a pending payment. paidAt defaults to now. Instalments
// that fell due during a lease stay payable after it is terminated; only new
// payments require an actif contract.
func (s *PaymentService) MarkPaid(ctx context.Context, caller *core.User, id int64, paidAt *time.Time) (*core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeePayment(caller, p) {
		return nil, forbidden("Accès non autorisé")
	}

	at := s.clock.Now().UTC()
	if paidAt != nil {
		at = paidAt.UTC()
	}
	if err := p.MarkPaid(at); err != nil {
		return nil, badRequest("Ce paiement est déjà réglé")
	}
	if err := s.payments.MarkPaid(ctx, id, at); err != nil {
		switch {
		case errors.Is(err, storage.ErrStatusConflict):
			return nil, badRequest("Ce paiement est déjà réglé")
		case errors.Is(err, storage.ErrPaymentNotFound):
			return nil, notFound("Paiement non trouvé")
		}
		return nil, internal("mark payment paid", err)
	}
	metrics.PaymentsRecorded.WithLabelValues(string(core.PaymentPaid)).Inc()
	s.logger.Infow("Payment settled", "payment_id", id, "by", caller.ID)

	s.publish(ctx, notify.EventPaymentPaid, caller.Role, p)
	return p, nil
}

// ListForOwner lists every payment on the caller's houses
func (s *PaymentService) ListForOwner(ctx context.Context, caller *core.User) ([]core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.Role != core.RoleOwner {
		return nil, forbidden("Seuls les propriétaires peuvent voir les paiements de leurs maisons.")
	}
	items, err := s.payments.ListPaymentsForOwner(ctx, caller.ID)
	if err != nil {
		return nil, internal("list owner payments", err)
	}
	return items, nil
}

// PendingThisMonth lists the owner's en_attente payments due in the current
// calendar month (UTC).
func (s *PaymentService) PendingThisMonth(ctx context.Context, caller *core.User) ([]core.Payment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.Role != core.RoleOwner {
		return nil, forbidden("Seuls les propriétaires peuvent voir les paiements en attente.")
	}
	from, to := core.MonthBounds(s.clock.Now().UTC())
	items, err := s.payments.ListPendingForOwner(ctx, caller.ID, from, to)
	if err != nil {
		return nil, internal("list pending payments", err)
	}
	return items, nil
}

func (s *PaymentService) load(ctx context.Context, id int64) (*core.Payment, error) {
	p, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrPaymentNotFound, "Paiement non trouvé", "load payment")
	}
	return p, nil
}

func (s *PaymentService) publish(ctx context.Context, t notify.EventType, actor core.Role, p *core.Payment) {
	var tenantID, ownerID int64
	if p.Contrat != nil {
		tenantID = p.Contrat.LocataireID
		ownerID = contractOwnerID(p.Contrat)
	}
	tenant, owner := parties(ctx, s.users, s.logger, tenantID, ownerID)
	s.publisher.Publish(ctx, notify.Event{Type: t, Actor: actor, Payment: p, Tenant: tenant, Owner: owner})
}

func canSeePayment(caller *core.User, p *core.Payment) bool {
	if p.Contrat == nil {
		return false
	}
	switch caller.Role {
	case core.RoleTenant:
		return p.Contrat.LocataireID == caller.ID
	case core.RoleOwner:
		return contractOwnerID(p.Contrat) == caller.ID
	}
	return false
}
