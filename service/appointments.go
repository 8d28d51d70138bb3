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

// AppointmentCreate is the body of a viewing request
type AppointmentCreate struct {
	LocataireID int64                   `json:"locataire_id" validate:"required,gt=0"`
	ChambreID   int64                   `json:"chambre_id" validate:"required,gt=0"`
	DateHeure   time.Time               `json:"date_heure" validate:"required"`
	Statut      *core.AppointmentStatus `json:"statut,omitempty"`
}

// AppointmentUpdate carries the fields a party may change. The owner sends
// Statut, the tenant sends DateHeure.
type AppointmentUpdate struct {
	Statut    *core.AppointmentStatus `json:"statut,omitempty"`
	DateHeure *time.Time              `json:"date_heure,omitempty"`
}

// AppointmentService enforces the appointment state machine.
//
// RULES:
//   - only tenants create appointments, for themselves, on rooms they do not own
//   - the owner of the room confirms (from en_attente) or cancels
//   - the tenant only moves the date, which puts the appointment back to en_attente
type AppointmentService struct {
	appointments AppointmentStore
	rooms        RoomReader
	users        UserReader
	publisher    notify.Publisher
	clock        clockwork.Clock
	logger       *zap.SugaredLogger
}

// NewAppointmentService creates the appointment service. publisher may be nil.
func NewAppointmentService(
	appointments AppointmentStore,
	rooms RoomReader,
	users UserReader,
	publisher notify.Publisher,
	clock clockwork.Clock,
	logger *zap.SugaredLogger,
) *AppointmentService {
	if appointments == nil {
		panic("appointments storage is required")
	}
	if rooms == nil {
		panic("rooms storage is required")
	}
	if users == nil {
		panic("users storage is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AppointmentService{
		appointments: appointments,
		rooms:        rooms,
		users:        users,
		publisher:    publisherOrDiscard(publisher),
		clock:        clock,
		logger:       logger,
	}
}

// Create books a viewing for the calling tenant
func (s *AppointmentService) Create(ctx context.Context, caller *core.User, req AppointmentCreate) (*core.Appointment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.Role != core.RoleTenant {
		return nil, forbidden("Seuls les locataires peuvent créer des rendez-vous")
	}
	if req.LocataireID != caller.ID {
		return nil, forbidden("Vous ne pouvez créer que vos propres rendez-vous")
	}

	room, err := s.rooms.GetRoomWithOwner(ctx, req.ChambreID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "load room")
	}
	if room.OwnerID() == caller.ID {
		return nil, forbidden("Vous ne pouvez pas créer de rendez-vous pour votre propre chambre")
	}
	if req.Statut != nil && *req.Statut != core.AppointmentPending {
		return nil, badRequest("Un nouveau rendez-vous doit avoir le statut 'en_attente'")
	}
	if err := core.ValidateFutureDate(req.DateHeure, s.clock.Now()); err != nil {
		return nil, badRequest("La date du rendez-vous doit être dans le futur")
	}

	a := &core.Appointment{
		LocataireID: caller.ID,
		ChambreID:   room.ID,
		DateHeure:   req.DateHeure.UTC(),
		Statut:      core.AppointmentPending,
		CreeLe:      s.clock.Now().UTC(),
	}
	if err := s.appointments.CreateAppointment(ctx, a); err != nil {
		return nil, internal("create appointment", err)
	}
	a.Locataire = caller.Summary()
	a.Chambre = room
	metrics.AppointmentTransitions.WithLabelValues(string(core.AppointmentPending)).Inc()

	s.logger.Infow("Appointment requested", "appointment_id", a.ID, "chambre_id", room.ID, "locataire_id", caller.ID)
	_, owner := parties(ctx, s.users, s.logger, 0, room.OwnerID())
	s.publisher.Publish(ctx, notify.Event{
		Type:        notify.EventAppointmentCreated,
		Actor:       caller.Role,
		Appointment: a,
		Tenant:      caller,
		Owner:       owner,
	})
	return a, nil
}

// List returns the caller's appointments: their own for a tenant, those on
// their rooms for an owner. statut may be empty.
func (s *AppointmentService) List(ctx context.Context, caller *core.User, statut string, skip, limit int) ([]core.Appointment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validatePage(skip, limit); err != nil {
		return nil, err
	}
	filter := storage.AppointmentFilter{Limit: limit, Offset: skip}
	switch caller.Role {
	case core.RoleTenant:
		filter.LocataireID = caller.ID
	case core.RoleOwner:
		filter.ProprietaireID = caller.ID
	default:
		return nil, forbidden("Rôle utilisateur non reconnu")
	}
	if statut != "" {
		st := core.AppointmentStatus(statut)
		if !st.IsValid() {
			return nil, badRequest("Statut de filtre invalide")
		}
		filter.Statut = st
	}

	items, err := s.appointments.ListAppointments(ctx, filter)
	if err != nil {
		return nil, internal("list appointments", err)
	}
	return items, nil
}

// Get returns an appointment visible to its tenant and to the room owner
func (s *AppointmentService) Get(ctx context.Context, caller *core.User, id int64) (*core.Appointment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.LocataireID != caller.ID && appointmentOwnerID(a) != caller.ID {
		return nil, ErrForbidden
	}
	return a, nil
}

// Update applies an owner decision or a tenant reschedule
func (s *AppointmentService) Update(ctx context.Context, caller *core.User, id int64, req AppointmentUpdate) (*core.Appointment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case caller.Role == core.RoleOwner:
		if appointmentOwnerID(a) != caller.ID {
			return nil, forbidden("Vous n'êtes pas le propriétaire de cette chambre")
		}
		if err := s.decide(a, req); err != nil {
			return nil, err
		}
	case caller.Role == core.RoleTenant:
		if a.LocataireID != caller.ID {
			return nil, forbidden("Vous n'êtes pas le locataire de ce rendez-vous")
		}
		if err := s.reschedule(a, req); err != nil {
			return nil, err
		}
	default:
		return nil, ErrForbidden
	}

	if err := s.appointments.UpdateAppointment(ctx, a); err != nil {
		return nil, notFoundOr(err, storage.ErrAppointmentNotFound, "Rendez-vous non trouvé", "update appointment")
	}
	metrics.AppointmentTransitions.WithLabelValues(string(a.Statut)).Inc()
	s.logger.Infow("Appointment updated", "appointment_id", a.ID, "statut", a.Statut, "by", caller.ID)

	tenant, owner := parties(ctx, s.users, s.logger, a.LocataireID, appointmentOwnerID(a))
	s.publisher.Publish(ctx, notify.Event{
		Type:        notify.EventAppointmentUpdated,
		Actor:       caller.Role,
		Appointment: a,
		Tenant:      tenant,
		Owner:       owner,
	})
	return a, nil
}

func (s *AppointmentService) decide(a *core.Appointment, req AppointmentUpdate) error {
	if req.DateHeure != nil {
		return forbidden("Seul le locataire peut modifier la date")
	}
	if req.Statut == nil {
		return badRequest("Action invalide pour un propriétaire")
	}
	switch *req.Statut {
	case core.AppointmentConfirmed:
		if a.Statut != core.AppointmentPending {
			return badRequest("Seuls les rendez-vous en attente peuvent être confirmés")
		}
	case core.AppointmentCancelled:
	default:
		return badRequest("Action invalide pour un propriétaire")
	}
	if err := a.TransitionTo(*req.Statut); err != nil {
		return badRequest("Action invalide pour un propriétaire")
	}
	return nil
}

func (s *AppointmentService) reschedule(a *core.Appointment, req AppointmentUpdate) error {
	if req.Statut != nil && *req.Statut != core.AppointmentPending {
		return forbidden("Vous ne pouvez que modifier la date du rendez-vous")
	}
	if req.DateHeure == nil {
		return badRequest("Nouvelle date requise")
	}
	if err := a.Reschedule(req.DateHeure.UTC(), s.clock.Now()); err != nil {
		if errors.Is(err, core.ErrDateInPast) {
			return badRequest("La nouvelle date doit être dans le futur")
		}
		if errors.Is(err, core.ErrInvalidTransition) {
			return badRequest("Un rendez-vous annulé ne peut pas être modifié")
		}
		return badRequest(err.Error())
	}
	return nil
}

// Delete removes an appointment. Either party may delete; the other one is told.
func (s *AppointmentService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	a, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	ownerID := appointmentOwnerID(a)
	var actor core.Role
	switch caller.ID {
	case ownerID:
		actor = core.RoleOwner
	case a.LocataireID:
		actor = core.RoleTenant
	default:
		return ErrForbidden
	}

	if err := s.appointments.DeleteAppointment(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrAppointmentNotFound, "Rendez-vous non trouvé", "delete appointment")
	}
	s.logger.Infow("Appointment deleted", "appointment_id", id, "by", caller.ID)

	tenant, owner := parties(ctx, s.users, s.logger, a.LocataireID, ownerID)
	s.publisher.Publish(ctx, notify.Event{
		Type:        notify.EventAppointmentDeleted,
		Actor:       actor,
		Appointment: a,
		Tenant:      tenant,
		Owner:       owner,
	})
	return nil
}

func (s *AppointmentService) load(ctx context.Context, id int64) (*core.Appointment, error) {
	a, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrAppointmentNotFound, "Rendez-vous non trouvé", "load appointment")
	}
	return a, nil
}

func appointmentOwnerID(a *core.Appointment) int64 {
	if a.Chambre == nil {
		return 0
	}
	return a.Chambre.OwnerID()
}
