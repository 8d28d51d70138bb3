package core

import (
	"fmt"
	"slices"
	"time"
)

// appointmentTransitions defines allowed status changes for appointments.
// Rescheduling (tenant side) is not a status transition; see Reschedule.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed: {AppointmentCancelled},
	AppointmentCancelled: {}, // final
}

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractActive:     {ContractTerminated},
	ContractTerminated: {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid},
	PaymentPaid:    {},
}

// CanTransitionTo reports whether an appointment may move from s to next
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if !next.IsValid() {
		return false
	}
	return slices.Contains(appointmentTransitions[s], next)
}

// CanTransitionTo reports whether a contract may move from s to next.
// Staying in the same state is accepted so that updates which resend the
// current status are not rejected.
func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	return slices.Contains(contractTransitions[s], next)
}

// CanTransitionTo reports whether a payment may move from s to next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if !next.IsValid() {
		return false
	}
	return slices.Contains(paymentTransitions[s], next)
}

// TransitionTo validates and applies an appointment status change
func (a *Appointment) TransitionTo(next AppointmentStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, next)
	}
	if !a.Statut.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, a.Statut, next)
	}
	a.Statut = next
	return nil
}

// Reschedule moves the appointment to a new date and puts it back to
// en_attente so the owner has to confirm the new slot. A cancelled
// appointment stays cancelled.
func (a *Appointment) Reschedule(date, now time.Time) error {
	if a.Statut == AppointmentCancelled {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, a.Statut, AppointmentPending)
	}
	if err := ValidateFutureDate(date, now); err != nil {
		return err
	}
	a.DateHeure = date
	a.Statut = AppointmentPending
	return nil
}

// TransitionTo validates and applies a contract status change
func (c *Contract) TransitionTo(next ContractStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, next)
	}
	if !c.Statut.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, c.Statut, next)
	}
	c.Statut = next
	return nil
}

// IsActive reports whether the lease is running
func (c *Contract) IsActive() bool {
	return c.Statut == ContractActive
}

// ValidatePeriod checks that the lease ends after it starts
func (c *Contract) ValidatePeriod() error {
	if !c.DateFin.After(c.DateDebut) {
		return ErrInvalidPeriod
	}
	return nil
}

// MarkPaid settles the payment at the given date
func (p *Payment) MarkPaid(paidAt time.Time) error {
	if !p.Statut.CanTransitionTo(PaymentPaid) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, p.Statut, PaymentPaid)
	}
	p.Statut = PaymentPaid
	p.DatePaiement = &paidAt
	return nil
}

// ValidateFutureDate returns ErrDateInPast unless t is strictly after now
func ValidateFutureDate(t, now time.Time) error {
	if !t.After(now) {
		return ErrDateInPast
	}
	return nil
}

// MonthBounds returns the first instant of the month containing t and the
// first instant of the following month, in t's location.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0)
	return start, end
}
