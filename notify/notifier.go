package notify

import (
	"context"

	"louyass/core"

	"go.uber.org/zap"
)

// Queue accepts mails for background delivery
type Queue interface {
	Enqueue(email Email) error
}

// MailNotifier turns domain events into e-mails for the tenant and owner
// concerned and hands them to the dispatcher queue
type MailNotifier struct {
	queue  Queue
	logger *zap.SugaredLogger
}

// NewMailNotifier creates a mail notifier
func NewMailNotifier(queue Queue, logger *zap.SugaredLogger) *MailNotifier {
	if queue == nil {
		panic("queue is required")
	}
	return &MailNotifier{queue: queue, logger: logger}
}

// Publish implements Publisher
func (n *MailNotifier) Publish(_ context.Context, e Event) {
	mails, err := Mails(e)
	if err != nil {
		n.logger.Errorw("Failed to render notification", "event", e.Type, "error", err)
		return
	}
	for _, m := range mails {
		if m.To == "" {
			continue
		}
		if err := n.queue.Enqueue(m); err != nil {
			n.logger.Warnw("Failed to queue e-mail", "event", e.Type, "to", m.To, "error", err)
		}
	}
}

// Mails returns the e-mails an event produces. Events without a mail
// (messages, pending payments) return nil.
func Mails(e Event) ([]Email, error) {
	var out []Email
	add := func(m Email, err error) error {
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	}

	switch e.Type {
	case EventAppointmentCreated:
		if e.Appointment == nil || e.Tenant == nil || e.Owner == nil {
			return nil, nil
		}
		if err := add(AppointmentTenantMail(core.AppointmentPending, e.Appointment, e.Tenant)); err != nil {
			return nil, err
		}
		if err := add(AppointmentOwnerMail(OwnerCreation, e.Appointment, e.Tenant, e.Owner)); err != nil {
			return nil, err
		}

	case EventAppointmentUpdated:
		if e.Appointment == nil || e.Tenant == nil || e.Owner == nil {
			return nil, nil
		}
		if e.Actor == core.RoleTenant {
			if err := add(AppointmentOwnerMail(OwnerModificationDate, e.Appointment, e.Tenant, e.Owner)); err != nil {
				return nil, err
			}
			break
		}
		switch e.Appointment.Statut {
		case core.AppointmentConfirmed:
			if err := add(AppointmentTenantMail(core.AppointmentConfirmed, e.Appointment, e.Tenant)); err != nil {
				return nil, err
			}
		case core.AppointmentCancelled:
			if err := add(AppointmentTenantMail(core.AppointmentCancelled, e.Appointment, e.Tenant)); err != nil {
				return nil, err
			}
			if err := add(AppointmentOwnerMail(OwnerAnnulationProprietaire, e.Appointment, e.Tenant, e.Owner)); err != nil {
				return nil, err
			}
		}

	case EventAppointmentDeleted:
		if e.Appointment == nil || e.Tenant == nil || e.Owner == nil {
			return nil, nil
		}
		if e.Actor == core.RoleOwner {
			if err := add(AppointmentTenantMail(core.AppointmentCancelled, e.Appointment, e.Tenant)); err != nil {
				return nil, err
			}
			if err := add(AppointmentOwnerMail(OwnerAnnulationProprietaire, e.Appointment, e.Tenant, e.Owner)); err != nil {
				return nil, err
			}
		} else {
			if err := add(AppointmentOwnerMail(OwnerAnnulationLocataire, e.Appointment, e.Tenant, e.Owner)); err != nil {
				return nil, err
			}
		}

	case EventContractCreated:
		if e.Contract != nil && e.Tenant != nil {
			if err := add(ContractCreatedMail(e.Contract, e.Tenant)); err != nil {
				return nil, err
			}
		}

	case EventContractTerminated:
		if e.Contract != nil && e.Tenant != nil {
			if err := add(ContractTerminatedMail(e.Contract, e.Tenant)); err != nil {
				return nil, err
			}
		}

	case EventPaymentCreated, EventPaymentPaid:
		if e.Payment != nil && e.Owner != nil && e.Payment.Statut == core.PaymentPaid {
			if err := add(PaymentReceivedMail(e.Payment, e.Tenant, e.Owner)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
