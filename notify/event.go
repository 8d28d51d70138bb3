package notify

import (
	"context"

	"louyass/core"
)

// EventType names a domain event pushed to mail and realtime subscribers
type EventType string

const (
	EventAppointmentCreated EventType = "appointment.created"
	EventAppointmentUpdated EventType = "appointment.updated"
	EventAppointmentDeleted EventType = "appointment.deleted"
	EventContractCreated    EventType = "contract.created"
	EventContractTerminated EventType = "contract.terminated"
	EventPaymentCreated     EventType = "payment.created"
	EventPaymentPaid        EventType = "payment.paid"
	EventMessageCreated     EventType = "message.created"
)

// Event describes something that happened to a rental resource. Only the
// fields relevant to Type are set. Tenant and Owner are the two parties of
// the room concerned; Actor is the role of the user who triggered it.
type Event struct {
	Type  EventType
	Actor core.Role

	Appointment *core.Appointment
	Contract    *core.Contract
	Payment     *core.Payment
	Message     *core.Message

	Tenant *core.User
	Owner  *core.User
}

// Recipients returns the ids of the users who should see the event live
func (e Event) Recipients() []int64 {
	if e.Message != nil {
		return []int64{e.Message.DestinataireID}
	}
	var ids []int64
	if e.Tenant != nil {
		ids = append(ids, e.Tenant.ID)
	}
	if e.Owner != nil {
		ids = append(ids, e.Owner.ID)
	}
	return ids
}

// Payload returns the resource carried by the event
func (e Event) Payload() interface{} {
	switch {
	case e.Appointment != nil:
		return e.Appointment
	case e.Contract != nil:
		return e.Contract
	case e.Payment != nil:
		return e.Payment
	case e.Message != nil:
		return e.Message
	default:
		return nil
	}
}

// Publisher receives domain events. Implementations must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout forwards every event to each publisher in order
type Fanout []Publisher

// Publish implements Publisher
func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}

// Discard drops every event
type Discard struct{}

// Publish implements Publisher
func (Discard) Publish(context.Context, Event) {}
