package service

import (
	"context"

	"louyass/core"
	"louyass/notify"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// MessageCreate is the body of a direct message
type MessageCreate struct {
	DestinataireID int64  `json:"destinataire_id" validate:"required,gt=0"`
	Contenu        string `json:"contenu" validate:"required,max=5000"`
}

// MessageService carries direct messages between users
type MessageService struct {
	messages  MessageStore
	users     UserReader
	publisher notify.Publisher
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
}

// NewMessageService creates the message service. publisher may be nil.
func NewMessageService(messages MessageStore, users UserReader, publisher notify.Publisher, clock clockwork.Clock, logger *zap.SugaredLogger) *MessageService {
	if messages == nil || users == nil {
		panic("message service storages are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MessageService{
		messages:  messages,
		users:     users,
		publisher: publisherOrDiscard(publisher),
		clock:     clock,
		logger:    logger,
	}
}

// Send delivers a message from the caller. The recipient is pushed the
// message live when connected.
func (s *MessageService) Send(ctx context.Context, caller *core.User, in MessageCreate) (*core.Message, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	recipient, err := s.users.GetUserByID(ctx, in.DestinataireID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Destinataire non trouvé.", "load recipient")
	}

	m := &core.Message{
		ExpediteurID:      caller.ID,
		DestinataireID:    recipient.ID,
		Contenu:           in.Contenu,
		DateEnvoi:         s.clock.Now().UTC(),
		ExpediteurEmail:   caller.Email,
		DestinataireEmail: recipient.Email,
	}
	if err := s.messages.CreateMessage(ctx, m); err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Destinataire non trouvé.", "create message")
	}
	s.publisher.Publish(ctx, notify.Event{Type: notify.EventMessageCreated, Actor: caller.Role, Message: m})
	return m, nil
}

// ListMine returns the caller's sent and received messages, newest first
func (s *MessageService) ListMine(ctx context.Context, caller *core.User, isRead *bool, skip, limit int) ([]core.Message, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validatePage(skip, limit); err != nil {
		return nil, err
	}
	items, err := s.messages.ListMessagesForUser(ctx, caller.ID, isRead, limit, skip)
	if err != nil {
		return nil, internal("list messages", err)
	}
	return items, nil
}

// Conversation returns the messages exchanged with another user, oldest first
func (s *MessageService) Conversation(ctx context.Context, caller *core.User, otherID int64, skip, limit int) ([]core.Message, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validatePage(skip, limit); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, otherID); err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Cet utilisateur n'existe pas.", "load user")
	}
	items, err := s.messages.ListConversation(ctx, caller.ID, otherID, limit, skip)
	if err != nil {
		return nil, internal("list conversation", err)
	}
	return items, nil
}

// MarkRead flags a received message as read
func (s *MessageService) MarkRead(ctx context.Context, caller *core.User, id int64) (*core.Message, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.DestinataireID != caller.ID {
		return nil, forbidden("Vous n'êtes pas autorisé à marquer ce message comme lu.")
	}
	if !m.Lu {
		if err := s.messages.MarkRead(ctx, id); err != nil {
			return nil, notFoundOr(err, storage.ErrMessageNotFound, "Message non trouvé.", "mark message read")
		}
		m.Lu = true
	}
	return m, nil
}

// Delete removes a message. Only its sender may.
func (s *MessageService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	m, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if m.ExpediteurID != caller.ID {
		return forbidden("Vous n'êtes pas autorisé à supprimer ce message.")
	}
	if err := s.messages.DeleteMessage(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrMessageNotFound, "Message non trouvé.", "delete message")
	}
	return nil
}

func (s *MessageService) load(ctx context.Context, id int64) (*core.Message, error) {
	m, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrMessageNotFound, "Message non trouvé.", "load message")
	}
	return m, nil
}
