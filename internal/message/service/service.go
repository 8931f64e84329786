package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"contactshare/internal/message/models"
	"contactshare/internal/platform/metrics"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	Save(ctx context.Context, message *models.Message) error
	Delete(ctx context.Context, messageID id.MessageID) error
	ListByConnection(ctx context.Context, connectionID id.ConnectionID) ([]*models.Message, error)
	DeleteByConnection(ctx context.Context, connectionID id.ConnectionID) error
	ListUnclaimed(ctx context.Context, kind models.MessageKind, addresses []string) ([]*models.Message, error)
	ListByRecipient(ctx context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error)
	ListBySender(ctx context.Context, person id.PersonID, kind models.MessageKind) ([]*models.Message, error)
}

// EmailChannel delivers a message over email.
type EmailChannel interface {
	Send(ctx context.Context, to, fromName, subject, body string) error
}

// SMSChannel delivers a message over SMS.
type SMSChannel interface {
	Send(ctx context.Context, to, text string) error
}

// Service is the notification message ledger. Messages are recorded
// before any delivery attempt; delivery failure never rolls a record
// back.
type Service struct {
	messages Store
	email    EmailChannel
	sms      SMSChannel
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(messages Store, email EmailChannel, sms SMSChannel, opts ...Option) *Service {
	s := &Service{messages: messages, email: email, sms: sms, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record persists the message without delivering it.
func (s *Service) Record(ctx context.Context, message *models.Message) error {
	if message.Email == "" && message.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "message needs a destination email or phone")
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record message")
	}
	return nil
}

// Deliver sends the message over every channel with a populated address,
// concurrently when both are present. Each successful channel increments
// the sent counter and sets its delivered flag; a failed channel leaves
// the record intact and is surfaced as a channel failure.
func (s *Service) Deliver(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	message, err := s.find(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var emailed, texted bool
	group, groupCtx := errgroup.WithContext(ctx)
	if message.Email != "" {
		group.Go(func() error {
			if err := s.email.Send(groupCtx, message.Email, message.FromName, message.Subject, message.Body); err != nil {
				s.logger.Error("email delivery failed",
					"message_id", message.ID, "error", err)
				s.countFailure("email")
				return err
			}
			emailed = true
			return nil
		})
	}
	if message.Phone != "" {
		group.Go(func() error {
			if err := s.sms.Send(groupCtx, message.Phone, message.Body); err != nil {
				s.logger.Error("sms delivery failed",
					"message_id", message.ID, "error", err)
				s.countFailure("sms")
				return err
			}
			texted = true
			return nil
		})
	}
	channelErr := group.Wait()

	if emailed {
		message.Emailed = true
		message.Sent++
		s.countDelivered("email")
	}
	if texted {
		message.Texted = true
		message.Sent++
		s.countDelivered("sms")
	}
	if emailed || texted {
		if err := s.messages.Save(ctx, message); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save delivered message")
		}
	}
	if channelErr != nil {
		return message, dErrors.Wrap(channelErr, dErrors.CodeChannelFailure, "message delivery failed")
	}
	return message, nil
}

// Resend re-delivers an unread message, bounded by the resend ceiling.
func (s *Service) Resend(ctx context.Context, caller id.PersonID, messageID id.MessageID) (*models.Message, error) {
	message, err := s.find(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.From != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "message belongs to another sender")
	}
	if !message.CanResend() {
		return nil, dErrors.New(dErrors.CodeRetryExceeded, "cannot resend message at this time")
	}
	return s.Deliver(ctx, messageID)
}

// MarkRead flags the message as read by its recipient.
func (s *Service) MarkRead(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	message, err := s.find(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Read {
		return message, nil
	}
	message.Read = true
	if err := s.messages.Save(ctx, message); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save message")
	}
	return message, nil
}

// Get loads one message.
func (s *Service) Get(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	return s.find(ctx, messageID)
}

// Save persists caller mutations, e.g. recipient binding during rebind.
func (s *Service) Save(ctx context.Context, message *models.Message) error {
	if err := s.messages.Save(ctx, message); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save message")
	}
	return nil
}

// ListByConnection returns the messages attached to a connection.
func (s *Service) ListByConnection(ctx context.Context, connectionID id.ConnectionID) ([]*models.Message, error) {
	messages, err := s.messages.ListByConnection(ctx, connectionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list connection messages")
	}
	return messages, nil
}

// DeleteByConnection drops every message under a connection. Used by
// revoke and disconnect.
func (s *Service) DeleteByConnection(ctx context.Context, connectionID id.ConnectionID) error {
	if err := s.messages.DeleteByConnection(ctx, connectionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete connection messages")
	}
	return nil
}

// ListUnclaimed finds messages of a kind with no recipient whose address
// matches. Used to rebind invitations when an attribute verifies.
func (s *Service) ListUnclaimed(ctx context.Context, kind models.MessageKind, addresses []string) ([]*models.Message, error) {
	messages, err := s.messages.ListUnclaimed(ctx, kind, addresses)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list unclaimed messages")
	}
	return messages, nil
}

// IncomingInvites lists invite messages addressed to the person.
func (s *Service) IncomingInvites(ctx context.Context, person id.PersonID) ([]*models.Message, error) {
	messages, err := s.messages.ListByRecipient(ctx, person, models.KindInvite)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list incoming invites")
	}
	return messages, nil
}

// OutgoingInvites lists invite messages the person has sent.
func (s *Service) OutgoingInvites(ctx context.Context, person id.PersonID) ([]*models.Message, error) {
	messages, err := s.messages.ListBySender(ctx, person, models.KindInvite)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list outgoing invites")
	}
	return messages, nil
}

// LatestBySender returns the newest message of the kind the person has
// sent, or not found.
func (s *Service) LatestBySender(ctx context.Context, person id.PersonID, kind models.MessageKind) (*models.Message, error) {
	messages, err := s.messages.ListBySender(ctx, person, kind)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sent messages")
	}
	if len(messages) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no such message")
	}
	return messages[0], nil
}

func (s *Service) find(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load message")
	}
	return message, nil
}

func (s *Service) countDelivered(channel string) {
	if s.metrics != nil {
		s.metrics.MessagesDelivered.WithLabelValues(channel).Inc()
	}
}

func (s *Service) countFailure(channel string) {
	if s.metrics != nil {
		s.metrics.DeliveryFailures.WithLabelValues(channel).Inc()
	}
}
