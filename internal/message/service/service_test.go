package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"contactshare/internal/message/models"
	"contactshare/internal/message/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
)

// =============================================================================
// Message Service Test Suite
// =============================================================================
// Justification for unit tests: delivery fan-out, the resend ceiling and
// read-state transitions are timing-sensitive behaviors that are awkward to
// drive through the HTTP surface.

type fakeEmailChannel struct {
	sent []string
	err  error
}

func (c *fakeEmailChannel) Send(_ context.Context, to, _, _, _ string) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, to)
	return nil
}

type fakeSMSChannel struct {
	sent []string
	err  error
}

func (c *fakeSMSChannel) Send(_ context.Context, to, _ string) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, to)
	return nil
}

type MessageServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	email   *fakeEmailChannel
	sms     *fakeSMSChannel
	service *Service
}

func TestMessageServiceSuite(t *testing.T) {
	suite.Run(t, new(MessageServiceSuite))
}

func (s *MessageServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.email = &fakeEmailChannel{}
	s.sms = &fakeSMSChannel{}
	s.service = New(s.store, s.email, s.sms)
}

func (s *MessageServiceSuite) record(from id.PersonID, email, phone string) *models.Message {
	s.T().Helper()
	message := models.New(from, models.KindInvite, email, phone)
	s.Require().NoError(s.service.Record(context.Background(), message))
	return message
}

// =============================================================================
// Record Tests
// =============================================================================

func (s *MessageServiceSuite) TestRecord() {
	ctx := context.Background()

	s.Run("rejects a message with no destination", func() {
		message := models.New(id.NewPersonID(), models.KindInvite, "", "")
		err := s.service.Record(ctx, message)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("persists without delivering", func() {
		message := s.record(id.NewPersonID(), "alice@example.com", "")
		loaded, err := s.service.Get(ctx, message.ID)
		s.NoError(err)
		s.Equal(0, loaded.Sent)
		s.Empty(s.email.sent)
	})
}

// =============================================================================
// Deliver Tests
// =============================================================================

func (s *MessageServiceSuite) TestDeliver() {
	ctx := context.Background()

	s.Run("delivers email only when no phone is set", func() {
		message := s.record(id.NewPersonID(), "alice@example.com", "")

		delivered, err := s.service.Deliver(ctx, message.ID)
		s.NoError(err)
		s.True(delivered.Emailed)
		s.False(delivered.Texted)
		s.Equal(1, delivered.Sent)
		s.Equal([]string{"alice@example.com"}, s.email.sent)
		s.Empty(s.sms.sent)
	})

	s.Run("delivers over both channels when both addresses are set", func() {
		message := s.record(id.NewPersonID(), "bob@example.com", "+15550100")

		delivered, err := s.service.Deliver(ctx, message.ID)
		s.NoError(err)
		s.True(delivered.Emailed)
		s.True(delivered.Texted)
		s.Equal(2, delivered.Sent)
	})

	s.Run("one failed channel surfaces but the other still lands", func() {
		s.email.err = errors.New("relay down")
		message := s.record(id.NewPersonID(), "carol@example.com", "+15550101")

		delivered, err := s.service.Deliver(ctx, message.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeChannelFailure))
		s.Require().NotNil(delivered)
		s.False(delivered.Emailed)
		s.True(delivered.Texted)
		s.Equal(1, delivered.Sent)
	})

	s.Run("unknown message is not found", func() {
		_, err := s.service.Deliver(ctx, id.NewMessageID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Resend Tests
// =============================================================================

func (s *MessageServiceSuite) TestResend() {
	ctx := context.Background()
	sender := id.NewPersonID()

	s.Run("stops at the resend ceiling", func() {
		message := s.record(sender, "dave@example.com", "")

		for range models.ResendCeiling {
			_, err := s.service.Resend(ctx, sender, message.ID)
			s.Require().NoError(err)
		}

		_, err := s.service.Resend(ctx, sender, message.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeRetryExceeded))
	})

	s.Run("read messages cannot be resent", func() {
		message := s.record(sender, "erin@example.com", "")
		_, err := s.service.MarkRead(ctx, message.ID)
		s.Require().NoError(err)

		_, err = s.service.Resend(ctx, sender, message.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeRetryExceeded))
	})

	s.Run("only the sender may resend", func() {
		message := s.record(sender, "frank@example.com", "")
		_, err := s.service.Resend(ctx, id.NewPersonID(), message.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// =============================================================================
// MarkRead Tests
// =============================================================================

func (s *MessageServiceSuite) TestMarkRead() {
	ctx := context.Background()

	s.Run("flags the message and is idempotent", func() {
		message := s.record(id.NewPersonID(), "gail@example.com", "")

		read, err := s.service.MarkRead(ctx, message.ID)
		s.NoError(err)
		s.True(read.Read)

		again, err := s.service.MarkRead(ctx, message.ID)
		s.NoError(err)
		s.True(again.Read)
	})
}

// =============================================================================
// Invite Listing Tests
// =============================================================================

func (s *MessageServiceSuite) TestInviteListings() {
	ctx := context.Background()
	sender := id.NewPersonID()
	recipient := id.NewPersonID()

	invite := models.New(sender, models.KindInvite, "harry@example.com", "")
	invite.To = recipient
	s.Require().NoError(s.service.Record(ctx, invite))

	s.Run("incoming lists invites addressed to the person", func() {
		incoming, err := s.service.IncomingInvites(ctx, recipient)
		s.NoError(err)
		s.Len(incoming, 1)
	})

	s.Run("outgoing lists invites the person sent", func() {
		outgoing, err := s.service.OutgoingInvites(ctx, sender)
		s.NoError(err)
		s.Len(outgoing, 1)
	})

	s.Run("latest by sender prefers the newest record", func() {
		second := models.New(sender, models.KindInvite, "iris@example.com", "")
		s.Require().NoError(s.service.Record(ctx, second))

		latest, err := s.service.LatestBySender(ctx, sender, models.KindInvite)
		s.NoError(err)
		s.Equal(second.ID, latest.ID)
	})

	s.Run("latest by sender with no records is not found", func() {
		_, err := s.service.LatestBySender(ctx, id.NewPersonID(), models.KindInvite)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Unclaimed Rebind Tests
// =============================================================================

func (s *MessageServiceSuite) TestListUnclaimed() {
	ctx := context.Background()

	unclaimed := models.New(id.NewPersonID(), models.KindInvite, "new@example.com", "")
	s.Require().NoError(s.service.Record(ctx, unclaimed))

	claimed := models.New(id.NewPersonID(), models.KindInvite, "new@example.com", "")
	claimed.To = id.NewPersonID()
	s.Require().NoError(s.service.Record(ctx, claimed))

	found, err := s.service.ListUnclaimed(ctx, models.KindInvite, []string{"new@example.com"})
	s.NoError(err)
	s.Require().Len(found, 1)
	s.Equal(unclaimed.ID, found[0].ID)
}
