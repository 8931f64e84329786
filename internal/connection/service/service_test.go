package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	attrmodels "contactshare/internal/attribute/models"
	attrstore "contactshare/internal/attribute/store"
	circleservice "contactshare/internal/circle/service"
	circlestore "contactshare/internal/circle/store"
	"contactshare/internal/connection/models"
	"contactshare/internal/connection/store"
	msgservice "contactshare/internal/message/service"
	msgstore "contactshare/internal/message/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/sentinel"
)

// =============================================================================
// Connection Service Test Suite
// =============================================================================
// Justification for unit tests: pairing symmetry, invitation gating and
// rebinding are multi-record state machines; exercising their edge
// states needs direct control over the directory and both stores.

type directoryEntry struct {
	person   id.PersonID
	verified bool
}

type fakeDirectory struct {
	names           map[id.PersonID]string
	emails          map[string]directoryEntry
	phones          map[string]directoryEntry
	blocked         map[id.PersonID]map[id.PersonID]bool
	pendingLimit    int
	people          int
	invitationFlags map[id.PersonID]bool
	connectionFlags map[id.PersonID]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		names:           make(map[id.PersonID]string),
		emails:          make(map[string]directoryEntry),
		phones:          make(map[string]directoryEntry),
		blocked:         make(map[id.PersonID]map[id.PersonID]bool),
		pendingLimit:    25,
		invitationFlags: make(map[id.PersonID]bool),
		connectionFlags: make(map[id.PersonID]bool),
	}
}

func (f *fakeDirectory) resolve(entries map[string]directoryEntry, key string, verifiedOnly bool) (id.PersonID, error) {
	entry, ok := entries[key]
	if !ok || (verifiedOnly && !entry.verified) {
		return id.PersonID{}, sentinel.ErrNotFound
	}
	return entry.person, nil
}

func (f *fakeDirectory) ResolveVerifiedEmail(_ context.Context, address string) (id.PersonID, error) {
	return f.resolve(f.emails, address, true)
}

func (f *fakeDirectory) ResolveVerifiedPhone(_ context.Context, number string) (id.PersonID, error) {
	return f.resolve(f.phones, number, true)
}

func (f *fakeDirectory) ResolveEmail(_ context.Context, address string) (id.PersonID, error) {
	return f.resolve(f.emails, address, false)
}

func (f *fakeDirectory) ResolvePhone(_ context.Context, number string) (id.PersonID, error) {
	return f.resolve(f.phones, number, false)
}

func (f *fakeDirectory) DisplayName(_ context.Context, person id.PersonID) (string, error) {
	return f.names[person], nil
}

func (f *fakeDirectory) IsBlocked(_ context.Context, person, by id.PersonID) (bool, error) {
	return f.blocked[person][by] || f.blocked[by][person], nil
}

func (f *fakeDirectory) block(person, target id.PersonID) {
	if f.blocked[person] == nil {
		f.blocked[person] = make(map[id.PersonID]bool)
	}
	f.blocked[person][target] = true
}

func (f *fakeDirectory) PendingLimit(_ context.Context, _ id.PersonID) (int, error) {
	return f.pendingLimit, nil
}

func (f *fakeDirectory) CountPeople(_ context.Context) (int, error) {
	return f.people, nil
}

func (f *fakeDirectory) RaiseInvitationFlag(_ context.Context, person id.PersonID) error {
	f.invitationFlags[person] = true
	return nil
}

func (f *fakeDirectory) ClearInvitationFlag(_ context.Context, person id.PersonID) error {
	f.invitationFlags[person] = false
	return nil
}

func (f *fakeDirectory) RaiseConnectionFlag(_ context.Context, person id.PersonID) error {
	f.connectionFlags[person] = true
	return nil
}

type ConnectionServiceSuite struct {
	suite.Suite
	connections *store.InMemoryStore
	messages    *msgservice.Service
	attributes  *attrstore.InMemoryStore
	circleSvc   *circleservice.Service
	directory   *fakeDirectory
	service     *Service

	alice       id.PersonID
	bob         id.PersonID
	aliceCircle id.CircleID
	bobCircle   id.CircleID
}

func TestConnectionServiceSuite(t *testing.T) {
	suite.Run(t, new(ConnectionServiceSuite))
}

type nullEmail struct{}

func (nullEmail) Send(_ context.Context, _, _, _, _ string) error { return nil }

type nullSMS struct{}

func (nullSMS) Send(_ context.Context, _, _ string) error { return nil }

func (s *ConnectionServiceSuite) SetupTest() {
	s.connections = store.NewInMemory()
	s.attributes = attrstore.NewInMemory()
	s.circleSvc = circleservice.New(circlestore.NewInMemory(), s.attributes)
	s.messages = msgservice.New(msgstore.NewInMemory(), nullEmail{}, nullSMS{})
	s.directory = newFakeDirectory()
	s.service = New(s.connections, s.messages, s.circleSvc, s.directory)

	s.alice, s.aliceCircle = s.person("Alice Stone", "alice@example.com", true)
	s.bob, s.bobCircle = s.person("Bob Reed", "bob@example.com", true)
}

// person provisions a directory entry with a disclosure circle around a
// name and an email attribute.
func (s *ConnectionServiceSuite) person(name, email string, verifiedEmail bool) (id.PersonID, id.CircleID) {
	s.T().Helper()
	ctx := context.Background()
	person := id.NewPersonID()

	given, err := attrmodels.NewScalar(person, attrmodels.KindGivenName, name)
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(ctx, given))
	emailAttr, err := attrmodels.NewEmail(person, email, "")
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(ctx, emailAttr))

	circle, err := s.circleSvc.Create(ctx, person, "Work", []id.AttributeID{given.ID, emailAttr.ID})
	s.Require().NoError(err)

	s.directory.names[person] = name
	s.directory.emails[email] = directoryEntry{person: person, verified: verifiedEmail}
	s.directory.people++
	return person, circle.ID
}

func (s *ConnectionServiceSuite) invite(from id.PersonID, circle id.CircleID, email string) *InviteResult {
	s.T().Helper()
	result, err := s.service.Invite(context.Background(), from, models.Address{Email: email}, []id.CircleID{circle}, "", "")
	s.Require().NoError(err)
	s.Require().NotNil(result.Connection)
	return result
}

// =============================================================================
// CanInvite Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestCanInvite() {
	ctx := context.Background()

	s.Run("a stranger is invitable", func() {
		check, err := s.service.CanInvite(ctx, s.alice, models.Address{Email: "bob@example.com"})
		s.NoError(err)
		s.True(check.Allowed)
	})

	s.Run("yourself is not", func() {
		check, err := s.service.CanInvite(ctx, s.alice, models.Address{Email: "alice@example.com"})
		s.NoError(err)
		s.False(check.Allowed)
		s.Equal("self", check.Reason)
	})

	s.Run("a pending invitation blocks re-inviting", func() {
		s.invite(s.alice, s.aliceCircle, "bob@example.com")
		check, err := s.service.CanInvite(ctx, s.alice, models.Address{Email: "bob@example.com"})
		s.NoError(err)
		s.False(check.Allowed)
		s.Equal(string(models.StatusPending), check.Reason)
		s.NotNil(check.Connection)
	})
}

// =============================================================================
// Invite Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestInvite() {
	ctx := context.Background()

	s.Run("an empty target is rejected", func() {
		_, err := s.service.Invite(ctx, s.alice, models.Address{}, []id.CircleID{s.aliceCircle}, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("inviting yourself is rejected", func() {
		_, err := s.service.Invite(ctx, s.alice, models.Address{Person: s.alice}, []id.CircleID{s.aliceCircle}, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("a verified email resolves the recipient", func() {
		result := s.invite(s.alice, s.aliceCircle, "bob@example.com")
		s.Equal(s.bob, result.Connection.To)
		s.Equal(models.StatusPending, result.Connection.Status)

		message, err := s.messages.Get(ctx, result.MessageID)
		s.Require().NoError(err)
		s.Equal(s.bob, message.To)
		s.Equal("Alice Stone", message.FromName)
		s.Equal("alice@example.com", message.FromEmail)
		s.True(message.Emailed)
		s.True(s.directory.invitationFlags[s.bob])
	})

	s.Run("an unknown address stays unresolved", func() {
		result, err := s.service.Invite(ctx, s.alice, models.Address{Email: "stranger@example.com"}, []id.CircleID{s.aliceCircle}, "", "")
		s.Require().NoError(err)
		s.True(result.Connection.To.IsNil())
		s.Equal("stranger@example.com", result.Connection.Email)
	})

	s.Run("a blocked sender gets a dead end", func() {
		carol, _ := s.person("Carol Vane", "carol@example.com", true)
		s.directory.block(carol, s.alice)

		result, err := s.service.Invite(ctx, s.alice, models.Address{Email: "carol@example.com"}, []id.CircleID{s.aliceCircle}, "", "")
		s.Require().NoError(err)
		s.True(result.Blocked)
		s.Nil(result.Connection)
	})

	s.Run("an already connected pair short-circuits", func() {
		dave, daveCircle := s.person("Dave Hill", "dave@example.com", true)
		result := s.invite(s.alice, s.aliceCircle, "dave@example.com")
		message, err := s.service.InviteMessageFor(ctx, result.Connection.ID)
		s.Require().NoError(err)
		_, err = s.service.Accept(ctx, dave, message.ID, []id.CircleID{daveCircle})
		s.Require().NoError(err)

		again, err := s.service.Invite(ctx, s.alice, models.Address{Email: "dave@example.com"}, []id.CircleID{s.aliceCircle}, "", "")
		s.Require().NoError(err)
		s.True(again.Existing)
	})
}

// =============================================================================
// Accept Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestAccept() {
	ctx := context.Background()

	s.Run("accepting pairs the records symmetrically", func() {
		result := s.invite(s.alice, s.aliceCircle, "bob@example.com")

		accepter, err := s.service.Accept(ctx, s.bob, result.MessageID, []id.CircleID{s.bobCircle})
		s.Require().NoError(err)
		s.Equal(models.StatusConnected, accepter.Status)
		s.Equal(s.alice, accepter.To)

		original, err := s.connections.FindByID(ctx, result.Connection.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusConnected, original.Status)
		s.Equal(s.bob, original.To)
		s.Equal(accepter.ID, original.Inverse)
		s.Equal(original.ID, accepter.Inverse)

		connected, err := s.service.AreConnected(ctx, s.alice, s.bob)
		s.NoError(err)
		s.True(connected)
		connected, err = s.service.AreConnected(ctx, s.bob, s.alice)
		s.NoError(err)
		s.True(connected)

		// The invitation is consumed and the inviter is notified.
		invitation, err := s.messages.Get(ctx, result.MessageID)
		s.Require().NoError(err)
		s.True(invitation.Read)
		s.True(s.directory.connectionFlags[s.bob])
		s.True(s.directory.invitationFlags[s.alice])
	})

	s.Run("only the addressee may accept", func() {
		s.person("Carol Vane", "carol2@example.com", true)
		result := s.invite(s.alice, s.aliceCircle, "carol2@example.com")

		_, err := s.service.Accept(ctx, s.bob, result.MessageID, []id.CircleID{s.bobCircle})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("an accepted invitation cannot be accepted twice", func() {
		dave, daveCircle := s.person("Dave Hill", "dave2@example.com", true)
		result := s.invite(s.alice, s.aliceCircle, "dave2@example.com")

		_, err := s.service.Accept(ctx, dave, result.MessageID, []id.CircleID{daveCircle})
		s.Require().NoError(err)
		_, err = s.service.Accept(ctx, dave, result.MessageID, []id.CircleID{daveCircle})
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

// =============================================================================
// Decline Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestDecline() {
	ctx := context.Background()
	result := s.invite(s.alice, s.aliceCircle, "bob@example.com")

	s.Run("declining keeps the record", func() {
		declined, err := s.service.Decline(ctx, s.bob, result.MessageID)
		s.Require().NoError(err)
		s.Equal(models.StatusDeclined, declined.Status)

		invitation, err := s.messages.Get(ctx, result.MessageID)
		s.Require().NoError(err)
		s.True(invitation.Read)
	})

	s.Run("a declined invitation reads as pending to the probe", func() {
		check, err := s.service.CanInvite(ctx, s.alice, models.Address{Email: "bob@example.com"})
		s.NoError(err)
		s.False(check.Allowed)
		s.Equal(string(models.StatusPending), check.Reason)
	})

	s.Run("a declined invitation can still be accepted later", func() {
		accepter, err := s.service.Accept(ctx, s.bob, result.MessageID, []id.CircleID{s.bobCircle})
		s.NoError(err)
		s.Equal(models.StatusConnected, accepter.Status)
	})
}

// =============================================================================
// Revoke and Disconnect Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestRevoke() {
	ctx := context.Background()

	s.Run("a pending invitation can be revoked with its messages", func() {
		result := s.invite(s.alice, s.aliceCircle, "bob@example.com")

		s.Require().NoError(s.service.Revoke(ctx, s.alice, result.Connection.ID))

		_, err := s.connections.FindByID(ctx, result.Connection.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.messages.Get(ctx, result.MessageID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("a connected record cannot be revoked", func() {
		result := s.invite(s.alice, s.aliceCircle, "bob@example.com")
		_, err := s.service.Accept(ctx, s.bob, result.MessageID, []id.CircleID{s.bobCircle})
		s.Require().NoError(err)

		err = s.service.Revoke(ctx, s.alice, result.Connection.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("only the owner may revoke", func() {
		carol, carolCircle := s.person("Carol Vane", "carol3@example.com", true)
		result, err := s.service.Invite(ctx, carol, models.Address{Email: "stranger2@example.com"}, []id.CircleID{carolCircle}, "", "")
		s.Require().NoError(err)

		err = s.service.Revoke(ctx, s.alice, result.Connection.ID)
		s.Error(err)
	})
}

func (s *ConnectionServiceSuite) TestDisconnect() {
	ctx := context.Background()

	result := s.invite(s.alice, s.aliceCircle, "bob@example.com")
	accepter, err := s.service.Accept(ctx, s.bob, result.MessageID, []id.CircleID{s.bobCircle})
	s.Require().NoError(err)

	s.Run("either side tears down both records", func() {
		s.Require().NoError(s.service.Disconnect(ctx, s.bob, accepter.ID))

		_, err := s.connections.FindByID(ctx, accepter.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.connections.FindByID(ctx, result.Connection.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		connected, err := s.service.AreConnected(ctx, s.alice, s.bob)
		s.NoError(err)
		s.False(connected)
	})
}

// =============================================================================
// Availability Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestAvailability() {
	ctx := context.Background()

	s.Run("headroom is the pending limit minus outstanding invitations", func() {
		s.directory.pendingLimit = 3
		available, err := s.service.Availability(ctx, s.alice)
		s.NoError(err)
		s.Equal(3, available)

		s.invite(s.alice, s.aliceCircle, "bob@example.com")
		available, err = s.service.Availability(ctx, s.alice)
		s.NoError(err)
		s.Equal(2, available)
	})

	s.Run("the global cap wins when smaller", func() {
		limited := New(s.connections, s.messages, s.circleSvc, s.directory, WithUsersLimit(s.directory.people+1))
		available, err := limited.Availability(ctx, s.alice)
		s.NoError(err)
		s.Equal(1, available)
	})

	s.Run("an exhausted pool refuses invitations", func() {
		closed := New(s.connections, s.messages, s.circleSvc, s.directory, WithUsersLimit(1))
		_, err := closed.Invite(ctx, s.alice, models.Address{Email: "anyone@example.com"}, []id.CircleID{s.aliceCircle}, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

// =============================================================================
// Rebind Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestRebindAddresses() {
	ctx := context.Background()

	result, err := s.service.Invite(ctx, s.alice, models.Address{Email: "late@example.com"}, []id.CircleID{s.aliceCircle}, "", "")
	s.Require().NoError(err)
	s.Require().True(result.Connection.To.IsNil())

	late, _ := s.person("Late Arrival", "late@example.com", true)

	s.Require().NoError(s.service.RebindAddresses(ctx, late, []string{"late@example.com"}))

	rebound, err := s.connections.FindByID(ctx, result.Connection.ID)
	s.Require().NoError(err)
	s.Equal(late, rebound.To)

	message, err := s.messages.Get(ctx, result.MessageID)
	s.Require().NoError(err)
	s.Equal(late, message.To)
	s.Equal("Late Arrival", message.ToName)
	s.True(s.directory.invitationFlags[late])

	// The rebound invitation is acceptable like any other.
	incoming, err := s.service.IncomingInvites(ctx, late)
	s.Require().NoError(err)
	s.Require().Len(incoming, 1)
	s.Equal(result.MessageID, incoming[0].MessageID)
}

// =============================================================================
// Disclosure Update Tests
// =============================================================================

func (s *ConnectionServiceSuite) TestShareCircleAndNotes() {
	ctx := context.Background()

	result := s.invite(s.alice, s.aliceCircle, "bob@example.com")
	accepter, err := s.service.Accept(ctx, s.bob, result.MessageID, []id.CircleID{s.bobCircle})
	s.Require().NoError(err)

	s.Run("notes land on the caller's own side", func() {
		s.Require().NoError(s.service.SetPersonalNote(ctx, s.alice, result.Connection.ID, "met at the conference"))

		own, err := s.connections.FindByID(ctx, result.Connection.ID)
		s.Require().NoError(err)
		s.Equal("met at the conference", own.PersonalNote)

		other, err := s.connections.FindByID(ctx, accepter.ID)
		s.Require().NoError(err)
		s.Empty(other.PersonalNote)
	})

	s.Run("sharing a new circle flags the counterparty view", func() {
		given, err := attrmodels.NewScalar(s.bob, attrmodels.KindGivenName, "Bobby")
		s.Require().NoError(err)
		s.Require().NoError(s.attributes.Create(ctx, given))
		fresh, err := s.circleSvc.Create(ctx, s.bob, "Friends", []id.AttributeID{given.ID})
		s.Require().NoError(err)

		// Bob updates what he shares on the record alice holds.
		own, err := s.service.ShareCircle(ctx, s.bob, result.Connection.ID, []id.CircleID{fresh.ID})
		s.Require().NoError(err)
		s.Equal([]id.CircleID{fresh.ID}, own.Circles)
		s.True(own.UpdateFlag)

		views, err := s.service.ListConnected(ctx, s.alice, true)
		s.Require().NoError(err)
		s.Require().Len(views, 1)

		// The flag clears once read.
		views, err = s.service.ListConnected(ctx, s.alice, true)
		s.Require().NoError(err)
		s.Empty(views)
	})

	s.Run("membership changes flag every connection sharing the circle", func() {
		s.Require().NoError(s.service.FlagCircleUpdate(ctx, s.aliceCircle))

		views, err := s.service.ListConnected(ctx, s.bob, true)
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(result.Connection.ID, views[0].Connection.ID)
	})
}
