package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	attrmodels "contactshare/internal/attribute/models"
	attrstore "contactshare/internal/attribute/store"
	"contactshare/internal/circle/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
)

// =============================================================================
// Circle Service Test Suite
// =============================================================================
// Justification for unit tests: default-circle construction, membership
// rules and display-name assembly carry ordering invariants that are hard
// to pin down through the HTTP surface.

type CircleServiceSuite struct {
	suite.Suite
	store      *store.InMemoryStore
	attributes *attrstore.InMemoryStore
	service    *Service
	owner      id.PersonID
}

func TestCircleServiceSuite(t *testing.T) {
	suite.Run(t, new(CircleServiceSuite))
}

func (s *CircleServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.attributes = attrstore.NewInMemory()
	s.service = New(s.store, s.attributes)
	s.owner = id.NewPersonID()
}

func (s *CircleServiceSuite) newEmail(address string) *attrmodels.Attribute {
	s.T().Helper()
	attr, err := attrmodels.NewEmail(s.owner, address, "")
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(context.Background(), attr))
	return attr
}

func (s *CircleServiceSuite) newPhone(number string) *attrmodels.Attribute {
	s.T().Helper()
	attr, err := attrmodels.NewPhone(s.owner, number, "", "1", attrmodels.PhoneMobile)
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(context.Background(), attr))
	return attr
}

func (s *CircleServiceSuite) newScalar(kind attrmodels.AttributeKind, value string) *attrmodels.Attribute {
	s.T().Helper()
	attr, err := attrmodels.NewScalar(s.owner, kind, value)
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(context.Background(), attr))
	return attr
}

// =============================================================================
// CreateDefaults Tests
// =============================================================================

func (s *CircleServiceSuite) TestCreateDefaults() {
	ctx := context.Background()

	s.Run("emails join work and personal, phones personal only", func() {
		email := s.newEmail("alice@example.com")
		phone := s.newPhone("+15550100")
		given := s.newScalar(attrmodels.KindGivenName, "Alice")

		circles, err := s.service.CreateDefaults(ctx, s.owner, []*attrmodels.Attribute{email, phone, given})
		s.Require().NoError(err)
		s.Require().Len(circles, 2)

		work := circles[0]
		s.Equal(WorkCircleName, work.Name)
		s.True(work.Default)
		s.Contains(work.Attributes, email.ID)
		s.NotContains(work.Attributes, phone.ID)

		personal := circles[1]
		s.Equal(PersonalCircleName, personal.Name)
		s.False(personal.Default)
		s.Contains(personal.Attributes, email.ID)
		s.Contains(personal.Attributes, phone.ID)
	})

	s.Run("public circle appears only when enabled", func() {
		svc := New(s.store, s.attributes, WithPublicCircle())
		owner := id.NewPersonID()
		email, err := attrmodels.NewEmail(owner, "bob@example.com", "")
		s.Require().NoError(err)
		s.Require().NoError(s.attributes.Create(ctx, email))
		given, err := attrmodels.NewScalar(owner, attrmodels.KindGivenName, "Bob")
		s.Require().NoError(err)
		s.Require().NoError(s.attributes.Create(ctx, given))

		circles, err := svc.CreateDefaults(ctx, owner, []*attrmodels.Attribute{email, given})
		s.Require().NoError(err)
		s.Require().Len(circles, 3)
		s.Equal(PublicCircleName, circles[2].Name)
		s.True(circles[2].Public)
	})

	s.Run("no usable attributes is a validation error", func() {
		_, err := s.service.CreateDefaults(ctx, id.NewPersonID(), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Create / Delete Tests
// =============================================================================

func (s *CircleServiceSuite) TestCreateAndDelete() {
	ctx := context.Background()
	email := s.newEmail("carol@example.com")

	s.Run("creating with a foreign attribute is forbidden", func() {
		foreign, err := attrmodels.NewEmail(id.NewPersonID(), "other@example.com", "")
		s.Require().NoError(err)
		s.Require().NoError(s.attributes.Create(ctx, foreign))

		_, err = s.service.Create(ctx, s.owner, "Friends", []id.AttributeID{foreign.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("creating with no attributes is a validation error", func() {
		_, err := s.service.Create(ctx, s.owner, "Empty", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("a private circle can be created and deleted", func() {
		circle, err := s.service.Create(ctx, s.owner, "Friends", []id.AttributeID{email.ID})
		s.Require().NoError(err)
		s.False(circle.Default)

		s.NoError(s.service.Delete(ctx, s.owner, circle.ID))
		_, err = s.service.Get(ctx, s.owner, circle.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("the default circle cannot be deleted", func() {
		given := s.newScalar(attrmodels.KindGivenName, "Carol")
		circles, err := s.service.CreateDefaults(ctx, s.owner, []*attrmodels.Attribute{email, given})
		s.Require().NoError(err)

		err = s.service.Delete(ctx, s.owner, circles[0].ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})
}

// =============================================================================
// Membership Tests
// =============================================================================

func (s *CircleServiceSuite) TestToggleMembership() {
	ctx := context.Background()
	email := s.newEmail("dave@example.com")
	phone := s.newPhone("+15550101")

	circle, err := s.service.Create(ctx, s.owner, "Friends", []id.AttributeID{email.ID})
	s.Require().NoError(err)

	s.Run("adding is idempotent", func() {
		updated, err := s.service.ToggleMembership(ctx, s.owner, circle.ID, phone.ID, true)
		s.Require().NoError(err)
		s.Len(updated.Attributes, 2)

		updated, err = s.service.ToggleMembership(ctx, s.owner, circle.ID, phone.ID, true)
		s.Require().NoError(err)
		s.Len(updated.Attributes, 2)
	})

	s.Run("removing works until the last member", func() {
		updated, err := s.service.ToggleMembership(ctx, s.owner, circle.ID, phone.ID, false)
		s.Require().NoError(err)
		s.Len(updated.Attributes, 1)

		_, err = s.service.ToggleMembership(ctx, s.owner, circle.ID, email.ID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("a non-owner cannot touch the circle", func() {
		_, err := s.service.ToggleMembership(ctx, id.NewPersonID(), circle.ID, phone.ID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// =============================================================================
// Display Name and Share Payload Tests
// =============================================================================

func (s *CircleServiceSuite) TestSharePayload() {
	ctx := context.Background()

	prefix := s.newScalar(attrmodels.KindPrefix, "Dr.")
	given := s.newScalar(attrmodels.KindGivenName, "Erin")
	family := s.newScalar(attrmodels.KindFamilyName, "Stone")
	email := s.newEmail("erin@example.com")
	phone := s.newPhone("+15550102")

	circle, err := s.service.Create(ctx, s.owner, "Everything", []id.AttributeID{
		family.ID, email.ID, prefix.ID, phone.ID, given.ID,
	})
	s.Require().NoError(err)

	s.Run("display name follows prefix given family order", func() {
		name, err := s.service.DisplayName(ctx, circle)
		s.NoError(err)
		s.Equal("Dr. Erin Stone", name)
	})

	s.Run("payload carries name and first contact values", func() {
		payload, err := s.service.BuildSharePayload(ctx, s.owner, []id.CircleID{circle.ID})
		s.NoError(err)
		s.Equal("Dr. Erin Stone", payload.FromName)
		s.Equal("erin@example.com", payload.FromEmail)
		s.Equal("+15550102", payload.FromPhone)
	})

	s.Run("sharing a foreign circle fails", func() {
		_, err := s.service.BuildSharePayload(ctx, id.NewPersonID(), []id.CircleID{circle.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("sharing no circles is a validation error", func() {
		_, err := s.service.BuildSharePayload(ctx, s.owner, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// RemoveFromAll Tests
// =============================================================================

func (s *CircleServiceSuite) TestRemoveFromAll() {
	ctx := context.Background()
	email := s.newEmail("frank@example.com")
	phone := s.newPhone("+15550103")

	both, err := s.service.Create(ctx, s.owner, "Both", []id.AttributeID{email.ID, phone.ID})
	s.Require().NoError(err)
	only, err := s.service.Create(ctx, s.owner, "Only", []id.AttributeID{email.ID})
	s.Require().NoError(err)

	s.Require().NoError(s.service.RemoveFromAll(ctx, email.ID))

	updated, err := s.service.Get(ctx, s.owner, both.ID)
	s.Require().NoError(err)
	s.NotContains(updated.Attributes, email.ID)

	// Last member stays in place.
	kept, err := s.service.Get(ctx, s.owner, only.ID)
	s.Require().NoError(err)
	s.Contains(kept.Attributes, email.ID)
}
