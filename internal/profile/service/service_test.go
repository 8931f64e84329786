package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	attrmodels "contactshare/internal/attribute/models"
	circlemodels "contactshare/internal/circle/models"
	"contactshare/internal/profile/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/sentinel"
)

// =============================================================================
// Profile Service Test Suite
// =============================================================================
// Justification for unit tests: provisioning is a multi-step saga whose
// rollback guarantees can only be checked by failing individual steps,
// which no end-to-end flow can do deterministically.

type fakeAttributes struct {
	records map[id.AttributeID]*attrmodels.Attribute
	failAt  attrmodels.AttributeKind
}

func newFakeAttributes() *fakeAttributes {
	return &fakeAttributes{records: make(map[id.AttributeID]*attrmodels.Attribute)}
}

func (f *fakeAttributes) add(attr *attrmodels.Attribute, err error) (*attrmodels.Attribute, error) {
	if err != nil {
		return nil, err
	}
	if f.failAt != "" && attr.Kind == f.failAt {
		return nil, errors.New("attribute backend down")
	}
	f.records[attr.ID] = attr
	return attr, nil
}

func (f *fakeAttributes) CreateEmail(_ context.Context, owner id.PersonID, address, label string) (*attrmodels.Attribute, error) {
	return f.add(attrmodels.NewEmail(owner, address, label))
}

func (f *fakeAttributes) CreatePhone(_ context.Context, owner id.PersonID, number, label, countryCode string, phoneType attrmodels.PhoneType) (*attrmodels.Attribute, error) {
	return f.add(attrmodels.NewPhone(owner, number, label, countryCode, phoneType))
}

func (f *fakeAttributes) CreateScalar(_ context.Context, owner id.PersonID, kind attrmodels.AttributeKind, value string) (*attrmodels.Attribute, error) {
	return f.add(attrmodels.NewScalar(owner, kind, value))
}

func (f *fakeAttributes) Destroy(_ context.Context, attributeID id.AttributeID) error {
	delete(f.records, attributeID)
	return nil
}

func (f *fakeAttributes) ListByOwner(_ context.Context, owner id.PersonID) ([]*attrmodels.Attribute, error) {
	var out []*attrmodels.Attribute
	for _, attr := range f.records {
		if attr.Owner == owner {
			out = append(out, attr)
		}
	}
	return out, nil
}

func (f *fakeAttributes) FindByValue(_ context.Context, kind attrmodels.AttributeKind, value string, verifiedOnly bool) (*attrmodels.Attribute, error) {
	for _, attr := range f.records {
		if attr.Kind == kind && attr.ResolvedValue() == value && (!verifiedOnly || attr.Verified) {
			return attr, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

type fakeCircles struct {
	circles map[id.CircleID]*circlemodels.Circle
	fail    bool
}

func newFakeCircles() *fakeCircles {
	return &fakeCircles{circles: make(map[id.CircleID]*circlemodels.Circle)}
}

func (f *fakeCircles) CreateDefaults(_ context.Context, owner id.PersonID, attributes []*attrmodels.Attribute) ([]*circlemodels.Circle, error) {
	if f.fail {
		return nil, errors.New("circle backend down")
	}
	var members []id.AttributeID
	for _, attr := range attributes {
		members = append(members, attr.ID)
	}
	work, err := circlemodels.New(owner, "Work", members, 0)
	if err != nil {
		return nil, err
	}
	work.Default = true
	personal, err := circlemodels.New(owner, "Personal", members, 1)
	if err != nil {
		return nil, err
	}
	f.circles[work.ID] = work
	f.circles[personal.ID] = personal
	return []*circlemodels.Circle{work, personal}, nil
}

func (f *fakeCircles) Destroy(_ context.Context, circleID id.CircleID) error {
	delete(f.circles, circleID)
	return nil
}

type fakeTokens struct {
	bound     map[id.PersonID]id.CircleID
	destroyed int
	fail      bool
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{bound: make(map[id.PersonID]id.CircleID)}
}

func (f *fakeTokens) CreateBound(_ context.Context, owner id.PersonID, circleID id.CircleID) error {
	if f.fail {
		return errors.New("token backend down")
	}
	f.bound[owner] = circleID
	return nil
}

func (f *fakeTokens) DestroyForOwner(_ context.Context, owner id.PersonID) error {
	delete(f.bound, owner)
	f.destroyed++
	return nil
}

type ProfileServiceSuite struct {
	suite.Suite
	profiles   *store.InMemoryStore
	blocks     *store.InMemoryBlockStore
	attributes *fakeAttributes
	circles    *fakeCircles
	tokens     *fakeTokens
	service    *Service
}

func TestProfileServiceSuite(t *testing.T) {
	suite.Run(t, new(ProfileServiceSuite))
}

func (s *ProfileServiceSuite) SetupTest() {
	s.profiles = store.NewInMemory()
	s.blocks = store.NewInMemoryBlockStore()
	s.attributes = newFakeAttributes()
	s.circles = newFakeCircles()
	s.tokens = newFakeTokens()
	s.service = New(s.profiles, s.blocks, s.attributes, s.circles)
	s.service.SetTokens(s.tokens)
}

func validInput() ProvisionInput {
	return ProvisionInput{
		FullName:   "Alice Stone",
		GivenName:  "Alice",
		FamilyName: "Stone",
		Email:      "alice@example.com",
	}
}

// =============================================================================
// Provision Tests
// =============================================================================

func (s *ProfileServiceSuite) TestProvision() {
	ctx := context.Background()

	s.Run("creates attributes, profile, circles and token", func() {
		person := id.NewPersonID()
		input := validInput()
		input.Phone = "+15550100"

		profile, err := s.service.Provision(ctx, person, input)
		s.Require().NoError(err)
		s.Equal("Alice Stone", profile.Name)
		s.Equal("alice@example.com", profile.PrimaryEmail)
		s.Len(profile.Attributes, 5)
		s.Len(profile.Circles, 2)
		s.False(profile.DefaultCircle.IsNil())
		s.Contains(s.tokens.bound, person)
		s.Equal(profile.DefaultCircle, s.tokens.bound[person])
	})

	s.Run("missing names are rejected", func() {
		input := validInput()
		input.GivenName = ""
		_, err := s.service.Provision(ctx, id.NewPersonID(), input)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing email is rejected", func() {
		input := validInput()
		input.Email = ""
		_, err := s.service.Provision(ctx, id.NewPersonID(), input)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("a second profile for the same person conflicts and rolls back", func() {
		person := id.NewPersonID()
		_, err := s.service.Provision(ctx, person, validInput())
		s.Require().NoError(err)
		attributesAfterFirst := len(s.attributes.records)

		_, err = s.service.Provision(ctx, person, validInput())
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Len(s.attributes.records, attributesAfterFirst)
	})

	s.Run("token failure rolls back everything", func() {
		s.tokens.fail = true
		person := id.NewPersonID()
		attrsBefore := len(s.attributes.records)
		circlesBefore := len(s.circles.circles)

		_, err := s.service.Provision(ctx, person, validInput())
		s.Error(err)

		s.Len(s.attributes.records, attrsBefore)
		s.Len(s.circles.circles, circlesBefore)
		_, err = s.service.Get(ctx, person)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.tokens.fail = false
	})

	s.Run("attribute failure mid-batch destroys the partial batch", func() {
		s.attributes.failAt = attrmodels.KindFamilyName
		person := id.NewPersonID()
		attrsBefore := len(s.attributes.records)

		_, err := s.service.Provision(ctx, person, validInput())
		s.Error(err)
		s.Len(s.attributes.records, attrsBefore)
		s.attributes.failAt = ""
	})
}

// =============================================================================
// Delete Tests
// =============================================================================

func (s *ProfileServiceSuite) TestDelete() {
	ctx := context.Background()
	person := id.NewPersonID()
	_, err := s.service.Provision(ctx, person, validInput())
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(ctx, person))

	s.Empty(s.attributes.records)
	s.Empty(s.circles.circles)
	s.NotContains(s.tokens.bound, person)

	_, err = s.service.Get(ctx, person)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Blocklist Tests
// =============================================================================

func (s *ProfileServiceSuite) TestBlocking() {
	ctx := context.Background()
	alice := id.NewPersonID()
	bob := id.NewPersonID()

	s.Run("blocking is symmetric for contact checks", func() {
		s.Require().NoError(s.service.Block(ctx, alice, bob))

		blocked, err := s.service.IsBlocked(ctx, alice, bob)
		s.NoError(err)
		s.True(blocked)

		blocked, err = s.service.IsBlocked(ctx, bob, alice)
		s.NoError(err)
		s.True(blocked)
	})

	s.Run("blocklist shows entries and unblock clears them", func() {
		list, err := s.service.Blocklist(ctx, alice)
		s.NoError(err)
		s.Len(list, 1)

		s.Require().NoError(s.service.Unblock(ctx, alice, bob))
		blocked, err := s.service.IsBlocked(ctx, alice, bob)
		s.NoError(err)
		s.False(blocked)
	})

	s.Run("self blocking is rejected", func() {
		err := s.service.Block(ctx, alice, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Directory Tests
// =============================================================================

func (s *ProfileServiceSuite) TestDirectory() {
	ctx := context.Background()
	person := id.NewPersonID()
	_, err := s.service.Provision(ctx, person, validInput())
	s.Require().NoError(err)

	s.Run("resolves people by email", func() {
		resolved, err := s.service.ResolveEmail(ctx, "alice@example.com")
		s.NoError(err)
		s.Equal(person, resolved)
	})

	s.Run("verified-only resolution skips unverified values", func() {
		_, err := s.service.ResolveVerifiedEmail(ctx, "alice@example.com")
		s.Error(err)
	})

	s.Run("display name comes from the profile", func() {
		name, err := s.service.DisplayName(ctx, person)
		s.NoError(err)
		s.Equal("Alice Stone", name)
	})

	s.Run("pending limit falls back to the default for strangers", func() {
		limit, err := s.service.PendingLimit(ctx, id.NewPersonID())
		s.NoError(err)
		s.Equal(25, limit)
	})

	s.Run("count people reflects provisioned profiles", func() {
		count, err := s.service.CountPeople(ctx)
		s.NoError(err)
		s.Equal(1, count)
	})

	s.Run("notification flags round-trip", func() {
		s.Require().NoError(s.service.RaiseInvitationFlag(ctx, person))
		profile, err := s.service.Get(ctx, person)
		s.Require().NoError(err)
		s.True(profile.NewInvitations)

		s.Require().NoError(s.service.ClearInvitationFlag(ctx, person))
		profile, err = s.service.Get(ctx, person)
		s.Require().NoError(err)
		s.False(profile.NewInvitations)
	})
}
