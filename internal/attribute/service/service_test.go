package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"contactshare/internal/attribute/models"
	"contactshare/internal/attribute/store"
	"contactshare/internal/channels/otp"
	msgservice "contactshare/internal/message/service"
	msgstore "contactshare/internal/message/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/sentinel"
)

// =============================================================================
// Attribute service tests
//
// Justification for unit tests: the verification state machine is pure
// coordination over its collaborators. The message ledger and the OTP
// issuer run for real over in-memory backends so the proof codes travel
// the same paths they do in production; DNS and the profile-side
// collaborators are recorded fakes.
// =============================================================================

// captureEmail records outbound mail so tests can read proof tokens out
// of the delivered body.
type captureEmail struct {
	bodies []string
}

func (c *captureEmail) Send(_ context.Context, _, _, _, body string) error {
	c.bodies = append(c.bodies, body)
	return nil
}

// captureSMS records outbound texts.
type captureSMS struct {
	texts []string
}

func (c *captureSMS) Send(_ context.Context, _, text string) error {
	c.texts = append(c.texts, text)
	return nil
}

// fakeDNS serves TXT records from a map.
type fakeDNS struct {
	records map[string]string
	err     error
}

func (f *fakeDNS) HasTXT(_ context.Context, name, value string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.records[name] == value, nil
}

type fakeCircles struct {
	removed []id.AttributeID
}

func (f *fakeCircles) RemoveFromAll(_ context.Context, attributeID id.AttributeID) error {
	f.removed = append(f.removed, attributeID)
	return nil
}

type repoint struct {
	kind  models.AttributeKind
	value string
}

type fakeDirectory struct {
	names     map[id.PersonID]string
	repointed map[id.PersonID][]repoint
	detached  []id.AttributeID
}

func (f *fakeDirectory) DisplayName(_ context.Context, person id.PersonID) (string, error) {
	name, ok := f.names[person]
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "person not found")
	}
	return name, nil
}

func (f *fakeDirectory) RepointPrimary(_ context.Context, person id.PersonID, kind models.AttributeKind, value string) error {
	f.repointed[person] = append(f.repointed[person], repoint{kind: kind, value: value})
	return nil
}

func (f *fakeDirectory) DetachAttribute(_ context.Context, _ id.PersonID, attributeID id.AttributeID) error {
	f.detached = append(f.detached, attributeID)
	return nil
}

type fakeRebinder struct {
	rebound map[id.PersonID][]string
}

func (f *fakeRebinder) RebindAddresses(_ context.Context, person id.PersonID, addresses []string) error {
	f.rebound[person] = append(f.rebound[person], addresses...)
	return nil
}

type AttributeServiceSuite struct {
	suite.Suite

	attributes *store.InMemoryStore
	email      *captureEmail
	sms        *captureSMS
	dns        *fakeDNS
	circles    *fakeCircles
	directory  *fakeDirectory
	rebinder   *fakeRebinder
	service    *Service

	alice id.PersonID
	bob   id.PersonID
}

func TestAttributeServiceSuite(t *testing.T) {
	suite.Run(t, new(AttributeServiceSuite))
}

func (s *AttributeServiceSuite) SetupTest() {
	s.attributes = store.NewInMemory()
	s.email = &captureEmail{}
	s.sms = &captureSMS{}
	s.dns = &fakeDNS{records: map[string]string{}}
	s.circles = &fakeCircles{}
	s.alice = id.NewPersonID()
	s.bob = id.NewPersonID()
	s.directory = &fakeDirectory{
		names:     map[id.PersonID]string{s.alice: "Alice Stone"},
		repointed: map[id.PersonID][]repoint{},
	}
	s.rebinder = &fakeRebinder{rebound: map[id.PersonID][]string{}}

	messages := msgservice.New(msgstore.NewInMemory(), s.email, s.sms)
	issuer := otp.NewIssuer(otp.NewMemoryClient(), time.Minute)

	s.service = New(s.attributes, messages, issuer, s.sms, s.dns, s.circles)
	s.service.SetDirectory(s.directory)
	s.service.SetRebinder(s.rebinder)
}

// verifiedEmail creates and force-verifies an email attribute.
func (s *AttributeServiceSuite) verifiedEmail(owner id.PersonID, address string) *models.Attribute {
	attribute, err := s.service.CreateEmail(context.Background(), owner, address, "")
	s.Require().NoError(err)
	attribute.Verified = true
	s.Require().NoError(s.attributes.Save(context.Background(), attribute))
	return attribute
}

// lastToken extracts the proof token from the most recent outbound body.
func (s *AttributeServiceSuite) lastToken(bodies []string) string {
	s.Require().NotEmpty(bodies)
	body := bodies[len(bodies)-1]
	parts := strings.Split(body, " ")
	return parts[len(parts)-1]
}

func (s *AttributeServiceSuite) TestCreate() {
	ctx := context.Background()

	s.Run("an invalid address is rejected", func() {
		_, err := s.service.CreateEmail(ctx, s.alice, "not-an-address", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("addresses are normalized on the way in", func() {
		attribute, err := s.service.CreateEmail(ctx, s.alice, "  Alice@Example.COM ", "")
		s.Require().NoError(err)
		s.Equal("alice@example.com", attribute.Email.Address)
		s.False(attribute.Verified)
	})

	s.Run("a value verified elsewhere cannot be re-added", func() {
		s.verifiedEmail(s.alice, "taken@example.com")

		_, err := s.service.CreateEmail(ctx, s.bob, "taken@example.com", "")
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateVerified))
	})

	s.Run("unverified duplicates may coexist", func() {
		_, err := s.service.CreateEmail(ctx, s.alice, "shared@example.com", "")
		s.Require().NoError(err)
		_, err = s.service.CreateEmail(ctx, s.bob, "shared@example.com", "")
		s.NoError(err)
	})

	s.Run("a landline starts verified", func() {
		attribute, err := s.service.CreatePhone(ctx, s.alice, "+15550001001", "", "1", models.PhoneLandline)
		s.Require().NoError(err)
		s.True(attribute.Verified)
	})

	s.Run("scalar kinds skip the uniqueness check", func() {
		_, err := s.service.CreateScalar(ctx, s.alice, models.KindGivenName, "Robin")
		s.Require().NoError(err)
		_, err = s.service.CreateScalar(ctx, s.bob, models.KindGivenName, "Robin")
		s.NoError(err)
	})
}

func (s *AttributeServiceSuite) TestEdit() {
	ctx := context.Background()

	s.Run("changing the address resets the proof", func() {
		attribute := s.verifiedEmail(s.alice, "old@example.com")

		edited, err := s.service.EditEmail(ctx, s.alice, attribute.ID, "new@example.com", "")
		s.Require().NoError(err)
		s.False(edited.Verified)
	})

	s.Run("changing only the label keeps the proof", func() {
		attribute := s.verifiedEmail(s.alice, "keep@example.com")

		edited, err := s.service.EditEmail(ctx, s.alice, attribute.ID, "keep@example.com", "work")
		s.Require().NoError(err)
		s.True(edited.Verified)
		s.Equal("work", edited.Email.Label)
	})

	s.Run("a verified landline turning mobile must re-prove", func() {
		attribute, err := s.service.CreatePhone(ctx, s.alice, "+15550001002", "", "1", models.PhoneLandline)
		s.Require().NoError(err)
		s.Require().True(attribute.Verified)

		edited, err := s.service.EditPhone(ctx, s.alice, attribute.ID, "+15550001002", "", "1", models.PhoneMobile)
		s.Require().NoError(err)
		s.False(edited.Verified)
	})

	s.Run("an unverified mobile turning landline verifies on the spot", func() {
		attribute, err := s.service.CreatePhone(ctx, s.alice, "+15550001003", "", "1", models.PhoneMobile)
		s.Require().NoError(err)
		s.Require().False(attribute.Verified)

		edited, err := s.service.EditPhone(ctx, s.alice, attribute.ID, "+15550001003", "", "1", models.PhoneLandline)
		s.Require().NoError(err)
		s.True(edited.Verified)
	})

	s.Run("the kind cannot change through an edit", func() {
		attribute, err := s.service.CreatePhone(ctx, s.alice, "+15550001004", "", "1", models.PhoneMobile)
		s.Require().NoError(err)

		_, err = s.service.EditEmail(ctx, s.alice, attribute.ID, "x@example.com", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("another person's attribute is off limits", func() {
		attribute, err := s.service.CreateEmail(ctx, s.alice, "mine@example.com", "")
		s.Require().NoError(err)

		_, err = s.service.EditEmail(ctx, s.bob, attribute.ID, "theirs@example.com", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *AttributeServiceSuite) TestEmailVerification() {
	ctx := context.Background()

	s.Run("the token round-trips through the proof mail", func() {
		attribute, err := s.service.CreateEmail(ctx, s.alice, "prove@example.com", "")
		s.Require().NoError(err)

		challenge, err := s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)
		s.Equal(ChannelEmail, challenge.Channel)
		token := s.lastToken(s.email.bodies)

		verified, err := s.service.ConfirmVerification(ctx, s.alice, attribute.ID, token)
		s.Require().NoError(err)
		s.True(verified.Verified)
		s.Equal([]string{"prove@example.com"}, s.rebinder.rebound[s.alice])
	})

	s.Run("a wrong token is rejected", func() {
		attribute, err := s.service.CreateEmail(ctx, s.alice, "wrong@example.com", "")
		s.Require().NoError(err)
		_, err = s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)

		_, err = s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "bogus-token")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("confirming without a pending proof is a state conflict", func() {
		attribute, err := s.service.CreateEmail(ctx, s.bob, "cold@example.com", "")
		s.Require().NoError(err)

		_, err = s.service.ConfirmVerification(ctx, s.bob, attribute.ID, "anything")
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("a verified attribute ignores further proofs", func() {
		attribute := s.verifiedEmail(s.alice, "done@example.com")

		challenge, err := s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)
		s.Equal(ChannelNone, challenge.Channel)

		confirmed, err := s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "irrelevant")
		s.Require().NoError(err)
		s.True(confirmed.Verified)
	})
}

func (s *AttributeServiceSuite) TestSMSVerification() {
	ctx := context.Background()

	s.Run("the code round-trips through the text", func() {
		attribute, err := s.service.CreatePhone(ctx, s.alice, "+15550002001", "", "1", models.PhoneMobile)
		s.Require().NoError(err)

		challenge, err := s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)
		s.Equal(ChannelSMS, challenge.Channel)
		code := s.lastToken(s.sms.texts)

		verified, err := s.service.ConfirmVerification(ctx, s.alice, attribute.ID, code)
		s.Require().NoError(err)
		s.True(verified.Verified)
		s.Equal([]string{attribute.Phone.Number}, s.rebinder.rebound[s.alice])
	})

	s.Run("a wrong code is rejected and the right one still works", func() {
		attribute, err := s.service.CreatePhone(ctx, s.alice, "+15550002002", "", "1", models.PhoneMobile)
		s.Require().NoError(err)
		_, err = s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)
		code := s.lastToken(s.sms.texts)

		_, err = s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "00000000")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.ConfirmVerification(ctx, s.alice, attribute.ID, code)
		s.NoError(err)
	})

	s.Run("a code without an issue reads as not found", func() {
		attribute, err := s.service.CreatePhone(ctx, s.bob, "+15550002003", "", "1", models.PhoneMobile)
		s.Require().NoError(err)

		_, err = s.service.ConfirmVerification(ctx, s.bob, attribute.ID, "12345678")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *AttributeServiceSuite) TestDNSVerification() {
	ctx := context.Background()

	s.Run("a published TXT record proves the domain", func() {
		attribute, err := s.service.CreateDomain(ctx, s.alice, "example.com")
		s.Require().NoError(err)

		challenge, err := s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)
		s.Equal(ChannelDNS, challenge.Channel)
		s.Contains(challenge.TXTRecord, ".example.com")
		s.Contains(challenge.TXTValue, "contactshare-verification=")

		s.dns.records[challenge.TXTRecord] = challenge.TXTValue
		verified, err := s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "")
		s.Require().NoError(err)
		s.True(verified.Verified)
	})

	s.Run("a www host accepts a proof at the bare domain", func() {
		attribute, err := s.service.CreateDomain(ctx, s.alice, "www.example.org")
		s.Require().NoError(err)

		challenge, err := s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)
		bare := strings.Replace(challenge.TXTRecord, ".www.example.org", ".example.org", 1)
		s.dns.records[bare] = challenge.TXTValue

		verified, err := s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "")
		s.Require().NoError(err)
		s.True(verified.Verified)
	})

	s.Run("an unpublished record is rejected", func() {
		attribute, err := s.service.CreateDomain(ctx, s.alice, "missing.example.com")
		s.Require().NoError(err)
		_, err = s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)

		_, err = s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("confirming before initiation is a state conflict", func() {
		attribute, err := s.service.CreateDomain(ctx, s.bob, "cold.example.com")
		s.Require().NoError(err)

		_, err = s.service.ConfirmVerification(ctx, s.bob, attribute.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("a lookup failure surfaces as a channel failure", func() {
		attribute, err := s.service.CreateDomain(ctx, s.alice, "flaky.example.com")
		s.Require().NoError(err)
		_, err = s.service.InitiateVerification(ctx, s.alice, attribute.ID)
		s.Require().NoError(err)

		s.dns.err = errors.New("resolver timeout")
		_, err = s.service.ConfirmVerification(ctx, s.alice, attribute.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeChannelFailure))
		s.dns.err = nil
	})
}

func (s *AttributeServiceSuite) TestDelete() {
	ctx := context.Background()

	s.Run("the only verified email cannot go", func() {
		attribute := s.verifiedEmail(s.alice, "only@example.com")

		err := s.service.Delete(ctx, s.alice, attribute.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
		s.Contains(err.Error(), "only verified email address")
	})

	s.Run("a substitute takes over as the primary value", func() {
		first := s.verifiedEmail(s.bob, "first@example.com")
		s.verifiedEmail(s.bob, "second@example.com")

		s.Require().NoError(s.service.Delete(ctx, s.bob, first.ID))
		s.Equal([]repoint{{kind: models.KindEmail, value: "second@example.com"}}, s.directory.repointed[s.bob])
		s.Contains(s.circles.removed, first.ID)
		s.Contains(s.directory.detached, first.ID)
		_, err := s.attributes.FindByID(ctx, first.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("a landline does not count as a substitute", func() {
		phone, err := s.service.CreatePhone(ctx, s.alice, "+15550003001", "", "1", models.PhoneMobile)
		s.Require().NoError(err)
		phone.Verified = true
		s.Require().NoError(s.attributes.Save(ctx, phone))
		_, err = s.service.CreatePhone(ctx, s.alice, "+15550003002", "", "1", models.PhoneLandline)
		s.Require().NoError(err)

		err = s.service.Delete(ctx, s.alice, phone.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Run("an unverified attribute goes without ceremony", func() {
		attribute, err := s.service.CreateEmail(ctx, s.alice, "spare@example.com", "")
		s.Require().NoError(err)

		s.Require().NoError(s.service.Delete(ctx, s.alice, attribute.ID))
		_, err = s.attributes.FindByID(ctx, attribute.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *AttributeServiceSuite) TestFindByValue() {
	ctx := context.Background()

	s.Run("a verified match wins over unverified ones", func() {
		_, err := s.service.CreateEmail(ctx, s.bob, "contested@example.com", "")
		s.Require().NoError(err)
		winner := s.verifiedEmail(s.alice, "contested@example.com")

		found, err := s.service.FindByValue(ctx, models.KindEmail, "contested@example.com", false)
		s.Require().NoError(err)
		s.Equal(winner.ID, found.ID)
	})

	s.Run("a miss reads as sentinel not-found", func() {
		_, err := s.service.FindByValue(ctx, models.KindEmail, "nobody@example.com", false)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
