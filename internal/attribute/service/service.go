package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"contactshare/internal/attribute/models"
	msgmodels "contactshare/internal/message/models"
	"contactshare/internal/platform/metrics"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/audit"
	"contactshare/pkg/platform/sentinel"
)

// emailTokenLength is the size of an email proof token.
const emailTokenLength = 21

// emailTokenAlphabet keeps tokens url-safe so they survive mail clients
// and query strings.
const emailTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const tokenHashKey = "tokenHash"

// Store persists attributes and enforces verified uniqueness on write.
type Store interface {
	Create(ctx context.Context, attribute *models.Attribute) error
	FindByID(ctx context.Context, attributeID id.AttributeID) (*models.Attribute, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Attribute, error)
	FindByValue(ctx context.Context, kind models.AttributeKind, value string, verifiedOnly bool) ([]*models.Attribute, error)
	Save(ctx context.Context, attribute *models.Attribute) error
	Delete(ctx context.Context, attributeID id.AttributeID) error
}

// Messages records and delivers email proof messages.
type Messages interface {
	Record(ctx context.Context, message *msgmodels.Message) error
	Deliver(ctx context.Context, messageID id.MessageID) (*msgmodels.Message, error)
	MarkRead(ctx context.Context, messageID id.MessageID) (*msgmodels.Message, error)
	LatestBySender(ctx context.Context, person id.PersonID, kind msgmodels.MessageKind) (*msgmodels.Message, error)
}

// OTP issues and redeems SMS one-time codes.
type OTP interface {
	Issue(ctx context.Context, key string) (string, error)
	Redeem(ctx context.Context, key, code string) error
}

// SMS sends one text.
type SMS interface {
	Send(ctx context.Context, to, text string) error
}

// DNSVerifier checks a published TXT proof.
type DNSVerifier interface {
	HasTXT(ctx context.Context, name, value string) (bool, error)
}

// Directory is the profile-side surface: primary value bookkeeping and
// display names. Set after construction because the profile module also
// depends on this service.
type Directory interface {
	DisplayName(ctx context.Context, person id.PersonID) (string, error)
	RepointPrimary(ctx context.Context, person id.PersonID, kind models.AttributeKind, value string) error
	DetachAttribute(ctx context.Context, person id.PersonID, attributeID id.AttributeID) error
}

// Rebinder claims unresolved relationships once an address proves to
// belong to someone. Set after construction.
type Rebinder interface {
	RebindAddresses(ctx context.Context, person id.PersonID, addresses []string) error
}

// Circles drops a deleted attribute from every disclosure circle.
type Circles interface {
	RemoveFromAll(ctx context.Context, attributeID id.AttributeID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the attribute verification state machine: creation and
// edits with their verified-reset rules, proof initiation and
// confirmation per channel, and deletion with primary substitution.
type Service struct {
	attributes Store
	messages   Messages
	otp        OTP
	sms        SMS
	dns        DNSVerifier
	circles    Circles
	directory  Directory
	rebinder   Rebinder
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  AuditPublisher
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

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// New constructs a Service. Directory and Rebinder are bound later via
// SetDirectory and SetRebinder.
func New(attributes Store, messages Messages, otp OTP, sms SMS, dns DNSVerifier, circles Circles, opts ...Option) *Service {
	s := &Service{
		attributes: attributes,
		messages:   messages,
		otp:        otp,
		sms:        sms,
		dns:        dns,
		circles:    circles,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDirectory binds the profile collaborator.
func (s *Service) SetDirectory(directory Directory) {
	s.directory = directory
}

// SetRebinder binds the connection collaborator.
func (s *Service) SetRebinder(rebinder Rebinder) {
	s.rebinder = rebinder
}

// CreateEmail adds an unverified email attribute.
func (s *Service) CreateEmail(ctx context.Context, owner id.PersonID, address, label string) (*models.Attribute, error) {
	attribute, err := models.NewEmail(owner, address, label)
	if err != nil {
		return nil, err
	}
	return s.persistNew(ctx, attribute)
}

// CreatePhone adds a phone attribute. Landlines start verified.
func (s *Service) CreatePhone(ctx context.Context, owner id.PersonID, number, label, countryCode string, phoneType models.PhoneType) (*models.Attribute, error) {
	attribute, err := models.NewPhone(owner, number, label, countryCode, phoneType)
	if err != nil {
		return nil, err
	}
	return s.persistNew(ctx, attribute)
}

// CreateDomain adds an unverified domain attribute.
func (s *Service) CreateDomain(ctx context.Context, owner id.PersonID, hostname string) (*models.Attribute, error) {
	attribute, err := models.NewDomain(owner, hostname)
	if err != nil {
		return nil, err
	}
	return s.persistNew(ctx, attribute)
}

// CreateScalar adds a name part or organization name. Scalar kinds have
// no proof channel and skip the uniqueness check.
func (s *Service) CreateScalar(ctx context.Context, owner id.PersonID, kind models.AttributeKind, value string) (*models.Attribute, error) {
	attribute, err := models.NewScalar(owner, kind, value)
	if err != nil {
		return nil, err
	}
	if err := s.attributes.Create(ctx, attribute); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create attribute")
	}
	s.audit(ctx, owner, attribute, audit.EventAttributeCreated)
	return attribute, nil
}

// persistNew rejects a new contact attribute when its value is already
// verified for someone else, then stores it.
func (s *Service) persistNew(ctx context.Context, attribute *models.Attribute) (*models.Attribute, error) {
	if err := s.ensureUnique(ctx, attribute); err != nil {
		return nil, err
	}
	if err := s.attributes.Create(ctx, attribute); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateVerified, attribute.Title()+" is already verified by someone else")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create attribute")
	}
	s.audit(ctx, attribute.Owner, attribute, audit.EventAttributeCreated)
	return attribute, nil
}

// EditEmail replaces the address or label. An address change resets the
// proof.
func (s *Service) EditEmail(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, address, label string) (*models.Attribute, error) {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return nil, err
	}
	if attribute.Kind != models.KindEmail {
		return nil, dErrors.New(dErrors.CodeValidation, "attribute is not an email address")
	}
	next, err := models.NewEmail(caller, address, label)
	if err != nil {
		return nil, err
	}
	if next.Email.Address != attribute.Email.Address {
		attribute.Verified = false
	}
	attribute.Email = next.Email
	return s.persistEdit(ctx, attribute)
}

// EditPhone replaces the number or its parameters. A number change
// resets the proof; type flips carry the landline exemption: a landline
// needs no SMS proof, a verified landline turning mobile must re-prove.
func (s *Service) EditPhone(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, number, label, countryCode string, phoneType models.PhoneType) (*models.Attribute, error) {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return nil, err
	}
	if attribute.Kind != models.KindPhone {
		return nil, dErrors.New(dErrors.CodeValidation, "attribute is not a phone number")
	}
	next, err := models.NewPhone(caller, number, label, countryCode, phoneType)
	if err != nil {
		return nil, err
	}
	wasLandline := attribute.Phone.Type == models.PhoneLandline
	if next.Phone.Number != attribute.Phone.Number {
		attribute.Verified = false
	}
	if attribute.Verified && wasLandline && next.Phone.Type == models.PhoneMobile {
		attribute.Verified = false
	}
	attribute.Phone = next.Phone
	if !attribute.Verified && attribute.Phone.Type == models.PhoneLandline {
		if err := s.ensureUnique(ctx, attribute); err != nil {
			return nil, err
		}
		attribute.Verified = true
	}
	return s.persistEdit(ctx, attribute)
}

// EditDomain replaces the hostname and resets any pending proof.
func (s *Service) EditDomain(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, hostname string) (*models.Attribute, error) {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return nil, err
	}
	if attribute.Kind != models.KindDomain {
		return nil, dErrors.New(dErrors.CodeValidation, "attribute is not a domain")
	}
	next, err := models.NewDomain(caller, hostname)
	if err != nil {
		return nil, err
	}
	if next.Domain.Hostname != attribute.Domain.Hostname {
		attribute.Verified = false
	}
	attribute.Domain = next.Domain
	return s.persistEdit(ctx, attribute)
}

// EditScalar replaces a scalar value.
func (s *Service) EditScalar(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, value string) (*models.Attribute, error) {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return nil, err
	}
	next, err := models.NewScalar(caller, attribute.Kind, value)
	if err != nil {
		return nil, err
	}
	attribute.Value = next.Value
	if err := s.attributes.Save(ctx, attribute); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attribute")
	}
	return attribute, nil
}

func (s *Service) persistEdit(ctx context.Context, attribute *models.Attribute) (*models.Attribute, error) {
	if err := s.ensureUnique(ctx, attribute); err != nil {
		return nil, err
	}
	if err := s.attributes.Save(ctx, attribute); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateVerified, attribute.Title()+" is already verified by someone else")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attribute")
	}
	return attribute, nil
}

// Channel names reported on a verification challenge.
const (
	ChannelNone  = "none"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelDNS   = "dns"
)

// Challenge tells the caller what proof is now pending. For the dns
// channel the TXT record to publish is included; the email token and
// SMS code travel only over their own channels.
type Challenge struct {
	Channel   string
	TXTRecord string
	TXTValue  string
}

// InitiateVerification dispatches the proof request for the attribute's
// channel. Already-verified attributes are a no-op.
func (s *Service) InitiateVerification(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) (*Challenge, error) {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return nil, err
	}
	if attribute.Verified {
		return &Challenge{Channel: ChannelNone}, nil
	}
	switch attribute.Kind {
	case models.KindEmail:
		return s.initiateEmail(ctx, attribute)
	case models.KindPhone:
		return s.initiateSMS(ctx, attribute)
	case models.KindDomain:
		return s.initiateDNS(ctx, attribute)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "attribute kind has no proof channel")
	}
}

func (s *Service) initiateEmail(ctx context.Context, attribute *models.Attribute) (*Challenge, error) {
	token, err := generateEmailToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash token")
	}

	message := msgmodels.New(attribute.Owner, msgmodels.KindVerifyEmail, attribute.Email.Address, "")
	message.Data[tokenHashKey] = string(hash)
	message.Subject = "Verify your email address"
	message.Body = "Your email verification code is " + token
	if s.directory != nil {
		if name, err := s.directory.DisplayName(ctx, attribute.Owner); err == nil {
			message.FromName = name
		}
	}
	if err := s.messages.Record(ctx, message); err != nil {
		return nil, err
	}
	if _, err := s.messages.Deliver(ctx, message.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeChannelFailure, "failed to send verification email")
	}
	return &Challenge{Channel: ChannelEmail}, nil
}

func (s *Service) initiateSMS(ctx context.Context, attribute *models.Attribute) (*Challenge, error) {
	code, err := s.otp.Issue(ctx, attribute.ID.String())
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("Your phone verification code is %s", code)
	if err := s.sms.Send(ctx, attribute.Phone.Number, text); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeChannelFailure, "failed to send verification text")
	}
	return &Challenge{Channel: ChannelSMS}, nil
}

func (s *Service) initiateDNS(ctx context.Context, attribute *models.Attribute) (*Challenge, error) {
	key, err := randomHex(16)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate key")
	}
	value, err := randomHex(16)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate value")
	}
	attribute.Domain.VerificationKey = key
	attribute.Domain.VerificationValue = "contactshare-verification=" + value
	if err := s.attributes.Save(ctx, attribute); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save proof key")
	}
	return &Challenge{
		Channel:   ChannelDNS,
		TXTRecord: key + "." + attribute.Domain.Hostname,
		TXTValue:  attribute.Domain.VerificationValue,
	}, nil
}

// ConfirmVerification checks the proof for the attribute's channel and
// promotes it to verified. The rebinding side effect claims any
// relationships that were waiting on this address.
func (s *Service) ConfirmVerification(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, proof string) (*models.Attribute, error) {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return nil, err
	}
	if attribute.Verified {
		return attribute, nil
	}
	switch attribute.Kind {
	case models.KindEmail:
		err = s.confirmEmail(ctx, attribute, proof)
	case models.KindPhone:
		err = s.otp.Redeem(ctx, attribute.ID.String(), proof)
	case models.KindDomain:
		err = s.confirmDNS(ctx, attribute)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "attribute kind has no proof channel")
	}
	if err != nil {
		return nil, err
	}

	attribute.Verified = true
	if err := s.attributes.Save(ctx, attribute); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateVerified, attribute.Title()+" is already verified by someone else")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attribute")
	}
	if s.metrics != nil {
		s.metrics.AttributesVerified.WithLabelValues(string(attribute.Kind)).Inc()
	}
	s.audit(ctx, attribute.Owner, attribute, audit.EventAttributeVerified)

	if s.rebinder != nil && (attribute.Kind == models.KindEmail || attribute.Kind == models.KindPhone) {
		if err := s.rebinder.RebindAddresses(ctx, attribute.Owner, []string{attribute.ResolvedValue()}); err != nil {
			s.logger.Warn("rebind after verification failed",
				"attribute_id", attribute.ID, "error", err)
		}
	}
	return attribute, nil
}

func (s *Service) confirmEmail(ctx context.Context, attribute *models.Attribute, proof string) error {
	message, err := s.messages.LatestBySender(ctx, attribute.Owner, msgmodels.KindVerifyEmail)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeStateConflict, "no verification in progress")
		}
		return err
	}
	if message.Email != attribute.Email.Address {
		return dErrors.New(dErrors.CodeStateConflict, "no verification in progress for this address")
	}
	if bcrypt.CompareHashAndPassword([]byte(message.Data[tokenHashKey]), []byte(proof)) != nil {
		return dErrors.New(dErrors.CodeValidation, "verification code does not match")
	}
	if _, err := s.messages.MarkRead(ctx, message.ID); err != nil {
		s.logger.Warn("failed to mark verification message read",
			"message_id", message.ID, "error", err)
	}
	return nil
}

func (s *Service) confirmDNS(ctx context.Context, attribute *models.Attribute) error {
	key := attribute.Domain.VerificationKey
	value := attribute.Domain.VerificationValue
	if key == "" || value == "" {
		return dErrors.New(dErrors.CodeStateConflict, "no verification in progress")
	}
	hostname := attribute.Domain.Hostname
	found, err := s.dns.HasTXT(ctx, key+"."+hostname, value)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeChannelFailure, "TXT lookup failed")
	}
	// Proofs published at the registered domain also count for its www
	// host.
	if !found && len(hostname) > 4 && hostname[:4] == "www." {
		found, err = s.dns.HasTXT(ctx, key+"."+hostname[4:], value)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeChannelFailure, "TXT lookup failed")
		}
	}
	if !found {
		return dErrors.New(dErrors.CodeValidation, "TXT record not published")
	}
	return nil
}

// Delete removes the attribute. A verified contact attribute may only
// go when a substitute exists to take over as the primary value; the
// substitute gets re-pointed first.
func (s *Service) Delete(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) error {
	attribute, err := s.ownedAttribute(ctx, caller, attributeID)
	if err != nil {
		return err
	}
	if attribute.Verified && (attribute.Kind == models.KindEmail || attribute.Kind == models.KindPhone) {
		substitute, err := s.findSubstitute(ctx, attribute)
		if err != nil {
			return err
		}
		if substitute == nil {
			return dErrors.New(dErrors.CodeStateConflict,
				"cannot delete the only verified "+attribute.Title())
		}
		if s.directory != nil {
			if err := s.directory.RepointPrimary(ctx, caller, attribute.Kind, substitute.ResolvedValue()); err != nil {
				return err
			}
		}
	}
	if s.circles != nil {
		if err := s.circles.RemoveFromAll(ctx, attributeID); err != nil {
			return err
		}
	}
	if s.directory != nil {
		if err := s.directory.DetachAttribute(ctx, caller, attributeID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
	}
	if err := s.attributes.Delete(ctx, attributeID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete attribute")
	}
	s.audit(ctx, caller, attribute, audit.EventAttributeDeleted)
	return nil
}

// findSubstitute locates another verified, non-landline attribute of
// the same kind for the owner.
func (s *Service) findSubstitute(ctx context.Context, attribute *models.Attribute) (*models.Attribute, error) {
	all, err := s.attributes.ListByOwner(ctx, attribute.Owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attributes")
	}
	for _, candidate := range all {
		if candidate.ID == attribute.ID || candidate.Kind != attribute.Kind {
			continue
		}
		if !candidate.Verified || candidate.IsLandline() {
			continue
		}
		return candidate, nil
	}
	return nil, nil
}

// Destroy removes an attribute unconditionally and tolerates records
// that are already gone. Used by provisioning compensation.
func (s *Service) Destroy(ctx context.Context, attributeID id.AttributeID) error {
	if err := s.attributes.Delete(ctx, attributeID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to destroy attribute")
	}
	return nil
}

// Get returns the caller's attribute.
func (s *Service) Get(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) (*models.Attribute, error) {
	return s.ownedAttribute(ctx, caller, attributeID)
}

// ListByOwner returns every attribute of the person.
func (s *Service) ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Attribute, error) {
	attributes, err := s.attributes.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attributes")
	}
	return attributes, nil
}

// FindByValue resolves a value to a single attribute, preferring a
// verified one. Missing values read as sentinel not-found so resolvers
// can distinguish "nobody" from infrastructure failures.
func (s *Service) FindByValue(ctx context.Context, kind models.AttributeKind, value string, verifiedOnly bool) (*models.Attribute, error) {
	matches, err := s.attributes.FindByValue(ctx, kind, value, verifiedOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up value")
	}
	if len(matches) == 0 {
		return nil, sentinel.ErrNotFound
	}
	for _, match := range matches {
		if match.Verified {
			return match, nil
		}
	}
	return matches[0], nil
}

// ensureUnique rejects the write when the value is verified elsewhere.
// The store's unique index is the authoritative check; this read keeps
// the common case from burning an insert.
func (s *Service) ensureUnique(ctx context.Context, attribute *models.Attribute) error {
	matches, err := s.attributes.FindByValue(ctx, attribute.Kind, attribute.ResolvedValue(), true)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check uniqueness")
	}
	for _, match := range matches {
		if match.ID != attribute.ID {
			return dErrors.New(dErrors.CodeDuplicateVerified,
				attribute.Title()+" is already verified by someone else")
		}
	}
	return nil
}

func (s *Service) ownedAttribute(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) (*models.Attribute, error) {
	attribute, err := s.attributes.FindByID(ctx, attributeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "attribute not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attribute")
	}
	if attribute.Owner != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "attribute belongs to another person")
	}
	return attribute, nil
}

func (s *Service) audit(ctx context.Context, person id.PersonID, attribute *models.Attribute, action audit.AuditEvent) {
	if s.publisher == nil {
		return
	}
	event := audit.Event{
		PersonID: person,
		Subject:  attribute.ID.String(),
		Action:   string(action),
		Reason:   string(attribute.Kind),
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}

func generateEmailToken() (string, error) {
	out := make([]byte, emailTokenLength)
	alphabetLen := big.NewInt(int64(len(emailTokenAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		out[i] = emailTokenAlphabet[n.Int64()]
	}
	return string(out), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
