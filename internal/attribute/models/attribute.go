package models

import (
	"strings"
	"time"

	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/contact"
)

// AttributeKind enumerates the shareable facts a person can disclose.
type AttributeKind string

const (
	KindEmail            AttributeKind = "emailAddress"
	KindPhone            AttributeKind = "phoneNumber"
	KindDomain           AttributeKind = "domain"
	KindFullName         AttributeKind = "fullName"
	KindPrefix           AttributeKind = "prefix"
	KindGivenName        AttributeKind = "givenName"
	KindMiddleName       AttributeKind = "middleName"
	KindFamilyName       AttributeKind = "familyName"
	KindSuffix           AttributeKind = "suffix"
	KindOrganizationName AttributeKind = "organizationName"
)

// PhoneType distinguishes numbers that can receive an SMS proof from ones
// that cannot.
type PhoneType string

const (
	PhoneMobile   PhoneType = "mobile"
	PhoneLandline PhoneType = "landline"
)

// Labels used by the default disclosure groups.
const (
	LabelPersonal     = "personal"
	LabelWork         = "work"
	LabelPersonalWork = "personal & work"
)

// EmailParams is the parameter schema for KindEmail attributes.
type EmailParams struct {
	Label   string
	Address string
}

// PhoneParams is the parameter schema for KindPhone attributes. Type is a
// named field on purpose: the old "parameter slot 3 is the phone type"
// convention is exactly the kind of bug this schema exists to prevent.
type PhoneParams struct {
	Label       string
	Number      string
	CountryCode string
	Type        PhoneType
}

// DomainParams is the parameter schema for KindDomain attributes.
type DomainParams struct {
	Hostname string
	// VerificationKey is the random label the owner must publish as a TXT
	// record under the hostname. Set when verification is initiated.
	VerificationKey string
	// VerificationValue is the TXT payload the lookup must match.
	VerificationValue string
}

// Attribute is one shareable, individually verifiable fact about a person.
// Exactly one of the params pointers is set for parameterized kinds; scalar
// kinds (name parts, organization name) use Value.
type Attribute struct {
	ID         id.AttributeID
	Owner      id.PersonID
	Kind       AttributeKind
	Value      string
	Email      *EmailParams
	Phone      *PhoneParams
	Domain     *DomainParams
	Verified   bool
	Exportable bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResolvedValue returns the comparable primary value regardless of shape.
func (a *Attribute) ResolvedValue() string {
	switch {
	case a.Email != nil:
		return a.Email.Address
	case a.Phone != nil:
		return a.Phone.Number
	case a.Domain != nil:
		return a.Domain.Hostname
	default:
		return a.Value
	}
}

// IsNamePart reports whether the attribute contributes to a display name.
func (a *Attribute) IsNamePart() bool {
	switch a.Kind {
	case KindPrefix, KindGivenName, KindMiddleName, KindFamilyName, KindSuffix:
		return true
	}
	return false
}

// IsLandline reports whether the attribute is a landline phone number.
func (a *Attribute) IsLandline() bool {
	return a.Phone != nil && a.Phone.Type == PhoneLandline
}

// Title names the attribute kind in user-facing error messages.
func (a *Attribute) Title() string {
	switch a.Kind {
	case KindEmail:
		return "email address"
	case KindPhone:
		return "phone number"
	case KindDomain:
		return "domain"
	default:
		return string(a.Kind)
	}
}

// NewEmail builds an unverified email attribute.
func NewEmail(owner id.PersonID, address, label string) (*Attribute, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if !contact.IsValidEmail(address) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid email address")
	}
	if label == "" {
		label = LabelPersonalWork
	}
	return &Attribute{
		ID:         id.NewAttributeID(),
		Owner:      owner,
		Kind:       KindEmail,
		Email:      &EmailParams{Label: label, Address: address},
		Exportable: true,
	}, nil
}

// NewPhone builds a phone attribute, normalized. Landlines are exempt from
// SMS verification and start verified.
func NewPhone(owner id.PersonID, number, label, countryCode string, phoneType PhoneType) (*Attribute, error) {
	number = contact.NormalizePhone(number)
	if !contact.IsValidPhone(number) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid phone number")
	}
	if phoneType == "" {
		phoneType = PhoneMobile
	}
	if phoneType != PhoneMobile && phoneType != PhoneLandline {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported phone type")
	}
	if label == "" {
		label = LabelPersonal
	}
	return &Attribute{
		ID:         id.NewAttributeID(),
		Owner:      owner,
		Kind:       KindPhone,
		Phone:      &PhoneParams{Label: label, Number: number, CountryCode: countryCode, Type: phoneType},
		Verified:   phoneType == PhoneLandline,
		Exportable: true,
	}, nil
}

// NewDomain builds an unverified domain attribute.
func NewDomain(owner id.PersonID, hostname string) (*Attribute, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if !contact.IsValidDomain(hostname) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid domain")
	}
	return &Attribute{
		ID:         id.NewAttributeID(),
		Owner:      owner,
		Kind:       KindDomain,
		Domain:     &DomainParams{Hostname: hostname},
		Exportable: true,
	}, nil
}

// NewScalar builds a scalar attribute (name parts, organization name).
// Name parts need no proof channel and are never "verified".
func NewScalar(owner id.PersonID, kind AttributeKind, value string) (*Attribute, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "attribute value must not be empty")
	}
	switch kind {
	case KindFullName, KindPrefix, KindGivenName, KindMiddleName, KindFamilyName, KindSuffix, KindOrganizationName:
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "kind does not take a scalar value")
	}
	return &Attribute{
		ID:         id.NewAttributeID(),
		Owner:      owner,
		Kind:       kind,
		Value:      value,
		Exportable: kind == KindFullName || kind == KindOrganizationName,
	}, nil
}
