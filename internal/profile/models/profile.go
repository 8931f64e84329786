package models

import (
	"time"

	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
)

// DefaultPendingLimit caps each person's outstanding invitations unless
// overridden on the record.
const DefaultPendingLimit = 25

// Profile is the identity-level record tying a person to their
// attributes and disclosure circles.
type Profile struct {
	ID     id.ProfileID
	Person id.PersonID
	// Name is the display name resolved from the full-name attribute.
	Name string
	// PrimaryEmail and PrimaryPhone are the identity-level copies of the
	// person's main contact values, re-pointed when the backing
	// attribute is deleted.
	PrimaryEmail string
	PrimaryPhone string
	Attributes   []id.AttributeID
	Circles      []id.CircleID
	// DefaultCircle backs the person's default quick-connect token.
	DefaultCircle id.CircleID
	PendingLimit  int
	// NewInvitations and NewConnections are raised by invite, accept and
	// rebind, and cleared when the person lists them.
	NewInvitations bool
	NewConnections bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New builds a profile for the person. The attribute and circle lists
// are filled in by provisioning.
func New(person id.PersonID, name, primaryEmail string) (*Profile, error) {
	if primaryEmail == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "profile needs a primary email")
	}
	return &Profile{
		ID:           id.NewProfileID(),
		Person:       person,
		Name:         name,
		PrimaryEmail: primaryEmail,
		PendingLimit: DefaultPendingLimit,
	}, nil
}

// Block records that Person no longer accepts contact from Blocked.
type Block struct {
	Person    id.PersonID
	Blocked   id.PersonID
	CreatedAt time.Time
}
