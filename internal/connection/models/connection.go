package models

import (
	"time"

	id "contactshare/pkg/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConnected Status = "connected"
	StatusDeclined  Status = "declined"
)

// Connection is one side of a directed relationship. A connected pair is
// two records pointing at each other through Inverse; the pointers are
// written in separate operations, so a missing Inverse can be repaired
// by from/to symmetry.
type Connection struct {
	ID   id.ConnectionID
	From id.PersonID
	// To stays zero while the recipient is unresolved; rebinding fills
	// it in once a matching attribute verifies.
	To      id.PersonID
	Inverse id.ConnectionID
	Status  Status
	// Circles the owner disclosed to the other party.
	Circles []id.CircleID
	// Name is the counterparty's display name as last disclosed.
	Name string
	// Raw target addresses kept for unresolved recipients.
	Email string
	Phone string
	// PersonalNote is the owner's private annotation about the other
	// party.
	PersonalNote string
	// UpdateFlag is raised when a disclosed circle changes and cleared
	// when the counterparty lists updated connections.
	UpdateFlag bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Address is the resolved-or-raw destination of an invitation.
type Address struct {
	Name   string
	Person id.PersonID
	Email  string
	Phone  string
}

func (a Address) Empty() bool {
	return a.Person.IsNil() && a.Email == "" && a.Phone == ""
}

// NewPending builds the inviter-side record.
func NewPending(from id.PersonID, address Address, circles []id.CircleID) *Connection {
	return &Connection{
		ID:      id.NewConnectionID(),
		From:    from,
		To:      address.Person,
		Status:  StatusPending,
		Circles: circles,
		Name:    address.Name,
		Email:   address.Email,
		Phone:   address.Phone,
	}
}

// NewConnected builds the accepter-side record, already connected and
// addressed back at the inviter.
func NewConnected(from id.PersonID, returnTo Address, circles []id.CircleID) *Connection {
	return &Connection{
		ID:      id.NewConnectionID(),
		From:    from,
		To:      returnTo.Person,
		Status:  StatusConnected,
		Circles: circles,
		Name:    returnTo.Name,
		Email:   returnTo.Email,
		Phone:   returnTo.Phone,
	}
}

// SharesCircle reports whether the circle is disclosed on this record.
func (c *Connection) SharesCircle(circleID id.CircleID) bool {
	for _, shared := range c.Circles {
		if shared == circleID {
			return true
		}
	}
	return false
}
