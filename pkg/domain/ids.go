package domain

import (
	"github.com/google/uuid"

	dErrors "contactshare/pkg/domain-errors"
)

// Typed IDs keep the entity graph safe at compile time: a ConnectionID can
// never be handed to a store expecting a MessageID.

type PersonID uuid.UUID

type AttributeID uuid.UUID

type CircleID uuid.UUID

type ProfileID uuid.UUID

type ConnectionID uuid.UUID

type MessageID uuid.UUID

type TokenID uuid.UUID

func (id PersonID) String() string     { return uuid.UUID(id).String() }
func (id AttributeID) String() string  { return uuid.UUID(id).String() }
func (id CircleID) String() string     { return uuid.UUID(id).String() }
func (id ProfileID) String() string    { return uuid.UUID(id).String() }
func (id ConnectionID) String() string { return uuid.UUID(id).String() }
func (id MessageID) String() string    { return uuid.UUID(id).String() }
func (id TokenID) String() string      { return uuid.UUID(id).String() }

func (id PersonID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttributeID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CircleID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ProfileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TokenID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return u, nil
}

// ParsePersonID validates and returns a PersonID from its string form.
func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID(s)
	return PersonID(u), err
}

func ParseAttributeID(s string) (AttributeID, error) {
	u, err := parseUUID(s)
	return AttributeID(u), err
}

func ParseCircleID(s string) (CircleID, error) {
	u, err := parseUUID(s)
	return CircleID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s)
	return ProfileID(u), err
}

func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := parseUUID(s)
	return ConnectionID(u), err
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID(s)
	return MessageID(u), err
}

func ParseTokenID(s string) (TokenID, error) {
	u, err := parseUUID(s)
	return TokenID(u), err
}

func NewPersonID() PersonID         { return PersonID(uuid.New()) }
func NewAttributeID() AttributeID   { return AttributeID(uuid.New()) }
func NewCircleID() CircleID         { return CircleID(uuid.New()) }
func NewProfileID() ProfileID       { return ProfileID(uuid.New()) }
func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }
func NewMessageID() MessageID       { return MessageID(uuid.New()) }
func NewTokenID() TokenID           { return TokenID(uuid.New()) }
