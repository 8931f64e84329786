package models

import (
	"time"

	id "contactshare/pkg/domain"
)

// Alphabet is the unambiguous character set tokens are generated from:
// no 0/O/1/l/I lookalikes, and no u/v confusion.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstwxyz"

// TokenLength is the generated token size.
const TokenLength = 12

// MaxGenerationAttempts bounds collision retries before giving up.
const MaxGenerationAttempts = 20

// DefaultName labels the token created at signup.
const DefaultName = "Default"

// QRCode maps a short opaque token to an (owner, circle) pair.
// Preprinted tokens start unbound and are attached by whoever scans
// them first.
type QRCode struct {
	ID    id.TokenID
	Token string
	// Owner and Circle are zero while the token is unbound.
	Owner  id.PersonID
	Circle id.CircleID
	Name   string
	// Label tags preprinted batches, e.g. an event name.
	Label      string
	Preprinted bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Bound reports whether the token is attached to a person.
func (q *QRCode) Bound() bool {
	return !q.Owner.IsNil()
}

// NewBound builds a token attached to the owner's circle.
func NewBound(token string, owner id.PersonID, circle id.CircleID, name string) *QRCode {
	return &QRCode{
		ID:     id.NewTokenID(),
		Token:  token,
		Owner:  owner,
		Circle: circle,
		Name:   name,
	}
}

// NewUnbound builds a preprinted token awaiting attachment.
func NewUnbound(token, label string) *QRCode {
	return &QRCode{
		ID:         id.NewTokenID(),
		Token:      token,
		Name:       DefaultName,
		Label:      label,
		Preprinted: true,
	}
}

// Answer classifies a token for a requester.
type Answer string

const (
	// AnswerUnknown: the token is not in the system.
	AnswerUnknown Answer = ""
	// AnswerOwned: the requester holds this token.
	AnswerOwned Answer = "owned"
	// AnswerAttach: the token is unbound and may be attached.
	AnswerAttach Answer = "attach"
	// AnswerConnected: a non-declined relationship already exists
	// between requester and owner.
	AnswerConnected Answer = "connected"
	// AnswerInvite: the token's owner can be invited.
	AnswerInvite Answer = "invite"
)
