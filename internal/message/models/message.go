package models

import (
	"time"

	id "contactshare/pkg/domain"
)

type MessageKind string

const (
	KindInvite      MessageKind = "invite"
	KindAccept      MessageKind = "accept"
	KindDecline     MessageKind = "decline"
	KindVerifyEmail MessageKind = "verifyEmail"
)

// ResendCeiling caps unread resends of a single message.
const ResendCeiling = 5

// Message is one ledger entry for an outbound communication. It is
// persisted before any delivery attempt so retries have a durable record
// to increment against.
type Message struct {
	ID   id.MessageID
	Kind MessageKind
	From id.PersonID
	// To stays zero until the recipient resolves to a known person,
	// either at creation or later via attribute verification.
	To           id.PersonID
	ConnectionID id.ConnectionID

	// Destination addresses; either or both may be set.
	Email string
	Phone string

	// Sender-side disclosure shown to the recipient.
	FromName  string
	FromEmail string
	FromPhone string
	ToName    string

	Subject string
	Body    string
	// Data carries kind-specific payload such as a hashed verification
	// token. Never store plaintext secrets here.
	Data map[string]string

	Read    bool
	Sent    int
	Emailed bool
	Texted  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds an undelivered message addressed to raw email/phone.
func New(from id.PersonID, kind MessageKind, email, phone string) *Message {
	return &Message{
		ID:    id.NewMessageID(),
		Kind:  kind,
		From:  from,
		Email: email,
		Phone: phone,
		Data:  map[string]string{},
	}
}

// CanResend reports whether another unread resend is permitted.
func (m *Message) CanResend() bool {
	return !m.Read && m.Sent < ResendCeiling
}

// ReturnAddress describes where a reply to this message should go: back
// at the sender, using the sender's disclosed name and addresses.
type ReturnAddress struct {
	ToName   string
	FromName string
	ToPerson id.PersonID
	Email    string
	Phone    string
}

func (m *Message) ReturnAddress() ReturnAddress {
	return ReturnAddress{
		ToName:   m.FromName,
		FromName: m.ToName,
		ToPerson: m.From,
		Email:    m.FromEmail,
		Phone:    m.FromPhone,
	}
}

// InviteSubject and friends build the user-facing text for connection
// messages. An empty name falls back to an anonymous phrasing.
func InviteSubject(fromName string) string {
	if fromName != "" {
		return fromName + " has invited you to connect."
	}
	return "You've been invited to receive contact information."
}

func InviteBody(fromName string) string {
	if fromName != "" {
		return fromName + " has invited you to connect. It's free and it's private."
	}
	return "You've been invited to receive contact information. It's free and it's private."
}

func AcceptSubject(fromName string) string {
	if fromName != "" {
		return fromName + " accepted your request."
	}
	return "Someone accepted your connection."
}

func AcceptBody(fromName string) string {
	if fromName != "" {
		return fromName + " accepted your connection request!"
	}
	return "You've been accepted as a connection."
}
