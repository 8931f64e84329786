package audit

import (
	"context"
	"time"

	id "contactshare/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	PersonID  id.PersonID
	Subject   string
	Action    string
	Reason    string
	// Address carries the email/phone an action was aimed at when no
	// target person is resolved yet (unresolved invites).
	Address string
}

type AuditEvent string

const (
	EventProfileProvisioned   AuditEvent = "profile_provisioned"
	EventProfileDeleted       AuditEvent = "profile_deleted"
	EventAttributeCreated     AuditEvent = "attribute_created"
	EventAttributeVerified    AuditEvent = "attribute_verified"
	EventAttributeDeleted     AuditEvent = "attribute_deleted"
	EventInviteSent           AuditEvent = "invite_sent"
	EventInviteBlocked        AuditEvent = "invite_blocked"
	EventInviteRevoked        AuditEvent = "invite_revoked"
	EventConnectionAccepted   AuditEvent = "connection_accepted"
	EventConnectionDeclined   AuditEvent = "connection_declined"
	EventConnectionRebound    AuditEvent = "connection_rebound"
	EventConnectionDestroyed  AuditEvent = "connection_destroyed"
	EventQuickConnectAttached AuditEvent = "quick_connect_attached"
	EventQuickConnectDetached AuditEvent = "quick_connect_detached"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPerson(ctx context.Context, personID id.PersonID) ([]Event, error)
}
