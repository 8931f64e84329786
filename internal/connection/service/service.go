package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	circleservice "contactshare/internal/circle/service"
	"contactshare/internal/connection/models"
	"contactshare/internal/connection/store"
	msgmodels "contactshare/internal/message/models"
	"contactshare/internal/platform/metrics"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/audit"
	"contactshare/pkg/platform/sentinel"
)

// DefaultUsersLimit caps the global population for availability gating.
const DefaultUsersLimit = 10000

// Messages is the ledger collaborator.
type Messages interface {
	Record(ctx context.Context, message *msgmodels.Message) error
	Deliver(ctx context.Context, messageID id.MessageID) (*msgmodels.Message, error)
	Get(ctx context.Context, messageID id.MessageID) (*msgmodels.Message, error)
	Save(ctx context.Context, message *msgmodels.Message) error
	MarkRead(ctx context.Context, messageID id.MessageID) (*msgmodels.Message, error)
	DeleteByConnection(ctx context.Context, connectionID id.ConnectionID) error
	ListByConnection(ctx context.Context, connectionID id.ConnectionID) ([]*msgmodels.Message, error)
	ListUnclaimed(ctx context.Context, kind msgmodels.MessageKind, addresses []string) ([]*msgmodels.Message, error)
	IncomingInvites(ctx context.Context, person id.PersonID) ([]*msgmodels.Message, error)
	OutgoingInvites(ctx context.Context, person id.PersonID) ([]*msgmodels.Message, error)
}

// Circles builds disclosure payloads and validates circle ownership.
type Circles interface {
	BuildSharePayload(ctx context.Context, caller id.PersonID, circleIDs []id.CircleID) (circleservice.SharePayload, error)
}

// Directory is the profile-side collaborator: person resolution, flags,
// blocklist and limits.
type Directory interface {
	ResolveVerifiedEmail(ctx context.Context, address string) (id.PersonID, error)
	ResolveVerifiedPhone(ctx context.Context, number string) (id.PersonID, error)
	ResolveEmail(ctx context.Context, address string) (id.PersonID, error)
	ResolvePhone(ctx context.Context, number string) (id.PersonID, error)
	DisplayName(ctx context.Context, person id.PersonID) (string, error)
	IsBlocked(ctx context.Context, person, by id.PersonID) (bool, error)
	PendingLimit(ctx context.Context, person id.PersonID) (int, error)
	CountPeople(ctx context.Context) (int, error)
	RaiseInvitationFlag(ctx context.Context, person id.PersonID) error
	ClearInvitationFlag(ctx context.Context, person id.PersonID) error
	RaiseConnectionFlag(ctx context.Context, person id.PersonID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the relationship negotiation engine.
type Service struct {
	connections store.Store
	messages    Messages
	circles     Circles
	directory   Directory
	logger      *slog.Logger
	metrics     *metrics.Metrics
	publisher   AuditPublisher
	tracer      trace.Tracer
	usersLimit  int
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

// WithUsersLimit overrides the global population cap.
func WithUsersLimit(limit int) Option {
	return func(s *Service) {
		s.usersLimit = limit
	}
}

// New constructs a Service.
func New(connections store.Store, messages Messages, circles Circles, directory Directory, opts ...Option) *Service {
	s := &Service{
		connections: connections,
		messages:    messages,
		circles:     circles,
		directory:   directory,
		logger:      slog.Default(),
		tracer:      otel.Tracer("contactshare/connection"),
		usersLimit:  DefaultUsersLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InviteCheck is the result of a pre-invite probe.
type InviteCheck struct {
	Allowed bool
	// Reason carries the existing relationship's status when not
	// allowed. Declined relationships are reported as pending so the
	// caller knows a re-invite is possible.
	Reason     string
	Connection *models.Connection
}

// CanInvite reports whether the caller may invite the target. Target
// resolution here accepts unverified attributes: the probe answers "is
// there already something between us", not "is the address provable".
func (s *Service) CanInvite(ctx context.Context, caller id.PersonID, target models.Address) (*InviteCheck, error) {
	resolved, err := s.resolveTarget(ctx, target, false)
	if err != nil {
		return nil, err
	}
	if resolved == caller && !resolved.IsNil() {
		return &InviteCheck{Allowed: false, Reason: "self"}, nil
	}

	existing, err := s.existingRelationship(ctx, caller, resolved, target)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return &InviteCheck{Allowed: true}, nil
	}
	reason := string(existing.Status)
	if existing.Status == models.StatusDeclined {
		reason = string(models.StatusPending)
	}
	return &InviteCheck{Allowed: false, Reason: reason, Connection: existing}, nil
}

// Availability returns how many new invitations the caller may send:
// min of the per-person pending headroom and the global population
// headroom, floored at zero.
func (s *Service) Availability(ctx context.Context, caller id.PersonID) (int, error) {
	total, err := s.directory.CountPeople(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count people")
	}
	if total > s.usersLimit {
		return 0, nil
	}
	pending, err := s.connections.CountPending(ctx, caller)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending invites")
	}
	limit, err := s.directory.PendingLimit(ctx, caller)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pending limit")
	}
	personal := max(limit-pending, 0)
	global := max(s.usersLimit-total, 0)
	return min(personal, global), nil
}

// InviteResult reports the outcome of an invitation.
type InviteResult struct {
	Connection *models.Connection
	MessageID  id.MessageID
	// Blocked is set when the target had blocked the sender; the
	// just-created record was destroyed and no message was sent.
	Blocked bool
	// Existing is set when the parties were already connected; the
	// returned connection is the existing record.
	Existing bool
}

// Invite creates a pending relationship toward the target and sends the
// invite message. The target resolves by person id, then verified email,
// then verified phone; an unresolved target keeps the raw address on the
// record until rebinding.
func (s *Service) Invite(ctx context.Context, caller id.PersonID, target models.Address, circleIDs []id.CircleID, subject, body string) (*InviteResult, error) {
	ctx, span := s.tracer.Start(ctx, "connection.Invite",
		trace.WithAttributes(attribute.String("from", caller.String())))
	defer span.End()

	if target.Empty() {
		return nil, dErrors.New(dErrors.CodeValidation, "invite target needs a person, email or phone")
	}

	resolved, err := s.resolveTarget(ctx, target, true)
	if err != nil {
		return nil, err
	}
	if resolved == caller && !resolved.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot invite yourself")
	}

	if !resolved.IsNil() {
		connected, err := s.connections.FindFirst(ctx, store.Filter{
			From: caller, To: resolved, Status: models.StatusConnected,
		})
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing connection")
		}
		if connected != nil {
			return &InviteResult{Connection: connected, Existing: true}, nil
		}
	}

	available, err := s.Availability(ctx, caller)
	if err != nil {
		return nil, err
	}
	if available == 0 {
		return nil, dErrors.New(dErrors.CodeStateConflict, "no invitations available")
	}

	payload, err := s.circles.BuildSharePayload(ctx, caller, circleIDs)
	if err != nil {
		return nil, err
	}

	address := target
	address.Person = resolved
	connection := models.NewPending(caller, address, circleIDs)
	if err := s.connections.Create(ctx, connection); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create connection")
	}

	if !resolved.IsNil() {
		blocked, err := s.directory.IsBlocked(ctx, caller, resolved)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check blocklist")
		}
		if blocked {
			if delErr := s.connections.Delete(ctx, connection.ID); delErr != nil {
				s.logger.Error("failed to destroy blocked connection",
					"connection_id", connection.ID, "error", delErr)
			}
			s.count(func(m *metrics.Metrics) { m.InvitesBlocked.Inc() })
			s.emit(ctx, audit.Event{
				PersonID: caller,
				Subject:  connection.ID.String(),
				Action:   string(audit.EventInviteBlocked),
				Address:  target.Email,
			})
			return &InviteResult{Blocked: true}, nil
		}
	}

	message := msgmodels.New(caller, msgmodels.KindInvite, target.Email, target.Phone)
	message.To = resolved
	message.ConnectionID = connection.ID
	message.FromName = payload.FromName
	message.FromEmail = payload.FromEmail
	message.FromPhone = payload.FromPhone
	message.ToName = target.Name
	message.Subject = subject
	if message.Subject == "" {
		message.Subject = msgmodels.InviteSubject(payload.FromName)
	}
	message.Body = body
	if message.Body == "" {
		message.Body = msgmodels.InviteBody(payload.FromName)
	}
	if err := s.messages.Record(ctx, message); err != nil {
		return nil, err
	}

	var deliveryErr error
	if _, err := s.messages.Deliver(ctx, message.ID); err != nil {
		// The records stand; the caller may resend.
		s.logger.Error("invite delivery failed", "message_id", message.ID, "error", err)
		deliveryErr = err
	}

	if !resolved.IsNil() {
		if err := s.directory.RaiseInvitationFlag(ctx, resolved); err != nil {
			s.logger.Warn("failed to raise invitation flag", "person_id", resolved, "error", err)
		}
	}

	s.count(func(m *metrics.Metrics) { m.InvitesSent.Inc() })
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  connection.ID.String(),
		Action:   string(audit.EventInviteSent),
		Address:  target.Email,
	})
	s.logger.Info("invitation sent",
		"from", caller, "connection_id", connection.ID, "resolved", !resolved.IsNil())

	return &InviteResult{Connection: connection, MessageID: message.ID}, deliveryErr
}

// Accept turns a pending invitation into a connected pair: a new record
// owned by the caller, the original flipped to connected, and the two
// linked through their inverse pointers. The pointer writes are not
// atomic; partner lookups fall back to from/to symmetry as the repair
// path.
func (s *Service) Accept(ctx context.Context, caller id.PersonID, inviteMessageID id.MessageID, circleIDs []id.CircleID) (*models.Connection, error) {
	ctx, span := s.tracer.Start(ctx, "connection.Accept",
		trace.WithAttributes(attribute.String("by", caller.String())))
	defer span.End()

	invitation, err := s.messages.Get(ctx, inviteMessageID)
	if err != nil {
		return nil, err
	}
	if invitation.Kind != msgmodels.KindInvite {
		return nil, dErrors.New(dErrors.CodeValidation, "message is not an invitation")
	}
	if invitation.To != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "invitation belongs to another person")
	}

	payload, err := s.circles.BuildSharePayload(ctx, caller, circleIDs)
	if err != nil {
		return nil, err
	}

	returnAddr := invitation.ReturnAddress()
	accepter := models.NewConnected(caller, models.Address{
		Name:   returnAddr.ToName,
		Person: returnAddr.ToPerson,
		Email:  returnAddr.Email,
		Phone:  returnAddr.Phone,
	}, circleIDs)
	if err := s.connections.Create(ctx, accepter); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create connection")
	}
	undo := func() {
		if err := s.messages.DeleteByConnection(ctx, accepter.ID); err != nil {
			s.logger.Error("accept rollback: message cleanup failed", "error", err)
		}
		if err := s.connections.Delete(ctx, accepter.ID); err != nil {
			s.logger.Error("accept rollback: connection cleanup failed", "error", err)
		}
	}

	original, err := s.connections.FindByID(ctx, invitation.ConnectionID)
	if err != nil {
		undo()
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invitation connection not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invitation connection")
	}
	if original.Status != models.StatusPending && original.Status != models.StatusDeclined {
		undo()
		return nil, dErrors.New(dErrors.CodeStateConflict, "invitation is not pending")
	}

	original.Status = models.StatusConnected
	original.To = caller
	original.Name = invitation.ToName
	original.Inverse = accepter.ID
	if err := s.connections.Save(ctx, original); err != nil {
		undo()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to connect invitation")
	}

	accepter.Inverse = original.ID
	if err := s.connections.Save(ctx, accepter); err != nil {
		// Half-paired: original points at accepter but not back. The
		// symmetry fallback still resolves the pair on read.
		s.logger.Error("inverse pointer write failed, pair is repairable by symmetry",
			"connection_id", accepter.ID, "error", err)
	}

	acceptMsg := msgmodels.New(caller, msgmodels.KindAccept, returnAddr.Email, returnAddr.Phone)
	acceptMsg.To = invitation.From
	acceptMsg.ConnectionID = accepter.ID
	acceptMsg.FromName = payload.FromName
	acceptMsg.FromEmail = payload.FromEmail
	acceptMsg.FromPhone = payload.FromPhone
	acceptMsg.ToName = invitation.FromName
	acceptMsg.Subject = msgmodels.AcceptSubject(payload.FromName)
	acceptMsg.Body = msgmodels.AcceptBody(payload.FromName)
	if err := s.messages.Record(ctx, acceptMsg); err != nil {
		s.logger.Error("failed to record accept message", "error", err)
	} else if _, err := s.messages.Deliver(ctx, acceptMsg.ID); err != nil {
		s.logger.Error("accept delivery failed", "message_id", acceptMsg.ID, "error", err)
	}

	if _, err := s.messages.MarkRead(ctx, invitation.ID); err != nil {
		s.logger.Warn("failed to mark invitation read", "message_id", invitation.ID, "error", err)
	}

	if err := s.directory.RaiseConnectionFlag(ctx, caller); err != nil {
		s.logger.Warn("failed to raise connection flag", "person_id", caller, "error", err)
	}
	if err := s.directory.RaiseInvitationFlag(ctx, invitation.From); err != nil {
		s.logger.Warn("failed to raise invitation flag", "person_id", invitation.From, "error", err)
	}

	s.count(func(m *metrics.Metrics) { m.ConnectionsAccepted.Inc() })
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  accepter.ID.String(),
		Action:   string(audit.EventConnectionAccepted),
	})
	s.logger.Info("invitation accepted",
		"by", caller, "connection_id", accepter.ID, "inverse_id", original.ID)

	return accepter, nil
}

// Decline marks the invitation read and its connection declined. The
// record is kept, unlike revoke.
func (s *Service) Decline(ctx context.Context, caller id.PersonID, inviteMessageID id.MessageID) (*models.Connection, error) {
	ctx, span := s.tracer.Start(ctx, "connection.Decline")
	defer span.End()

	invitation, err := s.messages.Get(ctx, inviteMessageID)
	if err != nil {
		return nil, err
	}
	if invitation.To != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "invitation belongs to another person")
	}
	if _, err := s.messages.MarkRead(ctx, invitation.ID); err != nil {
		return nil, err
	}

	connection, err := s.connections.FindByID(ctx, invitation.ConnectionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invitation connection not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load invitation connection")
	}
	if connection.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeStateConflict, "invitation is not pending")
	}
	connection.Status = models.StatusDeclined
	if err := s.connections.Save(ctx, connection); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decline invitation")
	}

	s.count(func(m *metrics.Metrics) { m.ConnectionsDeclined.Inc() })
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  connection.ID.String(),
		Action:   string(audit.EventConnectionDeclined),
	})
	return connection, nil
}

// Revoke withdraws a pending invitation, destroying its messages and
// the record itself.
func (s *Service) Revoke(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) error {
	ctx, span := s.tracer.Start(ctx, "connection.Revoke")
	defer span.End()

	connection, err := s.ownedConnection(ctx, caller, connectionID)
	if err != nil {
		return err
	}
	if connection.Status != models.StatusPending {
		return dErrors.New(dErrors.CodeStateConflict, "only pending invitations can be revoked")
	}
	if err := s.messages.DeleteByConnection(ctx, connection.ID); err != nil {
		return err
	}
	if err := s.connections.Delete(ctx, connection.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete connection")
	}
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  connection.ID.String(),
		Action:   string(audit.EventInviteRevoked),
	})
	return nil
}

// Disconnect destroys a connected pair and every message under both
// sides. The partner is found through the inverse pointer, or by
// from/to symmetry when the pointer is missing.
func (s *Service) Disconnect(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) error {
	ctx, span := s.tracer.Start(ctx, "connection.Disconnect")
	defer span.End()

	connection, err := s.partyConnection(ctx, caller, connectionID)
	if err != nil {
		return err
	}
	partner, err := s.findPartner(ctx, connection)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to find paired connection")
	}

	if err := s.messages.DeleteByConnection(ctx, connection.ID); err != nil {
		return err
	}
	if err := s.connections.Delete(ctx, connection.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete connection")
	}
	if partner != nil {
		if err := s.messages.DeleteByConnection(ctx, partner.ID); err != nil {
			return err
		}
		if err := s.connections.Delete(ctx, partner.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete paired connection")
		}
	}

	s.count(func(m *metrics.Metrics) { m.Disconnects.Inc() })
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  connection.ID.String(),
		Action:   string(audit.EventConnectionDestroyed),
	})
	s.logger.Info("connection destroyed", "connection_id", connection.ID, "paired", partner != nil)
	return nil
}

// RebindAddresses binds unresolved invitations matching the person's
// newly verified addresses: connections get their recipient set, invite
// messages get the recipient and display name, and the person is
// flagged about the waiting invitations.
func (s *Service) RebindAddresses(ctx context.Context, person id.PersonID, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	name, err := s.directory.DisplayName(ctx, person)
	if err != nil {
		s.logger.Warn("rebind: display name unavailable", "person_id", person, "error", err)
	}

	connections, err := s.connections.ListUnresolved(ctx, addresses)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list unresolved connections")
	}
	for _, connection := range connections {
		connection.To = person
		if err := s.connections.Save(ctx, connection); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebind connection")
		}
		s.emit(ctx, audit.Event{
			PersonID: person,
			Subject:  connection.ID.String(),
			Action:   string(audit.EventConnectionRebound),
		})
	}

	messages, err := s.messages.ListUnclaimed(ctx, msgmodels.KindInvite, addresses)
	if err != nil {
		return err
	}
	for _, message := range messages {
		message.To = person
		if name != "" {
			message.ToName = name
		}
		if err := s.messages.Save(ctx, message); err != nil {
			return err
		}
	}

	if len(connections) > 0 || len(messages) > 0 {
		if err := s.directory.RaiseInvitationFlag(ctx, person); err != nil {
			s.logger.Warn("failed to raise invitation flag", "person_id", person, "error", err)
		}
		s.logger.Info("rebound invitations",
			"person_id", person, "connections", len(connections), "messages", len(messages))
	}
	return nil
}

// SetPersonalNote stores the caller's private note about the other
// party. The id may name either side of the pair; the note lands on the
// caller's own record.
func (s *Service) SetPersonalNote(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID, note string) error {
	connection, err := s.loadConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if connection.From != caller {
		partner, err := s.findPartner(ctx, connection)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "no connection found for caller")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to find paired connection")
		}
		if partner.From != caller {
			return dErrors.New(dErrors.CodeForbidden, "connection belongs to other people")
		}
		connection = partner
	}
	connection.PersonalNote = note
	if err := s.connections.Save(ctx, connection); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save personal note")
	}
	return nil
}

// ShareCircle replaces the circles the caller discloses on an existing
// pair. The argument names the record shared with the caller; the
// change lands on the caller's own side and flags it as updated for the
// counterparty.
func (s *Service) ShareCircle(ctx context.Context, caller id.PersonID, sharedConnectionID id.ConnectionID, circleIDs []id.CircleID) (*models.Connection, error) {
	if len(circleIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "missing circles to share")
	}
	if _, err := s.circles.BuildSharePayload(ctx, caller, circleIDs); err != nil {
		return nil, err
	}

	shared, err := s.loadConnection(ctx, sharedConnectionID)
	if err != nil {
		return nil, err
	}
	if shared.To != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "connection is not shared with caller")
	}
	own, err := s.findPartner(ctx, shared)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no paired connection for caller")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find paired connection")
	}
	if own.From != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "paired connection belongs to another person")
	}

	own.Circles = circleIDs
	own.UpdateFlag = true
	if err := s.connections.Save(ctx, own); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save shared circles")
	}
	if err := s.directory.RaiseConnectionFlag(ctx, shared.From); err != nil {
		s.logger.Warn("failed to raise connection flag", "person_id", shared.From, "error", err)
	}
	return own, nil
}

// FlagCircleUpdate raises the update flag on every connection disclosing
// the circle, so counterparties see the change on their next listing.
func (s *Service) FlagCircleUpdate(ctx context.Context, circleID id.CircleID) error {
	connections, err := s.connections.ListSharingCircle(ctx, circleID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list connections by circle")
	}
	for _, connection := range connections {
		if connection.UpdateFlag {
			continue
		}
		connection.UpdateFlag = true
		if err := s.connections.Save(ctx, connection); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to flag connection update")
		}
	}
	return nil
}

// ConnectionView is one connected record disclosed to the caller, with
// the counterparty's note context.
type ConnectionView struct {
	Connection *models.Connection
	// OwnShared lists the circles the caller shares back on their own
	// side of the pair, when resolvable.
	OwnShared []id.CircleID
	// PersonalNote is read from the caller's own side.
	PersonalNote string
}

// ListConnected returns the connected records disclosed to the caller,
// clearing their update flags as they are read.
func (s *Service) ListConnected(ctx context.Context, caller id.PersonID, updatedOnly bool) ([]*ConnectionView, error) {
	connections, err := s.connections.ListByRecipient(ctx, caller, models.StatusConnected, updatedOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list connections")
	}
	views := make([]*ConnectionView, 0, len(connections))
	for _, connection := range connections {
		view := &ConnectionView{Connection: connection}
		if own, err := s.findPartner(ctx, connection); err == nil {
			view.OwnShared = own.Circles
			view.PersonalNote = own.PersonalNote
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find paired connection")
		}
		if connection.UpdateFlag {
			connection.UpdateFlag = false
			if err := s.connections.Save(ctx, connection); err != nil {
				s.logger.Warn("failed to clear update flag", "connection_id", connection.ID, "error", err)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// InviteView summarizes one invitation for listing.
type InviteView struct {
	Name         string
	Email        string
	Phone        string
	MessageID    id.MessageID
	ConnectionID id.ConnectionID
	Inverse      id.ConnectionID
	Status       models.Status
	Subject      string
	Body         string
}

// IncomingInvites lists invitations addressed to the caller and clears
// the new-invitations flag.
func (s *Service) IncomingInvites(ctx context.Context, caller id.PersonID) ([]*InviteView, error) {
	messages, err := s.messages.IncomingInvites(ctx, caller)
	if err != nil {
		return nil, err
	}
	views := make([]*InviteView, 0, len(messages))
	for _, message := range messages {
		view := &InviteView{
			Name:      message.FromName,
			Email:     message.Email,
			Phone:     message.Phone,
			MessageID: message.ID,
			Subject:   message.Subject,
			Body:      message.Body,
		}
		if connection, err := s.connections.FindByID(ctx, message.ConnectionID); err == nil {
			view.ConnectionID = connection.ID
			view.Status = connection.Status
		}
		views = append(views, view)
	}
	if err := s.directory.ClearInvitationFlag(ctx, caller); err != nil {
		s.logger.Warn("failed to clear invitation flag", "person_id", caller, "error", err)
	}
	return views, nil
}

// OutgoingInvites lists invitations the caller has sent.
func (s *Service) OutgoingInvites(ctx context.Context, caller id.PersonID) ([]*InviteView, error) {
	messages, err := s.messages.OutgoingInvites(ctx, caller)
	if err != nil {
		return nil, err
	}
	views := make([]*InviteView, 0, len(messages))
	for _, message := range messages {
		view := &InviteView{
			Name:      message.ToName,
			Email:     message.Email,
			Phone:     message.Phone,
			MessageID: message.ID,
			Subject:   message.Subject,
			Body:      message.Body,
		}
		if connection, err := s.connections.FindByID(ctx, message.ConnectionID); err == nil {
			view.ConnectionID = connection.ID
			view.Inverse = connection.Inverse
			view.Status = connection.Status
		}
		views = append(views, view)
	}
	return views, nil
}

// Get returns a connection the caller is party to.
func (s *Service) Get(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) (*models.Connection, error) {
	return s.partyConnection(ctx, caller, connectionID)
}

// ActiveBetween finds a non-declined relationship from inviter to
// recipient: connected first, then pending.
func (s *Service) ActiveBetween(ctx context.Context, inviter, recipient id.PersonID) (*models.Connection, error) {
	for _, status := range []models.Status{models.StatusConnected, models.StatusPending} {
		connection, err := s.connections.FindFirst(ctx, store.Filter{
			From: inviter, To: recipient, Status: status,
		})
		if err == nil {
			return connection, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check relationship")
		}
	}
	return nil, sentinel.ErrNotFound
}

// InviteMessageFor returns the invite message recorded under a
// connection.
func (s *Service) InviteMessageFor(ctx context.Context, connectionID id.ConnectionID) (*msgmodels.Message, error) {
	messages, err := s.messages.ListByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	for _, message := range messages {
		if message.Kind == msgmodels.KindInvite {
			return message, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no invite message for connection")
}

// AreConnected reports whether two people share a connected pair.
func (s *Service) AreConnected(ctx context.Context, a, b id.PersonID) (bool, error) {
	_, err := s.connections.FindFirst(ctx, store.Filter{
		From: a, To: b, Status: models.StatusConnected,
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check connection")
}

// findPartner resolves the other side of a pair: the inverse pointer
// when present, otherwise from/to symmetry.
func (s *Service) findPartner(ctx context.Context, connection *models.Connection) (*models.Connection, error) {
	if !connection.Inverse.IsNil() {
		partner, err := s.connections.FindByID(ctx, connection.Inverse)
		if err == nil {
			return partner, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
	}
	if connection.To.IsNil() {
		return nil, sentinel.ErrNotFound
	}
	return s.connections.FindFirst(ctx, store.Filter{
		From: connection.To, To: connection.From, Status: connection.Status,
	})
}

// resolveTarget maps an address to a person: explicit person first, then
// email, then phone. verifiedOnly controls whether unverified attributes
// may resolve.
func (s *Service) resolveTarget(ctx context.Context, target models.Address, verifiedOnly bool) (id.PersonID, error) {
	if !target.Person.IsNil() {
		return target.Person, nil
	}
	if target.Email != "" {
		var (
			person id.PersonID
			err    error
		)
		if verifiedOnly {
			person, err = s.directory.ResolveVerifiedEmail(ctx, target.Email)
		} else {
			person, err = s.directory.ResolveEmail(ctx, target.Email)
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return id.PersonID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve email")
		}
		if !person.IsNil() {
			return person, nil
		}
	}
	if target.Phone != "" {
		var (
			person id.PersonID
			err    error
		)
		if verifiedOnly {
			person, err = s.directory.ResolveVerifiedPhone(ctx, target.Phone)
		} else {
			person, err = s.directory.ResolvePhone(ctx, target.Phone)
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return id.PersonID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve phone")
		}
		if !person.IsNil() {
			return person, nil
		}
	}
	return id.PersonID{}, nil
}

// existingRelationship looks for anything standing between the parties:
// a connected pair by person, or any record aimed at the raw address.
func (s *Service) existingRelationship(ctx context.Context, caller, resolved id.PersonID, target models.Address) (*models.Connection, error) {
	if !resolved.IsNil() {
		connection, err := s.connections.FindFirst(ctx, store.Filter{
			From: caller, To: resolved, Status: models.StatusConnected,
		})
		if err == nil {
			return connection, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing connection")
		}
	}
	if target.Email == "" && target.Phone == "" {
		return nil, nil
	}
	connection, err := s.connections.FindFirst(ctx, store.Filter{
		From: caller, Email: target.Email, Phone: target.Phone,
	})
	if err == nil {
		return connection, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing connection")
}

func (s *Service) loadConnection(ctx context.Context, connectionID id.ConnectionID) (*models.Connection, error) {
	connection, err := s.connections.FindByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "connection not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load connection")
	}
	return connection, nil
}

func (s *Service) ownedConnection(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) (*models.Connection, error) {
	connection, err := s.loadConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if connection.From != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "connection belongs to another person")
	}
	return connection, nil
}

func (s *Service) partyConnection(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) (*models.Connection, error) {
	connection, err := s.loadConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if connection.From != caller && connection.To != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not a party to this connection")
	}
	return connection, nil
}

func (s *Service) count(inc func(m *metrics.Metrics)) {
	if s.metrics != nil {
		inc(s.metrics)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}
