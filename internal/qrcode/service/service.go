package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"

	circlemodels "contactshare/internal/circle/models"
	connmodels "contactshare/internal/connection/models"
	connservice "contactshare/internal/connection/service"
	msgmodels "contactshare/internal/message/models"
	"contactshare/internal/qrcode/models"
	"contactshare/internal/qrcode/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/audit"
	"contactshare/pkg/platform/sentinel"
)

// Connections answers relationship questions and drives token invites.
type Connections interface {
	ActiveBetween(ctx context.Context, inviter, recipient id.PersonID) (*connmodels.Connection, error)
	CanInvite(ctx context.Context, caller id.PersonID, target connmodels.Address) (*connservice.InviteCheck, error)
	Invite(ctx context.Context, caller id.PersonID, target connmodels.Address, circleIDs []id.CircleID, subject, body string) (*connservice.InviteResult, error)
	InviteMessageFor(ctx context.Context, connectionID id.ConnectionID) (*msgmodels.Message, error)
}

// CircleReader loads circles without an ownership check; only the
// public flag is ever disclosed to non-owners.
type CircleReader interface {
	FindByID(ctx context.Context, circleID id.CircleID) (*circlemodels.Circle, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the quick-connect token workflow.
type Service struct {
	codes       store.Store
	connections Connections
	circles     CircleReader
	logger      *slog.Logger
	publisher   AuditPublisher
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// New constructs a Service.
func New(codes store.Store, connections Connections, circles CircleReader, opts ...Option) *Service {
	s := &Service{codes: codes, connections: connections, circles: circles, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBound generates the default token for a newly provisioned
// person, attached to their default circle.
func (s *Service) CreateBound(ctx context.Context, owner id.PersonID, circleID id.CircleID) error {
	_, err := s.create(ctx, func(token string) *models.QRCode {
		return models.NewBound(token, owner, circleID, models.DefaultName)
	})
	return err
}

// Create adds another named token for the owner, bound to the given
// circle.
func (s *Service) Create(ctx context.Context, owner id.PersonID, circleID id.CircleID, name string) (*models.QRCode, error) {
	if name == "" {
		name = models.DefaultName
	}
	return s.create(ctx, func(token string) *models.QRCode {
		return models.NewBound(token, owner, circleID, name)
	})
}

// CreateUnbound generates a preprinted token for later attachment.
func (s *Service) CreateUnbound(ctx context.Context, label string) (*models.QRCode, error) {
	return s.create(ctx, func(token string) *models.QRCode {
		return models.NewUnbound(token, label)
	})
}

// create retries token generation on value collisions, bounded by the
// attempt ceiling.
func (s *Service) create(ctx context.Context, build func(token string) *models.QRCode) (*models.QRCode, error) {
	for attempt := 0; attempt < models.MaxGenerationAttempts; attempt++ {
		token, err := generateToken()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
		}
		code := build(token)
		err = s.codes.Create(ctx, code)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create token")
	}
	return nil, dErrors.New(dErrors.CodeGenerationExhausted, "could not generate a unique token")
}

// QueryResult classifies a token for the requester.
type QueryResult struct {
	Answer models.Answer
	// Mine lists the requester's own tokens for context.
	Mine []*models.QRCode
	// Connection is set for AnswerConnected.
	Connection *connmodels.Connection
	// Public is set for AnswerInvite: whether the bound circle is
	// public.
	Public bool
}

// Query classifies the token: unknown, owned by the requester, unbound
// and attachable, already related, or inviteable. The classification
// mirrors the relationship states exactly.
func (s *Service) Query(ctx context.Context, requester id.PersonID, token string) (*QueryResult, error) {
	mine, err := s.codes.ListByOwner(ctx, requester)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tokens")
	}
	result := &QueryResult{Mine: mine}

	code, err := s.codes.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			result.Answer = models.AnswerUnknown
			return result, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
	}

	if !code.Bound() {
		result.Answer = models.AnswerAttach
		return result, nil
	}
	if code.Owner == requester {
		result.Answer = models.AnswerOwned
		return result, nil
	}

	// Incoming first: a pair shows up as connected on the incoming
	// side, so outgoing only needs the pending probe.
	incoming, err := s.connections.ActiveBetween(ctx, code.Owner, requester)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check relationship")
	}
	if incoming != nil {
		result.Answer = models.AnswerConnected
		result.Connection = incoming
		return result, nil
	}
	outgoing, err := s.connections.ActiveBetween(ctx, requester, code.Owner)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check relationship")
	}
	if outgoing != nil && outgoing.Status == connmodels.StatusPending {
		result.Answer = models.AnswerConnected
		result.Connection = outgoing
		return result, nil
	}

	result.Answer = models.AnswerInvite
	if circle, err := s.circles.FindByID(ctx, code.Circle); err == nil {
		result.Public = circle.Public
	}
	return result, nil
}

// TokenInvite is the outcome of scanning a bound token.
type TokenInvite struct {
	// New reports whether a fresh invitation was created; otherwise
	// MessageID names the invite of the already-existing relationship.
	New       bool
	MessageID id.MessageID
}

// InviteFromToken turns a scan into an invitation from the token's
// owner to the scanner, disclosing the token's circle.
func (s *Service) InviteFromToken(ctx context.Context, scanner id.PersonID, token string) (*TokenInvite, error) {
	code, err := s.codes.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
	}
	if !code.Bound() {
		return nil, dErrors.New(dErrors.CodeStateConflict, "token is not attached to anyone")
	}
	if code.Owner == scanner {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot invite yourself")
	}

	check, err := s.connections.CanInvite(ctx, code.Owner, connmodels.Address{Person: scanner})
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		if check.Connection == nil {
			return nil, dErrors.New(dErrors.CodeStateConflict, "invitation is not possible")
		}
		message, err := s.connections.InviteMessageFor(ctx, check.Connection.ID)
		if err != nil {
			return nil, err
		}
		return &TokenInvite{MessageID: message.ID}, nil
	}

	result, err := s.connections.Invite(ctx, code.Owner,
		connmodels.Address{Person: scanner}, []id.CircleID{code.Circle},
		"A QR Code was scanned by you", "")
	if err != nil {
		return nil, err
	}
	return &TokenInvite{New: true, MessageID: result.MessageID}, nil
}

// Attach binds an unbound token to the caller and their circle.
// Attaching an already-bound token is refused.
func (s *Service) Attach(ctx context.Context, caller id.PersonID, token string, circleID id.CircleID) (*models.QRCode, error) {
	code, err := s.codes.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
	}
	if code.Bound() {
		return nil, dErrors.New(dErrors.CodeStateConflict, "token is already attached")
	}
	code.Owner = caller
	code.Circle = circleID
	if err := s.codes.Save(ctx, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach token")
	}
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  code.Token,
		Action:   string(audit.EventQuickConnectAttached),
	})
	return code, nil
}

// Detach clears the (owner, circle) pair so the token can be attached
// by anyone again.
func (s *Service) Detach(ctx context.Context, caller id.PersonID, token string) error {
	code, err := s.ownedCode(ctx, caller, token)
	if err != nil {
		return err
	}
	code.Owner = id.PersonID{}
	code.Circle = id.CircleID{}
	if err := s.codes.Save(ctx, code); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach token")
	}
	s.emit(ctx, audit.Event{
		PersonID: caller,
		Subject:  code.Token,
		Action:   string(audit.EventQuickConnectDetached),
	})
	return nil
}

// SetCircle rebinds the token to another of the caller's circles, and
// optionally renames it.
func (s *Service) SetCircle(ctx context.Context, caller id.PersonID, token string, circleID id.CircleID, name string) (*models.QRCode, error) {
	code, err := s.ownedCode(ctx, caller, token)
	if err != nil {
		return nil, err
	}
	code.Circle = circleID
	if name != "" {
		code.Name = name
	}
	if err := s.codes.Save(ctx, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save token")
	}
	return code, nil
}

// ListByOwner returns the caller's tokens.
func (s *Service) ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.QRCode, error) {
	codes, err := s.codes.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tokens")
	}
	return codes, nil
}

// DestroyForOwner removes every token bound to the person. Used by
// provisioning rollback and profile deletion.
func (s *Service) DestroyForOwner(ctx context.Context, owner id.PersonID) error {
	if err := s.codes.DeleteByOwner(ctx, owner); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete tokens")
	}
	return nil
}

func (s *Service) ownedCode(ctx context.Context, caller id.PersonID, token string) (*models.QRCode, error) {
	code, err := s.codes.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load token")
	}
	if code.Owner != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "token belongs to another person")
	}
	return code, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}

func generateToken() (string, error) {
	out := make([]byte, models.TokenLength)
	alphabetLen := big.NewInt(int64(len(models.Alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		out[i] = models.Alphabet[n.Int64()]
	}
	return string(out), nil
}
