package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	attrmodels "contactshare/internal/attribute/models"
	"contactshare/internal/circle/models"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/sentinel"
)

// Default circle names created at signup. Public exists as a future
// default but is disabled by policy.
const (
	WorkCircleName     = "Work"
	PersonalCircleName = "Personal"
	PublicCircleName   = "Public"
)

type Store interface {
	Create(ctx context.Context, circle *models.Circle) error
	FindByID(ctx context.Context, circleID id.CircleID) (*models.Circle, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Circle, error)
	Save(ctx context.Context, circle *models.Circle) error
	Delete(ctx context.Context, circleID id.CircleID) error
	ListContaining(ctx context.Context, attributeID id.AttributeID) ([]*models.Circle, error)
}

// AttributeReader resolves circle members to their attribute records.
type AttributeReader interface {
	FindByID(ctx context.Context, attributeID id.AttributeID) (*attrmodels.Attribute, error)
}

// SharePayload is the sender-side contact summary disclosed with an
// invitation, built from the first shared circle.
type SharePayload struct {
	FromName  string
	FromEmail string
	FromPhone string
}

// Service manages disclosure circles.
type Service struct {
	circles       Store
	attributes    AttributeReader
	logger        *slog.Logger
	includePublic bool
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublicCircle enables automatic creation of the Public circle at
// signup. Off by default.
func WithPublicCircle() Option {
	return func(s *Service) {
		s.includePublic = true
	}
}

// New constructs a Service.
func New(circles Store, attributes AttributeReader, opts ...Option) *Service {
	s := &Service{circles: circles, attributes: attributes, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDefaults builds the signup circles from the person's initial
// attributes: emails go to Work and Personal, phones to Personal only,
// given and family names everywhere. Work is the default circle. The
// returned slice is ordered; the first element is the default.
func (s *Service) CreateDefaults(ctx context.Context, owner id.PersonID, attributes []*attrmodels.Attribute) ([]*models.Circle, error) {
	var work, personal, public []id.AttributeID
	for _, attr := range attributes {
		switch attr.Kind {
		case attrmodels.KindEmail:
			work = append(work, attr.ID)
			personal = append(personal, attr.ID)
		case attrmodels.KindPhone:
			personal = append(personal, attr.ID)
		case attrmodels.KindGivenName, attrmodels.KindFamilyName:
			work = append(work, attr.ID)
			personal = append(personal, attr.ID)
			public = append(public, attr.ID)
		}
	}
	if len(work) == 0 || len(personal) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "default circles need at least one name or contact attribute")
	}

	workCircle, err := models.New(owner, WorkCircleName, work, 0)
	if err != nil {
		return nil, err
	}
	workCircle.Default = true

	personalCircle, err := models.New(owner, PersonalCircleName, personal, 1)
	if err != nil {
		return nil, err
	}

	circles := []*models.Circle{workCircle, personalCircle}
	if s.includePublic {
		publicCircle, err := models.New(owner, PublicCircleName, public, 2)
		if err != nil {
			return nil, err
		}
		publicCircle.Public = true
		circles = append(circles, publicCircle)
	}

	for _, circle := range circles {
		if err := s.circles.Create(ctx, circle); err != nil {
			for _, created := range circles {
				if created == circle {
					break
				}
				if delErr := s.circles.Delete(ctx, created.ID); delErr != nil {
					s.logger.Error("rollback of default circle failed",
						"circle_id", created.ID, "error", delErr)
				}
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create default circles")
		}
	}

	s.logger.Info("default circles created", "person_id", owner, "count", len(circles))
	return circles, nil
}

// Create adds a new private circle for the owner, ordered after the
// existing ones.
func (s *Service) Create(ctx context.Context, owner id.PersonID, name string, attributes []id.AttributeID) (*models.Circle, error) {
	if len(attributes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "a circle needs at least one attribute")
	}
	for _, attributeID := range attributes {
		if _, err := s.ownedAttribute(ctx, owner, attributeID); err != nil {
			return nil, err
		}
	}
	existing, err := s.circles.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list circles")
	}

	circle, err := models.New(owner, name, attributes, len(existing))
	if err != nil {
		return nil, err
	}
	if err := s.circles.Create(ctx, circle); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create circle")
	}
	return circle, nil
}

// Get returns a circle the caller owns.
func (s *Service) Get(ctx context.Context, caller id.PersonID, circleID id.CircleID) (*models.Circle, error) {
	return s.ownedCircle(ctx, caller, circleID)
}

// ListByOwner returns the owner's circles ordered by position.
func (s *Service) ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Circle, error) {
	circles, err := s.circles.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list circles")
	}
	return circles, nil
}

// Delete removes a non-default circle.
func (s *Service) Delete(ctx context.Context, caller id.PersonID, circleID id.CircleID) error {
	circle, err := s.ownedCircle(ctx, caller, circleID)
	if err != nil {
		return err
	}
	if circle.Default {
		return dErrors.New(dErrors.CodeStateConflict, "the default circle cannot be deleted")
	}
	if err := s.circles.Delete(ctx, circleID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete circle")
	}
	return nil
}

// Destroy removes a circle unconditionally, tolerating records that are
// already gone. Used by profile teardown and saga compensation, where
// the default-circle guard must not apply.
func (s *Service) Destroy(ctx context.Context, circleID id.CircleID) error {
	if err := s.circles.Delete(ctx, circleID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to destroy circle")
	}
	return nil
}

// ToggleMembership adds or removes an attribute. Adding is idempotent;
// removing the last member is refused.
func (s *Service) ToggleMembership(ctx context.Context, caller id.PersonID, circleID id.CircleID, attributeID id.AttributeID, add bool) (*models.Circle, error) {
	circle, err := s.ownedCircle(ctx, caller, circleID)
	if err != nil {
		return nil, err
	}
	if add {
		if _, err := s.ownedAttribute(ctx, caller, attributeID); err != nil {
			return nil, err
		}
		circle.Add(attributeID)
	} else {
		if err := circle.Remove(attributeID); err != nil {
			return nil, err
		}
	}
	if err := s.circles.Save(ctx, circle); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save circle")
	}
	return circle, nil
}

// DisplayName concatenates the circle's name-part attributes in prefix,
// given, middle, family, suffix order, skipping absent parts.
func (s *Service) DisplayName(ctx context.Context, circle *models.Circle) (string, error) {
	parts := make(map[attrmodels.AttributeKind]string)
	for _, attributeID := range circle.Attributes {
		attr, err := s.attributes.FindByID(ctx, attributeID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load circle attribute")
		}
		if attr.IsNamePart() {
			parts[attr.Kind] = attr.ResolvedValue()
		}
	}

	order := []attrmodels.AttributeKind{
		attrmodels.KindPrefix,
		attrmodels.KindGivenName,
		attrmodels.KindMiddleName,
		attrmodels.KindFamilyName,
		attrmodels.KindSuffix,
	}
	var words []string
	for _, kind := range order {
		if value := strings.TrimSpace(parts[kind]); value != "" {
			words = append(words, value)
		}
	}
	return strings.Join(words, " "), nil
}

// PrimaryEmail returns the first email in the circle, or "".
func (s *Service) PrimaryEmail(ctx context.Context, circle *models.Circle) (string, error) {
	return s.firstValueOfKind(ctx, circle, attrmodels.KindEmail)
}

// PrimaryPhone returns the first phone in the circle, or "".
func (s *Service) PrimaryPhone(ctx context.Context, circle *models.Circle) (string, error) {
	return s.firstValueOfKind(ctx, circle, attrmodels.KindPhone)
}

// BuildSharePayload resolves the sender-side disclosure for an invite
// from the shared circles. The first circle is the primary source of the
// name and contact fields.
func (s *Service) BuildSharePayload(ctx context.Context, caller id.PersonID, circleIDs []id.CircleID) (SharePayload, error) {
	if len(circleIDs) == 0 {
		return SharePayload{}, dErrors.New(dErrors.CodeValidation, "missing circles to share")
	}
	primary, err := s.ownedCircle(ctx, caller, circleIDs[0])
	if err != nil {
		return SharePayload{}, err
	}
	for _, circleID := range circleIDs[1:] {
		if _, err := s.ownedCircle(ctx, caller, circleID); err != nil {
			return SharePayload{}, err
		}
	}

	name, err := s.DisplayName(ctx, primary)
	if err != nil {
		return SharePayload{}, err
	}
	email, err := s.PrimaryEmail(ctx, primary)
	if err != nil {
		return SharePayload{}, err
	}
	phone, err := s.PrimaryPhone(ctx, primary)
	if err != nil {
		return SharePayload{}, err
	}
	return SharePayload{FromName: name, FromEmail: email, FromPhone: phone}, nil
}

// ListContaining returns the circles an attribute is a member of,
// regardless of owner. Used to flag connections whose disclosure changed.
func (s *Service) ListContaining(ctx context.Context, attributeID id.AttributeID) ([]*models.Circle, error) {
	circles, err := s.circles.ListContaining(ctx, attributeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list circles by attribute")
	}
	return circles, nil
}

// RemoveFromAll drops the attribute from every circle it belongs to,
// skipping circles where it is the last member.
func (s *Service) RemoveFromAll(ctx context.Context, attributeID id.AttributeID) error {
	circles, err := s.circles.ListContaining(ctx, attributeID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list circles by attribute")
	}
	for _, circle := range circles {
		if err := circle.Remove(attributeID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeStateConflict) {
				s.logger.Warn("attribute left in place as last circle member",
					"circle_id", circle.ID, "attribute_id", attributeID)
				continue
			}
			return err
		}
		if err := s.circles.Save(ctx, circle); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save circle")
		}
	}
	return nil
}

func (s *Service) firstValueOfKind(ctx context.Context, circle *models.Circle, kind attrmodels.AttributeKind) (string, error) {
	for _, attributeID := range circle.Attributes {
		attr, err := s.attributes.FindByID(ctx, attributeID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load circle attribute")
		}
		if attr.Kind == kind {
			return attr.ResolvedValue(), nil
		}
	}
	return "", nil
}

func (s *Service) ownedCircle(ctx context.Context, caller id.PersonID, circleID id.CircleID) (*models.Circle, error) {
	circle, err := s.circles.FindByID(ctx, circleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "circle not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load circle")
	}
	if circle.Owner != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "circle belongs to another person")
	}
	return circle, nil
}

func (s *Service) ownedAttribute(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) (*attrmodels.Attribute, error) {
	attr, err := s.attributes.FindByID(ctx, attributeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "attribute not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attribute")
	}
	if attr.Owner != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "attribute belongs to another person")
	}
	return attr, nil
}
