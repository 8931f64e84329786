package service

import (
	"context"
	"errors"
	"log/slog"

	attrmodels "contactshare/internal/attribute/models"
	circlemodels "contactshare/internal/circle/models"
	"contactshare/internal/platform/metrics"
	"contactshare/internal/profile/models"
	"contactshare/internal/profile/store"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/audit"
	"contactshare/pkg/platform/sentinel"
)

// Attributes is the attribute-engine collaborator used during
// provisioning and person resolution.
type Attributes interface {
	CreateEmail(ctx context.Context, owner id.PersonID, address, label string) (*attrmodels.Attribute, error)
	CreatePhone(ctx context.Context, owner id.PersonID, number, label, countryCode string, phoneType attrmodels.PhoneType) (*attrmodels.Attribute, error)
	CreateScalar(ctx context.Context, owner id.PersonID, kind attrmodels.AttributeKind, value string) (*attrmodels.Attribute, error)
	// Destroy removes an attribute unconditionally, tolerating records
	// that are already gone. Used by saga compensation.
	Destroy(ctx context.Context, attributeID id.AttributeID) error
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*attrmodels.Attribute, error)
	FindByValue(ctx context.Context, kind attrmodels.AttributeKind, value string, verifiedOnly bool) (*attrmodels.Attribute, error)
}

// Circles builds and tears down default disclosure circles.
type Circles interface {
	CreateDefaults(ctx context.Context, owner id.PersonID, attributes []*attrmodels.Attribute) ([]*circlemodels.Circle, error)
	// Destroy removes a circle unconditionally, tolerating records that
	// are already gone. Used by teardown and saga compensation.
	Destroy(ctx context.Context, circleID id.CircleID) error
}

// Tokens binds the default quick-connect token at signup.
type Tokens interface {
	CreateBound(ctx context.Context, owner id.PersonID, circleID id.CircleID) error
	DestroyForOwner(ctx context.Context, owner id.PersonID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service provisions and manages identity profiles. It also serves as
// the person directory for the other modules: attribute resolution,
// display names, limits, notification flags and the blocklist.
type Service struct {
	profiles   store.Store
	blocks     store.BlockStore
	attributes Attributes
	circles    Circles
	tokens     Tokens
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  AuditPublisher

	// pendingLimit applies when a profile carries no explicit cap.
	pendingLimit int
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

// WithPendingLimit overrides the default per-person invitation cap.
func WithPendingLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.pendingLimit = limit
		}
	}
}

// New constructs a Service. Tokens is bound later via SetTokens; the
// quick-connect module is itself wired against the connection engine,
// which consults this directory.
func New(profiles store.Store, blocks store.BlockStore, attributes Attributes, circles Circles, opts ...Option) *Service {
	s := &Service{
		profiles:     profiles,
		blocks:       blocks,
		attributes:   attributes,
		circles:      circles,
		logger:       slog.Default(),
		pendingLimit: models.DefaultPendingLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTokens binds the quick-connect collaborator.
func (s *Service) SetTokens(tokens Tokens) {
	s.tokens = tokens
}

// ProvisionInput is the initial identity material for a new person.
type ProvisionInput struct {
	FullName   string
	GivenName  string
	FamilyName string
	Email      string
	// WorkEmail and Phone are optional.
	WorkEmail        string
	Phone            string
	PhoneCountryCode string
	PhoneType        attrmodels.PhoneType
}

type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context)
}

// Provision runs the signup workflow: attributes, profile, default
// circles plus quick-connect token, then the circle references on the
// profile. Each step has a compensation; on failure the completed steps
// are compensated in reverse and the causing error is returned, so
// callers only ever observe fully succeeded or fully rolled back.
func (s *Service) Provision(ctx context.Context, person id.PersonID, input ProvisionInput) (*models.Profile, error) {
	if input.FullName == "" || input.GivenName == "" || input.FamilyName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "full, given and family names are required")
	}
	if input.Email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "an email address is required")
	}

	var (
		created []*attrmodels.Attribute
		profile *models.Profile
		circles []*circlemodels.Circle
	)

	steps := []sagaStep{
		{
			name: "attributes",
			run: func(ctx context.Context) error {
				specs := []func() (*attrmodels.Attribute, error){
					func() (*attrmodels.Attribute, error) {
						return s.attributes.CreateScalar(ctx, person, attrmodels.KindFullName, input.FullName)
					},
					func() (*attrmodels.Attribute, error) {
						return s.attributes.CreateScalar(ctx, person, attrmodels.KindGivenName, input.GivenName)
					},
					func() (*attrmodels.Attribute, error) {
						return s.attributes.CreateScalar(ctx, person, attrmodels.KindFamilyName, input.FamilyName)
					},
					func() (*attrmodels.Attribute, error) {
						return s.attributes.CreateEmail(ctx, person, input.Email, attrmodels.LabelPersonal)
					},
				}
				if input.WorkEmail != "" {
					specs = append(specs, func() (*attrmodels.Attribute, error) {
						return s.attributes.CreateEmail(ctx, person, input.WorkEmail, attrmodels.LabelWork)
					})
				}
				if input.Phone != "" {
					specs = append(specs, func() (*attrmodels.Attribute, error) {
						return s.attributes.CreatePhone(ctx, person, input.Phone, attrmodels.LabelPersonal, input.PhoneCountryCode, input.PhoneType)
					})
				}
				for _, create := range specs {
					attr, err := create()
					if err != nil {
						return err
					}
					created = append(created, attr)
				}
				return nil
			},
			compensate: func(ctx context.Context) {
				for _, attr := range created {
					if err := s.attributes.Destroy(ctx, attr.ID); err != nil {
						s.logger.Error("rollback: attribute destroy failed",
							"attribute_id", attr.ID, "error", err)
					}
				}
			},
		},
		{
			name: "profile",
			run: func(ctx context.Context) error {
				var err error
				profile, err = models.New(person, input.FullName, input.Email)
				if err != nil {
					return err
				}
				profile.PrimaryPhone = input.Phone
				for _, attr := range created {
					profile.Attributes = append(profile.Attributes, attr.ID)
				}
				if err := s.profiles.Create(ctx, profile); err != nil {
					if errors.Is(err, sentinel.ErrConflict) {
						return dErrors.New(dErrors.CodeConflict, "person already has a profile")
					}
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
				}
				return nil
			},
			compensate: func(ctx context.Context) {
				if profile == nil {
					return
				}
				if err := s.profiles.Delete(ctx, profile.ID); err != nil {
					s.logger.Error("rollback: profile delete failed",
						"profile_id", profile.ID, "error", err)
				}
			},
		},
		{
			name: "circles and token",
			run: func(ctx context.Context) error {
				attrs, err := s.attributes.ListByOwner(ctx, person)
				if err != nil {
					return err
				}
				circles, err = s.circles.CreateDefaults(ctx, person, attrs)
				if err != nil {
					return err
				}
				return s.tokens.CreateBound(ctx, person, circles[0].ID)
			},
			compensate: func(ctx context.Context) {
				if err := s.tokens.DestroyForOwner(ctx, person); err != nil {
					s.logger.Error("rollback: token destroy failed", "person_id", person, "error", err)
				}
				for _, circle := range circles {
					if err := s.circles.Destroy(ctx, circle.ID); err != nil {
						s.logger.Error("rollback: circle destroy failed",
							"circle_id", circle.ID, "error", err)
					}
				}
			},
		},
		{
			name: "persist circles",
			run: func(ctx context.Context) error {
				profile.DefaultCircle = circles[0].ID
				for _, circle := range circles {
					profile.Circles = append(profile.Circles, circle.ID)
				}
				if err := s.profiles.Save(ctx, profile); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist circles on profile")
				}
				return nil
			},
			compensate: func(ctx context.Context) {},
		},
	}

	for i, step := range steps {
		if err := step.run(ctx); err != nil {
			s.logger.Error("provisioning failed, rolling back",
				"person_id", person, "step", step.name, "error", err)
			for j := i; j >= 0; j-- {
				steps[j].compensate(ctx)
			}
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.ProfilesProvisioned.Inc()
	}
	s.emit(ctx, audit.Event{
		PersonID: person,
		Subject:  profile.ID.String(),
		Action:   string(audit.EventProfileProvisioned),
	})
	s.logger.Info("profile provisioned", "person_id", person, "profile_id", profile.ID)
	return profile, nil
}

// Get loads the person's profile.
func (s *Service) Get(ctx context.Context, person id.PersonID) (*models.Profile, error) {
	return s.byPerson(ctx, person)
}

// Delete destroys the profile and everything under it: attributes,
// circles and the quick-connect token.
func (s *Service) Delete(ctx context.Context, person id.PersonID) error {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		return err
	}
	if err := s.tokens.DestroyForOwner(ctx, person); err != nil {
		s.logger.Error("token destroy failed", "person_id", person, "error", err)
	}
	for _, circleID := range profile.Circles {
		if err := s.circles.Destroy(ctx, circleID); err != nil {
			s.logger.Error("circle destroy failed", "circle_id", circleID, "error", err)
		}
	}
	for _, attributeID := range profile.Attributes {
		if err := s.attributes.Destroy(ctx, attributeID); err != nil {
			s.logger.Error("attribute destroy failed", "attribute_id", attributeID, "error", err)
		}
	}
	if err := s.profiles.Delete(ctx, profile.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete profile")
	}
	s.emit(ctx, audit.Event{
		PersonID: person,
		Subject:  profile.ID.String(),
		Action:   string(audit.EventProfileDeleted),
	})
	return nil
}

// RepointPrimary swaps the identity-level primary copy of a contact
// value onto a substitute attribute. Called when the backing attribute
// is deleted.
func (s *Service) RepointPrimary(ctx context.Context, person id.PersonID, kind attrmodels.AttributeKind, value string) error {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		return err
	}
	switch kind {
	case attrmodels.KindEmail:
		profile.PrimaryEmail = value
	case attrmodels.KindPhone:
		profile.PrimaryPhone = value
	default:
		return nil
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to repoint primary value")
	}
	return nil
}

// DetachAttribute drops the attribute reference from the profile.
func (s *Service) DetachAttribute(ctx context.Context, person id.PersonID, attributeID id.AttributeID) error {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		return err
	}
	kept := profile.Attributes[:0]
	for _, existing := range profile.Attributes {
		if existing != attributeID {
			kept = append(kept, existing)
		}
	}
	profile.Attributes = kept
	if err := s.profiles.Save(ctx, profile); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach attribute")
	}
	return nil
}

// AttachAttribute appends the attribute reference to the profile.
func (s *Service) AttachAttribute(ctx context.Context, person id.PersonID, attributeID id.AttributeID) error {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		return err
	}
	for _, existing := range profile.Attributes {
		if existing == attributeID {
			return nil
		}
	}
	profile.Attributes = append(profile.Attributes, attributeID)
	if err := s.profiles.Save(ctx, profile); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach attribute")
	}
	return nil
}

// Block adds the target to the caller's blocklist.
func (s *Service) Block(ctx context.Context, person, target id.PersonID) error {
	if person == target {
		return dErrors.New(dErrors.CodeValidation, "cannot block yourself")
	}
	if err := s.blocks.Add(ctx, models.Block{Person: person, Blocked: target}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add block")
	}
	return nil
}

// Unblock removes the target from the caller's blocklist.
func (s *Service) Unblock(ctx context.Context, person, target id.PersonID) error {
	if err := s.blocks.Remove(ctx, person, target); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove block")
	}
	return nil
}

// Blocklist returns the people the caller has blocked.
func (s *Service) Blocklist(ctx context.Context, person id.PersonID) ([]models.Block, error) {
	blocks, err := s.blocks.ListByPerson(ctx, person)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list blocks")
	}
	return blocks, nil
}

// Directory surface, consumed by the connection engine.

// IsBlocked reports whether contact between the two people is blocked
// in either direction.
func (s *Service) IsBlocked(ctx context.Context, person, by id.PersonID) (bool, error) {
	return s.blocks.Exists(ctx, person, by)
}

func (s *Service) ResolveVerifiedEmail(ctx context.Context, address string) (id.PersonID, error) {
	return s.resolve(ctx, attrmodels.KindEmail, address, true)
}

func (s *Service) ResolveVerifiedPhone(ctx context.Context, number string) (id.PersonID, error) {
	return s.resolve(ctx, attrmodels.KindPhone, number, true)
}

func (s *Service) ResolveEmail(ctx context.Context, address string) (id.PersonID, error) {
	return s.resolve(ctx, attrmodels.KindEmail, address, false)
}

func (s *Service) ResolvePhone(ctx context.Context, number string) (id.PersonID, error) {
	return s.resolve(ctx, attrmodels.KindPhone, number, false)
}

func (s *Service) resolve(ctx context.Context, kind attrmodels.AttributeKind, value string, verifiedOnly bool) (id.PersonID, error) {
	attr, err := s.attributes.FindByValue(ctx, kind, value, verifiedOnly)
	if err != nil {
		return id.PersonID{}, err
	}
	return attr.Owner, nil
}

// DisplayName returns the person's profile name.
func (s *Service) DisplayName(ctx context.Context, person id.PersonID) (string, error) {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		return "", err
	}
	return profile.Name, nil
}

// PendingLimit returns the person's invitation cap.
func (s *Service) PendingLimit(ctx context.Context, person id.PersonID) (int, error) {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return s.pendingLimit, nil
		}
		return 0, err
	}
	if profile.PendingLimit <= 0 {
		return s.pendingLimit, nil
	}
	return profile.PendingLimit, nil
}

// CountPeople returns the provisioned population size.
func (s *Service) CountPeople(ctx context.Context) (int, error) {
	return s.profiles.Count(ctx)
}

func (s *Service) RaiseInvitationFlag(ctx context.Context, person id.PersonID) error {
	return s.setFlag(ctx, person, func(p *models.Profile) { p.NewInvitations = true })
}

func (s *Service) ClearInvitationFlag(ctx context.Context, person id.PersonID) error {
	return s.setFlag(ctx, person, func(p *models.Profile) { p.NewInvitations = false })
}

func (s *Service) RaiseConnectionFlag(ctx context.Context, person id.PersonID) error {
	return s.setFlag(ctx, person, func(p *models.Profile) { p.NewConnections = true })
}

func (s *Service) ClearConnectionFlag(ctx context.Context, person id.PersonID) error {
	return s.setFlag(ctx, person, func(p *models.Profile) { p.NewConnections = false })
}

func (s *Service) setFlag(ctx context.Context, person id.PersonID, set func(p *models.Profile)) error {
	profile, err := s.byPerson(ctx, person)
	if err != nil {
		return err
	}
	set(profile)
	if err := s.profiles.Save(ctx, profile); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile flag")
	}
	return nil
}

func (s *Service) byPerson(ctx context.Context, person id.PersonID) (*models.Profile, error) {
	profile, err := s.profiles.FindByPerson(ctx, person)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return profile, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}
