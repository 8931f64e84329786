package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	attrmodels "contactshare/internal/attribute/models"
	"contactshare/internal/profile/models"
	profileservice "contactshare/internal/profile/service"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/httputil"
	"contactshare/pkg/requestcontext"
)

// ProfileService is the provisioning and blocklist surface exposed over
// HTTP. Returns domain objects, not response DTOs.
type ProfileService interface {
	Provision(ctx context.Context, person id.PersonID, input profileservice.ProvisionInput) (*models.Profile, error)
	Get(ctx context.Context, person id.PersonID) (*models.Profile, error)
	Delete(ctx context.Context, person id.PersonID) error
	Block(ctx context.Context, person, target id.PersonID) error
	Unblock(ctx context.Context, person, target id.PersonID) error
	Blocklist(ctx context.Context, person id.PersonID) ([]models.Block, error)
}

type ProfileHandler struct {
	service ProfileService
	logger  *slog.Logger
}

func NewProfileHandler(service ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{service: service, logger: logger}
}

func (h *ProfileHandler) Register(r chi.Router) {
	r.Post("/profile", h.HandleProvision)
	r.Get("/profile", h.HandleGet)
	r.Delete("/profile", h.HandleDelete)
	r.Get("/profile/blocks", h.HandleBlocklist)
	r.Post("/profile/blocks/{personID}", h.HandleBlock)
	r.Delete("/profile/blocks/{personID}", h.HandleUnblock)
}

type ProvisionRequest struct {
	FullName         string `json:"full_name"`
	GivenName        string `json:"given_name"`
	FamilyName       string `json:"family_name"`
	Email            string `json:"email"`
	WorkEmail        string `json:"work_email"`
	Phone            string `json:"phone"`
	PhoneCountryCode string `json:"phone_country_code"`
	PhoneType        string `json:"phone_type"`
}

func (r *ProvisionRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.GivenName = strings.TrimSpace(r.GivenName)
	r.FamilyName = strings.TrimSpace(r.FamilyName)
	r.Email = strings.TrimSpace(r.Email)
	r.WorkEmail = strings.TrimSpace(r.WorkEmail)
}

func (r *ProvisionRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.GivenName == "" || r.FamilyName == "" {
		return dErrors.New(dErrors.CodeValidation, "given and family name are required")
	}
	return nil
}

type ProfileResponse struct {
	ID             string   `json:"id"`
	Person         string   `json:"person_id"`
	Name           string   `json:"name"`
	PrimaryEmail   string   `json:"primary_email"`
	PrimaryPhone   string   `json:"primary_phone,omitempty"`
	DefaultCircle  string   `json:"default_circle_id,omitempty"`
	Circles        []string `json:"circle_ids"`
	NewInvitations bool     `json:"new_invitations"`
	NewConnections bool     `json:"new_connections"`
}

func toProfileResponse(p *models.Profile) *ProfileResponse {
	out := &ProfileResponse{
		ID:             p.ID.String(),
		Person:         p.Person.String(),
		Name:           p.Name,
		PrimaryEmail:   p.PrimaryEmail,
		PrimaryPhone:   p.PrimaryPhone,
		Circles:        make([]string, 0, len(p.Circles)),
		NewInvitations: p.NewInvitations,
		NewConnections: p.NewConnections,
	}
	if !p.DefaultCircle.IsNil() {
		out.DefaultCircle = p.DefaultCircle.String()
	}
	for _, circleID := range p.Circles {
		out.Circles = append(out.Circles, circleID.String())
	}
	return out
}

func (h *ProfileHandler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProvisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	profile, err := h.service.Provision(ctx, person, profileservice.ProvisionInput{
		FullName:         req.FullName,
		GivenName:        req.GivenName,
		FamilyName:       req.FamilyName,
		Email:            req.Email,
		WorkEmail:        req.WorkEmail,
		Phone:            req.Phone,
		PhoneCountryCode: req.PhoneCountryCode,
		PhoneType:        attrmodels.PhoneType(req.PhoneType),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "provisioning failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.service.Get(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *ProfileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, person); err != nil {
		h.logger.ErrorContext(ctx, "profile deletion failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	h.toggleBlock(w, r, h.service.Block)
}

func (h *ProfileHandler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	h.toggleBlock(w, r, h.service.Unblock)
}

func (h *ProfileHandler) toggleBlock(w http.ResponseWriter, r *http.Request, op func(context.Context, id.PersonID, id.PersonID) error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	target, err := id.ParsePersonID(chi.URLParam(r, "personID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid person id"))
		return
	}
	if err := op(ctx, person, target); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) HandleBlocklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	blocks, err := h.service.Blocklist(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(blocks))
	for _, block := range blocks {
		out = append(out, map[string]string{"person_id": block.Blocked.String()})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"blocked": out})
}
