package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contactshare/internal/circle/models"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/httputil"
	"contactshare/pkg/requestcontext"
)

// CircleService is the disclosure group surface exposed over HTTP.
type CircleService interface {
	Create(ctx context.Context, owner id.PersonID, name string, attributes []id.AttributeID) (*models.Circle, error)
	Get(ctx context.Context, caller id.PersonID, circleID id.CircleID) (*models.Circle, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Circle, error)
	Delete(ctx context.Context, caller id.PersonID, circleID id.CircleID) error
	ToggleMembership(ctx context.Context, caller id.PersonID, circleID id.CircleID, attributeID id.AttributeID, add bool) (*models.Circle, error)
}

// CircleUpdates marks shared copies of a circle stale after its
// membership changes.
type CircleUpdates interface {
	FlagCircleUpdate(ctx context.Context, circleID id.CircleID) error
}

type CircleHandler struct {
	service CircleService
	updates CircleUpdates
	logger  *slog.Logger
}

func NewCircleHandler(service CircleService, updates CircleUpdates, logger *slog.Logger) *CircleHandler {
	return &CircleHandler{service: service, updates: updates, logger: logger}
}

func (h *CircleHandler) Register(r chi.Router) {
	r.Get("/circles", h.HandleList)
	r.Post("/circles", h.HandleCreate)
	r.Get("/circles/{id}", h.HandleGet)
	r.Delete("/circles/{id}", h.HandleDelete)
	r.Post("/circles/{id}/members", h.HandleToggleMembership)
}

type CreateCircleRequest struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attribute_ids"`
}

func (r *CreateCircleRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

type CircleResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Attributes []string `json:"attribute_ids"`
	Order      int      `json:"order"`
	Default    bool     `json:"default"`
	Public     bool     `json:"public"`
}

func toCircleResponse(c *models.Circle) *CircleResponse {
	out := &CircleResponse{
		ID:         c.ID.String(),
		Name:       c.Name,
		Attributes: make([]string, 0, len(c.Attributes)),
		Order:      c.Order,
		Default:    c.Default,
		Public:     c.Public,
	}
	for _, attributeID := range c.Attributes {
		out.Attributes = append(out.Attributes, attributeID.String())
	}
	return out
}

func (h *CircleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	circles, err := h.service.ListByOwner(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*CircleResponse, 0, len(circles))
	for _, circle := range circles {
		out = append(out, toCircleResponse(circle))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"circles": out})
}

func (h *CircleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateCircleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	attributeIDs, err := parseAttributeIDs(req.Attributes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	circle, err := h.service.Create(ctx, person, req.Name, attributeIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "circle create failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCircleResponse(circle))
}

func (h *CircleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	circleID, err := id.ParseCircleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid circle id"))
		return
	}
	circle, err := h.service.Get(ctx, person, circleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCircleResponse(circle))
}

func (h *CircleHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	circleID, err := id.ParseCircleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid circle id"))
		return
	}
	if err := h.service.Delete(ctx, person, circleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ToggleMembershipRequest struct {
	AttributeID string `json:"attribute_id"`
	Add         bool   `json:"add"`
}

func (h *CircleHandler) HandleToggleMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	circleID, err := id.ParseCircleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid circle id"))
		return
	}
	req, ok := httputil.DecodeJSON[ToggleMembershipRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	attributeID, err := id.ParseAttributeID(req.AttributeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attribute id"))
		return
	}
	circle, err := h.service.ToggleMembership(ctx, person, circleID, attributeID, req.Add)
	if err != nil {
		h.logger.WarnContext(ctx, "membership toggle failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	// Everyone the circle was shared with sees it as updated.
	if err := h.updates.FlagCircleUpdate(ctx, circleID); err != nil {
		h.logger.WarnContext(ctx, "failed to flag shared copies", "error", err, "request_id", requestID)
	}
	httputil.WriteJSON(w, http.StatusOK, toCircleResponse(circle))
}

func parseAttributeIDs(raw []string) ([]id.AttributeID, error) {
	out := make([]id.AttributeID, 0, len(raw))
	for _, s := range raw {
		attributeID, err := id.ParseAttributeID(s)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid attribute id")
		}
		out = append(out, attributeID)
	}
	return out, nil
}
