package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contactshare/internal/attribute/models"
	attrservice "contactshare/internal/attribute/service"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/httputil"
	"contactshare/pkg/requestcontext"
)

// AttributeService is the attribute engine surface exposed over HTTP.
type AttributeService interface {
	CreateEmail(ctx context.Context, owner id.PersonID, address, label string) (*models.Attribute, error)
	CreatePhone(ctx context.Context, owner id.PersonID, number, label, countryCode string, phoneType models.PhoneType) (*models.Attribute, error)
	CreateDomain(ctx context.Context, owner id.PersonID, hostname string) (*models.Attribute, error)
	CreateScalar(ctx context.Context, owner id.PersonID, kind models.AttributeKind, value string) (*models.Attribute, error)
	EditEmail(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, address, label string) (*models.Attribute, error)
	EditPhone(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, number, label, countryCode string, phoneType models.PhoneType) (*models.Attribute, error)
	EditDomain(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, hostname string) (*models.Attribute, error)
	EditScalar(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, value string) (*models.Attribute, error)
	InitiateVerification(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) (*attrservice.Challenge, error)
	ConfirmVerification(ctx context.Context, caller id.PersonID, attributeID id.AttributeID, proof string) (*models.Attribute, error)
	Delete(ctx context.Context, caller id.PersonID, attributeID id.AttributeID) error
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.Attribute, error)
}

type AttributeHandler struct {
	service AttributeService
	logger  *slog.Logger
}

func NewAttributeHandler(service AttributeService, logger *slog.Logger) *AttributeHandler {
	return &AttributeHandler{service: service, logger: logger}
}

func (h *AttributeHandler) Register(r chi.Router) {
	r.Get("/attributes", h.HandleList)
	r.Post("/attributes", h.HandleCreate)
	r.Put("/attributes/{id}", h.HandleEdit)
	r.Delete("/attributes/{id}", h.HandleDelete)
	r.Post("/attributes/{id}/verification", h.HandleInitiateVerification)
	r.Post("/attributes/{id}/confirmation", h.HandleConfirmVerification)
}

// AttributeRequest covers create and edit. Kind selects which fields
// apply; on edit the kind must match the stored attribute.
type AttributeRequest struct {
	Kind        string `json:"kind"`
	Value       string `json:"value,omitempty"`
	Label       string `json:"label,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	PhoneType   string `json:"phone_type,omitempty"`
}

func (r *AttributeRequest) Validate() error {
	if r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	return nil
}

type AttributeResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	Label       string `json:"label,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	PhoneType   string `json:"phone_type,omitempty"`
	Verified    bool   `json:"verified"`
	Exportable  bool   `json:"exportable"`
}

func toAttributeResponse(a *models.Attribute) *AttributeResponse {
	out := &AttributeResponse{
		ID:         a.ID.String(),
		Kind:       string(a.Kind),
		Value:      a.ResolvedValue(),
		Verified:   a.Verified,
		Exportable: a.Exportable,
	}
	switch {
	case a.Email != nil:
		out.Label = a.Email.Label
	case a.Phone != nil:
		out.Label = a.Phone.Label
		out.CountryCode = a.Phone.CountryCode
		out.PhoneType = string(a.Phone.Type)
	}
	return out
}

func (h *AttributeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attributes, err := h.service.ListByOwner(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*AttributeResponse, 0, len(attributes))
	for _, attribute := range attributes {
		out = append(out, toAttributeResponse(attribute))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"attributes": out})
}

func (h *AttributeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var attribute *models.Attribute
	switch models.AttributeKind(req.Kind) {
	case models.KindEmail:
		attribute, err = h.service.CreateEmail(ctx, person, req.Value, req.Label)
	case models.KindPhone:
		attribute, err = h.service.CreatePhone(ctx, person, req.Value, req.Label, req.CountryCode, models.PhoneType(req.PhoneType))
	case models.KindDomain:
		attribute, err = h.service.CreateDomain(ctx, person, req.Value)
	default:
		attribute, err = h.service.CreateScalar(ctx, person, models.AttributeKind(req.Kind), req.Value)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "attribute create failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAttributeResponse(attribute))
}

func (h *AttributeHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attribute id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var attribute *models.Attribute
	switch models.AttributeKind(req.Kind) {
	case models.KindEmail:
		attribute, err = h.service.EditEmail(ctx, person, attributeID, req.Value, req.Label)
	case models.KindPhone:
		attribute, err = h.service.EditPhone(ctx, person, attributeID, req.Value, req.Label, req.CountryCode, models.PhoneType(req.PhoneType))
	case models.KindDomain:
		attribute, err = h.service.EditDomain(ctx, person, attributeID, req.Value)
	default:
		attribute, err = h.service.EditScalar(ctx, person, attributeID, req.Value)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "attribute edit failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAttributeResponse(attribute))
}

func (h *AttributeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attribute id"))
		return
	}
	if err := h.service.Delete(ctx, person, attributeID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttributeHandler) HandleInitiateVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attribute id"))
		return
	}
	challenge, err := h.service.InitiateVerification(ctx, person, attributeID)
	if err != nil {
		h.logger.WarnContext(ctx, "verification initiation failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	out := map[string]string{"channel": challenge.Channel}
	if challenge.TXTRecord != "" {
		out["txt_record"] = challenge.TXTRecord
		out["txt_value"] = challenge.TXTValue
	}
	httputil.WriteJSON(w, http.StatusAccepted, out)
}

type ConfirmRequest struct {
	Proof string `json:"proof"`
}

func (h *AttributeHandler) HandleConfirmVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attributeID, err := id.ParseAttributeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attribute id"))
		return
	}
	req, ok := httputil.DecodeJSON[ConfirmRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	attribute, err := h.service.ConfirmVerification(ctx, person, attributeID, req.Proof)
	if err != nil {
		h.logger.WarnContext(ctx, "verification confirm failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAttributeResponse(attribute))
}
