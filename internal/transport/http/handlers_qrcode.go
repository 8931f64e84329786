package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contactshare/internal/qrcode/models"
	qrservice "contactshare/internal/qrcode/service"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/httputil"
	"contactshare/pkg/requestcontext"
)

// QRCodeService is the quick-connect token surface exposed over HTTP.
type QRCodeService interface {
	Create(ctx context.Context, owner id.PersonID, circleID id.CircleID, name string) (*models.QRCode, error)
	CreateUnbound(ctx context.Context, label string) (*models.QRCode, error)
	Query(ctx context.Context, requester id.PersonID, token string) (*qrservice.QueryResult, error)
	Attach(ctx context.Context, caller id.PersonID, token string, circleID id.CircleID) (*models.QRCode, error)
	Detach(ctx context.Context, caller id.PersonID, token string) error
	SetCircle(ctx context.Context, caller id.PersonID, token string, circleID id.CircleID, name string) (*models.QRCode, error)
	ListByOwner(ctx context.Context, owner id.PersonID) ([]*models.QRCode, error)
	InviteFromToken(ctx context.Context, scanner id.PersonID, token string) (*qrservice.TokenInvite, error)
}

type QRCodeHandler struct {
	service QRCodeService
	logger  *slog.Logger
}

func NewQRCodeHandler(service QRCodeService, logger *slog.Logger) *QRCodeHandler {
	return &QRCodeHandler{service: service, logger: logger}
}

func (h *QRCodeHandler) Register(r chi.Router) {
	r.Get("/qrcodes", h.HandleList)
	r.Post("/qrcodes", h.HandleCreate)
	r.Post("/qrcodes/unbound", h.HandleCreateUnbound)
	r.Get("/qrcodes/{token}", h.HandleQuery)
	r.Post("/qrcodes/{token}/attach", h.HandleAttach)
	r.Post("/qrcodes/{token}/detach", h.HandleDetach)
	r.Put("/qrcodes/{token}", h.HandleSetCircle)
	r.Post("/qrcodes/{token}/invite", h.HandleInviteFromToken)
}

type QRCodeResponse struct {
	Token      string `json:"token"`
	Name       string `json:"name,omitempty"`
	Label      string `json:"label,omitempty"`
	CircleID   string `json:"circle_id,omitempty"`
	Bound      bool   `json:"bound"`
	Preprinted bool   `json:"preprinted"`
}

func toQRCodeResponse(q *models.QRCode) *QRCodeResponse {
	out := &QRCodeResponse{
		Token:      q.Token,
		Name:       q.Name,
		Label:      q.Label,
		Bound:      q.Bound(),
		Preprinted: q.Preprinted,
	}
	if !q.Circle.IsNil() {
		out.CircleID = q.Circle.String()
	}
	return out
}

func (h *QRCodeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	codes, err := h.service.ListByOwner(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*QRCodeResponse, 0, len(codes))
	for _, code := range codes {
		out = append(out, toQRCodeResponse(code))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"qrcodes": out})
}

type CreateQRCodeRequest struct {
	CircleID string `json:"circle_id"`
	Name     string `json:"name,omitempty"`
}

func (h *QRCodeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[CreateQRCodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	circleID, err := id.ParseCircleID(req.CircleID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid circle id"))
		return
	}
	code, err := h.service.Create(ctx, person, circleID, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "token create failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toQRCodeResponse(code))
}

type CreateUnboundRequest struct {
	Label string `json:"label"`
}

func (h *QRCodeHandler) HandleCreateUnbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if _, err := httputil.RequirePersonID(ctx, h.logger, requestID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[CreateUnboundRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	code, err := h.service.CreateUnbound(ctx, req.Label)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toQRCodeResponse(code))
}

func (h *QRCodeHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Query(ctx, person, chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	mine := make([]*QRCodeResponse, 0, len(result.Mine))
	for _, code := range result.Mine {
		mine = append(mine, toQRCodeResponse(code))
	}
	out := map[string]any{
		"answer": string(result.Answer),
		"mine":   mine,
	}
	if result.Connection != nil {
		out["connection"] = toConnectionResponse(result.Connection)
	}
	if result.Answer == models.AnswerInvite {
		out["public"] = result.Public
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type AttachRequest struct {
	CircleID string `json:"circle_id"`
}

func (h *QRCodeHandler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[AttachRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	circleID, err := id.ParseCircleID(req.CircleID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid circle id"))
		return
	}
	code, err := h.service.Attach(ctx, person, chi.URLParam(r, "token"), circleID)
	if err != nil {
		h.logger.WarnContext(ctx, "token attach failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQRCodeResponse(code))
}

func (h *QRCodeHandler) HandleDetach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Detach(ctx, person, chi.URLParam(r, "token")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SetCircleRequest struct {
	CircleID string `json:"circle_id"`
	Name     string `json:"name,omitempty"`
}

func (h *QRCodeHandler) HandleSetCircle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[SetCircleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	circleID, err := id.ParseCircleID(req.CircleID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid circle id"))
		return
	}
	code, err := h.service.SetCircle(ctx, person, chi.URLParam(r, "token"), circleID, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQRCodeResponse(code))
}

func (h *QRCodeHandler) HandleInviteFromToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.InviteFromToken(ctx, person, chi.URLParam(r, "token"))
	if err != nil {
		h.logger.WarnContext(ctx, "token invite failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	status := "existent"
	if result.New {
		status = "new"
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":     status,
		"message_id": result.MessageID.String(),
	})
}
