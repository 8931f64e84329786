package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contactshare/internal/message/models"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/httputil"
	"contactshare/pkg/requestcontext"
)

// MessageService is the ledger surface exposed over HTTP: resend and
// read receipts.
type MessageService interface {
	Resend(ctx context.Context, caller id.PersonID, messageID id.MessageID) (*models.Message, error)
	MarkRead(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	Get(ctx context.Context, messageID id.MessageID) (*models.Message, error)
}

type MessageHandler struct {
	service MessageService
	logger  *slog.Logger
}

func NewMessageHandler(service MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: logger}
}

func (h *MessageHandler) Register(r chi.Router) {
	r.Post("/messages/{id}/resend", h.HandleResend)
	r.Post("/messages/{id}/read", h.HandleMarkRead)
}

type MessageResponse struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Read    bool   `json:"read"`
	Sent    int    `json:"sent"`
	Emailed bool   `json:"emailed"`
	Texted  bool   `json:"texted"`
}

func toMessageResponse(m *models.Message) *MessageResponse {
	return &MessageResponse{
		ID:      m.ID.String(),
		Kind:    string(m.Kind),
		Subject: m.Subject,
		Read:    m.Read,
		Sent:    m.Sent,
		Emailed: m.Emailed,
		Texted:  m.Texted,
	}
}

func (h *MessageHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	messageID, err := id.ParseMessageID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message id"))
		return
	}
	message, err := h.service.Resend(ctx, person, messageID)
	if err != nil {
		h.logger.WarnContext(ctx, "resend failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMessageResponse(message))
}

func (h *MessageHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	messageID, err := id.ParseMessageID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message id"))
		return
	}
	// Only a participant may mark a message read.
	message, err := h.service.Get(ctx, messageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if message.From != person && message.To != person {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "message belongs to another conversation"))
		return
	}
	message, err = h.service.MarkRead(ctx, messageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMessageResponse(message))
}
