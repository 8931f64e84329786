package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contactshare/internal/connection/models"
	connservice "contactshare/internal/connection/service"
	id "contactshare/pkg/domain"
	dErrors "contactshare/pkg/domain-errors"
	"contactshare/pkg/platform/httputil"
	"contactshare/pkg/requestcontext"
)

// ConnectionService is the relationship negotiation surface exposed
// over HTTP.
type ConnectionService interface {
	CanInvite(ctx context.Context, caller id.PersonID, target models.Address) (*connservice.InviteCheck, error)
	Availability(ctx context.Context, caller id.PersonID) (int, error)
	Invite(ctx context.Context, caller id.PersonID, target models.Address, circleIDs []id.CircleID, subject, body string) (*connservice.InviteResult, error)
	Accept(ctx context.Context, caller id.PersonID, inviteMessageID id.MessageID, circleIDs []id.CircleID) (*models.Connection, error)
	Decline(ctx context.Context, caller id.PersonID, inviteMessageID id.MessageID) (*models.Connection, error)
	Revoke(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) error
	Disconnect(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID) error
	SetPersonalNote(ctx context.Context, caller id.PersonID, connectionID id.ConnectionID, note string) error
	ShareCircle(ctx context.Context, caller id.PersonID, sharedConnectionID id.ConnectionID, circleIDs []id.CircleID) (*models.Connection, error)
	ListConnected(ctx context.Context, caller id.PersonID, updatedOnly bool) ([]*connservice.ConnectionView, error)
	IncomingInvites(ctx context.Context, caller id.PersonID) ([]*connservice.InviteView, error)
	OutgoingInvites(ctx context.Context, caller id.PersonID) ([]*connservice.InviteView, error)
}

type ConnectionHandler struct {
	service ConnectionService
	logger  *slog.Logger
}

func NewConnectionHandler(service ConnectionService, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{service: service, logger: logger}
}

func (h *ConnectionHandler) Register(r chi.Router) {
	r.Get("/connections", h.HandleList)
	r.Get("/connections/availability", h.HandleAvailability)
	r.Post("/connections/check", h.HandleCanInvite)
	r.Post("/connections/invite", h.HandleInvite)
	r.Post("/connections/accept", h.HandleAccept)
	r.Post("/connections/decline", h.HandleDecline)
	r.Post("/connections/{id}/revoke", h.HandleRevoke)
	r.Delete("/connections/{id}", h.HandleDisconnect)
	r.Put("/connections/{id}/note", h.HandleSetNote)
	r.Put("/connections/{id}/circles", h.HandleShareCircle)
	r.Get("/connections/invites/incoming", h.HandleIncomingInvites)
	r.Get("/connections/invites/outgoing", h.HandleOutgoingInvites)
}

// TargetRequest addresses a person by id, email or phone.
type TargetRequest struct {
	PersonID string `json:"person_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

func (t *TargetRequest) address() (models.Address, error) {
	address := models.Address{Email: t.Email, Phone: t.Phone}
	if t.PersonID != "" {
		person, err := id.ParsePersonID(t.PersonID)
		if err != nil {
			return models.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid person id")
		}
		address.Person = person
	}
	if address.Empty() {
		return models.Address{}, dErrors.New(dErrors.CodeValidation, "target requires a person id, email or phone")
	}
	return address, nil
}

type InviteRequest struct {
	Target  TargetRequest `json:"target"`
	Circles []string      `json:"circle_ids"`
	Subject string        `json:"subject,omitempty"`
	Body    string        `json:"body,omitempty"`
}

type ConnectionResponse struct {
	ID           string   `json:"id"`
	From         string   `json:"from_person_id"`
	To           string   `json:"to_person_id,omitempty"`
	Inverse      string   `json:"inverse_id,omitempty"`
	Status       string   `json:"status"`
	Circles      []string `json:"circle_ids"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	PersonalNote string   `json:"personal_note,omitempty"`
	Updated      bool     `json:"updated"`
}

func toConnectionResponse(c *models.Connection) *ConnectionResponse {
	out := &ConnectionResponse{
		ID:           c.ID.String(),
		From:         c.From.String(),
		Status:       string(c.Status),
		Circles:      make([]string, 0, len(c.Circles)),
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		PersonalNote: c.PersonalNote,
		Updated:      c.UpdateFlag,
	}
	if !c.To.IsNil() {
		out.To = c.To.String()
	}
	if !c.Inverse.IsNil() {
		out.Inverse = c.Inverse.String()
	}
	for _, circleID := range c.Circles {
		out.Circles = append(out.Circles, circleID.String())
	}
	return out
}

func (h *ConnectionHandler) HandleCanInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[TargetRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	address, err := req.address()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	check, err := h.service.CanInvite(ctx, person, address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := map[string]any{"allowed": check.Allowed}
	if check.Reason != "" {
		out["reason"] = check.Reason
	}
	if check.Connection != nil {
		out["connection"] = toConnectionResponse(check.Connection)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *ConnectionHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	available, err := h.service.Availability(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"available_invites": available})
}

func (h *ConnectionHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[InviteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	address, err := req.Target.address()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	circleIDs, err := parseCircleIDs(req.Circles)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Invite(ctx, person, address, circleIDs, req.Subject, req.Body)
	if err != nil && result == nil {
		h.logger.WarnContext(ctx, "invite failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	out := map[string]any{
		"blocked":  result.Blocked,
		"existing": result.Existing,
	}
	if result.Connection != nil {
		out["connection"] = toConnectionResponse(result.Connection)
	}
	if !result.MessageID.IsNil() {
		out["message_id"] = result.MessageID.String()
	}
	if err != nil {
		// The records stand; only delivery failed.
		out["delivery_error"] = err.Error()
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

type AcceptRequest struct {
	MessageID string   `json:"message_id"`
	Circles   []string `json:"circle_ids"`
}

func (h *ConnectionHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[AcceptRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	messageID, err := id.ParseMessageID(req.MessageID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message id"))
		return
	}
	circleIDs, err := parseCircleIDs(req.Circles)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	connection, err := h.service.Accept(ctx, person, messageID, circleIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "accept failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConnectionResponse(connection))
}

type DeclineRequest struct {
	MessageID string `json:"message_id"`
}

func (h *ConnectionHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeJSON[DeclineRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	messageID, err := id.ParseMessageID(req.MessageID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid message id"))
		return
	}
	connection, err := h.service.Decline(ctx, person, messageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConnectionResponse(connection))
}

func (h *ConnectionHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	h.connectionOp(w, r, h.service.Revoke)
}

func (h *ConnectionHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.connectionOp(w, r, h.service.Disconnect)
}

func (h *ConnectionHandler) connectionOp(w http.ResponseWriter, r *http.Request, op func(context.Context, id.PersonID, id.ConnectionID) error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	connectionID, err := id.ParseConnectionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
		return
	}
	if err := op(ctx, person, connectionID); err != nil {
		h.logger.WarnContext(ctx, "connection operation failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type NoteRequest struct {
	Note string `json:"note"`
}

func (h *ConnectionHandler) HandleSetNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	connectionID, err := id.ParseConnectionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
		return
	}
	req, ok := httputil.DecodeJSON[NoteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.SetPersonalNote(ctx, person, connectionID, req.Note); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ShareCircleRequest struct {
	Circles []string `json:"circle_ids"`
}

func (h *ConnectionHandler) HandleShareCircle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	connectionID, err := id.ParseConnectionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
		return
	}
	req, ok := httputil.DecodeJSON[ShareCircleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	circleIDs, err := parseCircleIDs(req.Circles)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	connection, err := h.service.ShareCircle(ctx, person, connectionID, circleIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConnectionResponse(connection))
}

func (h *ConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	updatedOnly := r.URL.Query().Get("updated") == "true"
	views, err := h.service.ListConnected(ctx, person, updatedOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(views))
	for _, view := range views {
		entry := map[string]any{
			"connection":    toConnectionResponse(view.Connection),
			"personal_note": view.PersonalNote,
		}
		shared := make([]string, 0, len(view.OwnShared))
		for _, circleID := range view.OwnShared {
			shared = append(shared, circleID.String())
		}
		entry["own_circle_ids"] = shared
		out = append(out, entry)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (h *ConnectionHandler) HandleIncomingInvites(w http.ResponseWriter, r *http.Request) {
	h.listInvites(w, r, h.service.IncomingInvites)
}

func (h *ConnectionHandler) HandleOutgoingInvites(w http.ResponseWriter, r *http.Request) {
	h.listInvites(w, r, h.service.OutgoingInvites)
}

func (h *ConnectionHandler) listInvites(w http.ResponseWriter, r *http.Request, op func(context.Context, id.PersonID) ([]*connservice.InviteView, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	person, err := httputil.RequirePersonID(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := op(ctx, person)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(views))
	for _, view := range views {
		entry := map[string]any{
			"name":       view.Name,
			"email":      view.Email,
			"phone":      view.Phone,
			"message_id": view.MessageID.String(),
			"status":     string(view.Status),
			"subject":    view.Subject,
			"body":       view.Body,
		}
		if !view.ConnectionID.IsNil() {
			entry["connection_id"] = view.ConnectionID.String()
		}
		out = append(out, entry)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"invites": out})
}

func parseCircleIDs(raw []string) ([]id.CircleID, error) {
	out := make([]id.CircleID, 0, len(raw))
	for _, s := range raw {
		circleID, err := id.ParseCircleID(s)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid circle id")
		}
		out = append(out, circleID)
	}
	return out, nil
}
