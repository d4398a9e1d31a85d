package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fishtank/internal/forms/models"
	"fishtank/pkg/platform/httputil"
	"fishtank/pkg/requestcontext"
)

// Service defines the form operations exposed over JSON.
type Service interface {
	Open(ctx context.Context, form models.FormName, role string) (*models.OpenResult, error)
	Schema(form models.FormName, role string) (*models.SchemaResponse, error)
	Update(ctx context.Context, cmd models.UpdateCommand) (*models.StateSnapshot, error)
	Submit(ctx context.Context, cmd models.SubmitCommand) (*models.SubmitResult, error)
}

const (
	clientAPI = "api"
	clientBot = "bot"
)

// Handler serves the JSON form API.
type Handler struct {
	forms  Service
	logger *slog.Logger
}

func New(forms Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{forms: forms, logger: logger}
}

// Register registers the session and schema routes. Submissions are
// registered separately so the router can put the rate limiter in front.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/forms/{form}/sessions", h.HandleOpen)
	r.Get("/api/forms/{form}/schema", h.HandleSchema)
	r.Post("/api/forms/{form}/sessions/state", h.HandleUpdateState)
}

func (h *Handler) RegisterSubmissions(r chi.Router) {
	r.Post("/api/forms/{form}/submissions", h.HandleSubmit)
}

// HandleOpen implements POST /api/forms/{form}/sessions?role=
//
// Output: { "instance_id": "...", "ticket": "...", "role": "innovator", "roles": [...], "fields": [...] }
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	form, ok := h.formParam(w, r)
	if !ok {
		return
	}

	res, err := h.forms.Open(ctx, form, r.URL.Query().Get("role"))
	if err != nil {
		h.logger.WarnContext(ctx, "open form session failed",
			"error", err,
			"form", form,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	role := res.Session.State.Role()
	httputil.WriteJSON(w, http.StatusCreated, &models.SessionResponse{
		InstanceID: res.Session.InstanceID.String(),
		Form:       res.Definition.Name,
		Ticket:     res.Ticket,
		MountedAt:  res.Session.MountedAt,
		Role:       role,
		Roles:      res.Definition.Roles(),
		Fields:     res.Definition.FieldsFor(role),
		Honeypot:   models.HoneypotField,
	})
}

// HandleSchema implements GET /api/forms/{form}/schema?role=
func (h *Handler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	form, ok := h.formParam(w, r)
	if !ok {
		return
	}
	res, err := h.forms.Schema(form, r.URL.Query().Get("role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleUpdateState implements POST /api/forms/{form}/sessions/state
//
// Input: { "ticket": "...", "role": "investor", "values": {"email": "..."} }
func (h *Handler) HandleUpdateState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	form, ok := h.formParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateStateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	snap, err := h.forms.Update(ctx, models.UpdateCommand{
		Form:   form,
		Ticket: req.Ticket,
		Role:   req.Role,
		Values: req.Values,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "update form state failed",
			"error", err,
			"form", form,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.StateResponse{
		Role:   snap.Role,
		Values: snap.Values,
		Fields: snap.Fields,
	})
}

// HandleSubmit implements POST /api/forms/{form}/submissions
//
// Input: { "ticket": "...", "role": "creator", "values": {...}, "honeypot": "" }
// Output: { "outcome": "success", "state": "success", "message": "...", "values": {} }
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	form, ok := h.formParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	client := clientAPI
	if requestcontext.ClientBot(ctx) {
		client = clientBot
	}
	res, err := h.forms.Submit(ctx, models.SubmitCommand{
		Form:     form,
		Ticket:   req.Ticket,
		Role:     req.Role,
		Values:   req.Values,
		Honeypot: req.Honeypot,
		Client:   client,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "submission refused",
			"error", err,
			"form", form,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, OutcomeStatus(res.Outcome.Kind), &models.SubmitResponse{
		Outcome:       res.Outcome.Kind,
		State:         res.Report.State,
		Message:       res.Report.Message,
		MissingLabels: res.Outcome.MissingLabels,
		Role:          res.Role,
		Values:        res.Values,
	})
}

// OutcomeStatus maps a flow outcome onto the HTTP status of the answer.
func OutcomeStatus(kind models.OutcomeKind) int {
	switch kind {
	case models.OutcomeSuccess:
		return http.StatusOK
	case models.OutcomeValidationFailed:
		return http.StatusUnprocessableEntity
	case models.OutcomeSpamRejected:
		return http.StatusForbidden
	case models.OutcomeBusy:
		return http.StatusConflict
	case models.OutcomeRelayRejected, models.OutcomeTransportError:
		return http.StatusBadGateway
	case models.OutcomeConfigMissing:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) formParam(w http.ResponseWriter, r *http.Request) (models.FormName, bool) {
	form, err := models.ParseFormName(chi.URLParam(r, "form"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return form, true
}
