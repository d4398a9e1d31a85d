// Package site serves the HTML host page of the application and feedback
// forms. It works without scripts: every interaction is a form post that
// re-renders the page from the server-side form state.
package site

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	formsHandler "fishtank/internal/forms/handler"
	"fishtank/internal/forms/models"
	dErrors "fishtank/pkg/domain-errors"
	"fishtank/pkg/platform/httputil"
	"fishtank/pkg/platform/sanitize"
	"fishtank/pkg/platform/validation"
	"fishtank/pkg/requestcontext"
)

// FormService is the part of the forms service the page needs.
type FormService interface {
	Open(ctx context.Context, form models.FormName, role string) (*models.OpenResult, error)
	Update(ctx context.Context, cmd models.UpdateCommand) (*models.StateSnapshot, error)
	Submit(ctx context.Context, cmd models.SubmitCommand) (*models.SubmitResult, error)
}

const (
	fieldTicket     = "ticket"
	fieldRole       = "role"
	fieldSwitchRole = "switch_role"
	fieldIntent     = "intent"
	intentSwitch    = "switch"

	clientBrowser = "browser"
	clientBot     = "bot"

	messageExpired = "Your form session expired. Please try again."
)

var reserved = map[string]struct{}{
	fieldTicket: {}, fieldRole: {}, fieldSwitchRole: {}, fieldIntent: {},
	ticketField(models.FormApply): {}, ticketField(models.FormFeedback): {},
	models.HoneypotField: {},
}

type Handler struct {
	forms    FormService
	renderer *Renderer
	logger   *slog.Logger
}

func New(forms FormService, renderer *Renderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{forms: forms, renderer: renderer, logger: logger}
}

// Register mounts the page routes. submitGuard wraps the handler that
// submits (role switches bypass it); pass nil for none.
func (h *Handler) Register(r chi.Router, submitGuard func(http.Handler) http.Handler) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/apply", http.StatusFound)
	})
	r.Get("/apply", h.HandlePage)
	for _, form := range []models.FormName{models.FormApply, models.FormFeedback} {
		var submit http.Handler = h.submitHandler(form)
		if submitGuard != nil {
			submit = submitGuard(submit)
		}
		r.Post("/"+form.String(), h.postHandler(form, submit))
	}
}

// HandlePage implements GET /apply?role=. An unknown role falls back to
// the default instead of failing the page.
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apply, err := h.mount(ctx, models.FormApply, r.URL.Query().Get(fieldRole))
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		apply, err = h.mount(ctx, models.FormApply, "")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	feedback, err := h.mount(ctx, models.FormFeedback, "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pair(models.FormApply, apply, feedback))
}

type postedForm struct {
	ticket      string
	otherTicket string
	role        string
	switchTo    string
	values      models.Values
	honeypot    string
}

func parsePosted(form models.FormName, pf url.Values) postedForm {
	p := postedForm{
		ticket:      pf.Get(fieldTicket),
		otherTicket: pf.Get(ticketField(other(form))),
		role:        pf.Get(fieldRole),
		switchTo:    pf.Get(fieldSwitchRole),
		honeypot:    pf.Get(models.HoneypotField),
	}
	if p.switchTo == "" && pf.Get(fieldIntent) == intentSwitch {
		p.switchTo = p.role
	}
	raw := make(map[string]string, len(pf))
	for k := range pf {
		if _, skip := reserved[k]; skip {
			continue
		}
		raw[k] = pf.Get(k)
	}
	p.values = sanitize.Values(raw)
	return p
}

type postedKey struct{}

func (h *Handler) postHandler(form models.FormName, submit http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
			return
		}
		p := parsePosted(form, r.PostForm)
		if err := validation.CheckValues(p.values); err != nil {
			h.fail(w, r, err)
			return
		}
		if p.switchTo != "" {
			h.switchRole(w, r, form, p)
			return
		}
		submit.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), postedKey{}, p)))
	}
}

func (h *Handler) switchRole(w http.ResponseWriter, r *http.Request, form models.FormName, p postedForm) {
	ctx := r.Context()
	snap, err := h.forms.Update(ctx, models.UpdateCommand{
		Form: form, Ticket: p.ticket, Role: p.switchTo, Values: p.values,
	})
	if dErrors.HasCode(err, dErrors.CodeBusy) {
		h.pending(w, r, form, p, err)
		return
	}
	if err != nil {
		h.remount(w, r, form, p, err)
		return
	}
	current := formView(snap.Definition, p.ticket, snap.Role, snap.Values, nil)
	h.render(w, r, http.StatusOK, pair(form, current, h.restore(ctx, other(form), p.otherTicket)))
}

func (h *Handler) submitHandler(form models.FormName) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, _ := ctx.Value(postedKey{}).(postedForm)

		client := clientBrowser
		if requestcontext.ClientBot(ctx) {
			client = clientBot
		}
		res, err := h.forms.Submit(ctx, models.SubmitCommand{
			Form:     form,
			Ticket:   p.ticket,
			Role:     p.role,
			Values:   p.values,
			Honeypot: p.honeypot,
			Client:   client,
		})
		if err != nil {
			h.remount(w, r, form, p, err)
			return
		}
		report := res.Report
		current := formView(res.Definition, p.ticket, res.Role, res.Values, &report)
		status := formsHandler.OutcomeStatus(res.Outcome.Kind)
		h.render(w, r, status, pair(form, current, h.restore(ctx, other(form), p.otherTicket)))
	}
}

// pending re-renders the posted form as it stands while its submission is
// still being relayed.
func (h *Handler) pending(w http.ResponseWriter, r *http.Request, form models.FormName, p postedForm, err error) {
	ctx := r.Context()
	snap, curErr := h.forms.Update(ctx, models.UpdateCommand{Form: form, Ticket: p.ticket})
	if curErr != nil {
		h.fail(w, r, curErr)
		return
	}
	report := &models.Report{State: models.StateSubmitting}
	var de *dErrors.Error
	if errors.As(err, &de) {
		report.Message = de.Message
	}
	current := formView(snap.Definition, p.ticket, snap.Role, snap.Values, report)
	h.render(w, r, http.StatusConflict, pair(form, current, h.restore(ctx, other(form), p.otherTicket)))
}

// remount handles a refused request. A stale ticket or a tampered role
// gets a fresh instance that keeps what the visitor typed.
func (h *Handler) remount(w http.ResponseWriter, r *http.Request, form models.FormName, p postedForm, err error) {
	ctx := r.Context()
	if !dErrors.HasCode(err, dErrors.CodeInvalidTicket) && !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		h.fail(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "remounting form after refused post",
		"form", form,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)

	res, openErr := h.forms.Open(ctx, form, "")
	if openErr != nil {
		h.fail(w, r, openErr)
		return
	}
	snap, updErr := h.forms.Update(ctx, models.UpdateCommand{Form: form, Ticket: res.Ticket, Values: p.values})
	if updErr != nil {
		h.fail(w, r, updErr)
		return
	}
	report := &models.Report{State: models.StateError, Message: messageExpired}
	current := formView(snap.Definition, res.Ticket, snap.Role, snap.Values, report)
	h.render(w, r, httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)),
		pair(form, current, h.restore(ctx, other(form), p.otherTicket)))
}

// restore rebuilds the form that was not posted from its ticket, or mounts
// a new one when the ticket is missing or no longer valid.
func (h *Handler) restore(ctx context.Context, form models.FormName, ticket string) FormView {
	if ticket != "" {
		snap, err := h.forms.Update(ctx, models.UpdateCommand{Form: form, Ticket: ticket})
		if err == nil {
			return formView(snap.Definition, ticket, snap.Role, snap.Values, nil)
		}
	}
	v, err := h.mount(ctx, form, "")
	if err != nil {
		h.logger.ErrorContext(ctx, "mount form failed",
			"form", form,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return FormView{Name: form}
	}
	return v
}

func (h *Handler) mount(ctx context.Context, form models.FormName, role string) (FormView, error) {
	res, err := h.forms.Open(ctx, form, role)
	if err != nil {
		return FormView{}, err
	}
	return formView(res.Definition, res.Ticket, res.Session.State.Role(), nil, nil), nil
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, view *PageView) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, view); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	status := httputil.DomainCodeToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "page request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	http.Error(w, http.StatusText(status), status)
}

// pair places the posted form and the other one on the page. Each form
// carries the other's ticket so the next post can restore it.
func pair(posted models.FormName, current, rest FormView) *PageView {
	current.OtherTicketField, current.OtherTicket = ticketField(rest.Name), rest.Ticket
	rest.OtherTicketField, rest.OtherTicket = ticketField(current.Name), current.Ticket
	if posted == models.FormApply {
		return &PageView{Apply: current, Feedback: rest}
	}
	return &PageView{Apply: rest, Feedback: current}
}

func ticketField(form models.FormName) string {
	return form.String() + "_ticket"
}

func other(form models.FormName) models.FormName {
	if form == models.FormApply {
		return models.FormFeedback
	}
	return models.FormApply
}
