// Package service runs the form flow: mounting instances, tracking entered
// values and pushing submissions through guard, validation and the relay.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fishtank/internal/forms/metrics"
	"fishtank/internal/forms/models"
	"fishtank/pkg/domain"
	dErrors "fishtank/pkg/domain-errors"
	"fishtank/pkg/platform/tracer"
	"fishtank/pkg/requestcontext"
)

const defaultSessionTTL = 2 * time.Hour

// Config holds the tunables of the flow.
type Config struct {
	MinDwell   time.Duration
	SessionTTL time.Duration
}

type Service struct {
	forms      FormCatalog
	sessions   SessionStore
	tickets    TicketService
	dispatcher Dispatcher
	guard      Guard
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	now        func() time.Time
}

type Option func(*Service)

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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(forms FormCatalog, sessions SessionStore, tickets TicketService, dispatcher Dispatcher, cfg *Config, opts ...Option) (*Service, error) {
	if forms == nil || sessions == nil || tickets == nil || dispatcher == nil {
		return nil, errors.New("forms service: catalog, session store, ticket service and dispatcher are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	svc := &Service{
		forms:      forms,
		sessions:   sessions,
		tickets:    tickets,
		dispatcher: dispatcher,
		guard:      NewGuard(cfg.MinDwell),
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.sessionTTL <= 0 {
		svc.sessionTTL = defaultSessionTTL
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	return svc, nil
}

// Open mounts a new instance of form with an optional initial role.
func (s *Service) Open(ctx context.Context, form models.FormName, role string) (*models.OpenResult, error) {
	def, err := s.definition(form)
	if err != nil {
		return nil, err
	}
	initial, err := def.ResolveRole(role, "")
	if err != nil {
		return nil, err
	}

	sess := models.NewSession(domain.NewInstanceID(), def.Name, initial, s.now(), s.sessionTTL)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save form session")
	}
	raw, err := s.tickets.Issue(sess)
	if err != nil {
		return nil, err
	}

	s.metrics.IncSessionOpened(def.Name.String())
	s.logger.InfoContext(ctx, "form session opened",
		"form", def.Name,
		"instance_id", sess.InstanceID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.OpenResult{Session: sess, Ticket: raw, Definition: def}, nil
}

// Schema returns the fields a form shows for role. Empty role means the
// form's default.
func (s *Service) Schema(form models.FormName, role string) (*models.SchemaResponse, error) {
	def, err := s.definition(form)
	if err != nil {
		return nil, err
	}
	r, err := def.ResolveRole(role, "")
	if err != nil {
		return nil, err
	}
	return &models.SchemaResponse{Form: def.Name, Role: r, Fields: def.FieldsFor(r)}, nil
}

// Update applies a role switch and field edits without submitting. An empty
// command returns the current state. Edits are refused with CodeBusy while a
// submission of the instance is being relayed.
func (s *Service) Update(ctx context.Context, cmd models.UpdateCommand) (*models.StateSnapshot, error) {
	def, sess, err := s.resume(ctx, cmd.Form, cmd.Ticket)
	if err != nil {
		return nil, err
	}
	role, err := def.ResolveRole(cmd.Role, sess.State.Role())
	if err != nil {
		return nil, err
	}
	fields := def.FieldsFor(role)
	if cmd.Role != "" || len(cmd.Values) > 0 {
		if !sess.TryBegin() {
			return nil, dErrors.New(dErrors.CodeBusy, MessageBusy)
		}
		sess.State.SetRole(role)
		sess.State.SetFields(def.Known(cmd.Values))
		sess.End()
	}

	return &models.StateSnapshot{
		Definition: def,
		Role:       role,
		Values:     sess.State.ActiveValues(fields),
		Fields:     fields,
	}, nil
}

// Submit runs one submission attempt. Request-level problems (unknown form,
// bad ticket, unknown role) are returned as errors; everything the flow
// decides is reported through the result's Outcome.
func (s *Service) Submit(ctx context.Context, cmd models.SubmitCommand) (*models.SubmitResult, error) {
	def, sess, err := s.resume(ctx, cmd.Form, cmd.Ticket)
	if err != nil {
		return nil, err
	}
	role, err := def.ResolveRole(cmd.Role, sess.State.Role())
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, def, sess, role, cmd), nil
}

func (s *Service) definition(form models.FormName) (*models.FormDefinition, error) {
	def, ok := s.forms.Form(form)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown form")
	}
	return def, nil
}

// resume verifies the ticket and returns its session. A session evicted by
// restart or cleanup is recreated from the ticket claims; entered values
// are lost but the mount time survives.
func (s *Service) resume(ctx context.Context, form models.FormName, raw string) (*models.FormDefinition, *models.Session, error) {
	def, err := s.definition(form)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.tickets.Verify(raw)
	if err != nil {
		return nil, nil, err
	}
	if v.Form != def.Name {
		return nil, nil, dErrors.New(dErrors.CodeInvalidTicket, "ticket belongs to another form")
	}

	sess, created, err := s.sessions.FindOrCreate(ctx, v.InstanceID, func() *models.Session {
		sess := models.NewSession(v.InstanceID, def.Name, def.DefaultRole, v.MountedAt, s.sessionTTL)
		sess.ExpiresAt = s.now().Add(s.sessionTTL)
		return sess
	})
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form session")
	}
	if created {
		s.metrics.IncSessionRevived(def.Name.String())
		s.logger.InfoContext(ctx, "form session recreated from ticket",
			"form", def.Name,
			"instance_id", v.InstanceID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return def, sess, nil
}
