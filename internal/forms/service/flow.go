package service

import (
	"context"
	"errors"
	"time"

	"fishtank/internal/forms/models"
	dErrors "fishtank/pkg/domain-errors"
	"fishtank/pkg/platform/tracer"
	"fishtank/pkg/requestcontext"
)

const clientAPI = "api"

// submit is the flow shared by every form. Order: single-flight claim,
// apply input, guard, validate, dispatch, report. The relay is reached only
// after guard and validation pass. A refused claim leaves the holder as it
// was; only success clears it.
func (s *Service) submit(ctx context.Context, def *models.FormDefinition, sess *models.Session, role models.Role, cmd models.SubmitCommand) *models.SubmitResult {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanFormSubmit,
		tracer.String(tracer.AttrForm, def.Name.String()),
		tracer.String(tracer.AttrRole, role.String()),
	)

	fields := def.FieldsFor(role)
	var outcome models.Outcome
	if !sess.TryBegin() {
		outcome = models.Outcome{Kind: models.OutcomeBusy, Role: sess.State.Role()}
		fields = def.FieldsFor(outcome.Role)
	} else {
		outcome = s.attempt(ctx, def, sess, role, fields, cmd)
		sess.End()
	}

	span.SetAttributes(tracer.String(tracer.AttrOutcome, string(outcome.Kind)))
	span.End(nil)
	s.observe(ctx, def, sess, outcome, cmd.Client, s.now().Sub(start))

	return &models.SubmitResult{
		Definition: def,
		Outcome:    outcome,
		Report:     Report(def, outcome),
		Role:       outcome.Role,
		Values:     sess.State.ActiveValues(fields),
		Fields:     fields,
	}
}

// attempt runs with the single-flight slot held.
func (s *Service) attempt(ctx context.Context, def *models.FormDefinition, sess *models.Session, role models.Role, fields []models.FieldDefinition, cmd models.SubmitCommand) models.Outcome {
	sess.State.SetRole(role)
	sess.State.SetFields(def.Known(cmd.Values))

	attempt := models.Attempt{
		Role:     role,
		Values:   sess.State.ActiveValues(fields),
		Elapsed:  s.now().Sub(sess.MountedAt),
		Honeypot: cmd.Honeypot,
	}

	if v := s.guard.Evaluate(attempt); !v.Pass {
		return models.Outcome{Kind: models.OutcomeSpamRejected, Role: role, SpamReason: v.Reason}
	}
	if missing := ValidateRequired(fields, attempt.Values); len(missing) > 0 {
		return models.Outcome{Kind: models.OutcomeValidationFailed, Role: role, MissingLabels: missing}
	}

	// The relay call outlives a disconnecting client; the dispatcher bounds it.
	err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), models.Dispatch{
		Form:    def.Name,
		Role:    role,
		Subject: def.Subject,
		Values:  attempt.Values,
	})
	if err != nil {
		return s.dispatchFailure(ctx, def, role, err)
	}
	sess.State.Clear()
	return models.Outcome{Kind: models.OutcomeSuccess, Role: role}
}

func (s *Service) dispatchFailure(ctx context.Context, def *models.FormDefinition, role models.Role, err error) models.Outcome {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConfigMissing:
		s.logger.ErrorContext(ctx, "relay not configured",
			"form", def.Name,
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.Outcome{Kind: models.OutcomeConfigMissing, Role: role}
	case dErrors.CodeRelayRejected:
		var de *dErrors.Error
		reason := ""
		if errors.As(err, &de) {
			reason = de.Message
		}
		return models.Outcome{Kind: models.OutcomeRelayRejected, Role: role, RelayError: reason}
	}
	s.logger.WarnContext(ctx, "relay dispatch failed",
		"form", def.Name,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.Outcome{Kind: models.OutcomeTransportError, Role: role}
}

func (s *Service) observe(ctx context.Context, def *models.FormDefinition, sess *models.Session, o models.Outcome, client string, took time.Duration) {
	if client == "" {
		client = clientAPI
	}
	s.metrics.IncSubmission(def.Name.String(), string(o.Kind), client)
	s.metrics.ObserveSubmitDuration(def.Name.String(), float64(took.Milliseconds()))

	attrs := []any{
		"form", def.Name,
		"instance_id", sess.InstanceID.String(),
		"outcome", o.Kind,
		"client", client,
		"request_id", requestcontext.RequestID(ctx),
	}
	if o.Role != "" {
		attrs = append(attrs, "role", o.Role)
	}
	if o.SpamReason != "" {
		attrs = append(attrs, "spam_reason", o.SpamReason)
	}
	if len(o.MissingLabels) > 0 {
		attrs = append(attrs, "missing", o.MissingLabels)
	}
	s.logger.InfoContext(ctx, "form submission", attrs...)
}
