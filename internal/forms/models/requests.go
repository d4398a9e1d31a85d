package models

import (
	"strings"

	"fishtank/pkg/platform/sanitize"
	"fishtank/pkg/platform/validation"
	pkgvalidation "fishtank/pkg/validation"
)

// SubmitRequest is the JSON body of a submission.
type SubmitRequest struct {
	Ticket   string            `json:"ticket" validate:"required,notblank"`
	Role     string            `json:"role,omitempty"`
	Values   map[string]string `json:"values" validate:"omitempty,dive,keys,formkey,endkeys"`
	Honeypot string            `json:"honeypot,omitempty"`
}

// Sanitize trims the ticket, role and values. The honeypot is kept verbatim so the
// guard sees exactly what the client sent.
func (r *SubmitRequest) Sanitize() {
	r.Ticket = strings.TrimSpace(r.Ticket)
	r.Role = strings.TrimSpace(r.Role)
	r.Values = sanitize.Values(r.Values)
}

func (r *SubmitRequest) Normalize() {
	r.Role = strings.ToLower(r.Role)
}

func (r *SubmitRequest) Validate() error {
	if err := pkgvalidation.Validate(r); err != nil {
		return err
	}
	if err := validation.CheckStringLength("ticket", r.Ticket, validation.MaxTicketLength); err != nil {
		return err
	}
	return validation.CheckValues(r.Values)
}

// UpdateStateRequest edits a mounted form without submitting it.
type UpdateStateRequest struct {
	Ticket string            `json:"ticket" validate:"required,notblank"`
	Role   string            `json:"role,omitempty"`
	Values map[string]string `json:"values,omitempty" validate:"omitempty,dive,keys,formkey,endkeys"`
}

func (r *UpdateStateRequest) Sanitize() {
	r.Ticket = strings.TrimSpace(r.Ticket)
	r.Role = strings.TrimSpace(r.Role)
	r.Values = sanitize.Values(r.Values)
}

func (r *UpdateStateRequest) Normalize() {
	r.Role = strings.ToLower(r.Role)
}

func (r *UpdateStateRequest) Validate() error {
	if err := pkgvalidation.Validate(r); err != nil {
		return err
	}
	if err := validation.CheckStringLength("ticket", r.Ticket, validation.MaxTicketLength); err != nil {
		return err
	}
	return validation.CheckValues(r.Values)
}

// SubmitCommand is the service input shared by the JSON API and the HTML host.
type SubmitCommand struct {
	Form     FormName
	Ticket   string
	Role     string
	Values   Values
	Honeypot string
	// Client labels the caller in metrics ("browser", "bot", "api").
	Client string
}

type UpdateCommand struct {
	Form   FormName
	Ticket string
	Role   string
	Values Values
}
