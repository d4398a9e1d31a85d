package models

import "time"

// OpenResult is returned when a form instance is mounted.
type OpenResult struct {
	Session    *Session
	Ticket     string
	Definition *FormDefinition
}

// SubmitResult is the outcome of one submission plus the state after it.
type SubmitResult struct {
	Definition *FormDefinition
	Outcome    Outcome
	Report     Report
	Role       Role
	Values     Values
	Fields     []FieldDefinition
}

// StateSnapshot is the holder content after an update.
type StateSnapshot struct {
	Definition *FormDefinition
	Role       Role
	Values     Values
	Fields     []FieldDefinition
}

type SessionResponse struct {
	InstanceID string            `json:"instance_id"`
	Form       FormName          `json:"form"`
	Ticket     string            `json:"ticket"`
	MountedAt  time.Time         `json:"mounted_at"`
	Role       Role              `json:"role,omitempty"`
	Roles      []Role            `json:"roles,omitempty"`
	Fields     []FieldDefinition `json:"fields"`
	Honeypot   string            `json:"honeypot_field"`
}

type SchemaResponse struct {
	Form   FormName          `json:"form"`
	Role   Role              `json:"role,omitempty"`
	Fields []FieldDefinition `json:"fields"`
}

type StateResponse struct {
	Role   Role              `json:"role,omitempty"`
	Values Values            `json:"values"`
	Fields []FieldDefinition `json:"fields"`
}

type SubmitResponse struct {
	Outcome       OutcomeKind `json:"outcome"`
	State         ReportState `json:"state"`
	Message       string      `json:"message"`
	MissingLabels []string    `json:"missing_labels,omitempty"`
	Role          Role        `json:"role,omitempty"`
	Values        Values      `json:"values"`
}

// HoneypotField is the name of the decoy input.
const HoneypotField = "company_website"
