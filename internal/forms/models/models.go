package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	dErrors "fishtank/pkg/domain-errors"
)

// Role is the applicant category of the application form.
type Role string

const (
	RoleInnovator Role = "innovator"
	RoleInvestor  Role = "investor"
	RoleCreator   Role = "creator"
)

// Roles lists every role in display order.
var Roles = []Role{RoleInnovator, RoleInvestor, RoleCreator}

func (r Role) IsValid() bool {
	return slices.Contains(Roles, r)
}

// Label is the capitalised display name, e.g. "Innovator".
func (r Role) Label() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

func (r Role) String() string { return string(r) }

// ParseRole validates untrusted input. Trim and case are normalised.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

// FormName identifies a form definition.
type FormName string

const (
	FormApply    FormName = "apply"
	FormFeedback FormName = "feedback"
)

func (f FormName) String() string { return string(f) }

func ParseFormName(s string) (FormName, error) {
	switch f := FormName(strings.ToLower(strings.TrimSpace(s))); f {
	case FormApply, FormFeedback:
		return f, nil
	}
	return "", dErrors.New(dErrors.CodeNotFound, "unknown form")
}

// FieldKind is the closed set of input kinds.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindEmail    FieldKind = "email"
	KindTel      FieldKind = "tel"
	KindURL      FieldKind = "url"
	KindTextarea FieldKind = "textarea"
	KindSelect   FieldKind = "select"
)

func (k FieldKind) IsValid() bool {
	switch k {
	case KindText, KindEmail, KindTel, KindURL, KindTextarea, KindSelect:
		return true
	}
	return false
}

// FieldDefinition describes one input. Definitions are immutable after load.
type FieldDefinition struct {
	Key         string    `yaml:"key" json:"key"`
	Label       string    `yaml:"label" json:"label"`
	Kind        FieldKind `yaml:"kind" json:"kind"`
	Required    bool      `yaml:"required" json:"required"`
	Placeholder string    `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Options     []string  `yaml:"options,omitempty" json:"options,omitempty"`
}

// Values maps field key to entered text. A missing key means "not entered".
type Values map[string]string

func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// Only returns the entries whose keys appear in fields.
func (v Values) Only(fields []FieldDefinition) Values {
	out := make(Values, len(fields))
	for _, f := range fields {
		if val, ok := v[f.Key]; ok {
			out[f.Key] = val
		}
	}
	return out
}

// Attempt is one submission as seen by the guard and validator.
type Attempt struct {
	Role     Role
	Values   Values
	Elapsed  time.Duration
	Honeypot string
}

// SpamReason explains a guard rejection. It is logged, never shown.
type SpamReason string

const (
	ReasonBotDetected SpamReason = "bot-detected"
	ReasonTooFast     SpamReason = "too-fast"
)

// OutcomeKind classifies the result of a submission.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeSpamRejected     OutcomeKind = "spam_rejected"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeConfigMissing    OutcomeKind = "config_missing"
	OutcomeRelayRejected    OutcomeKind = "relay_rejected"
	OutcomeTransportError   OutcomeKind = "transport_error"
	OutcomeBusy             OutcomeKind = "busy"
)

// Outcome carries the detail each kind needs for reporting.
type Outcome struct {
	Kind          OutcomeKind
	Role          Role
	MissingLabels []string
	SpamReason    SpamReason
	RelayError    string
}

func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// ReportState is the indicator the hosting page renders.
type ReportState string

const (
	StateIdle       ReportState = "idle"
	StateSubmitting ReportState = "submitting"
	StateSuccess    ReportState = "success"
	StateError      ReportState = "error"
)

// Report is the user-facing result of a submission.
type Report struct {
	State   ReportState `json:"state"`
	Message string      `json:"message"`
}

// Dispatch is the payload handed to the relay.
type Dispatch struct {
	Form    FormName
	Role    Role
	Subject string
	Values  Values
}
