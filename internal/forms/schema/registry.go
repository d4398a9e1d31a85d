// Package schema loads the static field schemas of the apply and feedback forms.
package schema

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"fishtank/internal/forms/models"
	"fishtank/pkg/validation"
)

//go:embed forms.yaml
var defaultDocument []byte

type document struct {
	Apply    applyDoc    `yaml:"apply"`
	Feedback feedbackDoc `yaml:"feedback"`
}

type applyDoc struct {
	Subject     string          `yaml:"subject"`
	DefaultRole models.Role     `yaml:"default_role"`
	Messages    models.Messages `yaml:"messages"`
	Roles       []roleDoc       `yaml:"roles"`
}

type roleDoc struct {
	Role   models.Role              `yaml:"role"`
	Fields []models.FieldDefinition `yaml:"fields"`
}

type feedbackDoc struct {
	Subject  string                   `yaml:"subject"`
	Messages models.Messages          `yaml:"messages"`
	Fields   []models.FieldDefinition `yaml:"fields"`
}

// Registry holds the form definitions. It is read-only after construction.
type Registry struct {
	forms map[models.FormName]*models.FormDefinition
}

// Default parses the embedded document. A broken document is a build defect.
func Default() *Registry {
	r, err := Load(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded forms.yaml: %v", err))
	}
	return r
}

// Load parses and validates a forms document.
func Load(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse forms document: %w", err)
	}

	fields := make(map[models.Role][]models.FieldDefinition, len(doc.Apply.Roles))
	roles := make([]models.Role, 0, len(doc.Apply.Roles))
	for _, rd := range doc.Apply.Roles {
		if !rd.Role.IsValid() {
			return nil, fmt.Errorf("apply: unknown role %q", rd.Role)
		}
		if _, dup := fields[rd.Role]; dup {
			return nil, fmt.Errorf("apply: role %q declared twice", rd.Role)
		}
		if err := checkFields(rd.Fields); err != nil {
			return nil, fmt.Errorf("apply/%s: %w", rd.Role, err)
		}
		fields[rd.Role] = rd.Fields
		roles = append(roles, rd.Role)
	}
	for _, r := range models.Roles {
		if _, ok := fields[r]; !ok {
			return nil, fmt.Errorf("apply: role %q has no schema", r)
		}
	}
	if !slices.Contains(roles, doc.Apply.DefaultRole) {
		return nil, fmt.Errorf("apply: default role %q not declared", doc.Apply.DefaultRole)
	}
	if err := checkFields(doc.Feedback.Fields); err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}

	return &Registry{forms: map[models.FormName]*models.FormDefinition{
		models.FormApply: models.NewRoleForm(models.FormApply, doc.Apply.Subject,
			doc.Apply.DefaultRole, doc.Apply.Messages, roles, fields),
		models.FormFeedback: models.NewFixedForm(models.FormFeedback, doc.Feedback.Subject,
			doc.Feedback.Messages, doc.Feedback.Fields),
	}}, nil
}

func checkFields(fields []models.FieldDefinition) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		switch {
		case f.Key == "" || f.Label == "":
			return fmt.Errorf("field %q: key and label are required", f.Key)
		case !validation.IsFormKey(f.Key):
			return fmt.Errorf("field %q: key must be lowercase letters, digits or underscores", f.Key)
		case f.Key == models.HoneypotField:
			return fmt.Errorf("field %q collides with the honeypot", f.Key)
		case !f.Kind.IsValid():
			return fmt.Errorf("field %q: unknown kind %q", f.Key, f.Kind)
		case f.Kind == models.KindSelect && len(f.Options) == 0:
			return fmt.Errorf("field %q: select without options", f.Key)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
	}
	return nil
}

// Form returns the definition of name.
func (r *Registry) Form(name models.FormName) (*models.FormDefinition, bool) {
	d, ok := r.forms[name]
	return d, ok
}

// FieldsForRole returns the application fields of role. Unknown roles panic.
func (r *Registry) FieldsForRole(role models.Role) []models.FieldDefinition {
	return r.forms[models.FormApply].FieldsFor(role)
}

// FeedbackFields returns the fixed feedback schema.
func (r *Registry) FeedbackFields() []models.FieldDefinition {
	return r.forms[models.FormFeedback].FieldsFor("")
}
