package models

import (
	"fmt"
	"slices"

	dErrors "fishtank/pkg/domain-errors"
)

// Messages holds the copy a form uses when reporting outcomes.
type Messages struct {
	// Success may contain {role}, replaced by the role label.
	Success string `yaml:"success"`
	// Noun names the submission in the transport error message.
	Noun string `yaml:"noun"`
}

// FormDefinition parameterises the shared submission flow.
type FormDefinition struct {
	Name        FormName
	Subject     string
	DefaultRole Role
	Messages    Messages

	roles  []Role
	fields map[Role][]FieldDefinition
	fixed  []FieldDefinition
}

// NewRoleForm builds a definition whose fields depend on the role.
func NewRoleForm(name FormName, subject string, defaultRole Role, msgs Messages, roles []Role, fields map[Role][]FieldDefinition) *FormDefinition {
	return &FormDefinition{
		Name: name, Subject: subject, DefaultRole: defaultRole, Messages: msgs,
		roles: roles, fields: fields,
	}
}

// NewFixedForm builds a definition with one schema and no roles.
func NewFixedForm(name FormName, subject string, msgs Messages, fields []FieldDefinition) *FormDefinition {
	return &FormDefinition{Name: name, Subject: subject, Messages: msgs, fixed: fields}
}

// HasRoles reports whether the form is role-driven.
func (d *FormDefinition) HasRoles() bool {
	return len(d.roles) > 0
}

// Roles returns the selectable roles in display order.
func (d *FormDefinition) Roles() []Role {
	return append([]Role(nil), d.roles...)
}

// FieldsFor returns the ordered fields for role. Fixed forms ignore role.
// An unknown role on a role-driven form is a programming error.
func (d *FormDefinition) FieldsFor(role Role) []FieldDefinition {
	if !d.HasRoles() {
		return d.fixed
	}
	fields, ok := d.fields[role]
	if !ok {
		panic(fmt.Sprintf("forms: no schema for role %q on form %q", role, d.Name))
	}
	return fields
}

// ResolveRole turns untrusted role input into a role for this form.
// Empty input keeps current; fixed forms always resolve to "".
func (d *FormDefinition) ResolveRole(input string, current Role) (Role, error) {
	if !d.HasRoles() {
		return "", nil
	}
	if input == "" {
		if current != "" {
			return current, nil
		}
		return d.DefaultRole, nil
	}
	r, err := ParseRole(input)
	if err != nil {
		return "", err
	}
	if !slices.Contains(d.roles, r) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role not offered by this form")
	}
	return r, nil
}

// Known returns the entries of values whose key belongs to any schema of
// the form. Values typed under another role survive a role switch.
func (d *FormDefinition) Known(values Values) Values {
	out := make(Values, len(values))
	for k, v := range values {
		if d.hasKey(k) {
			out[k] = v
		}
	}
	return out
}

func (d *FormDefinition) hasKey(key string) bool {
	for _, f := range d.fixed {
		if f.Key == key {
			return true
		}
	}
	for _, fields := range d.fields {
		for _, f := range fields {
			if f.Key == key {
				return true
			}
		}
	}
	return false
}
