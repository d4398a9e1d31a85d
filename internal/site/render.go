package site

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/flosch/pongo2/v6"

	"fishtank/internal/forms/models"
)

const pageTemplate = "apply.html"

// RoleOption is one button of the role switcher.
type RoleOption struct {
	Value  models.Role
	Label  string
	Active bool
}

// FormView is everything the form partial needs. Fields hold pre-rendered
// markup from RenderField.
type FormView struct {
	Name             models.FormName
	Action           string
	Ticket           string
	OtherTicketField string
	OtherTicket      string
	Role             models.Role
	Roles            []RoleOption
	Fields           []string
	Honeypot         string
	SubmitLabel      string
	Report           *models.Report
}

// PageView is the page with both forms.
type PageView struct {
	Apply    FormView
	Feedback FormView
}

// Renderer executes the embedded pongo2 templates.
type Renderer struct {
	page *pongo2.Template
}

func NewRenderer() (*Renderer, error) {
	files, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("site: templates: %w", err)
	}
	set := pongo2.NewSet("fishtank", pongo2.NewFSLoader(files))
	page, err := set.FromFile(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("site: parse %s: %w", pageTemplate, err)
	}
	return &Renderer{page: page}, nil
}

func (r *Renderer) Render(w io.Writer, view *PageView) error {
	if err := r.page.ExecuteWriter(pongo2.Context{"page": view}, w); err != nil {
		return fmt.Errorf("site: execute %s: %w", pageTemplate, err)
	}
	return nil
}

// formView builds the view of one form from its current state.
func formView(def *models.FormDefinition, ticket string, role models.Role, values models.Values, report *models.Report) FormView {
	fields := def.FieldsFor(role)
	rendered := make([]string, 0, len(fields))
	for _, f := range fields {
		rendered = append(rendered, RenderField(f, values[f.Key]))
	}

	v := FormView{
		Name:        def.Name,
		Action:      "/" + def.Name.String(),
		Ticket:      ticket,
		Role:        role,
		Fields:      rendered,
		Honeypot:    HoneypotHTML(),
		SubmitLabel: submitLabel(def.Name),
		Report:      report,
	}
	for _, r := range def.Roles() {
		v.Roles = append(v.Roles, RoleOption{Value: r, Label: r.Label(), Active: r == role})
	}
	return v
}

func submitLabel(name models.FormName) string {
	if name == models.FormApply {
		return "Join Waitlist"
	}
	return "Send Message"
}
