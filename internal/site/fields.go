package site

import (
	"html"
	"strings"

	"fishtank/internal/forms/models"
)

const selectPrompt = "Select..."

// RenderField returns the markup of one input. Every attribute and text
// node is escaped here; the template prints the result unescaped.
func RenderField(f models.FieldDefinition, value string) string {
	var b strings.Builder
	id := "field-" + f.Key
	b.WriteString(`<div class="field">`)
	b.WriteString(`<label for="` + esc(id) + `">` + esc(f.Label))
	if f.Required {
		b.WriteString(` <span class="required" aria-hidden="true">*</span>`)
	}
	b.WriteString(`</label>`)

	common := ` id="` + esc(id) + `" name="` + esc(f.Key) + `"`
	if f.Required {
		common += ` required aria-required="true"`
	}

	switch f.Kind {
	case models.KindTextarea:
		b.WriteString(`<textarea` + common + ` rows="4"` + placeholder(f) + `>`)
		b.WriteString(esc(value))
		b.WriteString(`</textarea>`)
	case models.KindSelect:
		b.WriteString(`<select` + common + `>`)
		b.WriteString(`<option value="">` + selectPrompt + `</option>`)
		for _, opt := range f.Options {
			b.WriteString(`<option value="` + esc(opt) + `"`)
			if opt == value {
				b.WriteString(` selected`)
			}
			b.WriteString(`>` + esc(opt) + `</option>`)
		}
		b.WriteString(`</select>`)
	default:
		b.WriteString(`<input type="` + inputType(f.Kind) + `"` + common + ` value="` + esc(value) + `"` + placeholder(f) + `>`)
	}

	b.WriteString(`</div>`)
	return b.String()
}

// HoneypotHTML is the decoy input. People never see or reach it.
func HoneypotHTML() string {
	return `<div class="hp" hidden><input type="text" name="` + models.HoneypotField +
		`" autocomplete="off" tabindex="-1" aria-hidden="true" value=""></div>`
}

func inputType(k models.FieldKind) string {
	switch k {
	case models.KindEmail, models.KindTel, models.KindURL:
		return string(k)
	}
	return "text"
}

func placeholder(f models.FieldDefinition) string {
	if f.Placeholder == "" {
		return ""
	}
	return ` placeholder="` + esc(f.Placeholder) + `"`
}

func esc(s string) string {
	return html.EscapeString(s)
}
