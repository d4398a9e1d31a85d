package site

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"fishtank/internal/forms/models"
)

func TestRenderField(t *testing.T) {
	t.Run("input kinds map to input types", func(t *testing.T) {
		for kind, want := range map[models.FieldKind]string{
			models.KindText:  `type="text"`,
			models.KindEmail: `type="email"`,
			models.KindTel:   `type="tel"`,
			models.KindURL:   `type="url"`,
		} {
			out := RenderField(models.FieldDefinition{Key: "k", Label: "L", Kind: kind}, "")
			assert.Contains(t, out, want, kind)
		}
	})

	t.Run("values and labels are escaped", func(t *testing.T) {
		out := RenderField(models.FieldDefinition{Key: "name", Label: "Full <Name>", Kind: models.KindText, Required: true}, `"><script>x</script>`)
		assert.NotContains(t, out, "<script>")
		assert.Contains(t, out, "Full &lt;Name&gt;")
		assert.Contains(t, out, `value="&#34;&gt;&lt;script&gt;x&lt;/script&gt;"`)
		assert.Contains(t, out, "required")
	})

	t.Run("textarea carries value as text", func(t *testing.T) {
		out := RenderField(models.FieldDefinition{Key: "message", Label: "Msg", Kind: models.KindTextarea, Placeholder: "How can we help?"}, "a & b")
		assert.Contains(t, out, `<textarea id="field-message" name="message" rows="4" placeholder="How can we help?">a &amp; b</textarea>`)
	})

	t.Run("select has empty prompt and marks the value", func(t *testing.T) {
		out := RenderField(models.FieldDefinition{Key: "vcfirm", Label: "VC Firm?", Kind: models.KindSelect, Options: []string{"Yes", "No"}}, "No")
		assert.True(t, strings.Index(out, `<option value="">Select...</option>`) < strings.Index(out, `value="Yes"`))
		assert.Contains(t, out, `<option value="No" selected>No</option>`)
		assert.NotContains(t, out, `value="Yes" selected`)
	})
}

func TestHoneypotHTML(t *testing.T) {
	out := HoneypotHTML()
	for _, attr := range []string{`name="company_website"`, `autocomplete="off"`, `tabindex="-1"`, `aria-hidden="true"`, "hidden"} {
		assert.Contains(t, out, attr)
	}
}
