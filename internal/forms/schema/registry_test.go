package schema

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishtank/internal/forms/models"
)

func keys(fields []models.FieldDefinition) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Key
	}
	return out
}

func TestEmbeddedDocumentLoads(t *testing.T) {
	reg, err := Load(defaultDocument)
	require.NoError(t, err)

	labels := map[string]string{}
	for _, role := range models.Roles {
		for _, f := range reg.FieldsForRole(role) {
			labels[f.Key] = f.Label
		}
	}
	for _, f := range reg.FeedbackFields() {
		labels["feedback."+f.Key] = f.Label + "|" + f.Placeholder
	}

	assert.Equal(t, "What are you building?", labels["building"])
	assert.Equal(t, "VC Firm?", labels["vcfirm"])
	assert.Equal(t, "Pitch Deck (link)", labels["deck"])
	assert.Equal(t, "Website / Portfolio (optional)", labels["website"])
	assert.Equal(t, "Question or Feature Request|How can we help?", labels["feedback.message"])
}

func TestDefaultRegistry(t *testing.T) {
	reg := Default()

	t.Run("every role has a non-empty schema with unique keys", func(t *testing.T) {
		for _, role := range models.Roles {
			fields := reg.FieldsForRole(role)
			require.NotEmpty(t, fields, role)
			seen := map[string]bool{}
			for _, f := range fields {
				assert.False(t, seen[f.Key], "duplicate key %s for %s", f.Key, role)
				seen[f.Key] = true
			}
		}
	})

	t.Run("field order is display order", func(t *testing.T) {
		want := map[models.Role][]string{
			models.RoleInnovator: {"email", "name", "phone", "building", "website", "deck", "stage"},
			models.RoleInvestor:  {"email", "name", "phone", "vcfirm", "website"},
			models.RoleCreator:   {"email", "name", "phone", "skill", "website"},
		}
		for role, w := range want {
			if diff := cmp.Diff(w, keys(reg.FieldsForRole(role))); diff != "" {
				t.Errorf("%s keys mismatch (-want +got):\n%s", role, diff)
			}
		}
		assert.Equal(t, []string{"name", "email", "message"}, keys(reg.FeedbackFields()))
	})

	t.Run("field details", func(t *testing.T) {
		creator := reg.FieldsForRole(models.RoleCreator)
		assert.Equal(t, models.FieldDefinition{
			Key: "skill", Label: "Primary Skill", Kind: models.KindText, Required: true,
			Placeholder: "e.g., Frontend, Video, Growth",
		}, creator[3])

		investor := reg.FieldsForRole(models.RoleInvestor)
		assert.Equal(t, []string{"Yes", "No"}, investor[3].Options)
		assert.True(t, investor[3].Required)

		innovator := reg.FieldsForRole(models.RoleInnovator)
		stage := innovator[6]
		assert.False(t, stage.Required)
		assert.Equal(t, []string{"Early Stage", "MVP", "Beta", "Launched", "Scaling"}, stage.Options)
	})

	t.Run("form metadata", func(t *testing.T) {
		apply, ok := reg.Form(models.FormApply)
		require.True(t, ok)
		assert.Equal(t, "New Application", apply.Subject)
		assert.Equal(t, models.RoleInnovator, apply.DefaultRole)
		assert.Equal(t, models.Roles, apply.Roles())

		feedback, ok := reg.Form(models.FormFeedback)
		require.True(t, ok)
		assert.Equal(t, "New Feedback - Fishtank", feedback.Subject)
		assert.Equal(t, "message", feedback.Messages.Noun)
	})

	t.Run("unknown role panics", func(t *testing.T) {
		assert.Panics(t, func() { reg.FieldsForRole("founder") })
	})
}

func TestLoadRejectsBrokenDocuments(t *testing.T) {
	base := string(defaultDocument)

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"not yaml", "apply: [", "parse forms document"},
		{"duplicate key", strings.Replace(base, "key: deck", "key: website", 1), "duplicate field key"},
		{"bad key", strings.Replace(base, "key: deck", "key: Pitch Deck", 1), "key must be lowercase"},
		{"bad kind", strings.Replace(base, "kind: tel", "kind: phone", 1), "unknown kind"},
		{"select without options", strings.Replace(base, `options: ["Yes", "No"]`, "", 1), "select without options"},
		{"missing role", strings.Replace(base, "role: creator", "role: investor", 1), "declared twice"},
		{"bad default", strings.Replace(base, "default_role: innovator", "default_role: founder", 1), "default role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
