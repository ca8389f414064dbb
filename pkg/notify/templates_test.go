package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplates(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTemplates(t *testing.T) {
	path := writeTemplates(t, `
templates:
  approval_requested:
    subject: "Approval requested for {{ plan_name }}"
    body: "Plan {{ plan_id }} needs review by {{ expires_at }}."
`)

	set, err := LoadTemplates(path)
	require.NoError(t, err)
	require.Contains(t, set.Templates, EventApprovalRequested)
}

func TestLoadTemplates_EmptyFile(t *testing.T) {
	path := writeTemplates(t, "templates: {}\n")
	_, err := LoadTemplates(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no templates")
}

func TestLoadTemplates_MissingFile(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestTemplateSet_Render(t *testing.T) {
	set := &TemplateSet{Templates: map[string]MessageTemplate{
		EventApprovalExpired: {
			Subject: "Approval expired: {{ plan_name }}",
			Body:    "The approval for plan {{ plan_id }} expired without a decision.",
		},
	}}

	subject, body, err := set.Render(EventApprovalExpired, map[string]any{
		"plan_name": "dedupe customers",
		"plan_id":   "abc-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Approval expired: dedupe customers", subject)
	assert.Equal(t, "The approval for plan abc-123 expired without a decision.", body)
}

func TestTemplateSet_Render_UnknownEvent(t *testing.T) {
	set := &TemplateSet{Templates: map[string]MessageTemplate{}}
	_, _, err := set.Render("made_up", nil)
	require.Error(t, err)
}

func TestTemplateSet_Render_UnresolvedLeftIntact(t *testing.T) {
	set := &TemplateSet{Templates: map[string]MessageTemplate{
		"x": {Subject: "Plan {{ missing }}", Body: "ok"},
	}}

	subject, _, err := set.Render("x", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Plan {{ missing }}", subject)
}
