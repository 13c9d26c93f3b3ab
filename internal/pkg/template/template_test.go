package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_SimpleToken(t *testing.T) {
	out := Render("Hello {{name}}!", map[string]any{"name": "Ada"})
	require.Equal(t, "Hello Ada!", out)
}

func TestRender_DottedPath(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"profile": map[string]any{"email": "ada@example.com"},
		},
	}
	out := Render("mail to {{user.profile.email}}", data)
	require.Equal(t, "mail to ada@example.com", out)
}

func TestRender_UnresolvedLeftVerbatim(t *testing.T) {
	data := map[string]any{"present": "yes"}
	cases := map[string]string{
		"{{missing}}":          "{{missing}}",
		"{{present.deeper}}":   "{{present.deeper}}", // present is not a map
		"a {{missing}} b":      "a {{missing}} b",
		"{{present}}/{{nope}}": "yes/{{nope}}",
	}
	for in, want := range cases {
		require.Equal(t, want, Render(in, data), "input %q", in)
	}
}

func TestRender_NilValueLeftVerbatim(t *testing.T) {
	out := Render("v={{key}}", map[string]any{"key": nil})
	require.Equal(t, "v={{key}}", out)
}

func TestRender_NonStringValues(t *testing.T) {
	data := map[string]any{"count": 42, "ok": true, "ratio": 1.5}
	out := Render("{{count}} {{ok}} {{ratio}}", data)
	require.Equal(t, "42 true 1.5", out)
}

func TestRender_StringMapLeaf(t *testing.T) {
	data := map[string]any{"labels": map[string]string{"env": "prod"}}
	require.Equal(t, "prod", Render("{{labels.env}}", data))
}

func TestRender_NoTokens(t *testing.T) {
	require.Equal(t, "plain text", Render("plain text", nil))
	require.Equal(t, "", Render("", map[string]any{"a": 1}))
}

func TestRender_MalformedTokensUntouched(t *testing.T) {
	data := map[string]any{"a": "x"}
	// tokens the grammar does not accept stay as-is
	require.Equal(t, "{{a.}}", Render("{{a.}}", data))
	require.Equal(t, "{{9bad}}", Render("{{9bad}}", data))
	require.Equal(t, "{ {a} }", Render("{ {a} }", data))
}

func TestRenderMap(t *testing.T) {
	data := map[string]any{"host": "pg-1", "state": "down"}
	m := map[string]any{
		"title": "{{host}} is {{state}}",
		"nested": map[string]any{
			"detail": "host={{host}}",
		},
		"attempts": 3,
	}
	out := RenderMap(m, data)
	require.Equal(t, "pg-1 is down", out["title"])
	require.Equal(t, "host=pg-1", out["nested"].(map[string]any)["detail"])
	require.Equal(t, 3, out["attempts"])
}

func TestRenderMap_Nil(t *testing.T) {
	require.Nil(t, RenderMap(nil, map[string]any{"a": 1}))
}
