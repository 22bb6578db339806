package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailflow/internal/model"
)

func TestSubstituteBothPlaceholderStyles(t *testing.T) {
	vars := map[string]string{"firstName": "Ada", "fullName": "Ada Lovelace"}
	out := Substitute("Hi {{firstName}}, aka { fullName }!", vars)
	assert.Equal(t, "Hi Ada, aka Ada Lovelace!", out)
}

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	out := Substitute("Hello {{nickname}} {firstName}", map[string]string{"firstName": ""})
	assert.Equal(t, "Hello {{nickname}} ", out)
}

func TestSubstituteIgnoresCSSBlocks(t *testing.T) {
	css := "<style>p { color: red; }</style>"
	assert.Equal(t, css, Substitute(css, map[string]string{"color": "blue"}))
}

func TestRenderHTMLTemplate(t *testing.T) {
	r := New()
	out, err := r.Render(&model.Template{
		Subject: "Welcome {{firstName}}",
		Content: "<body><p>Hi {{fullName}}</p></body>",
	}, map[string]string{"firstName": "Ada", "fullName": "Ada L"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada", out.Subject)
	assert.Equal(t, "<body><p>Hi Ada L</p></body>", out.Content)
}

func TestRenderMarkdownTemplate(t *testing.T) {
	r := New()
	out, err := r.Render(&model.Template{
		Subject: "News",
		Content: "# Hello {{firstName}}\n\nSee *you*.",
		Format:  model.FormatMarkdown,
	}, map[string]string{"firstName": "Ada"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "<h1>Hello Ada</h1>")
	assert.Contains(t, out.Content, "<em>you</em>")
	assert.True(t, strings.HasSuffix(out.Content, "</body></html>"))
}
