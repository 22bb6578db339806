// Package render substitutes contact variables into email templates.
package render

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"

	"github.com/unclebandit/mailflow/internal/model"
)

// placeholder matches {{name}} and {name}, with optional inner whitespace.
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}|\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}`)

// Substitute replaces every known placeholder in s. Unknown names are left as
// written; known names with an empty value render as empty.
func Substitute(s string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		v, ok := vars[name]
		if !ok {
			return m
		}
		return v
	})
}

type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	return &Renderer{md: goldmark.New()}
}

// Render produces the subject and HTML body for tpl. Markdown templates are
// converted after substitution.
func (r *Renderer) Render(tpl *model.Template, vars map[string]string) (*model.RenderedTemplate, error) {
	subject := Substitute(tpl.Subject, vars)
	content := Substitute(tpl.Content, vars)

	if tpl.Format == model.FormatMarkdown {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(content), &buf); err != nil {
			return nil, fmt.Errorf("render template %d: %w", tpl.ID, err)
		}
		content = "<html><body>" + buf.String() + "</body></html>"
	}
	return &model.RenderedTemplate{Subject: subject, Content: content}, nil
}
