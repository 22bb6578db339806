package client

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/render"
)

// LocalTemplates serves templates from a YAML document and renders them in
// process. It stands in for the template service when none is configured.
//
//	templates:
//	  - id: 3
//	    subject: "Welcome {{firstName}}"
//	    format: markdown
//	    content: |
//	      # Hi {{fullName}}
type LocalTemplates struct {
	templates map[int64]*model.Template
	renderer  *render.Renderer
}

type templateFile struct {
	Templates []*model.Template `yaml:"templates"`
}

func ParseTemplates(data []byte) (*LocalTemplates, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	lt := &LocalTemplates{templates: make(map[int64]*model.Template), renderer: render.New()}
	for _, t := range f.Templates {
		if t.ID == 0 {
			return nil, appErrors.Validation("template %q has no id", t.Name)
		}
		if t.Format == "" {
			t.Format = model.FormatHTML
		}
		lt.templates[t.ID] = t
	}
	return lt, nil
}

func LoadTemplates(path string) (*LocalTemplates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseTemplates(data)
}

func (l *LocalTemplates) GetTemplate(_ context.Context, templateID int64) (*model.Template, error) {
	t, ok := l.templates[templateID]
	if !ok {
		return nil, appErrors.NewNotFound("template", templateID)
	}
	cp := *t
	return &cp, nil
}

func (l *LocalTemplates) RenderTemplate(ctx context.Context, templateID int64, vars map[string]string) (*model.RenderedTemplate, error) {
	t, err := l.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return l.renderer.Render(t, vars)
}

var _ TemplateLookup = (*LocalTemplates)(nil)
