package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/model"
)

const templateService = "template-service"

type TemplateLookup interface {
	GetTemplate(ctx context.Context, templateID int64) (*model.Template, error)
	RenderTemplate(ctx context.Context, templateID int64, vars map[string]string) (*model.RenderedTemplate, error)
}

// TemplateClient calls the template service over HTTP.
type TemplateClient struct {
	baseURL string
	http    *http.Client
	breaker *breaker
}

func NewTemplateClient(baseURL string, hc *http.Client, cfg BreakerConfig, log *zap.Logger) *TemplateClient {
	return &TemplateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		breaker: newBreaker(templateService, cfg, log),
	}
}

func (c *TemplateClient) GetTemplate(ctx context.Context, templateID int64) (*model.Template, error) {
	v, err := c.breaker.execute(func() (any, error) {
		var tpl model.Template
		url := fmt.Sprintf("%s/api/v1/templates/%d", c.baseURL, templateID)
		if err := doJSON(ctx, c.http, templateService, http.MethodGet, url, nil, &tpl, "template", templateID); err != nil {
			return nil, err
		}
		return &tpl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Template), nil
}

func (c *TemplateClient) RenderTemplate(ctx context.Context, templateID int64, vars map[string]string) (*model.RenderedTemplate, error) {
	v, err := c.breaker.execute(func() (any, error) {
		var out model.RenderedTemplate
		url := fmt.Sprintf("%s/api/v1/templates/%d/render", c.baseURL, templateID)
		if err := doJSON(ctx, c.http, templateService, http.MethodPost, url, vars, &out, "template", templateID); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.RenderedTemplate), nil
}

var _ TemplateLookup = (*TemplateClient)(nil)
