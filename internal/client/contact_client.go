package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/model"
)

const contactService = "contact-service"

type ContactLookup interface {
	GetContact(ctx context.Context, contactID int64) (*model.Contact, error)
}

// ContactClient calls the contact service over HTTP.
type ContactClient struct {
	baseURL string
	http    *http.Client
	breaker *breaker
}

func NewContactClient(baseURL string, hc *http.Client, cfg BreakerConfig, log *zap.Logger) *ContactClient {
	return &ContactClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		breaker: newBreaker(contactService, cfg, log),
	}
}

func (c *ContactClient) GetContact(ctx context.Context, contactID int64) (*model.Contact, error) {
	v, err := c.breaker.execute(func() (any, error) {
		var contact model.Contact
		url := fmt.Sprintf("%s/api/v1/contacts/%d", c.baseURL, contactID)
		if err := doJSON(ctx, c.http, contactService, http.MethodGet, url, nil, &contact, "contact", contactID); err != nil {
			return nil, err
		}
		return &contact, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Contact), nil
}

var _ ContactLookup = (*ContactClient)(nil)
