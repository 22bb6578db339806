package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
)

// doJSON performs a request and decodes a 2xx body into out. Transport errors
// and 5xx responses are DownstreamUnavailable; 404 is NotFound.
func doJSON(ctx context.Context, hc *http.Client, service, method, url string, body, out any, resource string, id any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return appErrors.NewDownstream(service, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return appErrors.NewNotFound(resource, id)
	case resp.StatusCode >= 500:
		return appErrors.NewDownstream(service, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return appErrors.Validation("%s returned %d: %s", service, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErrors.NewDownstream(service, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
