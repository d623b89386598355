// Package credentials provides the HTTP client for the external
// credentialing service that produces renderable certificate documents.
package credentials

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-certify/certify"
)

// DefaultMaxDocumentBytes guards in-memory HTML buffering before rendering.
const DefaultMaxDocumentBytes int64 = 8 * 1024 * 1024

// DefaultRequestTimeout bounds a single document fetch.
const DefaultRequestTimeout = 15 * time.Second

// Client fetches renderable documents from the credentialing API.
type Client struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	Timeout          time.Duration
	MaxDocumentBytes int64
}

var _ certify.DocumentProvider = (*Client)(nil)

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

// FetchRenderableDocument retrieves the HTML for a credential document,
// optionally rendered through a registered template.
func (c *Client) FetchRenderableDocument(ctx context.Context, documentID, templateID string) (string, error) {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return "", certify.NewError(certify.KindNotImpl, "credential service base URL not configured", nil)
	}
	if strings.TrimSpace(documentID) == "" {
		return "", certify.NewError(certify.KindValidation, "document ID is required", nil)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/documents/" + url.PathEscape(documentID) + "/html"
	if templateID != "" {
		endpoint += "?template=" + url.QueryEscape(templateID)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", certify.NewError(certify.KindInternal, "credential request build failed", err)
	}
	req.Header.Set("Accept", "text/html")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", certify.NewError(certify.KindUpstream, "credential service unreachable", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return "", certify.NewError(certify.KindNotFound, fmt.Sprintf("document %q not found", documentID), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", certify.NewError(certify.KindUpstream, fmt.Sprintf("credential service returned status %d", resp.StatusCode), nil)
	}

	maxBytes := c.MaxDocumentBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return "", certify.NewError(certify.KindUpstream, "credential response read failed", err)
	}
	if int64(len(body)) > maxBytes {
		return "", certify.NewError(certify.KindValidation, "credential document exceeds max size", nil)
	}

	return string(body), nil
}
