package walletauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// HTTPClient talks to a walletauth server over its JSON API
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// ClientOption customises an HTTPClient
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL, e.g. "https://auth.example.com/api"
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", baseURL)
	}

	c := &HTTPClient{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) NewSession(ctx context.Context) (Session, error) {
	var out Session
	err := c.doJSON(ctx, http.MethodPost, "/session/new", nil, nil, &out)
	return out, err
}

func (c *HTTPClient) Session(ctx context.Context, sessionID string) (Session, error) {
	var out Session
	err := c.doJSON(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID), nil, nil, &out)
	return out, err
}

func (c *HTTPClient) Verify(ctx context.Context, req VerifyRequest) (VerifyResponse, error) {
	var out VerifyResponse
	err := c.doJSON(ctx, http.MethodPost, "/verify", req, nil, &out)
	return out, err
}

func (c *HTTPClient) Me(ctx context.Context, token string) (Identity, error) {
	var out Identity
	header := http.Header{"Authorization": {"Bearer " + token}}
	err := c.doJSON(ctx, http.MethodGet, "/me", nil, header, &out)
	return out, err
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in any, header http.Header, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrUnexpectedResponse)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
