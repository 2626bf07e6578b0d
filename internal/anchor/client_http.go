package anchor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"veridoc/internal/platform/config"
	"veridoc/internal/upstream"
)

const collaboratorName = "trust-anchor"

// HTTPClient implements Client against the external anchoring service.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// NewHTTPClient creates a new HTTP-based anchoring client.
func NewHTTPClient(cfg config.Anchor, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type anchorRequest struct {
	Document string `json:"document"` // base64
}

type anchorResponse struct {
	Reference  string `json:"reference"`
	Signature  string `json:"signature"`
	AnchoredAt string `json:"anchored_at"`
}

type verifyRequest struct {
	Reference string `json:"reference"`
	Document  string `json:"document"` // base64
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Anchor submits document bytes for countersigning.
func (c *HTTPClient) Anchor(ctx context.Context, docBytes []byte) (*Record, error) {
	body, err := c.post(ctx, "/api/v1/anchors", anchorRequest{
		Document: base64.StdEncoding.EncodeToString(docBytes),
	})
	if err != nil {
		return nil, err
	}

	var resp anchorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, upstream.NewError(upstream.ErrorContractMismatch, collaboratorName, "failed to parse anchor response", err)
	}
	anchoredAt, err := time.Parse(time.RFC3339, resp.AnchoredAt)
	if err != nil {
		anchoredAt = time.Now()
	}
	return &Record{
		Reference:  resp.Reference,
		Signature:  resp.Signature,
		AnchoredAt: anchoredAt,
	}, nil
}

// VerifyAnchor checks a previously issued anchor against document bytes.
func (c *HTTPClient) VerifyAnchor(ctx context.Context, reference string, docBytes []byte) (bool, error) {
	body, err := c.post(ctx, "/api/v1/anchors/verify", verifyRequest{
		Reference: reference,
		Document:  base64.StdEncoding.EncodeToString(docBytes),
	})
	if err != nil {
		if upstream.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, upstream.NewError(upstream.ErrorContractMismatch, collaboratorName, "failed to parse verify response", err)
	}
	return resp.Valid, nil
}

// Health checks anchoring service availability.
func (c *HTTPClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anchor health: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// post executes a JSON POST and normalizes transport and status failures.
func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName, "failed to create request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, upstream.NewError(upstream.ErrorTimeout, collaboratorName, "request timeout", err)
		}
		return nil, upstream.NewError(upstream.ErrorOutage, collaboratorName, "failed to execute request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName, "failed to read response body", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, upstream.NewError(upstream.ErrorAuthentication, collaboratorName, "authentication failed", nil)
	case http.StatusBadRequest:
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, upstream.NewError(upstream.ErrorBadData, collaboratorName, errResp.Message, nil)
		}
		return nil, upstream.NewError(upstream.ErrorBadData, collaboratorName, "bad request", nil)
	case http.StatusNotFound:
		return nil, upstream.NewError(upstream.ErrorNotFound, collaboratorName, "anchor not found", nil)
	case http.StatusTooManyRequests:
		return nil, upstream.NewError(upstream.ErrorRateLimited, collaboratorName, "rate limited", nil)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, upstream.NewError(upstream.ErrorOutage, collaboratorName, "service unavailable", nil)
	default:
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName,
			fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}
}
