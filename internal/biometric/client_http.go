package biometric

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"veridoc/internal/platform/config"
	"veridoc/internal/upstream"
)

const collaboratorName = "biometric-matcher"

// HTTPMatcher implements Matcher against the external ABIS-style service.
type HTTPMatcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Matcher = (*HTTPMatcher)(nil)

// HTTPMatcherOption configures the HTTPMatcher.
type HTTPMatcherOption func(*HTTPMatcher)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) HTTPMatcherOption {
	return func(m *HTTPMatcher) {
		m.httpClient = client
	}
}

// NewHTTPMatcher creates a new HTTP-based biometric matcher client.
func NewHTTPMatcher(cfg config.Matcher, opts ...HTTPMatcherOption) *HTTPMatcher {
	m := &HTTPMatcher{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type matchRequestBody struct {
	Mode        string         `json:"mode"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Templates   []templateBody `json:"templates"`
}

type templateBody struct {
	ID       string  `json:"id"`
	Modality string  `json:"modality"`
	Format   string  `json:"format"`
	Data     string  `json:"data"` // base64
	Quality  float64 `json:"quality"`
}

type matchResponseBody struct {
	Results []matchResultBody `json:"results"`
}

type matchResultBody struct {
	TemplateID string            `json:"template_id"`
	Modality   string            `json:"modality"`
	PersonRef  string            `json:"person_ref"`
	Score      float64           `json:"score"`
	Quality    float64           `json:"quality"`
	Detail     map[string]string `json:"detail"`
}

// Match submits all templates in one call and maps the response.
func (m *HTTPMatcher) Match(ctx context.Context, req MatchRequest) ([]MatchResult, error) {
	body := matchRequestBody{
		Mode:        string(req.Mode),
		ReferenceID: req.ReferenceID,
		Templates:   make([]templateBody, 0, len(req.Templates)),
	}
	for _, tpl := range req.Templates {
		body.Templates = append(body.Templates, templateBody{
			ID:       tpl.ID,
			Modality: string(tpl.Modality),
			Format:   tpl.Format,
			Data:     base64.StdEncoding.EncodeToString(tpl.Data),
			Quality:  tpl.Quality,
		})
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/api/v1/match", m.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", m.apiKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, upstream.NewError(upstream.ErrorTimeout, collaboratorName, "request timeout", err)
		}
		return nil, upstream.NewError(upstream.ErrorOutage, collaboratorName, "failed to execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName, "failed to read response body", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, upstream.NewError(upstream.ErrorAuthentication, collaboratorName, "authentication failed", nil)
	case http.StatusBadRequest:
		return nil, upstream.NewError(upstream.ErrorBadData, collaboratorName, "matcher rejected request", nil)
	case http.StatusTooManyRequests:
		return nil, upstream.NewError(upstream.ErrorRateLimited, collaboratorName, "rate limited", nil)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, upstream.NewError(upstream.ErrorOutage, collaboratorName, "service unavailable", nil)
	default:
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName,
			fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	var parsed matchResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, upstream.NewError(upstream.ErrorContractMismatch, collaboratorName, "failed to parse response", err)
	}

	results := make([]MatchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, MatchResult{
			TemplateID: r.TemplateID,
			Modality:   Modality(r.Modality),
			PersonRef:  r.PersonRef,
			Score:      r.Score,
			Quality:    r.Quality,
			Detail:     r.Detail,
		})
	}
	return results, nil
}

// Health checks matcher availability.
func (m *HTTPMatcher) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/health", m.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("matcher health: unexpected status %d", resp.StatusCode)
	}
	return nil
}
