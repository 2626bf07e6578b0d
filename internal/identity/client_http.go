package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"veridoc/internal/platform/config"
	"veridoc/internal/upstream"
	"veridoc/pkg/domain"
)

const collaboratorName = "population-registry"

// HTTPClient implements Client by calling the external registry service.
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

// NewHTTPClient creates a new HTTP-based registry client.
func NewHTTPClient(cfg config.Registry, opts ...HTTPClientOption) *HTTPClient {
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

// lookupRequest is the request body for an ID lookup.
type lookupRequest struct {
	NationalID string `json:"national_id"`
}

// searchRequest is the request body for a biographic search.
type searchRequest struct {
	FirstNames   string `json:"first_names"`
	Surname      string `json:"surname"`
	DateOfBirth  string `json:"date_of_birth"`
	PlaceOfBirth string `json:"place_of_birth,omitempty"`
}

// recordResponse is the registry's citizen record shape.
type recordResponse struct {
	NationalID   string  `json:"national_id"`
	FirstNames   string  `json:"first_names"`
	Surname      string  `json:"surname"`
	DateOfBirth  string  `json:"date_of_birth"`
	PlaceOfBirth string  `json:"place_of_birth"`
	Citizenship  string  `json:"citizenship"`
	Active       bool    `json:"active"`
	MatchScore   float64 `json:"match_score"`
	CheckedAt    string  `json:"checked_at"`
}

// errorResponse represents an error response from the registry service.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LookupByID performs a citizen lookup by national ID.
func (c *HTTPClient) LookupByID(ctx context.Context, nationalID domain.NationalID) (*Record, error) {
	body, err := c.post(ctx, "/api/v1/citizen/lookup", lookupRequest{NationalID: nationalID.String()})
	if err != nil {
		return nil, err
	}
	resp, err := parseRecord(body)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SearchBiographic performs a biographic search returning the best candidate.
func (c *HTTPClient) SearchBiographic(ctx context.Context, bio Biographic) (*BiographicMatch, error) {
	body, err := c.post(ctx, "/api/v1/citizen/search", searchRequest{
		FirstNames:   bio.FirstNames,
		Surname:      bio.Surname,
		DateOfBirth:  bio.DateOfBirth,
		PlaceOfBirth: bio.PlaceOfBirth,
	})
	if err != nil {
		return nil, err
	}

	var resp recordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, upstream.NewError(upstream.ErrorContractMismatch, collaboratorName, "failed to parse search response", err)
	}
	record := toRecord(resp)
	return &BiographicMatch{Record: record, Score: resp.MatchScore}, nil
}

// Health checks registry availability.
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
		return fmt.Errorf("registry health: unexpected status %d", resp.StatusCode)
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
	case http.StatusOK:
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
		return nil, upstream.NewError(upstream.ErrorNotFound, collaboratorName, "citizen not found", nil)
	case http.StatusTooManyRequests:
		return nil, upstream.NewError(upstream.ErrorRateLimited, collaboratorName, "rate limited", nil)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, upstream.NewError(upstream.ErrorOutage, collaboratorName, "service unavailable", nil)
	default:
		return nil, upstream.NewError(upstream.ErrorInternal, collaboratorName,
			fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}
}

func parseRecord(body []byte) (*Record, error) {
	var resp recordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, upstream.NewError(upstream.ErrorContractMismatch, collaboratorName, "failed to parse response", err)
	}
	return toRecord(resp), nil
}

func toRecord(resp recordResponse) *Record {
	checkedAt, err := time.Parse(time.RFC3339, resp.CheckedAt)
	if err != nil {
		checkedAt = time.Now()
	}
	return &Record{
		NationalID:   resp.NationalID,
		FirstNames:   resp.FirstNames,
		Surname:      resp.Surname,
		DateOfBirth:  resp.DateOfBirth,
		PlaceOfBirth: resp.PlaceOfBirth,
		Citizenship:  resp.Citizenship,
		Active:       resp.Active,
		CheckedAt:    checkedAt,
	}
}
