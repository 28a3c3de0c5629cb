package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Fraudgate API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// FraudgateClient is a pure HTTP client for the Fraudgate API.
type FraudgateClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFraudgateClient creates a new client for the Fraudgate API.
func NewFraudgateClient(cfg Config) *FraudgateClient {
	return &FraudgateClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *FraudgateClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ScoreTransaction submits transaction features for a risk decision.
func (c *FraudgateClient) ScoreTransaction(ctx context.Context, features map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/decisions", nil, features)
}

// ListDecisions returns recent risk assessments.
func (c *FraudgateClient) ListDecisions(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/decisions", q, nil)
}

// SendOTP issues an OTP challenge to a destination.
func (c *FraudgateClient) SendOTP(ctx context.Context, destination string) (json.RawMessage, error) {
	body := map[string]string{"destination": destination}
	return c.doRequest(ctx, http.MethodPost, "/v1/otp/send", nil, body)
}

// VerifyOTP checks a code against a challenge.
func (c *FraudgateClient) VerifyOTP(ctx context.Context, challengeID, code string) (json.RawMessage, error) {
	body := map[string]string{
		"challenge_id": challengeID,
		"code":         code,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/otp/verify", nil, body)
}
