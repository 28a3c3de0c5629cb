// Package scoring provides classifier implementations of decision.Scorer.
//
// The classifier itself is trained offline and served by a separate scoring
// service; this package only knows how to ask it for a probability. Which
// implementation to use is decided once at construction from configuration,
// never probed at call time.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentinelpay/fraudgate/internal/decision"
)

// Compile-time interface checks.
var (
	_ decision.Scorer = (*HTTPScorer)(nil)
	_ decision.Scorer = (*StaticScorer)(nil)
)

// HTTPScorer calls an external scoring service over HTTP.
//
// Contract: POST {baseURL}/score with the feature vector as JSON; the service
// responds 200 with {"probability": <float in [0,1]>}.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScorer creates a scorer against the given base URL. The timeout is
// a transport-level ceiling; per-call deadlines come from the context.
func NewHTTPScorer(baseURL string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type scoreResponse struct {
	Probability float64 `json:"probability"`
}

// Score asks the scoring service for a fraud probability.
func (s *HTTPScorer) Score(ctx context.Context, features *decision.TransactionFeatures) (float64, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return 0, fmt.Errorf("marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build scorer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scorer call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the error message, drop the rest.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return 0, fmt.Errorf("scorer returned %d: %s", resp.StatusCode, snippet)
	}

	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode scorer response: %w", err)
	}
	return out.Probability, nil
}

// StaticScorer returns a fixed probability. Used for dev mode (no scoring
// service configured) and tests.
type StaticScorer struct {
	Probability float64
}

// NewStaticScorer creates a scorer that always returns p.
func NewStaticScorer(p float64) *StaticScorer {
	return &StaticScorer{Probability: p}
}

// Score returns the fixed probability.
func (s *StaticScorer) Score(ctx context.Context, _ *decision.TransactionFeatures) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Probability, nil
}
