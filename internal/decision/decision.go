// Package decision implements the transaction risk decision core.
//
// Every gated transaction is evaluated two ways: a probabilistic classifier
// score from an injected scorer, and a deterministic spike rule over the
// user's recent transaction amounts. Either signal alone is enough to demand
// an OTP challenge before the transaction proceeds. The scorer is treated as
// optional infrastructure: when it is down the decision degrades to the rule
// component instead of failing.
package decision

import (
	"context"
	"time"

	"github.com/sentinelpay/fraudgate/internal/pagination"
)

// Label is the decision verdict surfaced to the caller.
type Label string

const (
	LabelAllowed   Label = "allowed"
	LabelChallenge Label = "challenge"
)

// DefaultThreshold is the probability at or above which a transaction is
// challenged when no override is configured.
const DefaultThreshold = 0.5

// TransactionFeatures carries the classifier's minimal feature set for one
// transaction. Immutable once built; supplied per decision request.
type TransactionFeatures struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amt"`
	City     string  `json:"city"`
	State    string  `json:"state"`
	Job      string  `json:"job"`
	Hour     int     `json:"hour"` // 0-23
	DOW      int     `json:"dow"`  // 0-6, Monday = 0
	Age      int     `json:"age"`
}

// RuleParams configures the amount-spike rule.
type RuleParams struct {
	LastN      int     `json:"lastN"`      // window size over recent amounts
	MinPrev    int     `json:"minPrev"`    // minimum history before the rule can fire
	Multiplier float64 `json:"multiplier"` // current must exceed avg * multiplier
	MinDelta   float64 `json:"minDelta"`   // and exceed avg by at least this much
}

// DefaultRuleParams returns the reference rule configuration.
func DefaultRuleParams() RuleParams {
	return RuleParams{
		LastN:      4,
		MinPrev:    3,
		Multiplier: 3.0,
		MinDelta:   500.0,
	}
}

// SpikeResult is the outcome of evaluating the spike rule.
type SpikeResult struct {
	Flag       bool    `json:"flag"`
	Avg        float64 `json:"avg"`        // 0 when HasAvg is false
	HasAvg     bool    `json:"hasAvg"`     // false when history was too short
	SampleSize int     `json:"sampleSize"` // entries actually averaged
	Multiplier float64 `json:"multiplier"`
	MinDelta   float64 `json:"minDelta"`
}

// RiskAssessment is the result of evaluating a single transaction.
type RiskAssessment struct {
	ID             string    `json:"id"`
	Probability    float64   `json:"probability"`
	ScorerDegraded bool      `json:"scorerDegraded,omitempty"` // classifier was unavailable; probability defaulted to 0
	SpikeFlag      bool      `json:"spikeFlag"`
	AvgLastN       *float64  `json:"avgLastN,omitempty"` // absent when history was too short
	MultiplierUsed float64   `json:"multiplierUsed"`
	MinDeltaUsed   float64   `json:"minDeltaUsed"`
	IsRisky        bool      `json:"isRisky"`
	Label          Label     `json:"label"`
	EvaluatedAt    time.Time `json:"evaluatedAt"`
}

// Scorer maps a feature vector to a fraud probability in [0,1].
// Implementations live in internal/scoring; the engine only sees this.
type Scorer interface {
	Score(ctx context.Context, features *TransactionFeatures) (float64, error)
}

// Store persists risk assessments for the audit trail. This is diagnostics
// only; durable transaction history stays with the caller.
//
// ListRecent returns assessments newest first. A nil cursor starts from the
// newest; otherwise only assessments strictly older than the cursor position
// (evaluated_at, id) are returned.
type Store interface {
	Record(ctx context.Context, assessment *RiskAssessment) error
	ListRecent(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*RiskAssessment, error)
}
