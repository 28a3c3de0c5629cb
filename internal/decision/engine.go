package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentinelpay/fraudgate/internal/circuitbreaker"
	"github.com/sentinelpay/fraudgate/internal/idgen"
	"github.com/sentinelpay/fraudgate/internal/logging"
	"github.com/sentinelpay/fraudgate/internal/metrics"
	"github.com/sentinelpay/fraudgate/internal/traces"
)

const (
	// DefaultScorerTimeout bounds a single classifier call. A slow scorer
	// degrades the decision; it never blocks the caller past this deadline.
	DefaultScorerTimeout = 5 * time.Second

	breakerKeyScorer = "scorer"
)

// Engine combines the classifier score and the spike rule into a single
// allow/challenge decision. Stateless between calls; safe for concurrent use.
type Engine struct {
	scorer        Scorer
	store         Store
	breaker       *circuitbreaker.Breaker
	threshold     float64
	rule          RuleParams
	scorerTimeout time.Duration
	logger        *slog.Logger
}

// NewEngine creates a decision engine. The store may be nil (no audit trail);
// the scorer may not.
func NewEngine(scorer Scorer, store Store) *Engine {
	return &Engine{
		scorer:        scorer,
		store:         store,
		threshold:     DefaultThreshold,
		rule:          DefaultRuleParams(),
		scorerTimeout: DefaultScorerTimeout,
		logger:        slog.Default(),
	}
}

// WithThreshold overrides the challenge probability threshold.
func (e *Engine) WithThreshold(t float64) *Engine {
	e.threshold = t
	return e
}

// WithRuleParams overrides the spike rule configuration.
func (e *Engine) WithRuleParams(p RuleParams) *Engine {
	e.rule = p
	return e
}

// WithScorerTimeout overrides the per-call classifier deadline.
func (e *Engine) WithScorerTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.scorerTimeout = d
	}
	return e
}

// WithBreaker guards classifier calls with a circuit breaker.
func (e *Engine) WithBreaker(b *circuitbreaker.Breaker) *Engine {
	e.breaker = b
	return e
}

// WithLogger sets the engine logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

// Threshold returns the configured challenge threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// RuleParams returns the configured spike rule parameters.
func (e *Engine) RuleParams() RuleParams { return e.rule }

// Decide evaluates one transaction and returns a risk assessment.
//
// The classifier call is bounded by the scorer timeout and guarded by the
// breaker; any failure degrades the probability to 0.0 and the decision
// continues on the rule component alone. history is the user's recent
// transaction amounts, most-recent-first, excluding the current transaction.
func (e *Engine) Decide(ctx context.Context, features *TransactionFeatures, history []float64) *RiskAssessment {
	ctx, span := traces.StartSpan(ctx, "decision.decide")
	defer span.End()

	probability, degraded := e.score(ctx, features)
	spike := EvaluateSpike(history, features.Amount, e.rule)

	isRisky := probability >= e.threshold || spike.Flag
	label := LabelAllowed
	if isRisky {
		label = LabelChallenge
	}

	assessment := &RiskAssessment{
		ID:             idgen.WithPrefix("dec_"),
		Probability:    probability,
		ScorerDegraded: degraded,
		SpikeFlag:      spike.Flag,
		MultiplierUsed: spike.Multiplier,
		MinDeltaUsed:   spike.MinDelta,
		IsRisky:        isRisky,
		Label:          label,
		EvaluatedAt:    time.Now(),
	}
	if spike.HasAvg {
		avg := spike.Avg
		assessment.AvgLastN = &avg
	}

	span.SetAttributes(
		traces.DecisionLabel(string(label)),
		traces.Probability(probability),
		traces.SpikeFlag(spike.Flag),
	)
	metrics.DecisionsTotal.WithLabelValues(string(label)).Inc()
	if spike.Flag {
		metrics.SpikeFlagsTotal.Inc()
	}

	// Persist asynchronously (best-effort audit trail)
	if e.store != nil {
		go func() {
			_ = e.store.Record(context.Background(), assessment)
		}()
	}

	return assessment
}

// score calls the classifier with a bounded deadline. Returns the probability
// and whether the result is degraded (scorer failed, returned garbage, or was
// circuit-broken).
func (e *Engine) score(ctx context.Context, features *TransactionFeatures) (float64, bool) {
	if e.breaker != nil && !e.breaker.Allow(breakerKeyScorer) {
		metrics.ScorerFailuresTotal.Inc()
		logging.L(ctx).Warn("scorer circuit open, degrading decision")
		return 0.0, true
	}

	sctx, cancel := context.WithTimeout(ctx, e.scorerTimeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.ScorerDuration)
	p, err := e.scorer.Score(sctx, features)
	timer.ObserveDuration()

	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure(breakerKeyScorer)
		}
		metrics.ScorerFailuresTotal.Inc()
		logging.L(ctx).Warn("scorer unavailable, degrading decision", "error", err)
		return 0.0, true
	}

	if p < 0 || p > 1 {
		// A probability outside [0,1] is a scorer bug; treat like an outage.
		if e.breaker != nil {
			e.breaker.RecordFailure(breakerKeyScorer)
		}
		metrics.ScorerFailuresTotal.Inc()
		logging.L(ctx).Warn("scorer returned out-of-range probability, degrading decision", "probability", p)
		return 0.0, true
	}

	if e.breaker != nil {
		e.breaker.RecordSuccess(breakerKeyScorer)
	}
	return p, false
}
