package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelpay/fraudgate/internal/circuitbreaker"
	"github.com/sentinelpay/fraudgate/internal/pagination"
)

// ----------------------------------------------------------------
// Test doubles
// ----------------------------------------------------------------

type stubScorer struct {
	probability float64
	err         error
	calls       int
}

func (s *stubScorer) Score(ctx context.Context, _ *TransactionFeatures) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.probability, nil
}

// recordingStore signals on Record so tests can wait for the async persist.
type recordingStore struct {
	recorded chan *RiskAssessment
}

func newRecordingStore() *recordingStore {
	return &recordingStore{recorded: make(chan *RiskAssessment, 10)}
}

func (r *recordingStore) Record(ctx context.Context, a *RiskAssessment) error {
	r.recorded <- a
	return nil
}

func (r *recordingStore) ListRecent(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*RiskAssessment, error) {
	return nil, nil
}

func testFeatures(amount float64) *TransactionFeatures {
	return &TransactionFeatures{
		Category: "misc_net",
		Amount:   amount,
		City:     "Springfield",
		State:    "IL",
		Job:      "Engineer",
		Hour:     14,
		DOW:      2,
		Age:      35,
	}
}

// ----------------------------------------------------------------
// Decide
// ----------------------------------------------------------------

func TestDecide_LowProbabilityNoSpike_Allowed(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.1}, nil)

	a := engine.Decide(context.Background(), testFeatures(100), []float64{100, 110, 90, 105})

	if a.Label != LabelAllowed {
		t.Fatalf("Expected allowed, got %s", a.Label)
	}
	if a.IsRisky {
		t.Error("Expected IsRisky false")
	}
	if a.Probability != 0.1 {
		t.Errorf("Expected probability 0.1, got %f", a.Probability)
	}
	if a.ScorerDegraded {
		t.Error("Expected non-degraded assessment")
	}
	if a.ID == "" {
		t.Error("Expected an assessment ID")
	}
}

func TestDecide_HighProbability_Challenge(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.9}, nil)

	a := engine.Decide(context.Background(), testFeatures(100), []float64{100, 110, 90})

	if a.Label != LabelChallenge {
		t.Fatalf("Expected challenge, got %s", a.Label)
	}
	if !a.IsRisky {
		t.Error("Expected IsRisky true")
	}
	if a.SpikeFlag {
		t.Error("Expected spike flag off")
	}
}

func TestDecide_ThresholdIsInclusive(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.5}, nil)

	a := engine.Decide(context.Background(), testFeatures(100), nil)
	if a.Label != LabelChallenge {
		t.Fatalf("Expected challenge at exactly the threshold, got %s", a.Label)
	}

	engine = NewEngine(&stubScorer{probability: 0.4999}, nil)
	a = engine.Decide(context.Background(), testFeatures(100), nil)
	if a.Label != LabelAllowed {
		t.Fatalf("Expected allowed just below the threshold, got %s", a.Label)
	}
}

func TestDecide_CustomThreshold(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.3}, nil).WithThreshold(0.25)

	a := engine.Decide(context.Background(), testFeatures(100), nil)
	if a.Label != LabelChallenge {
		t.Fatalf("Expected challenge with lowered threshold, got %s", a.Label)
	}
}

func TestDecide_SpikeAloneTriggersChallenge(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.0}, nil)

	a := engine.Decide(context.Background(), testFeatures(2000), []float64{100, 120, 110, 90})

	if a.Label != LabelChallenge {
		t.Fatalf("Expected challenge from the spike rule, got %s", a.Label)
	}
	if !a.SpikeFlag {
		t.Error("Expected spike flag set")
	}
	if a.AvgLastN == nil {
		t.Fatal("Expected AvgLastN to be populated")
	}
	if *a.AvgLastN != 105.0 {
		t.Errorf("Expected avg 105, got %f", *a.AvgLastN)
	}
}

func TestDecide_ShortHistoryOmitsAvg(t *testing.T) {
	engine := NewEngine(&stubScorer{probability: 0.1}, nil)

	a := engine.Decide(context.Background(), testFeatures(5000), []float64{100})

	if a.SpikeFlag {
		t.Error("Expected no spike flag with short history")
	}
	if a.AvgLastN != nil {
		t.Error("Expected AvgLastN to be absent with short history")
	}
}

func TestDecide_ScorerFailureDegrades(t *testing.T) {
	scorer := &stubScorer{err: errors.New("connection refused")}
	engine := NewEngine(scorer, nil)

	a := engine.Decide(context.Background(), testFeatures(100), []float64{100, 110, 90})

	if !a.ScorerDegraded {
		t.Fatal("Expected degraded assessment")
	}
	if a.Probability != 0.0 {
		t.Errorf("Expected probability 0 when degraded, got %f", a.Probability)
	}
	if a.Label != LabelAllowed {
		t.Fatalf("Expected allowed (rule did not fire), got %s", a.Label)
	}
}

func TestDecide_ScorerFailureStillHonorsSpike(t *testing.T) {
	engine := NewEngine(&stubScorer{err: errors.New("down")}, nil)

	a := engine.Decide(context.Background(), testFeatures(2000), []float64{100, 120, 110, 90})

	if !a.ScorerDegraded {
		t.Error("Expected degraded assessment")
	}
	if a.Label != LabelChallenge {
		t.Fatalf("Expected spike rule to still challenge, got %s", a.Label)
	}
}

func TestDecide_OutOfRangeProbabilityDegrades(t *testing.T) {
	for _, p := range []float64{-0.1, 1.5} {
		engine := NewEngine(&stubScorer{probability: p}, nil)
		a := engine.Decide(context.Background(), testFeatures(100), nil)

		if !a.ScorerDegraded {
			t.Errorf("probability %f: expected degraded assessment", p)
		}
		if a.Probability != 0.0 {
			t.Errorf("probability %f: expected clamp to 0, got %f", p, a.Probability)
		}
	}
}

func TestDecide_RecordsToStore(t *testing.T) {
	store := newRecordingStore()
	engine := NewEngine(&stubScorer{probability: 0.9}, store)

	a := engine.Decide(context.Background(), testFeatures(100), nil)

	select {
	case recorded := <-store.recorded:
		if recorded.ID != a.ID {
			t.Errorf("Expected recorded ID %s, got %s", a.ID, recorded.ID)
		}
		if recorded.Label != LabelChallenge {
			t.Errorf("Expected recorded label challenge, got %s", recorded.Label)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the assessment to be recorded")
	}
}

// ----------------------------------------------------------------
// Circuit breaker integration
// ----------------------------------------------------------------

func TestDecide_BreakerOpensAfterFailures(t *testing.T) {
	scorer := &stubScorer{err: errors.New("down")}
	breaker := circuitbreaker.New(3, time.Minute)
	engine := NewEngine(scorer, nil).WithBreaker(breaker)

	for i := 0; i < 3; i++ {
		engine.Decide(context.Background(), testFeatures(100), nil)
	}
	if scorer.calls != 3 {
		t.Fatalf("Expected 3 scorer calls before the breaker opens, got %d", scorer.calls)
	}

	// Breaker is open now; the scorer must not be called again.
	a := engine.Decide(context.Background(), testFeatures(100), nil)
	if scorer.calls != 3 {
		t.Errorf("Expected the open breaker to short-circuit, scorer called %d times", scorer.calls)
	}
	if !a.ScorerDegraded {
		t.Error("Expected degraded assessment while the breaker is open")
	}
}

func TestDecide_BreakerSuccessKeepsClosed(t *testing.T) {
	scorer := &stubScorer{probability: 0.2}
	breaker := circuitbreaker.New(3, time.Minute)
	engine := NewEngine(scorer, nil).WithBreaker(breaker)

	for i := 0; i < 10; i++ {
		a := engine.Decide(context.Background(), testFeatures(100), nil)
		if a.ScorerDegraded {
			t.Fatalf("Call %d: expected healthy assessment", i)
		}
	}
	if scorer.calls != 10 {
		t.Errorf("Expected 10 scorer calls, got %d", scorer.calls)
	}
}

// ----------------------------------------------------------------
// Configuration
// ----------------------------------------------------------------

func TestEngine_Defaults(t *testing.T) {
	engine := NewEngine(&stubScorer{}, nil)

	if engine.Threshold() != DefaultThreshold {
		t.Errorf("Expected default threshold %f, got %f", DefaultThreshold, engine.Threshold())
	}
	if engine.RuleParams() != DefaultRuleParams() {
		t.Errorf("Expected default rule params, got %+v", engine.RuleParams())
	}
}

func TestEngine_WithRuleParams(t *testing.T) {
	p := RuleParams{LastN: 10, MinPrev: 5, Multiplier: 2.0, MinDelta: 100}
	engine := NewEngine(&stubScorer{probability: 0.0}, nil).WithRuleParams(p)

	// avg(200x5)=200; 500 > 400 and 500-200 >= 100.
	a := engine.Decide(context.Background(), testFeatures(500), []float64{200, 200, 200, 200, 200})
	if !a.SpikeFlag {
		t.Fatal("Expected custom rule params to fire")
	}
	if a.MultiplierUsed != 2.0 || a.MinDeltaUsed != 100 {
		t.Errorf("Expected params echoed in assessment, got %f/%f", a.MultiplierUsed, a.MinDeltaUsed)
	}
}

func TestEngine_WithScorerTimeout_IgnoresNonPositive(t *testing.T) {
	engine := NewEngine(&stubScorer{}, nil).WithScorerTimeout(0)
	if engine.scorerTimeout != DefaultScorerTimeout {
		t.Errorf("Expected default timeout kept, got %v", engine.scorerTimeout)
	}
}
