package decision

// EvaluateSpike runs the deterministic amount-spike heuristic.
//
// history is ordered most-recent-first; at most the first p.LastN entries are
// considered. With fewer than p.MinPrev entries the rule never fires; a new
// user is not a spiking user. Otherwise the rule fires when the current
// amount exceeds the window average by both the multiplier and the absolute
// delta floor.
//
// Pure and deterministic: no I/O, no clock, no state.
func EvaluateSpike(history []float64, currentAmount float64, p RuleParams) SpikeResult {
	res := SpikeResult{
		Multiplier: p.Multiplier,
		MinDelta:   p.MinDelta,
	}

	window := history
	if len(window) > p.LastN {
		window = window[:p.LastN]
	}

	if len(window) < p.MinPrev {
		return res
	}

	var sum float64
	for _, amt := range window {
		sum += amt
	}
	avg := sum / float64(len(window))

	res.Avg = avg
	res.HasAvg = true
	res.SampleSize = len(window)
	res.Flag = avg > 0 &&
		currentAmount > avg*p.Multiplier &&
		currentAmount-avg >= p.MinDelta

	return res
}
