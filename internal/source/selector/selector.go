// Package selector converts probe results into a single weighted score per
// candidate and picks a winner deterministically.
package selector

import (
	"math"
	"sort"

	"github.com/streamweave/streamweave/internal/source/types"
)

// Sub-score weights. Quality and speed dominate; latency breaks near-ties.
const (
	qualityWeight = 0.4
	speedWeight   = 0.4
	pingWeight    = 0.2
)

// neutralSpeedScore is used when a throughput measurement is unavailable.
const neutralSpeedScore = 30

// qualityScore maps a quality tier onto a 0-100 scale.
func qualityScore(tier types.QualityTier) float64 {
	switch tier {
	case types.Quality4K:
		return 100
	case types.Quality2K:
		return 85
	case types.Quality1080p:
		return 75
	case types.Quality720p:
		return 60
	case types.Quality480p:
		return 40
	case types.QualitySD:
		return 20
	default:
		return 0
	}
}

// speedScore maps throughput linearly against the best observed throughput.
func speedScore(throughputKBps, maxKBps float64) float64 {
	if throughputKBps <= 0 || maxKBps <= 0 {
		return neutralSpeedScore
	}
	return math.Min(100, math.Max(0, throughputKBps/maxKBps*100))
}

// pingScore maps latency linearly and inverted against the observed
// latency range: lowest latency scores 100, highest 0. A degenerate range
// scores 100 for everyone; a non-positive latency scores 0.
func pingScore(latencyMs, minMs, maxMs int64) float64 {
	if latencyMs <= 0 {
		return 0
	}
	if maxMs == minMs {
		return 100
	}
	ratio := float64(maxMs-latencyMs) / float64(maxMs-minMs)
	return math.Min(100, math.Max(0, ratio*100))
}

// Score computes the weighted selection score for one probe result given
// the batch-wide observed maxima. Deterministic for identical inputs.
func Score(result types.ProbeResult, maxSpeedKBps float64, minPingMs, maxPingMs int64) float64 {
	score := qualityScore(result.Quality)*qualityWeight +
		speedScore(result.ThroughputKBps, maxSpeedKBps)*speedWeight +
		pingScore(result.LatencyMs, minPingMs, maxPingMs)*pingWeight
	return math.Round(score*100) / 100
}

// Rank scores every probe result and returns them ordered by score
// descending. Ordering is stable: ties keep original fetch order. Failed
// probes score zero but stay in the list so callers can surface them.
func Rank(results []types.ProbeResult) []types.ScoredCandidate {
	maxSpeed := 0.0
	var minPing, maxPing int64
	havePing := false

	for _, result := range results {
		if result.Failed {
			continue
		}
		if result.ThroughputKBps > maxSpeed {
			maxSpeed = result.ThroughputKBps
		}
		if result.LatencyMs > 0 {
			if !havePing || result.LatencyMs < minPing {
				minPing = result.LatencyMs
			}
			if !havePing || result.LatencyMs > maxPing {
				maxPing = result.LatencyMs
			}
			havePing = true
		}
	}

	scored := make([]types.ScoredCandidate, len(results))
	for i, result := range results {
		entry := types.ScoredCandidate{ProbeResult: result}
		if !result.Failed {
			entry.Score = Score(result, maxSpeed, minPing, maxPing)
		}
		scored[i] = entry
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}

// PickBest returns the winning candidate for a probed batch. If every probe
// failed the first candidate in original input order wins: selection must be
// reproducible for the same input set, never random.
func PickBest(results []types.ProbeResult) (types.Candidate, []types.ScoredCandidate) {
	allFailed := true
	for _, result := range results {
		if !result.Failed {
			allFailed = false
			break
		}
	}

	scored := Rank(results)
	if allFailed {
		return results[0].Candidate, scored
	}
	return scored[0].Candidate, scored
}
