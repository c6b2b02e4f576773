package report

import (
	"math"
	"slices"
	"time"
)

// Latency summarizes repeated runs of one query, in seconds.
type Latency struct {
	Runs     int     `json:"runs" yaml:"runs"`
	Failures int     `json:"failures" yaml:"failures"`
	Mean     float64 `json:"avg_seconds" yaml:"avg_seconds"`
	P95      float64 `json:"p95_seconds" yaml:"p95_seconds"`
	P99      float64 `json:"p99_seconds" yaml:"p99_seconds"`
	Min      float64 `json:"min_seconds" yaml:"min_seconds"`
	Max      float64 `json:"max_seconds" yaml:"max_seconds"`
}

// summarize computes latency statistics over the successful samples.
func summarize(samples []time.Duration, failures int) Latency {
	l := Latency{Runs: len(samples) + failures, Failures: failures}
	if len(samples) == 0 {
		return l
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	l.Mean = seconds(total / time.Duration(len(sorted)))
	l.Min = seconds(sorted[0])
	l.Max = seconds(sorted[len(sorted)-1])
	l.P95 = seconds(percentile(sorted, 0.95))
	l.P99 = seconds(percentile(sorted, 0.99))
	return l
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}
