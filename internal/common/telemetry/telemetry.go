// File path: internal/common/telemetry/telemetry.go

// Package telemetry tracks counters for the external call sites of the
// pipeline: embedding requests, vector searches, and compliance judgments.
// Counters are published through expvar and mirrored in a Snapshot served by
// the run API.
package telemetry

import (
	"expvar"
	"sync"
	"time"
)

var (
	initOnce sync.Once

	embedTotal     *expvar.Int
	embedFailures  *expvar.Int
	embedLatencyMS *expvar.Int

	searchTotal     *expvar.Int
	searchLatencyMS *expvar.Int

	judgeTotal     *expvar.Int
	judgeFailures  *expvar.Int
	judgeRetries   *expvar.Int
	judgeLatencyMS *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		embedTotal = expvar.NewInt("sopcheck_embed_total")
		embedFailures = expvar.NewInt("sopcheck_embed_failures")
		embedLatencyMS = expvar.NewInt("sopcheck_embed_latency_ms")

		searchTotal = expvar.NewInt("sopcheck_vector_search_total")
		searchLatencyMS = expvar.NewInt("sopcheck_vector_search_latency_ms")

		judgeTotal = expvar.NewInt("sopcheck_judge_total")
		judgeFailures = expvar.NewInt("sopcheck_judge_failures")
		judgeRetries = expvar.NewInt("sopcheck_judge_retries")
		judgeLatencyMS = expvar.NewInt("sopcheck_judge_latency_ms")
	})
}

// RecordEmbedding notes one embedding-service call.
func RecordEmbedding(ok bool, duration time.Duration) {
	ensureInit()
	embedTotal.Add(1)
	if !ok {
		embedFailures.Add(1)
	}
	if duration > 0 {
		embedLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordSearch notes one vector index query.
func RecordSearch(duration time.Duration) {
	ensureInit()
	searchTotal.Add(1)
	if duration > 0 {
		searchLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordJudgment notes one reasoning-model verdict call.
func RecordJudgment(ok bool, duration time.Duration) {
	ensureInit()
	judgeTotal.Add(1)
	if !ok {
		judgeFailures.Add(1)
	}
	if duration > 0 {
		judgeLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordJudgmentRetry notes a structural retry after an unparseable verdict.
func RecordJudgmentRetry() {
	ensureInit()
	judgeRetries.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	EmbedTotal     int64 `json:"embed_total"`
	EmbedFailures  int64 `json:"embed_failures"`
	EmbedLatencyMS int64 `json:"embed_latency_ms"`

	SearchTotal     int64 `json:"search_total"`
	SearchLatencyMS int64 `json:"search_latency_ms"`

	JudgeTotal     int64 `json:"judge_total"`
	JudgeFailures  int64 `json:"judge_failures"`
	JudgeRetries   int64 `json:"judge_retries"`
	JudgeLatencyMS int64 `json:"judge_latency_ms"`
}

// Current returns the current counter values.
func Current() Snapshot {
	ensureInit()
	return Snapshot{
		EmbedTotal:      embedTotal.Value(),
		EmbedFailures:   embedFailures.Value(),
		EmbedLatencyMS:  embedLatencyMS.Value(),
		SearchTotal:     searchTotal.Value(),
		SearchLatencyMS: searchLatencyMS.Value(),
		JudgeTotal:      judgeTotal.Value(),
		JudgeFailures:   judgeFailures.Value(),
		JudgeRetries:    judgeRetries.Value(),
		JudgeLatencyMS:  judgeLatencyMS.Value(),
	}
}
