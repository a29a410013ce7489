// Package monitoring tracks process-wide unlock pipeline counters. Attempt
// details are session-scoped and never persisted, so counters are the whole
// observability surface here.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsSnapshot holds a point-in-time view of pipeline activity.
type MetricsSnapshot struct {
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsUnlocked  int64 `json:"sessions_unlocked"`
	SessionsOpen      int64 `json:"sessions_open"`
	SessionsFailed    int64 `json:"sessions_failed"`
	CandidatesTested  int64 `json:"candidates_tested"`
	AICalls           int64 `json:"ai_calls"`
	AIRetries         int64 `json:"ai_retries"`
	AIFallbacks       int64 `json:"ai_fallbacks"`
	ExtractorTimeouts int64 `json:"extractor_timeouts"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates pipeline counters. Safe for concurrent use; a single
// instance is shared by all sessions in the process.
type Collector struct {
	sessionsStarted   atomic.Int64
	sessionsUnlocked  atomic.Int64
	sessionsOpen      atomic.Int64
	sessionsFailed    atomic.Int64
	candidatesTested  atomic.Int64
	aiCalls           atomic.Int64
	aiRetries         atomic.Int64
	aiFallbacks       atomic.Int64
	extractorTimeouts atomic.Int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) SessionStarted() { c.sessionsStarted.Add(1) }

func (c *Collector) SessionUnlocked() { c.sessionsUnlocked.Add(1) }

func (c *Collector) SessionOpen() { c.sessionsOpen.Add(1) }

func (c *Collector) SessionFailed() { c.sessionsFailed.Add(1) }

func (c *Collector) CandidateTested() { c.candidatesTested.Add(1) }

func (c *Collector) AICall() { c.aiCalls.Add(1) }

func (c *Collector) AIRetry() { c.aiRetries.Add(1) }

func (c *Collector) AIFallback() { c.aiFallbacks.Add(1) }

func (c *Collector) ExtractorTimeout() { c.extractorTimeouts.Add(1) }

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		SessionsStarted:   c.sessionsStarted.Load(),
		SessionsUnlocked:  c.sessionsUnlocked.Load(),
		SessionsOpen:      c.sessionsOpen.Load(),
		SessionsFailed:    c.sessionsFailed.Load(),
		CandidatesTested:  c.candidatesTested.Load(),
		AICalls:           c.aiCalls.Load(),
		AIRetries:         c.aiRetries.Load(),
		AIFallbacks:       c.aiFallbacks.Load(),
		ExtractorTimeouts: c.extractorTimeouts.Load(),
		CollectedAt:       time.Now().UTC(),
	}
}
