package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"
)

// Embedder is the narrow provider surface the retry manager needs. The
// provider chain satisfies it: a nil return means no tier could embed.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// ContentLoader returns the raw text to embed for a record. The default
// loader uses the record content, falling back to reading the record's
// source path.
type ContentLoader func(rec *MemoryRecord) (string, error)

// RetryPolicy holds the retry manager's tunables.
type RetryPolicy struct {
	// MaxAttempts is the retry budget; reaching it marks the record failed.
	MaxAttempts int

	// Backoff holds the eligibility delays indexed by retry count. A record
	// with retry_count >= len(Backoff) uses the last delay.
	Backoff []time.Duration
}

// DefaultRetryPolicy returns the standard 3-attempt schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
	}
}

// RetryManager re-attempts embedding generation for records the provider
// chain could not embed at save time. It owns all mutations of
// retry_count, last_retry_at and failure_reason.
type RetryManager struct {
	store    Store
	embedder Embedder
	loader   ContentLoader
	policy   RetryPolicy
	log      engineLogger

	// onEmbedded fires after a successful retry so the search indexes stay
	// in sync with storage. It receives the loaded content because records
	// saved with only a path have no inline text to index.
	onEmbedded func(ctx context.Context, id int64, content string, embedding []float32)

	attemptHook func(outcome string)

	// now is replaceable for tests.
	now func() time.Time
}

// RetryOption configures a RetryManager.
type RetryOption func(*RetryManager)

// WithContentLoader overrides the default content loader.
func WithContentLoader(loader ContentLoader) RetryOption {
	return func(m *RetryManager) { m.loader = loader }
}

// WithEmbeddedCallback installs the index-sync callback fired on every
// successful retry.
func WithEmbeddedCallback(fn func(ctx context.Context, id int64, content string, embedding []float32)) RetryOption {
	return func(m *RetryManager) { m.onEmbedded = fn }
}

// WithAttemptHook installs a per-attempt outcome callback, used for metrics.
func WithAttemptHook(fn func(outcome string)) RetryOption {
	return func(m *RetryManager) { m.attemptHook = fn }
}

// NewRetryManager creates a retry manager over the store and embedder.
func NewRetryManager(store Store, embedder Embedder, policy RetryPolicy, log engineLogger, opts ...RetryOption) *RetryManager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if len(policy.Backoff) == 0 {
		policy.Backoff = DefaultRetryPolicy().Backoff
	}
	m := &RetryManager{
		store:    store,
		embedder: embedder,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
	if m.log == nil {
		m.log = nopEngineLogger{}
	}
	m.loader = m.defaultLoader
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RetryManager) defaultLoader(rec *MemoryRecord) (string, error) {
	if rec.Content != "" {
		return rec.Content, nil
	}
	if rec.Path == "" {
		return "", fmt.Errorf("memory: record %d has no content or path", rec.ID)
	}
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return "", fmt.Errorf("memory: load content for record %d: %w", rec.ID, err)
	}
	return string(data), nil
}

// eligible reports whether a record may be attempted now: status pending or
// retry, budget left, and backoff elapsed. Pending records are eligible
// immediately.
func (m *RetryManager) eligible(rec *MemoryRecord, now time.Time) bool {
	switch rec.EmbeddingStatus {
	case StatusPending:
		return rec.RetryCount < m.policy.MaxAttempts
	case StatusRetry:
		if rec.RetryCount >= m.policy.MaxAttempts {
			return false
		}
		idx := rec.RetryCount
		if idx >= len(m.policy.Backoff) {
			idx = len(m.policy.Backoff) - 1
		}
		return now.Sub(rec.LastRetryAt) >= m.policy.Backoff[idx]
	}
	return false
}

// Queue returns up to limit records eligible for an attempt, ordered
// pending first, then ascending retry count, then oldest first.
func (m *RetryManager) Queue(ctx context.Context, limit int) ([]*MemoryRecord, error) {
	records, err := m.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var queue []*MemoryRecord
	for _, rec := range records {
		if m.eligible(rec, now) {
			queue = append(queue, rec)
		}
	}

	sort.Slice(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if (a.EmbeddingStatus == StatusPending) != (b.EmbeddingStatus == StatusPending) {
			return a.EmbeddingStatus == StatusPending
		}
		if a.RetryCount != b.RetryCount {
			return a.RetryCount < b.RetryCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(queue) > limit {
		queue = queue[:limit]
	}
	return queue, nil
}

// ProcessReport summarizes one Process run.
type ProcessReport struct {
	Attempted int `json:"attempted"`
	Embedded  int `json:"embedded"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Process attempts up to limit eligible records. A successful attempt
// writes the vector and success status in one record write; a failed
// attempt increments the retry count, transitioning to failed once the
// budget is exhausted.
func (m *RetryManager) Process(ctx context.Context, limit int) (ProcessReport, error) {
	var report ProcessReport

	queue, err := m.Queue(ctx, limit)
	if err != nil {
		return report, err
	}

	for _, rec := range queue {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Attempted++

		content, err := m.loader(rec)
		if err != nil {
			m.recordFailure(ctx, rec, err.Error(), &report)
			continue
		}

		embedding := m.embedder.Embed(ctx, content)
		if embedding == nil {
			m.recordFailure(ctx, rec, "no embedding provider available", &report)
			continue
		}

		rec.Embedding = embedding
		rec.EmbeddingStatus = StatusSuccess
		rec.FailureReason = ""
		rec.LastRetryAt = m.now()
		if err := m.store.PutRecord(ctx, rec); err != nil {
			m.log.Error("retry: persist embedded record failed", "id", rec.ID, "error", err)
			continue
		}

		report.Embedded++
		if m.attemptHook != nil {
			m.attemptHook("embedded")
		}
		if m.onEmbedded != nil {
			m.onEmbedded(ctx, rec.ID, content, embedding)
		}
		m.log.Debug("retry: embedded record", "id", rec.ID, "attempts", rec.RetryCount+1)
	}

	return report, nil
}

func (m *RetryManager) recordFailure(ctx context.Context, rec *MemoryRecord, reason string, report *ProcessReport) {
	rec.RetryCount++
	rec.LastRetryAt = m.now()
	rec.FailureReason = reason

	if rec.RetryCount >= m.policy.MaxAttempts {
		rec.EmbeddingStatus = StatusFailed
		report.Failed++
		if m.attemptHook != nil {
			m.attemptHook("failed")
		}
		m.log.Warn("retry: record exhausted attempts",
			"id", rec.ID,
			"attempts", rec.RetryCount,
			"reason", reason,
		)
	} else {
		rec.EmbeddingStatus = StatusRetry
		report.Retried++
		if m.attemptHook != nil {
			m.attemptHook("retry")
		}
	}

	if err := m.store.PutRecord(ctx, rec); err != nil {
		m.log.Error("retry: persist failure state failed", "id", rec.ID, "error", err)
	}
}

// ResetForRetry clears a failed record back to retry with a zero count.
// Calling it on a record in any other status is a safe no-op reporting
// false.
func (m *RetryManager) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	rec, err := m.store.GetRecord(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.EmbeddingStatus != StatusFailed {
		return false, nil
	}

	rec.EmbeddingStatus = StatusRetry
	rec.RetryCount = 0
	rec.LastRetryAt = time.Time{}
	rec.FailureReason = ""
	if err := m.store.PutRecord(ctx, rec); err != nil {
		return false, err
	}
	m.log.Info("retry: record reset", "id", id)
	return true, nil
}

// MarkFailed marks a record permanently failed with the given reason.
func (m *RetryManager) MarkFailed(ctx context.Context, id int64, reason string) error {
	rec, err := m.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.EmbeddingStatus = StatusFailed
	rec.FailureReason = reason
	rec.LastRetryAt = m.now()
	return m.store.PutRecord(ctx, rec)
}

// RetryStatus summarizes the retry queue.
type RetryStatus struct {
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
	Eligible int `json:"eligible"`
}

// Status reports counts by embedding status plus the currently eligible
// set size.
func (m *RetryManager) Status(ctx context.Context) (RetryStatus, error) {
	var status RetryStatus
	records, err := m.store.ListRecords(ctx)
	if err != nil {
		return status, err
	}

	now := m.now()
	for _, rec := range records {
		switch rec.EmbeddingStatus {
		case StatusPending:
			status.Pending++
		case StatusRetry:
			status.Retrying++
		case StatusFailed:
			status.Failed++
		}
		if m.eligible(rec, now) {
			status.Eligible++
		}
	}
	return status, nil
}
