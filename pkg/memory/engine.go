package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/engramd/engram/config"
	"github.com/engramd/engram/pkg/provider"
)

// engineLogger is the minimal logger interface used by the engine, ledger
// and retry manager.
type engineLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopEngineLogger is a no-op logger.
type nopEngineLogger struct{}

func (nopEngineLogger) Debug(msg string, args ...any) {}
func (nopEngineLogger) Info(msg string, args ...any)  {}
func (nopEngineLogger) Warn(msg string, args ...any)  {}
func (nopEngineLogger) Error(msg string, args ...any) {}

// engineMetrics is the narrow metrics surface the engine records to.
// The metrics Manager satisfies it.
type engineMetrics interface {
	RecordSearch(mode string, duration time.Duration)
	RecordIndexed(status string)
	RecordRetryAttempt(outcome string)
	SetRetryQueueDepth(depth int)
	RecordCorrection(correctionType string)
	RecordCorrectionUndo()
}

type nopEngineMetrics struct{}

func (nopEngineMetrics) RecordSearch(string, time.Duration) {}
func (nopEngineMetrics) RecordIndexed(string)               {}
func (nopEngineMetrics) RecordRetryAttempt(string)          {}
func (nopEngineMetrics) SetRetryQueueDepth(int)             {}
func (nopEngineMetrics) RecordCorrection(string)            {}
func (nopEngineMetrics) RecordCorrectionUndo()              {}

// ProviderChain is the embedding surface the engine consumes. The concrete
// provider chain satisfies it.
type ProviderChain interface {
	Embed(ctx context.Context, text string) []float32
	IsDegraded() bool
	Status() provider.Status
}

// EngineConfig holds the engine tunables.
type EngineConfig struct {
	// DefaultLimit is the result count when the caller passes none.
	DefaultLimit int

	// FetchK is how many candidates each index contributes before fusion.
	// 0 derives it from the requested limit.
	FetchK int

	// RRFK is the reciprocal rank fusion constant.
	RRFK float64

	// Scorer selects the scoring strategy (composite or legacy).
	Scorer string

	// Weights are the composite factor weights.
	Weights CompositeWeights

	// Retry is the embedding retry policy.
	Retry RetryPolicy

	// SweepInterval and SweepBatch drive the scheduled retry sweep;
	// a zero interval disables it.
	SweepInterval time.Duration
	SweepBatch    int

	// SaveBatch is the opportunistic retry batch processed after every
	// save. 0 disables it.
	SaveBatch int

	// BM25K1 and BM25B are the lexical index parameters.
	BM25K1 float64
	BM25B  float64
}

// DefaultEngineConfig returns the standard engine tunables.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:  10,
		RRFK:          DefaultRRFK,
		Scorer:        ScorerComposite,
		Weights:       DefaultCompositeWeights(),
		Retry:         DefaultRetryPolicy(),
		SweepInterval: 5 * time.Minute,
		SweepBatch:    25,
		SaveBatch:     3,
		BM25K1:        1.2,
		BM25B:         0.75,
	}
}

// EngineConfigFromApp maps the application configuration onto engine
// tunables.
func EngineConfigFromApp(cfg *config.Config) EngineConfig {
	ec := DefaultEngineConfig()
	ec.DefaultLimit = cfg.Search.DefaultLimit
	ec.FetchK = cfg.Search.FetchK
	ec.RRFK = cfg.Search.RRFK
	ec.Scorer = cfg.Search.Scorer
	ec.Weights = CompositeWeights{
		Temporal:   cfg.Scoring.Temporal,
		Usage:      cfg.Scoring.Usage,
		Importance: cfg.Scoring.Importance,
		Pattern:    cfg.Scoring.Pattern,
		Citation:   cfg.Scoring.Citation,
	}
	ec.Retry = RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
	}
	ec.SweepInterval = cfg.Retry.SweepInterval
	ec.SweepBatch = cfg.Retry.SweepBatch
	ec.SaveBatch = cfg.Retry.SaveBatch
	return ec
}

// SearchResult is one ranked search hit with its explainability payload.
type SearchResult struct {
	ID     int64         `json:"id"`
	Score  float64       `json:"score"`
	Record *MemoryRecord `json:"record"`

	// Candidate carries the fusion explain fields.
	Candidate Candidate `json:"candidate"`

	// Factors is the per-factor score breakdown.
	Factors FactorScores `json:"factors"`
}

// IndexInput is the payload of an Index call.
type IndexInput struct {
	Title    string
	Kind     string
	AnchorID string
	Content  string
	Path     string
	Tier     Tier
	// Stability <= 0 uses the default initial stability of 1.0.
	Stability float64
}

// SearchFilters narrows search results by record attributes. The zero
// value matches everything. Deprecated records are excluded regardless of
// any filter.
type SearchFilters struct {
	Tiers []Tier
	Kinds []string
}

func (f SearchFilters) match(rec *MemoryRecord) bool {
	if len(f.Tiers) > 0 && !containsTier(f.Tiers, rec.Tier) {
		return false
	}
	if len(f.Kinds) > 0 && !containsString(f.Kinds, rec.Kind) {
		return false
	}
	return true
}

func containsTier(tiers []Tier, t Tier) bool {
	for _, candidate := range tiers {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// MemoryStats summarizes the engine's stored state.
type MemoryStats struct {
	TotalRecords int                     `json:"total_records"`
	ByStatus     map[EmbeddingStatus]int `json:"by_status"`
	ByTier       map[Tier]int            `json:"by_tier"`
	LexicalDocs  int                     `json:"lexical_docs"`
	VectorDocs   int                     `json:"vector_docs"`
}

// Engine is the composed retrieval core: storage, both indexes, the
// provider chain, fusion, scoring, the correction ledger and the retry
// manager behind one facade.
type Engine struct {
	mu sync.Mutex

	cfg     EngineConfig
	store   Store
	chain   ProviderChain
	lexical *LexicalIndex
	vector  *VectorIndex
	scorer  Scorer
	ledger  *Ledger
	retry   *RetryManager

	log     engineLogger
	metrics engineMetrics
	tracer  trace.Tracer

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger installs the engine logger.
func WithEngineLogger(l engineLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithEngineMetrics installs the metrics recorder.
func WithEngineMetrics(m engineMetrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine wires the retrieval core over a store and provider chain.
func NewEngine(cfg EngineConfig, store Store, chain ProviderChain, opts ...EngineOption) (*Engine, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.BM25K1 <= 0 {
		cfg.BM25K1 = 1.2
	}
	if cfg.BM25B <= 0 {
		cfg.BM25B = 0.75
	}

	vector, err := NewVectorIndex()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		store:   store,
		chain:   chain,
		lexical: NewLexicalIndex(cfg.BM25K1, cfg.BM25B),
		vector:  vector,
		scorer:  NewScorer(cfg.Scorer, cfg.Weights),
		log:     nopEngineLogger{},
		metrics: nopEngineMetrics{},
		tracer:  otel.Tracer("engram/memory"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ledger = NewLedger(store, e.log,
		WithCorrectionHook(func(t CorrectionType) { e.metrics.RecordCorrection(string(t)) }),
		WithUndoHook(e.metrics.RecordCorrectionUndo),
	)
	e.retry = NewRetryManager(store, chain, cfg.Retry, e.log,
		WithEmbeddedCallback(func(ctx context.Context, id int64, content string, embedding []float32) {
			e.lexical.Index(id, content)
			if err := e.vector.Add(ctx, id, embedding); err != nil {
				e.log.Warn("vector index sync failed", "id", id, "error", err)
			}
		}),
		WithAttemptHook(e.metrics.RecordRetryAttempt),
	)

	return e, nil
}

// Start rebuilds both indexes from the store and starts the scheduled
// retry sweep. Starting a started engine returns ErrAlreadyStarted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	records, err := e.store.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("memory: rebuild indexes: %w", err)
	}

	if err := e.vector.Reset(); err != nil {
		return err
	}
	for _, rec := range records {
		content := rec.Content
		if content == "" && rec.Path != "" {
			loaded, err := e.retry.loader(rec)
			if err != nil {
				e.log.Warn("rebuild could not load record content", "id", rec.ID, "error", err)
			} else {
				content = loaded
			}
		}
		e.lexical.Index(rec.ID, content)
		if rec.EmbeddingStatus == StatusSuccess && len(rec.Embedding) > 0 {
			if err := e.vector.Add(ctx, rec.ID, rec.Embedding); err != nil {
				e.log.Warn("vector rebuild skipped record", "id", rec.ID, "error", err)
			}
		}
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.sweepLoop(sweepCtx)

	e.started = true
	e.log.Info("memory engine started",
		"records", len(records),
		"lexical_docs", e.lexical.Len(),
		"vector_docs", e.vector.Len(),
		"scorer", e.scorer.Name(),
	)
	return nil
}

// Stop drains the retry sweep. Stopping a stopped engine is a no-op; the
// engine may be started again afterwards.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.cancel()
	<-e.done
	e.started = false
	e.log.Info("memory engine stopped")
	return nil
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer close(e.done)

	if e.cfg.SweepInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report, err := e.retry.Process(ctx, e.cfg.SweepBatch)
			if err != nil {
				e.log.Warn("retry sweep failed", "error", err)
				continue
			}
			if report.Attempted > 0 {
				e.log.Debug("retry sweep finished",
					"attempted", report.Attempted,
					"embedded", report.Embedded,
					"failed", report.Failed,
				)
			}
			e.publishQueueDepth(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) publishQueueDepth(ctx context.Context) {
	status, err := e.retry.Status(ctx)
	if err != nil {
		return
	}
	e.metrics.SetRetryQueueDepth(status.Pending + status.Retrying)
}

// Search runs the composed query pipeline: embed the query (possibly
// degraded to nil), look up both indexes in parallel, fuse by reciprocal
// rank, then re-rank with the configured scorer. Results are narrowed by
// the filters; deprecated records never appear regardless. Search never
// fails on provider trouble; at worst it returns lexical-only matches.
func (e *Engine) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]SearchResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	ctx, span := e.tracer.Start(ctx, "memory.Search",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	start := time.Now()

	fetchK := e.cfg.FetchK
	if fetchK <= 0 {
		fetchK = limit * 3
		if fetchK < 30 {
			fetchK = 30
		}
	}

	embedding := e.chain.Embed(ctx, query)

	var (
		wg         sync.WaitGroup
		vectorIDs  []int64
		lexicalIDs []int64
		vectorErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		lexicalIDs, _ = e.lexical.Search(query, fetchK)
	}()

	if embedding != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorIDs, _, vectorErr = e.vector.Search(ctx, embedding, fetchK)
		}()
	}
	wg.Wait()

	if vectorErr != nil {
		// Degrade to lexical-only rather than failing the search.
		e.log.Warn("vector lookup failed, using lexical only", "error", vectorErr)
		vectorIDs = nil
	}

	fused := FuseRRF(vectorIDs, lexicalIDs, e.cfg.RRFK)

	now := time.Now()
	results := make([]SearchResult, 0, len(fused))
	for _, cand := range fused {
		rec, err := e.store.GetRecord(ctx, cand.ID)
		if err != nil {
			continue
		}
		if rec.Tier == TierDeprecated {
			continue
		}
		if !filters.match(rec) {
			continue
		}
		score, factors := e.scorer.Score(rec, cand, query, now)
		results = append(results, SearchResult{
			ID:        cand.ID,
			Score:     score,
			Record:    rec,
			Candidate: cand,
			Factors:   factors,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := a.Record.Tier.Traits().Rank, b.Record.Tier.Traits().Rank
		if ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	mode := "hybrid"
	if embedding == nil {
		mode = "keyword"
	}
	span.SetAttributes(
		attribute.String("mode", mode),
		attribute.Int("results", len(results)),
	)
	e.metrics.RecordSearch(mode, time.Since(start))
	return results, nil
}

// Index stores a new memory: embed-or-enqueue. When the provider chain is
// degraded the record is saved as pending and picked up by the retry
// manager later. After every save a small opportunistic retry batch runs.
func (e *Engine) Index(ctx context.Context, input IndexInput) (*MemoryRecord, error) {
	if input.Content == "" && input.Path == "" {
		return nil, ErrEmptyContent
	}

	ctx, span := e.tracer.Start(ctx, "memory.Index")
	defer span.End()

	id, err := e.store.NextID()
	if err != nil {
		return nil, err
	}

	tier := input.Tier
	if tier == "" {
		tier = TierNormal
	}
	stability := input.Stability
	if stability <= 0 {
		stability = 1.0
	}

	now := time.Now()
	rec := &MemoryRecord{
		ID:              id,
		Title:           input.Title,
		Kind:            input.Kind,
		AnchorID:        input.AnchorID,
		Content:         input.Content,
		Path:            input.Path,
		Tier:            tier,
		Stability:       clampStability(stability),
		CreatedAt:       now,
		EmbeddingStatus: StatusPending,
	}

	// Path-only records are embedded and indexed from their file content.
	content, err := e.retry.loader(rec)
	if err != nil {
		// Leave the record pending; the retry sweep re-attempts the load.
		e.log.Warn("content load failed, queued for retry", "id", rec.ID, "error", err)
		content = ""
	}
	if content != "" {
		if embedding := e.chain.Embed(ctx, content); embedding != nil {
			rec.Embedding = embedding
			rec.EmbeddingStatus = StatusSuccess
		}
	}

	if err := e.store.PutRecord(ctx, rec); err != nil {
		return nil, err
	}

	e.lexical.Index(rec.ID, content)
	if rec.EmbeddingStatus == StatusSuccess {
		if err := e.vector.Add(ctx, rec.ID, rec.Embedding); err != nil {
			e.log.Warn("vector index failed", "id", rec.ID, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int64("id", rec.ID),
		attribute.String("status", string(rec.EmbeddingStatus)),
	)
	e.metrics.RecordIndexed(string(rec.EmbeddingStatus))
	e.log.Debug("indexed memory", "id", rec.ID, "status", rec.EmbeddingStatus)

	if e.cfg.SaveBatch > 0 {
		if _, err := e.retry.Process(ctx, e.cfg.SaveBatch); err != nil {
			e.log.Warn("opportunistic retry batch failed", "error", err)
		}
		e.publishQueueDepth(ctx)
	}

	return rec, nil
}

// Delete removes a record from storage and both indexes.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	e.lexical.Remove(id)
	if err := e.vector.Remove(ctx, id); err != nil {
		e.log.Warn("vector removal failed", "id", id, "error", err)
	}
	return e.store.DeleteRecord(ctx, id)
}

// MarkAccessed increments a record's access counter and refreshes its
// last-accessed timestamp.
func (e *Engine) MarkAccessed(ctx context.Context, id int64) error {
	rec, err := e.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.AccessCount++
	rec.LastAccessed = time.Now()
	return e.store.PutRecord(ctx, rec)
}

// RecordCorrection records that correctionID corrects originalID.
func (e *Engine) RecordCorrection(ctx context.Context, originalID, correctionID int64, ctype CorrectionType, reason string) (*Correction, error) {
	return e.ledger.Record(ctx, originalID, correctionID, ctype, reason)
}

// UndoCorrection reverses a correction; false means the id was unknown or
// already undone.
func (e *Engine) UndoCorrection(ctx context.Context, correctionID string) (bool, error) {
	return e.ledger.Undo(ctx, correctionID)
}

// Deprecate marks a memory outdated with no replacement.
func (e *Engine) Deprecate(ctx context.Context, id int64, reason string) (*Correction, error) {
	return e.ledger.Deprecate(ctx, id, reason)
}

// Supersede records that newID replaces oldID.
func (e *Engine) Supersede(ctx context.Context, oldID, newID int64, reason string) (*Correction, error) {
	return e.ledger.Supersede(ctx, oldID, newID, reason)
}

// Refine records that refinedID improves originalID.
func (e *Engine) Refine(ctx context.Context, originalID, refinedID int64, reason string) (*Correction, error) {
	return e.ledger.Refine(ctx, originalID, refinedID, reason)
}

// Merge consolidates the sources into the target, reporting per-source
// results.
func (e *Engine) Merge(ctx context.Context, sources []int64, target int64, reason string) []MergeResult {
	return e.ledger.Merge(ctx, sources, target, reason)
}

// CorrectionsFor lists corrections touching a memory, newest first.
func (e *Engine) CorrectionsFor(ctx context.Context, id int64, includeUndone bool) ([]*Correction, error) {
	return e.ledger.For(ctx, id, includeUndone)
}

// CorrectionChain walks the correction graph from id.
func (e *Engine) CorrectionChain(ctx context.Context, id int64, maxDepth int) ([]*Correction, error) {
	return e.ledger.Chain(ctx, id, maxDepth)
}

// CorrectionStats summarizes the ledger.
func (e *Engine) CorrectionStats(ctx context.Context) (*LedgerStats, error) {
	return e.ledger.Stats(ctx)
}

// ProcessRetryQueue runs up to limit retry attempts immediately.
func (e *Engine) ProcessRetryQueue(ctx context.Context, limit int) (ProcessReport, error) {
	report, err := e.retry.Process(ctx, limit)
	e.publishQueueDepth(ctx)
	return report, err
}

// RetryStatus reports the retry queue state.
func (e *Engine) RetryStatus(ctx context.Context) (RetryStatus, error) {
	return e.retry.Status(ctx)
}

// ResetForRetry clears a failed record back into the retry queue.
func (e *Engine) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	return e.retry.ResetForRetry(ctx, id)
}

// MarkFailed marks a record permanently failed.
func (e *Engine) MarkFailed(ctx context.Context, id int64, reason string) error {
	return e.retry.MarkFailed(ctx, id, reason)
}

// ProviderStatus reports the provider chain diagnostics snapshot.
func (e *Engine) ProviderStatus() provider.Status {
	return e.chain.Status()
}

// GetStats returns engine-level statistics.
func (e *Engine) GetStats(ctx context.Context) (*MemoryStats, error) {
	records, err := e.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	stats := &MemoryStats{
		TotalRecords: len(records),
		ByStatus:     make(map[EmbeddingStatus]int),
		ByTier:       make(map[Tier]int),
		LexicalDocs:  e.lexical.Len(),
		VectorDocs:   e.vector.Len(),
	}
	for _, rec := range records {
		stats.ByStatus[rec.EmbeddingStatus]++
		stats.ByTier[rec.Tier]++
	}
	return stats, nil
}
