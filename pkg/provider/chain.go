package provider

import (
	"context"
	"io"
	"sync"
	"time"
)

// chainLogger is the minimal logger interface used by Chain.
type chainLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopChainLogger struct{}

func (nopChainLogger) Debug(msg string, args ...any) {}
func (nopChainLogger) Info(msg string, args ...any)  {}
func (nopChainLogger) Warn(msg string, args ...any)  {}
func (nopChainLogger) Error(msg string, args ...any) {}

// ChainConfig configures the fallback chain.
type ChainConfig struct {
	// SecondaryEnabled governs whether the local tier is attempted at all.
	SecondaryEnabled bool

	// FallbackTimeout bounds each tier transition: every probe of a lower
	// tier gets its own budget, measured from the failure that triggered it.
	FallbackTimeout time.Duration

	// LogSize caps the fallback event log. Oldest events are dropped.
	LogSize int
}

// DefaultChainConfig returns the chain defaults.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		SecondaryEnabled: true,
		FallbackTimeout:  100 * time.Millisecond,
		LogSize:          32,
	}
}

// ChainOption is a functional option for Chain.
type ChainOption func(*Chain)

// WithLogger sets the chain logger.
func WithLogger(l chainLogger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFallbackHook registers a callback invoked on every fallback event,
// after it has been appended to the log.
func WithFallbackHook(fn func(FallbackEvent)) ChainOption {
	return func(c *Chain) {
		c.onFallback = fn
	}
}

// chainMetrics is the narrow metrics surface the chain publishes to.
// *metrics.Manager satisfies it.
type chainMetrics interface {
	RecordFallback(tier, class string)
	SetActiveTier(tier int)
	RecordEmbedDuration(duration time.Duration)
}

type nopChainMetrics struct{}

func (nopChainMetrics) RecordFallback(tier, class string)          {}
func (nopChainMetrics) SetActiveTier(tier int)                     {}
func (nopChainMetrics) RecordEmbedDuration(duration time.Duration) {}

// WithMetrics publishes tier state and embed latency to the given sink.
func WithMetrics(m chainMetrics) ChainOption {
	return func(c *Chain) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Chain is the tiered embedding provider. Tier state only ever advances
// (primary -> secondary -> tertiary) within one Initialize lifetime;
// recovery to a higher tier requires Close followed by Initialize.
//
// Chain is safe for concurrent use.
type Chain struct {
	mu         sync.Mutex
	cfg        ChainConfig
	primary    Provider
	secondary  Provider
	logger     chainLogger
	metrics    chainMetrics
	onFallback func(FallbackEvent)

	initialized bool
	tier        Tier
	active      Provider
	events      []FallbackEvent
}

// NewChain creates a fallback chain over the given providers.
// Either provider may be nil, meaning that tier is unavailable.
func NewChain(cfg ChainConfig, primary, secondary Provider, opts ...ChainOption) *Chain {
	if cfg.LogSize <= 0 {
		cfg.LogSize = DefaultChainConfig().LogSize
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = DefaultChainConfig().FallbackTimeout
	}
	c := &Chain{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		logger:    nopChainLogger{},
		metrics:   nopChainMetrics{},
		tier:      TierPrimary,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize activates the highest healthy tier. It never returns an error:
// the worst outcome is keyword-only mode. Re-running Initialize on an
// already-initialized chain is a safe no-op.
func (c *Chain) Initialize(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializeLocked(ctx)
}

func (c *Chain) initializeLocked(ctx context.Context) {
	if c.initialized {
		return
	}
	c.initialized = true
	c.events = c.events[:0]

	if c.tryActivateLocked(ctx, TierPrimary, c.primary) {
		return
	}
	if !c.advanceLocked(ctx) {
		c.logger.Warn("embedding chain degraded to keyword-only mode",
			"fallbacks", len(c.events),
		)
	}
}

// tryActivateLocked probes a provider for a tier. A nil provider counts as
// an unavailability failure for that tier.
func (c *Chain) tryActivateLocked(ctx context.Context, tier Tier, p Provider) bool {
	if p == nil {
		reason := FailureAPIUnavailable
		if tier == TierSecondary {
			reason = FailureLocalUnavailable
		}
		c.recordFallbackLocked(tier, "none", reason, "provider not configured")
		return false
	}

	if pinger, ok := p.(Pinger); ok {
		probeCtx, cancel := context.WithTimeout(ctx, c.cfg.FallbackTimeout)
		err := pinger.Ping(probeCtx)
		cancel()
		if err != nil {
			c.recordFallbackLocked(tier, p.Name(), Classify(err), err.Error())
			return false
		}
	}

	c.tier = tier
	c.active = p
	c.metrics.SetActiveTier(tierOrdinal(tier))
	c.logger.Info("embedding provider active", "tier", tier, "provider", p.Name())
	return true
}

func tierOrdinal(t Tier) int {
	switch t {
	case TierPrimary:
		return 0
	case TierSecondary:
		return 1
	default:
		return 2
	}
}

// Embed returns an embedding for the text, or nil when no provider tier can
// produce one. A nil result is not an error: it is the contract for "no
// semantic match available". Embed never returns an error to the caller.
func (c *Chain) Embed(ctx context.Context, text string) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializeLocked(ctx)

	if c.tier == TierTertiary {
		return nil
	}

	start := time.Now()
	vec, err := c.active.Embed(ctx, text)
	if err == nil {
		c.metrics.RecordEmbedDuration(time.Since(start))
		return vec
	}
	c.recordFallbackLocked(c.tier, c.active.Name(), Classify(err), err.Error())
	if !c.advanceLocked(ctx) {
		return nil
	}

	// One retry against the newly activated tier.
	start = time.Now()
	vec, err = c.active.Embed(ctx, text)
	if err == nil {
		c.metrics.RecordEmbedDuration(time.Since(start))
		return vec
	}
	c.recordFallbackLocked(c.tier, c.active.Name(), Classify(err), err.Error())
	c.degradeLocked()
	return nil
}

// BatchEmbed embeds several texts under the same no-error contract as Embed.
// The result always has one entry per input; degraded entries are nil.
// Providers without native batch support are driven sequentially.
func (c *Chain) BatchEmbed(ctx context.Context, texts []string) [][]float32 {
	results := make([][]float32, len(texts))

	c.mu.Lock()
	c.initializeLocked(ctx)
	active := c.active
	tier := c.tier
	c.mu.Unlock()

	if tier == TierTertiary {
		return results
	}

	if bp, ok := active.(BatchProvider); ok {
		vecs, err := bp.BatchEmbed(ctx, texts)
		if err == nil && len(vecs) == len(texts) {
			copy(results, vecs)
			return results
		}
		if err != nil {
			c.mu.Lock()
			// Another goroutine may have advanced the chain already.
			if c.active == active {
				c.recordFallbackLocked(c.tier, active.Name(), Classify(err), err.Error())
				c.advanceLocked(ctx)
			}
			c.mu.Unlock()
		}
	}

	// Sequential fallback; each call handles its own tier transitions.
	for i, text := range texts {
		results[i] = c.Embed(ctx, text)
	}
	return results
}

// advanceLocked moves to the next lower tier and activates it.
// Each transition gets a fresh FallbackTimeout budget, regardless of how
// long the chain has been running. Returns false once the chain lands on
// tertiary.
func (c *Chain) advanceLocked(ctx context.Context) bool {
	if c.tier == TierPrimary && c.cfg.SecondaryEnabled {
		probeCtx, cancel := context.WithTimeout(ctx, c.cfg.FallbackTimeout)
		ok := c.tryActivateLocked(probeCtx, TierSecondary, c.secondary)
		cancel()
		if ok {
			return true
		}
	}
	c.degradeLocked()
	return false
}

func (c *Chain) degradeLocked() {
	c.tier = TierTertiary
	c.active = nil
	c.metrics.SetActiveTier(tierOrdinal(TierTertiary))
}

// IsDegraded reports whether only keyword matching is possible.
func (c *Chain) IsDegraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized && c.tier == TierTertiary
}

// Status returns a diagnostics snapshot.
func (c *Chain) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Initialized:   c.initialized,
		Tier:          c.tier,
		FallbackCount: len(c.events),
	}
	if c.active != nil {
		s.Provider = c.active.Name()
	}
	if n := len(c.events); n > 0 {
		last := c.events[n-1]
		s.LastFallback = &last
	}
	return s
}

// FallbackLog returns a copy of the bounded fallback event log.
func (c *Chain) FallbackLog() []FallbackEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FallbackEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Close tears the chain down, closing providers that hold resources.
// A subsequent Initialize starts a fresh lifetime from the primary tier.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, p := range []Provider{c.primary, c.secondary} {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	c.initialized = false
	c.tier = TierPrimary
	c.active = nil
	return firstErr
}

func (c *Chain) recordFallbackLocked(tier Tier, providerName string, reason FailureClass, detail string) {
	ev := FallbackEvent{
		Time:     time.Now(),
		Tier:     tier,
		Provider: providerName,
		Reason:   reason,
		Detail:   detail,
	}
	c.events = append(c.events, ev)
	if len(c.events) > c.cfg.LogSize {
		c.events = c.events[len(c.events)-c.cfg.LogSize:]
	}
	c.logger.Warn("embedding provider failed",
		"tier", tier,
		"provider", providerName,
		"reason", reason,
	)
	c.metrics.RecordFallback(string(tier), string(reason))
	if c.onFallback != nil {
		c.onFallback(ev)
	}
}
