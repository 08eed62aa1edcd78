package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/engramd/engram/config"
)

func testChainConfig() ChainConfig {
	return ChainConfig{
		SecondaryEnabled: true,
		FallbackTimeout:  100 * time.Millisecond,
		LogSize:          32,
	}
}

func TestChainHappyPath(t *testing.T) {
	primary := NewMock("remote:test", 8)
	chain := NewChain(testChainConfig(), primary, nil)

	vec := chain.Embed(context.Background(), "hello world")
	if vec == nil {
		t.Fatal("expected a vector from the primary tier")
	}
	if chain.IsDegraded() {
		t.Error("chain should not be degraded")
	}

	st := chain.Status()
	if st.Tier != TierPrimary {
		t.Errorf("expected tier primary, got %s", st.Tier)
	}
	if st.Provider != "remote:test" {
		t.Errorf("unexpected active provider %q", st.Provider)
	}
}

func TestChainFullDegradation(t *testing.T) {
	primary := NewMock("remote:test", 8).FailPing(&Error{
		Class:    FailureAPIKeyInvalid,
		Provider: "remote:test",
		Err:      errors.New("unexpected status 401"),
	})
	secondary := NewMock("local:onnx", 8).FailPing(fmt.Errorf("%w: local model not found", ErrLocalUnavailable))

	chain := NewChain(testChainConfig(), primary, secondary)
	chain.Initialize(context.Background())

	if !chain.IsDegraded() {
		t.Fatal("expected chain to be degraded")
	}
	if vec := chain.Embed(context.Background(), "x"); vec != nil {
		t.Errorf("degraded embed should return nil, got %v", vec)
	}

	log := chain.FallbackLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 fallback events, got %d", len(log))
	}
	if log[0].Tier != TierPrimary || log[0].Reason != FailureAPIKeyInvalid {
		t.Errorf("unexpected first event: %+v", log[0])
	}
	if log[1].Tier != TierSecondary || log[1].Reason != FailureLocalUnavailable {
		t.Errorf("unexpected second event: %+v", log[1])
	}
}

func TestChainRuntimeFallbackToSecondary(t *testing.T) {
	primary := NewMock("remote:test", 8).FailWith(&Error{
		Class:    FailureAPITimeout,
		Provider: "remote:test",
		Err:      errors.New("deadline exceeded"),
	})
	secondary := NewMock("local:onnx", 8)

	chain := NewChain(testChainConfig(), primary, secondary)

	vec := chain.Embed(context.Background(), "query text")
	if vec == nil {
		t.Fatal("expected the secondary tier to serve the retry")
	}
	if got := chain.Status().Tier; got != TierSecondary {
		t.Errorf("expected tier secondary, got %s", got)
	}
	if secondary.Calls() != 1 {
		t.Errorf("expected exactly one retry against secondary, got %d calls", secondary.Calls())
	}
}

func TestChainLatePrimaryFailureReachesSecondary(t *testing.T) {
	// The primary serves traffic for a while, then fails at runtime long
	// after the chain came up. The transition budget starts at the failure,
	// so the healthy secondary must take over.
	primary := NewMock("remote:test", 8).FailWith(nil, &Error{
		Class:    FailureAPIUnavailable,
		Provider: "remote:test",
		Err:      errors.New("unexpected status 503"),
	})
	secondary := NewMock("local:onnx", 8)

	cfg := testChainConfig() // 100ms budget
	chain := NewChain(cfg, primary, secondary)

	if vec := chain.Embed(context.Background(), "warm"); vec == nil {
		t.Fatal("expected the primary tier to serve the first call")
	}
	time.Sleep(cfg.FallbackTimeout + 50*time.Millisecond)

	vec := chain.Embed(context.Background(), "query text")
	if vec == nil {
		t.Fatal("expected the secondary tier to serve after a late primary failure")
	}
	if got := chain.Status().Tier; got != TierSecondary {
		t.Errorf("expected tier secondary, got %s", got)
	}
}

func TestChainTierMonotonicity(t *testing.T) {
	// Fail every call on both tiers; the chain must only ever move forward.
	primary := NewMock("remote:test", 8)
	secondary := NewMock("local:onnx", 8)
	for i := 0; i < 10; i++ {
		primary.FailWith(errors.New("boom"))
		secondary.FailWith(errors.New("boom"))
	}

	chain := NewChain(testChainConfig(), primary, secondary)

	seen := []Tier{chain.Status().Tier}
	for i := 0; i < 5; i++ {
		chain.Embed(context.Background(), "q")
		seen = append(seen, chain.Status().Tier)
	}

	order := map[Tier]int{TierPrimary: 0, TierSecondary: 1, TierTertiary: 2}
	for i := 1; i < len(seen); i++ {
		if order[seen[i]] < order[seen[i-1]] {
			t.Fatalf("tier moved backward: %v", seen)
		}
	}
	if seen[len(seen)-1] != TierTertiary {
		t.Errorf("expected terminal tier tertiary, got %s", seen[len(seen)-1])
	}
}

func TestChainEmbedNeverErrors(t *testing.T) {
	// Embed's contract is vector-or-nil; exercising all failure shapes must
	// never panic and never produce anything but those two outcomes.
	failures := []error{
		&Error{Class: FailureAPIKeyInvalid, Provider: "p", Err: errors.New("401")},
		&Error{Class: FailureAPIRateLimited, Provider: "p", Err: errors.New("429")},
		&Error{Class: FailureAPIUnavailable, Provider: "p", Err: errors.New("503")},
		context.DeadlineExceeded,
		errors.New("opaque failure"),
	}

	for _, failure := range failures {
		primary := NewMock("remote:test", 8).FailWith(failure, failure, failure)
		chain := NewChain(testChainConfig(), primary, nil)
		for i := 0; i < 3; i++ {
			_ = chain.Embed(context.Background(), "q") // must not panic
		}
	}
}

func TestChainSecondaryDisabled(t *testing.T) {
	cfg := testChainConfig()
	cfg.SecondaryEnabled = false

	primary := NewMock("remote:test", 8).FailPing(errors.New("down"))
	secondary := NewMock("local:onnx", 8)

	chain := NewChain(cfg, primary, secondary)
	chain.Initialize(context.Background())

	if !chain.IsDegraded() {
		t.Fatal("expected tertiary with secondary disabled")
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary must not be called when disabled")
	}
}

func TestChainInitializeIdempotent(t *testing.T) {
	primary := NewMock("remote:test", 8)
	chain := NewChain(testChainConfig(), primary, nil)

	chain.Initialize(context.Background())
	st1 := chain.Status()
	chain.Initialize(context.Background())
	st2 := chain.Status()

	if st1.Tier != st2.Tier || st1.FallbackCount != st2.FallbackCount {
		t.Errorf("re-initialize changed state: %+v vs %+v", st1, st2)
	}
}

func TestChainCloseThenInitializeRecovers(t *testing.T) {
	primary := NewMock("remote:test", 8).FailPing(errors.New("down"))
	chain := NewChain(testChainConfig(), primary, nil)
	chain.Initialize(context.Background())

	if !chain.IsDegraded() {
		t.Fatal("expected degraded chain")
	}

	primary.FailPing(nil) // provider has recovered
	if err := chain.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	chain.Initialize(context.Background())

	if chain.Status().Tier != TierPrimary {
		t.Errorf("expected recovery to primary after close+initialize, got %s", chain.Status().Tier)
	}
}

func TestChainBatchEmbed(t *testing.T) {
	primary := NewMock("remote:test", 8)
	chain := NewChain(testChainConfig(), primary, nil)

	vecs := chain.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if len(vecs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v == nil {
			t.Errorf("result %d is nil", i)
		}
	}
}

func TestChainBatchEmbedDegraded(t *testing.T) {
	chain := NewChain(testChainConfig(), nil, nil)

	vecs := chain.BatchEmbed(context.Background(), []string{"a", "b"})
	if len(vecs) != 2 {
		t.Fatalf("expected one entry per input, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v != nil {
			t.Errorf("degraded result %d should be nil", i)
		}
	}
}

func TestChainFallbackLogBounded(t *testing.T) {
	cfg := testChainConfig()
	cfg.LogSize = 4

	primary := NewMock("remote:test", 8)
	for i := 0; i < 20; i++ {
		primary.FailWith(errors.New("boom"))
	}
	chain := NewChain(cfg, primary, nil)
	for i := 0; i < 10; i++ {
		chain.Embed(context.Background(), "q")
	}

	if got := len(chain.FallbackLog()); got > 4 {
		t.Errorf("fallback log exceeded bound: %d", got)
	}
}

func TestChainFallbackHook(t *testing.T) {
	primary := NewMock("remote:test", 8).FailPing(errors.New("down"))

	var events []FallbackEvent
	chain := NewChain(testChainConfig(), primary, nil,
		WithFallbackHook(func(ev FallbackEvent) { events = append(events, ev) }))
	chain.Initialize(context.Background())

	if len(events) == 0 {
		t.Fatal("expected fallback hook to fire")
	}
}

type recordingMetrics struct {
	fallbacks []string
	tiers     []int
	durations int
}

func (r *recordingMetrics) RecordFallback(tier, class string) {
	r.fallbacks = append(r.fallbacks, tier+"/"+class)
}
func (r *recordingMetrics) SetActiveTier(tier int)              { r.tiers = append(r.tiers, tier) }
func (r *recordingMetrics) RecordEmbedDuration(d time.Duration) { r.durations++ }

func TestChainMetrics(t *testing.T) {
	primary := NewMock("remote:test", 8).FailPing(errors.New("down"))
	secondary := NewMock("local:onnx", 8)

	rec := &recordingMetrics{}
	chain := NewChain(testChainConfig(), primary, secondary, WithMetrics(rec))

	if vec := chain.Embed(context.Background(), "q"); vec == nil {
		t.Fatal("expected the secondary tier to serve")
	}

	if len(rec.fallbacks) != 1 || rec.fallbacks[0] != "primary/api_error" {
		t.Errorf("unexpected fallback records: %v", rec.fallbacks)
	}
	if len(rec.tiers) != 1 || rec.tiers[0] != 1 {
		t.Errorf("expected active tier gauge set to secondary, got %v", rec.tiers)
	}
	if rec.durations != 1 {
		t.Errorf("expected one embed duration sample, got %d", rec.durations)
	}
}

func TestNewChainFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{1, 0, 0}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := config.ProviderConfig{
		Remote: config.RemoteProviderConfig{
			BaseURL:    srv.URL,
			Model:      "test-embed",
			Dimensions: 3,
		},
		FallbackTimeout: 100 * time.Millisecond,
		FallbackLogSize: 8,
	}

	rec := &recordingMetrics{}
	chain := NewChainFromConfig(cfg, WithMetrics(rec))
	defer chain.Close()

	vec := chain.Embed(context.Background(), "hello")
	if len(vec) != 3 {
		t.Fatalf("expected a 3-dim vector, got %v", vec)
	}
	st := chain.Status()
	if st.Tier != TierPrimary {
		t.Errorf("expected tier primary, got %s", st.Tier)
	}
	if st.Provider != "remote:test-embed" {
		t.Errorf("unexpected provider %q", st.Provider)
	}
	if len(rec.tiers) == 0 || rec.tiers[0] != 0 {
		t.Errorf("expected active tier gauge set to primary, got %v", rec.tiers)
	}
}

func TestNewChainFromConfigUnconfigured(t *testing.T) {
	chain := NewChainFromConfig(config.ProviderConfig{})
	chain.Initialize(context.Background())

	if !chain.IsDegraded() {
		t.Error("expected keyword-only mode when no provider is configured")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"typed error keeps class", &Error{Class: FailureAPIRateLimited}, FailureAPIRateLimited},
		{"local unavailable", fmt.Errorf("wrap: %w", ErrLocalUnavailable), FailureLocalUnavailable},
		{"deadline", context.DeadlineExceeded, FailureAPITimeout},
		{"opaque", errors.New("weird"), FailureAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
