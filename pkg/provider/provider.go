// Package provider implements the embedding provider fallback chain.
//
// A Chain wraps up to two real providers (a hosted API and an in-process
// ONNX model) plus an implicit keyword-only tier that always succeeds by
// producing no vector. Provider failures are never surfaced to callers of
// Embed; they are absorbed into tier transitions so that search always
// completes, degraded or not.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Tier identifies a level of the fallback chain.
type Tier string

const (
	// TierPrimary is the hosted embedding API.
	TierPrimary Tier = "primary"
	// TierSecondary is the local in-process model.
	TierSecondary Tier = "secondary"
	// TierTertiary is keyword-only mode: embeds always return nil.
	TierTertiary Tier = "tertiary"
)

// FailureClass categorizes a provider failure for the fallback log.
type FailureClass string

const (
	FailureAPIKeyInvalid    FailureClass = "api_key_invalid"
	FailureAPIUnavailable   FailureClass = "api_unavailable"
	FailureAPITimeout       FailureClass = "api_timeout"
	FailureAPIRateLimited   FailureClass = "api_rate_limited"
	FailureLocalUnavailable FailureClass = "local_unavailable"
	FailureNetwork          FailureClass = "network_error"
	FailureAPIError         FailureClass = "api_error"
)

// ErrLocalUnavailable indicates the local model tier cannot be constructed
// or loaded on this host.
var ErrLocalUnavailable = errors.New("provider: local model unavailable")

// Error is a classified provider failure.
type Error struct {
	Class    FailureClass
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Provider converts text to an embedding vector.
// Implementations: Remote (hosted API), Local (ONNX), Mock (testing).
type Provider interface {
	// Name identifies the provider in logs and fallback events.
	Name() string

	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchProvider is implemented by providers with a native batch endpoint.
// Providers without it are driven through sequential Embed calls.
type BatchProvider interface {
	Provider
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pinger is implemented by providers that can be probed cheaply at
// initialization time. Providers without it activate optimistically and
// fail lazily on the first Embed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Classify maps an arbitrary error onto the failure taxonomy.
// Typed *Error values keep their class; everything else is inspected.
func Classify(err error) FailureClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, ErrLocalUnavailable) {
		return FailureLocalUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureAPITimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return FailureAPITimeout
		}
		return FailureNetwork
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return FailureNetwork
	}
	return FailureAPIError
}

// LocalConfig configures the in-process ONNX embedder. Builds without the
// onnx tag compile a stub whose constructor reports ErrLocalUnavailable.
type LocalConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath is the path to the ONNX Runtime shared library.
	LibraryPath string

	// Dimensions is the embedding vector size (384 for all-MiniLM-L6-v2).
	Dimensions int
}

// FallbackEvent records one tier transition for diagnostics.
type FallbackEvent struct {
	Time     time.Time    `json:"time"`
	Tier     Tier         `json:"tier"` // the tier that failed
	Provider string       `json:"provider"`
	Reason   FailureClass `json:"reason"`
	Detail   string       `json:"detail,omitempty"`
}

// Status is a snapshot of the chain state for external diagnostics.
// It carries no control-flow meaning.
type Status struct {
	Initialized   bool           `json:"initialized"`
	Tier          Tier           `json:"tier"`
	Provider      string         `json:"provider,omitempty"`
	FallbackCount int            `json:"fallback_count"`
	LastFallback  *FallbackEvent `json:"last_fallback,omitempty"`
}
