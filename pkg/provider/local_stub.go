//go:build !onnx

package provider

import (
	"context"
	"fmt"
)

// Local is unavailable without the onnx build tag; the fallback chain
// degrades past the secondary tier on hosts built without it.
type Local struct{}

// NewLocal reports the local tier as unavailable in non-onnx builds.
func NewLocal(cfg LocalConfig) (*Local, error) {
	return nil, fmt.Errorf("%w: built without onnx support", ErrLocalUnavailable)
}

// Name identifies the provider in logs and fallback events.
func (l *Local) Name() string {
	return "local:onnx"
}

// Embed always fails in non-onnx builds.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrLocalUnavailable
}
