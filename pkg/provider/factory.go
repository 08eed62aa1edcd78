package provider

import (
	"github.com/engramd/engram/config"
)

// NewChainFromConfig builds the fallback chain from application config.
// The remote tier is constructed when a base URL is configured; the local
// tier is constructed when a model path is configured and the build carries
// ONNX support. A tier that cannot be constructed is passed to the chain as
// nil and surfaces as a fallback event on first use.
func NewChainFromConfig(cfg config.ProviderConfig, opts ...ChainOption) *Chain {
	var primary Provider
	if cfg.Remote.BaseURL != "" {
		primary = NewRemote(RemoteConfig{
			BaseURL:           cfg.Remote.BaseURL,
			APIKey:            cfg.Remote.APIKey,
			Model:             cfg.Remote.Model,
			Dimensions:        cfg.Remote.Dimensions,
			Timeout:           cfg.Remote.Timeout,
			RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		})
	}

	var secondary Provider
	if cfg.SecondaryEnabled && cfg.Local.ModelPath != "" {
		local, err := NewLocal(LocalConfig{
			ModelPath:     cfg.Local.ModelPath,
			TokenizerPath: cfg.Local.TokenizerPath,
			LibraryPath:   cfg.Local.LibraryPath,
			Dimensions:    cfg.Local.Dimensions,
		})
		if err == nil {
			secondary = local
		}
	}

	return NewChain(ChainConfig{
		SecondaryEnabled: cfg.SecondaryEnabled,
		FallbackTimeout:  cfg.FallbackTimeout,
		LogSize:          cfg.FallbackLogSize,
	}, primary, secondary, opts...)
}
