package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RemoteConfig configures the hosted embedding API client.
type RemoteConfig struct {
	// BaseURL is the API root, e.g. https://api.voyageai.com.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model names the embedding model.
	Model string

	// Dimensions is the expected vector size. 0 disables the check.
	Dimensions int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RequestsPerSecond rate-limits outbound calls. 0 disables limiting.
	RequestsPerSecond float64
}

// Remote is the primary-tier provider: a Voyage-style embeddings REST API.
type Remote struct {
	cfg     RemoteConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewRemote creates a remote embedding provider.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	r := &Remote{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return r
}

// Name identifies the provider in logs and fallback events.
func (r *Remote) Name() string {
	return "remote:" + r.cfg.Model
}

// Embed converts one text to an embedding vector.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// BatchEmbed converts several texts in one API call.
func (r *Remote) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, r.wrap(err)
		}
	}

	body, err := json.Marshal(embedRequest{Model: r.cfg.Model, Input: texts})
	if err != nil {
		return nil, r.wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.cfg.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, r.wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Class:    classifyStatus(resp.StatusCode),
			Provider: r.Name(),
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, r.wrap(fmt.Errorf("decoding response: %w", err))
	}
	if len(parsed.Data) != len(texts) {
		return nil, r.wrap(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data)))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, r.wrap(fmt.Errorf("embedding index %d out of range", d.Index))
		}
		if r.cfg.Dimensions > 0 && len(d.Embedding) != r.cfg.Dimensions {
			return nil, r.wrap(fmt.Errorf("dimension mismatch: expected %d, got %d",
				r.cfg.Dimensions, len(d.Embedding)))
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Ping probes the API with a minimal embedding request.
func (r *Remote) Ping(ctx context.Context) error {
	_, err := r.Embed(ctx, "ping")
	return err
}

// wrap attaches provider identity and a classified failure class.
func (r *Remote) wrap(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Class: Classify(err), Provider: r.Name(), Err: err}
}

func classifyStatus(code int) FailureClass {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return FailureAPIKeyInvalid
	case code == http.StatusTooManyRequests:
		return FailureAPIRateLimited
	case code >= 500:
		return FailureAPIUnavailable
	case code == http.StatusRequestTimeout:
		return FailureAPITimeout
	default:
		return FailureAPIError
	}
}
