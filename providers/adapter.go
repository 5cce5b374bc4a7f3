package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagestudio/metrics"
	"imagestudio/types"
)

// Result is a normalised generation result.
type Result struct {
	ImageURL string           `json:"imageUrl"`
	Provider types.ProviderID `json:"provider"`
	Model    string           `json:"model"`
	Fallback bool             `json:"fallback,omitempty"`
}

// ProviderInfo describes a provider for catalog listings.
type ProviderInfo struct {
	ID     types.ProviderID    `json:"id"`
	Name   string              `json:"name"`
	Models []ModelCapabilities `json:"models"`
}

// Adapter validates a request and dispatches it to the provider named in the settings.
type Adapter struct {
	providers map[types.ProviderID]ImageProvider
	order     []types.ProviderID
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewAdapter registers the given providers by ID.
func NewAdapter(logger *zap.Logger, collector *metrics.Collector, providers ...ImageProvider) *Adapter {
	a := &Adapter{
		providers: make(map[types.ProviderID]ImageProvider, len(providers)),
		metrics:   collector,
		logger:    logger.With(zap.String("component", "adapter")),
	}
	for _, p := range providers {
		if _, dup := a.providers[p.ID()]; !dup {
			a.order = append(a.order, p.ID())
		}
		a.providers[p.ID()] = p
	}
	return a
}

// Select returns the provider for id.
func (a *Adapter) Select(id types.ProviderID) (ImageProvider, error) {
	p, ok := a.providers[id]
	if !ok {
		return nil, types.UnsupportedProvider(string(id))
	}
	return p, nil
}

// Providers lists the registered providers in registration order.
func (a *Adapter) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(a.order))
	for _, id := range a.order {
		p := a.providers[id]
		out = append(out, ProviderInfo{ID: id, Name: p.Name(), Models: p.Models()})
	}
	return out
}

// Generate checks provider, credential and input, in that order, before any network call,
// then delegates to the provider. Untyped provider failures become ProviderError.
func (a *Adapter) Generate(ctx context.Context, styleID, input string, s types.Settings) (*Result, error) {
	p, err := a.Select(s.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, types.MissingCredential(string(s.Provider))
	}
	if strings.TrimSpace(input) == "" {
		return nil, types.MissingInput("an uploaded image or a text prompt is required")
	}

	model := s.Model
	if model == "" {
		model = types.DefaultModel(s.Provider)
	}

	start := time.Now()
	out, err := p.Generate(ctx, &Request{StyleID: styleID, Input: input, Model: model, APIKey: s.APIKey})
	elapsed := time.Since(start)

	if err == nil && (out == nil || out.ImageURL == "") {
		err = types.ProviderFailure(string(s.Provider), "provider returned no image", nil)
	}
	if err != nil {
		err = a.classify(s.Provider, err)
		a.metrics.RecordGeneration(string(s.Provider), model, string(types.CodeOf(err)), elapsed)
		a.logger.Warn("generation failed",
			zap.String("provider", string(s.Provider)),
			zap.String("model", model),
			zap.String("style", styleID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	a.metrics.RecordGeneration(string(s.Provider), model, "success", elapsed)
	a.logger.Info("generation succeeded",
		zap.String("provider", string(s.Provider)),
		zap.String("model", model),
		zap.String("style", styleID),
		zap.Bool("fallback", out.Fallback),
		zap.Duration("elapsed", elapsed))

	return &Result{ImageURL: out.ImageURL, Provider: s.Provider, Model: model, Fallback: out.Fallback}, nil
}

func (a *Adapter) classify(provider types.ProviderID, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.ProviderFailure(string(provider), "generation cancelled", err)
	}
	return types.ProviderFailure(string(provider), err.Error(), err)
}
