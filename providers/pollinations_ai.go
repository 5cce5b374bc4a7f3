package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagestudio/imagehost"
	"imagestudio/imageio"
	"imagestudio/metrics"
	"imagestudio/types"
)

const defaultPollinationsURL = "https://image.pollinations.ai"

// ImageHost publishes a reference image at a URL Pollinations can fetch.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, filename string) (*imagehost.Hosted, error)
	Delete(ctx context.Context, id string) error
}

// PollinationsConfig configures the Pollinations provider.
type PollinationsConfig struct {
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	Width         int           `yaml:"width" json:"width"`
	Height        int           `yaml:"height" json:"height"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval"`
}

// DefaultPollinationsConfig returns 1024x1024 output and four attempts three seconds apart.
func DefaultPollinationsConfig() PollinationsConfig {
	return PollinationsConfig{
		BaseURL:       defaultPollinationsURL,
		Width:         1024,
		Height:        1024,
		Timeout:       120 * time.Second,
		MaxAttempts:   4, // 1 initial attempt + 3 retries
		RetryInterval: 3 * time.Second,
	}
}

// PollinationsAIProvider implements the ImageProvider for Pollinations.ai.
type PollinationsAIProvider struct {
	cfg     PollinationsConfig
	client  *http.Client
	host    ImageHost
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewPollinationsAIProvider creates a new Pollinations.ai client. host may be nil,
// in which case image input always goes through the text-only path.
func NewPollinationsAIProvider(cfg PollinationsConfig, host ImageHost, collector *metrics.Collector, logger *zap.Logger) *PollinationsAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPollinationsURL
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = 1024
	}
	return &PollinationsAIProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		host:    host,
		metrics: collector,
		logger:  logger.With(zap.String("provider", string(types.ProviderPollinations))),
	}
}

func (p *PollinationsAIProvider) ID() types.ProviderID { return types.ProviderPollinations }

// Name returns the name of the provider.
func (p *PollinationsAIProvider) Name() string {
	return "Pollinations_ai"
}

// Models returns the list of models and their capabilities for Pollinations.ai.
func (p *PollinationsAIProvider) Models() []ModelCapabilities {
	return capabilities(types.ProviderPollinations, []string{"image", "seed"}, 1024)
}

// Generate tries an image-conditioned call first and falls back to text-only with the same prompt.
func (p *PollinationsAIProvider) Generate(ctx context.Context, req *Request) (*Output, error) {
	model := req.Model
	if model == "" {
		model = types.DefaultModel(types.ProviderPollinations)
	}

	switch {
	case imageio.IsDataURL(req.Input):
		ref, err := imageio.ParseDataURL(req.Input)
		if err != nil {
			return nil, err
		}
		prompt := ImagePrompt(req.StyleID)

		imageURL, err := p.conditioned(ctx, prompt, ref, model, req.APIKey)
		if err == nil {
			return &Output{ImageURL: imageURL}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("image-conditioned generation failed, falling back to text-only", zap.Error(err))
		p.metrics.RecordFallback(string(types.ProviderPollinations))

		imageURL, err = p.call(ctx, prompt, "", model, req.APIKey)
		if err != nil {
			return nil, err
		}
		return &Output{ImageURL: imageURL, Fallback: true}, nil

	case strings.HasPrefix(req.Input, "http://"), strings.HasPrefix(req.Input, "https://"):
		imageURL, err := p.call(ctx, ImagePrompt(req.StyleID), req.Input, model, req.APIKey)
		if err != nil {
			return nil, err
		}
		return &Output{ImageURL: imageURL}, nil

	default:
		imageURL, err := p.call(ctx, TextPrompt(req.StyleID, req.Input), "", model, req.APIKey)
		if err != nil {
			return nil, err
		}
		return &Output{ImageURL: imageURL}, nil
	}
}

// conditioned hosts the reference image and calls Pollinations with it.
func (p *PollinationsAIProvider) conditioned(ctx context.Context, prompt string, ref imageio.DataURL, model, apiKey string) (string, error) {
	if p.host == nil {
		return "", errors.New("no image host configured")
	}
	ext := strings.TrimPrefix(ref.MIMEType, "image/")
	hosted, err := p.host.Upload(ctx, ref.Data, "reference."+ext)
	if err != nil {
		return "", fmt.Errorf("failed to host reference image: %w", err)
	}
	imageURL, err := p.call(ctx, prompt, hosted.URL, model, apiKey)
	if err != nil {
		// The reference will never be fetched again.
		if delErr := p.host.Delete(context.WithoutCancel(ctx), hosted.ID); delErr != nil {
			p.logger.Debug("failed to delete hosted reference", zap.String("id", hosted.ID), zap.Error(delErr))
		}
		return "", err
	}
	return imageURL, nil
}

// BuildURL returns the Pollinations request URL. It never contains the API key.
func (p *PollinationsAIProvider) BuildURL(prompt, imageURL, model string) string {
	// The prompt is always part of the path, and needs to be path-escaped.
	fullURL := strings.TrimRight(p.cfg.BaseURL, "/") + "/prompt/" + url.PathEscape(prompt)

	params := url.Values{}
	if imageURL != "" {
		params.Add("image", imageURL)
	}
	params.Add("model", model)
	params.Add("width", fmt.Sprintf("%d", p.cfg.Width))
	params.Add("height", fmt.Sprintf("%d", p.cfg.Height))
	params.Add("private", "true")
	params.Add("safe", "true")
	params.Add("nologo", "true")
	params.Add("enhance", "true")

	return fullURL + "?" + params.Encode()
}

// call requests the image and returns its URL once Pollinations answered with image data.
func (p *PollinationsAIProvider) call(ctx context.Context, prompt, imageURL, model, apiKey string) (string, error) {
	fullURL := p.BuildURL(prompt, imageURL, model)
	p.logger.Info("calling provider",
		zap.String("model", model),
		zap.Bool("image_conditioned", imageURL != ""))

	var lastErr error
	for i := 0; i < p.cfg.MaxAttempts; i++ {
		retry, err := p.attempt(ctx, fullURL, apiKey)
		if err == nil {
			return fullURL, nil
		}
		lastErr = err
		p.logger.Warn("provider call failed",
			zap.Int("attempt", i+1), zap.Int("max_attempts", p.cfg.MaxAttempts), zap.Error(err))

		if !retry || i == p.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.cfg.RetryInterval):
		}
	}
	return "", fmt.Errorf("Pollinations_ai: giving up after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

// attempt performs one GET and reports whether a failure is worth retrying.
func (p *PollinationsAIProvider) attempt(ctx context.Context, fullURL, apiKey string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, fmt.Errorf("API returned non-200 status: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return false, fmt.Errorf("API returned %q instead of an image", ct)
	}
	// Drain so the result is cached upstream and the connection can be reused.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return true, fmt.Errorf("failed to read image data: %w", err)
	}
	return false, nil
}
