package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"imagestudio/imageio"
	"imagestudio/types"
)

// ContentGenerator is the slice of the genai client the provider needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory builds a ContentGenerator bound to the caller's API key.
type ClientFactory func(ctx context.Context, apiKey string) (ContentGenerator, error)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultGeminiConfig returns the SDK endpoint with a two minute timeout.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{Timeout: 120 * time.Second}
}

// NewGenAIClientFactory returns a factory creating one genai client per call.
func NewGenAIClientFactory(cfg GeminiConfig) ClientFactory {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return func(ctx context.Context, apiKey string) (ContentGenerator, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPClient:  httpClient,
			HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return client.Models, nil
	}
}

// GeminiProvider generates images with Gemini's multimodal generate-content call.
type GeminiProvider struct {
	newClient ClientFactory
	logger    *zap.Logger
}

// NewGeminiProvider creates the provider. A nil factory uses the genai SDK.
func NewGeminiProvider(cfg GeminiConfig, factory ClientFactory, logger *zap.Logger) *GeminiProvider {
	if factory == nil {
		factory = NewGenAIClientFactory(cfg)
	}
	return &GeminiProvider{
		newClient: factory,
		logger:    logger.With(zap.String("provider", string(types.ProviderGemini))),
	}
}

func (g *GeminiProvider) ID() types.ProviderID { return types.ProviderGemini }

func (g *GeminiProvider) Name() string { return "Gemini" }

func (g *GeminiProvider) Models() []ModelCapabilities {
	return capabilities(types.ProviderGemini, []string{"image"}, 1024)
}

// Generate sends the style instruction and the reference image and returns the first image part.
func (g *GeminiProvider) Generate(ctx context.Context, req *Request) (*Output, error) {
	if !imageio.IsDataURL(req.Input) {
		return nil, types.UnsupportedFormat("gemini requires an uploaded PNG or JPEG image")
	}
	ref, err := imageio.ParseDataURL(req.Input)
	if err != nil {
		return nil, err
	}
	if err := imageio.RequireMIME(ref, imageio.MIMEPNG, imageio.MIMEJPEG); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = types.DefaultModel(types.ProviderGemini)
	}

	client, err := g.newClient(ctx, req.APIKey)
	if err != nil {
		return nil, types.ProviderFailure(string(types.ProviderGemini), "failed to create client", err)
	}

	parts := []*genai.Part{
		{Text: ImagePrompt(req.StyleID)},
		{InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data}},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	g.logger.Info("calling provider", zap.String("model", model), zap.String("input_mime", ref.MIMEType))
	resp, err := client.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, types.ProviderFailure(string(types.ProviderGemini), err.Error(), err)
	}

	imageURL, err := extractImage(resp)
	if err != nil {
		return nil, err
	}
	return &Output{ImageURL: imageURL}, nil
}

// extractImage returns the first inline image across all candidates as a data URL.
func extractImage(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		msg := "no candidates in response"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", types.ProviderFailure(string(types.ProviderGemini), msg, nil)
	}

	var finish genai.FinishReason
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if finish == "" {
			finish = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = imageio.MIMEPNG
			}
			return imageio.EncodeDataURL(mimeType, part.InlineData.Data), nil
		}
	}

	msg := "no image in response"
	if finish != "" && finish != genai.FinishReasonUnspecified && finish != genai.FinishReasonStop {
		msg = fmt.Sprintf("no image in response (finish reason: %s)", finish)
	}
	return "", types.ProviderFailure(string(types.ProviderGemini), msg, nil)
}
