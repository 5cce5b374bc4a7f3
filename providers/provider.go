package providers

import (
	"context"

	"imagestudio/types"
)

// ModelCapabilities defines the specific capabilities of an AI model.
type ModelCapabilities struct {
	Name            string   `json:"name"`
	SupportedParams []string `json:"supported_params"`
	MaxWidth        int      `json:"max_width"`
	MaxHeight       int      `json:"max_height"`
	Default         bool     `json:"default,omitempty"`
}

// Request is the standardized input for all providers.
type Request struct {
	StyleID string
	// Input is either a base64 data URL of the reference image or a text prompt.
	Input  string
	Model  string
	APIKey string
}

// Output is the standardized output of all providers.
type Output struct {
	// ImageURL is a remote URL or a data URL.
	ImageURL string
	// Fallback is set when an image-conditioned call degraded to text-only.
	Fallback bool
}

// ImageProvider is the interface that all providers must implement.
type ImageProvider interface {
	// ID is the settings identifier of the provider.
	ID() types.ProviderID
	// Name returns a human readable provider name.
	Name() string
	// Models returns the models supported by the provider and their capabilities.
	Models() []ModelCapabilities
	// Generate an image. Credentials and input presence are checked by the caller.
	Generate(ctx context.Context, req *Request) (*Output, error)
}

// capabilities builds the model list for p from the shared catalog.
func capabilities(p types.ProviderID, params []string, maxSize int) []ModelCapabilities {
	models := types.ModelsFor(p)
	out := make([]ModelCapabilities, 0, len(models))
	for i, m := range models {
		out = append(out, ModelCapabilities{
			Name:            m,
			SupportedParams: params,
			MaxWidth:        maxSize,
			MaxHeight:       maxSize,
			Default:         i == 0,
		})
	}
	return out
}
