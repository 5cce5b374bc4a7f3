package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"imagestudio/providers"
	"imagestudio/types"
)

// Generator is the provider adapter as seen by the HTTP layer.
type Generator interface {
	Generate(ctx context.Context, styleID, input string, s types.Settings) (*providers.Result, error)
}

// GenerateRequest is the body of the provider endpoints.
// Prompt is text-mode input and is used only when UploadedImage is empty.
type GenerateRequest struct {
	StyleID       string `json:"styleId"`
	UploadedImage string `json:"uploadedImage"`
	APIKey        string `json:"apiKey"`
	Model         string `json:"model"`
	Prompt        string `json:"prompt,omitempty"`
}

// GenerateResponse is the success body of the provider endpoints.
type GenerateResponse struct {
	ImageURL string `json:"imageUrl"`
}

// GenerateHandler serves the stateless per-provider endpoints.
type GenerateHandler struct {
	gen      Generator
	maxBytes int64
	logger   *zap.Logger
}

// NewGenerateHandler creates the handler. maxBytes caps request bodies (uploads arrive inline).
func NewGenerateHandler(gen Generator, maxBytes int64, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{gen: gen, maxBytes: maxBytes, logger: logger.With(zap.String("component", "generate_handler"))}
}

// Handle returns the endpoint for one provider.
func (h *GenerateHandler) Handle(provider types.ProviderID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := DecodeJSONBody(w, r, &req, h.maxBytes, h.logger); err != nil {
			return
		}

		input := req.UploadedImage
		if input == "" {
			input = req.Prompt
		}
		settings := types.Settings{Provider: provider, Model: req.Model, APIKey: req.APIKey}

		h.logger.Info("generation requested",
			zap.String("provider", string(provider)),
			zap.String("style", req.StyleID),
			zap.String("model", req.Model),
			zap.Bool("image_input", req.UploadedImage != ""),
		)

		res, err := h.gen.Generate(r.Context(), req.StyleID, input, settings)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		WriteJSON(w, http.StatusOK, GenerateResponse{ImageURL: res.ImageURL})
	}
}
