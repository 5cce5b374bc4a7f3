// Package types holds the data model shared by the stores, the providers and the HTTP layer.
package types

// ProviderID names an image generation backend.
type ProviderID string

const (
	ProviderPollinations ProviderID = "pollinations"
	ProviderGemini       ProviderID = "gemini"
)

// Providers lists the known providers in display order.
var Providers = []ProviderID{ProviderPollinations, ProviderGemini}

// Valid reports whether p is one of the known providers.
func (p ProviderID) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Settings is the user's provider configuration.
type Settings struct {
	Provider ProviderID `json:"provider"`
	Model    string     `json:"model"`
	APIKey   string     `json:"apiKey"`
}

// SettingsPatch carries a partial update; nil fields keep their current value.
type SettingsPatch struct {
	Provider *ProviderID `json:"provider,omitempty"`
	Model    *string     `json:"model,omitempty"`
	APIKey   *string     `json:"apiKey,omitempty"`
}

// GeneratedImage is a saved gallery record.
type GeneratedImage struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	StyleID       string     `json:"styleId"`
	UploadedImage string     `json:"uploadedImage"`
	Timestamp     string     `json:"timestamp"`
	Provider      ProviderID `json:"provider"`
	Model         string     `json:"model"`
}
