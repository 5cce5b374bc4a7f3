package types

// Model identifiers per provider. The first entry of each list is the default.
var providerModels = map[ProviderID][]string{
	ProviderPollinations: {"flux", "flux-fast", "kontext", "turbo"},
	ProviderGemini:       {"gemini-2.0-flash-preview-image-generation", "gemini-2.5-flash-image"},
}

// ModelsFor returns the model ids valid for p, or an empty list for an unknown provider.
func ModelsFor(p ProviderID) []string {
	models := providerModels[p]
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// DefaultModel returns the model used when none, or an invalid one, is selected.
func DefaultModel(p ProviderID) string {
	if models := providerModels[p]; len(models) > 0 {
		return models[0]
	}
	return ""
}

// ValidModel reports whether model belongs to provider p.
func ValidModel(p ProviderID, model string) bool {
	for _, m := range providerModels[p] {
		if m == model {
			return true
		}
	}
	return false
}

// DefaultSettings are used on first run and whenever the persisted value cannot be read.
func DefaultSettings() Settings {
	return Settings{
		Provider: ProviderPollinations,
		Model:    DefaultModel(ProviderPollinations),
		APIKey:   "",
	}
}
