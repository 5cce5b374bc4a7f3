package handlers

import (
	"net/http"

	"imagestudio/providers"
)

// Catalog lists what a client can pick from.
type Catalog interface {
	Providers() []providers.ProviderInfo
}

type styleInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogHandler serves styles and providers.
type CatalogHandler struct {
	catalog Catalog
}

// NewCatalogHandler creates the handler.
func NewCatalogHandler(catalog Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// HandleStyles lists the selectable styles.
func (h *CatalogHandler) HandleStyles(w http.ResponseWriter, _ *http.Request) {
	out := make([]styleInfo, 0, len(providers.Styles))
	for _, s := range providers.Styles {
		out = append(out, styleInfo{ID: s.ID, Name: s.Name})
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleProviders lists the registered providers and their models.
func (h *CatalogHandler) HandleProviders(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.catalog.Providers())
}
