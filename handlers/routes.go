package handlers

import (
	"net/http"

	"imagestudio/middleware"
	"imagestudio/types"
)

// Routes groups the handlers served by the API.
type Routes struct {
	Generate *GenerateHandler
	Session  *SessionHandler
	Settings *SettingsHandler
	Gallery  *GalleryHandler
	Catalog  *CatalogHandler
	Health   *HealthHandler
	Metrics  http.Handler
}

// Register mounts every route on mux. limit wraps the endpoints that call a provider.
func (rt *Routes) Register(mux *http.ServeMux, limit middleware.Middleware) {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}

	// Stateless provider endpoints.
	mux.Handle("POST /generate-pollinations", limit(rt.Generate.Handle(types.ProviderPollinations)))
	mux.Handle("POST /generate-gemini", limit(rt.Generate.Handle(types.ProviderGemini)))

	// Session workflow.
	mux.HandleFunc("GET /api/session", rt.Session.HandleGet)
	mux.HandleFunc("PUT /api/session/style", rt.Session.HandleStyle)
	mux.HandleFunc("PUT /api/session/text", rt.Session.HandleText)
	mux.HandleFunc("POST /api/session/upload", rt.Session.HandleUpload)
	mux.HandleFunc("DELETE /api/session/upload", rt.Session.HandleClearUpload)
	mux.Handle("POST /api/session/generate", limit(http.HandlerFunc(rt.Session.HandleGenerate)))
	mux.Handle("POST /api/session/action", limit(http.HandlerFunc(rt.Session.HandleAction)))
	mux.HandleFunc("POST /api/session/save", rt.Session.HandleSave)
	mux.HandleFunc("POST /api/session/reset", rt.Session.HandleReset)

	mux.HandleFunc("GET /api/settings", rt.Settings.HandleGet)
	mux.HandleFunc("PATCH /api/settings", rt.Settings.HandlePatch)

	mux.HandleFunc("GET /api/gallery", rt.Gallery.HandleList)
	mux.HandleFunc("GET /api/gallery/export", rt.Gallery.HandleExport)
	mux.HandleFunc("DELETE /api/gallery/{id}", rt.Gallery.HandleDelete)
	mux.HandleFunc("GET /api/gallery/{id}/download", rt.Gallery.HandleDownload)

	mux.HandleFunc("GET /api/styles", rt.Catalog.HandleStyles)
	mux.HandleFunc("GET /api/providers", rt.Catalog.HandleProviders)

	mux.HandleFunc("GET /health", rt.Health.HandleHealth)
	mux.HandleFunc("GET /ready", rt.Health.HandleReady)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
}
