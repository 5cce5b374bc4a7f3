package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"imagestudio/types"
)

// SettingsHandler reads and patches a client's settings.
type SettingsHandler struct {
	workspaces Workspaces
	logger     *zap.Logger
}

// NewSettingsHandler creates the handler.
func NewSettingsHandler(workspaces Workspaces, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{workspaces: workspaces, logger: logger.With(zap.String("component", "settings_handler"))}
}

// HandleGet returns the current settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Settings.Get())
}

// HandlePatch merges the fields present in the body.
func (h *SettingsHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	var patch types.SettingsPatch
	if err := DecodeJSONBody(w, r, &patch, 16<<10, h.logger); err != nil {
		return
	}
	updated, err := ws.Settings.Update(r.Context(), patch)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}
