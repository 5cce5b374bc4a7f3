package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"imagestudio/middleware"
	"imagestudio/types"
	"imagestudio/workspace"
)

// Workspaces resolves the workspace of a client id.
type Workspaces interface {
	Get(ctx context.Context, id string) (*workspace.Workspace, error)
}

// workspaceFor resolves the caller's workspace, writing an error response when it cannot.
func workspaceFor(w http.ResponseWriter, r *http.Request, reg Workspaces, logger *zap.Logger) (*workspace.Workspace, bool) {
	id, ok := middleware.ClientIDFromContext(r.Context())
	if !ok {
		WriteError(w, types.NewError(types.ErrInvalidState, "no client session"), logger)
		return nil, false
	}
	ws, err := reg.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err, logger)
		return nil, false
	}
	return ws, true
}

// SessionHandler exposes a client's generation state machine.
type SessionHandler struct {
	workspaces Workspaces
	maxUpload  int64
	logger     *zap.Logger
}

// NewSessionHandler creates the handler. maxUpload caps multipart upload bodies.
func NewSessionHandler(workspaces Workspaces, maxUpload int64, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		workspaces: workspaces,
		maxUpload:  maxUpload,
		logger:     logger.With(zap.String("component", "session_handler")),
	}
}

type styleRequest struct {
	StyleID string `json:"styleId"`
}

type textRequest struct {
	Text string `json:"text"`
}

// HandleGet returns the session snapshot.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Session.Snapshot())
}

// HandleStyle selects the style.
func (h *SessionHandler) HandleStyle(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	var req styleRequest
	if err := DecodeJSONBody(w, r, &req, 4<<10, h.logger); err != nil {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Session.SelectStyle(req.StyleID))
}

// HandleText sets the text input; an empty text clears it.
func (h *SessionHandler) HandleText(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	var req textRequest
	if err := DecodeJSONBody(w, r, &req, 64<<10, h.logger); err != nil {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Session.SetText(req.Text))
}

// HandleUpload reads the multipart field "image" and makes it the active input.
func (h *SessionHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	if h.maxUpload > 0 {
		// Leave room for the multipart envelope; the session enforces the exact limit.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+64<<10)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		msg := "could not read multipart field \"image\""
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "upload too large"
		} else if errors.Is(err, http.ErrMissingFile) {
			WriteError(w, types.MissingInput("no image uploaded"), h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInvalidRequest, msg).WithCause(err), h.logger)
		return
	}
	defer file.Close()

	snap, err := ws.Session.Upload(header.Header.Get("Content-Type"), file)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.logger.Debug("image uploaded", zap.String("filename", header.Filename), zap.Int64("size", header.Size))
	WriteJSON(w, http.StatusOK, snap)
}

// HandleClearUpload removes the uploaded image.
func (h *SessionHandler) HandleClearUpload(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Session.ClearUpload())
}

// HandleGenerate runs a generation and blocks until it settles.
func (h *SessionHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	snap, err := ws.Session.Generate(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// HandleAction is the primary button: generate or reset depending on state.
func (h *SessionHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	snap, err := ws.Session.Action(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// HandleSave stores the current result in the gallery.
func (h *SessionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	img, err := ws.Session.Save(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, img)
}

// HandleReset returns the session to idle.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Session.Reset())
}
