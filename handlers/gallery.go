package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"imagestudio/imageio"
	"imagestudio/providers"
	"imagestudio/types"
)

// Downloader fetches a remote image and its content type.
type Downloader func(ctx context.Context, url string) ([]byte, string, error)

// HTTPDownloader downloads with the given client.
func HTTPDownloader(client *http.Client) Downloader {
	return func(ctx context.Context, url string) ([]byte, string, error) {
		return providers.DownloadFile(ctx, client, url)
	}
}

// GalleryHandler lists, deletes, downloads and exports saved images.
type GalleryHandler struct {
	workspaces Workspaces
	download   Downloader
	now        func() time.Time
	logger     *zap.Logger
}

// NewGalleryHandler creates the handler.
func NewGalleryHandler(workspaces Workspaces, download Downloader, logger *zap.Logger) *GalleryHandler {
	return &GalleryHandler{
		workspaces: workspaces,
		download:   download,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "gallery_handler")),
	}
}

// HandleList returns the saved images in save order.
func (h *GalleryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ws.Gallery.List(r.Context()))
}

// HandleDelete removes an image. Deleting an absent id succeeds with removed=0.
func (h *GalleryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	removed, err := ws.Gallery.RemoveByID(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// HandleDownload serves a saved image as a file attachment.
func (h *GalleryHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	id := r.PathValue("id")
	img, err := ws.Gallery.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var (
		data        []byte
		contentType string
	)
	if imageio.IsDataURL(img.URL) {
		parsed, err := imageio.ParseDataURL(img.URL)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		data, contentType = parsed.Data, parsed.MIMEType
	} else {
		data, contentType, err = h.download(r.Context(), img.URL)
		if err != nil {
			WriteError(w, types.ProviderFailure(string(img.Provider), "failed to download image", err), h.logger)
			return
		}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "domimagine-image-"+img.ID+".png"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("download interrupted", zap.String("id", id), zap.Error(err))
	}
}

// HandleExport serves the whole gallery as a JSON attachment.
func (h *GalleryHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(w, r, h.workspaces, h.logger)
	if !ok {
		return
	}
	var buf bytes.Buffer
	n, err := ws.Gallery.Export(r.Context(), &buf)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to export gallery").WithCause(err), h.logger)
		return
	}
	filename := "whisk-images-" + h.now().Format("2006-01-02") + ".json"
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	h.logger.Info("gallery exported", zap.Int("images", n))
}
