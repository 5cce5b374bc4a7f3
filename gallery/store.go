// Package gallery keeps the ordered list of images a user chose to save.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"imagestudio/storage"
	"imagestudio/types"
)

// Key is the storage key holding the serialized gallery.
const Key = "saved-images"

// Store persists the gallery as one JSON array. Every mutation rewrites the whole array.
type Store struct {
	backend storage.Backend
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewStore creates a gallery over backend.
func NewStore(backend storage.Backend, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.With(zap.String("component", "gallery")),
	}
}

// List returns the gallery in save order. Missing or corrupt data reads as empty.
func (s *Store) List(ctx context.Context) []types.GeneratedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Get returns the image with the given id.
func (s *Store) Get(ctx context.Context, id string) (types.GeneratedImage, error) {
	for _, img := range s.List(ctx) {
		if img.ID == id {
			return img, nil
		}
	}
	return types.GeneratedImage{}, types.NewError(types.ErrNotFound, fmt.Sprintf("image %q not found", id))
}

// Append adds img at the end of the gallery. If the stored gallery cannot be read,
// nothing is written and a StorageError is returned.
func (s *Store) Append(ctx context.Context, img types.GeneratedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	images, err := s.load(ctx)
	if err != nil {
		return err
	}
	images = append(images, img)
	if err := s.write(ctx, images); err != nil {
		return err
	}
	s.logger.Info("image saved to gallery", zap.String("id", img.ID), zap.Int("count", len(images)))
	return nil
}

// Remove deletes every image matching pred and returns how many were removed.
// Nothing is written when nothing matches.
func (s *Store) Remove(ctx context.Context, pred func(types.GeneratedImage) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	images, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]types.GeneratedImage, 0, len(images))
	for _, img := range images {
		if !pred(img) {
			kept = append(kept, img)
		}
	}
	removed := len(images) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// RemoveByID deletes the image with the given id. Removing an absent id is a no-op.
func (s *Store) RemoveByID(ctx context.Context, id string) (int, error) {
	return s.Remove(ctx, func(img types.GeneratedImage) bool { return img.ID == id })
}

// Export writes the gallery as an indented JSON array.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	images := s.List(ctx)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(images); err != nil {
		return 0, fmt.Errorf("gallery: failed to export: %w", err)
	}
	return len(images), nil
}

// read is the lenient path for listing: failures are logged and read as empty.
func (s *Store) read(ctx context.Context) []types.GeneratedImage {
	images, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("failed to read gallery, treating as empty",
			zap.String("code", string(types.ErrStorageError)), zap.Error(err))
		return []types.GeneratedImage{}
	}
	return images
}

// load is the strict path for mutations. Only a missing key reads as empty.
func (s *Store) load(ctx context.Context) ([]types.GeneratedImage, error) {
	raw, err := s.backend.Get(ctx, Key)
	if errors.Is(err, storage.ErrNotFound) {
		return []types.GeneratedImage{}, nil
	}
	if err != nil {
		return nil, types.StorageFailure("failed to read gallery", err)
	}
	var images []types.GeneratedImage
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, types.StorageFailure("stored gallery is corrupt", err)
	}
	if images == nil {
		images = []types.GeneratedImage{}
	}
	return images, nil
}

func (s *Store) write(ctx context.Context, images []types.GeneratedImage) error {
	raw, err := json.Marshal(images)
	if err != nil {
		return types.StorageFailure("failed to encode gallery", err)
	}
	if err := s.backend.Set(ctx, Key, raw); err != nil {
		s.logger.Error("failed to persist gallery", zap.Error(err))
		return types.StorageFailure("failed to persist gallery", err)
	}
	return nil
}
