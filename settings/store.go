// Package settings persists the user's provider, model and API key and notifies subscribers of changes.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"imagestudio/storage"
	"imagestudio/types"
)

// Key is the storage key holding the serialized settings.
const Key = "image-generator-settings"

// Store owns the current Settings for one client.
type Store struct {
	backend storage.Backend
	logger  *zap.Logger

	mu       sync.RWMutex
	current  types.Settings
	loaded   bool
	subs     map[int]func(types.Settings)
	nextSub  int
	closed   bool
	defaults types.Settings
}

// Option customises a Store.
type Option func(*Store)

// WithDefaults overrides the first-run settings.
func WithDefaults(s types.Settings) Option {
	return func(st *Store) {
		st.defaults = normalize(s)
	}
}

// NewStore creates a store over backend. Call Load before reading.
func NewStore(backend storage.Backend, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		logger:   logger.With(zap.String("component", "settings")),
		subs:     make(map[int]func(types.Settings)),
		defaults: types.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current = s.defaults
	return s
}

// Load hydrates the store. Missing or unreadable data yields the defaults.
func (s *Store) Load(ctx context.Context) types.Settings {
	loaded := s.defaults
	raw, err := s.backend.Get(ctx, Key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		s.logger.Warn("failed to read settings, using defaults",
			zap.String("code", string(types.ErrStorageError)), zap.Error(err))
	default:
		var persisted types.Settings
		if err := json.Unmarshal(raw, &persisted); err != nil {
			s.logger.Warn("corrupt settings, using defaults",
				zap.String("code", string(types.ErrStorageError)), zap.Error(err))
		} else if !persisted.Provider.Valid() {
			s.logger.Warn("persisted settings name an unknown provider, using defaults",
				zap.String("provider", string(persisted.Provider)))
		} else {
			loaded = normalize(persisted)
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.loaded = true
	s.mu.Unlock()
	return loaded
}

// Loaded reports whether Load has run.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Get returns the current settings.
func (s *Store) Get() types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges patch into the current settings and persists the result.
// On a write failure memory keeps its previous value and a StorageError is returned.
func (s *Store) Update(ctx context.Context, patch types.SettingsPatch) (types.Settings, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.Settings{}, types.NewError(types.ErrInvalidState, "settings store is closed")
	}

	next := s.current
	if patch.Provider != nil {
		if !patch.Provider.Valid() {
			s.mu.Unlock()
			return types.Settings{}, types.UnsupportedProvider(string(*patch.Provider))
		}
		next.Provider = *patch.Provider
	}
	if patch.Model != nil {
		next.Model = *patch.Model
	}
	if patch.APIKey != nil {
		next.APIKey = *patch.APIKey
	}
	next = normalize(next)

	raw, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		return types.Settings{}, types.StorageFailure("failed to encode settings", err)
	}
	if err := s.backend.Set(ctx, Key, raw); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to persist settings", zap.Error(err))
		return types.Settings{}, types.StorageFailure("failed to persist settings", err)
	}
	s.current = next

	subs := make([]func(types.Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	s.logger.Debug("settings updated",
		zap.String("provider", string(next.Provider)),
		zap.String("model", next.Model),
		zap.Bool("has_api_key", next.APIKey != ""))
	return next, nil
}

// Subscribe registers fn to receive every successful update. The returned func unregisters it.
func (s *Store) Subscribe(fn func(types.Settings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close drops all subscribers and rejects further updates.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]func(types.Settings))
}

// normalize resets a model that does not belong to the provider.
func normalize(s types.Settings) types.Settings {
	if !types.ValidModel(s.Provider, s.Model) {
		s.Model = types.DefaultModel(s.Provider)
	}
	return s
}
