// Package workspace owns the per-client settings store, gallery and generation session.
package workspace

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"imagestudio/gallery"
	"imagestudio/generator"
	"imagestudio/metrics"
	"imagestudio/settings"
	"imagestudio/storage"
	"imagestudio/types"
)

// Workspace is everything one client owns.
type Workspace struct {
	ID       string
	Settings *settings.Store
	Gallery  *gallery.Store
	Session  *generator.Session
}

// Defaults for Options left at zero.
const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultMaxWorkspaces = 10000
)

// Options configures new workspaces.
type Options struct {
	DefaultSettings types.Settings
	Session         generator.Options
	// IdleTTL evicts workspaces not fetched for this long. Persisted state survives
	// eviction and is hydrated again on the next Get.
	IdleTTL time.Duration
	// MaxWorkspaces caps live workspaces; the least recently used one is evicted first.
	MaxWorkspaces int
}

type entry struct {
	ws       *Workspace
	lastSeen time.Time
}

// Registry lazily creates one Workspace per client id over a shared backend.
type Registry struct {
	backend storage.Backend
	gen     generator.ImageGenerator
	metrics *metrics.Collector
	logger  *zap.Logger
	opts    Options
	now     func() time.Time

	mu         sync.Mutex
	workspaces map[string]*entry
	closed     bool
}

// NewRegistry creates an empty registry.
func NewRegistry(backend storage.Backend, gen generator.ImageGenerator, collector *metrics.Collector, logger *zap.Logger, opts Options) *Registry {
	if opts.DefaultSettings.Provider == "" {
		opts.DefaultSettings = types.DefaultSettings()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.MaxWorkspaces <= 0 {
		opts.MaxWorkspaces = DefaultMaxWorkspaces
	}
	return &Registry{
		backend:    backend,
		gen:        gen,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "workspace")),
		opts:       opts,
		now:        time.Now,
		workspaces: make(map[string]*entry),
	}
}

// Get returns the workspace for id, hydrating it from storage on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, types.NewError(types.ErrInvalidState, "workspace registry is closed")
	}
	now := r.now()
	if e, ok := r.workspaces[id]; ok {
		e.lastSeen = now
		return e.ws, nil
	}
	if len(r.workspaces) >= r.opts.MaxWorkspaces {
		r.evictOldest()
	}

	ns := storage.NewNamespaced(r.backend, "session:"+id)
	st := settings.NewStore(ns, r.logger, settings.WithDefaults(r.opts.DefaultSettings))
	st.Load(ctx)
	gal := gallery.NewStore(ns, r.logger)
	ws := &Workspace{
		ID:       id,
		Settings: st,
		Gallery:  gal,
		Session:  generator.NewSession(r.gen, st, &countingGallery{Store: gal, metrics: r.metrics}, r.logger, r.opts.Session),
	}
	r.workspaces[id] = &entry{ws: ws, lastSeen: now}
	r.metrics.SetActiveSessions(len(r.workspaces))
	r.logger.Debug("workspace created", zap.String("session", id))
	return ws, nil
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Close resets every session and tears down the settings stores.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.workspaces {
		e.ws.Session.Reset()
		e.ws.Settings.Close()
	}
	r.workspaces = make(map[string]*entry)
	r.closed = true
	r.metrics.SetActiveSessions(0)
}

// Sweep evicts every workspace idle for longer than the configured TTL and returns
// how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.workspaces {
		if now.Sub(e.lastSeen) > r.opts.IdleTTL {
			r.evictLocked(id, e)
			evicted++
		}
	}
	if evicted > 0 {
		r.metrics.SetActiveSessions(len(r.workspaces))
		r.logger.Debug("idle workspaces evicted", zap.Int("count", evicted), zap.Int("live", len(r.workspaces)))
	}
	return evicted
}

// Janitor sweeps idle workspaces every interval until ctx is done.
func (r *Registry) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// evictOldest drops the least recently used workspace. Callers hold r.mu.
func (r *Registry) evictOldest() {
	var (
		oldestID string
		oldest   *entry
	)
	for id, e := range r.workspaces {
		if oldest == nil || e.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, e
		}
	}
	if oldest != nil {
		r.evictLocked(oldestID, oldest)
		r.logger.Debug("workspace evicted at capacity", zap.String("session", oldestID))
	}
}

func (r *Registry) evictLocked(id string, e *entry) {
	e.ws.Session.Reset()
	e.ws.Settings.Close()
	delete(r.workspaces, id)
}

// countingGallery records gallery appends made by the session.
type countingGallery struct {
	*gallery.Store
	metrics *metrics.Collector
}

func (c *countingGallery) Append(ctx context.Context, img types.GeneratedImage) error {
	if err := c.Store.Append(ctx, img); err != nil {
		return err
	}
	c.metrics.RecordGalleryWrite("append")
	return nil
}
