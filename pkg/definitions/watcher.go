package definitions

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/lmsauthz/pkg/audit"
	"github.com/platinummonkey/lmsauthz/pkg/observability"
	"github.com/platinummonkey/lmsauthz/pkg/rbac"
)

// DefaultDebounce is how long the watcher waits for writes to settle
const DefaultDebounce = 250 * time.Millisecond

// CatalogSwapper is the part of the evaluator a reload needs
type CatalogSwapper interface {
	SwapCatalog(c *rbac.Catalog) error
}

// Watcher reloads a definition file into an evaluator whenever it changes
type Watcher struct {
	source   FileSource
	target   CatalogSwapper
	debounce time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
	audit    audit.Logger

	ready chan struct{}
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets the settle delay
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

// WithAuditLogger records reload outcomes
func WithAuditLogger(l audit.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.audit = l
		}
	}
}

// NewWatcher creates a watcher for the file at path
func NewWatcher(path string, target CatalogSwapper, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve definition path: %w", err)
	}
	// event names carry the resolved directory
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}

	w := &Watcher{
		source:   FileSource{Path: filepath.Clean(abs)},
		target:   target,
		debounce: DefaultDebounce,
		logger:   observability.NopLogger(),
		audit:    audit.NopLogger{},
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the definition file until ctx is cancelled. It must be called once.
// The parent directory is watched so editors that replace the file are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.source.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	close(w.ready)
	w.logger.WithField("path", w.source.Path).Info("watching definition file")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.source.Path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			// failures are logged, counted and audited by Reload
			_ = w.Reload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("definition watcher error")
		}
	}
}

// Reload loads the file and swaps it into service. On any error the current
// catalog stays in place.
func (w *Watcher) Reload(ctx context.Context) error {
	event := audit.NewEvent(audit.EventTypeCatalogReloaded, audit.EventStatusSuccess)
	event.Metadata["source"] = w.source.String()

	catalog, err := LoadCatalog(ctx, w.source)
	if err == nil {
		err = w.target.SwapCatalog(catalog)
	}
	if err != nil {
		w.metrics.CatalogReload("failure")
		w.logger.WithError(err).WithField("source", w.source.String()).
			Error("definition reload rejected; keeping current catalog")
		w.recordAudit(ctx, event.WithError(err))
		return err
	}

	w.metrics.CatalogReload("success")
	event.Metadata["permissions"] = catalog.Permissions.Len()
	event.Metadata["roles"] = catalog.Roles.Len()
	w.recordAudit(ctx, event)
	w.logger.WithFields(map[string]interface{}{
		"source":      w.source.String(),
		"permissions": catalog.Permissions.Len(),
		"roles":       catalog.Roles.Len(),
	}).Info("definition table reloaded")
	return nil
}

func (w *Watcher) recordAudit(ctx context.Context, event *audit.AuditEvent) {
	if err := w.audit.Log(ctx, event); err != nil {
		w.logger.WithError(err).Warn("failed to write audit event")
	}
}
