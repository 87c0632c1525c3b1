package worker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tempoapp/tempo-worker/internal/cache"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

const (
	// staticCachePrefix names the versioned app-shell caches. Anything
	// under this prefix that does not match the current version is
	// deleted on activation.
	staticCachePrefix = "tempo-static-"
	// installConcurrency bounds parallel precache fetches.
	installConcurrency = 4
)

// StaticCacheName returns the app-shell cache name for a version.
func StaticCacheName(version string) string {
	return staticCachePrefix + version
}

// AssetManager populates and evicts the versioned app-shell cache.
type AssetManager struct {
	store       *cache.Store
	interceptor *Interceptor
	version     string
	manifest    []string
	log         logger.Logger
}

// NewAssetManager creates an AssetManager. manifest is the fixed list of
// app-shell URLs precached on install.
func NewAssetManager(store *cache.Store, interceptor *Interceptor, version string, manifest []string, log logger.Logger) *AssetManager {
	return &AssetManager{
		store:       store,
		interceptor: interceptor,
		version:     version,
		manifest:    manifest,
		log:         log,
	}
}

// CacheName returns the current version's static cache name.
func (m *AssetManager) CacheName() string {
	return StaticCacheName(m.version)
}

// Install precaches the app-shell manifest into the current static cache.
// The batch is all-or-nothing: any fetch failure aborts the install and
// nothing from the batch is committed. Failures are logged, not retried;
// installing again is idempotent (one entry per manifest URL).
func (m *AssetManager) Install(ctx context.Context) error {
	type fetched struct {
		url    string
		result *Result
	}
	results := make([]fetched, len(m.manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for idx, rawURL := range m.manifest {
		g.Go(func() error {
			result, err := m.interceptor.fetch(gctx, http.MethodGet, rawURL)
			if err != nil {
				return fmt.Errorf("precache fetch %s: %w", rawURL, err)
			}
			if result.StatusCode != http.StatusOK {
				return fmt.Errorf("precache fetch %s: status %d", rawURL, result.StatusCode)
			}
			results[idx] = fetched{url: rawURL, result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Error("app-shell install aborted", logger.Error(err))
		return err
	}

	name := m.CacheName()
	m.store.Open(name, 0)
	for _, f := range results {
		m.store.Put(name, cache.RequestKey(http.MethodGet, f.url), &cache.Entry{
			StatusCode: f.result.StatusCode,
			Header:     f.result.Header,
			Body:       f.result.Body,
		}, 0)
	}
	m.log.Info("app-shell cache installed",
		logger.String("cache", name),
		logger.Int("assets", len(results)))
	return nil
}

// Activate deletes every static cache not belonging to the current
// version. Returns the names of the deleted caches.
func (m *AssetManager) Activate(ctx context.Context) []string {
	_ = ctx
	current := m.CacheName()
	var deleted []string
	for _, name := range m.store.Names() {
		if !strings.HasPrefix(name, staticCachePrefix) || name == current {
			continue
		}
		if m.store.DeleteCache(name) {
			deleted = append(deleted, name)
		}
	}
	if len(deleted) > 0 {
		m.log.Info("stale app-shell caches evicted",
			logger.String("current", current),
			logger.Any("deleted", deleted))
	}
	return deleted
}
