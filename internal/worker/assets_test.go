package worker

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempoapp/tempo-worker/internal/cache"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

var testManifest = []string{
	"/",
	"/assets/app.js",
	"/assets/app.css",
}

func newTestAssetManager(t *testing.T, version string) (*AssetManager, *cache.Store, *httpmock.MockTransport) {
	t.Helper()
	interceptor, store, transport := newTestInterceptor(t, true)
	m := NewAssetManager(store, interceptor, version, testManifest, logger.Default())
	return m, store, transport
}

func respondOK(transport *httpmock.MockTransport) {
	for _, path := range testManifest {
		transport.RegisterResponder(http.MethodGet, testOrigin+path,
			httpmock.NewStringResponder(http.StatusOK, "asset "+path))
	}
}

func TestAssetManagerInstall(t *testing.T) {
	m, store, transport := newTestAssetManager(t, "v1")
	respondOK(transport)

	require.NoError(t, m.Install(context.Background()))

	keys := store.Keys("tempo-static-v1")
	assert.Len(t, keys, len(testManifest))
	for _, path := range testManifest {
		entry, ok := store.Match("tempo-static-v1", cache.RequestKey(http.MethodGet, path))
		require.True(t, ok, "missing precached asset %s", path)
		assert.Equal(t, "asset "+path, string(entry.Body))
	}
}

func TestAssetManagerInstallAllOrNothing(t *testing.T) {
	m, store, transport := newTestAssetManager(t, "v1")
	respondOK(transport)
	transport.RegisterResponder(http.MethodGet, testOrigin+"/assets/app.css",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	err := m.Install(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.Keys("tempo-static-v1"))
}

func TestAssetManagerInstallRejectsNon200(t *testing.T) {
	m, store, transport := newTestAssetManager(t, "v1")
	respondOK(transport)
	transport.RegisterResponder(http.MethodGet, testOrigin+"/assets/app.js",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	err := m.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Empty(t, store.Keys("tempo-static-v1"))
}

func TestAssetManagerActivateEvictsOldVersions(t *testing.T) {
	m, store, transport := newTestAssetManager(t, "v2")
	respondOK(transport)

	// Leftovers from earlier versions plus an unrelated cache.
	store.Open(StaticCacheName("v1"), 0)
	store.Put(StaticCacheName("v1"), "GET /old", &cache.Entry{StatusCode: 200}, 0)
	store.Open("tempo-runtime", 0)

	require.NoError(t, m.Install(context.Background()))
	deleted := m.Activate(context.Background())

	assert.Equal(t, []string{StaticCacheName("v1")}, deleted)
	names := store.Names()
	assert.Contains(t, names, StaticCacheName("v2"))
	assert.Contains(t, names, "tempo-runtime")
	assert.NotContains(t, names, StaticCacheName("v1"))
}
