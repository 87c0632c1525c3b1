// Package worker implements the edge worker: request routing with cached
// response strategies, the app-shell cache lifecycle, the client message
// bus, and background sync replay.
package worker

import (
	"strings"
	"sync/atomic"
)

// Strategy is the routing decision for one intercepted request.
type Strategy int

const (
	// StrategyBypass passes the request to the network unmodified and
	// never touches the cache. Reserved for the messaging worker script.
	StrategyBypass Strategy = iota
	// StrategyNetworkOnly always hits the network; the cache is only
	// consulted as a degraded fallback after a network failure.
	StrategyNetworkOnly
	// StrategyStaleWhileRevalidate returns a cached response immediately
	// when present and refreshes the cache from the network in the
	// background.
	StrategyStaleWhileRevalidate
	// StrategyCacheFirst serves from cache, fetching and storing on miss.
	StrategyCacheFirst
	// StrategyNetworkFirst hits the network and falls back to cache on
	// failure. The legacy navigation policy, selectable via
	// SET_IMPLEMENTATION{useNewImplementation:false}.
	StrategyNetworkFirst
)

// String returns the strategy name for logs and stats.
func (s Strategy) String() string {
	switch s {
	case StrategyBypass:
		return "bypass"
	case StrategyNetworkOnly:
		return "network-only"
	case StrategyStaleWhileRevalidate:
		return "stale-while-revalidate"
	case StrategyCacheFirst:
		return "cache-first"
	case StrategyNetworkFirst:
		return "network-first"
	default:
		return "unknown"
	}
}

// RequestMode distinguishes full-page navigations from subresource loads.
type RequestMode string

const (
	ModeNavigate RequestMode = "navigate"
	ModeNoCORS   RequestMode = "no-cors"
	ModeCORS     RequestMode = "cors"
)

// extensionSchemes are URL schemes whose responses must never be stored.
var extensionSchemes = []string{
	"chrome-extension://",
	"moz-extension://",
	"safari-web-extension://",
}

// isExtensionURL reports whether the URL belongs to a browser extension.
func isExtensionURL(url string) bool {
	for _, scheme := range extensionSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

// Classifier is the pure request-routing decision function. One instance
// is built from config at startup and shared by the fetch path.
type Classifier struct {
	scriptPath string
	neverCache []string

	// legacyNavigation selects network-first for navigations instead of
	// stale-while-revalidate. Toggled by SET_IMPLEMENTATION.
	legacyNavigation atomic.Bool
}

// NewClassifier creates a Classifier. scriptPath is the messaging worker
// script; neverCache holds URL substrings (API prefix and identity /
// appcheck / firestore hostnames) that must never be cached.
func NewClassifier(scriptPath string, neverCache []string) *Classifier {
	return &Classifier{
		scriptPath: scriptPath,
		neverCache: neverCache,
	}
}

// SetLegacyNavigation toggles the navigation policy. useNewImplementation
// true (the default) selects stale-while-revalidate.
func (c *Classifier) SetLegacyNavigation(legacy bool) {
	c.legacyNavigation.Store(legacy)
}

// Classify decides the strategy for a request. The checks run in a fixed
// order: script bypass, never-cache patterns, navigation, then static.
func (c *Classifier) Classify(url string, mode RequestMode) Strategy {
	if c.scriptPath != "" && strings.Contains(url, c.scriptPath) {
		return StrategyBypass
	}
	for _, pattern := range c.neverCache {
		if strings.Contains(url, pattern) {
			return StrategyNetworkOnly
		}
	}
	if mode == ModeNavigate {
		if c.legacyNavigation.Load() {
			return StrategyNetworkFirst
		}
		return StrategyStaleWhileRevalidate
	}
	return StrategyCacheFirst
}
