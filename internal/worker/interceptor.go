package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tempoapp/tempo-worker/internal/cache"
	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

const (
	// maxCachedBody bounds the size of a response body stored in the cache.
	maxCachedBody = 4 << 20 // 4 MiB
)

// Cache names used by the fetch path. The static name embeds the app
// version; bumping the version is the only eviction trigger for it.
const (
	runtimeCacheName = "tempo-runtime"
)

// ServeSource identifies where a response came from.
type ServeSource string

const (
	SourceNetwork       ServeSource = "network"
	SourceCache         ServeSource = "cache"
	SourceCacheDegraded ServeSource = "cache-degraded"
	SourceSynthetic     ServeSource = "synthetic"
)

// servedFromHeader tags responses with their source so clients can
// surface degraded-mode banners.
const servedFromHeader = "X-Tempo-Served-From"

// Result is the interceptor's answer for one request.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     ServeSource
	Strategy   Strategy
}

// Interceptor routes intercepted requests per the classifier's strategy,
// reading and writing the cache store as each strategy allows.
type Interceptor struct {
	classifier *Classifier
	store      *cache.Store
	config     *ConfigState
	client     *http.Client
	baseURL    *url.URL
	staticName string
	log        logger.Logger

	// revalidations tracks in-flight background refreshes so tests and
	// shutdown can wait for them.
	revalidations sync.WaitGroup
}

// NewInterceptor creates an Interceptor. baseURL is the upstream origin
// relative request paths resolve against; staticName is the versioned
// static cache populated by the asset manager.
func NewInterceptor(
	classifier *Classifier,
	store *cache.Store,
	config *ConfigState,
	client *http.Client,
	baseURL string,
	staticName string,
	log logger.Logger,
) (*Interceptor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL %q: %w", baseURL, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	store.Open(runtimeCacheName, 0)
	return &Interceptor{
		classifier: classifier,
		store:      store,
		config:     config,
		client:     client,
		baseURL:    base,
		staticName: staticName,
		log:        log,
	}, nil
}

// Handle routes one request. Network and cache errors never escape as
// errors: every failure degrades to a stale cache entry or a synthetic
// 503 so the caller always gets a response.
func (i *Interceptor) Handle(ctx context.Context, method, rawURL string, mode RequestMode) *Result {
	strategy := i.classifier.Classify(rawURL, mode)
	cfg := i.config.Get()

	// With caching disabled everything but the bypass path behaves as
	// plain network-only with synthetic errors.
	if !cfg.Enabled && strategy != StrategyBypass {
		strategy = StrategyNetworkOnly
	}

	switch strategy {
	case StrategyBypass:
		return i.passThrough(ctx, method, rawURL, strategy)
	case StrategyNetworkOnly:
		return i.networkOnly(ctx, method, rawURL, strategy, cfg.Enabled)
	case StrategyStaleWhileRevalidate:
		return i.staleWhileRevalidate(ctx, method, rawURL, strategy)
	case StrategyNetworkFirst:
		return i.networkFirst(ctx, method, rawURL, strategy)
	default:
		return i.cacheFirst(ctx, method, rawURL, strategy)
	}
}

// Flush waits for in-flight background revalidations to finish.
func (i *Interceptor) Flush() {
	i.revalidations.Wait()
}

func (i *Interceptor) passThrough(ctx context.Context, method, rawURL string, strategy Strategy) *Result {
	resp, err := i.fetch(ctx, method, rawURL)
	if err != nil {
		return syntheticError(strategy, err)
	}
	return networkResult(resp, strategy)
}

func (i *Interceptor) networkOnly(ctx context.Context, method, rawURL string, strategy Strategy, degradeAllowed bool) *Result {
	resp, err := i.fetch(ctx, method, rawURL)
	if err == nil {
		return networkResult(resp, strategy)
	}
	// Degrade to any cached copy from before this URL was excluded, but
	// never write the cache for excluded requests.
	if degradeAllowed {
		if entry, ok := i.store.MatchAny(cache.RequestKey(method, rawURL)); ok {
			i.log.Warn("serving degraded cache entry after network failure",
				logger.String("url", rawURL),
				logger.Error(err))
			return cachedResult(entry, SourceCacheDegraded, strategy)
		}
	}
	return syntheticError(strategy, err)
}

func (i *Interceptor) staleWhileRevalidate(ctx context.Context, method, rawURL string, strategy Strategy) *Result {
	key := cache.RequestKey(method, rawURL)
	if entry, ok := i.store.Match(runtimeCacheName, key); ok {
		i.revalidateAsync(method, rawURL)
		return cachedResult(entry, SourceCache, strategy)
	}
	resp, err := i.fetch(ctx, method, rawURL)
	if err != nil {
		return i.anyCacheOrSynthetic(method, rawURL, strategy, err)
	}
	result := networkResult(resp, strategy)
	i.maybeStore(runtimeCacheName, conf.CacheCategoryNavigation, method, rawURL, result)
	return result
}

func (i *Interceptor) networkFirst(ctx context.Context, method, rawURL string, strategy Strategy) *Result {
	resp, err := i.fetch(ctx, method, rawURL)
	if err == nil {
		result := networkResult(resp, strategy)
		i.maybeStore(runtimeCacheName, conf.CacheCategoryNavigation, method, rawURL, result)
		return result
	}
	key := cache.RequestKey(method, rawURL)
	if entry, ok := i.store.Match(runtimeCacheName, key); ok {
		return cachedResult(entry, SourceCache, strategy)
	}
	return i.anyCacheOrSynthetic(method, rawURL, strategy, err)
}

// anyCacheOrSynthetic is the last resort for a failed navigation fetch:
// a match from any named cache (the precached app shell lives in the
// static cache, not the runtime one) beats the synthetic 503.
func (i *Interceptor) anyCacheOrSynthetic(method, rawURL string, strategy Strategy, err error) *Result {
	if entry, ok := i.store.MatchAny(cache.RequestKey(method, rawURL)); ok {
		i.log.Warn("serving offline navigation from cache",
			logger.String("url", rawURL),
			logger.Error(err))
		return cachedResult(entry, SourceCacheDegraded, strategy)
	}
	return syntheticError(strategy, err)
}

func (i *Interceptor) cacheFirst(ctx context.Context, method, rawURL string, strategy Strategy) *Result {
	key := cache.RequestKey(method, rawURL)
	if entry, ok := i.store.Match(i.staticName, key); ok {
		return cachedResult(entry, SourceCache, strategy)
	}
	resp, err := i.fetch(ctx, method, rawURL)
	if err != nil {
		return syntheticError(strategy, err)
	}
	result := networkResult(resp, strategy)
	i.maybeStore(i.staticName, conf.CacheCategoryStatic, method, rawURL, result)
	return result
}

// revalidateAsync refreshes a cached entry from the network in the
// background. Failures are logged and otherwise ignored; the stale entry
// stays until a refresh succeeds or maintenance expires it.
func (i *Interceptor) revalidateAsync(method, rawURL string) {
	i.revalidations.Add(1)
	go func() {
		defer i.revalidations.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := i.fetch(ctx, method, rawURL)
		if err != nil {
			i.log.Debug("background revalidation failed",
				logger.String("url", rawURL),
				logger.Error(err))
			return
		}
		result := networkResult(resp, StrategyStaleWhileRevalidate)
		i.maybeStore(runtimeCacheName, conf.CacheCategoryNavigation, method, rawURL, result)
	}()
}

// maybeStore writes a successful GET response into the cache. Only 200s
// are stored, extension URLs never are, and oversized bodies are skipped.
func (i *Interceptor) maybeStore(cacheName, category, method, rawURL string, result *Result) {
	if result.StatusCode != http.StatusOK || method != http.MethodGet {
		return
	}
	if isExtensionURL(rawURL) || len(result.Body) > maxCachedBody {
		return
	}
	ttl := i.config.ExpirationFor(category, 24*time.Hour)
	i.store.Put(cacheName, cache.RequestKey(method, rawURL), &cache.Entry{
		StatusCode: result.StatusCode,
		Header:     result.Header.Clone(),
		Body:       result.Body,
	}, ttl)
}

// fetch performs the upstream request, resolving relative URLs against
// the configured origin.
func (i *Interceptor) fetch(ctx context.Context, method, rawURL string) (*Result, error) {
	target := rawURL
	if strings.HasPrefix(rawURL, "/") {
		ref, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
		}
		target = i.baseURL.ResolveReference(ref).String()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		return nil, err
	}
	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func networkResult(r *Result, strategy Strategy) *Result {
	r.Source = SourceNetwork
	r.Strategy = strategy
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(servedFromHeader, string(SourceNetwork))
	return r
}

func cachedResult(entry *cache.Entry, source ServeSource, strategy Strategy) *Result {
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(servedFromHeader, string(source))
	return &Result{
		StatusCode: entry.StatusCode,
		Header:     header,
		Body:       entry.Body,
		Source:     source,
		Strategy:   strategy,
	}
}

// syntheticError builds the offline 503 JSON response returned when the
// network fails and no cache entry can stand in.
func syntheticError(strategy Strategy, err error) *Result {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(servedFromHeader, string(SourceSynthetic))
	body := fmt.Sprintf(`{"error":"offline","message":%q}`, err.Error())
	return &Result{
		StatusCode: http.StatusServiceUnavailable,
		Header:     header,
		Body:       []byte(body),
		Source:     SourceSynthetic,
		Strategy:   strategy,
	}
}
