// Package search serves interactive knowledge and case lookups with a
// short-lived result cache and request coalescing.
package search

import (
	"context"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/harborops/causeway/internal/cases"
	"github.com/harborops/causeway/internal/knowledge"
	"github.com/harborops/causeway/internal/search/expansion"
)

// multiSpaceRegex collapses runs of whitespace in normalizeQuery.
var multiSpaceRegex = regexp.MustCompile(`\s+`)

const (
	// Results stay fresh only briefly; duty officers refine queries
	// quickly and stale usefulness counts would mislead them.
	defaultCacheTTL     = 30 * time.Second
	defaultCacheMaxSize = 200
	cacheCleanupPeriod  = time.Minute

	defaultQueryLimit = 5
	maxQueryLimit     = 50

	queryLogTruncateLen = 50
)

// Kind selects which corpus a search runs against.
type Kind string

const (
	KindKnowledge Kind = "knowledge"
	KindCases     Kind = "cases"
)

// Params describes one search request.
type Params struct {
	Kind  Kind
	Query string
	Limit int
}

// Result is the outcome of one search, either corpus.
type Result struct {
	Kind      Kind            `json:"kind"`
	Query     string          `json:"query"`
	Knowledge []knowledge.Hit `json:"knowledge,omitempty"`
	Cases     []cases.Match   `json:"cases,omitempty"`
	Expanded  []string        `json:"expanded_terms,omitempty"`
	ElapsedMs float64         `json:"elapsed_ms"`
}

// Count returns the number of hits regardless of corpus.
func (r *Result) Count() int {
	return len(r.Knowledge) + len(r.Cases)
}

// Metrics tracks search counters. All fields are updated atomically.
type Metrics struct {
	TotalSearches     int64
	KnowledgeSearches int64
	CaseSearches      int64
	CacheHits         int64
	CoalescedRequests int64
	SearchErrors      int64
	TotalLatencyNs    int64
}

// Stats returns a snapshot suitable for the stats endpoint.
func (m *Metrics) Stats() map[string]any {
	total := atomic.LoadInt64(&m.TotalSearches)
	latency := atomic.LoadInt64(&m.TotalLatencyNs)

	avgMs := float64(0)
	if total > 0 {
		avgMs = float64(latency) / float64(total) / 1e6
	}

	return map[string]any{
		"total_searches":     total,
		"knowledge_searches": atomic.LoadInt64(&m.KnowledgeSearches),
		"case_searches":      atomic.LoadInt64(&m.CaseSearches),
		"cache_hits":         atomic.LoadInt64(&m.CacheHits),
		"coalesced_requests": atomic.LoadInt64(&m.CoalescedRequests),
		"search_errors":      atomic.LoadInt64(&m.SearchErrors),
		"avg_latency_ms":     avgMs,
	}
}

type cachedResult struct {
	result    *Result
	expiresAt time.Time
}

// Manager coalesces and caches searches over both corpora.
type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	knowledge    *knowledge.Retriever
	cases        *cases.Retriever
	expander     *expansion.Expander
	metrics      *Metrics
	searchGroup  singleflight.Group
	resultCache  map[string]*cachedResult
	cacheTTL     time.Duration
	cacheMaxSize int
	cacheMu      sync.RWMutex
}

// NewManager creates a search manager and starts its cache janitor.
// expander may be nil to disable query expansion.
func NewManager(kn *knowledge.Retriever, cs *cases.Retriever, expander *expansion.Expander) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:          ctx,
		cancel:       cancel,
		knowledge:    kn,
		cases:        cs,
		expander:     expander,
		metrics:      &Metrics{},
		resultCache:  make(map[string]*cachedResult),
		cacheTTL:     defaultCacheTTL,
		cacheMaxSize: defaultCacheMaxSize,
	}
	go m.cleanupCacheLoop()
	return m
}

// Close stops the background janitor.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Metrics exposes the live counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// SearchKnowledge runs a knowledge base lookup.
func (m *Manager) SearchKnowledge(ctx context.Context, query string, limit int) (*Result, error) {
	return m.Search(ctx, Params{Kind: KindKnowledge, Query: query, Limit: limit})
}

// SearchCases runs a historical case lookup.
func (m *Manager) SearchCases(ctx context.Context, query string, limit int) (*Result, error) {
	return m.Search(ctx, Params{Kind: KindCases, Query: query, Limit: limit})
}

// Search executes a request through the cache and singleflight group.
// Identical concurrent queries share a single execution.
func (m *Manager) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = defaultQueryLimit
	}
	if params.Limit > maxQueryLimit {
		params.Limit = maxQueryLimit
	}
	params.Query = normalizeQuery(params.Query)

	atomic.AddInt64(&m.metrics.TotalSearches, 1)
	key := cacheKey(params)

	if cached, ok := m.getFromCache(key); ok {
		return cached, nil
	}

	value, err, shared := m.searchGroup.Do(key, func() (any, error) {
		result, err := m.executeSearch(ctx, params)
		if err != nil {
			return nil, err
		}
		m.putInCache(key, result)
		return result, nil
	})
	if err != nil {
		atomic.AddInt64(&m.metrics.SearchErrors, 1)
		return nil, err
	}
	if shared {
		atomic.AddInt64(&m.metrics.CoalescedRequests, 1)
	}
	return value.(*Result), nil
}

func (m *Manager) executeSearch(ctx context.Context, params Params) (*Result, error) {
	started := time.Now()
	result := &Result{Kind: params.Kind, Query: params.Query}

	query := params.Query
	if m.expander != nil {
		expanded := m.expander.Expand(params.Query)
		if expanded.Query != params.Query {
			result.Expanded = expanded.AddedTerms
			query = expanded.Query
		}
	}

	switch params.Kind {
	case KindCases:
		atomic.AddInt64(&m.metrics.CaseSearches, 1)
		matches, err := m.cases.FindSimilar(ctx, query, params.Limit)
		if err != nil {
			return nil, err
		}
		result.Cases = matches
	default:
		atomic.AddInt64(&m.metrics.KnowledgeSearches, 1)
		hits, err := m.knowledge.Search(ctx, query, params.Limit)
		if err != nil {
			return nil, err
		}
		result.Knowledge = hits
	}

	elapsed := time.Since(started)
	result.ElapsedMs = float64(elapsed.Nanoseconds()) / 1e6
	atomic.AddInt64(&m.metrics.TotalLatencyNs, elapsed.Nanoseconds())

	if elapsed > 100*time.Millisecond {
		log.Warn().
			Str("kind", string(params.Kind)).
			Str("query", truncate(params.Query, queryLogTruncateLen)).
			Dur("elapsed", elapsed).
			Msg("Slow search")
	}
	return result, nil
}

func (m *Manager) cleanupCacheLoop() {
	ticker := time.NewTicker(cacheCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpiredCache()
		}
	}
}

func (m *Manager) cleanupExpiredCache() {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	now := time.Now()
	for key, cached := range m.resultCache {
		if now.After(cached.expiresAt) {
			delete(m.resultCache, key)
		}
	}
}

func (m *Manager) getFromCache(key string) (*Result, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	if cached, ok := m.resultCache[key]; ok {
		if time.Now().Before(cached.expiresAt) {
			atomic.AddInt64(&m.metrics.CacheHits, 1)
			return cached.result, true
		}
	}
	return nil, false
}

func (m *Manager) putInCache(key string, result *Result) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if len(m.resultCache) >= m.cacheMaxSize {
		// Drop expired entries first; fall back to dropping the entry
		// closest to expiry so the map never grows unbounded.
		now := time.Now()
		var oldestKey string
		var oldestAt time.Time
		for k, v := range m.resultCache {
			if now.After(v.expiresAt) {
				delete(m.resultCache, k)
				continue
			}
			if oldestKey == "" || v.expiresAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = v.expiresAt
			}
		}
		if len(m.resultCache) >= m.cacheMaxSize && oldestKey != "" {
			delete(m.resultCache, oldestKey)
		}
	}

	m.resultCache[key] = &cachedResult{
		result:    result,
		expiresAt: time.Now().Add(m.cacheTTL),
	}
}

// normalizeQuery lowercases, trims, and collapses whitespace so cache
// keys are stable across formatting variations.
func normalizeQuery(query string) string {
	query = strings.ToLower(query)
	query = multiSpaceRegex.ReplaceAllString(query, " ")
	return strings.TrimSpace(query)
}

// cacheKey hashes the params with FNV-64a; base36 keeps keys compact.
func cacheKey(params Params) string {
	h := fnv.New64a()
	h.Write([]byte(params.Kind))
	h.Write([]byte{'|'})
	h.Write([]byte(params.Query))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(params.Limit)))
	return strconv.FormatUint(h.Sum64(), 36)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
