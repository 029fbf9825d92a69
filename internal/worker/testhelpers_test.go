package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/harborops/causeway/internal/analyze"
	"github.com/harborops/causeway/internal/cases"
	"github.com/harborops/causeway/internal/config"
	"github.com/harborops/causeway/internal/correlate"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/feedback"
	"github.com/harborops/causeway/internal/knowledge"
	"github.com/harborops/causeway/internal/search"
	"github.com/harborops/causeway/internal/search/expansion"
)

// newTestService builds a fully wired service on a temporary core
// store, skipping the async init path.
func newTestService(t *testing.T) *Service {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "causeway-worker-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     tmpDir + "/core.db",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	knowledgeRetriever := knowledge.NewRetriever(store)
	caseRetriever := cases.NewRetriever(store, nil, cfg.CaseMinSimilarity)
	searchManager := search.NewManager(knowledgeRetriever, caseRetriever, expansion.NewExpander(expansion.DefaultConfig()))
	t.Cleanup(searchManager.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := &Service{
		version:        "test",
		config:         cfg,
		store:          store,
		engine:         analyze.New(store, correlate.New(nil), knowledgeRetriever, caseRetriever, nil, cfg),
		searchManager:  searchManager,
		recorder:       feedback.NewRecorder(store),
		router:         chi.NewRouter(),
		analyzeLimiter: NewPerClientRateLimiter(analyzeRatePerSecond, analyzeBurst),
		ctx:            ctx,
		cancel:         cancel,
	}
	svc.ready.Store(true)
	svc.setupMiddleware()
	svc.setupRoutes()
	return svc
}

// doJSON performs a request with a JSON body against the service.
func doJSON(t *testing.T, svc *Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

var testClientPort int64

// doJSONFrom performs a request with a distinct client address so the
// per-client rate limiter sees independent callers.
func doJSONFrom(t *testing.T, svc *Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", "198.51.100."+strconv.FormatInt(atomic.AddInt64(&testClientPort, 1), 10))
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}
