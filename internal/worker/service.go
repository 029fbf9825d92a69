// Package worker provides the causeway analysis HTTP service.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/harborops/causeway/internal/analyze"
	"github.com/harborops/causeway/internal/assist"
	"github.com/harborops/causeway/internal/cases"
	"github.com/harborops/causeway/internal/config"
	"github.com/harborops/causeway/internal/correlate"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/db/ops"
	"github.com/harborops/causeway/internal/feedback"
	"github.com/harborops/causeway/internal/knowledge"
	"github.com/harborops/causeway/internal/maintenance"
	"github.com/harborops/causeway/internal/search"
	"github.com/harborops/causeway/internal/search/expansion"
	"gorm.io/gorm/logger"
)

const (
	// DefaultHTTPTimeout bounds one request end to end.
	DefaultHTTPTimeout = 30 * time.Second

	// ReadyPollInterval is how often WaitReady re-checks init state.
	ReadyPollInterval = 50 * time.Millisecond

	// MaxRequestBody caps incident descriptions and feedback payloads.
	MaxRequestBody = 1 << 20 // 1 MiB

	// Analyses fan out to every data source; keep their rate modest.
	analyzeRatePerSecond = 2
	analyzeBurst         = 5
)

// Service wires the analysis engine, search manager and feedback
// recorder behind an HTTP API.
type Service struct {
	version string
	config  *config.Config

	store    *gormdb.Store
	snapshot *ops.Store

	engine        *analyze.Engine
	searchManager *search.Manager
	recorder      *feedback.Recorder
	maintenance   *maintenance.Service

	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	analyzeLimiter *PerClientRateLimiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates the service with deferred initialization. The
// health endpoint responds immediately; stores and retrievers come up
// in the background.
func NewService(version string) (*Service, error) {
	cfg := config.Get()
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:        version,
		config:         cfg,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
		analyzeLimiter: NewPerClientRateLimiter(analyzeRatePerSecond, analyzeBurst),
		ctx:            ctx,
		cancel:         cancel,
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc, nil
}

// initializeAsync opens both databases and assembles the domain
// services. Runs once in the background; requests needing the stores
// are rejected with 503 until it completes.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization")

	store, err := gormdb.NewStore(gormdb.Config{
		DSN:      s.config.DatabaseDSN,
		Path:     s.config.DBPath,
		MaxConns: s.config.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("init core store: %w", err))
		return
	}

	// The operational snapshot is a read-only replica that may lag or
	// be absent entirely; analyses then run without operational rules.
	var snapshot *ops.Store
	if s.config.OpsDBPath != "" {
		snapshot, err = ops.NewStore(ops.StoreConfig{Path: s.config.OpsDBPath})
		if err != nil {
			log.Warn().Err(err).Str("path", s.config.OpsDBPath).
				Msg("Operational snapshot unavailable, correlation rules disabled")
			snapshot = nil
		}
	} else {
		log.Warn().Msg("No operational snapshot configured, correlation rules disabled")
	}

	assistClient := assist.New(s.config)
	if assistClient != nil {
		log.Info().Str("model", s.config.AssistModel).Msg("Assist client enabled")
	}

	// A typed nil must not reach the Snapshot interface.
	correlator := correlate.New(nil)
	if snapshot != nil {
		correlator = correlate.New(snapshot)
	}

	knowledgeRetriever := knowledge.NewRetriever(store)

	var embedder cases.Embedder
	if assistClient != nil {
		embedder = assistClient
	}
	caseRetriever := cases.NewRetriever(store, embedder, s.config.CaseMinSimilarity)

	engine := analyze.New(store, correlator, knowledgeRetriever, caseRetriever, assistClient, s.config)
	searchManager := search.NewManager(knowledgeRetriever, caseRetriever, expansion.NewExpander(expansion.DefaultConfig()))
	recorder := feedback.NewRecorder(store)

	maint := maintenance.NewService(store, s.config, log.Logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		maint.Start(s.ctx)
	}()

	s.initMu.Lock()
	s.store = store
	s.snapshot = snapshot
	s.engine = engine
	s.searchManager = searchManager
	s.recorder = recorder
	s.maintenance = maint
	s.initMu.Unlock()

	s.ready.Store(true)
	log.Info().Msg("Async initialization complete, service ready")
}

func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// WaitReady blocks until initialization finishes or ctx expires.
func (s *Service) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(ReadyPollInterval)
	defer ticker.Stop()

	for {
		if s.ready.Load() {
			return nil
		}
		if err := s.GetInitError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(RequestID)
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(MaxRequestBody))
	s.router.Use(RequireJSONContentType)
}

func (s *Service) setupRoutes() {
	// Liveness works during init so orchestration can probe early.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.With(PerClientRateLimitMiddleware(s.analyzeLimiter)).
			Post("/api/analyses", s.handleAnalyze)
		r.Get("/api/analyses", s.handleListAnalyses)
		r.Get("/api/analyses/{incidentID}", s.handleGetAnalysis)

		r.Get("/api/knowledge/search", s.handleSearchKnowledge)
		r.Post("/api/knowledge", s.handleCreateKnowledge)
		r.Get("/api/knowledge/{id}", s.handleGetKnowledge)

		r.Get("/api/cases/search", s.handleSearchCases)
		r.Post("/api/cases", s.handleCreateCase)
		r.Get("/api/cases/{id}", s.handleGetCase)

		r.Post("/api/feedback", s.handleMarkFeedback)
		r.Delete("/api/feedback", s.handleUnmarkFeedback)
		r.Get("/api/feedback", s.handleListFeedback)

		r.Get("/api/stats", s.handleStats)
	})
}

// requireReady rejects requests until async initialization completes.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("initialization failed: %v", err))
				return
			}
			writeError(w, http.StatusServiceUnavailable, "service initializing")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start begins serving HTTP. Initialization continues in background.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", s.config.WorkerPort).
		Str("version", s.version).
		Msg("Worker HTTP server started (initialization in progress)")
	return nil
}

// Shutdown stops the server and closes both stores.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.initMu.RLock()
	store := s.store
	snapshot := s.snapshot
	searchManager := s.searchManager
	maint := s.maintenance
	s.initMu.RUnlock()

	if maint != nil {
		maint.Stop()
	}
	if searchManager != nil {
		searchManager.Close()
	}
	if snapshot != nil {
		if err := snapshot.Close(); err != nil {
			log.Error().Err(err).Msg("Snapshot close error")
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Core store close error")
		}
	}

	s.wg.Wait()
	log.Info().Msg("Worker service shutdown complete")
	return nil
}
