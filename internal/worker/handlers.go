package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/feedback"
	"github.com/harborops/causeway/pkg/models"
)

const (
	// DefaultSearchLimit is the default number of search results.
	DefaultSearchLimit = 5

	// DefaultAnalysesLimit is the default page size for analysis lists.
	DefaultAnalysesLimit = 20

	// DefaultFeedbackLimit is the default page size for feedback lists.
	DefaultFeedbackLimit = 20
)

// writeJSON writes data as a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleHealth responds during initialization so probes can connect
// early; /api/ready reports full readiness.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if s.GetInitError() != nil {
		status = "error"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.GetInitError(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
			"error": err.Error(),
		})
		return
	}
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Analyze(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := gormdb.ParseLimitParam(r, DefaultAnalysesLimit)
	offset := gormdb.ParseOffsetParam(r)

	filter, ok := confidenceBandFilter(r.URL.Query().Get("confidence"))
	if !ok {
		writeError(w, http.StatusBadRequest, "confidence must be one of: high, medium, low")
		return
	}

	analyses, err := s.store.RecentAnalyses(r.Context(), filter, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": analyses,
		"limit":    limit,
		"offset":   offset,
	})
}

// confidenceBandFilter maps the confidence query parameter to a store
// filter. High is 0.8 and above, medium 0.5 to 0.8, low below 0.5.
func confidenceBandFilter(band string) (gormdb.AnalysisFilter, bool) {
	switch band {
	case "":
		return gormdb.AnalysisFilter{}, true
	case "high":
		return gormdb.AnalysisFilter{MinConfidence: 0.8}, true
	case "medium":
		return gormdb.AnalysisFilter{MinConfidence: 0.5, MaxConfidence: 0.8}, true
	case "low":
		return gormdb.AnalysisFilter{MaxConfidence: 0.5}, true
	default:
		return gormdb.AnalysisFilter{}, false
	}
}

func (s *Service) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")

	analysis, err := s.engine.AnalysisByIncident(r.Context(), incidentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Service) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := gormdb.ParseLimitParam(r, DefaultSearchLimit)

	result, err := s.searchManager.SearchKnowledge(r.Context(), query, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var entry gormdb.KnowledgeEntry
	if !decodeJSON(w, r, &entry) {
		return
	}

	if err := s.store.CreateKnowledge(r.Context(), &entry); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Service) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	entry, err := s.store.GetKnowledge(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Service) handleSearchCases(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := gormdb.ParseLimitParam(r, DefaultSearchLimit)

	result, err := s.searchManager.SearchCases(r.Context(), query, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var c gormdb.HistoricalCase
	if !decodeJSON(w, r, &c) {
		return
	}

	if err := s.store.CreateCase(r.Context(), &c); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Service) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := s.store.GetCase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Service) handleMarkFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedback.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := s.recorder.Mark(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, outcome)
}

func (s *Service) handleUnmarkFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedback.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := s.recorder.Unmark(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Service) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	incident := r.URL.Query().Get("incident")
	if incident == "" {
		writeError(w, http.StatusBadRequest, "query parameter incident is required")
		return
	}
	limit := gormdb.ParseLimitParam(r, DefaultFeedbackLimit)

	rows, err := s.store.FeedbackForIncident(r.Context(), incident, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": rows})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.StoreStats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snapshotStatus := "unavailable"
	if s.snapshot != nil {
		snapshotStatus = "available"
	}

	payload := map[string]any{
		"store":          stats,
		"store_health":   s.store.HealthCheck(r.Context()),
		"search":         s.searchManager.Metrics().Stats(),
		"analyze_limits": s.analyzeLimiter.Stats(),
		"snapshot":       snapshotStatus,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"version":        s.version,
	}
	if s.maintenance != nil {
		payload["maintenance"] = s.maintenance.Stats()
	}

	writeJSON(w, http.StatusOK, payload)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
