package worker

import (
	"net/http"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborops/causeway/pkg/models"
)

func decodeBody(t *testing.T, data []byte, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, dst))
}

func TestHandleHealth_ReadyService(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestHandleReady_DuringInit(t *testing.T) {
	svc := newTestService(t)
	svc.ready.Store(false)

	rec := doJSON(t, svc, http.MethodGet, "/api/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Readiness-gated routes reject too.
	rec = doJSON(t, svc, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleAnalyze_ReturnsRankedHypotheses(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/analyses",
		`{"incident_text": "duplicate rows for container CSQU3054383"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		IncidentID string `json:"incident_id"`
		Hypotheses []struct {
			Description string  `json:"description"`
			Confidence  float64 `json:"confidence"`
		} `json:"hypotheses"`
		SourcesUnavailable []string `json:"sources_unavailable"`
	}
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.NotEmpty(t, body.IncidentID)
	require.NotEmpty(t, body.Hypotheses)
	assert.Contains(t, body.SourcesUnavailable, "operational_snapshot")
}

func TestHandleAnalyze_EmptyTextFallsBack(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/analyses", `{"incident_text": ""}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AnalysisResult
	decodeBody(t, rec.Body.Bytes(), &result)
	require.Len(t, result.Hypotheses, 1)
	assert.Zero(t, result.Hypotheses[0].Confidence)
}

func TestHandleAnalyze_MalformedJSON(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/analyses", `{"incident_text": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetAnalysis_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/analyses",
		`{"incident_text": "EDI message REF-COPARN-1001 failed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		IncidentID string `json:"incident_id"`
	}
	decodeBody(t, rec.Body.Bytes(), &created)

	rec = doJSON(t, svc, http.MethodGet, "/api/analyses/"+created.IncidentID, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetAnalysis_Unknown(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodGet, "/api/analyses/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListAnalyses(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/analyses",
		`{"incident_text": "vessel MV Ever Given advice conflict"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodGet, "/api/analyses?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Analyses []map[string]any `json:"analyses"`
	}
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Len(t, body.Analyses, 1)
}

func TestHandleListAnalyses_ConfidenceBand(t *testing.T) {
	svc := newTestService(t)

	// No sources are seeded, so the analysis lands in the fallback band.
	rec := doJSON(t, svc, http.MethodPost, "/api/analyses",
		`{"incident_text": "CODECO gate move missing for MSKU1234567"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodGet, "/api/analyses?confidence=high", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Analyses []map[string]any `json:"analyses"`
	}
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Empty(t, body.Analyses)

	rec = doJSON(t, svc, http.MethodGet, "/api/analyses?confidence=low", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body.Analyses = nil
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Len(t, body.Analyses, 1)

	rec = doJSON(t, svc, http.MethodGet, "/api/analyses?confidence=bogus", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledge_CreateSearchGet(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/knowledge",
		`{"Title": "vessel advice conflicts", "Content": "Expire the existing advice by setting its effective end before creating a new one.", "Priority": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry struct {
		ID int64 `json:"ID"`
	}
	decodeBody(t, rec.Body.Bytes(), &entry)
	require.Positive(t, entry.ID)

	rec = doJSON(t, svc, http.MethodGet, "/api/knowledge/search?q=vessel+advice+conflicts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Knowledge []map[string]any `json:"knowledge"`
	}
	decodeBody(t, rec.Body.Bytes(), &result)
	assert.NotEmpty(t, result.Knowledge)

	rec = doJSON(t, svc, http.MethodGet, "/api/knowledge/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestKnowledge_CreateWithoutTitle(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/knowledge", `{"Content": "no title"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledge_SearchRequiresQuery(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodGet, "/api/knowledge/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCases_CreateAndSearch(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/cases",
		`{"Description": "duplicate container rows from double submit", "ErrorType": "duplicate_container", "RootCause": "missing unique constraint", "Validated": true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, svc, http.MethodGet, "/api/cases/search?q=duplicate+container+rows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Cases []struct {
			Similarity float64 `json:"similarity"`
		} `json:"cases"`
	}
	decodeBody(t, rec.Body.Bytes(), &result)
	require.NotEmpty(t, result.Cases)
	assert.Greater(t, result.Cases[0].Similarity, 0.1)

	rec = doJSON(t, svc, http.MethodGet, "/api/cases/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCases_GetInvalidID(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodGet, "/api/cases/banana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedback_MarkAndUnmark(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/knowledge",
		`{"Title": "expire stale advices", "Content": "expire before creating"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	markBody := `{"incident_description": "two active advices", "solution_description": "expire the older advice", "source": {"kind": "knowledge", "id": 1}}`

	rec = doJSON(t, svc, http.MethodPost, "/api/feedback", markBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var outcome struct {
		UsefulnessCount int  `json:"usefulness_count"`
		Created         bool `json:"created"`
	}
	decodeBody(t, rec.Body.Bytes(), &outcome)
	assert.True(t, outcome.Created)
	assert.Equal(t, 1, outcome.UsefulnessCount)

	rec = doJSON(t, svc, http.MethodDelete, "/api/feedback", markBody)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec.Body.Bytes(), &outcome)
	assert.Equal(t, 0, outcome.UsefulnessCount)

	rec = doJSON(t, svc, http.MethodGet, "/api/feedback?incident=two+active+advices", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFeedback_UnknownSource(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/feedback",
		`{"incident_description": "x", "solution_description": "y", "source": {"kind": "knowledge", "id": 42}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedback_InvalidKind(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/feedback",
		`{"incident_description": "x", "solution_description": "y", "source": {"kind": "bogus", "id": 1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	svc := newTestService(t)

	rec := doJSON(t, svc, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Contains(t, body, "store")
	assert.Contains(t, body, "search")
	assert.Contains(t, body, "analyze_limits")
	assert.Equal(t, "unavailable", body["snapshot"])
}

func TestAnalyzeRateLimit_Enforced(t *testing.T) {
	svc := newTestService(t)
	body := `{"incident_text": "probe incident"}`

	limited := false
	for range analyzeBurst + 2 {
		rec := doJSON(t, svc, http.MethodPost, "/api/analyses", body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, limited, "burst should exhaust the analyze limiter")

	// A different client has its own bucket.
	rec := doJSONFrom(t, svc, http.MethodPost, "/api/analyses", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}
