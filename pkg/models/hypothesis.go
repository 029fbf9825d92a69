// Package models defines the domain types shared across causeway.
package models

import "time"

// DetectionRule names the rule that produced a hypothesis. Every confidence
// value is tied to exactly one rule so results stay reproducible.
type DetectionRule string

const (
	RuleRapidDuplicateInsert  DetectionRule = "rapid_duplicate_insert"
	RuleDataInconsistency     DetectionRule = "data_inconsistency"
	RuleVesselAdviceConflict  DetectionRule = "vessel_advice_conflict"
	RuleMultipleActiveAdvices DetectionRule = "multiple_active_advices"
	RuleEDISegmentMissing     DetectionRule = "edi_segment_missing"
	RuleEDIValidationFailure  DetectionRule = "edi_validation_failure"
	RuleEDITimeout            DetectionRule = "edi_timeout"
	RuleEDIProcessingError    DetectionRule = "edi_processing_error"
	RuleAPICascade            DetectionRule = "api_error_cascade"
	RuleBestHistoricalMatch   DetectionRule = "best_historical_match"
	RuleKnowledgeMatch        DetectionRule = "knowledge_match"
	RuleNoRootCause           DetectionRule = "no_root_cause"
)

// RuleConfidence maps each detection rule to its fixed confidence value.
var RuleConfidence = map[DetectionRule]float64{
	RuleRapidDuplicateInsert:  0.95,
	RuleDataInconsistency:     0.75,
	RuleVesselAdviceConflict:  0.98,
	RuleMultipleActiveAdvices: 0.98,
	RuleEDISegmentMissing:     0.90,
	RuleEDIValidationFailure:  0.90,
	RuleEDITimeout:            0.90,
	RuleEDIProcessingError:    0.80,
	RuleAPICascade:            0.85,
	RuleBestHistoricalMatch:   0.85,
	RuleNoRootCause:           0.0,
}

// Hypothesis is one candidate root-cause explanation.
type Hypothesis struct {
	Description         string        `json:"description"`
	Rule                DetectionRule `json:"rule"`
	Evidence            []string      `json:"evidence"`
	ContributingFactors []string      `json:"contributing_factors,omitempty"`
	RecommendedSolution string        `json:"recommended_solution,omitempty"`
	Confidence          float64       `json:"confidence"`
}

// Finding is a structured result from one operational detection rule.
// The correlator emits findings; the ranker turns them into hypotheses.
type Finding struct {
	Rule        DetectionRule `json:"rule"`
	Description string        `json:"description"`
	Evidence    []string      `json:"evidence"`
	Factors     []string      `json:"factors,omitempty"`
	Remediation string        `json:"remediation,omitempty"`
	Confidence  float64       `json:"confidence"`
}

// AnalysisRequest is the input to a full root-cause analysis.
type AnalysisRequest struct {
	IncidentText  string    `json:"incident_text"`
	OccurredAt    time.Time `json:"occurred_at"`
	WindowHours   int       `json:"window_hours"`
	MaxHypotheses int       `json:"max_hypotheses,omitempty"`
}

// AnalysisResult is the outcome of one analyze call, persisted as a snapshot.
type AnalysisResult struct {
	IncidentID         string       `json:"incident_id"`
	IncidentText       string       `json:"incident_text"`
	WindowStart        time.Time    `json:"window_start"`
	WindowEnd          time.Time    `json:"window_end"`
	Hypotheses         []Hypothesis `json:"hypotheses"`
	SourcesChecked     []string     `json:"sources_checked"`
	SourcesUnavailable []string     `json:"sources_unavailable,omitempty"`
	AnalyzedAt         time.Time    `json:"analyzed_at"`
}

// TopConfidence returns the confidence of the highest-ranked hypothesis.
func (r *AnalysisResult) TopConfidence() float64 {
	if len(r.Hypotheses) == 0 {
		return 0
	}
	return r.Hypotheses[0].Confidence
}
