package models

import "fmt"

// SourceKind identifies which table a feedback reference points at.
type SourceKind string

const (
	SourceKnowledge SourceKind = "knowledge"
	SourceCase      SourceKind = "case"
	SourceAnalysis  SourceKind = "analysis"
)

// SourceRef is a tagged reference to the record a solution came from.
// Exactly one kind is populated; Validate enforces this at the boundary.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

// Validate checks that the reference names a known kind and a positive ID.
func (r SourceRef) Validate() error {
	switch r.Kind {
	case SourceKnowledge, SourceCase, SourceAnalysis:
	default:
		return fmt.Errorf("%w: source kind %q", ErrValidation, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: source id must be positive, got %d", ErrValidation, r.ID)
	}
	return nil
}

func (r SourceRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}
