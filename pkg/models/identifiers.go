package models

// IdentifierClass is a category of structured token extracted from
// free-text incident descriptions.
type IdentifierClass string

const (
	ClassContainer     IdentifierClass = "containers"
	ClassVessel        IdentifierClass = "vessels"
	ClassErrorCode     IdentifierClass = "error_codes"
	ClassEDIRef        IdentifierClass = "edi_refs"
	ClassCorrelationID IdentifierClass = "correlation_ids"
	ClassIMONumber     IdentifierClass = "imo_numbers"
)

// AllIdentifierClasses lists every class the extractor produces, in a
// stable order used for reporting.
var AllIdentifierClasses = []IdentifierClass{
	ClassContainer,
	ClassVessel,
	ClassErrorCode,
	ClassEDIRef,
	ClassCorrelationID,
	ClassIMONumber,
}

// Identifiers maps each class to its matches. Matches are deduplicated
// and keep the order they first appeared in the text. Absent classes map
// to empty slices, never to a missing key.
type Identifiers map[IdentifierClass][]string

// Empty reports whether no class matched anything.
func (ids Identifiers) Empty() bool {
	for _, v := range ids {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of extracted tokens across classes.
func (ids Identifiers) Count() int {
	n := 0
	for _, v := range ids {
		n += len(v)
	}
	return n
}
