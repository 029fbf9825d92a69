// Package extract pulls maritime identifiers out of free-text incident
// descriptions and classifies incident descriptions into error types.
package extract

import (
	"regexp"
	"strings"

	"github.com/harborops/causeway/pkg/models"
)

var (
	// ISO 6346 container numbers: four-letter owner/equipment prefix
	// followed by a six-digit serial and a check digit.
	containerPattern = regexp.MustCompile(`\b[A-Z]{4}\d{7}\b`)

	// Vessel names with an MV/MS/MT prefix, title-cased words, optional
	// trailing hull number.
	vesselPattern = regexp.MustCompile(`\b(?:MV|MS|MT)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*(?:\s+\d+)?\b`)

	// Structured error codes, e.g. VESSEL_ERR_4, EDI_ERROR_102.
	errorCodePattern = regexp.MustCompile(`\b[A-Z]+_(?:ERR|ERROR|WARN)_\d+\b`)

	// EDI message references, e.g. REF-COPARN-1577.
	ediRefPattern = regexp.MustCompile(`\bREF-[A-Z]+-\d+\b`)

	// Correlation ids as emitted by the integration gateway.
	correlationPattern = regexp.MustCompile(`\bcorr-\d+\b`)

	// IMO numbers, with the digits captured separately from the prefix.
	imoPattern = regexp.MustCompile(`\bIMO\s*(\d{7})\b`)
)

// Identifiers extracts all recognized identifier classes from text.
// Within each class, first-occurrence order is preserved and duplicates
// are dropped. Classes with no matches are absent from the result.
func Identifiers(text string) models.Identifiers {
	ids := make(models.Identifiers)

	addMatches(ids, models.ClassContainer, containerPattern.FindAllString(text, -1))
	addMatches(ids, models.ClassVessel, vesselPattern.FindAllString(text, -1))
	addMatches(ids, models.ClassErrorCode, errorCodePattern.FindAllString(text, -1))
	addMatches(ids, models.ClassEDIRef, ediRefPattern.FindAllString(text, -1))
	addMatches(ids, models.ClassCorrelationID, correlationPattern.FindAllString(text, -1))

	var imos []string
	for _, m := range imoPattern.FindAllStringSubmatch(text, -1) {
		imos = append(imos, m[1])
	}
	addMatches(ids, models.ClassIMONumber, imos)

	return ids
}

func addMatches(ids models.Identifiers, class models.IdentifierClass, matches []string) {
	if len(matches) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	ids[class] = out
}

// errorTypeRule maps a description pattern to a coarse error type.
// Rules are checked in order; the first match wins.
type errorTypeRule struct {
	pattern   *regexp.Regexp
	errorType string
}

var errorTypeRules = []errorTypeRule{
	{regexp.MustCompile(`unexpected qualifier.*['"]\w+['"]\s+in\s+\w+\s+segment`), "edifact_unexpected_qualifier"},
	{regexp.MustCompile(`coarri.*container.*translation|container.*coarri.*error`), "coarri_container_error"},
	{regexp.MustCompile(`edifact.*parse|edifact.*format|edifact.*message`), "edifact_parsing_error"},
	{regexp.MustCompile(`codeco.*error|codeco.*reject`), "codeco_error"},
	{regexp.MustCompile(`coprar.*error|coprar.*reject`), "coprar_error"},
	{regexp.MustCompile(`baplie.*error|baplie.*reject`), "baplie_error"},
	{regexp.MustCompile(`edi.*message.*stuck|edi.*stuck.*error`), "edi_message_stuck"},
	{regexp.MustCompile(`segment.*error|segment.*reject|segment.*invalid`), "edi_segment_error"},
	{regexp.MustCompile(`time ?zone drift`), "timezone_drift"},
	{regexp.MustCompile(`dlq.*spike|spike.*dlq|dlq messages`), "dlq_spike"},
	{regexp.MustCompile(`vessel_err|vessel error`), "vessel_err"},
	{regexp.MustCompile(`duplicate.*container|container.*duplication`), "container_duplication"},
	{regexp.MustCompile(`cntr.*duplicate|cntr.*error`), "container_reference_error"},
	{regexp.MustCompile(`booking.*duplicate|booking.*conflict`), "booking_conflict"},
	{regexp.MustCompile(`timeout`), "timeout"},
	{regexp.MustCompile(`deadlock`), "deadlock"},
	{regexp.MustCompile(`connection refused`), "connection_refused"},
	{regexp.MustCompile(`invalid format`), "invalid_format"},
	{regexp.MustCompile(`missing field`), "missing_field"},
	{regexp.MustCompile(`auth.*fail|authentication failed`), "auth_failed"},
	{regexp.MustCompile(`permission denied`), "permission_denied"},
	{regexp.MustCompile(`file not found`), "file_not_found"},
	{regexp.MustCompile(`memory leak`), "memory_leak"},
	{regexp.MustCompile(`high cpu`), "high_cpu"},
	{regexp.MustCompile(`disk full`), "disk_full"},
	{regexp.MustCompile(`network unreachable`), "network_unreachable"},
	{regexp.MustCompile(`service unavailable`), "service_unavailable"},
	{regexp.MustCompile(`unknown error`), "unknown_error"},
}

var wordPattern = regexp.MustCompile(`\w+`)

// ErrorType buckets an incident description into a coarse error type
// for grouping related cases. Unmatched descriptions fall back to the
// first two words of the description, lowercased and underscored.
func ErrorType(description string) string {
	lower := strings.ToLower(description)

	for _, rule := range errorTypeRules {
		if rule.pattern.MatchString(lower) {
			return rule.errorType
		}
	}

	words := wordPattern.FindAllString(lower, 2)
	if len(words) == 0 {
		return "unknown_error"
	}
	return strings.Join(words, "_")
}
