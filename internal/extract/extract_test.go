package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harborops/causeway/pkg/models"
)

func TestIdentifiers_AllClasses(t *testing.T) {
	text := "Duplicate rows for container MSKU1234567 on MV Northern Star 2 " +
		"(IMO 9321483); VESSEL_ERR_4 raised while processing REF-COPARN-1577, " +
		"gateway trace corr-88123."

	ids := Identifiers(text)

	assert.Equal(t, []string{"MSKU1234567"}, ids[models.ClassContainer])
	assert.Equal(t, []string{"MV Northern Star 2"}, ids[models.ClassVessel])
	assert.Equal(t, []string{"VESSEL_ERR_4"}, ids[models.ClassErrorCode])
	assert.Equal(t, []string{"REF-COPARN-1577"}, ids[models.ClassEDIRef])
	assert.Equal(t, []string{"corr-88123"}, ids[models.ClassCorrelationID])
	assert.Equal(t, []string{"9321483"}, ids[models.ClassIMONumber])
}

func TestIdentifiers_Deduplication(t *testing.T) {
	text := "MSKU1234567 inserted twice, then MSKU1234567 again after TGHU7654321"

	ids := Identifiers(text)

	assert.Equal(t, []string{"MSKU1234567", "TGHU7654321"}, ids[models.ClassContainer])
}

func TestIdentifiers_EmptyClassesOmitted(t *testing.T) {
	ids := Identifiers("gate move recorded without errors")

	assert.True(t, ids.Empty())
	assert.NotContains(t, ids, models.ClassContainer)
}

func TestIdentifiers_VesselPrefixes(t *testing.T) {
	ids := Identifiers("MT Baltic Trader alongside, MS Aurora departed, berth held for MV Ever Given")

	assert.ElementsMatch(t, []string{"MT Baltic Trader", "MS Aurora", "MV Ever Given"}, ids[models.ClassVessel])
}

func TestIdentifiers_RejectsMalformed(t *testing.T) {
	// Wrong prefix length and wrong digit count must not match.
	ids := Identifiers("ABC1234567 and MSKU123456 are not container numbers")

	assert.NotContains(t, ids, models.ClassContainer)
}

func TestIdentifiers_IMOSpacing(t *testing.T) {
	ids := Identifiers("IMO9321483 berthed next to IMO 9074729")

	assert.Equal(t, []string{"9321483", "9074729"}, ids[models.ClassIMONumber])
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"edifact qualifier", `Unexpected qualifier 'BN' in EQD segment`, "edifact_unexpected_qualifier"},
		{"timezone drift", "Time zone drift UTC+0 for Partner-E", "timezone_drift"},
		{"dlq spike", "Spike in DLQ messages overnight", "dlq_spike"},
		{"vessel err", "VESSEL_ERR_4 when creating vessel advice", "vessel_err"},
		{"container duplication", "Duplicate container info in manifest", "container_duplication"},
		{"timeout", "Timeout occurred calling berth planner", "timeout"},
		{"deadlock", "Database deadlock on advice table", "deadlock"},
		{"edi stuck", "EDI message stuck in ERROR status", "edi_message_stuck"},
		{"service unavailable", "Downstream service unavailable", "service_unavailable"},
		{"fallback two words", "Crane outage at berth 4", "crane_outage"},
		{"fallback one word", "Flaky", "flaky"},
		{"empty", "", "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.description))
		})
	}
}

func TestErrorType_RuleOrder(t *testing.T) {
	// EDIFACT rules outrank the generic timeout rule.
	assert.Equal(t, "edifact_parsing_error", ErrorType("EDIFACT parse timeout"))
}
