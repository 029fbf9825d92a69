// Package correlate runs detection rules against the operational
// snapshot: container duplication, vessel advice conflicts, EDI error
// classification, API error cascades.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborops/causeway/internal/db/ops"
	"github.com/harborops/causeway/internal/extract"
	"github.com/harborops/causeway/pkg/models"
)

// Snapshot is the slice of the operational store the correlator needs.
type Snapshot interface {
	ContainerVersions(ctx context.Context, cntrNo string) ([]ops.ContainerVersion, error)
	VesselAdvices(ctx context.Context, systemVesselName string) ([]ops.VesselAdvice, error)
	BerthApplicationCount(ctx context.Context, adviceNo int64) (int, error)
	EDIByReference(ctx context.Context, messageRef string) (*ops.EDIMessage, error)
	EDIErrorsInWindow(ctx context.Context, start, end time.Time, limit int) ([]ops.EDIMessage, error)
	APIEventsByCorrelation(ctx context.Context, correlationID string) ([]ops.APIEvent, error)
	APIErrorEventsInWindow(ctx context.Context, start, end time.Time) ([]ops.APIEvent, error)
}

// RapidDuplicateThreshold is the insert spacing below which duplicate
// container rows are treated as a race rather than versioning.
const RapidDuplicateThreshold = 5 * time.Second

// CascadeWindow is the maximum gap between consecutive error events
// that still counts as the same cascade.
const CascadeWindow = 10 * time.Second

// Correlator runs detection rules against the snapshot.
type Correlator struct {
	snapshot Snapshot
}

// New creates a Correlator. A nil snapshot is allowed; every
// correlation then reports the operational source as unavailable.
func New(snapshot Snapshot) *Correlator {
	return &Correlator{snapshot: snapshot}
}

// Correlation is the full result of correlating one incident against
// the operational snapshot.
type Correlation struct {
	Identifiers models.Identifiers `json:"identifiers"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`

	Findings []models.Finding `json:"findings"`

	// Context that did not trigger a rule but helps a reader.
	EDIErrorsInWindow []EDIErrorSummary `json:"edi_errors_in_window,omitempty"`
	APITraces         []APITrace        `json:"api_traces,omitempty"`
	Cascades          []Cascade         `json:"cascades,omitempty"`

	// Sources that could not be queried; findings from them are absent
	// rather than the whole correlation failing.
	SourcesUnavailable []string `json:"sources_unavailable,omitempty"`
}

// EDIErrorSummary is a compact view of an errored EDI message.
type EDIErrorSummary struct {
	MessageRef  string    `json:"message_ref"`
	MessageType string    `json:"message_type"`
	ErrorText   string    `json:"error_text"`
	SentAt      time.Time `json:"sent_at"`
}

// APITrace groups the events sharing one correlation id.
type APITrace struct {
	CorrelationID string         `json:"correlation_id"`
	Events        []ops.APIEvent `json:"events"`
}

// Cascade is a run of HTTP error events close together in time.
type Cascade struct {
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	EventCount int            `json:"event_count"`
	Events     []ops.APIEvent `json:"events"`
}

// Duration returns the cascade's span.
func (c Cascade) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// Correlate extracts identifiers from the incident text and runs every
// detection rule inside the window around the incident time. Snapshot
// failures degrade to SourcesUnavailable entries instead of errors.
func (c *Correlator) Correlate(ctx context.Context, incidentText string, incidentTime time.Time, windowHours int) *Correlation {
	if windowHours <= 0 {
		windowHours = 2
	}
	result := &Correlation{
		Identifiers: extract.Identifiers(incidentText),
		WindowStart: incidentTime.Add(-time.Duration(windowHours) * time.Hour),
		WindowEnd:   incidentTime.Add(time.Duration(windowHours) * time.Hour),
	}

	if c.snapshot == nil {
		result.SourcesUnavailable = append(result.SourcesUnavailable, "operational_snapshot")
		return result
	}

	c.correlateContainers(ctx, result)
	c.correlateVessels(ctx, result, incidentTime)
	c.correlateEDI(ctx, result)
	c.correlateAPIEvents(ctx, result)

	return result
}

func (c *Correlator) markUnavailable(result *Correlation, source string, err error) {
	log.Warn().Err(err).Str("source", source).Msg("Operational source unavailable, continuing without it")
	for _, s := range result.SourcesUnavailable {
		if s == source {
			return
		}
	}
	result.SourcesUnavailable = append(result.SourcesUnavailable, source)
}

func (c *Correlator) correlateContainers(ctx context.Context, result *Correlation) {
	for _, cntrNo := range result.Identifiers[models.ClassContainer] {
		finding, err := c.AnalyzeContainerDuplication(ctx, cntrNo)
		if err != nil {
			c.markUnavailable(result, "containers", err)
			continue
		}
		if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}
}

// AnalyzeContainerDuplication inspects the versioned rows for one
// container number. Returns nil when no anomaly is present.
func (c *Correlator) AnalyzeContainerDuplication(ctx context.Context, cntrNo string) (*models.Finding, error) {
	versions, err := c.snapshot.ContainerVersions(ctx, cntrNo)
	if err != nil {
		return nil, err
	}
	if len(versions) <= 1 {
		return nil, nil
	}

	identical := true
	first := versions[0]
	for _, v := range versions[1:] {
		if v.Status != first.Status || v.VesselID != first.VesselID ||
			v.OriginPort != first.OriginPort || v.DestinationPort != first.DestinationPort {
			identical = false
			break
		}
	}

	evidence := make([]string, 0, len(versions))
	for _, v := range versions {
		evidence = append(evidence, fmt.Sprintf("%s row created %s status=%s origin=%s dest=%s",
			v.CntrNo, v.CreatedAt.Format(time.RFC3339), v.Status, v.OriginPort, v.DestinationPort))
	}

	if !identical {
		return &models.Finding{
			Rule:        models.RuleDataInconsistency,
			Description: fmt.Sprintf("Container %s has %d rows with diverging data", cntrNo, len(versions)),
			Evidence:    evidence,
			Factors:     []string{"conflicting updates from multiple systems"},
			Remediation: "Reconcile the diverging rows against the carrier manifest",
			Confidence:  models.RuleConfidence[models.RuleDataInconsistency],
		}, nil
	}

	// Rows newest-first: spacing between the newest and oldest insert.
	spacing := versions[0].CreatedAt.Sub(versions[len(versions)-1].CreatedAt)
	if spacing < RapidDuplicateThreshold {
		return &models.Finding{
			Rule: models.RuleRapidDuplicateInsert,
			Description: fmt.Sprintf("Container %s inserted %d times within %.1fs, likely race condition or double submit",
				cntrNo, len(versions), spacing.Seconds()),
			Evidence:    evidence,
			Factors:     []string{"missing idempotency key on insert path"},
			Remediation: "Deduplicate the rows and add an idempotency guard to the submitting system",
			Confidence:  models.RuleConfidence[models.RuleRapidDuplicateInsert],
		}, nil
	}

	// Spaced-out identical rows are ordinary snapshot versioning.
	return nil, nil
}

func (c *Correlator) correlateVessels(ctx context.Context, result *Correlation, incidentTime time.Time) {
	for _, vesselName := range result.Identifiers[models.ClassVessel] {
		finding, err := c.AnalyzeVesselAdvice(ctx, vesselName, incidentTime)
		if err != nil {
			c.markUnavailable(result, "vessels", err)
			continue
		}
		if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}
}

// AnalyzeVesselAdvice checks for advice conflicts on a vessel: a new
// advice cannot be created while another advice is still active.
// Activity is evaluated at the incident time, not at query time, so an
// advice that has since expired still counts if it overlapped the
// incident.
func (c *Correlator) AnalyzeVesselAdvice(ctx context.Context, vesselName string, at time.Time) (*models.Finding, error) {
	advices, err := c.snapshot.VesselAdvices(ctx, systemVesselName(vesselName))
	if err != nil {
		return nil, err
	}

	var active []ops.VesselAdvice
	for _, a := range advices {
		if a.Active(at) {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	if len(active) > 1 {
		evidence := make([]string, 0, len(active))
		for _, a := range active {
			evidence = append(evidence, fmt.Sprintf("advice #%d active since %s",
				a.AdviceNo, a.EffectiveStart.Format(time.RFC3339)))
		}
		return &models.Finding{
			Rule: models.RuleMultipleActiveAdvices,
			Description: fmt.Sprintf("Vessel %q has %d simultaneously active advices, data integrity violation",
				vesselName, len(active)),
			Evidence:    evidence,
			Factors:     []string{"unique constraint on active advice missing or bypassed"},
			Remediation: "Expire all but the latest advice and restore the uniqueness guarantee",
			Confidence:  models.RuleConfidence[models.RuleMultipleActiveAdvices],
		}, nil
	}

	advice := active[0]
	evidence := []string{
		fmt.Sprintf("advice #%d active since %s", advice.AdviceNo, advice.EffectiveStart.Format(time.RFC3339)),
	}
	if count, err := c.snapshot.BerthApplicationCount(ctx, advice.AdviceNo); err == nil && count > 0 {
		evidence = append(evidence, fmt.Sprintf("%d live berth application(s) reference advice #%d", count, advice.AdviceNo))
	}

	return &models.Finding{
		Rule: models.RuleVesselAdviceConflict,
		Description: fmt.Sprintf("VESSEL_ERR_4: cannot create new advice, vessel %q already has active advice #%d",
			vesselName, advice.AdviceNo),
		Evidence:    evidence,
		Remediation: "Expire the existing advice by setting its effective end before creating a new one",
		Confidence:  models.RuleConfidence[models.RuleVesselAdviceConflict],
	}, nil
}

// systemVesselName normalizes an extracted vessel name to the advice
// table's system name: prefix dropped, uppercased, spaces collapsed.
func systemVesselName(vesselName string) string {
	name := vesselName
	for _, prefix := range []string{"MV ", "MS ", "MT "} {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

func (c *Correlator) correlateEDI(ctx context.Context, result *Correlation) {
	for _, ref := range result.Identifiers[models.ClassEDIRef] {
		finding, err := c.AnalyzeEDIError(ctx, ref)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			c.markUnavailable(result, "edi_messages", err)
			continue
		}
		if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
	}

	// Window-wide ERROR messages as context, findings or not.
	ediErrs, err := c.snapshot.EDIErrorsInWindow(ctx, result.WindowStart, result.WindowEnd, 20)
	if err != nil {
		c.markUnavailable(result, "edi_messages", err)
		return
	}
	for _, e := range ediErrs {
		result.EDIErrorsInWindow = append(result.EDIErrorsInWindow, EDIErrorSummary{
			MessageRef:  e.MessageRef,
			MessageType: e.MessageType,
			ErrorText:   e.ErrorText,
			SentAt:      e.SentAt,
		})
	}
}

// AnalyzeEDIError classifies an errored EDI message by its error text.
// Returns nil for messages that are not in ERROR status, and
// models.ErrNotFound for unknown references.
func (c *Correlator) AnalyzeEDIError(ctx context.Context, messageRef string) (*models.Finding, error) {
	msg, err := c.snapshot.EDIByReference(ctx, messageRef)
	if err != nil {
		return nil, err
	}
	if msg.Status != "ERROR" {
		return nil, nil
	}

	rule, description, remediation := classifyEDIError(msg.ErrorText)
	evidence := []string{
		fmt.Sprintf("%s %s from %s to %s sent %s", msg.MessageType, msg.MessageRef,
			msg.Sender, msg.Receiver, msg.SentAt.Format(time.RFC3339)),
	}
	if msg.ErrorText != "" {
		evidence = append(evidence, "error text: "+msg.ErrorText)
	}

	return &models.Finding{
		Rule:        rule,
		Description: description,
		Evidence:    evidence,
		Remediation: remediation,
		Confidence:  models.RuleConfidence[rule],
	}, nil
}

func classifyEDIError(errorText string) (models.DetectionRule, string, string) {
	lower := strings.ToLower(errorText)
	switch {
	case strings.Contains(lower, "segment missing"):
		return models.RuleEDISegmentMissing,
			"EDI message structure incomplete, required segment not found",
			"Verify the sender's EDI message template and segment ordering"
	case strings.Contains(lower, "validation"):
		return models.RuleEDIValidationFailure,
			"EDI message validation failed, invalid data format or values",
			"Check data type constraints and code list values"
	case strings.Contains(lower, "timeout"):
		return models.RuleEDITimeout,
			"EDI processing timeout, message too large or system overload",
			"Review message size limits and system performance"
	default:
		return models.RuleEDIProcessingError,
			"EDI message failed processing",
			"Inspect the message payload and reprocess after correction"
	}
}

func (c *Correlator) correlateAPIEvents(ctx context.Context, result *Correlation) {
	for _, corrID := range result.Identifiers[models.ClassCorrelationID] {
		events, err := c.snapshot.APIEventsByCorrelation(ctx, corrID)
		if err != nil {
			c.markUnavailable(result, "api_events", err)
			continue
		}
		if len(events) > 0 {
			result.APITraces = append(result.APITraces, APITrace{
				CorrelationID: corrID,
				Events:        events,
			})
		}
	}

	cascades, err := c.DetectCascades(ctx, result.WindowStart, result.WindowEnd)
	if err != nil {
		c.markUnavailable(result, "api_events", err)
		return
	}
	result.Cascades = cascades

	for _, cascade := range cascades {
		evidence := make([]string, 0, len(cascade.Events))
		for _, e := range cascade.Events {
			status := int64(0)
			if e.HTTPStatus.Valid {
				status = e.HTTPStatus.Int64
			}
			evidence = append(evidence, fmt.Sprintf("%s from %s returned %d at %s",
				e.EventType, e.SourceSystem, status, e.EventTS.Format(time.RFC3339)))
		}
		result.Findings = append(result.Findings, models.Finding{
			Rule: models.RuleAPICascade,
			Description: fmt.Sprintf("Cascading API failures: %d error responses within %.1fs",
				cascade.EventCount, cascade.Duration().Seconds()),
			Evidence:    evidence,
			Factors:     []string{"downstream dependency failing fast across callers"},
			Remediation: "Identify the first failing system in the cascade and check its dependencies",
			Confidence:  models.RuleConfidence[models.RuleAPICascade],
		})
	}
}

// DetectCascades groups HTTP error events into cascades: runs of
// events no more than CascadeWindow apart, two events minimum.
func (c *Correlator) DetectCascades(ctx context.Context, start, end time.Time) ([]Cascade, error) {
	events, err := c.snapshot.APIErrorEventsInWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	var cascades []Cascade
	current := []ops.APIEvent{events[0]}

	flush := func() {
		if len(current) >= 2 {
			cascades = append(cascades, Cascade{
				Start:      current[0].EventTS,
				End:        current[len(current)-1].EventTS,
				EventCount: len(current),
				Events:     current,
			})
		}
	}

	for _, e := range events[1:] {
		if e.EventTS.Sub(current[len(current)-1].EventTS) <= CascadeWindow {
			current = append(current, e)
			continue
		}
		flush()
		current = []ops.APIEvent{e}
	}
	flush()

	return cascades, nil
}
