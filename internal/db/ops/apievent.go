package ops

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const apiEventSelect = `
	SELECT api_id, container_id, vessel_id, event_type, source_system,
	       http_status, COALESCE(correlation_id, ''), event_ts
	FROM api_event
`

// APIEventsByCorrelation returns all events sharing a correlation id,
// oldest first, for tracing a request across systems.
func (s *Store) APIEventsByCorrelation(ctx context.Context, correlationID string) ([]APIEvent, error) {
	query := apiEventSelect + `
		WHERE correlation_id = ?
		ORDER BY event_ts
	`

	rows, err := s.queryContext(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query api events by correlation: %w", err)
	}
	defer rows.Close()

	return scanAPIEventRows(rows)
}

// APIErrorEventsInWindow returns events with HTTP status >= 400 inside
// the window, oldest first. Events with no recorded status are skipped.
func (s *Store) APIErrorEventsInWindow(ctx context.Context, start, end time.Time) ([]APIEvent, error) {
	query := apiEventSelect + `
		WHERE event_ts BETWEEN ? AND ? AND http_status >= 400
		ORDER BY event_ts
	`

	rows, err := s.queryContext(ctx, query, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("query api error events: %w", err)
	}
	defer rows.Close()

	return scanAPIEventRows(rows)
}

func scanAPIEventRows(rows *sql.Rows) ([]APIEvent, error) {
	var events []APIEvent
	for rows.Next() {
		var (
			e       APIEvent
			eventTS string
		)
		if err := rows.Scan(
			&e.APIID, &e.ContainerID, &e.VesselID, &e.EventType,
			&e.SourceSystem, &e.HTTPStatus, &e.CorrelationID, &eventTS,
		); err != nil {
			return nil, err
		}
		t, err := parseTime(eventTS)
		if err != nil {
			return nil, fmt.Errorf("parse api event_ts: %w", err)
		}
		e.EventTS = t
		events = append(events, e)
	}
	return events, rows.Err()
}
