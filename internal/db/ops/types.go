package ops

import (
	"database/sql"
	"time"
)

// Vessel is a vessel reference row from the snapshot.
type Vessel struct {
	VesselID int64
	IMONo    int64
	Name     string
	CallSign string
	Operator string
}

// ContainerVersion is one versioned container row. The snapshot keys
// containers by (cntr_no, created_at), so one container number can
// have multiple rows.
type ContainerVersion struct {
	ContainerID     int64
	CntrNo          string
	Status          string
	VesselID        sql.NullInt64
	OriginPort      string
	DestinationPort string
	CreatedAt       time.Time
}

// VesselAdvice is a vessel advice row. A NULL or future effective end
// means the advice is still active.
type VesselAdvice struct {
	AdviceNo         int64
	VesselName       string
	SystemVesselName string
	EffectiveStart   time.Time
	EffectiveEnd     sql.NullTime
}

// Active reports whether the advice is active at the given instant.
func (a VesselAdvice) Active(now time.Time) bool {
	return !a.EffectiveEnd.Valid || a.EffectiveEnd.Time.After(now)
}

// EDIMessage is an EDI message row (COPARN, COARRI, CODECO, ...).
type EDIMessage struct {
	EDIID       int64
	ContainerID sql.NullInt64
	VesselID    sql.NullInt64
	MessageType string
	Direction   string
	Status      string
	MessageRef  string
	Sender      string
	Receiver    string
	SentAt      time.Time
	ErrorText   string
}

// APIEvent is an API-sourced operational event row.
type APIEvent struct {
	APIID         int64
	ContainerID   sql.NullInt64
	VesselID      sql.NullInt64
	EventType     string
	SourceSystem  string
	HTTPStatus    sql.NullInt64
	CorrelationID string
	EventTS       time.Time
}

// timeLayouts are the timestamp formats accepted from the snapshot.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTime(raw string) (time.Time, error) {
	var err error
	var t time.Time
	for _, layout := range timeLayouts {
		t, err = time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func parseNullTime(raw sql.NullString) (sql.NullTime, error) {
	if !raw.Valid || raw.String == "" {
		return sql.NullTime{}, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}
