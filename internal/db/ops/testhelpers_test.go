package ops

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// newStoreFromDB creates a Store from an existing database connection for testing.
func newStoreFromDB(db *sql.DB) *Store {
	return &Store{
		db:        db,
		stmtCache: make(map[string]*sql.Stmt),
	}
}

// testSnapshot creates a temporary snapshot database with the
// operational schema. Returns the store and a cleanup function.
func testSnapshot(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "causeway-ops-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	db, err := sql.Open("sqlite", tmpDir+"/snapshot.db")
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}

	createSnapshotTables(t, db)

	store := newStoreFromDB(db)
	cleanup := func() {
		_ = store.Close()
		_ = os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func createSnapshotTables(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		`CREATE TABLE vessel (
			vessel_id INTEGER PRIMARY KEY AUTOINCREMENT,
			imo_no INTEGER UNIQUE NOT NULL,
			vessel_name TEXT NOT NULL,
			call_sign TEXT,
			operator_name TEXT
		)`,
		`CREATE TABLE container (
			container_id INTEGER,
			cntr_no TEXT NOT NULL,
			status TEXT NOT NULL,
			vessel_id INTEGER,
			origin_port TEXT NOT NULL,
			destination_port TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (cntr_no, created_at)
		)`,
		`CREATE TABLE vessel_advice (
			vessel_advice_no INTEGER PRIMARY KEY AUTOINCREMENT,
			vessel_name TEXT NOT NULL,
			system_vessel_name TEXT NOT NULL,
			effective_start_datetime TEXT NOT NULL,
			effective_end_datetime TEXT
		)`,
		`CREATE TABLE berth_application (
			application_no INTEGER PRIMARY KEY AUTOINCREMENT,
			vessel_advice_no INTEGER NOT NULL,
			deleted TEXT NOT NULL DEFAULT 'N'
		)`,
		`CREATE TABLE edi_message (
			edi_id INTEGER PRIMARY KEY AUTOINCREMENT,
			container_id INTEGER,
			vessel_id INTEGER,
			message_type TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			message_ref TEXT NOT NULL,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			sent_at TEXT NOT NULL,
			error_text TEXT
		)`,
		`CREATE TABLE api_event (
			api_id INTEGER PRIMARY KEY AUTOINCREMENT,
			container_id INTEGER,
			vessel_id INTEGER,
			event_type TEXT NOT NULL,
			source_system TEXT NOT NULL,
			http_status INTEGER,
			correlation_id TEXT,
			event_ts TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create snapshot table: %v", err)
		}
	}
}

func seedVessel(t *testing.T, s *Store, imoNo int64, name, operator string) int64 {
	t.Helper()

	res, err := s.db.Exec(
		`INSERT INTO vessel (imo_no, vessel_name, call_sign, operator_name) VALUES (?, ?, '', ?)`,
		imoNo, name, operator,
	)
	if err != nil {
		t.Fatalf("seed vessel: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func seedContainer(t *testing.T, s *Store, containerID int64, cntrNo, status string, createdAt time.Time) {
	t.Helper()

	_, err := s.db.Exec(
		`INSERT INTO container (container_id, cntr_no, status, vessel_id, origin_port, destination_port, created_at)
		 VALUES (?, ?, ?, 1, 'CNSHA', 'SGSIN', ?)`,
		containerID, cntrNo, status, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("seed container: %v", err)
	}
}

func seedAdvice(t *testing.T, s *Store, systemName string, start time.Time, end *time.Time) int64 {
	t.Helper()

	var endVal any
	if end != nil {
		endVal = end.UTC().Format(time.RFC3339)
	}
	res, err := s.db.Exec(
		`INSERT INTO vessel_advice (vessel_name, system_vessel_name, effective_start_datetime, effective_end_datetime)
		 VALUES (?, ?, ?, ?)`,
		systemName, systemName, start.UTC().Format(time.RFC3339), endVal,
	)
	if err != nil {
		t.Fatalf("seed advice: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func seedEDIMessage(t *testing.T, s *Store, messageRef, msgType, status, errorText string, sentAt time.Time) {
	t.Helper()

	_, err := s.db.Exec(
		`INSERT INTO edi_message (message_type, direction, status, message_ref, sender, receiver, sent_at, error_text)
		 VALUES (?, 'IN', ?, ?, 'PARTNER-A', 'PORT', ?, ?)`,
		msgType, status, messageRef, sentAt.UTC().Format(time.RFC3339), errorText,
	)
	if err != nil {
		t.Fatalf("seed edi message: %v", err)
	}
}

func seedAPIEvent(t *testing.T, s *Store, eventType, sourceSystem string, httpStatus int, correlationID string, eventTS time.Time) {
	t.Helper()

	_, err := s.db.Exec(
		`INSERT INTO api_event (event_type, source_system, http_status, correlation_id, event_ts)
		 VALUES (?, ?, ?, ?, ?)`,
		eventType, sourceSystem, httpStatus, correlationID, eventTS.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("seed api event: %v", err)
	}
}
