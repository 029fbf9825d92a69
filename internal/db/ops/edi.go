package ops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harborops/causeway/pkg/models"
)

const ediSelect = `
	SELECT edi_id, container_id, vessel_id, message_type, direction, status,
	       message_ref, sender, receiver, sent_at, COALESCE(error_text, '')
	FROM edi_message
`

// EDIByReference fetches an EDI message by its reference. Returns
// models.ErrNotFound when the reference is unknown.
func (s *Store) EDIByReference(ctx context.Context, messageRef string) (*EDIMessage, error) {
	query := ediSelect + ` WHERE message_ref = ? LIMIT 1`

	row := s.queryRowContext(ctx, query, messageRef)
	msg, err := scanEDIMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan edi message: %w", err)
	}
	return msg, nil
}

// EDIErrorsInWindow returns messages with ERROR status sent within the
// window, newest first.
func (s *Store) EDIErrorsInWindow(ctx context.Context, start, end time.Time, limit int) ([]EDIMessage, error) {
	query := ediSelect + `
		WHERE status = 'ERROR' AND sent_at BETWEEN ? AND ?
		ORDER BY sent_at DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.queryContext(ctx, query, formatTime(start), formatTime(end), limit)
	if err != nil {
		return nil, fmt.Errorf("query edi errors: %w", err)
	}
	defer rows.Close()

	var messages []EDIMessage
	for rows.Next() {
		msg, err := scanEDIMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func scanEDIMessage(scanner interface{ Scan(...interface{}) error }) (*EDIMessage, error) {
	var (
		msg    EDIMessage
		sentAt string
	)
	if err := scanner.Scan(
		&msg.EDIID, &msg.ContainerID, &msg.VesselID, &msg.MessageType,
		&msg.Direction, &msg.Status, &msg.MessageRef, &msg.Sender,
		&msg.Receiver, &sentAt, &msg.ErrorText,
	); err != nil {
		return nil, err
	}
	t, err := parseTime(sentAt)
	if err != nil {
		return nil, fmt.Errorf("parse edi sent_at: %w", err)
	}
	msg.SentAt = t
	return &msg, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
