package ops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harborops/causeway/pkg/models"
)

// VesselByName looks a vessel up by name, case-insensitive partial
// match. Returns models.ErrNotFound when nothing matches.
func (s *Store) VesselByName(ctx context.Context, name string) (*Vessel, error) {
	const query = `
		SELECT vessel_id, imo_no, vessel_name, COALESCE(call_sign, ''), COALESCE(operator_name, '')
		FROM vessel
		WHERE vessel_name LIKE '%' || ? || '%' COLLATE NOCASE
		LIMIT 1
	`
	return s.scanVessel(s.queryRowContext(ctx, query, name))
}

// VesselByIMO looks a vessel up by IMO number.
func (s *Store) VesselByIMO(ctx context.Context, imoNo int64) (*Vessel, error) {
	const query = `
		SELECT vessel_id, imo_no, vessel_name, COALESCE(call_sign, ''), COALESCE(operator_name, '')
		FROM vessel
		WHERE imo_no = ?
	`
	return s.scanVessel(s.queryRowContext(ctx, query, imoNo))
}

func (s *Store) scanVessel(row *sql.Row) (*Vessel, error) {
	var v Vessel
	err := row.Scan(&v.VesselID, &v.IMONo, &v.Name, &v.CallSign, &v.Operator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan vessel: %w", err)
	}
	return &v, nil
}

// VesselAdvices returns all advice rows for a system vessel name,
// newest effective start first, historical rows included.
func (s *Store) VesselAdvices(ctx context.Context, systemVesselName string) ([]VesselAdvice, error) {
	const query = `
		SELECT vessel_advice_no, vessel_name, system_vessel_name,
		       effective_start_datetime, effective_end_datetime
		FROM vessel_advice
		WHERE system_vessel_name = ?
		ORDER BY effective_start_datetime DESC
	`

	rows, err := s.queryContext(ctx, query, systemVesselName)
	if err != nil {
		return nil, fmt.Errorf("query vessel advices: %w", err)
	}
	defer rows.Close()

	var advices []VesselAdvice
	for rows.Next() {
		var (
			a     VesselAdvice
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&a.AdviceNo, &a.VesselName, &a.SystemVesselName, &start, &end); err != nil {
			return nil, err
		}
		startT, err := parseTime(start)
		if err != nil {
			return nil, fmt.Errorf("parse advice effective start: %w", err)
		}
		a.EffectiveStart = startT
		a.EffectiveEnd, err = parseNullTime(end)
		if err != nil {
			return nil, fmt.Errorf("parse advice effective end: %w", err)
		}
		advices = append(advices, a)
	}
	return advices, rows.Err()
}

// BerthApplicationCount counts live berth applications referencing an
// advice. Soft-deleted applications are excluded.
func (s *Store) BerthApplicationCount(ctx context.Context, adviceNo int64) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM berth_application
		WHERE vessel_advice_no = ? AND deleted = 'N'
	`

	var count int
	if err := s.queryRowContext(ctx, query, adviceNo).Scan(&count); err != nil {
		return 0, fmt.Errorf("count berth applications: %w", err)
	}
	return count, nil
}
