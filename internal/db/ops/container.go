package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ContainerVersions returns all versioned rows for a container number,
// newest first. The snapshot keeps one row per (cntr_no, created_at).
func (s *Store) ContainerVersions(ctx context.Context, cntrNo string) ([]ContainerVersion, error) {
	const query = `
		SELECT container_id, cntr_no, status, vessel_id, origin_port, destination_port, created_at
		FROM container
		WHERE cntr_no = ?
		ORDER BY created_at DESC
	`

	rows, err := s.queryContext(ctx, query, strings.ToUpper(cntrNo))
	if err != nil {
		return nil, fmt.Errorf("query container versions: %w", err)
	}
	defer rows.Close()

	return scanContainerRows(rows)
}

func scanContainerRows(rows *sql.Rows) ([]ContainerVersion, error) {
	var versions []ContainerVersion
	for rows.Next() {
		var (
			c         ContainerVersion
			createdAt string
		)
		if err := rows.Scan(
			&c.ContainerID, &c.CntrNo, &c.Status, &c.VesselID,
			&c.OriginPort, &c.DestinationPort, &createdAt,
		); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse container created_at: %w", err)
		}
		c.CreatedAt = t
		versions = append(versions, c)
	}
	return versions, rows.Err()
}
