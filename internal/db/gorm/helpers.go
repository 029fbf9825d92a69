package gorm

import (
	"database/sql"
	"net/http"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// flooredCounterExpr builds a usefulness counter update that never
// drops below zero. CASE keeps it portable across SQLite and Postgres.
func flooredCounterExpr(delta int) clause.Expr {
	return gorm.Expr(
		"CASE WHEN usefulness_count + ? < 0 THEN 0 ELSE usefulness_count + ? END",
		delta, delta,
	)
}

// sqlNullInt64 creates a sql.NullInt64 from an id, treating zero as NULL.
func sqlNullInt64(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

// MaxPaginationLimit is the maximum allowed limit for pagination queries.
// This protects against resource exhaustion from excessively large requests.
const MaxPaginationLimit = 1000

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}

// ParseLimitParamWithMax parses the "limit" query parameter with a maximum cap.
// Returns min(parsed, maxLimit) or defaultLimit if missing/invalid.
// If maxLimit is 0, uses MaxPaginationLimit (1000).
func ParseLimitParamWithMax(r *http.Request, defaultLimit, maxLimit int) int {
	if maxLimit <= 0 {
		maxLimit = MaxPaginationLimit
	}
	limit := ParseLimitParam(r, defaultLimit)
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ParseOffsetParam parses the "offset" query parameter from an HTTP request.
// Returns 0 if the parameter is missing or invalid.
func ParseOffsetParam(r *http.Request) int {
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return 0
}
