package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DBLogger appends audit records to the shared relational store.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit writer.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log appends one record.
func (l *DBLogger) Log(ctx context.Context, record *Record) error {
	stamp(ctx, record)

	var detailsJSON, impactJSON []byte
	var err error
	if record.Details != nil {
		if detailsJSON, err = json.Marshal(record.Details); err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}
	if record.Impact != nil {
		if impactJSON, err = json.Marshal(record.Impact); err != nil {
			return fmt.Errorf("failed to marshal audit impact: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, details, impact, super_admin, ip_address, user_agent, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = l.db.QueryRowContext(ctx, query,
		record.ActorID, record.Action, record.EntityType, record.EntityID,
		detailsJSON, impactJSON, record.SuperAdmin, record.IPAddress,
		record.UserAgent, record.RequestID, record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Close is a no-op: the pool is owned by the caller.
func (l *DBLogger) Close() error { return nil }

// Search runs a filtered query over the trail, newest first.
func (l *DBLogger) Search(ctx context.Context, f Filters) ([]Record, error) {
	var conditions []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, clause+" $"+strconv.Itoa(len(args)))
	}

	if f.ActorID != 0 {
		add("actor_id =", f.ActorID)
	}
	if f.Action != "" {
		add("action =", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type =", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id =", f.EntityID)
	}
	if f.SuperOnly {
		conditions = append(conditions, "super_admin = TRUE")
	}
	if !f.From.IsZero() {
		add("created_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <=", f.To)
	}

	query := `SELECT id, actor_id, action, entity_type, entity_id, details, impact, super_admin, ip_address, user_agent, request_id, created_at FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit trail: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var entityType, entityID, ipAddress, userAgent, requestID sql.NullString
		var details, impact []byte
		if err := rows.Scan(
			&r.ID, &r.ActorID, &r.Action, &entityType, &entityID,
			&details, &impact, &r.SuperAdmin, &ipAddress, &userAgent, &requestID, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		r.EntityType = entityType.String
		r.EntityID = entityID.String
		r.IPAddress = ipAddress.String
		r.UserAgent = userAgent.String
		r.RequestID = requestID.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		if len(impact) > 0 {
			var impactDoc map[string]interface{}
			if err := json.Unmarshal(impact, &impactDoc); err != nil {
				return nil, fmt.Errorf("failed to decode audit impact: %w", err)
			}
			r.Impact = impactDoc
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes records past the retention horizon and reports how
// many went.
func (l *DBLogger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit trail: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
