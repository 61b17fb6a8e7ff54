package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/assistd/internal/db"
)

// ErrNotFound is returned by GetByID for an unknown id.
var ErrNotFound = errors.New("audit record not found")

// Store is the database/sql Sink, with read-side queries for reporting.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts rec.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	userContext, err := json.Marshal(rec.UserContext)
	if err != nil {
		return fmt.Errorf("marshalling user context: %w", err)
	}
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshalling messages: %w", err)
	}
	tools, err := json.Marshal(rec.Tools)
	if err != nil {
		return fmt.Errorf("marshalling tools: %w", err)
	}
	summary, err := json.Marshal(rec.ConfidenceSummary)
	if err != nil {
		return fmt.Errorf("marshalling confidence summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO assistant_audit_logs (
			id, route, user_context, messages, response, tools,
			pii_redactions, confidence, confidence_summary, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID,
		rec.Route,
		string(userContext),
		string(messages),
		rec.Response,
		string(tools),
		rec.PIIRedactions,
		rec.Confidence,
		string(summary),
		rec.CreatedAt.UTC().Format(db.TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, route, user_context, messages, response, tools,
	pii_redactions, confidence, confidence_summary, created_at
	FROM assistant_audit_logs`

// GetByID retrieves a single record.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(selectColumns+" WHERE id = ?"), id)
	rec, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// QueryFilter controls which records Query and Count return.
type QueryFilter struct {
	Route         string
	Since         *time.Time
	Until         *time.Time
	MinRedactions int
	MaxConfidence *float64
	Limit         int
	Offset        int
}

func (f QueryFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Route != "" {
		clauses = append(clauses, "route = ?")
		args = append(args, f.Route)
	}
	if f.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(db.TimeLayout))
	}
	if f.Until != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.Until.UTC().Format(db.TimeLayout))
	}
	if f.MinRedactions > 0 {
		clauses = append(clauses, "pii_redactions >= ?")
		args = append(args, f.MinRedactions)
	}
	if f.MaxConfidence != nil {
		clauses = append(clauses, "confidence <= ?")
		args = append(args, *f.MaxConfidence)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Query returns records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	where, args := filter.where()
	query := selectColumns + where + " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Count returns the number of records matching the filter, ignoring
// Limit and Offset.
func (s *Store) Count(ctx context.Context, filter QueryFilter) (int, error) {
	where, args := filter.where()
	var n int
	err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM assistant_audit_logs"+where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting audit records: %w", err)
	}
	return n, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Record, error) {
	var (
		rec                                      Record
		userContext, messages, tools, summary, ts string
	)
	err := sc.Scan(
		&rec.ID, &rec.Route, &userContext, &messages, &rec.Response, &tools,
		&rec.PIIRedactions, &rec.Confidence, &summary, &ts,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(userContext), &rec.UserContext); err != nil {
		return nil, fmt.Errorf("decoding user context of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(tools), &rec.Tools); err != nil {
		return nil, fmt.Errorf("decoding tools of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(summary), &rec.ConfidenceSummary); err != nil {
		return nil, fmt.Errorf("decoding confidence summary of %s: %w", rec.ID, err)
	}
	if t, err := time.Parse(db.TimeLayout, ts); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}
