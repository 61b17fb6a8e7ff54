package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ziadkadry99/assistd/internal/db"
)

// Store persists events to the analytics_events table.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Insert writes one event.
func (s *Store) Insert(ctx context.Context, e Event) error {
	payload := []byte("{}")
	if e.Payload != nil {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("marshalling payload: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO analytics_events (id, name, ts, payload, created_at) VALUES (?, ?, ?, ?, ?)`),
		e.ID, string(e.Name), e.TS, string(payload), time.Now().UTC().Format(db.TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting analytics event: %w", err)
	}
	return nil
}

// CountByName returns how many events of each name are stored.
func (s *Store) CountByName(ctx context.Context) (map[Name]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, COUNT(*) FROM analytics_events GROUP BY name`)
	if err != nil {
		return nil, fmt.Errorf("counting analytics events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Name]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[Name(name)] = n
	}
	return counts, rows.Err()
}

// List returns stored events newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT id, name, ts, payload FROM analytics_events ORDER BY ts DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing analytics events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e       Event
			name    string
			payload string
		)
		if err := rows.Scan(&e.ID, &name, &e.TS, &payload); err != nil {
			return nil, err
		}
		e.Name = Name(name)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload of %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
