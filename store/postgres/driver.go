// Package postgres implements event.Store over PostgreSQL, using pgx as
// the underlying database/sql driver, grounded in the teacher's
// data/postgres driver. It registers itself with the event package when
// imported:
//
//	import _ "github.com/ncobase/modulith/store/postgres"
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/google/uuid"

	"github.com/ncobase/modulith/event"
)

// Schema is the reference DDL for the event_publication table. Exposed so
// operators and migration tooling can create it; this package never runs
// DDL itself.
const Schema = `
CREATE TABLE IF NOT EXISTS event_publication (
	id UUID PRIMARY KEY,
	listener_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	serialized_event TEXT NOT NULL,
	publication_date TIMESTAMPTZ NOT NULL,
	completion_date TIMESTAMPTZ NULL,
	status TEXT NULL,
	completion_attempts INT NULL,
	last_resubmission_date TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS idx_event_publication_listener_event ON event_publication (listener_id, serialized_event);
CREATE INDEX IF NOT EXISTS idx_event_publication_completion_date ON event_publication (completion_date);
`

type driver struct{}

func (d *driver) Name() string { return "postgres" }

func (d *driver) Open(ctx context.Context, dsn string) (event.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func init() {
	event.RegisterDriver(&driver{})
}

// Store implements event.Store over a *sql.DB connected through pgx.
type Store struct {
	db *sql.DB
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, pub *event.EventPublication) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_publication
			(id, listener_id, event_type, serialized_event, publication_date, status, completion_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pub.ID, pub.Target.String(), pub.EventType, pub.SerializedEvent, pub.PublishedAt, string(pub.Status), pub.Attempts)
	if err != nil {
		if isUniqueViolation(err) {
			return event.ErrPublicationExists
		}
		return fmt.Errorf("postgres: create publication: %w", err)
	}
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, eventIdentity string, target event.PublicationTargetIdentifier, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE event_publication
		SET completion_date = $1, status = $2
		WHERE id = (
			SELECT id FROM event_publication
			WHERE serialized_event = $3 AND listener_id = $4 AND completion_date IS NULL
			ORDER BY publication_date ASC
			LIMIT 1
		)`,
		at, string(event.StatusCompleted), eventIdentity, target.String())
	if err != nil {
		return fmt.Errorf("postgres: mark completed: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE event_publication
		SET status = $1, completion_attempts = COALESCE(completion_attempts, 0) + 1, last_resubmission_date = $2
		WHERE id = $3`,
		string(event.StatusFailed), at, id)
	if err != nil {
		return fmt.Errorf("postgres: mark failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: mark failed: %w", err)
	}
	if n == 0 {
		return event.ErrPublicationNotFound
	}
	return nil
}

func (s *Store) FindIncomplete(ctx context.Context) ([]*event.EventPublication, error) {
	return s.query(ctx, `
		SELECT id, listener_id, event_type, serialized_event, publication_date, completion_date, status, completion_attempts, last_resubmission_date
		FROM event_publication
		WHERE completion_date IS NULL
		ORDER BY publication_date ASC`)
}

func (s *Store) FindIncompletePublishedBefore(ctx context.Context, before time.Time) ([]*event.EventPublication, error) {
	return s.query(ctx, `
		SELECT id, listener_id, event_type, serialized_event, publication_date, completion_date, status, completion_attempts, last_resubmission_date
		FROM event_publication
		WHERE completion_date IS NULL AND publication_date < $1
		ORDER BY publication_date ASC`, before)
}

func (s *Store) FindIncompleteByEventAndTarget(ctx context.Context, eventIdentity string, target event.PublicationTargetIdentifier) (*event.EventPublication, error) {
	pubs, err := s.query(ctx, `
		SELECT id, listener_id, event_type, serialized_event, publication_date, completion_date, status, completion_attempts, last_resubmission_date
		FROM event_publication
		WHERE completion_date IS NULL AND serialized_event = $1 AND listener_id = $2
		ORDER BY publication_date ASC
		LIMIT 1`, eventIdentity, target.String())
	if err != nil {
		return nil, err
	}
	if len(pubs) == 0 {
		return nil, nil
	}
	return pubs[0], nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM event_publication WHERE id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return fmt.Errorf("postgres: delete by ids: %w", err)
	}
	return nil
}

func (s *Store) DeleteCompletedBefore(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_publication WHERE completion_date IS NOT NULL AND completion_date < $1`, before)
	if err != nil {
		return fmt.Errorf("postgres: delete completed before: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, sqlStr string, args ...any) ([]*event.EventPublication, error) {
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var out []*event.EventPublication
	for rows.Next() {
		var (
			id                uuid.UUID
			listenerID        string
			eventType         string
			serializedEvent   string
			publicationDate   time.Time
			completionDate    sql.NullTime
			status            sql.NullString
			attempts          sql.NullInt64
			lastResubmission  sql.NullTime
		)
		if err := rows.Scan(&id, &listenerID, &eventType, &serializedEvent, &publicationDate, &completionDate, &status, &attempts, &lastResubmission); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}

		target, err := event.NewPublicationTargetIdentifier(listenerID)
		if err != nil {
			return nil, fmt.Errorf("postgres: invalid stored listener_id %q: %w", listenerID, err)
		}
		pub := event.NewEventPublication(id, eventType, serializedEvent, target, publicationDate, 0)
		if completionDate.Valid {
			pub.CompletedAt = &completionDate.Time
		}
		if status.Valid {
			pub.Status = event.Status(status.String)
		}
		if attempts.Valid {
			pub.Attempts = int(attempts.Int64)
		}
		if lastResubmission.Valid {
			pub.LastResubmittedAt = &lastResubmission.Time
		}
		out = append(out, pub)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint")
}
