package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store abstracts CRUD over stored publications. The core has no
// preference for storage engine; concrete drivers (relational, document,
// graph) live under the sibling store/ packages and register themselves
// through Driver/RegisterDriver below, the same way database/sql drivers
// register themselves.
type Store interface {
	// Create inserts pub exactly once; returns ErrPublicationExists if id
	// collides.
	Create(ctx context.Context, pub *EventPublication) error
	// MarkCompleted sets completedAt/status=COMPLETED for the publication
	// matching (eventIdentity, target). No-op if already completed.
	MarkCompleted(ctx context.Context, eventIdentity string, target PublicationTargetIdentifier, at time.Time) error
	// MarkFailed sets a terminal FAILED status on the publication with id.
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
	// FindIncomplete returns every publication with a nil CompletedAt,
	// ordered by PublishedAt ascending.
	FindIncomplete(ctx context.Context) ([]*EventPublication, error)
	// FindIncompletePublishedBefore is FindIncomplete filtered to
	// PublishedAt < before.
	FindIncompletePublishedBefore(ctx context.Context, before time.Time) ([]*EventPublication, error)
	// FindIncompleteByEventAndTarget returns zero or one publication; when
	// duplicate payloads produced more than one match, the oldest is
	// returned.
	FindIncompleteByEventAndTarget(ctx context.Context, eventIdentity string, target PublicationTargetIdentifier) (*EventPublication, error)
	// DeleteByIDs removes the named publications.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
	// DeleteCompletedBefore removes every COMPLETED publication with
	// CompletedAt < before.
	DeleteCompletedBefore(ctx context.Context, before time.Time) error
}

// Driver constructs a Store from a DSN, mirroring database/sql's driver
// registration pattern so storage backends remain pluggable (relational,
// document, graph) without the core importing any of them directly.
type Driver interface {
	// Name returns the driver identifier used in configuration, e.g.
	// "postgres", "mongodb", "neo4j".
	Name() string
	// Open establishes a Store backed by dsn.
	Open(ctx context.Context, dsn string) (Store, error)
}

var registry = map[string]Driver{}

// RegisterDriver makes a Store driver available by name. Intended to be
// called from a driver package's init function, mirroring
// database/sql.Register.
func RegisterDriver(d Driver) {
	if d == nil {
		panic("event: RegisterDriver driver is nil")
	}
	name := d.Name()
	if name == "" {
		panic("event: RegisterDriver driver name is empty")
	}
	if _, exists := registry[name]; exists {
		panic("event: RegisterDriver called twice for driver " + name)
	}
	registry[name] = d
}

// OpenStore looks up the named driver and opens a Store with dsn.
func OpenStore(ctx context.Context, driverName, dsn string) (Store, error) {
	d, ok := registry[driverName]
	if !ok {
		return nil, &UnknownDriverError{Name: driverName}
	}
	return d.Open(ctx, dsn)
}

// UnknownDriverError is returned by OpenStore when driverName was never
// registered.
type UnknownDriverError struct{ Name string }

func (e *UnknownDriverError) Error() string {
	return "event: unknown store driver " + e.Name
}
