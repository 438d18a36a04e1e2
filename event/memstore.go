package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store, useful for tests and as a reference
// implementation of the Store contract. It is safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*EventPublication
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[uuid.UUID]*EventPublication)}
}

func (s *MemStore) Create(ctx context.Context, pub *EventPublication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[pub.ID]; exists {
		return ErrPublicationExists
	}
	cp := *pub
	s.byID[pub.ID] = &cp
	return nil
}

func (s *MemStore) MarkCompleted(ctx context.Context, eventIdentity string, target PublicationTargetIdentifier, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := s.findIncompleteLocked(eventIdentity, target)
	if match == nil {
		return nil // idempotent: nothing left to complete
	}
	match.MarkCompleted(at)
	return nil
}

func (s *MemStore) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.byID[id]
	if !ok {
		return ErrPublicationNotFound
	}
	pub.MarkFailed(at)
	return nil
}

func (s *MemStore) FindIncomplete(ctx context.Context) ([]*EventPublication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*EventPublication
	for _, p := range s.byID {
		if p.CompletedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	sortByPublishedAt(out)
	return out, nil
}

func (s *MemStore) FindIncompletePublishedBefore(ctx context.Context, before time.Time) ([]*EventPublication, error) {
	all, err := s.FindIncomplete(ctx)
	if err != nil {
		return nil, err
	}
	var out []*EventPublication
	for _, p := range all {
		if p.PublishedAt.Before(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemStore) FindIncompleteByEventAndTarget(ctx context.Context, eventIdentity string, target PublicationTargetIdentifier) (*EventPublication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := s.findIncompleteLocked(eventIdentity, target)
	if match == nil {
		return nil, nil
	}
	cp := *match
	return &cp, nil
}

// findIncompleteLocked returns the oldest incomplete publication matching
// (eventIdentity, target); callers must hold s.mu.
func (s *MemStore) findIncompleteLocked(eventIdentity string, target PublicationTargetIdentifier) *EventPublication {
	var oldest *EventPublication
	for _, p := range s.byID {
		if p.CompletedAt != nil {
			continue
		}
		if p.SerializedEvent != eventIdentity || !p.Target.Equal(target) {
			continue
		}
		if oldest == nil || p.PublishedAt.Before(oldest.PublishedAt) ||
			(p.PublishedAt.Equal(oldest.PublishedAt) && p.sequence < oldest.sequence) {
			oldest = p
		}
	}
	return oldest
}

func (s *MemStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.byID, id)
	}
	return nil
}

func (s *MemStore) DeleteCompletedBefore(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.byID {
		if p.CompletedAt != nil && p.CompletedAt.Before(before) {
			delete(s.byID, id)
		}
	}
	return nil
}

func sortByPublishedAt(pubs []*EventPublication) {
	sort.SliceStable(pubs, func(i, j int) bool {
		if pubs[i].PublishedAt.Equal(pubs[j].PublishedAt) {
			return pubs[i].sequence < pubs[j].sequence
		}
		return pubs[i].PublishedAt.Before(pubs[j].PublishedAt)
	})
}

var _ Store = (*MemStore)(nil)
