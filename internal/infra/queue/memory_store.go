package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const staleClaimError = "claim went stale: worker stopped reporting"

// MemoryStore keeps jobs in process. It backs tests and the dev command;
// nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	order  []string
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Insert(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusCreated
	}
	s.jobs[job.ID] = job.clone()
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, req ClaimRequest) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	for _, id := range s.sorted() {
		j := s.jobs[id]
		if j.Kind != req.Kind || (j.Status != StatusCreated && j.Status != StatusRetry) {
			continue
		}
		if j.StartAfter.After(req.Now) || !j.CreatedAt.After(req.CreatedAfter) {
			continue
		}

		now := req.Now
		j.Status = StatusActive
		j.Attempts++
		j.StartedAt = &now
		return j.clone(), nil
	}
	return nil, ErrNoJob
}

func (s *MemoryStore) Complete(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusActive {
		return ErrJobNotActive
	}
	j.Status = StatusCompleted
	j.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, req FailRequest) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[req.ID]
	if !ok {
		return "", ErrJobNotFound
	}
	if j.Status != StatusActive {
		return "", ErrJobNotActive
	}

	j.LastError = req.Error
	if req.Dead || j.Attempts >= j.MaxAttempts {
		now := req.Now
		j.Status = StatusFailed
		j.CompletedAt = &now
	} else {
		j.Status = StatusRetry
		j.StartAfter = req.RetryAt
	}
	return j.Status, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.clone(), nil
}

func (s *MemoryStore) Expire(_ context.Context, cutoff, now time.Time) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, id := range s.sorted() {
		j := s.jobs[id]
		if (j.Status != StatusCreated && j.Status != StatusRetry) || j.CreatedAt.After(cutoff) {
			continue
		}
		t := now
		j.Status = StatusExpired
		j.CompletedAt = &t
		if j.LastError == "" {
			j.LastError = "expired"
		}
		out = append(out, j.clone())
	}
	return out, nil
}

func (s *MemoryStore) RequeueStale(_ context.Context, cutoff, now time.Time) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, id := range s.sorted() {
		j := s.jobs[id]
		if j.Status != StatusActive || j.StartedAt == nil || j.StartedAt.After(cutoff) {
			continue
		}
		j.LastError = staleClaimError
		if j.Attempts >= j.MaxAttempts {
			t := now
			j.Status = StatusFailed
			j.CompletedAt = &t
		} else {
			j.Status = StatusRetry
			j.StartAfter = now
		}
		out = append(out, j.clone())
	}
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status == StatusCompleted && j.CompletedAt != nil && !j.CompletedAt.After(cutoff) {
			delete(s.jobs, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// sorted returns ids oldest first; insertion order breaks ties.
func (s *MemoryStore) sorted() []string {
	ids := append([]string(nil), s.order...)
	sort.SliceStable(ids, func(a, b int) bool {
		return s.jobs[ids[a]].CreatedAt.Before(s.jobs[ids[b]].CreatedAt)
	})
	return ids
}
