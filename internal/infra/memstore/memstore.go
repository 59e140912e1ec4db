// Package memstore keeps leads, messages, jobs and events in process memory.
// It backs tests and the dev command.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xavierca1/conduit/internal/entity"
)

type Store struct {
	Leads    *LeadRepository
	Messages *MessageRepository
	Jobs     *JobRepository
	Events   *EventRepository
}

func New() *Store {
	return &Store{
		Leads:    &LeadRepository{rows: map[string]*entity.Lead{}},
		Messages: &MessageRepository{rows: map[string]*row[entity.Message]{}},
		Jobs:     &JobRepository{rows: map[string]*row[entity.Job]{}},
		Events:   &EventRepository{},
	}
}

// row remembers insertion order so equal timestamps still sort newest first.
type row[T any] struct {
	seq int
	v   T
}

func now() time.Time {
	return time.Now().UTC()
}

type LeadRepository struct {
	mu   sync.Mutex
	rows map[string]*entity.Lead
}

func (r *LeadRepository) Create(_ context.Context, lead *entity.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	t := now()
	lead.CreatedAt, lead.UpdatedAt = t, t
	cp := *lead
	r.rows[lead.ID] = &cp
	return nil
}

func (r *LeadRepository) FindByID(_ context.Context, id string) (*entity.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.rows[id]
	if !ok {
		return nil, entity.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *LeadRepository) UpdateStatus(_ context.Context, id string, from, to entity.LeadStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.rows[id]
	if !ok {
		return false, entity.ErrLeadNotFound
	}
	if l.Status != from {
		return false, nil
	}
	l.Status = to
	l.UpdatedAt = now()
	return true, nil
}

type MessageRepository struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*row[entity.Message]
}

func (r *MessageRepository) Create(_ context.Context, m *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now()
	r.seq++
	r.rows[m.ID] = &row[entity.Message]{seq: r.seq, v: *m}
	return nil
}

func (r *MessageRepository) FindByID(_ context.Context, id string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok {
		return nil, entity.ErrMessageNotFound
	}
	cp := m.v
	return &cp, nil
}

func (r *MessageRepository) MarkSent(_ context.Context, id string, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok {
		return false, entity.ErrMessageNotFound
	}
	if m.v.Status != entity.MessageStatusQueued {
		return false, nil
	}
	m.v.Status = entity.MessageStatusSent
	m.v.SentAt = &sentAt
	return true, nil
}

func (r *MessageRepository) MarkFailed(_ context.Context, id, errText string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rows[id]
	if !ok {
		return false, entity.ErrMessageNotFound
	}
	if m.v.Status != entity.MessageStatusQueued {
		return false, nil
	}
	m.v.Status = entity.MessageStatusFailed
	m.v.Error = errText
	return true, nil
}

func (r *MessageRepository) ListByLead(_ context.Context, leadID string, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*row[entity.Message]
	for _, m := range r.rows {
		if m.v.LeadID == leadID {
			rows = append(rows, m)
		}
	}
	sortNewestFirst(rows, func(m entity.Message) time.Time { return m.CreatedAt })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]*entity.Message, len(rows))
	for i, m := range rows {
		cp := m.v
		out[i] = &cp
	}
	return out, nil
}

type JobRepository struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*row[entity.Job]
}

func (r *JobRepository) Create(_ context.Context, j *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.CreatedAt = now()
	r.seq++
	r.rows[j.ID] = &row[entity.Job]{seq: r.seq, v: *j}
	return nil
}

func (r *JobRepository) Update(_ context.Context, j *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[j.ID]
	if !ok {
		return entity.ErrNotFound
	}
	cur.v.Status = j.Status
	cur.v.Attempts = j.Attempts
	cur.v.Error = j.Error
	cur.v.CompletedAt = j.CompletedAt
	return nil
}

func (r *JobRepository) ListByLead(_ context.Context, leadID string) ([]*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*row[entity.Job]
	for _, j := range r.rows {
		if j.v.LeadID == leadID {
			rows = append(rows, j)
		}
	}
	sortNewestFirst(rows, func(j entity.Job) time.Time { return j.CreatedAt })

	out := make([]*entity.Job, len(rows))
	for i, j := range rows {
		cp := j.v
		out[i] = &cp
	}
	return out, nil
}

// EventRepository is append-only, like its Postgres counterpart.
type EventRepository struct {
	mu     sync.Mutex
	events []entity.Event
}

func (r *EventRepository) Create(_ context.Context, e *entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *EventRepository) ListByLead(_ context.Context, leadID string) ([]*entity.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Event
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].LeadID == leadID {
			cp := r.events[i]
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	return out, nil
}

func sortNewestFirst[T any](rows []*row[T], at func(T) time.Time) {
	sort.Slice(rows, func(a, b int) bool {
		ta, tb := at(rows[a].v), at(rows[b].v)
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return rows[a].seq > rows[b].seq
	})
}
