package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/memstore"
	"github.com/xavierca1/conduit/internal/infra/queue"
)

type fixture struct {
	store    *memstore.Store
	events   *EventService
	leads    *LeadService
	messages *MessageService
	queue    *fakeEnqueuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithEvents(t, nil)
}

func newFixtureWithEvents(t *testing.T, eventRepo EventRepository) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	if eventRepo == nil {
		eventRepo = store.Events
	}

	events := NewEventService(eventRepo, nil, logger)
	leads := NewLeadService(store.Leads, store.Messages, store.Jobs, events, logger)
	q := &fakeEnqueuer{}
	messages := NewMessageService(store.Messages, leads, q, events, logger)
	return &fixture{store: store, events: events, leads: leads, messages: messages, queue: q}
}

func (f *fixture) lead(t *testing.T, status entity.LeadStatus) *entity.Lead {
	t.Helper()
	lead, err := f.leads.Create(context.Background(), CreateLeadInput{Name: "Ana Souza", Email: "ana@example.com"})
	require.NoError(t, err)
	if status != entity.LeadStatusNew {
		require.NoError(t, f.leads.Transition(context.Background(), lead.ID, status, "setup"))
	}
	return lead
}

func (f *fixture) eventTypes(t *testing.T, leadID string) []entity.EventType {
	t.Helper()
	evs, err := f.store.Events.ListByLead(context.Background(), leadID)
	require.NoError(t, err)
	out := make([]entity.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func countEvents(types []entity.EventType, want entity.EventType) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}

type enqueued struct {
	Kind    string
	Payload any
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueued
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, kind string, payload any, _ ...queue.EnqueueOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, enqueued{Kind: kind, Payload: payload})
	return "job-" + kind, nil
}

// MockEventRepository fails writes on demand.
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, e *entity.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepository) ListByLead(ctx context.Context, leadID string) ([]*entity.Event, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Event), args.Error(1)
}

var errDatabaseDown = errors.New("connection refused")
