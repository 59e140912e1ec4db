package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/conduit/internal/entity"
)

func TestCreateLead(t *testing.T) {
	f := newFixture(t)

	lead, err := f.leads.Create(context.Background(), CreateLeadInput{Name: " Ana ", Phone: "+55 11 99999-9999", Metadata: map[string]any{"source": "webinar"}})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "Ana", lead.Name)
	assert.Equal(t, entity.LeadStatusNew, lead.Status)
	assert.Equal(t, []entity.EventType{entity.EventLeadCreated}, f.eventTypes(t, lead.ID))
}

func TestCreateLeadValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.leads.Create(context.Background(), CreateLeadInput{Name: "", Email: "not-an-email"})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrValidation)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)

	_, err = f.leads.Create(context.Background(), CreateLeadInput{Name: "Ana"})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestTransitionMovesForwardAndRecordsEvent(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, entity.LeadStatusNew)

	require.NoError(t, f.leads.Transition(context.Background(), lead.ID, entity.LeadStatusContacted, "First message sent"))

	got, err := f.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusContacted, got.Status)

	evs, err := f.store.Events.ListByLead(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, entity.EventLeadStatusChanged, evs[0].Type)
	assert.Equal(t, entity.LeadStatusNew, evs[0].Payload["old_status"])
	assert.Equal(t, entity.LeadStatusContacted, evs[0].Payload["new_status"])
	assert.Equal(t, "First message sent", evs[0].Payload["reason"])
}

func TestTransitionRejectsRegression(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, entity.LeadStatusReplied)
	before := len(f.eventTypes(t, lead.ID))

	err := f.leads.Transition(context.Background(), lead.ID, entity.LeadStatusContacted, "oops")
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	var terr *entity.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, entity.LeadStatusReplied, terr.From)

	err = f.leads.Transition(context.Background(), lead.ID, entity.LeadStatusReplied, "again")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	assert.Len(t, f.eventTypes(t, lead.ID), before)
}

func TestTransitionUnknownLead(t *testing.T) {
	f := newFixture(t)
	err := f.leads.Transition(context.Background(), "00000000-0000-0000-0000-000000000000", entity.LeadStatusContacted, "x")
	assert.ErrorIs(t, err, entity.ErrLeadNotFound)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestConcurrentTransitionsNeverRegress(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, entity.LeadStatusNew)
	targets := []entity.LeadStatus{entity.LeadStatusContacted, entity.LeadStatusReplied, entity.LeadStatusEngaged}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(target entity.LeadStatus) {
			defer wg.Done()
			_ = f.leads.Transition(context.Background(), lead.ID, target, "race")
		}(targets[i%len(targets)])
	}
	wg.Wait()

	got, err := f.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusEngaged, got.Status)

	evs, err := f.store.Events.ListByLead(context.Background(), lead.ID)
	require.NoError(t, err)
	// Replay oldest first: every recorded move starts where the previous one ended.
	current := entity.LeadStatusNew
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type != entity.EventLeadStatusChanged {
			continue
		}
		assert.Equal(t, current, evs[i].Payload["old_status"])
		next := evs[i].Payload["new_status"].(entity.LeadStatus)
		assert.True(t, current.CanTransitionTo(next))
		current = next
	}
	assert.Equal(t, entity.LeadStatusEngaged, current)
}

func TestAdvanceOnlyFromListedStatuses(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, entity.LeadStatusEngaged)

	moved, err := f.leads.Advance(context.Background(), lead.ID,
		[]entity.LeadStatus{entity.LeadStatusNew, entity.LeadStatusContacted}, entity.LeadStatusReplied, "Prospect replied")
	require.NoError(t, err)
	assert.False(t, moved)

	other := f.lead(t, entity.LeadStatusContacted)
	moved, err = f.leads.Advance(context.Background(), other.ID,
		[]entity.LeadStatus{entity.LeadStatusNew, entity.LeadStatusContacted}, entity.LeadStatusReplied, "Prospect replied")
	require.NoError(t, err)
	assert.True(t, moved)
}

func TestTimelineIsNewestFirst(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, entity.LeadStatusNew)

	first, err := f.messages.Create(context.Background(), lead.ID, entity.ChannelEmail, entity.DirectionOutbound, "first")
	require.NoError(t, err)
	second, err := f.messages.Create(context.Background(), lead.ID, entity.ChannelChat, entity.DirectionInbound, "second")
	require.NoError(t, err)
	require.NoError(t, f.store.Jobs.Create(context.Background(), &entity.Job{LeadID: lead.ID, Name: entity.JobSendMessage, Status: entity.JobStatusActive}))

	tl, err := f.leads.Timeline(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, tl.Lead.ID)
	require.Len(t, tl.Messages, 2)
	assert.Equal(t, second.ID, tl.Messages[0].ID)
	assert.Equal(t, first.ID, tl.Messages[1].ID)
	assert.Len(t, tl.Jobs, 1)
	assert.Equal(t, entity.EventMessageQueued, tl.Events[0].Type)
	assert.Equal(t, entity.EventLeadCreated, tl.Events[len(tl.Events)-1].Type)
}

func TestTimelineUnknownLead(t *testing.T) {
	f := newFixture(t)
	_, err := f.leads.Timeline(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, entity.ErrLeadNotFound)
}

func TestEventFailureDoesNotBlockTransition(t *testing.T) {
	events := &MockEventRepository{}
	events.On("Create", mock.Anything, mock.Anything).Return(errDatabaseDown)
	f := newFixtureWithEvents(t, events)

	lead, err := f.leads.Create(context.Background(), CreateLeadInput{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	require.NoError(t, f.leads.Transition(context.Background(), lead.ID, entity.LeadStatusContacted, "First message sent"))

	got, err := f.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusContacted, got.Status)
	events.AssertNumberOfCalls(t, "Create", 2)
}
