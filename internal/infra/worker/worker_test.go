package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/conduit/internal/config"
	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/ai"
	"github.com/xavierca1/conduit/internal/infra/channel"
	"github.com/xavierca1/conduit/internal/infra/memstore"
	"github.com/xavierca1/conduit/internal/infra/queue"
	"github.com/xavierca1/conduit/internal/usecase"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDispatcher struct {
	mu       sync.Mutex
	err      error
	panicMsg string
	sent     []channel.Delivery
	calls    int
}

func (f *fakeDispatcher) Send(_ context.Context, _ entity.Channel, d channel.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, d)
	return nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	store      *memstore.Store
	queueStore *queue.MemoryStore
	queue      *queue.Queue
	leads      *usecase.LeadService
	messages   *usecase.MessageService
	events     *usecase.EventService
	dispatcher *fakeDispatcher
}

// flakyLeads fails the next n status updates with a storage error.
type flakyLeads struct {
	*memstore.LeadRepository
	mu sync.Mutex
	n  int
}

func (f *flakyLeads) UpdateStatus(ctx context.Context, id string, from, to entity.LeadStatus) (bool, error) {
	f.mu.Lock()
	if f.n > 0 {
		f.n--
		f.mu.Unlock()
		return false, entity.NewStorageError("update lead status", errors.New("connection reset"))
	}
	f.mu.Unlock()
	return f.LeadRepository.UpdateStatus(ctx, id, from, to)
}

func newHarness(t *testing.T, dispatchErr error, attempts int) *harness {
	t.Helper()
	return newHarnessWithLeads(t, dispatchErr, attempts, nil)
}

func newHarnessWithLeads(t *testing.T, dispatchErr error, attempts int, wrap func(*memstore.LeadRepository) usecase.LeadRepository) *harness {
	t.Helper()
	store := memstore.New()
	var leadRepo usecase.LeadRepository = store.Leads
	if wrap != nil {
		leadRepo = wrap(store.Leads)
	}
	qs := queue.NewMemoryStore()
	q := queue.New(qs,
		queue.WithLogger(discard),
		queue.WithPollInterval(5*time.Millisecond),
		queue.WithRetryPolicy(queue.RetryPolicy{MaxAttempts: attempts, Delay: time.Millisecond, Backoff: true}),
		queue.WithFailureClassifier(Classify),
	)

	events := usecase.NewEventService(store.Events, nil, discard)
	leads := usecase.NewLeadService(leadRepo, store.Messages, store.Jobs, events, discard)
	messages := usecase.NewMessageService(store.Messages, leads, q, events, discard)
	dispatcher := &fakeDispatcher{err: dispatchErr}

	send := NewSendMessageWorker(messages, leads, dispatcher, store.Jobs, discard)
	reply := NewAIReplyWorker(messages, leads, events, ai.NewTemplateGenerator(), store.Jobs, discard)
	require.NoError(t, Register(q, config.Queue{SendTeamSize: 5, SendTeamConcurrency: 1, AITeamSize: 3, AITeamConcurrency: 1}, send, reply))

	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})

	return &harness{store: store, queueStore: qs, queue: q, leads: leads, messages: messages, events: events, dispatcher: dispatcher}
}

func (h *harness) lead(t *testing.T, status entity.LeadStatus) *entity.Lead {
	t.Helper()
	lead, err := h.leads.Create(context.Background(), usecase.CreateLeadInput{Name: "Ana Souza", Email: "ana@example.com"})
	require.NoError(t, err)
	if status != entity.LeadStatusNew {
		require.NoError(t, h.leads.Transition(context.Background(), lead.ID, status, "setup"))
	}
	return lead
}

func (h *harness) waitJob(t *testing.T, id string, want queue.Status) *queue.Job {
	t.Helper()
	var job *queue.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.queue.Job(context.Background(), id)
		return err == nil && job.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func (h *harness) eventCount(t *testing.T, leadID string, typ entity.EventType) int {
	t.Helper()
	evs, err := h.store.Events.ListByLead(context.Background(), leadID)
	require.NoError(t, err)
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (h *harness) audits(t *testing.T, leadID, kind string) []*entity.Job {
	t.Helper()
	jobs, err := h.store.Jobs.ListByLead(context.Background(), leadID)
	require.NoError(t, err)
	var out []*entity.Job
	for _, j := range jobs {
		if j.Name == kind {
			out = append(out, j)
		}
	}
	return out
}

func TestSendMessageToNewLead(t *testing.T) {
	h := newHarness(t, nil, 3)
	lead := h.lead(t, entity.LeadStatusNew)

	out, err := h.messages.EnqueueSend(context.Background(), usecase.SendMessageInput{LeadID: lead.ID, Channel: entity.ChannelEmail, Content: "Hello Ana"})
	require.NoError(t, err)
	h.waitJob(t, out.JobID, queue.StatusCompleted)

	msg, err := h.messages.Get(context.Background(), out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, entity.MessageStatusSent, msg.Status)
	assert.NotNil(t, msg.SentAt)

	got, err := h.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusContacted, got.Status)

	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventMessageQueued))
	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventMessageSent))
	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventLeadStatusChanged))

	audits := h.audits(t, lead.ID, entity.JobSendMessage)
	require.Len(t, audits, 1)
	assert.Equal(t, entity.JobStatusCompleted, audits[0].Status)
	assert.Equal(t, out.JobID, audits[0].QueueJobID)
	assert.NotNil(t, audits[0].CompletedAt)

	require.Len(t, h.dispatcher.sent, 1)
	assert.Equal(t, "ana@example.com", h.dispatcher.sent[0].Lead.Email)
}

func TestSendMessageAlwaysFailingChannel(t *testing.T) {
	h := newHarness(t, channel.Retryable(entity.ChannelChat, errors.New("gateway timeout")), 3)
	lead := h.lead(t, entity.LeadStatusNew)

	out, err := h.messages.EnqueueSend(context.Background(), usecase.SendMessageInput{LeadID: lead.ID, Channel: entity.ChannelChat, Content: "Hello"})
	require.NoError(t, err)

	job := h.waitJob(t, out.JobID, queue.StatusFailed)
	assert.Equal(t, 3, job.Attempts)
	assert.Contains(t, job.LastError, "gateway timeout")
	assert.Equal(t, 3, h.dispatcher.callCount())

	require.Eventually(t, func() bool {
		msg, err := h.messages.Get(context.Background(), out.MessageID)
		return err == nil && msg.Status == entity.MessageStatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	msg, err := h.messages.Get(context.Background(), out.MessageID)
	require.NoError(t, err)
	assert.Contains(t, msg.Error, "gateway timeout")

	got, err := h.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusNew, got.Status)
	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventMessageFailed))
	assert.Zero(t, h.eventCount(t, lead.ID, entity.EventMessageSent))

	statuses := map[entity.JobStatus]int{}
	for _, a := range h.audits(t, lead.ID, entity.JobSendMessage) {
		statuses[a.Status]++
		assert.LessOrEqual(t, a.Attempts, a.MaxAttempts)
	}
	assert.Equal(t, map[entity.JobStatus]int{entity.JobStatusRetry: 2, entity.JobStatusFailed: 1}, statuses)
}

func TestSendMessageRetryFinishesLeadTransition(t *testing.T) {
	flaky := &flakyLeads{}
	h := newHarnessWithLeads(t, nil, 3, func(r *memstore.LeadRepository) usecase.LeadRepository {
		flaky.LeadRepository = r
		return flaky
	})
	lead := h.lead(t, entity.LeadStatusNew)

	flaky.mu.Lock()
	flaky.n = 1
	flaky.mu.Unlock()

	out, err := h.messages.EnqueueSend(context.Background(), usecase.SendMessageInput{LeadID: lead.ID, Channel: entity.ChannelEmail, Content: "Hello Ana"})
	require.NoError(t, err)

	job := h.waitJob(t, out.JobID, queue.StatusCompleted)
	assert.Equal(t, 2, job.Attempts)

	got, err := h.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusContacted, got.Status)

	assert.Equal(t, 1, h.dispatcher.callCount())
	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventMessageSent))
	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventLeadStatusChanged))
}

func TestSendMessagePanicClosesAuditRecord(t *testing.T) {
	h := newHarness(t, nil, 2)
	lead := h.lead(t, entity.LeadStatusNew)

	h.dispatcher.mu.Lock()
	h.dispatcher.panicMsg = "nil map write"
	h.dispatcher.mu.Unlock()

	out, err := h.messages.EnqueueSend(context.Background(), usecase.SendMessageInput{LeadID: lead.ID, Channel: entity.ChannelEmail, Content: "Hello"})
	require.NoError(t, err)

	job := h.waitJob(t, out.JobID, queue.StatusFailed)
	assert.Equal(t, 2, job.Attempts)

	statuses := map[entity.JobStatus]int{}
	for _, a := range h.audits(t, lead.ID, entity.JobSendMessage) {
		statuses[a.Status]++
		assert.Contains(t, a.Error, "nil map write")
	}
	assert.Equal(t, map[entity.JobStatus]int{entity.JobStatusRetry: 1, entity.JobStatusFailed: 1}, statuses)
}

func TestSendMessagePermanentFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, channel.Permanent(entity.ChannelEmail, channel.ErrMissingRecipient), 3)
	lead := h.lead(t, entity.LeadStatusNew)

	out, err := h.messages.EnqueueSend(context.Background(), usecase.SendMessageInput{LeadID: lead.ID, Channel: entity.ChannelEmail, Content: "Hello"})
	require.NoError(t, err)

	job := h.waitJob(t, out.JobID, queue.StatusFailed)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 1, h.dispatcher.callCount())

	require.Eventually(t, func() bool {
		msg, err := h.messages.Get(context.Background(), out.MessageID)
		return err == nil && msg.Status == entity.MessageStatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	audits := h.audits(t, lead.ID, entity.JobSendMessage)
	require.Len(t, audits, 1)
	assert.Equal(t, entity.JobStatusFailed, audits[0].Status)
}

func TestAIReplyOnRepliedLead(t *testing.T) {
	h := newHarness(t, nil, 3)
	lead := h.lead(t, entity.LeadStatusNew)

	_, err := h.messages.HandleReply(context.Background(), usecase.ReplyInput{LeadID: lead.ID, Channel: entity.ChannelChat, Content: "Tell me more"})
	require.NoError(t, err)

	out, err := h.messages.RequestAIReply(context.Background(), usecase.AIReplyInput{LeadID: lead.ID, Channel: entity.ChannelChat, Context: "We can demo on Friday."})
	require.NoError(t, err)
	h.waitJob(t, out.JobID, queue.StatusCompleted)

	require.Eventually(t, func() bool {
		msgs, err := h.messages.ListByLead(context.Background(), lead.ID, 0)
		if err != nil {
			return false
		}
		for _, m := range msgs {
			if m.Direction == entity.DirectionOutbound && m.Status == entity.MessageStatusSent {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	got, err := h.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusEngaged, got.Status)

	assert.Equal(t, 1, h.eventCount(t, lead.ID, entity.EventAIReplyGenerated))
	evs, err := h.events.ListByLead(context.Background(), lead.ID)
	require.NoError(t, err)
	for _, e := range evs {
		if e.Type == entity.EventAIReplyGenerated {
			assert.Equal(t, false, e.Payload["used_openai"])
			assert.NotEmpty(t, e.Payload["reply_preview"])
		}
	}

	require.Len(t, h.dispatcher.sent, 1)
	assert.Contains(t, h.dispatcher.sent[0].Content, "We can demo on Friday.")

	audits := h.audits(t, lead.ID, entity.JobGenerateAIReply)
	require.Len(t, audits, 1)
	assert.Equal(t, entity.JobStatusCompleted, audits[0].Status)
}

func TestAIReplyLeavesOtherStatusesAlone(t *testing.T) {
	h := newHarness(t, nil, 3)
	lead := h.lead(t, entity.LeadStatusContacted)

	out, err := h.messages.RequestAIReply(context.Background(), usecase.AIReplyInput{LeadID: lead.ID, Channel: entity.ChannelEmail})
	require.NoError(t, err)
	h.waitJob(t, out.JobID, queue.StatusCompleted)

	got, err := h.leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusContacted, got.Status)
}

func TestMalformedPayloadIsDeadOnFirstAttempt(t *testing.T) {
	h := newHarness(t, nil, 3)

	id, err := h.queue.Enqueue(context.Background(), entity.JobSendMessage, json.RawMessage(`{"message_id": 42}`))
	require.NoError(t, err)

	job := h.waitJob(t, id, queue.StatusFailed)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, ErrBadPayload.Error())
	assert.Zero(t, h.dispatcher.callCount())
}

func TestSendSkipsSettledMessage(t *testing.T) {
	store := memstore.New()
	events := usecase.NewEventService(store.Events, nil, discard)
	leads := usecase.NewLeadService(store.Leads, store.Messages, store.Jobs, events, discard)
	messages := usecase.NewMessageService(store.Messages, leads, nil, events, discard)
	dispatcher := &fakeDispatcher{}
	w := NewSendMessageWorker(messages, leads, dispatcher, store.Jobs, discard)

	lead, err := leads.Create(context.Background(), usecase.CreateLeadInput{Name: "Ana", Phone: "+5511999990000"})
	require.NoError(t, err)
	msg, err := messages.Create(context.Background(), lead.ID, entity.ChannelChat, entity.DirectionOutbound, "hi")
	require.NoError(t, err)
	require.NoError(t, messages.MarkSent(context.Background(), msg.ID))

	payload, err := json.Marshal(entity.SendMessageJob{MessageID: msg.ID, LeadID: lead.ID, Channel: entity.ChannelChat, Content: "hi"})
	require.NoError(t, err)
	job := &queue.Job{ID: "q1", Kind: entity.JobSendMessage, Payload: payload, Attempts: 2, MaxAttempts: 3}

	require.NoError(t, w.Handle(context.Background(), job))
	assert.Zero(t, dispatcher.callCount())

	// The lead update still runs for a message that was sent but not followed through.
	got, err := leads.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.LeadStatusContacted, got.Status)

	failed, err := messages.Create(context.Background(), lead.ID, entity.ChannelChat, entity.DirectionOutbound, "again")
	require.NoError(t, err)
	require.NoError(t, messages.MarkFailed(context.Background(), failed.ID, "bounced"))
	payload, err = json.Marshal(entity.SendMessageJob{MessageID: failed.ID, LeadID: lead.ID, Channel: entity.ChannelChat, Content: "again"})
	require.NoError(t, err)
	job = &queue.Job{ID: "q2", Kind: entity.JobSendMessage, Payload: payload, Attempts: 1, MaxAttempts: 3}

	require.NoError(t, w.Handle(context.Background(), job))
	assert.Zero(t, dispatcher.callCount())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want queue.FailureAction
	}{
		{errors.New("boom"), queue.FailureRetry},
		{channel.Retryable(entity.ChannelEmail, errors.New("timeout")), queue.FailureRetry},
		{channel.Permanent(entity.ChannelEmail, errors.New("bad address")), queue.FailureDead},
		{fmt.Errorf("load lead: %w", entity.ErrLeadNotFound), queue.FailureDead},
		{fmt.Errorf("generate: %w", ai.ErrPermanent), queue.FailureDead},
		{fmt.Errorf("%w: x", ErrBadPayload), queue.FailureDead},
		{entity.NewStorageError("insert", errors.New("conn reset")), queue.FailureRetry},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(nil, tc.err), tc.err.Error())
	}
}

type fakeMaintainer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeMaintainer) Maintain(context.Context) (queue.MaintenanceReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return queue.MaintenanceReport{Expired: 1}, nil
}

func (f *fakeMaintainer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestMaintenanceWorkerTicks(t *testing.T) {
	m := &fakeMaintainer{}
	w := NewMaintenanceWorker(m, 5*time.Millisecond, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance worker did not stop")
	}
}
