package deliveryrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/courierd/courierd/internal/adapters/provider"
	"github.com/courierd/courierd/internal/data"
	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/mocks"
)

type stubTemplateSource struct {
	templates map[string]*model.Template
	err       error
}

func (s *stubTemplateSource) Lookup(
	_ context.Context,
	name string,
	channel model.Channel,
) (*model.Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	tmpl, ok := s.templates[string(channel)+"/"+name]
	if !ok {
		return nil, data.ErrTemplateNotFound
	}
	return tmpl, nil
}

type stubSender struct {
	mu          sync.Mutex
	id          string
	err         error
	sent        []provider.Message
	hadDeadline bool
}

func (s *stubSender) Send(ctx context.Context, msg provider.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, s.hadDeadline = ctx.Deadline()
	s.sent = append(s.sent, msg)
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

type captureSink struct {
	mu     sync.Mutex
	counts []capturedMetric
}

type capturedMetric struct {
	name string
	tags map[string]string
}

func (c *captureSink) Count(name string, _ int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = append(c.counts, capturedMetric{name: name, tags: tags})
}

func (c *captureSink) Gauge(string, float64, map[string]string)        {}
func (c *captureSink) Timing(string, time.Duration, map[string]string) {}

func (c *captureSink) transitions() []capturedMetric {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedMetric
	for _, m := range c.counts {
		if m.name == "delivery.transition" {
			out = append(out, m)
		}
	}
	return out
}

type runnerFixture struct {
	runner  *Runner
	jobs    *mocks.MockJobRepository
	records *mocks.MockNotificationRepository
	sender  *stubSender
	sink    *captureSink
}

func newRunnerFixture(t *testing.T, opts ...func(*RunnerOptions)) *runnerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	jobs := mocks.NewMockJobRepository(ctrl)
	records := mocks.NewMockNotificationRepository(ctrl)
	sender := &stubSender{id: "provider-msg-1"}
	sink := &captureSink{}

	welcomeSubject := "Welcome to {{appName}}!"
	templates := &stubTemplateSource{templates: map[string]*model.Template{
		"email/welcome": {
			Name:    "welcome",
			Channel: model.ChannelEmail,
			Subject: &welcomeSubject,
			Content: "<h1>Welcome {{username}}!</h1>",
		},
	}}

	runnerOpts := RunnerOptions{
		Channel:     model.ChannelEmail,
		Lease:       10 * time.Second,
		Concurrency: 1,
		SendTimeout: 5 * time.Second,
		Sender:      sender,
		JobsRepo:    jobs,
		RecordsRepo: records,
		Templates:   templates,
		Metrics:     sink,
	}
	for _, opt := range opts {
		opt(&runnerOpts)
	}

	runner, err := NewRunner(runnerOpts)
	require.NoError(t, err)

	return &runnerFixture{runner: runner, jobs: jobs, records: records, sender: sender, sink: sink}
}

func testJob(retryCount, maxRetries int) *model.DeliveryJob {
	return &model.DeliveryJob{
		ID:         "job-1",
		Channel:    model.ChannelEmail,
		Status:     model.JobStatusRunning,
		RetryCount: retryCount,
		MaxRetries: maxRetries,
	}
}

func testRecord(status model.NotificationStatus) *model.NotificationRecord {
	return &model.NotificationRecord{
		ID:        "rec-1",
		JobID:     "job-1",
		Channel:   model.ChannelEmail,
		Recipient: "user@example.com",
		Template:  "welcome",
		Payload:   map[string]string{"username": "alice", "appName": "Example"},
		Status:    status,
	}
}

func TestNewRunner(t *testing.T) {
	t.Run("requires DB or repository overrides", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Channel: model.ChannelEmail, Sender: &stubSender{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "either DB or all repository overrides")
	})

	t.Run("requires a valid channel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := NewRunner(RunnerOptions{
			Channel:     model.Channel("carrier-pigeon"),
			Sender:      &stubSender{},
			JobsRepo:    mocks.NewMockJobRepository(ctrl),
			RecordsRepo: mocks.NewMockNotificationRepository(ctrl),
			Templates:   &stubTemplateSource{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid channel")
	})

	t.Run("requires a sender", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := NewRunner(RunnerOptions{
			Channel:     model.ChannelSMS,
			JobsRepo:    mocks.NewMockJobRepository(ctrl),
			RecordsRepo: mocks.NewMockNotificationRepository(ctrl),
			Templates:   &stubTemplateSource{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sender is required")
	})

	t.Run("defaults lease, timeout, and concurrency", func(t *testing.T) {
		f := newRunnerFixture(t, func(o *RunnerOptions) {
			o.Lease = 0
			o.SendTimeout = 0
			o.Concurrency = 0
		})
		assert.Equal(t, 30*time.Second, f.runner.lease)
		assert.Equal(t, 15*time.Second, f.runner.sendTimeout)
		assert.Equal(t, 30*time.Second, f.runner.drainTimeout)
		assert.Equal(t, 1, f.runner.workers)
	})
}

func TestProcessJob_Success(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.records.EXPECT().MarkSent(gomock.Any(), "job-1", "provider-msg-1").Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	f.runner.processJob(ctx, testJob(0, 3))

	require.Len(t, f.sender.sent, 1)
	sent := f.sender.sent[0]
	assert.Equal(t, model.ChannelEmail, sent.Channel)
	assert.Equal(t, "user@example.com", sent.To)
	assert.Equal(t, "Welcome to Example!", sent.Subject)
	assert.Equal(t, "<h1>Welcome alice!</h1>", sent.Body)
	assert.True(t, f.sender.hadDeadline)

	transitions := f.sink.transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, "completed", transitions[0].tags["transition"])
	assert.Equal(t, "success", transitions[0].tags["result"])
	assert.Equal(t, "email", transitions[0].tags["channel"])
}

func TestProcessJob_AlreadySentRecordOnlyCompletes(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusSent), nil)
	f.jobs.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	f.runner.processJob(ctx, testJob(0, 3))

	assert.Empty(t, f.sender.sent)
}

func TestProcessJob_OrphanJobFailsPermanently(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(nil, data.ErrNotificationNotFound)
	f.jobs.EXPECT().
		FailPermanently(gomock.Any(), "job-1", "no notification record for job").
		Return(true, nil)

	f.runner.processJob(ctx, testJob(0, 3))

	transitions := f.sink.transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, "failed", transitions[0].tags["transition"])
}

func TestProcessJob_TransientRecordLookupLeavesLease(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(nil, errors.New("connection reset"))

	f.runner.processJob(ctx, testJob(0, 3))

	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.sink.transitions())
}

func TestProcessJob_MissingTemplateIsNonRetryable(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	record := testRecord(model.NotificationStatusQueued)
	record.Template = "does-not-exist"

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(record, nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.records.EXPECT().
		MarkFailedNoAttempt(gomock.Any(), "job-1", `template "does-not-exist" not found for channel email`).
		Return(nil)
	f.jobs.EXPECT().
		FailPermanently(gomock.Any(), "job-1", `template "does-not-exist" not found for channel email`).
		Return(true, nil)

	f.runner.processJob(ctx, testJob(0, 3))

	assert.Empty(t, f.sender.sent)
}

func TestProcessJob_SendErrorSchedulesRetry(t *testing.T) {
	f := newRunnerFixture(t)
	f.sender.err = errors.New("smtp send: connection refused")
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.jobs.EXPECT().
		Fail(gomock.Any(), "job-1", "smtp send: connection refused").
		Return(&model.FailJobResult{Status: model.JobStatusPending, Terminal: false}, nil)
	f.records.EXPECT().MarkRetried(gomock.Any(), "job-1", "smtp send: connection refused").Return(nil)

	f.runner.processJob(ctx, testJob(0, 3))

	transitions := f.sink.transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, "failed", transitions[0].tags["transition"])
	assert.Equal(t, "error", transitions[0].tags["result"])
}

func TestProcessJob_SendErrorTerminalMarksFailed(t *testing.T) {
	f := newRunnerFixture(t)
	f.sender.err = errors.New("smtp send: mailbox unavailable")
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.jobs.EXPECT().
		Fail(gomock.Any(), "job-1", "smtp send: mailbox unavailable").
		Return(&model.FailJobResult{Status: model.JobStatusFailed, Terminal: true}, nil)
	f.records.EXPECT().MarkFailed(gomock.Any(), "job-1", "smtp send: mailbox unavailable").Return(nil)

	f.runner.processJob(ctx, testJob(2, 3))
}

func TestProcessJob_SendErrorAfterLostLeaseSkipsRecord(t *testing.T) {
	f := newRunnerFixture(t)
	f.sender.err = errors.New("smtp send: timeout")
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	// nil result means the job was no longer running; the redelivery owns it.
	f.jobs.EXPECT().Fail(gomock.Any(), "job-1", "smtp send: timeout").Return(nil, nil)

	f.runner.processJob(ctx, testJob(0, 3))
}

func TestProcessJob_MarkSentErrorStillCompletes(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.records.EXPECT().MarkSent(gomock.Any(), "job-1", "provider-msg-1").Return(errors.New("db down"))
	f.jobs.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	f.runner.processJob(ctx, testJob(0, 3))
}

func TestProcessJob_RetrySchedulesWake(t *testing.T) {
	f := newRunnerFixture(t)
	f.sender.err = errors.New("smtp send: connection refused")
	ctx := context.Background()

	next := time.Now().Add(10 * time.Millisecond)
	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.jobs.EXPECT().
		Fail(gomock.Any(), "job-1", "smtp send: connection refused").
		Return(&model.FailJobResult{Status: model.JobStatusPending, NextAttemptAt: &next}, nil)
	f.records.EXPECT().MarkRetried(gomock.Any(), "job-1", "smtp send: connection refused").Return(nil)
	f.jobs.EXPECT().
		WaitForNotification(gomock.Any(), model.ChannelEmail).
		DoAndReturn(func(ctx context.Context, _ model.Channel) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	unsub, notify := f.runner.jobs.Subscribe(model.ChannelEmail)
	defer unsub()

	f.runner.processJob(ctx, testJob(0, 3))

	select {
	case <-notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no wake once the rescheduled retry became eligible")
	}
}

// gateSender blocks inside Send until released, so a test can cancel the run
// context while a delivery is in flight.
type gateSender struct {
	started  chan struct{}
	release  chan struct{}
	sendErr  error
	mu       sync.Mutex
	ctxAlive bool
}

func (g *gateSender) Send(ctx context.Context, _ provider.Message) (string, error) {
	close(g.started)
	<-g.release
	g.mu.Lock()
	g.ctxAlive = ctx.Err() == nil
	g.mu.Unlock()
	if g.sendErr != nil {
		return "", g.sendErr
	}
	return "gated-msg-1", nil
}

func TestRun_CancelDrainsInFlightJob(t *testing.T) {
	gated := &gateSender{started: make(chan struct{}), release: make(chan struct{})}
	f := newRunnerFixture(t, func(o *RunnerOptions) { o.Sender = gated })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := f.jobs.EXPECT().
		ReserveNext(gomock.Any(), model.ChannelEmail, 10).
		Return(testJob(0, 3), nil)
	f.jobs.EXPECT().
		ReserveNext(gomock.Any(), model.ChannelEmail, 10).
		After(first).
		Return(nil, model.ErrNoJobsAvailable).
		AnyTimes()
	f.jobs.EXPECT().
		WaitForNotification(gomock.Any(), model.ChannelEmail).
		DoAndReturn(func(ctx context.Context, _ model.Channel) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.records.EXPECT().MarkSent(gomock.Any(), "job-1", "gated-msg-1").Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	select {
	case <-gated.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never started the send")
	}

	// Cancel with the send in flight, then let it finish. The job must still
	// be recorded as sent and completed.
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(gated.release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	gated.mu.Lock()
	defer gated.mu.Unlock()
	assert.True(t, gated.ctxAlive, "shutdown cancelled the in-flight send")
}

func TestRun_ProcessesJobThenStopsOnCancel(t *testing.T) {
	f := newRunnerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := testJob(0, 3)
	reserved := make(chan struct{})

	first := f.jobs.EXPECT().
		ReserveNext(gomock.Any(), model.ChannelEmail, 10).
		Return(job, nil)
	f.jobs.EXPECT().
		ReserveNext(gomock.Any(), model.ChannelEmail, 10).
		After(first).
		DoAndReturn(func(context.Context, model.Channel, int) (*model.DeliveryJob, error) {
			select {
			case <-reserved:
			default:
				close(reserved)
			}
			return nil, model.ErrNoJobsAvailable
		}).
		AnyTimes()
	f.jobs.EXPECT().
		WaitForNotification(gomock.Any(), model.ChannelEmail).
		DoAndReturn(func(ctx context.Context, _ model.Channel) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	f.records.EXPECT().GetByJobID(gomock.Any(), "job-1").Return(testRecord(model.NotificationStatusQueued), nil)
	f.records.EXPECT().MarkProcessing(gomock.Any(), "job-1").Return(true, nil)
	f.records.EXPECT().MarkSent(gomock.Any(), "job-1", "provider-msg-1").Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	select {
	case <-reserved:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never drained the queue")
	}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	require.Len(t, f.sender.sent, 1)
}

func TestRun_ReservationErrorStopsAllWorkers(t *testing.T) {
	f := newRunnerFixture(t, func(o *RunnerOptions) { o.Concurrency = 3 })
	ctx := context.Background()

	f.jobs.EXPECT().
		ReserveNext(gomock.Any(), model.ChannelEmail, 10).
		Return(nil, errors.New("relation does not exist")).
		MinTimes(1)
	f.jobs.EXPECT().
		WaitForNotification(gomock.Any(), model.ChannelEmail).
		DoAndReturn(func(ctx context.Context, _ model.Channel) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AnyTimes()

	err := f.runner.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve next")
}
