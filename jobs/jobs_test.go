package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type companies []uuid.UUID

func (c companies) Companies(context.Context) ([]uuid.UUID, error) { return c, nil }

type eventRecorder struct {
	mu     sync.Mutex
	events []integration.FxRevaluationEvent
	fail   map[uuid.UUID]error
}

func (r *eventRecorder) Handle(_ context.Context, ev integration.Event) (integration.Result, error) {
	fxev := ev.(integration.FxRevaluationEvent)
	r.mu.Lock()
	r.events = append(r.events, fxev)
	r.mu.Unlock()
	if err := r.fail[fxev.CompanyID]; err != nil {
		return integration.Result{}, err
	}
	return integration.Result{Entry: &journals.JournalEntry{Number: "JE-FX-1"}}, nil
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestFXRevaluationTaskRoundTrip(t *testing.T) {
	id := uuid.New()
	task, err := NewFXRevaluationTask(id, time.Date(2026, 1, 31, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, TaskFXRevaluation, task.Type())

	var payload FXRevaluationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, id.String(), payload.CompanyID)
	require.Equal(t, "2026-01-31", payload.AsOf)

	task, err = NewFXRevaluationTask(uuid.Nil, time.Time{})
	require.NoError(t, err)
	require.JSONEq(t, `{"company_id":"all","as_of":""}`, string(task.Payload()))
}

func TestFXRevaluationJobRevaluesEveryCompany(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	events := &eventRecorder{}
	job := NewFXRevaluationJob(events, companies{a, b}, nil, testMetrics())
	task, err := NewFXRevaluationTask(uuid.Nil, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, events.events, 2)
	seen := map[uuid.UUID]bool{}
	for _, ev := range events.events {
		seen[ev.CompanyID] = true
		require.Equal(t, "2026-01-31", ev.AsOf.Format(time.DateOnly))
	}
	require.True(t, seen[a] && seen[b])
}

func TestFXRevaluationJobDefaultsToRunDate(t *testing.T) {
	id := uuid.New()
	events := &eventRecorder{}
	job := NewFXRevaluationJob(events, nil, nil, testMetrics())
	job.WithClock(func() time.Time { return time.Date(2026, 2, 28, 23, 30, 0, 0, time.UTC) })

	outcomes, err := job.Run(context.Background(), id.String(), job.now().Truncate(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, "JE-FX-1", outcomes[0].Entry)
	require.Equal(t, "2026-02-28", events.events[0].AsOf.Format(time.DateOnly))
}

func TestFXRevaluationJobRejectsBadPayload(t *testing.T) {
	job := NewFXRevaluationJob(&eventRecorder{}, companies{}, nil, testMetrics())

	err := job.Handle(context.Background(), asynq.NewTask(TaskFXRevaluation, []byte(`{`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskFXRevaluation, []byte(`{"company_id":"x"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, shared.ErrValidation)

	err = job.Handle(context.Background(), asynq.NewTask(TaskFXRevaluation, []byte(`{"as_of":"31/01/2026"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestFXRevaluationJobRetriesIntegrityFailures(t *testing.T) {
	id := uuid.New()
	missing := &shared.IntegrityError{Detail: "no rate"}
	job := NewFXRevaluationJob(&eventRecorder{fail: map[uuid.UUID]error{id: missing}}, companies{id}, nil, testMetrics())
	task, err := NewFXRevaluationTask(uuid.Nil, time.Time{})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type checker struct {
	companies
	drifts   map[uuid.UUID][]balances.Drift
	verified int
	rebuilt  int
	mu       sync.Mutex
}

func (c *checker) Verify(_ context.Context, id uuid.UUID) ([]balances.Drift, error) {
	c.mu.Lock()
	c.verified++
	c.mu.Unlock()
	return c.drifts[id], nil
}

func (c *checker) Rebuild(_ context.Context, id uuid.UUID) ([]balances.Drift, error) {
	c.mu.Lock()
	c.rebuilt++
	c.mu.Unlock()
	return c.drifts[id], nil
}

type alertQueue struct {
	sent []SendEmailPayload
}

func (q *alertQueue) EnqueueSendEmail(_ context.Context, p SendEmailPayload) (*asynq.TaskInfo, error) {
	q.sent = append(q.sent, p)
	return &asynq.TaskInfo{ID: "t1"}, nil
}

type gauge struct {
	mu     sync.Mutex
	values map[string]int
}

func (g *gauge) SetDrift(company string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.values == nil {
		g.values = map[string]int{}
	}
	g.values[company] = n
}

func TestGLIntegrityJobReportsDrift(t *testing.T) {
	clean, drifting := uuid.New(), uuid.New()
	chk := &checker{
		companies: companies{clean, drifting},
		drifts: map[uuid.UUID][]balances.Drift{drifting: {{
			AccountID: uuid.New(), Code: "1000",
			Materialized: decimal.RequireFromString("110"), Derived: decimal.RequireFromString("100"),
		}}},
	}
	alerts := &alertQueue{}
	g := &gauge{}
	job := NewGLIntegrityJob(chk, false, nil, testMetrics())
	job.Alerts, job.AlertTo, job.Gauge = alerts, "ops@example.com", g

	task, err := NewGLIntegrityTask(uuid.Nil, nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 2, chk.verified)
	require.Zero(t, chk.rebuilt)
	require.Equal(t, 1, g.values[drifting.String()])
	require.Equal(t, 0, g.values[clean.String()])
	require.Len(t, alerts.sent, 1)
	require.Equal(t, "ops@example.com", alerts.sent[0].To)
	require.Equal(t, "Ledger drift in 1 company", alerts.sent[0].Subject)
	require.Contains(t, alerts.sent[0].Body, drifting.String())
	require.Contains(t, alerts.sent[0].Body, "diff 10.00")
}

func TestGLIntegrityJobRepairsOnRequest(t *testing.T) {
	id := uuid.New()
	chk := &checker{companies: companies{id}, drifts: map[uuid.UUID][]balances.Drift{id: {{Code: "4000"}}}}
	g := &gauge{}
	job := NewGLIntegrityJob(chk, false, nil, testMetrics())
	job.Gauge = g
	repair := true

	task, err := NewGLIntegrityTask(id, &repair)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, chk.rebuilt)
	require.Zero(t, chk.verified)
	require.Equal(t, 0, g.values[id.String()])
}

type sender struct {
	to, subject string
	err         error
}

func (s *sender) Send(_ context.Context, to, subject, _ string) error {
	s.to, s.subject = to, subject
	return s.err
}

func TestMailJob(t *testing.T) {
	s := &sender{}
	job := &MailJob{Sender: s, Metrics: testMetrics()}
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "hi", Body: "x"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "a@example.com", s.to)

	s.err = errors.New("relay down")
	require.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"subject":"no one"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	require.NoError(t, (&MailJob{}).Handle(context.Background(), task))
}
