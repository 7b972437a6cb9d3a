package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// FXRevaluationPayload selects the companies and the valuation date. An empty
// AsOf means the run date; CompanyID "all" revalues every company with a ledger.
type FXRevaluationPayload struct {
	CompanyID string `json:"company_id"`
	AsOf      string `json:"as_of"`
}

// NewFXRevaluationTask builds a revaluation task for one company, or for all
// when companyID is uuid.Nil.
func NewFXRevaluationTask(companyID uuid.UUID, asOf time.Time) (*asynq.Task, error) {
	payload := FXRevaluationPayload{CompanyID: allCompanies}
	if companyID != uuid.Nil {
		payload.CompanyID = companyID.String()
	}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFXRevaluation, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// EventHandler posts integration events.
type EventHandler interface {
	Handle(ctx context.Context, ev integration.Event) (integration.Result, error)
}

// CompanyLister enumerates companies that hold accounts.
type CompanyLister interface {
	Companies(ctx context.Context) ([]uuid.UUID, error)
}

// FXRevaluationJob runs the FX revaluation event per company.
type FXRevaluationJob struct {
	Events      EventHandler
	Companies   CompanyLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	clock       func() time.Time
}

// NewFXRevaluationJob constructs the job handler.
func NewFXRevaluationJob(events EventHandler, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *FXRevaluationJob {
	return &FXRevaluationJob{
		Events:      events,
		Companies:   companies,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: 4,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RevaluationOutcome summarises one company's run.
type RevaluationOutcome struct {
	CompanyID uuid.UUID
	Entry     string
	Revalued  int
	Duplicate bool
}

// Handle executes the revaluation task.
func (j *FXRevaluationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Events == nil {
		return errors.New("fx revaluation: handler not configured")
	}
	var payload FXRevaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := j.now().Truncate(24 * time.Hour)
	if payload.AsOf != "" {
		parsed, err := time.Parse(time.DateOnly, payload.AsOf)
		if err != nil {
			return skipRetry(shared.NewValidationError("as_of", "must be YYYY-MM-DD"))
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskFXRevaluation)
	_, err := j.Run(ctx, payload.CompanyID, asOf)
	err = tracker.End(err)
	if errors.Is(err, shared.ErrValidation) {
		return skipRetry(err)
	}
	return err
}

// Run revalues the selected companies as of asOf. Companies are processed
// concurrently; each one posts under its own company lock.
func (j *FXRevaluationJob) Run(ctx context.Context, company string, asOf time.Time) ([]RevaluationOutcome, error) {
	companies, err := resolveCompanies(ctx, j.Companies, company)
	if err != nil {
		return nil, err
	}
	logger := j.log().With(slog.String("as_of", asOf.Format(time.DateOnly)))

	var (
		mu       sync.Mutex
		outcomes = make([]RevaluationOutcome, 0, len(companies))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))
	for _, companyID := range companies {
		companyID := companyID
		g.Go(func() error {
			res, err := j.Events.Handle(gctx, integration.FxRevaluationEvent{CompanyID: companyID, AsOf: asOf})
			if err != nil {
				logger.Error("revalue company", slog.String("company_id", companyID.String()), slog.Any("error", err))
				return err
			}
			out := RevaluationOutcome{CompanyID: companyID, Revalued: len(res.Revaluations), Duplicate: res.Duplicate}
			if res.Entry != nil {
				out.Entry = res.Entry.Number
			}
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	logger.Info("fx revaluation finished", slog.Int("companies", len(companies)), slog.Int("completed", len(outcomes)))
	return outcomes, err
}

func resolveCompanies(ctx context.Context, lister CompanyLister, company string) ([]uuid.UUID, error) {
	if company != "" && company != allCompanies {
		id, err := uuid.Parse(company)
		if err != nil {
			return nil, shared.NewValidationError("company_id", "must be a UUID or \"all\"")
		}
		return []uuid.UUID{id}, nil
	}
	if lister == nil {
		return nil, errors.New("jobs: company lister not configured")
	}
	return lister.Companies(ctx)
}

func (j *FXRevaluationJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFXRevaluation))
	}
	return slog.Default().With(slog.String("job", TaskFXRevaluation))
}

func (j *FXRevaluationJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *FXRevaluationJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *FXRevaluationJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
