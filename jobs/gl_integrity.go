package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// GLIntegrityPayload selects the companies to check. Repair overrides the
// job's default when set.
type GLIntegrityPayload struct {
	CompanyID string `json:"company_id"`
	Repair    *bool  `json:"repair,omitempty"`
}

// NewGLIntegrityTask builds an integrity task for one company, or for all
// when companyID is uuid.Nil.
func NewGLIntegrityTask(companyID uuid.UUID, repair *bool) (*asynq.Task, error) {
	payload := GLIntegrityPayload{CompanyID: allCompanies, Repair: repair}
	if companyID != uuid.Nil {
		payload.CompanyID = companyID.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// BalanceChecker verifies and rebuilds materialized balances.
type BalanceChecker interface {
	CompanyLister
	Verify(ctx context.Context, companyID uuid.UUID) ([]balances.Drift, error)
	Rebuild(ctx context.Context, companyID uuid.UUID) ([]balances.Drift, error)
}

// AlertQueue enqueues alert mail.
type AlertQueue interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// DriftGauge publishes the drift found per company.
type DriftGauge interface {
	SetDrift(companyID string, accounts int)
}

// GLIntegrityJob checks that materialized balances equal the derivation from
// posted entries, optionally rebuilding them, and mails a report on drift.
type GLIntegrityJob struct {
	Balances    BalanceChecker
	Repair      bool
	Alerts      AlertQueue
	AlertTo     string
	Gauge       DriftGauge
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(checker BalanceChecker, repair bool, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Balances: checker, Repair: repair, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// CompanyDrift is the drift found for one company.
type CompanyDrift struct {
	CompanyID uuid.UUID
	Drifts    []balances.Drift
	Repaired  bool
}

// Handle executes the integrity task.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Balances == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	repair := j.Repair
	if payload.Repair != nil {
		repair = *payload.Repair
	}
	tracker := j.metrics().Track(TaskGLIntegrity)
	findings, err := j.Run(ctx, payload.CompanyID, repair)
	if err == nil && len(findings) > 0 {
		err = j.alert(ctx, findings)
	}
	return tracker.End(err)
}

// Run checks the selected companies and returns those with drift.
func (j *GLIntegrityJob) Run(ctx context.Context, company string, repair bool) ([]CompanyDrift, error) {
	companies, err := resolveCompanies(ctx, j.Balances, company)
	if err != nil {
		return nil, err
	}
	var (
		mu       sync.Mutex
		findings []CompanyDrift
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))
	for _, companyID := range companies {
		companyID := companyID
		g.Go(func() error {
			check := j.Balances.Verify
			if repair {
				check = j.Balances.Rebuild
			}
			drifts, err := check(gctx, companyID)
			if err != nil {
				return fmt.Errorf("gl integrity: company %s: %w", companyID, err)
			}
			j.record(companyID, drifts, repair)
			if len(drifts) == 0 {
				return nil
			}
			mu.Lock()
			findings = append(findings, CompanyDrift{CompanyID: companyID, Drifts: drifts, Repaired: repair})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.log().Error("integrity check failed", slog.Any("error", err))
		return nil, err
	}
	sort.Slice(findings, func(a, b int) bool {
		return findings[a].CompanyID.String() < findings[b].CompanyID.String()
	})
	j.log().Info("integrity check finished", slog.Int("companies", len(companies)), slog.Int("drifting", len(findings)), slog.Bool("repair", repair))
	return findings, nil
}

func (j *GLIntegrityJob) record(companyID uuid.UUID, drifts []balances.Drift, repaired bool) {
	id := companyID.String()
	if j.Gauge != nil {
		remaining := len(drifts)
		if repaired {
			remaining = 0
		}
		j.Gauge.SetDrift(id, remaining)
	}
	j.metrics().AddFindings(id, repaired, len(drifts))
	for _, d := range drifts {
		j.log().Warn("balance drift",
			slog.String("company_id", id),
			slog.String("account", d.Code),
			slog.String("materialized", d.Materialized.StringFixed(2)),
			slog.String("derived", d.Derived.StringFixed(2)),
			slog.Bool("repaired", repaired),
		)
	}
}

func (j *GLIntegrityJob) alert(ctx context.Context, findings []CompanyDrift) error {
	if j.Alerts == nil || j.AlertTo == "" {
		return nil
	}
	_, err := j.Alerts.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      j.AlertTo,
		Subject: fmt.Sprintf("Ledger drift in %d compan%s", len(findings), plural(len(findings), "y", "ies")),
		Body:    DriftReport(findings),
	})
	if err != nil {
		return fmt.Errorf("gl integrity: enqueue alert: %w", err)
	}
	return nil
}

// DriftReport renders findings as plain text.
func DriftReport(findings []CompanyDrift) string {
	var sb strings.Builder
	for _, f := range findings {
		state := "not repaired"
		if f.Repaired {
			state = "rebuilt from the entry log"
		}
		fmt.Fprintf(&sb, "Company %s (%s)\n", f.CompanyID, state)
		for _, d := range f.Drifts {
			fmt.Fprintf(&sb, "  %-8s stored %s derived %s diff %s\n",
				d.Code, d.Materialized.StringFixed(2), d.Derived.StringFixed(2), d.Difference().StringFixed(2))
		}
	}
	return sb.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
