package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/engine"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
)

// IntegrityChecker runs the ledger consistency checks for one company.
type IntegrityChecker interface {
	Integrity(ctx context.Context, companyID int64, asOf time.Time) (engine.IntegrityReport, error)
}

// GLIntegrityJob verifies that posted entries balance and that running
// balances agree with the aggregate for every configured company.
type GLIntegrityJob struct {
	Checker   IntegrityChecker
	Companies []int64
	Logger    *zap.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(checker IntegrityChecker, companies []int64, logger *zap.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Checker:   checker,
		Companies: companies,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity job.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Checker == nil {
		return errors.New("gl integrity: dependencies not configured")
	}
	var payload IntegrityPayload
	if err := decode(task, &payload); err != nil {
		return err
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies := pickCompanies(payload.CompanyIDs, j.Companies)
	if len(companies) == 0 {
		j.log().Info("no companies configured")
		return nil
	}

	dirty := 0
	for _, companyID := range companies {
		report, err := j.Checker.Integrity(ctx, companyID, asOf)
		if err != nil {
			j.log().Error("integrity check", zap.Int64("company_id", companyID), zap.Error(err))
			return err
		}
		j.Metrics.AddFindings("ledger_drift", companyID, len(report.Drift))
		j.Metrics.AddFindings("unbalanced_entries", companyID, len(report.Unbalanced))
		if report.Clean() {
			continue
		}
		dirty++
		j.log().Warn("ledger integrity mismatch",
			zap.Int64("company_id", companyID),
			zap.Time("as_of", report.AsOf),
			zap.Int64s("drift_accounts", report.Drift),
			zap.Int64s("unbalanced_entries", report.Unbalanced))
	}

	j.log().Info("gl integrity checked", zap.Int("companies", len(companies)), zap.Int("dirty", dirty))
	return nil
}

// WithClock overrides the internal clock for deterministic tests.
func (j *GLIntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

func (j *GLIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *GLIntegrityJob) log() *zap.Logger {
	return jobLogger(j.Logger, TaskGLIntegrity)
}

func pickCompanies(requested, configured []int64) []int64 {
	if len(requested) > 0 {
		return requested
	}
	return configured
}

func jobLogger(logger *zap.Logger, job string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("job", job))
}
