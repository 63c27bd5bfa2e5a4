package periods

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AccountChecker validates that accounts may carry balances.
type AccountChecker interface {
	RequirePostable(ctx context.Context, companyID int64, ids []int64) (map[int64]accounts.Account, error)
}

// CloseBlocker counts items that must be settled before a period closes.
type CloseBlocker interface {
	Name() string
	CountOpen(ctx context.Context, companyID int64, start, end time.Time) (int, error)
}

// Invalidator drops memoized balances of a company.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// Service owns the fiscal period lifecycle and opening balances.
type Service struct {
	repo        Repository
	tx          db.TxRunner
	accounts    AccountChecker
	blockers    []CloseBlocker
	outbox      events.Outbox
	audit       shared.Auditor
	invalidator Invalidator
	logger      *zap.Logger
	now         func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithOutbox emits period events through outbox.
func WithOutbox(outbox events.Outbox) Option { return func(s *Service) { s.outbox = outbox } }

// WithAudit records close and opening balance changes.
func WithAudit(audit shared.Auditor) Option { return func(s *Service) { s.audit = audit } }

// WithInvalidator drops cached balances after opening balance changes.
func WithInvalidator(inv Invalidator) Option { return func(s *Service) { s.invalidator = inv } }

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("periods")
		}
	}
}

// NewService constructs a Service instance.
func NewService(repo Repository, tx db.TxRunner, checker AccountChecker, opts ...Option) *Service {
	s := &Service{repo: repo, tx: tx, accounts: checker, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RegisterBlocker adds a close precondition.
func (s *Service) RegisterBlocker(b CloseBlocker) {
	s.blockers = append(s.blockers, b)
}

// Create inserts a new OPEN period after validating overlap.
func (s *Service) Create(ctx context.Context, in CreateInput) (Period, error) {
	if err := shared.ValidateStruct("accounting: invalid period", in); err != nil {
		return Period{}, err
	}
	start, end := shared.DateOnly(in.StartDate), shared.DateOnly(in.EndDate)
	if start.After(end) {
		return Period{}, shared.Validation("accounting: period start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	var created Period
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		overlapping, err := s.repo.Overlapping(ctx, in.CompanyID, start, end)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return shared.Conflict("accounting: period overlaps %s", overlapping[0].Code())
		}
		created, err = s.repo.Insert(ctx, Period{
			CompanyID: in.CompanyID,
			Year:      in.Year,
			Month:     in.Month,
			StartDate: start,
			EndDate:   end,
			Status:    StatusOpen,
		})
		return err
	})
	if err != nil {
		return Period{}, err
	}
	return created, nil
}

// Close locks the period row exclusively, verifies nothing is left open and
// flips the period to CLOSED. Postings wait on the lock and then observe CLOSED.
func (s *Service) Close(ctx context.Context, companyID, periodID, actorID int64) (Period, error) {
	var closed Period
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		period, err := s.repo.GetForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if period.IsClosed() {
			return shared.Conflict("accounting: period %s is already closed", period.Code())
		}
		var pending []string
		for _, b := range s.blockers {
			n, err := b.CountOpen(ctx, companyID, period.StartDate, period.EndDate)
			if err != nil {
				return err
			}
			if n > 0 {
				pending = append(pending, fmt.Sprintf("%d %s", n, b.Name()))
			}
		}
		if len(pending) > 0 {
			return shared.Conflict("accounting: period %s has %s", period.Code(), strings.Join(pending, ", "))
		}
		closed, err = period.close(actorID, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.repo.MarkClosed(ctx, closed); err != nil {
			return err
		}
		return events.Emit(ctx, s.outbox, companyID, events.TypePeriodClosed, "fiscal_period",
			strconv.FormatInt(closed.ID, 10), closed, s.now())
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period closed", zap.Int64("company_id", companyID), zap.String("period", closed.Code()))
	s.record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    "period.close",
		Entity:    "fiscal_period",
		EntityID:  strconv.FormatInt(closed.ID, 10),
		Meta:      map[string]any{"code": closed.Code()},
	})
	return closed, nil
}

// EnsureOpen returns the OPEN period covering date, holding a shared lock on
// it for the rest of the caller's transaction.
func (s *Service) EnsureOpen(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	period, err := s.repo.FindByDateForShare(ctx, companyID, date)
	if err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return Period{}, shared.PeriodClosed("accounting: no fiscal period covers %s", date.Format(time.DateOnly))
		}
		return Period{}, err
	}
	if period.IsClosed() {
		return Period{}, shared.PeriodClosed("accounting: period %s is closed", period.Code())
	}
	return period, nil
}

// FindByDate returns the period covering date regardless of status.
func (s *Service) FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, companyID, date)
}

// Get returns a period by id.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Period, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns the company's periods ordered by start date.
func (s *Service) List(ctx context.Context, companyID int64) ([]Period, error) {
	return s.repo.List(ctx, companyID)
}

// SetOpeningBalance upserts the opening balance of an account for an OPEN period.
func (s *Service) SetOpeningBalance(ctx context.Context, in OpeningBalanceInput) (OpeningBalance, error) {
	if err := in.validate(); err != nil {
		return OpeningBalance{}, err
	}
	var saved OpeningBalance
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		period, err := s.repo.Get(ctx, in.CompanyID, in.PeriodID)
		if err != nil {
			return err
		}
		// Same shared lock as postings so a concurrent close waits for us.
		if _, err := s.EnsureOpen(ctx, in.CompanyID, period.StartDate); err != nil {
			return err
		}
		if s.accounts != nil {
			if _, err := s.accounts.RequirePostable(ctx, in.CompanyID, []int64{in.AccountID}); err != nil {
				return err
			}
		}
		saved, err = s.repo.UpsertOpening(ctx, OpeningBalance{
			CompanyID: in.CompanyID,
			PeriodID:  in.PeriodID,
			AccountID: in.AccountID,
			Debit:     shared.RoundMoney(in.Debit),
			Credit:    shared.RoundMoney(in.Credit),
		})
		if err != nil {
			return err
		}
		return events.Emit(ctx, s.outbox, in.CompanyID, events.TypeOpeningBalanceSet, "opening_balance",
			fmt.Sprintf("%d:%d", in.PeriodID, in.AccountID), saved, s.now())
	})
	if err != nil {
		return OpeningBalance{}, err
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if s.invalidator == nil {
			return
		}
		if err := s.invalidator.Invalidate(ctx, in.CompanyID); err != nil {
			s.logger.Warn("invalidate balances", zap.Int64("company_id", in.CompanyID), zap.Error(err))
		}
	})
	s.record(ctx, shared.AuditLog{
		CompanyID: in.CompanyID,
		ActorID:   in.ActorID,
		Action:    "period.opening_balance",
		Entity:    "opening_balance",
		EntityID:  fmt.Sprintf("%d:%d", in.PeriodID, in.AccountID),
		Meta:      map[string]any{"debit": saved.Debit.String(), "credit": saved.Credit.String()},
	})
	return saved, nil
}

// OpeningBalances lists the opening balances of a period.
func (s *Service) OpeningBalances(ctx context.Context, companyID, periodID int64) ([]OpeningBalance, error) {
	if _, err := s.repo.Get(ctx, companyID, periodID); err != nil {
		return nil, err
	}
	return s.repo.ListOpenings(ctx, companyID, periodID)
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("audit record failed", zap.String("action", log.Action), zap.Error(err))
		}
	})
}
