package journals

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/accounting/periods"
	"github.com/odyssey-erp/ledgercore/internal/events"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AccountGuard validates that every referenced account accepts postings.
type AccountGuard interface {
	RequirePostable(ctx context.Context, companyID int64, ids []int64) (map[int64]accounts.Account, error)
}

// PeriodGate returns the OPEN period covering a date and holds it open until commit.
type PeriodGate interface {
	EnsureOpen(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
}

// Service orchestrates journal posting and reversal.
type Service struct {
	repo        Repository
	tx          db.TxRunner
	accounts    AccountGuard
	periods     PeriodGate
	outbox      events.Outbox
	audit       shared.Auditor
	invalidator periods.Invalidator
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithOutbox emits journal events through outbox.
func WithOutbox(outbox events.Outbox) Option { return func(s *Service) { s.outbox = outbox } }

// WithAudit records posting and reversal.
func WithAudit(audit shared.Auditor) Option { return func(s *Service) { s.audit = audit } }

// WithInvalidator drops cached balances after every post.
func WithInvalidator(inv periods.Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithMetrics counts posted entries.
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("journals")
		}
	}
}

// NewService constructs the journal service.
func NewService(repo Repository, tx db.TxRunner, guard AccountGuard, gate PeriodGate, opts ...Option) *Service {
	s := &Service{repo: repo, tx: tx, accounts: guard, periods: gate, logger: zap.NewNop(), now: time.Now}
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

// CreateAndPost validates, numbers and posts an entry atomically. When ctx
// already carries a transaction the entry commits or rolls back with it.
func (s *Service) CreateAndPost(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	started := time.Now()
	var posted JournalEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		posted, err = s.post(ctx, in, nil)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.metrics.ObservePosting("journal.post", started)
	s.afterPost(ctx, posted, "journal.post", in.ActorID)
	return posted, nil
}

// CreateDraft stores an unnumbered DRAFT entry. Drafts never affect balances.
func (s *Service) CreateDraft(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var draft JournalEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.accounts.RequirePostable(ctx, in.CompanyID, in.AccountIDs()); err != nil {
			return err
		}
		if _, err := s.periods.EnsureOpen(ctx, in.CompanyID, in.Date); err != nil {
			return err
		}
		var err error
		draft, err = s.repo.Insert(ctx, in.entry(StatusDraft))
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, shared.AuditLog{
		CompanyID: draft.CompanyID,
		ActorID:   in.ActorID,
		Action:    "journal.draft",
		Entity:    "journal_entry",
		EntityID:  strconv.FormatInt(draft.ID, 10),
	})
	return draft, nil
}

// PostDraft numbers and posts an existing DRAFT entry.
func (s *Service) PostDraft(ctx context.Context, companyID, id, actorID int64) (JournalEntry, error) {
	started := time.Now()
	var posted JournalEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entry, err := s.repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if entry.Status == StatusPosted {
			return shared.AlreadyPosted("accounting: journal entry %d is already posted as #%d", entry.ID, entry.Number)
		}
		ids := make([]int64, 0, len(entry.Lines))
		for _, l := range entry.Lines {
			ids = append(ids, l.AccountID)
		}
		if _, err := s.accounts.RequirePostable(ctx, companyID, ids); err != nil {
			return err
		}
		if _, err := s.periods.EnsureOpen(ctx, companyID, entry.Date); err != nil {
			return err
		}
		number, err := s.repo.NextNumber(ctx, companyID)
		if err != nil {
			return err
		}
		if err := entry.post(number, actorID, s.now().UTC()); err != nil {
			return err
		}
		if err := s.repo.MarkPosted(ctx, entry); err != nil {
			return err
		}
		posted = entry
		return s.emit(ctx, events.TypeJournalPosted, posted)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.metrics.ObservePosting("journal.post_draft", started)
	s.afterPost(ctx, posted, "journal.post", actorID)
	return posted, nil
}

// Reverse posts a mirror entry of a POSTED entry. An entry can be reversed once.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	started := time.Now()
	var reversal JournalEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Row lock on the original serialises concurrent reversals.
		original, err := s.repo.GetForUpdate(ctx, in.CompanyID, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return shared.Validation("accounting: journal entry %d is not posted", original.ID)
		}
		if existing, ok, err := s.repo.FindReversal(ctx, in.CompanyID, original.ID); err != nil {
			return err
		} else if ok {
			return shared.Conflict("accounting: journal entry #%d already reversed by entry %d", original.Number, existing)
		}
		date := original.Date
		if in.Date != nil {
			date = *in.Date
		}
		posting := PostingInput{
			CompanyID:  in.CompanyID,
			Date:       date,
			SourceType: SourceReversal,
			SourceID:   strconv.FormatInt(original.ID, 10),
			Memo:       defaultReversalMemo(in.Memo, original.Number),
			ActorID:    in.ActorID,
			Lines:      reverseLines(original.Lines),
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		reversal, err = s.post(ctx, posting, &original.ID)
		if err != nil {
			return err
		}
		return events.Emit(ctx, s.outbox, in.CompanyID, events.TypeJournalReversed, "journal_entry",
			strconv.FormatInt(original.ID, 10), map[string]any{
				"originalId":     original.ID,
				"originalNumber": original.Number,
				"reversalId":     reversal.ID,
				"reversalNumber": reversal.Number,
			}, s.now())
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.metrics.ObservePosting("journal.reverse", started)
	s.afterPost(ctx, reversal, "journal.reverse", in.ActorID)
	return reversal, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, companyID, id)
}

// Unbalanced lists POSTED entries whose debits and credits disagree.
func (s *Service) Unbalanced(ctx context.Context, companyID int64) ([]int64, error) {
	return s.repo.Unbalanced(ctx, companyID)
}

// post runs inside a transaction: accounts and period are checked under lock
// before the entry takes its number.
func (s *Service) post(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error) {
	if _, err := s.accounts.RequirePostable(ctx, in.CompanyID, in.AccountIDs()); err != nil {
		return JournalEntry{}, err
	}
	if _, err := s.periods.EnsureOpen(ctx, in.CompanyID, in.Date); err != nil {
		return JournalEntry{}, err
	}
	number, err := s.repo.NextNumber(ctx, in.CompanyID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry := in.entry(StatusDraft)
	entry.ReversalOf = reversalOf
	if err := entry.post(number, in.ActorID, s.now().UTC()); err != nil {
		return JournalEntry{}, err
	}
	saved, err := s.repo.Insert(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	return saved, s.emit(ctx, events.TypeJournalPosted, saved)
}

func (s *Service) emit(ctx context.Context, eventType string, entry JournalEntry) error {
	return events.Emit(ctx, s.outbox, entry.CompanyID, eventType, "journal_entry",
		strconv.FormatInt(entry.ID, 10), entry, s.now())
}

func (s *Service) afterPost(ctx context.Context, entry JournalEntry, action string, actorID int64) {
	db.AfterCommit(ctx, func(ctx context.Context) {
		s.metrics.JournalPosted(string(entry.SourceType))
		if s.invalidator != nil {
			if err := s.invalidator.Invalidate(ctx, entry.CompanyID); err != nil {
				s.logger.Warn("invalidate balances", zap.Int64("company_id", entry.CompanyID), zap.Error(err))
			}
		}
		s.logger.Debug("journal posted",
			zap.Int64("company_id", entry.CompanyID),
			zap.Int64("number", entry.Number),
			zap.String("source", string(entry.SourceType)))
	})
	debit, _ := entry.Totals()
	s.record(ctx, shared.AuditLog{
		CompanyID: entry.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  strconv.FormatInt(entry.ID, 10),
		Meta: map[string]any{
			"number": entry.Number,
			"source": entry.SourceType,
			"amount": debit.String(),
		},
	})
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

// DraftBlocker keeps a period open while it still holds DRAFT entries.
type DraftBlocker struct {
	repo Repository
}

// NewDraftBlocker wraps repo as a period close precondition.
func NewDraftBlocker(repo Repository) DraftBlocker { return DraftBlocker{repo: repo} }

func (DraftBlocker) Name() string { return "draft journal entries" }

func (b DraftBlocker) CountOpen(ctx context.Context, companyID int64, start, end time.Time) (int, error) {
	return b.repo.CountDrafts(ctx, companyID, start, end)
}
