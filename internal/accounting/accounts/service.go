package accounts

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Service maintains the chart of accounts.
type Service struct {
	repo        Repository
	tx          db.TxRunner
	audit       shared.Auditor
	invalidator Invalidator
	logger      *zap.Logger
}

// Invalidator drops memoized balances of a company.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// NewService wires the account service. audit may be nil.
func NewService(repo Repository, tx db.TxRunner, audit shared.Auditor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, tx: tx, audit: audit, logger: logger.Named("accounts")}
}

// SetInvalidator drops cached balances after an account changes. The ledger
// is built on top of this service, so it is attached after construction.
func (s *Service) SetInvalidator(inv Invalidator) { s.invalidator = inv }

// Create registers a new account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct("accounting: invalid account", in); err != nil {
		return Account{}, err
	}
	if !in.Class.Valid() {
		return Account{}, shared.Validation("accounting: unknown account class %q", in.Class)
	}
	side := in.NormalSide
	if side == "" {
		side = DefaultNormalSide(in.Class)
	}

	var created Account
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByCode(ctx, in.CompanyID, in.Code); err == nil {
			return shared.Conflict("accounting: account code %s already exists", in.Code)
		} else if !isNotFound(err) {
			return err
		}
		if in.ParentID != nil {
			if err := s.checkParent(ctx, in.CompanyID, 0, *in.ParentID); err != nil {
				return err
			}
		}
		var err error
		created, err = s.repo.Insert(ctx, Account{
			CompanyID:  in.CompanyID,
			Code:       in.Code,
			Name:       in.Name,
			Class:      in.Class,
			NormalSide: side,
			IsPosting:  in.IsPosting,
			ParentID:   in.ParentID,
			Status:     StatusActive,
		})
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.CompanyID, in.ActorID, "account.create", created)
	return created, nil
}

// Update applies a partial change to an account.
func (s *Service) Update(ctx context.Context, companyID, id int64, in UpdateInput) (Account, error) {
	if err := shared.ValidateStruct("accounting: invalid account update", in); err != nil {
		return Account{}, err
	}
	var updated Account
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acc, err := s.repo.Get(ctx, companyID, id)
		if err != nil {
			return err
		}
		if in.Code != nil {
			code := strings.TrimSpace(*in.Code)
			if code == "" {
				return shared.Validation("accounting: account code required")
			}
			if code != acc.Code {
				if _, err := s.repo.GetByCode(ctx, companyID, code); err == nil {
					return shared.Conflict("accounting: account code %s already exists", code)
				} else if !isNotFound(err) {
					return err
				}
				acc.Code = code
			}
		}
		if in.Name != nil {
			acc.Name = strings.TrimSpace(*in.Name)
		}
		if in.NormalSide != nil && *in.NormalSide != acc.NormalSide {
			hasPostings, err := s.repo.HasPostings(ctx, companyID, acc.ID)
			if err != nil {
				return err
			}
			if hasPostings {
				return shared.Conflict("accounting: account %s has postings and keeps its normal side", acc.Code)
			}
			acc.NormalSide = *in.NormalSide
		}
		if in.Status != nil {
			acc.Status = *in.Status
		}
		if in.IsPosting != nil && *in.IsPosting != acc.IsPosting {
			if err := s.checkPostingFlip(ctx, acc, *in.IsPosting); err != nil {
				return err
			}
			acc.IsPosting = *in.IsPosting
		}
		switch {
		case in.ClearParent:
			acc.ParentID = nil
		case in.ParentID != nil:
			if err := s.checkParent(ctx, companyID, acc.ID, *in.ParentID); err != nil {
				return err
			}
			parent := *in.ParentID
			acc.ParentID = &parent
		}
		updated, err = s.repo.Update(ctx, acc)
		if err != nil {
			return err
		}
		s.invalidateAfterCommit(ctx, companyID)
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, companyID, in.ActorID, "account.update", updated)
	return updated, nil
}

// Delete removes an account that has neither postings nor children.
func (s *Service) Delete(ctx context.Context, companyID, id, actorID int64) error {
	var removed Account
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acc, err := s.repo.Get(ctx, companyID, id)
		if err != nil {
			return err
		}
		hasChildren, err := s.repo.HasChildren(ctx, companyID, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return shared.Conflict("accounting: account %s has child accounts", acc.Code)
		}
		hasPostings, err := s.repo.HasPostings(ctx, companyID, id)
		if err != nil {
			return err
		}
		if hasPostings {
			return shared.Conflict("accounting: account %s has postings", acc.Code)
		}
		removed = acc
		if err := s.repo.Delete(ctx, companyID, id); err != nil {
			return err
		}
		s.invalidateAfterCommit(ctx, companyID)
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "account.delete", removed)
	return nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Account, error) {
	return s.repo.Get(ctx, companyID, id)
}

// GetByCode returns an account by its company-unique code.
func (s *Service) GetByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, companyID, code)
}

// List returns every account of the company ordered by code.
func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.repo.List(ctx, companyID)
}

// Tree returns the company's account hierarchy.
func (s *Service) Tree(ctx context.Context, companyID int64) ([]*Node, error) {
	list, err := s.repo.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return BuildTree(list), nil
}

// RequirePostable loads the referenced accounts and fails unless each exists,
// is active and is a posting account.
func (s *Service) RequirePostable(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	unique := uniqueIDs(ids)
	list, err := s.repo.ListByIDs(ctx, companyID, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Account, len(list))
	for _, acc := range list {
		byID[acc.ID] = acc
	}
	for _, id := range unique {
		acc, ok := byID[id]
		if !ok {
			return nil, shared.NotFound("account", id)
		}
		if err := acc.CheckPostable(); err != nil {
			return nil, err
		}
	}
	return byID, nil
}

func (s *Service) checkParent(ctx context.Context, companyID, id, parentID int64) error {
	if id != 0 && parentID == id {
		return shared.Validation("accounting: account cannot be its own parent")
	}
	parent, err := s.repo.Get(ctx, companyID, parentID)
	if err != nil {
		return err
	}
	if parent.IsPosting {
		return shared.Validation("accounting: parent %s is a posting account", parent.Code)
	}
	if id == 0 {
		return nil
	}
	list, err := s.repo.List(ctx, companyID)
	if err != nil {
		return err
	}
	if createsCycle(list, id, parentID) {
		return shared.Validation("accounting: parent %s would create a cycle", parent.Code)
	}
	return nil
}

func (s *Service) checkPostingFlip(ctx context.Context, acc Account, posting bool) error {
	if posting {
		hasChildren, err := s.repo.HasChildren(ctx, acc.CompanyID, acc.ID)
		if err != nil {
			return err
		}
		if hasChildren {
			return shared.Validation("accounting: account %s has children and cannot receive postings", acc.Code)
		}
		return nil
	}
	hasPostings, err := s.repo.HasPostings(ctx, acc.CompanyID, acc.ID)
	if err != nil {
		return err
	}
	if hasPostings {
		return shared.Conflict("accounting: account %s has postings", acc.Code)
	}
	return nil
}

func (s *Service) invalidateAfterCommit(ctx context.Context, companyID int64) {
	if s.invalidator == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.invalidator.Invalidate(ctx, companyID); err != nil {
			s.logger.Warn("invalidate balances", zap.Int64("company_id", companyID), zap.Error(err))
		}
	})
}

func (s *Service) record(ctx context.Context, companyID, actorID int64, action string, acc Account) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "account",
		EntityID:  strconv.FormatInt(acc.ID, 10),
		Meta:      map[string]any{"code": acc.Code, "class": acc.Class},
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("audit record failed", zap.String("action", action), zap.Error(err))
		}
	})
}

func isNotFound(err error) bool {
	return shared.KindOf(err) == shared.KindNotFound
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
