package mappings

import (
	"context"
	"strings"

	"github.com/odyssey-erp/ledgercore/internal/accounting/accounts"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// AccountGuard validates mapped accounts.
type AccountGuard interface {
	RequirePostable(ctx context.Context, companyID int64, ids []int64) (map[int64]accounts.Account, error)
}

// Service resolves and maintains system account mappings.
type Service struct {
	repo     Repository
	accounts AccountGuard
}

// NewService wires the mapping service.
func NewService(repo Repository, guard AccountGuard) *Service {
	return &Service{repo: repo, accounts: guard}
}

// Resolve returns the account bound to module/key.
func (s *Service) Resolve(ctx context.Context, companyID int64, module, key string) (int64, error) {
	m, err := s.repo.Get(ctx, companyID, module, key)
	if err != nil {
		return 0, err
	}
	return m.AccountID, nil
}

// Set binds module/key to a posting account.
func (s *Service) Set(ctx context.Context, companyID int64, module, key string, accountID int64) (AccountMapping, error) {
	module, key = strings.TrimSpace(module), strings.TrimSpace(key)
	if module == "" || key == "" {
		return AccountMapping{}, shared.Validation("accounting: module and key required")
	}
	if _, err := s.accounts.RequirePostable(ctx, companyID, []int64{accountID}); err != nil {
		return AccountMapping{}, err
	}
	return s.repo.Upsert(ctx, AccountMapping{CompanyID: companyID, Module: module, Key: key, AccountID: accountID})
}

// List returns the mappings of a module.
func (s *Service) List(ctx context.Context, companyID int64, module string) ([]AccountMapping, error) {
	return s.repo.List(ctx, companyID, module)
}
