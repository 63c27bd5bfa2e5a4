package journals

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID    int64           `json:"accountId"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Memo         string          `json:"memo,omitempty"`
	CostCenterID *int64          `json:"costCenterId,omitempty"`
	DepartmentID *int64          `json:"departmentId,omitempty"`
	ItemID       *int64          `json:"itemId,omitempty"`
	WarehouseID  *int64          `json:"warehouseId,omitempty"`
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	CompanyID  int64              `json:"companyId"`
	Date       time.Time          `json:"date"`
	SourceType SourceType         `json:"sourceType"`
	SourceID   string             `json:"sourceId,omitempty"`
	Memo       string             `json:"memo"`
	ActorID    int64              `json:"actorId"`
	Lines      []PostingLineInput `json:"lines"`
}

// Validate ensures the posting input is well formed and balanced.
func (in PostingInput) Validate() error {
	if in.CompanyID <= 0 {
		return shared.Validation("accounting: company required")
	}
	if in.Date.IsZero() {
		return shared.Validation("accounting: entry date required")
	}
	if strings.TrimSpace(string(in.SourceType)) == "" {
		return shared.Validation("accounting: source type required")
	}
	if len(in.Lines) < 2 {
		return shared.Validation("accounting: journal requires at least two lines")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if err := line.validate(idx + 1); err != nil {
			return err
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return shared.Unbalanced(debit, credit)
	}
	return nil
}

func (l PostingLineInput) validate(lineNo int) error {
	if l.AccountID <= 0 {
		return shared.Validation("accounting: line %d missing account", lineNo)
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return shared.Validation("accounting: line %d has a negative amount", lineNo)
	}
	if l.Debit.IsZero() == l.Credit.IsZero() {
		return shared.Validation("accounting: line %d must carry exactly one of debit or credit", lineNo)
	}
	for _, amt := range []decimal.Decimal{l.Debit, l.Credit} {
		if !amt.Equal(shared.RoundMoney(amt)) {
			return shared.Validation("accounting: line %d amount %s exceeds %d decimal places", lineNo, amt, shared.MoneyScale)
		}
	}
	return nil
}

// AccountIDs returns the distinct accounts referenced by the lines.
func (in PostingInput) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(in.Lines))
	out := make([]int64, 0, len(in.Lines))
	for _, l := range in.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		out = append(out, l.AccountID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (in PostingInput) entry(status Status) JournalEntry {
	e := JournalEntry{
		CompanyID:  in.CompanyID,
		Date:       shared.DateOnly(in.Date),
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		Memo:       in.Memo,
		Status:     status,
		CreatedBy:  in.ActorID,
		Lines:      make([]JournalLine, 0, len(in.Lines)),
	}
	for i, l := range in.Lines {
		e.Lines = append(e.Lines, JournalLine{
			LineNo:       i + 1,
			AccountID:    l.AccountID,
			Debit:        l.Debit,
			Credit:       l.Credit,
			Memo:         l.Memo,
			CostCenterID: l.CostCenterID,
			DepartmentID: l.DepartmentID,
			ItemID:       l.ItemID,
			WarehouseID:  l.WarehouseID,
		})
	}
	return e
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	CompanyID int64      `json:"companyId"`
	EntryID   int64      `json:"entryId"`
	ActorID   int64      `json:"actorId"`
	Memo      string     `json:"memo"`
	Date      *time.Time `json:"date,omitempty"`
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
