package accounts

import (
	"time"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Class enumerates chart of accounts categories.
type Class string

const (
	ClassAsset        Class = "ASSET"
	ClassLiability    Class = "LIABILITY"
	ClassEquity       Class = "EQUITY"
	ClassRevenue      Class = "REVENUE"
	ClassCOGS         Class = "COGS"
	ClassExpense      Class = "EXPENSE"
	ClassOtherIncome  Class = "OTHER_INCOME"
	ClassOtherExpense Class = "OTHER_EXPENSE"
)

// Valid reports whether c is a known class.
func (c Class) Valid() bool {
	switch c {
	case ClassAsset, ClassLiability, ClassEquity, ClassRevenue, ClassCOGS, ClassExpense, ClassOtherIncome, ClassOtherExpense:
		return true
	}
	return false
}

// IsBalanceSheet reports whether the class belongs on the balance sheet.
func (c Class) IsBalanceSheet() bool {
	return c == ClassAsset || c == ClassLiability || c == ClassEquity
}

// NormalSide is the side on which an account balance grows.
type NormalSide string

const (
	Debit  NormalSide = "DEBIT"
	Credit NormalSide = "CREDIT"
)

// DefaultNormalSide derives the conventional side from the class.
func DefaultNormalSide(c Class) NormalSide {
	switch c {
	case ClassAsset, ClassCOGS, ClassExpense, ClassOtherExpense:
		return Debit
	default:
		return Credit
	}
}

// Status toggles whether an account may receive new postings.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Account models a chart of accounts node.
type Account struct {
	ID         int64      `db:"id" json:"id"`
	CompanyID  int64      `db:"company_id" json:"companyId"`
	Code       string     `db:"code" json:"code"`
	Name       string     `db:"name" json:"name"`
	Class      Class      `db:"class" json:"class"`
	NormalSide NormalSide `db:"normal_side" json:"normalSide"`
	IsPosting  bool       `db:"is_posting" json:"isPosting"`
	ParentID   *int64     `db:"parent_id" json:"parentId,omitempty"`
	Status     Status     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// CheckPostable returns the reason a journal line may not use the account.
func (a Account) CheckPostable() error {
	if !a.IsPosting {
		return shared.Validation("accounting: account %s is a header account", a.Code)
	}
	if a.Status != StatusActive {
		return shared.Validation("accounting: account %s is inactive", a.Code)
	}
	return nil
}

// CreateInput captures a new account definition.
type CreateInput struct {
	CompanyID  int64      `json:"companyId" validate:"required,gt=0"`
	Code       string     `json:"code" validate:"required,max=32"`
	Name       string     `json:"name" validate:"required,max=160"`
	Class      Class      `json:"class" validate:"required"`
	NormalSide NormalSide `json:"normalSide" validate:"omitempty,oneof=DEBIT CREDIT"`
	IsPosting  bool       `json:"isPosting"`
	ParentID   *int64     `json:"parentId"`
	ActorID    int64      `json:"actorId"`
}

// UpdateInput carries a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Code        *string     `json:"code" validate:"omitempty,max=32"`
	Name        *string     `json:"name" validate:"omitempty,max=160"`
	NormalSide  *NormalSide `json:"normalSide" validate:"omitempty,oneof=DEBIT CREDIT"`
	IsPosting   *bool       `json:"isPosting"`
	Status      *Status     `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	ParentID    *int64      `json:"parentId"`
	ClearParent bool        `json:"clearParent"`
	ActorID     int64       `json:"actorId"`
}
