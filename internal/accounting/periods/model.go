package periods

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Status enumerates valid period states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Period represents a fiscal period window.
type Period struct {
	ID        int64      `db:"id" json:"id"`
	CompanyID int64      `db:"company_id" json:"companyId"`
	Year      int        `db:"year" json:"year"`
	Month     int        `db:"month" json:"month"`
	StartDate time.Time  `db:"start_date" json:"startDate"`
	EndDate   time.Time  `db:"end_date" json:"endDate"`
	Status    Status     `db:"status" json:"status"`
	ClosedAt  *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	ClosedBy  *int64     `db:"closed_by" json:"closedBy,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsClosed reports whether postings are locked.
func (p Period) IsClosed() bool { return p.Status == StatusClosed }

// Code formats the period as YYYY-MM.
func (p Period) Code() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// Contains reports whether date falls inside the period, inclusive.
func (p Period) Contains(date time.Time) bool {
	d := shared.DateOnly(date)
	return !d.Before(shared.DateOnly(p.StartDate)) && !d.After(shared.DateOnly(p.EndDate))
}

// Overlaps reports whether [start, end] intersects the period.
func (p Period) Overlaps(start, end time.Time) bool {
	return !shared.DateOnly(start).After(shared.DateOnly(p.EndDate)) &&
		!shared.DateOnly(end).Before(shared.DateOnly(p.StartDate))
}

// close moves the period OPEN -> CLOSED. CLOSED is terminal.
func (p Period) close(actorID int64, at time.Time) (Period, error) {
	if p.Status != StatusOpen {
		return p, shared.Conflict("accounting: period %s is already closed", p.Code())
	}
	p.Status = StatusClosed
	p.ClosedAt = &at
	p.ClosedBy = &actorID
	return p, nil
}

// CreateInput captures a new fiscal period.
type CreateInput struct {
	CompanyID int64     `json:"companyId" validate:"required,gt=0"`
	Year      int       `json:"year" validate:"required,gte=1900,lte=9999"`
	Month     int       `json:"month" validate:"required,gte=1,lte=12"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
	ActorID   int64     `json:"actorId"`
}

// OpeningBalance is the starting balance of an account for a period.
type OpeningBalance struct {
	CompanyID int64           `db:"company_id" json:"companyId"`
	PeriodID  int64           `db:"period_id" json:"periodId"`
	AccountID int64           `db:"account_id" json:"accountId"`
	Debit     decimal.Decimal `db:"debit" json:"debit"`
	Credit    decimal.Decimal `db:"credit" json:"credit"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// OpeningBalanceInput sets one opening balance row.
type OpeningBalanceInput struct {
	CompanyID int64           `json:"companyId" validate:"required,gt=0"`
	PeriodID  int64           `json:"periodId" validate:"required,gt=0"`
	AccountID int64           `json:"accountId" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	ActorID   int64           `json:"actorId"`
}

func (in OpeningBalanceInput) validate() error {
	if err := shared.ValidateStruct("accounting: invalid opening balance", in); err != nil {
		return err
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return shared.Validation("accounting: opening balance amounts must not be negative")
	}
	if in.Debit.IsPositive() && in.Credit.IsPositive() {
		return shared.Validation("accounting: opening balance cannot carry both debit and credit")
	}
	return nil
}
