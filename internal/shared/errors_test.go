package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		kind     Kind
	}{
		{Validation("bad %s", "input"), ErrValidation, KindValidation},
		{Unbalanced(decimal.NewFromInt(10), decimal.NewFromInt(9)), ErrUnbalanced, KindUnbalanced},
		{PeriodClosed("closed"), ErrPeriodClosed, KindPeriodClosed},
		{InsufficientStock("short"), ErrInsufficientStock, KindInsufficientStock},
		{AlreadyPosted("again"), ErrAlreadyPosted, KindAlreadyPosted},
		{NotFound("account", 7), ErrNotFound, KindNotFound},
		{Conflict("dup"), ErrConflict, KindConflict},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		require.ErrorIs(t, wrapped, tc.sentinel)
		require.Equal(t, tc.kind, KindOf(wrapped))
		require.True(t, IsBusiness(wrapped))
		require.NotErrorIs(t, wrapped, ErrStorage)
	}
}

func TestStorageWrapping(t *testing.T) {
	require.NoError(t, Storage("noop", nil))

	plain := errors.New("connection reset")
	err := Storage("insert entry", plain)
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, plain)
	require.False(t, IsBusiness(err))
	require.Equal(t, KindStorage, KindOf(errors.New("untyped")))

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_accounts_code"}
	require.ErrorIs(t, Storage("insert account", dup), ErrConflict)

	overlap := &pgconn.PgError{Code: "23P01", ConstraintName: "fiscal_periods_no_overlap"}
	err = Storage("insert period", overlap)
	require.ErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "fiscal_periods_no_overlap")

	typed := NotFound("item", 3)
	require.Same(t, typed, Storage("load item", typed))
}

func TestErrorMessageIncludesSortedFields(t *testing.T) {
	err := ValidationFields("invalid request", map[string]string{"lines": "min=1", "date": "required"})
	require.Equal(t, "invalid request (date: required, lines: min=1)", err.Error())
}

func TestValidateStruct(t *testing.T) {
	type payload struct {
		Code  string `json:"code" validate:"required"`
		Count int    `json:"count" validate:"gte=1"`
	}
	require.NoError(t, ValidateStruct("payload", payload{Code: "A", Count: 1}))

	err := ValidateStruct("payload", payload{})
	require.ErrorIs(t, err, ErrValidation)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, "required", typed.Fields["code"])
	require.Equal(t, "gte=1", typed.Fields["count"])
}

func TestPageRequestNormalize(t *testing.T) {
	require.Equal(t, PageRequest{Limit: 100}, PageRequest{}.Normalize())
	require.Equal(t, PageRequest{Limit: 1000, Cursor: 9}, PageRequest{Limit: 5000, Offset: 20, Cursor: 9}.Normalize())
}
