package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{shared.Validation("bad"), http.StatusBadRequest},
		{shared.Unbalanced(decimal.NewFromInt(2), decimal.NewFromInt(1)), http.StatusBadRequest},
		{shared.ErrPeriodClosed, http.StatusBadRequest},
		{shared.ErrInsufficientStock, http.StatusBadRequest},
		{shared.NotFound("account", 9), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", shared.Conflict("dup")), http.StatusConflict},
		{shared.ErrAlreadyPosted, http.StatusConflict},
		{shared.Storage("load", errors.New("conn reset")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), "%v", tc.err)
	}
}

func TestFailHidesStorageDetail(t *testing.T) {
	res := From(0, shared.Storage("insert journal", errors.New("password authentication failed")))
	require.False(t, res.Success)
	require.Nil(t, res.Data)
	require.Equal(t, "internal error", res.Error)

	res = From(0, shared.NotFound("item", 4))
	require.Equal(t, "item 4 not found", res.Error)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	ok := From(7, nil)
	require.True(t, ok.Success)
	require.Equal(t, 7, *ok.Data)
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.Validation("qty must be positive"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"success":false,"error":"qty must be positive","statusCode":400}`, rec.Body.String())
}
