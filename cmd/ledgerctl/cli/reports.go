package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/accounting/reports"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/inventory/documents"
	"github.com/odyssey-erp/ledgercore/internal/platform/httpx"
)

// Statements is the read side of the engine the report commands use.
type Statements interface {
	BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) httpx.Result[reports.BalanceSheet]
	IncomeStatement(ctx context.Context, companyID int64, from, to time.Time) httpx.Result[reports.IncomeStatement]
	TrialBalance(ctx context.Context, companyID int64, from, to time.Time) httpx.Result[reports.TrialBalance]
	StockLedger(ctx context.Context, q inventory.LedgerQuery) httpx.Result[inventory.LedgerPage]
}

// ReportsCLI prints statements as text or as the JSON result envelope.
type ReportsCLI struct {
	source   Statements
	renderer *reports.Renderer
	out      io.Writer
	asJSON   bool
}

// NewReportsCLI builds the report commands. A nil renderer forces JSON.
func NewReportsCLI(source Statements, renderer *reports.Renderer, out io.Writer) *ReportsCLI {
	return &ReportsCLI{source: source, renderer: renderer, out: out, asJSON: renderer == nil}
}

// BalanceSheet prints the balance sheet as of asOf.
func (c *ReportsCLI) BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) error {
	res := c.source.BalanceSheet(ctx, companyID, asOf)
	return emit(c, res, func(bs *reports.BalanceSheet) error { return c.renderer.BalanceSheet(c.out, *bs) })
}

// IncomeStatement prints the income statement for [from, to].
func (c *ReportsCLI) IncomeStatement(ctx context.Context, companyID int64, from, to time.Time) error {
	res := c.source.IncomeStatement(ctx, companyID, from, to)
	return emit(c, res, func(is *reports.IncomeStatement) error { return c.renderer.IncomeStatement(c.out, *is) })
}

// TrialBalance prints the trial balance for [from, to].
func (c *ReportsCLI) TrialBalance(ctx context.Context, companyID int64, from, to time.Time) error {
	res := c.source.TrialBalance(ctx, companyID, from, to)
	return emit(c, res, func(tb *reports.TrialBalance) error { return c.renderer.TrialBalance(c.out, *tb) })
}

// StockLedger prints one page of an item's stock ledger.
func (c *ReportsCLI) StockLedger(ctx context.Context, q inventory.LedgerQuery) error {
	res := c.source.StockLedger(ctx, q)
	return emit(c, res, func(page *inventory.LedgerPage) error {
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "DATE\tWAREHOUSE\tREFERENCE\tQTY\tUNIT COST\tVALUE\tON HAND\tAVG COST\tBALANCE\t")
		for _, e := range page.Entries {
			fmt.Fprintf(tw, "%s\t%d\t%s %s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				e.PostedAt.Format(time.DateOnly), e.WarehouseID, e.ReferenceType, e.ReferenceID,
				e.QtyDelta.String(), e.UnitCost.String(), c.renderer.Amount(e.Value),
				e.RunningQty.String(), e.RunningAvgCost.String(), c.renderer.Amount(e.RunningValue))
		}
		if page.NextCursor != 0 {
			fmt.Fprintf(tw, "next cursor: %d\n", page.NextCursor)
		}
		return tw.Flush()
	})
}

func emit[T any](c *ReportsCLI, res httpx.Result[T], text func(*T) error) error {
	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if !res.Success {
		return fmt.Errorf("%s (status %d)", res.Error, res.StatusCode)
	}
	if c.asJSON {
		return nil
	}
	return text(res.Data)
}

// WriteSchema prints the JSON Schema of the inbound document request.
func WriteSchema(out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(documents.Schema())
}
