package reports

import (
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Renderer writes statements as aligned text with locale number formatting.
type Renderer struct {
	printer *message.Printer
	decimal string
}

// NewRenderer builds a renderer for tag.
func NewRenderer(tag language.Tag) *Renderer {
	p := message.NewPrinter(tag)
	sample := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	sep := "."
	if len(sample) == 3 {
		sep = string(sample[1])
	}
	return &Renderer{printer: p, decimal: sep}
}

// Amount formats d at money scale with locale grouping. Only the integer part
// goes through the printer so no precision is lost.
func (r *Renderer) Amount(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole, _ := decimal.NewFromString(intPart)
	out := r.printer.Sprintf("%d", whole.IntPart()) + r.decimal + frac
	if d.IsNegative() {
		return "(" + out + ")"
	}
	return out
}

func (r *Renderer) line(w io.Writer, indent int, label, amount string) {
	r.printer.Fprintf(w, "%-48s %20s\n", strings.Repeat("  ", indent)+label, amount)
}

func (r *Renderer) section(w io.Writer, sec Section) {
	r.printer.Fprintf(w, "%s\n", sec.Label)
	for _, row := range sec.Rows {
		label := row.Name
		if row.Code != "" {
			label = row.Code + " " + row.Name
		}
		r.line(w, row.Depth+1, label, r.Amount(row.Amount))
	}
	r.line(w, 0, "Total "+strings.ToLower(sec.Label), r.Amount(sec.Total))
	r.printer.Fprintln(w)
}

// BalanceSheet writes bs to w.
func (r *Renderer) BalanceSheet(w io.Writer, bs BalanceSheet) error {
	ew := &errWriter{w: w}
	r.printer.Fprintf(ew, "Balance sheet as of %s\n\n", bs.AsOf.Format(time.DateOnly))
	r.section(ew, bs.Assets)
	r.section(ew, bs.Liabilities)
	r.section(ew, bs.Equity)
	r.line(ew, 0, "Total liabilities and equity", r.Amount(bs.TotalLiabilitiesAndEquity))
	for _, warn := range bs.Warnings {
		r.printer.Fprintf(ew, "warning: %s\n", warn)
	}
	return ew.err
}

// IncomeStatement writes is to w.
func (r *Renderer) IncomeStatement(w io.Writer, is IncomeStatement) error {
	ew := &errWriter{w: w}
	r.printer.Fprintf(ew, "Income statement %s to %s\n\n", is.From.Format(time.DateOnly), is.To.Format(time.DateOnly))
	r.section(ew, is.Revenue)
	r.section(ew, is.COGS)
	r.line(ew, 0, "Gross profit", r.Amount(is.GrossProfit))
	r.printer.Fprintln(ew)
	r.section(ew, is.OperatingExpenses)
	r.line(ew, 0, "Operating income", r.Amount(is.OperatingIncome))
	r.printer.Fprintln(ew)
	r.section(ew, is.OtherIncome)
	r.section(ew, is.OtherExpenses)
	r.line(ew, 0, "Net income", r.Amount(is.NetIncome))
	return ew.err
}

// TrialBalance writes tb to w.
func (r *Renderer) TrialBalance(w io.Writer, tb TrialBalance) error {
	ew := &errWriter{w: w}
	r.printer.Fprintf(ew, "Trial balance %s to %s\n\n", tb.From.Format(time.DateOnly), tb.To.Format(time.DateOnly))
	row := func(label string, opening, debit, credit, closing decimal.Decimal) {
		r.printer.Fprintf(ew, "%-36s %18s %18s %18s %18s\n", label,
			r.Amount(opening), r.Amount(debit), r.Amount(credit), r.Amount(closing))
	}
	r.printer.Fprintf(ew, "%-36s %18s %18s %18s %18s\n", "Account", "Opening", "Debit", "Credit", "Closing")
	for _, grp := range tb.Groups {
		r.printer.Fprintf(ew, "%s\n", grp.Class)
		for _, acc := range grp.Accounts {
			row("  "+acc.Code+" "+acc.Name, acc.Opening, acc.Debit, acc.Credit, acc.Closing)
		}
		row("  Subtotal", grp.Opening, grp.Debit, grp.Credit, grp.Closing)
	}
	row("Total", tb.TotalOpening, tb.TotalDebit, tb.TotalCredit, tb.TotalClosing)
	for _, warn := range tb.Warnings {
		r.printer.Fprintf(ew, "warning: %s\n", warn)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}
