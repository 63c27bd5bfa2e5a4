package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/ledgercore/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/ledgercore/internal/accounting/reports"
	"github.com/odyssey-erp/ledgercore/internal/app"
	"github.com/odyssey-erp/ledgercore/internal/engine"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  schema             print the JSON Schema of inventory document requests
  enqueue <type>     enqueue a background job (-payload JSON)
  queues             show job queue depth
  balance-sheet      -company -as-of
  income-statement   -company -from -to
  trial-balance      -company -from -to
  stock-ledger       -company -item [-warehouse] [-from] [-to] [-limit] [-cursor]

report commands accept -json and -lang.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	switch command {
	case "schema":
		return cli.WriteSchema(out)
	case "enqueue":
		return enqueue(ctx, args, out)
	case "queues":
		return queues(out)
	case "balance-sheet", "income-statement", "trial-balance", "stock-ledger":
		return report(ctx, command, args, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func enqueue(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	payload := fs.String("payload", "", "JSON payload of the task")
	if len(args) == 0 {
		return errors.New("enqueue: task type required")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() { _ = jobsCLI.Close() }()

	info, err := jobsCLI.Trigger(ctx, args[0], []byte(*payload))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return nil
}

func queues(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() { _ = jobsCLI.Close() }()

	stats, err := jobsCLI.InspectQueues()
	if err != nil {
		return err
	}
	for _, s := range stats {
		fmt.Fprintf(out, "%-10s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return nil
}

type reportFlags struct {
	company   int64
	asOf      string
	from      string
	to        string
	item      int64
	warehouse int64
	limit     int
	cursor    int64
	lang      string
	json      bool
}

func parseReportFlags(command string, args []string) (reportFlags, error) {
	var f reportFlags
	today := time.Now().UTC().Format(time.DateOnly)
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.Int64Var(&f.company, "company", 1, "company id")
	fs.StringVar(&f.asOf, "as-of", today, "balance sheet date (YYYY-MM-DD)")
	fs.StringVar(&f.from, "from", "", "range start (YYYY-MM-DD)")
	fs.StringVar(&f.to, "to", today, "range end (YYYY-MM-DD)")
	fs.Int64Var(&f.item, "item", 0, "item id")
	fs.Int64Var(&f.warehouse, "warehouse", 0, "warehouse id, 0 for all")
	fs.IntVar(&f.limit, "limit", 50, "page size")
	fs.Int64Var(&f.cursor, "cursor", 0, "resume after this ledger entry id")
	fs.StringVar(&f.lang, "lang", "en", "number formatting locale")
	fs.BoolVar(&f.json, "json", false, "print the JSON result envelope")
	return f, fs.Parse(args)
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("-%s: %w", name, err)
	}
	return t, nil
}

func report(ctx context.Context, command string, args []string, out io.Writer) error {
	f, err := parseReportFlags(command, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	eng := engine.New(engine.PostgresRepositories(db.NewTxManager(pool, zap.NewNop())), engine.Config{})
	var renderer *reports.Renderer
	if !f.json {
		tag, err := language.Parse(f.lang)
		if err != nil {
			return fmt.Errorf("-lang: %w", err)
		}
		renderer = reports.NewRenderer(tag)
	}
	return dispatchReport(ctx, cli.NewReportsCLI(eng, renderer, out), command, f)
}

func dispatchReport(ctx context.Context, c *cli.ReportsCLI, command string, f reportFlags) error {
	if command == "balance-sheet" {
		asOf, err := parseDate("as-of", f.asOf)
		if err != nil {
			return err
		}
		return c.BalanceSheet(ctx, f.company, asOf)
	}

	to, err := parseDate("to", f.to)
	if err != nil {
		return err
	}
	var from time.Time
	if f.from != "" {
		if from, err = parseDate("from", f.from); err != nil {
			return err
		}
	} else if command != "stock-ledger" {
		from = time.Date(to.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	switch command {
	case "income-statement":
		return c.IncomeStatement(ctx, f.company, from, to)
	case "trial-balance":
		return c.TrialBalance(ctx, f.company, from, to)
	default:
		if f.item <= 0 {
			return errors.New("stock-ledger: -item is required")
		}
		q := inventory.LedgerQuery{CompanyID: f.company, ItemID: f.item, To: &to, Limit: f.limit, Cursor: f.cursor}
		if f.warehouse > 0 {
			q.WarehouseID = &f.warehouse
		}
		if !from.IsZero() {
			q.From = &from
		}
		return c.StockLedger(ctx, q)
	}
}
