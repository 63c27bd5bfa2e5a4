package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ledgercore/tx")

// Querier is satisfied by both pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TxRunner runs fn inside a transaction carried by the returned context.
// Nested calls join the outer transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Conn hands repositories the active transaction or the pool.
type Conn interface {
	Querier(ctx context.Context) Querier
}

// TxOptions configures transactions started by TxManager.
type TxOptions struct {
	IsoLevel         pgx.TxIsoLevel
	StatementTimeout time.Duration
}

// DefaultTxOptions uses read committed; row locks provide the serialization points.
func DefaultTxOptions() TxOptions {
	return TxOptions{IsoLevel: pgx.ReadCommitted, StatementTimeout: 30 * time.Second}
}

type txKey struct{}

// TxManager owns transaction boundaries for the PostgreSQL repositories.
type TxManager struct {
	pool   *pgxpool.Pool
	opts   TxOptions
	logger *zap.Logger
}

// NewTxManager builds a manager on top of the pool.
func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) *TxManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxManager{pool: pool, opts: DefaultTxOptions(), logger: logger.Named("tx")}
}

// WithOptions overrides the default transaction options.
func (m *TxManager) WithOptions(opts TxOptions) *TxManager {
	m.opts = opts
	return m
}

// WithinTx executes fn in a transaction, reusing one already present in ctx.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(attribute.String("tx.isolation", string(m.opts.IsoLevel))))
	defer span.End()

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: m.opts.IsoLevel})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	if m.opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", m.opts.StatementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(context.Background())
			return fmt.Errorf("platform/db: statement timeout: %w", err)
		}
	}

	txCtx, scope := BeginScope(context.WithValue(ctx, txKey{}, tx))
	if err := fn(txCtx); err != nil {
		// Background context so the rollback completes when ctx was cancelled.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			m.logger.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		span.RecordError(err)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	scope.Committed(ctx)
	return nil
}

// Querier returns the transaction in ctx or the pool.
func (m *TxManager) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return m.pool
}

// Pool exposes the underlying pool for read-only jobs.
func (m *TxManager) Pool() *pgxpool.Pool { return m.pool }
