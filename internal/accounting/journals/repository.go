package journals

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Repository persists journal entries. Lines are insert-only.
type Repository interface {
	// NextNumber reserves the next gap-free entry number of a company. The
	// sequence row stays locked until the caller's transaction ends.
	NextNumber(ctx context.Context, companyID int64) (int64, error)
	Insert(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	Get(ctx context.Context, companyID, id int64) (JournalEntry, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error)
	MarkPosted(ctx context.Context, entry JournalEntry) error
	FindReversal(ctx context.Context, companyID, originalID int64) (int64, bool, error)
	CountDrafts(ctx context.Context, companyID int64, start, end time.Time) (int, error)
	// Unbalanced lists POSTED entries whose lines do not sum to zero.
	Unbalanced(ctx context.Context, companyID int64) ([]int64, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	entryColumns = []string{"id", "company_id", "number", "entry_date", "source_type", "source_id", "memo", "status",
		"posted_at", "posted_by", "created_by", "reversal_of", "created_at"}
	lineColumns = []string{"id", "entry_id", "line_no", "account_id", "debit", "credit", "memo",
		"cost_center_id", "department_id", "item_id", "warehouse_id"}
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	conn db.Conn
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(conn db.Conn) *PGRepository {
	return &PGRepository{conn: conn}
}

func (r *PGRepository) NextNumber(ctx context.Context, companyID int64) (int64, error) {
	var next int64
	err := r.conn.Querier(ctx).QueryRow(ctx, `INSERT INTO journal_sequences (company_id, last_number)
VALUES ($1, 1)
ON CONFLICT (company_id) DO UPDATE SET last_number = journal_sequences.last_number + 1
RETURNING last_number`, companyID).Scan(&next)
	if err != nil {
		return 0, shared.Storage("accounting: next journal number", err)
	}
	return next, nil
}

func (r *PGRepository) Insert(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	q := r.conn.Querier(ctx)
	query, args, err := psql.Insert("journal_entries").
		Columns("company_id", "number", "entry_date", "source_type", "source_id", "memo", "status",
			"posted_at", "posted_by", "created_by", "reversal_of").
		Values(entry.CompanyID, entry.Number, entry.Date, entry.SourceType, entry.SourceID, entry.Memo,
			entry.Status, entry.PostedAt, entry.PostedBy, entry.CreatedBy, entry.ReversalOf).
		Suffix("RETURNING " + strings.Join(entryColumns, ", ")).
		ToSql()
	if err != nil {
		return JournalEntry{}, err
	}
	var header JournalEntry
	if err := pgxscan.Get(ctx, q, &header, query, args...); err != nil {
		return JournalEntry{}, shared.Storage("accounting: insert journal entry", err)
	}

	batch := &pgx.Batch{}
	for _, line := range entry.Lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, memo,
	cost_center_id, department_id, item_id, warehouse_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+strings.Join(lineColumns, ", "),
			header.ID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Memo,
			line.CostCenterID, line.DepartmentID, line.ItemID, line.WarehouseID)
	}
	results := q.SendBatch(ctx, batch)
	defer results.Close()
	header.Lines = make([]JournalLine, 0, len(entry.Lines))
	for range entry.Lines {
		rows, err := results.Query()
		if err != nil {
			return JournalEntry{}, shared.Storage("accounting: insert journal line", err)
		}
		var line JournalLine
		if err := pgxscan.ScanOne(&line, rows); err != nil {
			return JournalEntry{}, shared.Storage("accounting: insert journal line", err)
		}
		header.Lines = append(header.Lines, line)
	}
	return header, nil
}

func (r *PGRepository) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return r.get(ctx, companyID, id, "")
}

func (r *PGRepository) GetForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return r.get(ctx, companyID, id, "FOR UPDATE")
}

func (r *PGRepository) get(ctx context.Context, companyID, id int64, lock string) (JournalEntry, error) {
	builder := psql.Select(entryColumns...).From("journal_entries").
		Where(sq.Eq{"company_id": companyID, "id": id})
	if lock != "" {
		builder = builder.Suffix(lock)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return JournalEntry{}, err
	}
	q := r.conn.Querier(ctx)
	var entry JournalEntry
	if err := pgxscan.Get(ctx, q, &entry, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return JournalEntry{}, shared.NotFound("journal entry", id)
		}
		return JournalEntry{}, shared.Storage("accounting: load journal entry", err)
	}
	query, args, err = psql.Select(lineColumns...).From("journal_lines").
		Where(sq.Eq{"entry_id": id}).OrderBy("line_no").ToSql()
	if err != nil {
		return JournalEntry{}, err
	}
	if err := pgxscan.Select(ctx, q, &entry.Lines, query, args...); err != nil {
		return JournalEntry{}, shared.Storage("accounting: load journal lines", err)
	}
	return entry, nil
}

func (r *PGRepository) MarkPosted(ctx context.Context, entry JournalEntry) error {
	query, args, err := psql.Update("journal_entries").
		SetMap(map[string]any{
			"status":    entry.Status,
			"number":    entry.Number,
			"posted_at": entry.PostedAt,
			"posted_by": entry.PostedBy,
		}).
		Where(sq.Eq{"company_id": entry.CompanyID, "id": entry.ID, "status": StatusDraft}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.conn.Querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return shared.Storage("accounting: mark journal posted", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.AlreadyPosted("accounting: journal entry %d is no longer a draft", entry.ID)
	}
	return nil
}

func (r *PGRepository) FindReversal(ctx context.Context, companyID, originalID int64) (int64, bool, error) {
	var id int64
	err := r.conn.Querier(ctx).QueryRow(ctx,
		`SELECT id FROM journal_entries WHERE company_id = $1 AND reversal_of = $2 LIMIT 1`, companyID, originalID).Scan(&id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return 0, false, nil
		}
		return 0, false, shared.Storage("accounting: find reversal", err)
	}
	return id, true, nil
}

func (r *PGRepository) CountDrafts(ctx context.Context, companyID int64, start, end time.Time) (int, error) {
	var n int
	err := r.conn.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries
WHERE company_id = $1 AND status = 'DRAFT' AND entry_date BETWEEN $2 AND $3`, companyID, start, end).Scan(&n)
	if err != nil {
		return 0, shared.Storage("accounting: count draft journals", err)
	}
	return n, nil
}

func (r *PGRepository) Unbalanced(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := r.conn.Querier(ctx).Query(ctx, `SELECT e.id FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
WHERE e.company_id = $1 AND e.status = 'POSTED'
GROUP BY e.id
HAVING SUM(l.debit) <> SUM(l.credit)
ORDER BY e.id`, companyID)
	if err != nil {
		return nil, shared.Storage("accounting: scan unbalanced journals", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, shared.Storage("accounting: scan unbalanced journals", err)
	}
	return ids, nil
}
