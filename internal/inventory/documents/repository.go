package documents

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

// Repository persists inventory documents.
type Repository interface {
	// NextNumber reserves the next number of a prefix within a month. The
	// sequence row stays locked until the caller's transaction ends.
	NextNumber(ctx context.Context, companyID int64, prefix string, year, month int) (int64, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, companyID, id int64) (Document, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (Document, error)
	// Save writes the mutable header fields and line quantities of a
	// document that is already stored.
	Save(ctx context.Context, doc Document) error
	CountDrafts(ctx context.Context, companyID int64, start, end time.Time) (int, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	documentColumns = []string{"id", "company_id", "doc_type", "number", "doc_date", "warehouse_id", "dest_warehouse_id",
		"reason_code", "memo", "settlement", "status", "journal_entry_id", "loan_of", "outstanding",
		"created_by", "posted_by", "posted_at", "created_at"}
	lineColumns = []string{"id", "document_id", "line_no", "item_id", "unit_id", "bin_id", "dest_bin_id", "qty",
		"unit_cost", "counted_qty", "system_qty", "returned_qty", "returned_value", "loan_line_no", "value"}
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	conn db.Conn
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(conn db.Conn) *PGRepository {
	return &PGRepository{conn: conn}
}

func (r *PGRepository) NextNumber(ctx context.Context, companyID int64, prefix string, year, month int) (int64, error) {
	var next int64
	err := r.conn.Querier(ctx).QueryRow(ctx, `INSERT INTO document_sequences (company_id, prefix, year, month, last_number)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (company_id, prefix, year, month) DO UPDATE SET last_number = document_sequences.last_number + 1
RETURNING last_number`, companyID, prefix, year, month).Scan(&next)
	if err != nil {
		return 0, shared.Storage("inventory: next document number", err)
	}
	return next, nil
}

func (r *PGRepository) Insert(ctx context.Context, doc Document) (Document, error) {
	q := r.conn.Querier(ctx)
	query, args, err := psql.Insert("inventory_documents").
		Columns("company_id", "doc_type", "number", "doc_date", "warehouse_id", "dest_warehouse_id", "reason_code",
			"memo", "settlement", "status", "journal_entry_id", "loan_of", "outstanding", "created_by",
			"posted_by", "posted_at").
		Values(doc.CompanyID, doc.Type, doc.Number, doc.Date, doc.WarehouseID, doc.DestWarehouseID, doc.ReasonCode,
			doc.Memo, doc.Settlement, doc.Status, doc.JournalEntryID, doc.LoanOf, doc.Outstanding, doc.CreatedBy,
			doc.PostedBy, doc.PostedAt).
		Suffix("RETURNING " + strings.Join(documentColumns, ", ")).
		ToSql()
	if err != nil {
		return Document{}, err
	}
	var header Document
	if err := pgxscan.Get(ctx, q, &header, query, args...); err != nil {
		return Document{}, shared.Storage("inventory: insert document", err)
	}

	batch := &pgx.Batch{}
	for _, l := range doc.Lines {
		batch.Queue(`INSERT INTO inventory_document_lines (document_id, line_no, item_id, unit_id, bin_id, dest_bin_id,
	qty, unit_cost, counted_qty, system_qty, returned_qty, returned_value, loan_line_no, value)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING `+strings.Join(lineColumns, ", "),
			header.ID, l.LineNo, l.ItemID, l.UnitID, l.BinID, l.DestBinID, l.Qty, l.UnitCost,
			l.CountedQty, l.SystemQty, l.ReturnedQty, l.ReturnedValue, l.LoanLineNo, l.Value)
	}
	results := q.SendBatch(ctx, batch)
	defer results.Close()
	header.Lines = make([]Line, 0, len(doc.Lines))
	for range doc.Lines {
		rows, err := results.Query()
		if err != nil {
			return Document{}, shared.Storage("inventory: insert document line", err)
		}
		var line Line
		if err := pgxscan.ScanOne(&line, rows); err != nil {
			return Document{}, shared.Storage("inventory: insert document line", err)
		}
		header.Lines = append(header.Lines, line)
	}
	return header, nil
}

func (r *PGRepository) Get(ctx context.Context, companyID, id int64) (Document, error) {
	return r.get(ctx, companyID, id, "")
}

func (r *PGRepository) GetForUpdate(ctx context.Context, companyID, id int64) (Document, error) {
	return r.get(ctx, companyID, id, "FOR UPDATE")
}

func (r *PGRepository) get(ctx context.Context, companyID, id int64, lock string) (Document, error) {
	builder := psql.Select(documentColumns...).From("inventory_documents").
		Where(sq.Eq{"company_id": companyID, "id": id})
	if lock != "" {
		builder = builder.Suffix(lock)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return Document{}, err
	}
	q := r.conn.Querier(ctx)
	var doc Document
	if err := pgxscan.Get(ctx, q, &doc, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Document{}, shared.NotFound("inventory document", id)
		}
		return Document{}, shared.Storage("inventory: load document", err)
	}
	query, args, err = psql.Select(lineColumns...).From("inventory_document_lines").
		Where(sq.Eq{"document_id": id}).OrderBy("line_no").ToSql()
	if err != nil {
		return Document{}, err
	}
	if err := pgxscan.Select(ctx, q, &doc.Lines, query, args...); err != nil {
		return Document{}, shared.Storage("inventory: load document lines", err)
	}
	return doc, nil
}

func (r *PGRepository) Save(ctx context.Context, doc Document) error {
	q := r.conn.Querier(ctx)
	query, args, err := psql.Update("inventory_documents").
		SetMap(map[string]any{
			"status":           doc.Status,
			"journal_entry_id": doc.JournalEntryID,
			"outstanding":      doc.Outstanding,
			"posted_by":        doc.PostedBy,
			"posted_at":        doc.PostedAt,
		}).
		Where(sq.Eq{"company_id": doc.CompanyID, "id": doc.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return shared.Storage("inventory: save document", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("inventory document", doc.ID)
	}
	batch := &pgx.Batch{}
	for _, l := range doc.Lines {
		batch.Queue(`UPDATE inventory_document_lines
SET qty = $3, unit_cost = $4, counted_qty = $5, system_qty = $6, returned_qty = $7, returned_value = $8, value = $9
WHERE document_id = $1 AND line_no = $2`,
			doc.ID, l.LineNo, l.Qty, l.UnitCost, l.CountedQty, l.SystemQty, l.ReturnedQty, l.ReturnedValue, l.Value)
	}
	results := q.SendBatch(ctx, batch)
	defer results.Close()
	for range doc.Lines {
		if _, err := results.Exec(); err != nil {
			return shared.Storage("inventory: save document line", err)
		}
	}
	return nil
}

func (r *PGRepository) CountDrafts(ctx context.Context, companyID int64, start, end time.Time) (int, error) {
	var n int
	err := r.conn.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventory_documents
WHERE company_id = $1 AND status = 'DRAFT' AND doc_date BETWEEN $2 AND $3`, companyID, start, end).Scan(&n)
	if err != nil {
		return 0, shared.Storage("inventory: count draft documents", err)
	}
	return n, nil
}
