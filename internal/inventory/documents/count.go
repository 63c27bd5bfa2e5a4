package documents

import (
	"context"
	"time"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// RecordCount updates counted quantities of a DRAFT count. Quantities are in
// the item's base unit.
func (p *Processor) RecordCount(ctx context.Context, companyID, countID int64, entries []CountEntry) (Document, error) {
	if len(entries) == 0 {
		return Document{}, shared.Validation("inventory: no counted quantities given")
	}
	var doc Document
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = p.lockCount(ctx, companyID, countID); err != nil {
			return err
		}
		if err := doc.editable(); err != nil {
			return err
		}
		for _, e := range entries {
			line, ok := doc.line(e.LineNo)
			if !ok {
				return shared.NotFound("count line", e.LineNo)
			}
			if e.CountedQty.IsNegative() || !e.CountedQty.Equal(shared.RoundQty(e.CountedQty)) {
				return shared.Validation("inventory: counted quantity %s of line %d is invalid", e.CountedQty, e.LineNo)
			}
			line.CountedQty = e.CountedQty
		}
		return p.repo.Save(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// PostCount applies counted - system for every line as of now. A count is
// posted once; later calls return AlreadyPosted and move nothing.
func (p *Processor) PostCount(ctx context.Context, companyID, countID, actorID int64) (Document, error) {
	started := time.Now()
	var doc Document
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = p.lockCount(ctx, companyID, countID); err != nil {
			return err
		}
		if err := doc.editable(); err != nil {
			return err
		}
		if _, err := p.periods.EnsureOpen(ctx, companyID, doc.Date); err != nil {
			return err
		}
		keys := make([]inventory.Key, 0, len(doc.Lines))
		for _, l := range doc.Lines {
			keys = append(keys, p.key(&doc, l))
		}
		if err := p.stock.Lock(ctx, keys); err != nil {
			return err
		}
		for i, l := range doc.Lines {
			bal, err := p.stock.Balance(ctx, p.key(&doc, l))
			if err != nil {
				return err
			}
			doc.Lines[i].SystemQty = bal.Qty
			doc.Lines[i].Qty = l.CountedQty.Sub(bal.Qty)
		}
		gl, err := p.adjust(ctx, &doc, inventory.RefCount)
		if err != nil {
			return err
		}
		if err := doc.post(actorID, p.now().UTC()); err != nil {
			return err
		}
		if err := p.repo.Save(ctx, doc); err != nil {
			return err
		}
		return p.finish(ctx, &doc, gl, actorID)
	})
	if err != nil {
		p.fail(TypeCount, err)
		return Document{}, err
	}
	p.done(ctx, doc, started, "inventory.count.post")
	return doc, nil
}

// VoidCount abandons a DRAFT count.
func (p *Processor) VoidCount(ctx context.Context, companyID, countID, actorID int64) (Document, error) {
	started := time.Now()
	var doc Document
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = p.lockCount(ctx, companyID, countID); err != nil {
			return err
		}
		if err := doc.void(actorID, p.now().UTC()); err != nil {
			return err
		}
		return p.repo.Save(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	p.done(ctx, doc, started, "inventory.count.void")
	return doc, nil
}

func (p *Processor) lockCount(ctx context.Context, companyID, countID int64) (Document, error) {
	doc, err := p.repo.GetForUpdate(ctx, companyID, countID)
	if err != nil {
		return Document{}, err
	}
	if doc.Type != TypeCount {
		return Document{}, shared.Validation("inventory: document %s is not a stock count", doc.Number)
	}
	return doc, nil
}

// distinctCountKeys rejects counts that list a location twice, since the
// second line would be measured against the first one's result.
func distinctCountKeys(doc Document) error {
	seen := make(map[[2]int64]int, len(doc.Lines))
	for _, l := range doc.Lines {
		k := [2]int64{l.ItemID, l.BinID}
		if prev, ok := seen[k]; ok {
			return shared.Validation("inventory: lines %d and %d count the same item and bin", prev, l.LineNo)
		}
		seen[k] = l.LineNo
	}
	return nil
}
