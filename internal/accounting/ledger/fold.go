package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// step is one event visited by fold. Exactly one of anchor and posting is set.
type step struct {
	anchor  *Anchor
	posting *Posting
	// net is the debit-minus-credit balance after the event.
	net decimal.Decimal
}

func (s step) date() time.Time {
	if s.anchor != nil {
		return s.anchor.Start
	}
	return s.posting.Date
}

// fold walks the anchors and postings of a single account in ledger order:
// by date, anchors before postings of the same day, postings by entry number
// and line. An anchor resets the running balance; a posting adds to it.
func fold(anchors []Anchor, postings []Posting, visit func(step)) decimal.Decimal {
	sortAnchors(anchors)
	sortPostings(postings)
	net := decimal.Zero
	ai := 0
	applyAnchors := func(upTo *time.Time) {
		for ai < len(anchors) {
			if upTo != nil && anchors[ai].Start.After(*upTo) {
				return
			}
			a := &anchors[ai]
			net = a.Debit.Sub(a.Credit)
			if visit != nil {
				visit(step{anchor: a, net: net})
			}
			ai++
		}
	}
	for i := range postings {
		p := &postings[i]
		applyAnchors(&p.Date)
		net = net.Add(p.Debit).Sub(p.Credit)
		if visit != nil {
			visit(step{posting: p, net: net})
		}
	}
	applyAnchors(nil)
	return net
}

func sortAnchors(anchors []Anchor) {
	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].Start.Before(anchors[j].Start) })
}

func sortPostings(postings []Posting) {
	sort.SliceStable(postings, func(i, j int) bool {
		a, b := postings[i], postings[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EntryNumber != b.EntryNumber {
			return a.EntryNumber < b.EntryNumber
		}
		return a.LineNo < b.LineNo
	})
}

// netByAccount folds every account independently and returns the ending
// debit-minus-credit net per account.
func netByAccount(anchors []Anchor, postings []Posting) map[int64]decimal.Decimal {
	anchorsBy := make(map[int64][]Anchor)
	for _, a := range anchors {
		anchorsBy[a.AccountID] = append(anchorsBy[a.AccountID], a)
	}
	postingsBy := make(map[int64][]Posting)
	for _, p := range postings {
		postingsBy[p.AccountID] = append(postingsBy[p.AccountID], p)
	}
	out := make(map[int64]decimal.Decimal, len(anchorsBy)+len(postingsBy))
	for id, list := range postingsBy {
		out[id] = fold(anchorsBy[id], list, nil)
	}
	for id, list := range anchorsBy {
		if _, ok := out[id]; !ok {
			out[id] = fold(list, nil, nil)
		}
	}
	return out
}
