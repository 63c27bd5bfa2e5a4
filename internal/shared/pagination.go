package shared

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// PageRequest selects a window of an ordered listing either by cursor
// (the last seen id) or by offset.
type PageRequest struct {
	Limit  int
	Offset int
	Cursor int64
}

// Normalize clamps the limit and drops the offset when a cursor is present.
func (p PageRequest) Normalize() PageRequest {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Cursor > 0 {
		p.Offset = 0
	}
	return p
}
