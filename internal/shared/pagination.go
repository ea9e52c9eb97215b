package shared

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

// NewPage normalises limit/offset, defaulting to 50 rows and capping at 500.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
