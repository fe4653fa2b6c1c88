package pagination

// Page is one slice of an ordered listing.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

// Build wraps items fetched with the given limit. A full page carries the cursor of its
// last item; a short page is terminal.
func Build[T any](items []T, limit int, key func(T) Cursor) Page[T] {
	if items == nil {
		items = []T{}
	}
	page := Page[T]{Items: items}
	if limit > 0 && len(items) == limit {
		next := key(items[len(items)-1]).String()
		page.NextCursor = &next
	}
	return page
}

// Map converts the items of a page, keeping its cursor.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Items))
	for i, item := range p.Items {
		out[i] = fn(item)
	}
	return Page[U]{Items: out, NextCursor: p.NextCursor}
}
