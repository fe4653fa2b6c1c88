// Package pagination implements keyset pagination over (created_at, id).
package pagination

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/underpines/pines/internal/apperr"
)

// Direction of a page walk.
type Direction int

const (
	// Descending walks newest first (feeds, comments, notifications).
	Descending Direction = iota
	// Ascending walks oldest first (replies).
	Ascending
)

const idSeparator = "~"

// Cursor is the position of the last item of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// String encodes the cursor as "<RFC3339Nano>" or "<RFC3339Nano>~<id>".
func (c Cursor) String() string {
	s := c.CreatedAt.UTC().Format(time.RFC3339Nano)
	if c.ID != "" {
		s += idSeparator + c.ID
	}
	return s
}

// Parse decodes a cursor. An empty string means "start from the beginning" and returns nil.
func Parse(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	ts, id, _ := strings.Cut(s, idSeparator)
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, apperr.Validation("invalid_cursor", fmt.Sprintf("malformed cursor %q", s))
	}
	return &Cursor{CreatedAt: t.UTC(), ID: id}, nil
}

// ClampLimit returns def for non-positive requests and max for requests above max.
func ClampLimit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// Apply adds the keyset predicate, ordering and limit to q. table qualifies the columns.
func Apply(q *gorm.DB, table string, c *Cursor, dir Direction, limit int) *gorm.DB {
	createdAt := table + ".created_at"
	id := table + ".id"

	op, order := "<", "DESC"
	if dir == Ascending {
		op, order = ">", "ASC"
	}

	if c != nil {
		if c.ID != "" {
			q = q.Where(
				fmt.Sprintf("(%s %s ? OR (%s = ? AND %s %s ?))", createdAt, op, createdAt, id, op),
				c.CreatedAt, c.CreatedAt, c.ID,
			)
		} else {
			q = q.Where(fmt.Sprintf("%s %s ?", createdAt, op), c.CreatedAt)
		}
	}

	return q.Order(fmt.Sprintf("%s %s, %s %s", createdAt, order, id, order)).Limit(limit)
}
