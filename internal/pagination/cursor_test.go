package pagination

import (
	"testing"
	"time"

	"github.com/underpines/pines/internal/apperr"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)

	tests := []struct {
		name   string
		cursor Cursor
	}{
		{"timestamp only", Cursor{CreatedAt: ts}},
		{"with id", Cursor{CreatedAt: ts, ID: "3f1c2a9e-0000-4000-8000-000000000001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.cursor.String())
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !parsed.CreatedAt.Equal(tt.cursor.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", parsed.CreatedAt, tt.cursor.CreatedAt)
			}
			if parsed.ID != tt.cursor.ID {
				t.Errorf("ID = %q, want %q", parsed.ID, tt.cursor.ID)
			}
		})
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("")
	if err != nil || c != nil {
		t.Errorf("Parse(\"\") = %v, %v; want nil, nil", c, err)
	}

	for _, bad := range []string{"yesterday", "2024-13-01T00:00:00Z", "~abc"} {
		_, err := Parse(bad)
		if err == nil {
			t.Errorf("Parse(%q) expected error", bad)
			continue
		}
		e, ok := apperr.As(err)
		if !ok || e.Code != "invalid_cursor" {
			t.Errorf("Parse(%q) error = %v, want invalid_cursor", bad, err)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		requested, def, max, want int
	}{
		{0, 20, 50, 20},
		{-5, 20, 50, 20},
		{10, 20, 50, 10},
		{50, 20, 50, 50},
		{51, 20, 50, 50},
		{1000, 30, 200, 200},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.requested, tt.def, tt.max); got != tt.want {
			t.Errorf("ClampLimit(%d, %d, %d) = %d, want %d", tt.requested, tt.def, tt.max, got, tt.want)
		}
	}
}

type row struct {
	id string
	at time.Time
}

func rowKey(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

func TestBuild(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{"c", base.Add(2 * time.Second)}, {"b", base.Add(time.Second)}}

	full := Build(rows, 2, rowKey)
	if full.NextCursor == nil {
		t.Fatal("Expected next cursor on a full page")
	}
	if *full.NextCursor != (Cursor{CreatedAt: base.Add(time.Second), ID: "b"}).String() {
		t.Errorf("NextCursor = %s, want key of last item", *full.NextCursor)
	}

	short := Build(rows, 3, rowKey)
	if short.NextCursor != nil {
		t.Errorf("Expected nil cursor on a short page, got %s", *short.NextCursor)
	}

	empty := Build[row](nil, 20, rowKey)
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Error("Expected empty non-nil items")
	}
	if empty.NextCursor != nil {
		t.Error("Expected nil cursor on empty page")
	}
}
