package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{
			name:  "single part",
			parts: []string{"https://example.com/a"},
		},
		{
			name:  "multiple parts",
			parts: []string{"test", "key", "with", "many", "parts"},
		},
		{
			name:  "empty parts",
			parts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}

			// MD5 hex
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}

	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Error("HashKey() should keep part boundaries")
	}
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "pines:test",
		},
		{
			name:     "key with colon",
			key:      "unread:alice",
			expected: "pines:unread:alice",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "pines:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestCache_NilIsDisabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("Get() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.SetUnread(ctx, "alice", 3); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("SetUnread() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("SetJSON() error = %v, want ErrCacheDisabled", err)
	}
	var dest map[string]int
	if err := c.GetJSON(ctx, "k", &dest); !errors.Is(err, ErrCacheDisabled) {
		t.Errorf("GetJSON() error = %v, want ErrCacheDisabled", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil cache = %v", err)
	}
}

func TestPreviewKey(t *testing.T) {
	a := PreviewKey("https://example.com/a")
	b := PreviewKey("https://example.com/b")
	if a == b {
		t.Error("Different URLs should map to different keys")
	}
	if len(a) != len("preview:")+32 {
		t.Errorf("PreviewKey() = %s, unexpected length", a)
	}
}
