package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/ports"
)

// SheetLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.SheetLoader.
func SheetLoaderContractTest(t *testing.T, loader ports.SheetLoader, setupData map[string][]byte) {
	t.Helper()

	t.Run("GetSheet_Success", func(t *testing.T) {
		for name, expectedContent := range setupData {
			content, err := loader.GetSheet(name)
			if err != nil {
				t.Fatalf("unexpected error getting sheet %s: %v", name, err)
			}
			if string(content) != string(expectedContent) {
				t.Errorf("content mismatch for %s. got %q, want %q", name, content, expectedContent)
			}
		}
	})

	t.Run("GetSheet_NotFound", func(t *testing.T) {
		_, err := loader.GetSheet("non-existent.xrl")
		if !errors.Is(err, domain.ErrSheetNotFound) {
			t.Errorf("expected ErrSheetNotFound, got %v", err)
		}
	})

	t.Run("ListSheets", func(t *testing.T) {
		names, err := loader.ListSheets()
		if err != nil {
			t.Fatalf("unexpected error listing sheets: %v", err)
		}
		if len(names) != len(setupData) {
			t.Errorf("expected %d sheets, got %d (%v)", len(setupData), len(names), names)
		}
		lookup := make(map[string]bool)
		for _, name := range names {
			lookup[name] = true
		}
		for name := range setupData {
			if !lookup[name] {
				t.Errorf("sheet %s missing from list", name)
			}
		}
	})
}

// ResponseCacheContractTest verifies if an adapter complies with ports.ResponseCache.
func ResponseCacheContractTest(t *testing.T, cache ports.ResponseCache) {
	t.Helper()
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "http://example.test/missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected a miss for an unknown key")
		}
	})

	t.Run("SetGet", func(t *testing.T) {
		key := "http://example.test/a?x=1"
		if err := cache.Set(ctx, key, []byte(`{"ok":true}`), time.Minute); err != nil {
			t.Fatalf("unexpected error setting: %v", err)
		}
		body, ok, err := cache.Get(ctx, key)
		if err != nil {
			t.Fatalf("unexpected error getting: %v", err)
		}
		if !ok || string(body) != `{"ok":true}` {
			t.Errorf("got %q (hit=%v), want the stored body", body, ok)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := "http://example.test/b"
		_ = cache.Set(ctx, key, []byte("1"), 0)
		_ = cache.Set(ctx, key, []byte("2"), 0)
		body, ok, _ := cache.Get(ctx, key)
		if !ok || string(body) != "2" {
			t.Errorf("got %q, want the latest body", body)
		}
	})
}
