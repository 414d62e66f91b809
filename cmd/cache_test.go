package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"topster/internal/cache"
)

func TestClearCache(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer
	if err := clearCache(ctx, &out, nil, "none"); err != nil {
		t.Fatalf("clearCache(nil) error: %v", err)
	}
	if !strings.Contains(out.String(), "disabled") {
		t.Errorf("unexpected output %q", out.String())
	}

	c := cache.New(nil)
	c.Register(cache.Search, cache.NewMemory(10), time.Hour)
	out.Reset()
	if err := clearCache(ctx, &out, c, "memory"); err != nil {
		t.Fatalf("clearCache(memory) error: %v", err)
	}
	if !strings.Contains(out.String(), "single run") {
		t.Errorf("memory backend should say nothing persists, got %q", out.String())
	}
}

func TestClearCacheSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := cache.OpenDB(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenDB() error: %v", err)
	}
	defer db.Close()
	store := cache.NewSQLite(db, cache.Search, 10)
	if err := store.Set(ctx, "k", []byte(`1`), time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	c := cache.New(nil)
	c.Register(cache.Search, store, time.Hour)

	var out bytes.Buffer
	if err := clearCache(ctx, &out, c, "sqlite"); err != nil {
		t.Fatalf("clearCache(sqlite) error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "Cache cleared." {
		t.Errorf("unexpected output %q", out.String())
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Error("entry survived clearCache")
	}
}

func TestVersionSkipsSetup(t *testing.T) {
	if versionCmd.PersistentPreRunE == nil {
		t.Fatal("version should override the root setup hook")
	}
	if err := versionCmd.PersistentPreRunE(versionCmd, nil); err != nil {
		t.Errorf("version pre-run error: %v", err)
	}
}
