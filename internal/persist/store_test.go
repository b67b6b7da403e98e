package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/cxconsole/schema"
)

func TestStoreCatalogRoundTripSurvivesNewStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cachedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.SaveCatalog(CatalogSnapshot{
		Entries:  []schema.ModelEntry{{ID: "gpt-5.2-codex", DisplayName: "GPT-5.2 Codex", IsDefault: true}},
		CachedAt: cachedAt,
	}); err != nil {
		t.Fatalf("save catalog: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	snapshot, ok, err := reopened.LoadCatalog()
	if err != nil || !ok {
		t.Fatalf("load catalog: ok=%t err=%v", ok, err)
	}
	if len(snapshot.Entries) != 1 || !snapshot.Entries[0].IsDefault {
		t.Fatalf("unexpected entries %+v", snapshot.Entries)
	}
	if !snapshot.CachedAt.Equal(cachedAt) {
		t.Fatalf("expected cached_at %v, got %v", cachedAt, snapshot.CachedAt)
	}
	info, err := os.Stat(filepath.Join(dir, catalogFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestStoreLoadMiss(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok, err := store.LoadSessions(); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%t err=%v", ok, err)
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, sessionsFile), []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok, err := store.LoadSessions(); ok || err == nil {
		t.Fatalf("expected decode error, got ok=%t err=%v", ok, err)
	}
}

func TestNewStoreRequiresDir(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}
