package container

import (
	"testing"
	"time"
)

func TestMetadataStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewMetadataStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	c := &Container{
		ID:         "abc123",
		BundlePath: "/bundles/abc123",
		State:      Created,
		CreatedAt:  time.Unix(1000, 0).UTC(),
		Entrypoint: []string{"/bin/true"},
	}
	if err := store.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != c.ID || loaded.State != c.State || loaded.BundlePath != c.BundlePath {
		t.Errorf("loaded metadata mismatch: %+v", loaded)
	}
}

func TestMetadataStoreLoadUnknownIDReturnsNotFound(t *testing.T) {
	store, err := NewMetadataStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	if _, err := store.Load("nope"); err == nil {
		t.Fatal("expected an error loading a nonexistent container")
	}
}

func TestMetadataStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewMetadataStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	if err := store.Delete("never-existed"); err != nil {
		t.Fatalf("Delete on missing file should be a no-op, got: %v", err)
	}
}

func TestMetadataStoreLoadAllReturnsEverySavedContainer(t *testing.T) {
	dir := t.TempDir()
	store, err := NewMetadataStore(dir)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	for _, id := range []string{"one", "two", "three"} {
		c := &Container{ID: id, State: Created, CreatedAt: time.Unix(1000, 0).UTC()}
		if err := store.Save(c); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 containers, got %d", len(all))
	}
}

func TestMetadataStoreLoadAllEmptyDirReturnsEmptySlice(t *testing.T) {
	store, err := NewMetadataStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty slice, got %d entries", len(all))
	}
}
