package creds

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	want := &protocol.Credentials{
		ClientID:     "client-1",
		ClientToken:  "ct",
		ServerToken:  "st",
		EncKey:       "a2V5",
		RegisteredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := store.Save("primary", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load("primary")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ClientID != want.ClientID || got.ClientToken != want.ClientToken {
		t.Errorf("loaded %+v, want %+v", got, want)
	}
	if !got.RegisteredAt.Equal(want.RegisteredAt) {
		t.Errorf("RegisteredAt = %v, want %v", got.RegisteredAt, want.RegisteredAt)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if _, err := store.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreSaveReplaces(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.Save("p", &protocol.Credentials{ClientToken: "old"}); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save("p", &protocol.Credentials{ClientToken: "new"}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := store.Load("p")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ClientToken != "new" {
		t.Errorf("ClientToken = %q, want new", got.ClientToken)
	}
}

func TestFileStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.Save("p", &protocol.Credentials{ClientID: "x"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("p"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load("p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := store.Delete("p"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	for _, ref := range []string{"", "../escape", "a/b"} {
		if _, err := store.Load(ref); err == nil {
			t.Errorf("Load(%q) succeeded, want error", ref)
		}
		if err := store.Save(ref, &protocol.Credentials{}); err == nil {
			t.Errorf("Save(%q) succeeded, want error", ref)
		}
	}
}

func TestFileStoreNoPartialWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.Save("p", &protocol.Credentials{ClientID: "x"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
