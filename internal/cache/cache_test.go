package cache

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *MessageStore {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "messages.db"), filepath.Join(dir, "messages.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMessageIDMissAndHit(t *testing.T) {
	store := openTestStore(t)

	if _, ok, err := store.MessageID("0xaaaa"); err != nil || ok {
		t.Fatalf("unexpected hit for unknown hash: ok=%v err=%v", ok, err)
	}
	if err := store.PutMessageID("0xaaaa", "0x1111"); err != nil {
		t.Fatalf("put: %v", err)
	}
	id, ok, err := store.MessageID("0xaaaa")
	if err != nil || !ok {
		t.Fatalf("lookup after put: ok=%v err=%v", ok, err)
	}
	if id != "0x1111" {
		t.Fatalf("message id = %s, want 0x1111", id)
	}
}

func TestPutMessageIDDoesNotOverwrite(t *testing.T) {
	store := openTestStore(t)

	if err := store.PutMessageID("0xbbbb", "0x2222"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutMessageID("0xbbbb", "0x3333"); err != nil {
		t.Fatalf("second put: %v", err)
	}
	id, ok, err := store.MessageID("0xbbbb")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if id != "0x2222" {
		t.Fatalf("message id = %s, first write must win", id)
	}
}

func TestNilStoreIsInert(t *testing.T) {
	var store *MessageStore
	if err := store.PutMessageID("0xcc", "0xdd"); err != nil {
		t.Fatalf("nil put: %v", err)
	}
	if _, ok, err := store.MessageID("0xcc"); err != nil || ok {
		t.Fatalf("nil get: ok=%v err=%v", ok, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
