package storage

import (
	"context"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "", nil)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewStoreBadger(t *testing.T) {
	store, err := NewStore("badger", "", nil)
	if err != nil {
		t.Fatalf("new badger store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewStoreDefaultKind(t *testing.T) {
	if _, err := NewStore(DefaultStoreKind, t.TempDir()+"/runs.db", nil); err != nil {
		t.Fatalf("default store kind %q: %v", DefaultStoreKind, err)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "", nil)
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}
