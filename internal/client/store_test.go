package client

import (
	"path/filepath"
	"testing"

	"github.com/duskline/vesper/internal/cryptobox"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "zen.db")
	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionKeysCacheMiss(t *testing.T) {
	store := openTestStore(t)
	var peer [32]byte
	peer[0] = 1

	_, ok, err := store.SessionKeys(peer)
	if err != nil {
		t.Fatalf("SessionKeys() error = %v", err)
	}
	if ok {
		t.Fatal("SessionKeys() ok = true on empty store, want false")
	}
}

func TestSessionKeysRoundTrip(t *testing.T) {
	store := openTestStore(t)
	var peer [32]byte
	peer[0] = 2

	want := &cryptobox.SessionKeys{}
	for i := range want.Tx {
		want.Tx[i] = byte(i)
		want.Rx[i] = byte(255 - i)
	}

	if err := store.StoreSessionKeys(peer, want); err != nil {
		t.Fatalf("StoreSessionKeys() error = %v", err)
	}

	got, ok, err := store.SessionKeys(peer)
	if err != nil {
		t.Fatalf("SessionKeys() error = %v", err)
	}
	if !ok {
		t.Fatal("SessionKeys() ok = false after store, want true")
	}
	if got.Tx != want.Tx || got.Rx != want.Rx {
		t.Errorf("SessionKeys() = %+v, want %+v", got, want)
	}
}

func TestSaveAndRetrieveConversation(t *testing.T) {
	store := openTestStore(t)
	var alice, bob [32]byte
	alice[0], bob[0] = 0xAA, 0xBB

	if err := store.SaveMessage(alice, bob, "hello", 1700000000); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if err := store.SaveMessage(bob, alice, "hi back", 1700000001); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	msgs, err := store.Conversation(alice, bob)
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Conversation() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi back" {
		t.Errorf("Conversation() order/content wrong: %+v", msgs)
	}
	if msgs[0].Author != alice || msgs[0].Recipient != bob {
		t.Errorf("Conversation()[0] identities wrong: %+v", msgs[0])
	}
}
