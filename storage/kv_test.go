package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

type record struct {
	ID     uint64
	Amount string
}

func TestKVPutGetRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemDB())
	if err := store.KVPut([]byte("orders/1"), record{ID: 1, Amount: "990000"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err := store.KVGet([]byte("orders/1"), &out)
	if err != nil || !ok {
		t.Fatalf("get: %v ok=%v", err, ok)
	}
	if out.ID != 1 || out.Amount != "990000" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	// Presence-only check with a nil out.
	ok, err = store.KVGet([]byte("orders/1"), nil)
	if err != nil || !ok {
		t.Fatalf("presence check: %v ok=%v", err, ok)
	}
}

func TestKVGetMissingIsNotAnError(t *testing.T) {
	store := NewKVStore(NewMemDB())
	var out record
	ok, err := store.KVGet([]byte("orders/404"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("missing key reported present")
	}
}

func TestKVAppendAndGetList(t *testing.T) {
	store := NewKVStore(NewMemDB())
	key := []byte("orders/index")
	for _, v := range []string{"a", "bb", "ccc"} {
		if err := store.KVAppend(key, []byte(v)); err != nil {
			t.Fatalf("append %q: %v", v, err)
		}
	}
	var list [][]byte
	if err := store.KVGetList(key, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || string(list[0]) != "a" || string(list[2]) != "ccc" {
		t.Fatalf("unexpected list: %q", list)
	}
}

func TestKVGetListMissingDecodesEmpty(t *testing.T) {
	store := NewKVStore(NewMemDB())
	var list [][]byte
	if err := store.KVGetList([]byte("orders/none"), &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %q", list)
	}
}

func TestKVDelete(t *testing.T) {
	store := NewKVStore(NewMemDB())
	if err := store.KVPut([]byte("k"), record{ID: 9}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.KVDelete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := store.KVGet([]byte("k"), nil)
	if err != nil || ok {
		t.Fatalf("key survived delete: %v ok=%v", err, ok)
	}
}

func TestMemDBGetMissing(t *testing.T) {
	db := NewMemDB()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestBoltDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funding.db")
	db, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	db.Close()

	db, err = NewBoltDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("unexpected value %q", value)
	}
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil || string(value) != "v" {
		t.Fatalf("get: %v value=%q", err, value)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}
