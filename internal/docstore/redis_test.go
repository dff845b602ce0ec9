package docstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		store, _ := setupTestRedis(t)
		return store
	})
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestRedisStoreLayout(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	key := CharacterKey("user-1", "chr_1")
	mustWrite(t, store, key, Fields{"name": "Goku", "deleted": false})

	if got := s.HGet("sheets:doc:characters/user-1/chr_1", "name"); got != `"Goku"` {
		t.Fatalf("stored name = %q, want JSON-encoded string", got)
	}
	if got := s.HGet("sheets:doc:characters/user-1/chr_1", "deleted"); got != "false" {
		t.Fatalf("stored deleted = %q", got)
	}
	members, err := s.SMembers("sheets:partitions:characters")
	if err != nil || len(members) != 1 || members[0] != "user-1" {
		t.Fatalf("partitions set = %v, %v", members, err)
	}

	fields, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fields["deleted"] != false {
		t.Fatalf("deleted = %#v, want false", fields["deleted"])
	}
}

func TestRedisStorePing(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
