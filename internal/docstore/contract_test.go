package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), CharacterKey("user-1", "missing"))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
		exists, err := s.Exists(context.Background(), CharacterKey("user-1", "missing"))
		if err != nil || exists {
			t.Fatalf("Exists() = %v, %v; want false, nil", exists, err)
		}
	})

	t.Run("merge write keeps absent fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := CharacterKey("user-1", "chr_1")
		if err := s.MergeWrite(ctx, key, Fields{"name": "Goku", "level": 3, "wallet": `{"zeni":5}`}); err != nil {
			t.Fatalf("MergeWrite() error = %v", err)
		}
		if err := s.MergeWrite(ctx, key, Fields{"deleted": true}); err != nil {
			t.Fatalf("MergeWrite() error = %v", err)
		}
		fields, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if fields["name"] != "Goku" || fields["deleted"] != true || fields["wallet"] != `{"zeni":5}` {
			t.Fatalf("fields = %#v", fields)
		}
		if got := numberOf(t, fields["level"]); got != 3 {
			t.Fatalf("level = %v, want 3", got)
		}
	})

	t.Run("list and partitions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustWrite(t, s, CharacterKey("user-b", "chr_2"), Fields{"name": "B"})
		mustWrite(t, s, CharacterKey("user-a", "chr_1"), Fields{"name": "A"})
		mustWrite(t, s, CharacterKey("user-a", "chr_3"), Fields{"name": "C"})
		mustWrite(t, s, ProfileKey("user-a"), Fields{"isElevated": true})

		partitions, err := s.Partitions(ctx, CollectionCharacters)
		if err != nil {
			t.Fatalf("Partitions() error = %v", err)
		}
		if !reflect.DeepEqual(partitions, []string{"user-a", "user-b"}) {
			t.Fatalf("partitions = %v", partitions)
		}

		docs, err := s.List(ctx, CollectionCharacters, "user-a")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 2 || docs[0].Key.ID != "chr_1" || docs[1].Key.ID != "chr_3" {
			t.Fatalf("docs = %+v", docs)
		}

		if err := s.Delete(ctx, CharacterKey("user-b", "chr_2")); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		partitions, _ = s.Partitions(ctx, CollectionCharacters)
		if !reflect.DeepEqual(partitions, []string{"user-a"}) {
			t.Fatalf("partitions after delete = %v", partitions)
		}
	})

	t.Run("subscribe delivers initial state then changes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := CharacterKey("user-1", "chr_1")
		mustWrite(t, s, key, Fields{"name": "Goku"})

		snaps := make(chan Snapshot, 16)
		sub, err := s.Subscribe(ctx, key, func(snap Snapshot) { snaps <- snap })
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Close()

		first := nextSnapshot(t, snaps)
		if !first.Exists || first.Fields["name"] != "Goku" {
			t.Fatalf("initial snapshot = %+v", first)
		}

		mustWrite(t, s, key, Fields{"name": "Kakarot"})
		second := nextSnapshot(t, snaps)
		if !second.Exists || second.Fields["name"] != "Kakarot" {
			t.Fatalf("change snapshot = %+v", second)
		}

		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		third := nextSnapshot(t, snaps)
		if third.Exists {
			t.Fatalf("expected missing snapshot after delete, got %+v", third)
		}

		if err := sub.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := sub.Close(); err != nil {
			t.Fatalf("second Close() error = %v", err)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		s := newStore(t)
		if err := s.MergeWrite(context.Background(), Key{Collection: CollectionCharacters, Partition: "a/b", ID: "x"}, Fields{}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("MergeWrite() error = %v, want ErrInvalidKey", err)
		}
	})
}

func mustWrite(t *testing.T, s Store, key Key, fields Fields) {
	t.Helper()
	if err := s.MergeWrite(context.Background(), key, fields); err != nil {
		t.Fatalf("MergeWrite(%s) error = %v", key, err)
	}
}

func nextSnapshot(t *testing.T, snaps <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-snaps:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func numberOf(t *testing.T, value any) float64 {
	t.Helper()
	switch v := value.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			t.Fatalf("parse number %q: %v", v, err)
		}
		return f
	default:
		t.Fatalf("value %#v is not a number", value)
		return 0
	}
}
