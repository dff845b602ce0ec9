package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sheetkeeper/api/internal/docstore"
)

func TestLocateTrustsOwnerHint(t *testing.T) {
	store := newCountingStore()
	owner, err := Locate(context.Background(), store, "chr_x", "someone", Actor{IdentityID: "me", IsElevated: true})
	if err != nil || owner != "someone" {
		t.Fatalf("Locate() = %q, %v", owner, err)
	}
	if store.probeCount() != 0 {
		t.Fatalf("hinted locate probed the store %d times", store.probeCount())
	}
}

func TestLocateDefaultsToOwnPartition(t *testing.T) {
	store := newCountingStore()
	owner, err := Locate(context.Background(), store, "chr_x", "", Actor{IdentityID: "me"})
	if err != nil || owner != "me" {
		t.Fatalf("Locate() = %q, %v", owner, err)
	}
	if store.probeCount() != 0 {
		t.Fatalf("non-elevated locate probed the store %d times", store.probeCount())
	}

	if _, err := Locate(context.Background(), store, "chr_x", "", Actor{}); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("anonymous Locate() error = %v", err)
	}
	if _, err := Locate(context.Background(), store, " ", "", Actor{IdentityID: "me"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank id error = %v", err)
	}
}

func TestLocateScanStopsAtFirstHit(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	const owners = 6
	for i := 1; i <= owners; i++ {
		owner := fmt.Sprintf("owner-%d", i)
		if err := store.Store.MergeWrite(ctx, docstore.CharacterKey(owner, "chr_"+owner), docstore.Fields{"name": owner}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Store.MergeWrite(ctx, docstore.CharacterKey("owner-4", "chr_target"), docstore.Fields{"name": "target"}); err != nil {
		t.Fatal(err)
	}
	overseer := Actor{IdentityID: "gm", IsElevated: true}

	owner, err := Locate(ctx, store, "chr_target", "", overseer)
	if err != nil || owner != "owner-4" {
		t.Fatalf("Locate() = %q, %v", owner, err)
	}
	if got := store.probeCount(); got != 4 {
		t.Fatalf("probes = %d, want 4", got)
	}

	store.resetProbes()
	if _, err := Locate(ctx, store, "chr_missing", "", overseer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Locate(missing) error = %v, want ErrNotFound", err)
	}
	if got := store.probeCount(); got != owners {
		t.Fatalf("probes = %d, want %d", got, owners)
	}
}

func TestSelectionLocator(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want string
	}{
		{name: "empty", sel: Selection{}, want: ""},
		{name: "id only", sel: Selection{DocumentID: "chr_1"}, want: "?character=chr_1"},
		{name: "with owner", sel: Selection{DocumentID: "chr_1", OwnerHint: "user 1"}, want: "?character=chr_1&owner=user+1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sel.Locator(); got != tc.want {
				t.Fatalf("Locator() = %q, want %q", got, tc.want)
			}
			if tc.want == "" {
				return
			}
			parsed, err := ParseLocator("https://sheets.example/app" + tc.want + "#top")
			if err != nil {
				t.Fatalf("ParseLocator() error = %v", err)
			}
			if parsed != tc.sel {
				t.Fatalf("ParseLocator() = %+v, want %+v", parsed, tc.sel)
			}
		})
	}

	if _, err := ParseLocator("character=%zz"); err == nil {
		t.Fatal("expected error for malformed escape")
	}
}
