package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"sheetkeeper/api/internal/docstore"
)

const testDebounce = 40 * time.Millisecond

// countingStore records every write and existence probe that reaches the
// wrapped store.
type countingStore struct {
	docstore.Store

	mu     sync.Mutex
	writes []recordedWrite
	probes []docstore.Key
}

type recordedWrite struct {
	key    docstore.Key
	fields docstore.Fields
}

func newCountingStore() *countingStore {
	return &countingStore{Store: docstore.NewMemoryStore()}
}

func (c *countingStore) MergeWrite(ctx context.Context, key docstore.Key, fields docstore.Fields) error {
	copied := make(docstore.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	c.mu.Lock()
	c.writes = append(c.writes, recordedWrite{key: key, fields: copied})
	c.mu.Unlock()
	return c.Store.MergeWrite(ctx, key, fields)
}

func (c *countingStore) Exists(ctx context.Context, key docstore.Key) (bool, error) {
	c.mu.Lock()
	c.probes = append(c.probes, key)
	c.mu.Unlock()
	return c.Store.Exists(ctx, key)
}

func (c *countingStore) writesTo(key docstore.Key) []docstore.Fields {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []docstore.Fields
	for _, w := range c.writes {
		if w.key == key {
			out = append(out, w.fields)
		}
	}
	return out
}

func (c *countingStore) probeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.probes)
}

func (c *countingStore) resetProbes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = nil
}

func signIn(t *testing.T, store docstore.Store, identityID string, elevated bool) *Session {
	t.Helper()
	ctx := context.Background()
	if elevated {
		if err := store.MergeWrite(ctx, docstore.ProfileKey(identityID), docstore.Fields{"isElevated": true}); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
	s := NewSession(store, Options{Debounce: testDebounce, OpenTimeout: time.Second})
	t.Cleanup(func() { _ = s.Close() })
	if err := s.SetIdentity(ctx, identityID, "Player "+identityID); err != nil {
		t.Fatalf("SetIdentity(%s) error = %v", identityID, err)
	}
	return s
}

func createDocument(t *testing.T, s *Session, name string) string {
	t.Helper()
	id, err := s.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	return id
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasNotice(state State, kind NoticeKind) bool {
	for _, n := range state.Notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func listIDs(state State) []string {
	out := make([]string, 0, len(state.List))
	for _, entry := range state.List {
		out = append(out, entry.ID)
	}
	return out
}
