package search

import (
	"context"
	"strings"
	"time"

	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/engine"
)

// Scan answers queries by filtering the actor's visible list. It is the
// fallback when Meilisearch is not configured or unhealthy.
type Scan struct {
	store   docstore.Store
	timeout time.Duration
}

func NewScan(store docstore.Store) *Scan {
	return &Scan{store: store, timeout: 10 * time.Second}
}

func (s *Scan) Healthy() bool {
	return s.store != nil
}

func (s *Scan) Search(q Query) ([]Result, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	entries, err := engine.ListVisible(ctx, s.store, engine.Actor{IdentityID: q.IdentityID, IsElevated: q.IsElevated})
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Text))
	matched := make([]Result, 0)
	for _, entry := range entries {
		if needle != "" &&
			!strings.Contains(strings.ToLower(entry.Name), needle) &&
			!strings.Contains(strings.ToLower(entry.Race), needle) {
			continue
		}
		matched = append(matched, Result{ListEntry: entry})
	}

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := min(start+normalizeLimit(q.Limit), total)
	return matched[start:end], total, nil
}

// LoadAllRecords reads every character of every partition for a reindex.
func (s *Scan) LoadAllRecords(ctx context.Context) ([]CharacterRecord, error) {
	entries, err := engine.ListVisible(ctx, s.store, engine.Actor{IdentityID: "reindex", IsElevated: true})
	if err != nil {
		return nil, err
	}
	records := make([]CharacterRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, RecordFromEntry(entry))
	}
	return records, nil
}
