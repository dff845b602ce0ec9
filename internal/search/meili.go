package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCharacters = "sheets_characters"

// Meili implements Searcher and the character indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is not an error: the client reports unhealthy and a
// background loop keeps probing.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCharacters,
		PrimaryKey: "key",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxCharacters, err)
	}

	index := m.client.Index(idxCharacters)
	filterable := []interface{}{"ownerId", "deleted"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxCharacters, err)
	}
	searchable := []string{"name", "race"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxCharacters, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	req := &meili.SearchRequest{
		Limit:                 int64(normalizeLimit(q.Limit)),
		Offset:                int64(max(q.Offset, 0)),
		AttributesToHighlight: []string{"name", "race"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := visibilityFilter(q); len(filters) > 0 {
		req.Filter = filters
	}

	resp, err := m.client.Index(idxCharacters).Search(q.Text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

// visibilityFilter mirrors the list rules: non-elevated actors only match
// their own, non-deleted characters.
func visibilityFilter(q Query) []string {
	if q.IsElevated {
		return nil
	}
	return []string{fmt.Sprintf("ownerId = %q", q.IdentityID), "deleted = false"}
}

func hitToResult(hit meili.Hit) Result {
	var record CharacterRecord
	if raw, err := json.Marshal(hit); err == nil {
		_ = json.Unmarshal(raw, &record)
	}
	r := Result{ListEntry: record.Entry()}
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "name"), r.Name)
	return r
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexCharacter adds or updates one character.
func (m *Meili) IndexCharacter(record CharacterRecord) error {
	_, err := m.client.Index(idxCharacters).AddDocuments([]CharacterRecord{record}, nil)
	return err
}

// IndexCharacters bulk-indexes characters.
func (m *Meili) IndexCharacters(records []CharacterRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCharacters).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteCharacter(ownerID, documentID string) error {
	_, err := m.client.Index(idxCharacters).DeleteDocument(recordKey(ownerID, documentID), nil)
	return err
}
