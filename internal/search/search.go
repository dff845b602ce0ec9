// Package search finds characters by name or race. Meilisearch serves
// queries when it is healthy; otherwise a scan of the visible list does.
package search

import (
	"crypto/sha256"
	"encoding/hex"

	"sheetkeeper/api/internal/character"
)

// Result is a single search hit returned to the caller.
type Result struct {
	character.ListEntry
	Snippet string `json:"snippet,omitempty"`
}

// Query describes a search request. Visibility follows the list rules:
// elevated actors see every partition and soft-deleted characters.
type Query struct {
	Text       string
	IdentityID string
	IsElevated bool
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// CharacterRecord is the data we index for a character.
type CharacterRecord struct {
	Key     string `json:"key"`
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Race    string `json:"race"`
	Level   int    `json:"level"`
	Deleted bool   `json:"deleted"`
}

func RecordFromEntry(entry character.ListEntry) CharacterRecord {
	return CharacterRecord{
		Key:     recordKey(entry.OwnerID, entry.ID),
		ID:      entry.ID,
		OwnerID: entry.OwnerID,
		Name:    entry.Name,
		Race:    entry.Race,
		Level:   entry.Level,
		Deleted: entry.Deleted,
	}
}

func (r CharacterRecord) Entry() character.ListEntry {
	return character.ListEntry{ID: r.ID, OwnerID: r.OwnerID, Name: r.Name, Race: r.Race, Level: r.Level, Deleted: r.Deleted}
}

// recordKey derives a primary key that only uses characters the index
// accepts, whatever the owner and document ids contain.
func recordKey(ownerID, documentID string) string {
	sum := sha256.Sum256([]byte(ownerID + "/" + documentID))
	return hex.EncodeToString(sum[:16])
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
