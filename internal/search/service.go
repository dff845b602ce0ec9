package search

import (
	"context"
	"log"

	"sheetkeeper/api/internal/character"
)

// Service is the facade that tries Meilisearch first and falls back to a
// scan of the visible list.
type Service struct {
	meili *Meili
	scan  *Scan
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, scan *Scan) *Service {
	return &Service{meili: meili, scan: scan}
}

func (s *Service) Search(q Query) Response {
	for _, searcher := range s.searchers() {
		if !searcher.Healthy() {
			continue
		}
		results, total, err := searcher.Search(q)
		if err != nil {
			log.Printf("search: %T failed, trying next backend: %v", searcher, err)
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text}
	}
	return Response{Results: []Result{}, Query: q.Text}
}

// searchers lists the configured backends in the order they are tried.
func (s *Service) searchers() []Searcher {
	var out []Searcher
	if s.meili != nil {
		out = append(out, s.meili)
	}
	if s.scan != nil {
		out = append(out, s.scan)
	}
	return out
}

// MeiliHealthy reports whether queries are currently served by Meilisearch.
func (s *Service) MeiliHealthy() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexCharacter pushes a list entry to Meilisearch (fire-and-forget).
func (s *Service) IndexCharacter(_ context.Context, entry character.ListEntry) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	record := RecordFromEntry(entry)
	go func() {
		if err := s.meili.IndexCharacter(record); err != nil {
			log.Printf("search: index character %s/%s: %v", record.OwnerID, record.ID, err)
		}
	}()
	return nil
}

// RemoveCharacter drops a purged character from the index (fire-and-forget).
func (s *Service) RemoveCharacter(_ context.Context, ownerID, documentID string) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	go func() {
		if err := s.meili.DeleteCharacter(ownerID, documentID); err != nil {
			log.Printf("search: delete character %s/%s: %v", ownerID, documentID, err)
		}
	}()
	return nil
}

// ReindexAll reads every character from the store and pushes it to
// Meilisearch. Called at startup.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.scan == nil {
		return
	}
	records, err := s.scan.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexCharacters(records); err != nil {
		log.Printf("search: reindex characters: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
