package engine

import (
	"context"
	"log"
	"sort"

	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/rbac"
)

// ListVisible returns the entries actor may see: every partition including
// soft-deleted documents for elevated actors, otherwise the actor's own
// partition without them. Entries are sorted by name, then id.
func ListVisible(ctx context.Context, store docstore.Store, actor Actor) ([]character.ListEntry, error) {
	if !actor.SignedIn() {
		return []character.ListEntry{}, nil
	}
	owners := []string{actor.IdentityID}
	if rbac.Can(rbac.RoleFor(actor.IdentityID, actor.IsElevated, ""), rbac.ActionListAll) {
		partitions, err := store.Partitions(ctx, docstore.CollectionCharacters)
		if err != nil {
			return nil, transient("list partitions", err)
		}
		owners = partitions
	}

	entries := make([]character.ListEntry, 0)
	for _, owner := range owners {
		docs, err := store.List(ctx, docstore.CollectionCharacters, owner)
		if err != nil {
			return nil, transient("list "+owner, err)
		}
		for _, doc := range docs {
			entry := character.DecodeEntry(doc.Key.ID, owner, doc.Fields)
			if entry.Deleted && !rbac.Allowed(actor.IdentityID, actor.IsElevated, owner, rbac.ActionReadDeleted) {
				continue
			}
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// RefreshList re-reads the visible list and publishes it unless a newer
// refresh or an identity change overtook it.
func (s *Session) RefreshList(ctx context.Context) ([]character.ListEntry, error) {
	s.mu.Lock()
	actor := s.actor
	s.listGen++
	gen := s.listGen
	s.mu.Unlock()

	entries, err := ListVisible(ctx, s.store, actor)
	if err != nil {
		s.mu.Lock()
		if gen == s.listGen {
			s.noticeLocked(NoticeTransient, err.Error())
			s.publishLocked()
		}
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if gen == s.listGen && s.actor == actor {
		s.list = entries
		s.publishLocked()
	}
	s.mu.Unlock()
	return entries, nil
}

func (s *Session) refreshQuietly() {
	if _, err := s.RefreshList(s.ctx); err != nil && s.ctx.Err() == nil {
		log.Printf("engine: refresh list: %v", err)
	}
}
