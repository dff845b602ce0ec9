package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/rbac"
)

// SoftDelete hides a document from its owner's list without erasing it.
// Owners and elevated actors may do this.
func (s *Session) SoftDelete(ctx context.Context, documentID, ownerID string) error {
	return s.transition(ctx, documentID, ownerID, rbac.ActionSoftDelete)
}

// Restore clears the deleted flag. Elevated actors only.
func (s *Session) Restore(ctx context.Context, documentID, ownerID string) error {
	return s.transition(ctx, documentID, ownerID, rbac.ActionRestore)
}

// PermanentDelete erases the document from the store, whether or not it
// was soft-deleted first. Elevated actors only.
func (s *Session) PermanentDelete(ctx context.Context, documentID, ownerID string) error {
	return s.transition(ctx, documentID, ownerID, rbac.ActionPurge)
}

func (s *Session) transition(ctx context.Context, documentID, ownerID string, action rbac.Action) error {
	actor := s.Actor()
	if !actor.SignedIn() {
		return ErrNoIdentity
	}
	key := docstore.CharacterKey(strings.TrimSpace(ownerID), strings.TrimSpace(documentID))
	if key.Partition == "" || key.Validate() != nil {
		return fmt.Errorf("%w: document id and owner are required", ErrInvalidInput)
	}
	if !rbac.Allowed(actor.IdentityID, actor.IsElevated, key.Partition, action) {
		return ErrPermissionDenied
	}

	// A pending edit to the same document is written first so the
	// transition is the last word, then the document is closed.
	s.mu.Lock()
	openKey, isOpen := s.openKeyLocked()
	isOpen = isOpen && openKey == key
	s.mu.Unlock()
	if isOpen {
		s.flush(ctx)
		s.clearSelection()
	}

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return s.surface(transient(string(action)+" "+key.String(), err))
	}
	if !exists {
		s.refreshQuietly()
		return ErrNotFound
	}

	switch action {
	case rbac.ActionSoftDelete:
		err = s.store.MergeWrite(ctx, key, docstore.Fields{"deleted": true})
	case rbac.ActionRestore:
		err = s.store.MergeWrite(ctx, key, docstore.Fields{"deleted": false})
	case rbac.ActionPurge:
		err = s.store.Delete(ctx, key)
	}
	if err != nil {
		return s.surface(transient(string(action)+" "+key.String(), err))
	}

	s.reindex(ctx, key, action)
	_, err = s.RefreshList(ctx)
	return err
}

// reindex pushes the stored state of key to the indexer, or removes it
// after a purge.
func (s *Session) reindex(ctx context.Context, key docstore.Key, action rbac.Action) {
	if s.opts.Indexer == nil {
		return
	}
	if action == rbac.ActionPurge {
		if err := s.opts.Indexer.RemoveCharacter(ctx, key.Partition, key.ID); err != nil {
			log.Printf("engine: unindex %s: %v", key, err)
		}
		return
	}
	fields, err := s.store.Get(ctx, key)
	if err != nil {
		log.Printf("engine: reindex %s: %v", key, err)
		return
	}
	s.index(ctx, character.DecodeEntry(key.ID, key.Partition, fields))
}
