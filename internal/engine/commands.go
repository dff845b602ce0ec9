package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/rbac"
	"sheetkeeper/api/internal/util"
)

// Create writes a new document with the full default field set into the
// actor's own partition and opens it.
func (s *Session) Create(ctx context.Context, name string) (string, error) {
	actor := s.Actor()
	if !actor.SignedIn() {
		return "", ErrNoIdentity
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	id := util.NewID("chr")
	doc := character.New(id, actor.IdentityID, name)
	fields, err := character.Encode(doc)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	key := docstore.CharacterKey(actor.IdentityID, id)
	if err := s.store.MergeWrite(ctx, key, docstore.Fields(fields)); err != nil {
		return "", s.surface(transient("create", err))
	}
	s.index(ctx, doc.Entry())

	if err := s.Select(ctx, id, actor.IdentityID); err != nil {
		return id, err
	}
	return id, nil
}

// Select makes documentID the current selection and opens it. A missing
// owner hint is resolved through Locate.
func (s *Session) Select(ctx context.Context, documentID, ownerHint string) error {
	actor := s.Actor()
	if !actor.SignedIn() {
		return ErrNoIdentity
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	s.flush(ctx)

	owner, err := Locate(ctx, s.store, documentID, ownerHint, actor)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.clearSelection()
			s.refreshQuietly()
			return err
		}
		return s.surface(err)
	}
	key := docstore.CharacterKey(owner, documentID)
	if key.Validate() != nil {
		s.clearSelection()
		return ErrNotFound
	}

	err = s.open(ctx, key, Selection{DocumentID: documentID, OwnerHint: owner})
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

// SelectLocator opens the document named by a shareable locator.
func (s *Session) SelectLocator(ctx context.Context, locator string) error {
	sel, err := ParseLocator(locator)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if sel.IsZero() {
		return s.ReturnToList(ctx)
	}
	return s.Select(ctx, sel.DocumentID, sel.OwnerHint)
}

// ReturnToList writes any pending edit, closes the open document and
// refreshes the list.
func (s *Session) ReturnToList(ctx context.Context) error {
	s.flush(ctx)
	s.clearSelection()
	_, err := s.RefreshList(ctx)
	return err
}

// Mutate applies mutations to the open document and schedules its write.
// Actors who may not write the document are refused before anything
// changes.
func (s *Session) Mutate(mutations ...character.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.openKeyLocked()
	if !ok || s.doc == nil {
		return ErrNoSelection
	}
	if !rbac.Allowed(s.actor.IdentityID, s.actor.IsElevated, key.Partition, rbac.ActionWrite) {
		s.noticeLocked(NoticePermission, "you cannot edit this character")
		s.publishLocked()
		return ErrPermissionDenied
	}

	next := character.Apply(*s.doc, mutations...)
	s.doc = &next
	s.writer.Schedule(key, next, s.writeAllowed(key))
	s.publishLocked()
	return nil
}

// MutatePath is the generic mutate-field command.
func (s *Session) MutatePath(path, value string) error {
	m, err := character.ParseMutation(path, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.Mutate(m)
}

// AddItem appends an empty element to list and returns its id.
func (s *Session) AddItem(list string) (string, error) {
	if !character.IsList(list) {
		return "", fmt.Errorf("%w: unknown list %q", ErrInvalidInput, list)
	}
	m := character.NewAddItem(list)
	if err := s.Mutate(m); err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *Session) RemoveItem(list, id string) error {
	if !character.IsList(list) {
		return fmt.Errorf("%w: unknown list %q", ErrInvalidInput, list)
	}
	return s.Mutate(character.RemoveItem{List: list, ID: id})
}

func (s *Session) Credit(amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	return s.Mutate(character.Credit{Amount: amount})
}

func (s *Session) Debit(amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	return s.Mutate(character.Debit{Amount: amount})
}

// CanWrite reports whether the actor may edit the open document.
func (s *Session) CanWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.openKeyLocked()
	return ok && s.doc != nil && rbac.Allowed(s.actor.IdentityID, s.actor.IsElevated, key.Partition, rbac.ActionWrite)
}

// Flush writes a pending edit immediately.
func (s *Session) Flush(ctx context.Context) error {
	return s.writer.Flush(ctx)
}

// writeAllowed re-checks permission against the actor at write time.
func (s *Session) writeAllowed(key docstore.Key) func() bool {
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.actor.SignedIn() && rbac.Allowed(s.actor.IdentityID, s.actor.IsElevated, key.Partition, rbac.ActionWrite)
	}
}

// onWritten receives the outcome of every attempted write.
func (s *Session) onWritten(key docstore.Key, _ character.Document, err error) {
	s.mu.Lock()
	switch {
	case err == nil:
	case errors.Is(err, ErrPermissionDenied):
		log.Printf("engine: dropped write for %s: %v", key, err)
		s.noticeLocked(NoticePermission, "your changes were not saved: permission denied")
	default:
		log.Printf("engine: %v", err)
		s.noticeLocked(NoticeTransient, err.Error())
	}
	s.publishLocked()
	s.mu.Unlock()

	if err != nil {
		s.resync(key)
		return
	}
	s.reindex(s.ctx, key, rbac.ActionWrite)
}

func (s *Session) flush(ctx context.Context) {
	if err := s.writer.Flush(ctx); err != nil {
		log.Printf("engine: flush: %v", err)
	}
}

func (s *Session) clearSelection() {
	s.mu.Lock()
	closers := s.dropSelectionLocked()
	s.publishLocked()
	s.mu.Unlock()
	closeAll(closers)
}

// surface records transient failures as notices and returns err unchanged.
func (s *Session) surface(err error) error {
	if errors.Is(err, ErrTransient) {
		s.mu.Lock()
		s.noticeLocked(NoticeTransient, err.Error())
		s.publishLocked()
		s.mu.Unlock()
	}
	return err
}

func (s *Session) index(ctx context.Context, entry character.ListEntry) {
	if s.opts.Indexer == nil {
		return
	}
	if err := s.opts.Indexer.IndexCharacter(ctx, entry); err != nil {
		log.Printf("engine: index %s/%s: %v", entry.OwnerID, entry.ID, err)
	}
}
