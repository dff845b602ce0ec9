package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
)

// openSlot is one generation of the "currently open document" slot. Pushes
// carrying a slot that is no longer current are dropped.
type openSlot struct {
	gen     uint64
	key     docstore.Key
	sub     docstore.Subscription
	ready   chan struct{}
	err     error
	settled bool
}

func (o *openSlot) settle(err error) {
	if o.settled {
		return
	}
	o.settled = true
	o.err = err
	close(o.ready)
}

// open replaces the current subscription with one on key, makes sel the
// selection and waits for the first snapshot. The previous subscription is
// closed before the new one is requested.
func (s *Session) open(ctx context.Context, key docstore.Key, sel Selection) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	closers := s.teardownLocked()
	s.docGen++
	slot := &openSlot{gen: s.docGen, key: key, ready: make(chan struct{})}
	s.slot = slot
	s.selection = sel
	s.publishLocked()
	s.mu.Unlock()
	closeAll(closers)

	sub, err := s.store.Subscribe(ctx, key, func(snap docstore.Snapshot) {
		s.onDocument(slot, snap)
	})
	if err != nil {
		err = transient("subscribe "+key.String(), err)
		s.mu.Lock()
		if s.current(slot) {
			closers := s.dropSelectionLocked()
			s.noticeLocked(NoticeTransient, err.Error())
			s.publishLocked()
			defer closeAll(closers)
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if !s.current(slot) {
		s.mu.Unlock()
		closeAll([]docstore.Subscription{sub})
		return errSuperseded
	}
	slot.sub = sub
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.OpenTimeout)
	defer timer.Stop()
	select {
	case <-slot.ready:
		return slot.err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("open %s: %w: no snapshot received", key, ErrTransient)
	}
}

// resync reloads key after a failed write so the mirror drops edits that
// never reached the store.
func (s *Session) resync(key docstore.Key) {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	fields, err := s.store.Get(ctx, key)
	snap := docstore.Snapshot{Key: key, Exists: true, Fields: fields}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		snap = docstore.Snapshot{Key: key}
	case err != nil:
		log.Printf("engine: resync %s: %v", key, err)
		return
	}

	s.mu.Lock()
	slot := s.slot
	s.mu.Unlock()
	if slot == nil || slot.key != key {
		return
	}
	s.onDocument(slot, snap)
}

func (s *Session) current(slot *openSlot) bool {
	return s.slot != nil && s.slot == slot && s.slot.gen == s.docGen
}

// onDocument handles one push for slot.
func (s *Session) onDocument(slot *openSlot, snap docstore.Snapshot) {
	s.mu.Lock()
	if !s.current(slot) {
		s.mu.Unlock()
		return
	}

	hidden := snap.Exists && !s.actor.IsElevated &&
		character.DecodeEntry(slot.key.ID, slot.key.Partition, snap.Fields).Deleted
	if !snap.Exists || hidden {
		slot.settle(ErrNotFound)
		if hidden {
			s.noticeLocked(NoticeDeleted, "this character was deleted")
		}
		closers := s.dropSelectionLocked()
		s.publishLocked()
		s.mu.Unlock()
		closeAll(closers)
		s.refreshQuietly()
		return
	}

	// Local edits waiting for their write win over the remote state, except
	// for the lifecycle flag which only transitions change. The write lands
	// shortly and its echo brings the mirror back in line; a failed write
	// resyncs from the store instead.
	if s.doc != nil && s.writer.Pending() {
		deleted := character.DecodeEntry(slot.key.ID, slot.key.Partition, snap.Fields).Deleted
		if s.doc.Deleted != deleted {
			next := *s.doc
			next.Deleted = deleted
			s.doc = &next
			s.writer.Amend(slot.key, func(doc *character.Document) { doc.Deleted = deleted })
			s.publishLocked()
		}
		slot.settle(nil)
		s.mu.Unlock()
		return
	}

	doc, err := character.Decode(slot.key.ID, slot.key.Partition, snap.Fields)
	if err != nil {
		for _, fieldErr := range decodeErrors(err) {
			s.noticeLocked(NoticeDecode, fieldErr.Error())
		}
		log.Printf("engine: decode %s: %v", slot.key, err)
	}
	s.doc = &doc
	slot.settle(nil)
	s.publishLocked()
	s.mu.Unlock()
}

// teardownLocked releases the open document: its subscription, its
// canonical copy and any pending write. Selection is left alone.
func (s *Session) teardownLocked() []docstore.Subscription {
	var closers []docstore.Subscription
	if s.slot != nil {
		s.slot.settle(errSuperseded)
		if s.slot.sub != nil {
			closers = append(closers, s.slot.sub)
		}
		s.slot = nil
	}
	s.docGen++
	s.doc = nil
	s.writer.Cancel()
	return closers
}

// dropSelectionLocked tears the document down and returns to the list.
func (s *Session) dropSelectionLocked() []docstore.Subscription {
	s.selection = Selection{}
	return s.teardownLocked()
}

func (s *Session) openKeyLocked() (docstore.Key, bool) {
	if s.slot == nil {
		return docstore.Key{}, false
	}
	return s.slot.key, true
}

func decodeErrors(err error) []error {
	var out []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var fieldErr *character.DecodeError
			if errors.As(e, &fieldErr) {
				out = append(out, fieldErr)
			}
		}
		return out
	}
	return []error{err}
}
