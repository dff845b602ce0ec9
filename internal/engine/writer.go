package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
)

const writeTimeout = 10 * time.Second

// Writer is a trailing-edge debounce in front of the store. Each Schedule
// replaces the pending snapshot and restarts the quiescence timer; only the
// last snapshot of a burst is written.
type Writer struct {
	store docstore.Store
	delay time.Duration
	done  func(key docstore.Key, doc character.Document, err error)

	// writing serializes timer fires and flushes so a flush returns only
	// after any in-flight write has finished.
	writing sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending *pendingWrite
}

type pendingWrite struct {
	key     docstore.Key
	doc     character.Document
	allowed func() bool
}

// NewWriter returns a writer that reports every attempted write to done,
// which may be nil.
func NewWriter(store docstore.Store, delay time.Duration, done func(docstore.Key, character.Document, error)) *Writer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Writer{store: store, delay: delay, done: done}
}

// Schedule queues doc for key. allowed is evaluated when the write is
// issued; a false result drops the write with ErrPermissionDenied.
func (w *Writer) Schedule(key docstore.Key, doc character.Document, allowed func() bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.seq++
	seq := w.seq
	w.pending = &pendingWrite{key: key, doc: doc, allowed: allowed}
	w.timer = time.AfterFunc(w.delay, func() { w.fire(seq) })
}

// Pending reports whether a write is waiting for its quiescence window.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// Amend applies fn to the pending snapshot for key, if there is one.
func (w *Writer) Amend(key docstore.Key, fn func(*character.Document)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil && w.pending.key == key {
		fn(&w.pending.doc)
	}
}

// Cancel drops the pending write, if any.
func (w *Writer) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// Flush issues the pending write now instead of waiting for the timer.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	p := w.pending
	w.stopLocked()
	w.mu.Unlock()

	w.writing.Lock()
	defer w.writing.Unlock()
	if p == nil {
		return nil
	}
	return w.write(ctx, p)
}

func (w *Writer) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.seq++
	w.pending = nil
}

func (w *Writer) fire(seq uint64) {
	w.writing.Lock()
	defer w.writing.Unlock()

	w.mu.Lock()
	if seq != w.seq || w.pending == nil {
		w.mu.Unlock()
		return
	}
	p := w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = w.write(ctx, p)
}

func (w *Writer) write(ctx context.Context, p *pendingWrite) error {
	err := w.persist(ctx, p)
	if w.done != nil {
		w.done(p.key, p.doc, err)
	}
	return err
}

// persist merge-writes the whole serialized document. id and ownerId always
// come from the resolved key; deleted is left to the lifecycle transitions.
func (w *Writer) persist(ctx context.Context, p *pendingWrite) error {
	if p.allowed != nil && !p.allowed() {
		return fmt.Errorf("write %s: %w", p.key, ErrPermissionDenied)
	}
	fields, err := character.Encode(p.doc)
	if err != nil {
		return fmt.Errorf("write %s: %w", p.key, err)
	}
	fields["id"] = p.key.ID
	fields["ownerId"] = p.key.Partition
	delete(fields, "deleted")
	if err := w.store.MergeWrite(ctx, p.key, docstore.Fields(fields)); err != nil {
		return transient("write "+p.key.String(), err)
	}
	return nil
}
