// Package engine keeps one actor's live view of the character store: who
// the actor is, which document is open, the deserialized mirror of that
// document, the debounced write-back of local edits and the list of
// documents the actor may see.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultOpenTimeout = 5 * time.Second
	maxNotices         = 20
)

// Actor is the signed-in identity plus its elevated-role flag.
type Actor struct {
	IdentityID   string `json:"identityId"`
	DisplayLabel string `json:"displayLabel"`
	IsElevated   bool   `json:"isElevated"`
}

func (a Actor) SignedIn() bool {
	return a.IdentityID != ""
}

type NoticeKind string

const (
	NoticeDeleted    NoticeKind = "deleted"
	NoticeDecode     NoticeKind = "decode"
	NoticePermission NoticeKind = "permission"
	NoticeTransient  NoticeKind = "transient"
)

// Notice is a non-fatal, user-visible event.
type Notice struct {
	ID      uint64     `json:"id"`
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// State is an immutable snapshot of a session handed to the presentation
// layer.
type State struct {
	Version   uint64                `json:"version"`
	Actor     Actor                 `json:"actor"`
	Selection Selection             `json:"selection"`
	Locator   string                `json:"locator"`
	Document  *character.Document   `json:"document,omitempty"`
	List      []character.ListEntry `json:"list"`
	Notices   []Notice              `json:"notices"`
	Pending   bool                  `json:"pendingWrite"`
}

// Indexer mirrors list entries into a secondary index such as search.
type Indexer interface {
	IndexCharacter(ctx context.Context, entry character.ListEntry) error
	RemoveCharacter(ctx context.Context, ownerID, documentID string) error
}

type Options struct {
	// Debounce is the quiescence window before a local edit is written.
	Debounce time.Duration
	// OpenTimeout bounds how long Select waits for the first snapshot.
	OpenTimeout time.Duration
	Indexer     Indexer
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	return o
}

// Session is the context object owned by one signed-in actor. Every
// reaction (command, store push, timer) runs to completion under mu; store
// I/O happens outside it.
type Session struct {
	store  docstore.Store
	opts   Options
	writer *Writer
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	actor      Actor
	profileGen uint64
	profileSub docstore.Subscription
	selection  Selection
	docGen     uint64
	slot       *openSlot
	doc        *character.Document
	listGen    uint64
	list       []character.ListEntry
	notices    []Notice
	noticeSeq  uint64
	version    uint64
	watchers   map[chan State]struct{}
}

func NewSession(store docstore.Store, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:    store,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		list:     []character.ListEntry{},
		watchers: make(map[chan State]struct{}),
	}
	s.writer = NewWriter(store, s.opts.Debounce, s.onWritten)
	return s
}

func (s *Session) Actor() Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Watch returns a channel that always holds the latest state. Slow readers
// skip intermediate versions. The channel is closed with the session.
func (s *Session) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchers[ch] = struct{}{}
	ch <- s.stateLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.watchers[ch]; ok {
				delete(s.watchers, ch)
				close(ch)
			}
		})
	}
}

// DismissNotices drops every notice up to and including id.
func (s *Session) DismissNotices(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notices[:0]
	for _, n := range s.notices {
		if n.ID > id {
			kept = append(kept, n)
		}
	}
	s.notices = kept
	s.publishLocked()
}

// Close flushes a pending write, releases every subscription and closes
// all watchers.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writer.Flush(ctx); err != nil {
		log.Printf("engine: flush on close: %v", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.resetLocked()
	for ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	s.mu.Unlock()

	closeAll(closers)
	s.cancel()
	return nil
}

func (s *Session) stateLocked() State {
	state := State{
		Version:   s.version,
		Actor:     s.actor,
		Selection: s.selection,
		Locator:   s.selection.Locator(),
		List:      append([]character.ListEntry{}, s.list...),
		Notices:   append([]Notice{}, s.notices...),
		Pending:   s.writer.Pending(),
	}
	if s.doc != nil {
		doc := s.doc.Clone()
		state.Document = &doc
	}
	return state
}

func (s *Session) publishLocked() {
	s.version++
	state := s.stateLocked()
	for ch := range s.watchers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

func (s *Session) noticeLocked(kind NoticeKind, message string) {
	s.noticeSeq++
	s.notices = append(s.notices, Notice{ID: s.noticeSeq, Kind: kind, Message: message, At: time.Now().UTC()})
	if len(s.notices) > maxNotices {
		s.notices = append([]Notice{}, s.notices[len(s.notices)-maxNotices:]...)
	}
}

// resetLocked returns the session to its signed-out state.
func (s *Session) resetLocked() []docstore.Subscription {
	closers := s.dropSelectionLocked()
	s.profileGen++
	if s.profileSub != nil {
		closers = append(closers, s.profileSub)
		s.profileSub = nil
	}
	s.actor = Actor{}
	s.listGen++
	s.list = []character.ListEntry{}
	s.notices = nil
	return closers
}

func closeAll(subs []docstore.Subscription) {
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil {
			log.Printf("engine: close subscription: %v", err)
		}
	}
}
