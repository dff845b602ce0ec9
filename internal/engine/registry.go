package engine

import (
	"context"
	"sync"

	"sheetkeeper/api/internal/docstore"
)

// Registry keeps one Session per signed-in identity so every connection of
// the same actor shares the open document and its pending writes.
type Registry struct {
	store docstore.Store
	opts  Options

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session *Session
	ready   chan struct{}
	err     error
}

func NewRegistry(store docstore.Store, opts Options) *Registry {
	return &Registry{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*registryEntry),
	}
}

// Acquire returns the session for identityID, creating and signing it in
// on first use.
func (r *Registry) Acquire(ctx context.Context, identityID, displayLabel string) (*Session, error) {
	if identityID == "" {
		return nil, ErrNoIdentity
	}
	r.mu.Lock()
	entry, ok := r.sessions[identityID]
	if !ok {
		entry = &registryEntry{session: NewSession(r.store, r.opts), ready: make(chan struct{})}
		r.sessions[identityID] = entry
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		if err := entry.session.SetIdentity(ctx, identityID, displayLabel); err != nil {
			return nil, err
		}
		return entry.session, nil
	}

	entry.err = entry.session.SetIdentity(ctx, identityID, displayLabel)
	close(entry.ready)
	if entry.err != nil {
		r.mu.Lock()
		if r.sessions[identityID] == entry {
			delete(r.sessions, identityID)
		}
		r.mu.Unlock()
		_ = entry.session.Close()
		return nil, entry.err
	}
	return entry.session, nil
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(identityID string) (*Session, bool) {
	r.mu.Lock()
	entry, ok := r.sessions[identityID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-entry.ready:
		return entry.session, entry.err == nil
	default:
		return nil, false
	}
}

// Release signs identityID out and drops its session.
func (r *Registry) Release(ctx context.Context, identityID string) error {
	r.mu.Lock()
	entry, ok := r.sessions[identityID]
	delete(r.sessions, identityID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	<-entry.ready
	if err := entry.session.SetIdentity(ctx, "", ""); err != nil {
		return err
	}
	return entry.session.Close()
}

func (r *Registry) Close() error {
	r.mu.Lock()
	entries := make([]*registryEntry, 0, len(r.sessions))
	for id, entry := range r.sessions {
		entries = append(entries, entry)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, entry := range entries {
		<-entry.ready
		_ = entry.session.Close()
	}
	return nil
}
