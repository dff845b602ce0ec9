package engine

import (
	"context"
	"errors"
	"strings"

	"sheetkeeper/api/internal/docstore"
)

// SetIdentity applies an identity-provider signal. An empty identityID
// means the identity was lost: the profile subscription is torn down, the
// elevated flag resets and all selection state is cleared. A new identity
// gets its profile record bootstrapped and kept live.
func (s *Session) SetIdentity(ctx context.Context, identityID, displayLabel string) error {
	identityID = strings.TrimSpace(identityID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if identityID != "" && identityID == s.actor.IdentityID {
		if displayLabel != "" && displayLabel != s.actor.DisplayLabel {
			s.actor.DisplayLabel = displayLabel
			s.publishLocked()
		}
		s.mu.Unlock()
		return nil
	}
	closers := s.resetLocked()
	s.publishLocked()
	s.mu.Unlock()

	closeAll(closers)
	if identityID == "" {
		return nil
	}

	elevated, err := s.bootstrapProfile(ctx, identityID, displayLabel)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.profileGen++
	gen := s.profileGen
	s.actor = Actor{IdentityID: identityID, DisplayLabel: displayLabel, IsElevated: elevated}
	s.publishLocked()
	s.mu.Unlock()

	sub, err := s.store.Subscribe(ctx, docstore.ProfileKey(identityID), func(snap docstore.Snapshot) {
		s.onProfile(gen, snap)
	})
	if err != nil {
		return transient("subscribe profile", err)
	}
	s.mu.Lock()
	if s.profileGen != gen {
		s.mu.Unlock()
		closeAll([]docstore.Subscription{sub})
		return nil
	}
	s.profileSub = sub
	s.mu.Unlock()

	_, err = s.RefreshList(ctx)
	return err
}

// SetElevated is the self-service role change: the actor flips its own
// profile flag.
func (s *Session) SetElevated(ctx context.Context, elevated bool) error {
	actor := s.Actor()
	if !actor.SignedIn() {
		return ErrNoIdentity
	}
	if err := s.store.MergeWrite(ctx, docstore.ProfileKey(actor.IdentityID), docstore.Fields{"isElevated": elevated}); err != nil {
		return transient("set elevated", err)
	}

	s.mu.Lock()
	if s.actor.IdentityID != actor.IdentityID {
		s.mu.Unlock()
		return nil
	}
	changed, closers := s.applyElevationLocked(elevated)
	s.publishLocked()
	s.mu.Unlock()
	closeAll(closers)

	if changed {
		_, err := s.RefreshList(ctx)
		return err
	}
	return nil
}

// bootstrapProfile reads the profile record, creating it on first sign-in.
func (s *Session) bootstrapProfile(ctx context.Context, identityID, displayLabel string) (bool, error) {
	key := docstore.ProfileKey(identityID)
	fields, err := s.store.Get(ctx, key)
	if errors.Is(err, docstore.ErrNotFound) {
		if err := s.store.MergeWrite(ctx, key, docstore.Fields{"displayLabel": displayLabel, "isElevated": false}); err != nil {
			return false, transient("create profile", err)
		}
		return false, nil
	}
	if err != nil {
		return false, transient("read profile", err)
	}
	if displayLabel != "" && fields["displayLabel"] != displayLabel {
		if err := s.store.MergeWrite(ctx, key, docstore.Fields{"displayLabel": displayLabel}); err != nil {
			return false, transient("update profile", err)
		}
	}
	return fields["isElevated"] == true, nil
}

func (s *Session) onProfile(gen uint64, snap docstore.Snapshot) {
	s.mu.Lock()
	if gen != s.profileGen {
		s.mu.Unlock()
		return
	}
	changed, closers := s.applyElevationLocked(snap.Exists && snap.Fields["isElevated"] == true)
	if changed {
		s.publishLocked()
	}
	s.mu.Unlock()
	closeAll(closers)

	if changed {
		s.refreshQuietly()
	}
}

// applyElevationLocked updates the flag. Losing elevation while a
// soft-deleted document is open hides it like any other deleted document.
func (s *Session) applyElevationLocked(elevated bool) (bool, []docstore.Subscription) {
	if s.actor.IsElevated == elevated {
		return false, nil
	}
	s.actor.IsElevated = elevated
	if !elevated && s.doc != nil && s.doc.Deleted {
		s.noticeLocked(NoticeDeleted, "this character was deleted")
		return true, s.dropSelectionLocked()
	}
	return true, nil
}
