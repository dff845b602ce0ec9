package engine

import (
	"context"
	"strings"

	"sheetkeeper/api/internal/docstore"
)

// Locate resolves which owner partition holds documentID.
//
// A non-empty ownerHint is trusted as-is; the synchronizer finds out if
// the document is not there. Without a hint an elevated actor scans every
// partition in order and stops at the first one holding the document.
// Anyone else can only mean their own partition.
func Locate(ctx context.Context, store docstore.Store, documentID, ownerHint string, actor Actor) (string, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return "", ErrInvalidInput
	}
	if ownerHint = strings.TrimSpace(ownerHint); ownerHint != "" {
		return ownerHint, nil
	}
	if !actor.IsElevated {
		if !actor.SignedIn() {
			return "", ErrNoIdentity
		}
		return actor.IdentityID, nil
	}

	if err := (docstore.Key{Collection: docstore.CollectionCharacters, ID: documentID}).Validate(); err != nil {
		return "", ErrNotFound
	}
	owners, err := store.Partitions(ctx, docstore.CollectionCharacters)
	if err != nil {
		return "", transient("locate "+documentID, err)
	}
	for _, owner := range owners {
		exists, err := store.Exists(ctx, docstore.CharacterKey(owner, documentID))
		if err != nil {
			return "", transient("locate "+documentID, err)
		}
		if exists {
			return owner, nil
		}
	}
	return "", ErrNotFound
}
