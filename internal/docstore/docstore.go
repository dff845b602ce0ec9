// Package docstore is the remote document store contract: flat JSON-like
// documents addressed by (collection, partition, id), with point reads,
// top-level merge writes, deletes and push subscriptions.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// Well-known collections.
const (
	// CollectionCharacters is partitioned by owner identity id.
	CollectionCharacters = "characters"
	// CollectionProfiles holds one record per identity, unpartitioned.
	CollectionProfiles = "profiles"
	// CollectionAccounts holds sign-in credentials keyed by email.
	CollectionAccounts = "accounts"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrInvalidKey = errors.New("invalid document key")
)

// Fields is a flat document. Values are strings, numbers or booleans;
// nested structure is stored pre-encoded as strings by callers.
type Fields map[string]any

type Key struct {
	Collection string
	Partition  string
	ID         string
}

// CharacterKey addresses a character inside its owner's partition.
func CharacterKey(ownerID, documentID string) Key {
	return Key{Collection: CollectionCharacters, Partition: ownerID, ID: documentID}
}

// ProfileKey addresses the profile record of an identity.
func ProfileKey(identityID string) Key {
	return Key{Collection: CollectionProfiles, ID: identityID}
}

func (k Key) Path() string {
	if k.Partition == "" {
		return k.Collection + "/" + k.ID
	}
	return k.Collection + "/" + k.Partition + "/" + k.ID
}

func (k Key) String() string {
	return k.Path()
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.Collection) == "" || strings.TrimSpace(k.ID) == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(k.Collection+k.Partition+k.ID, "/") {
		return ErrInvalidKey
	}
	return nil
}

// Document is one stored record returned by List.
type Document struct {
	Key    Key
	Fields Fields
}

// Snapshot is delivered to subscribers: the current state of a key, or
// Exists=false once it is gone.
type Snapshot struct {
	Key    Key
	Exists bool
	Fields Fields
}

// Subscription is a live push registration. Close is idempotent; a delivery
// already in progress when Close is called may still complete.
type Subscription interface {
	Close() error
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key Key) (Fields, error)
	Exists(ctx context.Context, key Key) (bool, error)
	// MergeWrite upserts the given top-level fields and leaves the others
	// untouched.
	MergeWrite(ctx context.Context, key Key, fields Fields) error
	Delete(ctx context.Context, key Key) error
	List(ctx context.Context, collection, partition string) ([]Document, error)
	// Partitions returns every known partition of collection, sorted.
	Partitions(ctx context.Context, collection string) ([]string, error)
	// Subscribe delivers the current snapshot, then one snapshot per change,
	// in order, until the subscription is closed.
	Subscribe(ctx context.Context, key Key, fn func(Snapshot)) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

func cloneFields(in Fields) Fields {
	if in == nil {
		return nil
	}
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
