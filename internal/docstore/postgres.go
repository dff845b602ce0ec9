package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
)

const notifyChannel = "docstore_changes"

// PostgresStore keeps documents as jsonb rows. Merge writes use the jsonb
// concatenation operator; a trigger publishes every change on
// notifyChannel and subscriptions LISTEN on a dedicated connection.
type PostgresStore struct {
	db          *sql.DB
	databaseURL string
}

func NewPostgresStore(db *sql.DB, databaseURL string) *PostgresStore {
	return &PostgresStore{db: db, databaseURL: databaseURL}
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (Fields, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT fields FROM docstore_documents
		WHERE collection=$1 AND partition=$2 AND id=$3
	`, key.Collection, key.Partition, key.ID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return decodeRow(raw)
}

func (s *PostgresStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM docstore_documents WHERE collection=$1 AND partition=$2 AND id=$3)
	`, key.Collection, key.Partition, key.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return exists, nil
}

func (s *PostgresStore) MergeWrite(ctx context.Context, key Key, fields Fields) error {
	if err := key.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO docstore_documents (collection, partition, id, fields)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (collection, partition, id)
		DO UPDATE SET fields = docstore_documents.fields || EXCLUDED.fields, updated_at = NOW()
	`, key.Collection, key.Partition, key.ID, string(payload))
	if err != nil {
		return fmt.Errorf("merge write %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM docstore_documents WHERE collection=$1 AND partition=$2 AND id=$3
	`, key.Collection, key.Partition, key.ID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, collection, partition string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fields FROM docstore_documents
		WHERE collection=$1 AND partition=$2
		ORDER BY id
	`, collection, partition)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", collection, partition, err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s/%s: %w", collection, partition, id, err)
		}
		items = append(items, Document{
			Key:    Key{Collection: collection, Partition: partition, ID: id},
			Fields: fields,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Partitions(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT partition FROM docstore_documents
		WHERE collection=$1 AND partition <> ''
		ORDER BY partition
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("partitions %s: %w", collection, err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var partition string
		if err := rows.Scan(&partition); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out = append(out, partition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return out, nil
}

// Subscribe opens a dedicated connection, LISTENs before reading the
// initial snapshot, then re-reads the row on every matching notification.
func (s *PostgresStore) Subscribe(ctx context.Context, key Key, fn func(Snapshot)) (Subscription, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(ctx, s.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: connect: %w", key, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("subscribe %s: listen: %w", key, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &postgresSubscription{cancel: cancel, done: make(chan struct{})}
	payload := notifyPayload(key)

	go func() {
		defer close(sub.done)
		defer conn.Close(context.Background())

		deliver := func() {
			snap, err := s.snapshot(subCtx, key)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("docstore: refresh %s after notification: %v", key, err)
				}
				return
			}
			if subCtx.Err() == nil {
				fn(snap)
			}
		}

		deliver()
		for {
			notification, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("docstore: listen %s stopped: %v", key, err)
				}
				return
			}
			if notification.Payload == payload {
				deliver()
			}
		}
	}()
	return sub, nil
}

func (s *PostgresStore) snapshot(ctx context.Context, key Key) (Snapshot, error) {
	fields, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: key, Exists: true, Fields: fields}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *postgresSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// notifyPayload mirrors the trigger's collection/partition/id payload;
// unpartitioned keys carry an empty middle segment.
func notifyPayload(key Key) string {
	return key.Collection + "/" + key.Partition + "/" + key.ID
}

func decodeRow(raw []byte) (Fields, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	fields := Fields{}
	if err := decoder.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
