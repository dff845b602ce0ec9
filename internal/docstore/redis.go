package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document in a hash whose values are JSON-encoded
// fields. Set indexes track ids per partition and partitions per
// collection; every change is announced on a per-document channel.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "sheets:",
	}
}

func (s *RedisStore) docKey(key Key) string {
	return s.prefix + "doc:" + key.Path()
}

func (s *RedisStore) idsKey(collection, partition string) string {
	return s.prefix + "ids:" + collection + "/" + partition
}

func (s *RedisStore) partitionsKey(collection string) string {
	return s.prefix + "partitions:" + collection
}

func (s *RedisStore) channel(key Key) string {
	return s.prefix + "changes:" + key.Path()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Fields, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.client.HGetAll(ctx, s.docKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return decodeHash(raw)
}

func (s *RedisStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, s.docKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) MergeWrite(ctx context.Context, key Key, fields Fields) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for name, value := range fields {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", name, err)
		}
		values[name] = string(encoded)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.docKey(key), values)
		pipe.SAdd(ctx, s.idsKey(key.Collection, key.Partition), key.ID)
		if key.Partition != "" {
			pipe.SAdd(ctx, s.partitionsKey(key.Collection), key.Partition)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("merge write %s: %w", key, err)
	}
	if err := s.client.Publish(ctx, s.channel(key), "put").Err(); err != nil {
		return fmt.Errorf("announce %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(key))
		pipe.SRem(ctx, s.idsKey(key.Collection, key.Partition), key.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := s.client.Publish(ctx, s.channel(key), "delete").Err(); err != nil {
		return fmt.Errorf("announce %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, collection, partition string) ([]Document, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey(collection, partition)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", collection, partition, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(Key{Collection: collection, Partition: partition, ID: id}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", collection, partition, err)
	}

	items := make([]Document, 0, len(ids))
	for i, id := range ids {
		raw := cmds[i].Val()
		if len(raw) == 0 {
			continue
		}
		fields, err := decodeHash(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s/%s: %w", collection, partition, id, err)
		}
		items = append(items, Document{
			Key:    Key{Collection: collection, Partition: partition, ID: id},
			Fields: fields,
		})
	}
	return items, nil
}

func (s *RedisStore) Partitions(ctx context.Context, collection string) ([]string, error) {
	partitions, err := s.client.SMembers(ctx, s.partitionsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("partitions %s: %w", collection, err)
	}
	sort.Strings(partitions)

	out := make([]string, 0, len(partitions))
	for _, partition := range partitions {
		n, err := s.client.SCard(ctx, s.idsKey(collection, partition)).Result()
		if err != nil {
			return nil, fmt.Errorf("partitions %s: %w", collection, err)
		}
		if n > 0 {
			out = append(out, partition)
		}
	}
	return out, nil
}

// Subscribe listens on the document channel before reading the initial
// snapshot, so no change between the two is missed. Each notification
// triggers a fresh read; deliveries run on a single goroutine.
func (s *RedisStore) Subscribe(ctx context.Context, key Key, fn func(Snapshot)) (Subscription, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	pubsub := s.client.Subscribe(ctx, s.channel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	messages := pubsub.Channel()

	go func() {
		defer close(sub.done)
		deliver := func() bool {
			snap, err := s.snapshot(subCtx, key)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("docstore: refresh %s after notification: %v", key, err)
				}
				return subCtx.Err() == nil
			}
			if subCtx.Err() != nil {
				return false
			}
			fn(snap)
			return true
		}
		if !deliver() {
			return
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				if !deliver() {
					return
				}
			}
		}
	}()
	return sub, nil
}

func (s *RedisStore) snapshot(ctx context.Context, key Key) (Snapshot, error) {
	fields, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: key, Exists: true, Fields: fields}, nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
	})
	return s.err
}

func decodeHash(raw map[string]string) (Fields, error) {
	fields := make(Fields, len(raw))
	for name, encoded := range raw {
		value, err := decodeValue([]byte(encoded))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = value
	}
	return fields, nil
}

// decodeValue keeps integers exact by decoding numbers as json.Number.
func decodeValue(raw []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
