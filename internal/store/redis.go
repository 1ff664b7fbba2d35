package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "friendfinder-backend/pkg/errors"
	"friendfinder-backend/pkg/logger"
	"friendfinder-backend/pkg/metrics"
)

const (
	docKeyPrefix      = "ff:doc:"
	childrenKeyPrefix = "ff:children:"
	watchChannel      = "ff:watch:"
	childWatchChannel = "ff:childwatch:"

	maxWriteAttempts = 3
	initialBackoff   = 100 * time.Millisecond
	maxResubBackoff  = 5 * time.Second
)

// RedisStore implements Store on Redis: one JSON value per document path, a
// list per sub-collection, and a pub/sub channel per path as the change
// feed. Conditional create maps to SETNX, which makes the first-writer-wins
// offer race atomic at the store level.
type RedisStore struct {
	client  *redis.Client
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stateFn func(ConnState)
}

// NewRedisStore creates a Redis-backed realtime store. metrics may be nil.
func NewRedisStore(client *redis.Client, m *metrics.Metrics) *RedisStore {
	return &RedisStore{client: client, metrics: m}
}

// OnConnStateChange registers a listener for subscription connection state
// transitions (connected/reconnecting). One listener, last registration wins.
func (s *RedisStore) OnConnStateChange(fn func(ConnState)) {
	s.mu.Lock()
	s.stateFn = fn
	s.mu.Unlock()
}

func (s *RedisStore) notifyState(state ConnState) {
	s.mu.RLock()
	fn := s.stateFn
	s.mu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

type snapshotPayload struct {
	Exists bool     `json:"exists"`
	Data   Document `json:"data,omitempty"`
}

type childPayload struct {
	ID   string   `json:"id"`
	Data Document `json:"data"`
}

// Get reads the current document at path
func (s *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	var snap Snapshot
	err := s.withRetry(ctx, "get", func() error {
		raw, err := s.client.Get(ctx, docKeyPrefix+path).Result()
		if errors.Is(err, redis.Nil) {
			snap = Snapshot{Path: path, Exists: false}
			return nil
		}
		if err != nil {
			return err
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("corrupt document at %s: %w", path, err)
		}
		snap = Snapshot{Path: path, Exists: true, Data: doc}
		return nil
	})
	return snap, err
}

// Create writes the document only if the path is vacant
func (s *RedisStore) Create(ctx context.Context, path string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return s.withRetry(ctx, "create", func() error {
		ok, err := s.client.SetNX(ctx, docKeyPrefix+path, raw, 0).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrExists
		}
		s.publishSnapshot(ctx, path, Snapshot{Path: path, Exists: true, Data: doc})
		return nil
	})
}

// Put overwrites the document at path unconditionally
func (s *RedisStore) Put(ctx context.Context, path string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return s.withRetry(ctx, "put", func() error {
		if err := s.client.Set(ctx, docKeyPrefix+path, raw, 0).Err(); err != nil {
			return err
		}
		s.publishSnapshot(ctx, path, Snapshot{Path: path, Exists: true, Data: doc})
		return nil
	})
}

// Update merges the partial document into the existing one. The
// read-merge-write sequence runs under an optimistic WATCH transaction so
// concurrent merges of different fields cannot lose each other.
func (s *RedisStore) Update(ctx context.Context, path string, partial Document) error {
	return s.merge(ctx, "update", path, "", partial)
}

// UpdateIfAbsent merges like Update, but only while guardField is unset on
// the document. The guard check runs inside the same WATCH transaction as
// the merge, so two racing writers cannot both pass it.
func (s *RedisStore) UpdateIfAbsent(ctx context.Context, path, guardField string, partial Document) error {
	return s.merge(ctx, "update_if_absent", path, guardField, partial)
}

func (s *RedisStore) merge(ctx context.Context, op, path, guardField string, partial Document) error {
	key := docKeyPrefix + path
	return s.withRetry(ctx, op, func() error {
		var merged Document
		txn := func(tx *redis.Tx) error {
			merged = Document{}
			raw, err := tx.Get(ctx, key).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				if uerr := json.Unmarshal([]byte(raw), &merged); uerr != nil {
					return fmt.Errorf("corrupt document at %s: %w", path, uerr)
				}
			}
			if guardField != "" {
				if _, set := merged[guardField]; set {
					return ErrExists
				}
			}
			for k, v := range partial {
				merged[k] = v
			}
			out, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, 0)
				return nil
			})
			return err
		}
		if err := s.client.Watch(ctx, txn, key); err != nil {
			return err
		}
		s.publishSnapshot(ctx, path, Snapshot{Path: path, Exists: true, Data: merged})
		return nil
	})
}

// Delete removes the document and its sub-collection
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	return s.withRetry(ctx, "delete", func() error {
		if err := s.client.Del(ctx, docKeyPrefix+path, childrenKeyPrefix+path).Err(); err != nil {
			return err
		}
		s.publishSnapshot(ctx, path, Snapshot{Path: path, Exists: false})
		return nil
	})
}

// AddChild appends a record to the path's sub-collection
func (s *RedisStore) AddChild(ctx context.Context, path string, doc Document) (string, error) {
	id := uuid.New().String()
	payload, err := json.Marshal(childPayload{ID: id, Data: doc})
	if err != nil {
		return "", fmt.Errorf("marshal child: %w", err)
	}
	err = s.withRetry(ctx, "add_child", func() error {
		if err := s.client.RPush(ctx, childrenKeyPrefix+path, payload).Err(); err != nil {
			return err
		}
		return s.client.Publish(ctx, childWatchChannel+path, payload).Err()
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe streams full snapshots of the path, starting with its current
// state. The first snapshot is fetched only after the change feed is live,
// so a write landing between the fetch and the subscribe cannot go
// unobserved.
func (s *RedisStore) Subscribe(ctx context.Context, path string) (<-chan Snapshot, error) {
	// Surface an unreachable store to the caller rather than a silently
	// dead channel.
	if _, err := s.Get(ctx, path); err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 16)
	emitCurrent := func() {
		if snap, err := s.Get(ctx, path); err == nil {
			select {
			case out <- snap:
			case <-ctx.Done():
			}
		}
	}

	go func() {
		defer close(out)
		s.pumpPubSub(ctx, watchChannel+path, func(payload string) {
			var snap snapshotPayload
			if err := json.Unmarshal([]byte(payload), &snap); err != nil {
				logger.Warn("dropping malformed snapshot", zap.String("path", path), zap.Error(err))
				return
			}
			select {
			case out <- Snapshot{Path: path, Exists: snap.Exists, Data: snap.Data}:
			case <-ctx.Done():
			}
		}, emitCurrent)
	}()

	return out, nil
}

// SubscribeChildren streams sub-collection additions. The durable list is
// replayed after every successful subscribe, the first included, so
// records committed while the feed was down are re-delivered rather than
// lost. Consumers tolerate replayed duplicates.
func (s *RedisStore) SubscribeChildren(ctx context.Context, path string) (<-chan ChildEvent, error) {
	if _, err := s.listChildren(ctx, path); err != nil {
		return nil, err
	}

	out := make(chan ChildEvent, 64)
	replay := func() {
		events, err := s.listChildren(ctx, path)
		if err != nil {
			logger.Warn("replaying children failed", zap.String("path", path), zap.Error(err))
			return
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}

	go func() {
		defer close(out)
		s.pumpPubSub(ctx, childWatchChannel+path, func(payload string) {
			var child childPayload
			if err := json.Unmarshal([]byte(payload), &child); err != nil {
				logger.Warn("dropping malformed child event", zap.String("path", path), zap.Error(err))
				return
			}
			select {
			case out <- ChildEvent{Parent: path, ID: child.ID, Data: child.Data}:
			case <-ctx.Done():
			}
		}, replay)
	}()

	return out, nil
}

func (s *RedisStore) listChildren(ctx context.Context, path string) ([]ChildEvent, error) {
	var events []ChildEvent
	err := s.withRetry(ctx, "list_children", func() error {
		raws, err := s.client.LRange(ctx, childrenKeyPrefix+path, 0, -1).Result()
		if err != nil {
			return err
		}
		events = events[:0]
		for _, raw := range raws {
			var child childPayload
			if uerr := json.Unmarshal([]byte(raw), &child); uerr != nil {
				continue // skip corrupt records
			}
			events = append(events, ChildEvent{Parent: path, ID: child.ID, Data: child.Data})
		}
		return nil
	})
	return events, err
}

// pumpPubSub delivers messages from a Redis pub/sub channel until ctx is
// done, resubscribing with exponential backoff on failure. onSub runs
// after every successful subscribe, the first included, so callers can
// fetch state only once the feed is live and refetch whatever an outage
// skipped.
func (s *RedisStore) pumpPubSub(ctx context.Context, channel string, deliver func(string), onSub func()) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		pubsub := s.client.Subscribe(ctx, channel)
		stop := context.AfterFunc(ctx, func() { pubsub.Close() })

		_, err := pubsub.Receive(ctx)
		if err != nil {
			stop()
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.notifyState(ConnStateReconnecting)
			logger.Warn("store subscription failed, backing off",
				zap.String("channel", channel), zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = minDuration(backoff*2, maxResubBackoff)
			continue
		}

		s.notifyState(ConnStateConnected)
		backoff = initialBackoff
		if onSub != nil {
			onSub()
		}

		err = receivePubSub(ctx, pubsub, deliver)
		stop()
		pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		s.notifyState(ConnStateReconnecting)
		logger.Warn("store subscription interrupted, resubscribing",
			zap.String("channel", channel), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = minDuration(backoff*2, maxResubBackoff)
	}
}

// receivePubSub reads until the connection fails. Raw receives are used
// instead of the client's auto-reconnecting channel: a silent client-side
// reconnect would hide the gap in the feed from the caller.
func receivePubSub(ctx context.Context, pubsub *redis.PubSub, deliver func(string)) error {
	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			return err
		}
		if m, ok := msg.(*redis.Message); ok {
			deliver(m.Payload)
		}
	}
}

func (s *RedisStore) publishSnapshot(ctx context.Context, path string, snap Snapshot) {
	payload, err := json.Marshal(snapshotPayload{Exists: snap.Exists, Data: snap.Data})
	if err != nil {
		logger.Error("marshal snapshot for publish", zap.String("path", path), zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, watchChannel+path, payload).Err(); err != nil {
		logger.Warn("publish snapshot", zap.String("path", path), zap.Error(err))
	}
}

// withRetry runs fn with bounded exponential backoff. ErrExists and
// ErrNotFound are protocol outcomes, not transport failures, and pass
// through untouched. Exhausted attempts surface as a TransportError.
func (s *RedisStore) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.RecordStoreRetry()
			}
			jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return apperrors.TransportError(ctx.Err())
			}
			backoff *= 2
		}

		start := time.Now()
		err = fn()
		if s.metrics != nil {
			s.metrics.RecordStoreOperation(op, err, time.Since(start))
		}
		if err == nil || errors.Is(err, ErrExists) || errors.Is(err, ErrNotFound) {
			return err
		}
		if ctx.Err() != nil {
			return apperrors.TransportError(err)
		}
	}
	return apperrors.TransportError(err)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
