package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "friendfinder-backend/pkg/errors"
)

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return srv, NewRedisStore(client, nil)
}

func watchConnStates(s *RedisStore) <-chan ConnState {
	states := make(chan ConnState, 32)
	s.OnConnStateChange(func(cs ConnState) {
		select {
		case states <- cs:
		default:
		}
	})
	return states
}

func recvRedisSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "snapshot stream closed unexpectedly")
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func recvRedisChild(t *testing.T, ch <-chan ChildEvent) ChildEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "child stream closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for child event")
		return ChildEvent{}
	}
}

func waitConnState(t *testing.T, states <-chan ConnState, want ConnState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for connection state %q", want)
		}
	}
}

func TestRedisCreateIsFirstWriterWins(t *testing.T) {
	_, s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "calls/abc", Document{"writer": "a"}))
	assert.ErrorIs(t, s.Create(ctx, "calls/abc", Document{"writer": "b"}), ErrExists)

	snap, err := s.Get(ctx, "calls/abc")
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Data["writer"])
}

func TestRedisUpdateIfAbsentGuardsField(t *testing.T) {
	_, s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "calls/abc", Document{"offer": "o"}))
	require.NoError(t, s.UpdateIfAbsent(ctx, "calls/abc", "answer", Document{"answer": "a1"}))

	err := s.UpdateIfAbsent(ctx, "calls/abc", "answer", Document{"answer": "a2"})
	assert.ErrorIs(t, err, ErrExists)

	snap, err := s.Get(ctx, "calls/abc")
	require.NoError(t, err)
	assert.Equal(t, "a1", snap.Data["answer"], "the first guarded merge must survive")
	assert.Equal(t, "o", snap.Data["offer"])
}

// The first snapshot is emitted only once the change feed is live, so a
// write issued after receiving it can never fall into a setup gap.
func TestRedisSubscribeSeesWriteAfterFirstSnapshot(t *testing.T) {
	_, s := newTestRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.Subscribe(ctx, "conversations/abc")
	require.NoError(t, err)

	first := recvRedisSnapshot(t, sub)
	assert.False(t, first.Exists)

	require.NoError(t, s.Put(ctx, "conversations/abc", Document{"rev": "1"}))
	next := recvRedisSnapshot(t, sub)
	require.True(t, next.Exists)
	assert.Equal(t, "1", next.Data["rev"])
}

func TestRedisSubscribeRefetchesAfterReconnect(t *testing.T) {
	srv, s := newTestRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := watchConnStates(s)

	require.NoError(t, s.Put(ctx, "calls/abc", Document{"rev": "1"}))

	sub, err := s.Subscribe(ctx, "calls/abc")
	require.NoError(t, err)
	first := recvRedisSnapshot(t, sub)
	require.True(t, first.Exists)
	assert.Equal(t, "1", first.Data["rev"])

	srv.Close()
	waitConnState(t, states, ConnStateReconnecting)
	require.NoError(t, srv.Restart())
	waitConnState(t, states, ConnStateConnected)

	// The resubscribe refetches current state, so the subscriber
	// converges even though the feed was down.
	refetched := recvRedisSnapshot(t, sub)
	require.True(t, refetched.Exists)
	assert.Equal(t, "1", refetched.Data["rev"])

	require.NoError(t, s.Put(ctx, "calls/abc", Document{"rev": "2"}))
	for {
		snap := recvRedisSnapshot(t, sub)
		if snap.Exists && snap.Data["rev"] == "2" {
			break
		}
	}
}

func TestRedisSubscribeChildrenReplaysBacklogAfterReconnect(t *testing.T) {
	srv, s := newTestRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := watchConnStates(s)

	_, err := s.AddChild(ctx, "calls/abc", Document{"candidate": "a"})
	require.NoError(t, err)

	sub, err := s.SubscribeChildren(ctx, "calls/abc")
	require.NoError(t, err)
	first := recvRedisChild(t, sub)
	assert.Equal(t, "a", first.Data["candidate"])

	srv.Close()
	waitConnState(t, states, ConnStateReconnecting)
	require.NoError(t, srv.Restart())

	// The durable list is replayed after the resubscribe; consumers
	// dedupe, so a repeat is safe and a silent drop is not.
	replayed := recvRedisChild(t, sub)
	assert.Equal(t, "a", replayed.Data["candidate"])

	_, err = s.AddChild(ctx, "calls/abc", Document{"candidate": "b"})
	require.NoError(t, err)
	for {
		ev := recvRedisChild(t, sub)
		if ev.Data["candidate"] == "b" {
			break
		}
	}
}

func TestRedisRetryRecoversFromTransientFailure(t *testing.T) {
	srv, s := newTestRedisStore(t)
	ctx := context.Background()

	srv.SetError("LOADING redis is loading the dataset in memory")
	time.AfterFunc(150*time.Millisecond, func() { srv.SetError("") })

	require.NoError(t, s.Put(ctx, "conversations/abc", Document{"rev": "1"}))

	snap, err := s.Get(ctx, "conversations/abc")
	require.NoError(t, err)
	assert.Equal(t, "1", snap.Data["rev"])
}

func TestRedisRetryExhaustionSurfacesTransportError(t *testing.T) {
	srv, s := newTestRedisStore(t)
	srv.Close()

	_, err := s.Get(context.Background(), "conversations/abc")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransport),
		"exhausted retries must surface as a transport error, got %v", err)
}
