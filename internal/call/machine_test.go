package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/signaling"
	"friendfinder-backend/internal/store"
)

// fakeStream records capture lifecycle
type fakeStream struct {
	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) StopTracks() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}
func (s *fakeStream) SetAudioEnabled(bool) {}
func (s *fakeStream) SetVideoEnabled(bool) {}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeDevice hands out fakeStreams, or fails
type fakeDevice struct {
	err    error
	stream *fakeStream
}

func (d *fakeDevice) Acquire(ctx context.Context, constraints MediaConstraints) (MediaStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.stream == nil {
		d.stream = &fakeStream{}
	}
	return d.stream, nil
}

// fakeTransport emulates a peer connection. AddICECandidate fails when no
// remote description is set, matching real transport behavior, so premature
// application is observable.
type fakeTransport struct {
	mu           sync.Mutex
	localDesc    *domain.SessionDescription
	remoteDesc   *domain.SessionDescription
	rolledBack   bool
	applied      []string
	premature    int
	closed       bool
	candidateFn  func(string)
	stateFn      func(PeerConnState)
	onCreateOffer func() // test hook, runs before the offer is returned
}

func (t *fakeTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	if t.onCreateOffer != nil {
		t.onCreateOffer()
	}
	return domain.SessionDescription{Type: "offer", SDP: "sdp-offer"}, nil
}

func (t *fakeTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "answer", SDP: "sdp-answer"}, nil
}

func (t *fakeTransport) SetLocalDescription(desc domain.SessionDescription) error {
	t.mu.Lock()
	t.localDesc = &desc
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) RollbackLocalDescription() error {
	t.mu.Lock()
	t.localDesc = nil
	t.rolledBack = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) SetRemoteDescription(desc domain.SessionDescription) error {
	t.mu.Lock()
	t.remoteDesc = &desc
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) AddICECandidate(candidate string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remoteDesc == nil {
		t.premature++
		return errors.New("remote description not set")
	}
	t.applied = append(t.applied, candidate)
	return nil
}

func (t *fakeTransport) AddTracks(stream MediaStream) error { return nil }

func (t *fakeTransport) OnICECandidate(fn func(string)) {
	t.mu.Lock()
	t.candidateFn = fn
	t.mu.Unlock()
}

func (t *fakeTransport) OnConnectionStateChange(fn func(PeerConnState)) {
	t.mu.Lock()
	t.stateFn = fn
	t.mu.Unlock()
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) emitCandidate(c string) {
	t.mu.Lock()
	fn := t.candidateFn
	t.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (t *fakeTransport) emitState(s PeerConnState) {
	t.mu.Lock()
	fn := t.stateFn
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (t *fakeTransport) appliedCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.applied))
	copy(out, t.applied)
	return out
}

func (t *fakeTransport) remote() *domain.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteDesc
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) prematureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.premature
}

func waitForState(t *testing.T, m *Machine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		2*time.Second, 5*time.Millisecond, "machine never reached %s (at %s)", want, m.State())
}

func TestMediaFailureEndsCall(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	transport := &fakeTransport{}
	device := &fakeDevice{err: errors.New("permission denied")}

	m := NewMachine("booking-1", Identity{ID: uuid.New(), Name: "Priya"}, channel, device, transport)
	go m.Run(context.Background())

	<-m.Done()
	assert.Equal(t, StateEnded, m.State())
	assert.Equal(t, EndReasonMediaUnavailable, m.EndReason())
	assert.True(t, transport.isClosed())

	snap, err := channel.CurrentSession(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.False(t, snap.Exists, "no session document may survive a failed attempt")
}

func TestCallerPublishesOfferAndAppliesAnswer(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	transport := &fakeTransport{}
	device := &fakeDevice{}
	self := Identity{ID: uuid.New(), Name: "Priya"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMachine("booking-1", self, channel, device, transport)
	go m.Run(ctx)

	waitForState(t, m, StateAwaitingRemote)

	snap, err := channel.CurrentSession(ctx, "booking-1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, self.ID, snap.Session.CallerID)
	assert.Equal(t, domain.CallStatusCalling, snap.Session.Status)

	callee := uuid.New()
	require.NoError(t, channel.PublishAnswer(ctx, "booking-1",
		domain.SessionDescription{Type: "answer", SDP: "their-answer"}, callee))

	waitForState(t, m, StateConnecting)
	require.NotNil(t, transport.remote())
	assert.Equal(t, "their-answer", transport.remote().SDP)

	transport.emitState(PeerConnConnected)
	waitForState(t, m, StateConnected)
	assert.Equal(t, "Connected", m.ConnectionDescription())
}

func TestCalleeAnswersForeignOffer(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	caller := uuid.New()
	require.NoError(t, channel.PublishOffer(context.Background(), "booking-1",
		domain.SessionDescription{Type: "offer", SDP: "their-offer"}, caller, "Aman"))

	transport := &fakeTransport{}
	self := Identity{ID: uuid.New(), Name: "Priya"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMachine("booking-1", self, channel, &fakeDevice{}, transport)
	go m.Run(ctx)

	waitForState(t, m, StateConnecting)
	require.NotNil(t, transport.remote())
	assert.Equal(t, "their-offer", transport.remote().SDP)

	snap, err := channel.CurrentSession(ctx, "booking-1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, domain.CallStatusActive, snap.Session.Status)
	assert.Equal(t, self.ID, snap.Session.AnsweredBy)
}

func TestStaleOwnOfferMeansCallerRole(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	self := Identity{ID: uuid.New(), Name: "Priya"}

	// An earlier attempt by this peer left its offer behind. The machine
	// must clear it and call again rather than answer its own offer.
	require.NoError(t, channel.PublishOffer(context.Background(), "booking-1",
		domain.SessionDescription{Type: "offer", SDP: "stale"}, self.ID, self.Name))

	transport := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMachine("booking-1", self, channel, &fakeDevice{}, transport)
	go m.Run(ctx)

	waitForState(t, m, StateAwaitingRemote)
	snap, err := channel.CurrentSession(ctx, "booking-1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, self.ID, snap.Session.CallerID)
	assert.Equal(t, "sdp-offer", snap.Session.Offer.SDP, "the stale offer must be replaced")
}

func TestGlareLoserDowngradesToCallee(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	rival := uuid.New()
	self := Identity{ID: uuid.New(), Name: "Priya"}

	transport := &fakeTransport{}
	// The rival's offer lands between our role detection and our publish
	transport.onCreateOffer = func() {
		_ = channel.PublishOffer(context.Background(), "booking-1",
			domain.SessionDescription{Type: "offer", SDP: "rival-offer"}, rival, "Aman")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMachine("booking-1", self, channel, &fakeDevice{}, transport)
	go m.Run(ctx)

	waitForState(t, m, StateConnecting)

	transport.mu.Lock()
	rolledBack := transport.rolledBack
	transport.mu.Unlock()
	assert.True(t, rolledBack, "pending local offer must be rolled back on conflict")

	require.NotNil(t, transport.remote())
	assert.Equal(t, "rival-offer", transport.remote().SDP)

	snap, err := channel.CurrentSession(ctx, "booking-1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, rival, snap.Session.CallerID, "the rival's offer must survive")
	assert.Equal(t, self.ID, snap.Session.AnsweredBy)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	self := Identity{ID: uuid.New(), Name: "Priya"}
	peer := uuid.New()

	transport := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMachine("booking-1", self, channel, &fakeDevice{}, transport)
	go m.Run(ctx)
	waitForState(t, m, StateAwaitingRemote)

	// Candidate observed before the answer that produced it
	require.NoError(t, channel.PublishCandidate(ctx, "booking-1", "cand-early", peer))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, transport.appliedCandidates(), "candidate must be buffered, not applied")
	assert.Zero(t, transport.prematureCount(), "candidate must never hit the transport early")

	require.NoError(t, channel.PublishAnswer(ctx, "booking-1",
		domain.SessionDescription{Type: "answer", SDP: "a"}, peer))

	require.Eventually(t, func() bool {
		cands := transport.appliedCandidates()
		return len(cands) == 1 && cands[0] == "cand-early"
	}, 2*time.Second, 5*time.Millisecond, "buffered candidate must be applied after the remote description")
}

func TestSelfAndDuplicateCandidatesIgnored(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	self := Identity{ID: uuid.New(), Name: "Priya"}
	peer := uuid.New()

	require.NoError(t, channel.PublishOffer(context.Background(), "booking-1",
		domain.SessionDescription{Type: "offer", SDP: "o"}, peer, "Aman"))

	transport := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMachine("booking-1", self, channel, &fakeDevice{}, transport)
	go m.Run(ctx)
	waitForState(t, m, StateConnecting)

	require.NoError(t, channel.PublishCandidate(ctx, "booking-1", "own-cand", self.ID))
	require.NoError(t, channel.PublishCandidate(ctx, "booking-1", "peer-cand", peer))
	require.NoError(t, channel.PublishCandidate(ctx, "booking-1", "peer-cand", peer)) // duplicate

	require.Eventually(t, func() bool {
		return len(transport.appliedCandidates()) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"peer-cand"}, transport.appliedCandidates(),
		"self-authored and duplicate candidates must not be applied")
}

func TestTeardownIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	device := &fakeDevice{}
	transport := &fakeTransport{}

	m := NewMachine("booking-1", Identity{ID: uuid.New(), Name: "Priya"}, channel, device, transport)
	go m.Run(context.Background())
	waitForState(t, m, StateAwaitingRemote)

	m.End(EndReasonHangup)
	m.End(EndReasonHangup) // second teardown must be a no-op
	<-m.Done()

	assert.Equal(t, StateEnded, m.State())
	assert.Equal(t, EndReasonHangup, m.EndReason())
	assert.Equal(t, 1, device.stream.stopCount())
	assert.True(t, transport.isClosed())

	snap, err := channel.CurrentSession(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestRemoteHangupEndsCall(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	transport := &fakeTransport{}
	self := Identity{ID: uuid.New(), Name: "Priya"}

	m := NewMachine("booking-1", self, channel, &fakeDevice{}, transport)
	go m.Run(context.Background())
	waitForState(t, m, StateAwaitingRemote)

	// Other peer hangs up: the session document disappears
	require.NoError(t, channel.Teardown(context.Background(), "booking-1"))

	<-m.Done()
	assert.Equal(t, EndReasonRemoteEnded, m.EndReason())
}

func TestScenarioBothPeersOpenSimultaneously(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)

	type peer struct {
		id        Identity
		transport *fakeTransport
		machine   *Machine
	}

	peers := make([]*peer, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := range peers {
		p := &peer{
			id:        Identity{ID: uuid.New(), Name: fmt.Sprintf("peer-%d", i)},
			transport: &fakeTransport{},
		}
		p.machine = NewMachine("booking-1", p.id, channel, &fakeDevice{}, p.transport)
		peers[i] = p
	}

	for _, p := range peers {
		go p.machine.Run(ctx)
	}

	// Exactly one peer ends up caller, the other callee, and both apply a
	// remote description.
	require.Eventually(t, func() bool {
		return peers[0].transport.remote() != nil && peers[1].transport.remote() != nil
	}, 3*time.Second, 10*time.Millisecond, "both peers must complete the handshake")

	snap, err := channel.CurrentSession(ctx, "booking-1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, domain.CallStatusActive, snap.Session.Status)

	callerCount := 0
	for _, p := range peers {
		if snap.Session.CallerID == p.id.ID {
			callerCount++
			assert.Equal(t, "answer", p.transport.remote().Type)
		} else {
			assert.Equal(t, p.id.ID, snap.Session.AnsweredBy)
			assert.Equal(t, "offer", p.transport.remote().Type)
		}
	}
	assert.Equal(t, 1, callerCount, "exactly one peer may hold the caller role")

	// Transport connectivity drives both to Connected
	for _, p := range peers {
		p.transport.emitState(PeerConnConnected)
	}
	waitForState(t, peers[0].machine, StateConnected)
	waitForState(t, peers[1].machine, StateConnected)
}

func TestManagerSingleMachinePerSession(t *testing.T) {
	st := store.NewMemoryStore()
	channel := signaling.NewChannel(st)
	mgr := NewManager(channel, &fakeDevice{}, func() (PeerTransport, error) {
		return &fakeTransport{}, nil
	}, nil)

	self := Identity{ID: uuid.New(), Name: "Priya"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m1, err := mgr.Start(ctx, "booking-1", self)
	require.NoError(t, err)
	m2, err := mgr.Start(ctx, "booking-1", self)
	require.NoError(t, err)
	assert.Same(t, m1, m2, "starting a running session must return the existing machine")

	assert.True(t, mgr.Hangup("booking-1"))
	<-m1.Done()

	require.Eventually(t, func() bool {
		_, ok := mgr.Get("booking-1")
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "ended machines must be evicted")
	assert.False(t, mgr.Hangup("booking-1"), "hangup on an absent call reports false")
}
