package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"friendfinder-backend/internal/domain"
	"friendfinder-backend/internal/signaling"
	apperrors "friendfinder-backend/pkg/errors"
	"friendfinder-backend/pkg/logger"
)

// State is the current position of the negotiation machine
type State string

const (
	StateInitializing   State = "initializing"
	StateAcquiringMedia State = "acquiring_media"
	StateRoleDetection  State = "role_detection"
	StateOffering       State = "offering"
	StateAnswering      State = "answering"
	StateAwaitingRemote State = "awaiting_remote"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateEnded          State = "ended"
)

// EndReason explains why a negotiation reached StateEnded
type EndReason string

const (
	EndReasonNone             EndReason = ""
	EndReasonHangup           EndReason = "hangup"
	EndReasonMediaUnavailable EndReason = "media_unavailable"
	EndReasonTransportFailure EndReason = "transport_failure"
	EndReasonRemoteEnded      EndReason = "remote_ended"
	EndReasonConnectionFailed EndReason = "connection_failed"
)

// Identity is the current user's session identity, passed in explicitly so
// lifecycle callbacks never observe stale ambient state.
type Identity struct {
	ID   uuid.UUID
	Name string
}

const teardownTimeout = 5 * time.Second

// Machine drives one call negotiation: media acquisition, role detection,
// the single-shot offer/answer exchange, candidate plumbing, and teardown.
// All transitions funnel through setState; teardown is idempotent.
type Machine struct {
	sessionID string
	self      Identity
	channel   *signaling.Channel
	device    MediaDevice
	transport PeerTransport

	mu             sync.Mutex
	state          State
	connDesc       string
	endReason      EndReason
	remoteDescSet  bool
	pendingCands   []string
	appliedCands   map[string]struct{}
	stream         MediaStream
	cancel         context.CancelFunc

	endOnce sync.Once
	done    chan struct{}

	// onTransition observes state changes; optional, set before Run
	onTransition func(state State, description string)
}

// NewMachine creates a negotiation machine for one session. The transport
// and device are injected so the machine is testable without real media.
func NewMachine(sessionID string, self Identity, channel *signaling.Channel, device MediaDevice, transport PeerTransport) *Machine {
	return &Machine{
		sessionID:    sessionID,
		self:         self,
		channel:      channel,
		device:       device,
		transport:    transport,
		state:        StateInitializing,
		connDesc:     "Initializing",
		appliedCands: make(map[string]struct{}),
		done:         make(chan struct{}),
	}
}

// OnTransition registers a state observer. Must be called before Run.
func (m *Machine) OnTransition(fn func(state State, description string)) {
	m.onTransition = fn
}

// State returns the current negotiation state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionDescription returns the user-facing connection status string
func (m *Machine) ConnectionDescription() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connDesc
}

// EndReason returns why the machine ended, or EndReasonNone while running
func (m *Machine) EndReason() EndReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endReason
}

// Done closes when the machine reaches StateEnded and teardown finished
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) setState(state State, description string) {
	m.mu.Lock()
	if m.state == StateEnded {
		// Ended is terminal; late callbacks must not resurrect the machine
		m.mu.Unlock()
		return
	}
	m.state = state
	m.connDesc = description
	fn := m.onTransition
	m.mu.Unlock()

	if fn != nil {
		fn(state, description)
	}
}

// Run executes the negotiation until the call ends or ctx is cancelled.
// Cancellation counts as unmount and triggers full teardown.
func (m *Machine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		<-runCtx.Done()
		// Covers both voluntary hangup (cancel via End) and unmount
		// (parent ctx cancelled): teardown runs exactly once either way.
		m.End(EndReasonHangup)
	}()

	m.transport.OnConnectionStateChange(func(state PeerConnState) {
		switch state {
		case PeerConnConnected:
			m.setState(StateConnected, "Connected")
		case PeerConnDisconnected:
			m.setState(StateConnecting, "Disconnected")
		case PeerConnFailed:
			m.endWith(EndReasonConnectionFailed, "Connection failed")
		}
	})

	// 1. Local media
	m.setState(StateAcquiringMedia, "Requesting camera and microphone")
	stream, err := m.device.Acquire(runCtx, MediaConstraints{Audio: true, Video: true, Width: 1280, Height: 720})
	if err != nil {
		logger.Warn("media acquisition failed",
			zap.String("session_id", m.sessionID), zap.Error(err))
		m.endWith(EndReasonMediaUnavailable, "Failed to access camera/microphone")
		return
	}
	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()

	if err := m.transport.AddTracks(stream); err != nil {
		logger.Error("adding local tracks failed",
			zap.String("session_id", m.sessionID), zap.Error(err))
		m.endWith(EndReasonTransportFailure, "Connection failed")
		return
	}

	// Local candidates surface once a local description is set; published
	// continuously for the life of the peer connection.
	m.transport.OnICECandidate(func(candidate string) {
		if err := m.channel.PublishCandidate(runCtx, m.sessionID, candidate, m.self.ID); err != nil {
			logger.Warn("publishing candidate failed",
				zap.String("session_id", m.sessionID), zap.Error(err))
		}
	})

	// Remote candidates may be observed before the answer/offer that
	// triggered them; buffered until the remote description lands.
	candidates, err := m.channel.SubscribeCandidates(runCtx, m.sessionID)
	if err != nil {
		m.endWith(EndReasonTransportFailure, "Signaling unavailable")
		return
	}
	go m.consumeCandidates(runCtx, candidates)

	// 2. Role detection: one read of the session document
	m.setState(StateRoleDetection, "Checking for an existing call")
	snap, err := m.channel.CurrentSession(runCtx, m.sessionID)
	if err != nil {
		m.endWith(EndReasonTransportFailure, "Signaling unavailable")
		return
	}

	if snap.Exists && snap.Session.HasForeignOffer(m.self.ID) {
		m.runAsCallee(runCtx, *snap.Session.Offer)
	} else {
		if snap.Exists {
			// A stale offer authored by self, left behind by a crashed
			// earlier attempt. Clear it so the conditional write can land.
			if err := m.channel.Teardown(runCtx, m.sessionID); err != nil {
				m.endWith(EndReasonTransportFailure, "Signaling unavailable")
				return
			}
		}
		m.runAsCaller(runCtx)
	}
}

// runAsCaller creates and publishes the offer, then waits for the answer.
// Losing the first-writer race downgrades to callee.
func (m *Machine) runAsCaller(ctx context.Context) {
	m.setState(StateOffering, "Creating offer")

	offer, err := m.transport.CreateOffer(ctx)
	if err != nil {
		m.endWith(EndReasonTransportFailure, "Failed to create offer")
		return
	}
	if err := m.transport.SetLocalDescription(offer); err != nil {
		m.endWith(EndReasonTransportFailure, "Failed to create offer")
		return
	}

	err = m.channel.PublishOffer(ctx, m.sessionID, offer, m.self.ID, m.self.Name)
	if apperrors.IsCode(err, apperrors.ErrCodeNegotiationConflict) {
		// Glare: the other peer won the race. Drop our pending offer and
		// take the callee role against theirs.
		logger.Info("lost offer race, downgrading to callee",
			zap.String("session_id", m.sessionID))
		if rerr := m.transport.RollbackLocalDescription(); rerr != nil {
			m.endWith(EndReasonTransportFailure, "Failed to recover from offer conflict")
			return
		}
		snap, gerr := m.channel.CurrentSession(ctx, m.sessionID)
		if gerr != nil || !snap.Exists || !snap.Session.HasForeignOffer(m.self.ID) {
			m.endWith(EndReasonTransportFailure, "Signaling unavailable")
			return
		}
		m.runAsCallee(ctx, *snap.Session.Offer)
		return
	}
	if err != nil {
		m.endWith(EndReasonTransportFailure, "Signaling unavailable")
		return
	}

	m.setState(StateAwaitingRemote, "Waiting for answer")
	m.watchSession(ctx, true)
}

// runAsCallee applies the remote offer and publishes the answer
func (m *Machine) runAsCallee(ctx context.Context, offer domain.SessionDescription) {
	m.setState(StateAnswering, "Answering call")

	if err := m.transport.SetRemoteDescription(offer); err != nil {
		m.endWith(EndReasonTransportFailure, "Failed to apply offer")
		return
	}
	m.markRemoteDescriptionSet()

	answer, err := m.transport.CreateAnswer(ctx)
	if err != nil {
		m.endWith(EndReasonTransportFailure, "Failed to answer call")
		return
	}
	if err := m.transport.SetLocalDescription(answer); err != nil {
		m.endWith(EndReasonTransportFailure, "Failed to answer call")
		return
	}
	if err := m.channel.PublishAnswer(ctx, m.sessionID, answer, m.self.ID); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNegotiationConflict) {
			// Another peer answered first; the call proceeds without us.
			m.endWith(EndReasonRemoteEnded, "Call was answered elsewhere")
			return
		}
		m.endWith(EndReasonTransportFailure, "Signaling unavailable")
		return
	}

	m.setState(StateConnecting, "Connecting")
	m.watchSession(ctx, false)
}

// watchSession follows the session document. The caller applies the first
// answer it observes; both roles end the call when the document disappears
// (remote hangup).
func (m *Machine) watchSession(ctx context.Context, expectAnswer bool) {
	snaps, err := m.channel.SubscribeSession(ctx, m.sessionID)
	if err != nil {
		m.endWith(EndReasonTransportFailure, "Signaling unavailable")
		return
	}

	seenSession := false
	for snap := range snaps {
		if !snap.Exists {
			if seenSession {
				m.endWith(EndReasonRemoteEnded, "Call ended")
				return
			}
			continue
		}
		seenSession = true

		if expectAnswer && snap.Session.Answer != nil && !m.remoteDescriptionSet() {
			if err := m.transport.SetRemoteDescription(*snap.Session.Answer); err != nil {
				m.endWith(EndReasonTransportFailure, "Failed to apply answer")
				return
			}
			m.markRemoteDescriptionSet()
			m.setState(StateConnecting, "Connecting")
		}
	}
}

// consumeCandidates applies foreign candidates as they arrive, buffering
// any that beat the remote description.
func (m *Machine) consumeCandidates(ctx context.Context, candidates <-chan domain.ICECandidate) {
	for cand := range candidates {
		if cand.OwnerID == m.self.ID {
			continue // self-authored
		}

		m.mu.Lock()
		if _, dup := m.appliedCands[cand.Candidate]; dup {
			m.mu.Unlock()
			continue
		}
		m.appliedCands[cand.Candidate] = struct{}{}

		if !m.remoteDescSet {
			m.pendingCands = append(m.pendingCands, cand.Candidate)
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		if err := m.transport.AddICECandidate(cand.Candidate); err != nil {
			// Duplicate or late candidates are harmless
			logger.Debug("applying candidate failed",
				zap.String("session_id", m.sessionID), zap.Error(err))
		}
	}
}

func (m *Machine) remoteDescriptionSet() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteDescSet
}

// markRemoteDescriptionSet flips the gate and flushes buffered candidates
func (m *Machine) markRemoteDescriptionSet() {
	m.mu.Lock()
	m.remoteDescSet = true
	pending := m.pendingCands
	m.pendingCands = nil
	m.mu.Unlock()

	for _, cand := range pending {
		if err := m.transport.AddICECandidate(cand); err != nil {
			logger.Debug("applying buffered candidate failed",
				zap.String("session_id", m.sessionID), zap.Error(err))
		}
	}
}

// End tears the call down: stop capture, close the peer transport, delete
// the signaling session, cancel subscriptions. Idempotent; safe from any
// state and any goroutine.
func (m *Machine) End(reason EndReason) {
	m.endOnce.Do(func() {
		m.mu.Lock()
		m.state = StateEnded
		if m.endReason == EndReasonNone {
			m.endReason = reason
			m.connDesc = "Call ended"
		}
		desc := m.connDesc
		stream := m.stream
		cancel := m.cancel
		fn := m.onTransition
		m.mu.Unlock()

		if stream != nil {
			stream.StopTracks()
		}
		if err := m.transport.Close(); err != nil {
			logger.Debug("closing peer transport", zap.String("session_id", m.sessionID), zap.Error(err))
		}

		// The session delete gets its own context: teardown must proceed
		// even when the run context is already cancelled.
		ctx, cancelTeardown := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancelTeardown()
		if err := m.channel.Teardown(ctx, m.sessionID); err != nil {
			logger.Warn("signaling teardown failed",
				zap.String("session_id", m.sessionID), zap.Error(err))
		}

		if cancel != nil {
			cancel()
		}
		if fn != nil {
			fn(StateEnded, desc)
		}
		close(m.done)
	})
}

func (m *Machine) endWith(reason EndReason, description string) {
	m.mu.Lock()
	if m.endReason == EndReasonNone {
		m.endReason = reason
		m.connDesc = description
	}
	m.mu.Unlock()
	m.End(reason)
}
