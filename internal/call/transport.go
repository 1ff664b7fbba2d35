package call

import (
	"context"

	"friendfinder-backend/internal/domain"
)

// PeerConnState mirrors the connectivity states of the underlying peer
// transport
type PeerConnState string

const (
	PeerConnNew          PeerConnState = "new"
	PeerConnConnecting   PeerConnState = "connecting"
	PeerConnConnected    PeerConnState = "connected"
	PeerConnDisconnected PeerConnState = "disconnected"
	PeerConnFailed       PeerConnState = "failed"
	PeerConnClosed       PeerConnState = "closed"
)

// PeerTransport is the narrow slice of a WebRTC peer connection the
// negotiation machine drives. Callbacks fire on transport goroutines;
// implementations must allow registration before any method call.
type PeerTransport interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	// RollbackLocalDescription discards a pending local offer so the peer
	// can adopt the callee role after losing the offer race.
	RollbackLocalDescription() error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(candidate string) error
	AddTracks(stream MediaStream) error
	OnICECandidate(fn func(candidate string))
	OnConnectionStateChange(fn func(state PeerConnState))
	Close() error
}

// MediaConstraints selects which local tracks to capture
type MediaConstraints struct {
	Audio  bool
	Video  bool
	Width  int
	Height int
}

// MediaStream is a handle on acquired local capture
type MediaStream interface {
	// StopTracks releases the capture devices. Safe to call repeatedly.
	StopTracks()
	// SetAudioEnabled toggles the audio track without releasing it
	SetAudioEnabled(enabled bool)
	// SetVideoEnabled toggles the video track without releasing it
	SetVideoEnabled(enabled bool)
}

// MediaDevice acquires local audio/video capture
type MediaDevice interface {
	Acquire(ctx context.Context, constraints MediaConstraints) (MediaStream, error)
}
