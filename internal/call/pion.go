package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"friendfinder-backend/internal/domain"
)

// DefaultSTUNServers are free public STUN servers used when no TURN/STUN
// configuration is provided.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// PionTransport implements PeerTransport on a pion/webrtc peer connection.
// Used for headless peers (diagnostics, echo calls); browser peers bring
// their own WebRTC stack and only touch the signaling documents.
type PionTransport struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	onCandidate func(string)
	onState     func(PeerConnState)
}

// NewPionTransport creates a peer connection with the given STUN/TURN URLs
func NewPionTransport(iceServers []string) (*PionTransport, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultSTUNServers
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	t := &PionTransport{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering finished
		}
		t.mu.Lock()
		fn := t.onCandidate
		t.mu.Unlock()
		if fn == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		fn(string(payload))
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()
		if fn != nil {
			fn(mapPeerConnState(s))
		}
	})

	return t, nil
}

// CreateOffer creates a local offer description
func (t *PionTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

// CreateAnswer creates a local answer description
func (t *PionTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// SetLocalDescription applies a local description
func (t *PionTransport) SetLocalDescription(desc domain.SessionDescription) error {
	return t.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

// RollbackLocalDescription discards the pending local offer
func (t *PionTransport) RollbackLocalDescription() error {
	return t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

// SetRemoteDescription applies the remote description
func (t *PionTransport) SetRemoteDescription(desc domain.SessionDescription) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

// AddICECandidate applies a remote candidate. The blob is the JSON form of
// an ICECandidateInit; a bare candidate line is accepted as a fallback.
func (t *PionTransport) AddICECandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		init = webrtc.ICECandidateInit{Candidate: candidate}
	}
	return t.pc.AddICECandidate(init)
}

// AddTracks attaches the stream's local tracks to the peer connection
func (t *PionTransport) AddTracks(stream MediaStream) error {
	ps, ok := stream.(*PionMediaStream)
	if !ok {
		return fmt.Errorf("pion transport requires a pion media stream, got %T", stream)
	}
	for _, track := range ps.tracks() {
		if _, err := t.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	return nil
}

// OnICECandidate registers the local candidate callback
func (t *PionTransport) OnICECandidate(fn func(candidate string)) {
	t.mu.Lock()
	t.onCandidate = fn
	t.mu.Unlock()
}

// OnConnectionStateChange registers the connectivity callback
func (t *PionTransport) OnConnectionStateChange(fn func(state PeerConnState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// Close closes the peer connection
func (t *PionTransport) Close() error {
	return t.pc.Close()
}

func mapPeerConnState(s webrtc.PeerConnectionState) PeerConnState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return PeerConnNew
	case webrtc.PeerConnectionStateConnecting:
		return PeerConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return PeerConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return PeerConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return PeerConnFailed
	default:
		return PeerConnClosed
	}
}

// PionMediaStream holds static local tracks for a headless peer
type PionMediaStream struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	mu           sync.Mutex
	audioEnabled bool
	videoEnabled bool
	stopped      bool
}

// PionMediaDevice fabricates local tracks without real capture hardware
type PionMediaDevice struct{}

// Acquire creates audio and video tracks per the constraints
func (PionMediaDevice) Acquire(ctx context.Context, constraints MediaConstraints) (MediaStream, error) {
	stream := &PionMediaStream{audioEnabled: true, videoEnabled: true}

	if constraints.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "friendfinder")
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		stream.audio = audio
	}
	if constraints.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "friendfinder")
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
		stream.video = video
	}
	return stream, nil
}

func (s *PionMediaStream) tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

// StopTracks releases the tracks. Safe to call repeatedly.
func (s *PionMediaStream) StopTracks() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// SetAudioEnabled toggles the audio track
func (s *PionMediaStream) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	s.audioEnabled = enabled
	s.mu.Unlock()
}

// SetVideoEnabled toggles the video track
func (s *PionMediaStream) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoEnabled = enabled
	s.mu.Unlock()
}
