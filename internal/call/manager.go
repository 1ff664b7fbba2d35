package call

import (
	"context"
	"fmt"
	"sync"

	"friendfinder-backend/internal/signaling"
	"friendfinder-backend/pkg/metrics"
)

// TransportFactory builds a fresh peer transport per negotiation attempt
type TransportFactory func() (PeerTransport, error)

// Manager owns at most one negotiation machine per session and exposes
// call state to the surface layer.
type Manager struct {
	channel   *signaling.Channel
	device    MediaDevice
	transport TransportFactory
	metrics   *metrics.Metrics

	mu       sync.Mutex
	machines map[string]*Machine
}

// NewManager creates a call manager. metrics may be nil.
func NewManager(channel *signaling.Channel, device MediaDevice, transport TransportFactory, m *metrics.Metrics) *Manager {
	return &Manager{
		channel:   channel,
		device:    device,
		transport: transport,
		metrics:   m,
		machines:  make(map[string]*Machine),
	}
}

// Start begins a negotiation for the session. Starting an already running
// session returns the existing machine.
func (mg *Manager) Start(ctx context.Context, sessionID string, self Identity) (*Machine, error) {
	mg.mu.Lock()
	if existing, ok := mg.machines[sessionID]; ok {
		mg.mu.Unlock()
		return existing, nil
	}

	transport, err := mg.transport()
	if err != nil {
		mg.mu.Unlock()
		return nil, fmt.Errorf("create peer transport: %w", err)
	}

	machine := NewMachine(sessionID, self, mg.channel, mg.device, transport)
	mg.machines[sessionID] = machine
	mg.mu.Unlock()

	if mg.metrics != nil {
		mg.metrics.CallStarted()
	}

	go machine.Run(ctx)
	go func() {
		<-machine.Done()
		mg.mu.Lock()
		delete(mg.machines, sessionID)
		mg.mu.Unlock()
		if mg.metrics != nil {
			mg.metrics.CallEnded(string(machine.EndReason()))
		}
	}()

	return machine, nil
}

// Get returns the running machine for a session, if any
func (mg *Manager) Get(sessionID string) (*Machine, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	machine, ok := mg.machines[sessionID]
	return machine, ok
}

// Hangup ends the session's call if one is running. Returns false when no
// call was active; hanging up an absent call is not an error.
func (mg *Manager) Hangup(sessionID string) bool {
	mg.mu.Lock()
	machine, ok := mg.machines[sessionID]
	mg.mu.Unlock()
	if !ok {
		return false
	}
	machine.End(EndReasonHangup)
	return true
}

// Shutdown hangs up every running call and waits for the machines to
// finish tearing down, or until the context expires.
func (mg *Manager) Shutdown(ctx context.Context) {
	mg.mu.Lock()
	machines := make([]*Machine, 0, len(mg.machines))
	for _, machine := range mg.machines {
		machines = append(machines, machine)
	}
	mg.mu.Unlock()

	for _, machine := range machines {
		machine.End(EndReasonHangup)
	}
	for _, machine := range machines {
		select {
		case <-machine.Done():
		case <-ctx.Done():
			return
		}
	}
}

// ActiveSessions lists sessions with a running negotiation
func (mg *Manager) ActiveSessions() []string {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]string, 0, len(mg.machines))
	for id := range mg.machines {
		out = append(out, id)
	}
	return out
}
