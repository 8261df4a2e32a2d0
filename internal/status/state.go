package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
)

// State represents the bridge session connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	AwaitingScan State = "AWAITING_SCAN"
	Connected    State = "CONNECTED"
)

// validTransitions defines allowed state transitions. Re-entering
// AwaitingScan refreshes the QR code.
var validTransitions = map[State][]State{
	Disconnected: {AwaitingScan, Connected},
	AwaitingScan: {AwaitingScan, Connected, Disconnected},
	Connected:    {Disconnected},
}

// Snapshot is a consistent view of the session state and its attributes.
// QRImage and QRCode are set only while AwaitingScan; Phone only while Connected.
type Snapshot struct {
	State     State
	QRImage   string // data URL of the QR image
	QRCode    string // raw pairing string, when the bridge exposed one
	Phone     string
	LastError string
	Since     time.Time
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu   sync.RWMutex
	snap Snapshot
	bus  *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		snap: Snapshot{State: Disconnected, Since: time.Now()},
		bus:  b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.State
}

// Snapshot returns the current state with its attributes.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// AwaitScan moves to AwaitingScan with the given QR payload.
func (m *Machine) AwaitScan(qrImage, qrCode string) error {
	if qrImage == "" {
		return fmt.Errorf("awaiting scan requires a qr image")
	}
	return m.transition(Snapshot{State: AwaitingScan, QRImage: qrImage, QRCode: qrCode})
}

// Connect moves to Connected with the paired phone identifier.
func (m *Machine) Connect(phone string) error {
	return m.transition(Snapshot{State: Connected, Phone: phone})
}

// Disconnect moves to Disconnected, recording reason as the last error when
// non-empty. It is a no-op when already Disconnected except for the reason.
func (m *Machine) Disconnect(reason string) {
	m.mu.Lock()
	if m.snap.State == Disconnected {
		if reason != "" {
			m.snap.LastError = reason
		}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	_ = m.transition(Snapshot{State: Disconnected, LastError: reason})
}

func (m *Machine) transition(next Snapshot) error {
	m.mu.Lock()
	from := m.snap.State
	if !slices.Contains(validTransitions[from], next.State) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, next.State)
	}
	next.Since = time.Now()
	m.snap = next
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: next.Since,
			Payload: StatusChange{
				From:  from,
				To:    next.State,
				Phone: next.Phone,
				Error: next.LastError,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From  State
	To    State
	Phone string
	Error string
}
