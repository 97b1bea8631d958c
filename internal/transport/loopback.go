package transport

import (
	"fmt"
	"math/rand"
	"sync"
)

// Faults configures the unreliability the loopback injects in both
// directions. Rates are probabilities in [0,1); Rand must be set when any
// rate is nonzero so runs stay reproducible under a fixed seed.
type Faults struct {
	DropRate      float64
	DuplicateRate float64
	Rand          *rand.Rand
}

func (f Faults) drop() bool {
	return f.Rand != nil && f.DropRate > 0 && f.Rand.Float64() < f.DropRate
}

func (f Faults) duplicate() bool {
	return f.Rand != nil && f.DuplicateRate > 0 && f.Rand.Float64() < f.DuplicateRate
}

// Loopback is the in-memory transport used by tests and the simulator. Each
// connected peer gets a bounded inbox; overflow loses frames, which is just
// another link fault.
type Loopback struct {
	mtu    int
	faults Faults

	mu     sync.Mutex
	peers  map[string]*Peer
	events chan Event
	closed bool
}

// Peer is the controller-side handle of one loopback link.
type Peer struct {
	ID string

	lb    *Loopback
	inbox chan []byte
}

// NewLoopback creates an in-memory transport with the given MTU.
func NewLoopback(mtu int, faults Faults) *Loopback {
	return &Loopback{
		mtu:    mtu,
		faults: faults,
		peers:  make(map[string]*Peer),
		events: make(chan Event, 256),
	}
}

func (l *Loopback) MaxFrameSize() int { return l.mtu }

func (l *Loopback) Events() <-chan Event { return l.events }

// Connect attaches a peer and surfaces the connect event.
func (l *Loopback) Connect(id string) *Peer {
	l.mu.Lock()
	p, ok := l.peers[id]
	if !ok {
		p = &Peer{ID: id, lb: l, inbox: make(chan []byte, 64)}
	}
	l.peers[id] = p
	l.mu.Unlock()
	l.emit(Event{Kind: EventConnect, ControllerID: id})
	return p
}

// Disconnect detaches a peer and surfaces the disconnect event. The peer
// handle survives for reconnects.
func (l *Loopback) Disconnect(id string) {
	l.mu.Lock()
	_, ok := l.peers[id]
	delete(l.peers, id)
	l.mu.Unlock()
	if ok {
		l.emit(Event{Kind: EventDisconnect, ControllerID: id})
	}
}

// Reconnect reattaches an existing peer handle.
func (l *Loopback) Reconnect(p *Peer) {
	l.mu.Lock()
	l.peers[p.ID] = p
	l.mu.Unlock()
	l.emit(Event{Kind: EventConnect, ControllerID: p.ID})
}

// Send delivers one frame coordinator -> controller, subject to faults.
func (l *Loopback) Send(controllerID string, frame []byte) error {
	if len(frame) > l.mtu {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), l.mtu)
	}
	l.mu.Lock()
	p, ok := l.peers[controllerID]
	closed := l.closed
	deliveries := l.rollDeliveries()
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, controllerID)
	}
	for i := 0; i < deliveries; i++ {
		select {
		case p.inbox <- clone(frame):
		default:
		}
	}
	return nil
}

// rollDeliveries applies the duplicate and drop faults to one logical send.
// Caller holds l.mu; the fault RNG is shared across both directions.
func (l *Loopback) rollDeliveries() int {
	n := 1
	if l.faults.duplicate() {
		n = 2
	}
	out := 0
	for i := 0; i < n; i++ {
		if !l.faults.drop() {
			out++
		}
	}
	return out
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

func (l *Loopback) emit(ev Event) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	select {
	case l.events <- ev:
	default:
	}
}

// Recv is the controller-side inbox.
func (p *Peer) Recv() <-chan []byte { return p.inbox }

// Send delivers one frame controller -> coordinator, subject to faults.
func (p *Peer) Send(frame []byte) error {
	if len(frame) > p.lb.mtu {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), p.lb.mtu)
	}
	p.lb.mu.Lock()
	_, linked := p.lb.peers[p.ID]
	deliveries := p.lb.rollDeliveries()
	p.lb.mu.Unlock()
	if !linked {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, p.ID)
	}
	for i := 0; i < deliveries; i++ {
		p.lb.emit(Event{Kind: EventFrame, ControllerID: p.ID, Frame: clone(frame)})
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
