// Package registry tracks the controllers known to the coordinator: their
// connectivity, per-round participation, and the last sequence number
// accepted from each. Sequence history survives disconnects and round
// archival; only explicit deregistration discards it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrAlreadyRegistered = errors.New("registry: controller already registered")
	ErrFull              = errors.New("registry: controller limit reached")
	ErrUnknownController = errors.New("registry: unknown controller")
)

// State is one controller's participation state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateVoted
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateVoted:
		return "voted"
	case StateExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Controller is one registered voting device.
type Controller struct {
	ID       string
	State    State
	LastSeq  uint32
	LastSeen time.Time

	// linked tracks physical connectivity independently of round
	// participation, so Voted/Expired reset correctly on archive.
	linked bool
}

// Registry is the bounded controller table. Safe for use from the event loop
// and the control surface.
type Registry struct {
	mu          sync.RWMutex
	max         int
	controllers map[string]*Controller
}

// New creates a registry bounded at max controllers.
func New(max int) *Registry {
	return &Registry{
		max:         max,
		controllers: make(map[string]*Controller, max),
	}
}

// Register adds a controller identity. Connectivity starts Disconnected and
// the sequence counter starts at zero.
func (r *Registry) Register(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownController)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.controllers[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	if r.max > 0 && len(r.controllers) >= r.max {
		return fmt.Errorf("%w: max=%d", ErrFull, r.max)
	}
	r.controllers[id] = &Controller{ID: id, State: StateDisconnected}
	return nil
}

// Deregister removes a controller and its sequence history.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.controllers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownController, id)
	}
	delete(r.controllers, id)
	return nil
}

// OnConnect marks a controller reachable. Voted and Expired stand: a
// reconnect inside a round must not re-enter the controller into it.
func (r *Registry) OnConnect(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownController, id)
	}
	c.linked = true
	c.LastSeen = now
	if c.State == StateDisconnected {
		c.State = StateConnected
	}
	return nil
}

// OnDisconnect marks a controller unreachable without touching its sequence
// counter or a recorded vote.
func (r *Registry) OnDisconnect(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownController, id)
	}
	c.linked = false
	c.LastSeen = now
	if c.State == StateConnected {
		c.State = StateDisconnected
	}
	return nil
}

// NextExpectedSequence returns the lowest sequence number the registry would
// still accept from id.
func (r *Registry) NextExpectedSequence(id string) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownController, id)
	}
	return c.LastSeq + 1, nil
}

// AcceptSequence advances the stored counter only when seq is strictly
// greater than it. Ties and regressions are retransmissions or replays and
// are rejected; this is the sole replay defense.
func (r *Registry) AcceptSequence(id string, seq uint32, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[id]
	if !ok || seq <= c.LastSeq {
		return false
	}
	c.LastSeq = seq
	c.LastSeen = now
	return true
}

// MarkVoted records round participation for id.
func (r *Registry) MarkVoted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[id]; ok {
		c.State = StateVoted
	}
}

// MarkExpired removes id from active participation for the current round.
func (r *Registry) MarkExpired(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[id]; ok {
		c.State = StateExpired
	}
}

// ResetRound clears per-round participation, restoring each controller to
// its connectivity state. Sequence counters persist.
func (r *Registry) ResetRound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.controllers {
		if c.linked {
			c.State = StateConnected
		} else {
			c.State = StateDisconnected
		}
	}
}

// Get returns a snapshot of one controller.
func (r *Registry) Get(id string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[id]
	if !ok {
		return Controller{}, false
	}
	return *c, true
}

// List returns controller snapshots sorted by id.
func (r *Registry) List() []Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

// Count returns the number of controllers in state s.
func (r *Registry) Count(s State) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.controllers {
		if c.State == s {
			n++
		}
	}
	return n
}

// Undecided reports whether any controller is still Connected, i.e. neither
// voted nor expired while reachable. Disconnected controllers do not hold a
// round open; their pending prompts either expire or complete on reconnect.
func (r *Registry) Undecided() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.controllers {
		if c.State == StateConnected {
			n++
		}
	}
	return n
}
