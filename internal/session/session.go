package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openballot/votectl/internal/ledger"
	"github.com/openballot/votectl/internal/observability"
	"github.com/openballot/votectl/internal/protocol"
	"github.com/openballot/votectl/internal/registry"
	"github.com/openballot/votectl/internal/transport"
)

var (
	ErrAlreadyRunning = errors.New("session: a round is already running")
	ErrNotOpen        = errors.New("session: no open round")
	ErrNotClosed      = errors.New("session: round is not closed")
)

// State is the round lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Close triggers reported in RoundInfo and metrics.
const (
	CloseTriggerAllVoted = "all_voted"
	CloseTriggerDeadline = "deadline"
	CloseTriggerForce    = "force"
)

// RoundInfo is a read-only snapshot of one round.
type RoundInfo struct {
	ID           uint32
	Ballot       []byte
	OpenedAt     time.Time
	Deadline     time.Time
	ClosedAt     time.Time
	State        State
	CloseTrigger string
}

// Snapshot is the control-surface view of the coordinator.
type Snapshot struct {
	State          State
	Round          *RoundInfo
	PendingPrompts int
	Votes          int
	Expired        int
}

// Coordinator is the session state machine. All mutation funnels through
// its methods under one mutex, so transport events, ticks, and operator
// calls interleave as a single logical thread.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config

	reg     *registry.Registry
	led     *ledger.Ledger
	tr      transport.Transport
	prompts *PromptQueue
	rng     *rand.Rand
	logger  zerolog.Logger

	state       State
	round       *RoundInfo
	promptFrame []byte
	nextRoundID uint32
}

// New wires a coordinator over its collaborators. The round counter starts
// at 1 and is unique for the coordinator's lifetime.
func New(cfg Config, reg *registry.Registry, led *ledger.Ledger, tr transport.Transport, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		reg:         reg,
		led:         led,
		tr:          tr,
		prompts:     NewPromptQueue(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
		state:       StateIdle,
		nextRoundID: 1,
	}
}

// StartRound opens a new round with the given ballot. A zero deadline means
// the round has no deadline and closes only on all-voted or operator action.
func (c *Coordinator) StartRound(ballot []byte, deadline time.Duration, now time.Time) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return 0, fmt.Errorf("%w: state=%s", ErrAlreadyRunning, c.state)
	}

	roundID := c.nextRoundID
	frame, err := protocol.Encode(protocol.Prompt(roundID, ballot), c.tr.MaxFrameSize())
	if err != nil {
		return 0, fmt.Errorf("session: ballot rejected: %w", err)
	}
	c.nextRoundID++

	round := &RoundInfo{
		ID:       roundID,
		Ballot:   ballot,
		OpenedAt: now,
		State:    StateOpen,
	}
	if deadline > 0 {
		round.Deadline = now.Add(deadline)
	}
	c.round = round
	c.promptFrame = frame
	c.state = StateOpen
	c.led.OpenRound(roundID)

	prompted := 0
	for _, ctl := range c.reg.List() {
		if ctl.State != registry.StateConnected {
			continue
		}
		c.sendPrompt(ctl.ID)
		c.prompts.Schedule(ctl.ID, roundID, now, c.cfg.Retry.InitialDelay)
		prompted++
	}

	c.logger.Info().
		Uint32("round", roundID).
		Int("prompted", prompted).
		Time("deadline", round.Deadline).
		Msg("round opened")
	return roundID, nil
}

// ForceClose closes the round immediately, discarding outstanding prompts.
func (c *Coordinator) ForceClose(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen && c.state != StateClosing {
		return fmt.Errorf("%w: state=%s", ErrNotOpen, c.state)
	}
	c.close(now, CloseTriggerForce)
	return nil
}

// Archive returns the coordinator to Idle, clearing round-scoped state.
// Controller identities and sequence counters persist.
func (c *Coordinator) Archive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return fmt.Errorf("%w: state=%s", ErrNotClosed, c.state)
	}
	roundID := c.round.ID
	c.prompts.Clear()
	c.led.Reset()
	c.reg.ResetRound()
	c.round = nil
	c.promptFrame = nil
	c.state = StateIdle
	c.logger.Info().Uint32("round", roundID).Msg("round archived")
	return nil
}

// Tally reads the final per-choice counts for a closed round.
func (c *Coordinator) Tally(roundID uint32) (map[uint8]int, error) {
	return c.led.Tally(roundID)
}

// Status returns a snapshot for the control surface.
func (c *Coordinator) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:          c.state,
		PendingPrompts: c.prompts.Len(),
		Votes:          c.led.Count(),
		Expired:        c.reg.Count(registry.StateExpired),
	}
	if c.round != nil {
		round := *c.round
		snap.Round = &round
	}
	return snap
}

// HandleEvent processes one transport event.
func (c *Coordinator) HandleEvent(ev transport.Event, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case transport.EventConnect:
		c.handleConnect(ev.ControllerID, now)
	case transport.EventDisconnect:
		c.handleDisconnect(ev.ControllerID, now)
	case transport.EventFrame:
		c.handleFrame(ev.ControllerID, ev.Frame, now)
	}
}

// Tick drives retry expiry and deadline closure. Call it periodically with
// the current (or simulated) time.
func (c *Coordinator) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return
	}
	if !c.round.Deadline.IsZero() && !now.Before(c.round.Deadline) {
		c.close(now, CloseTriggerDeadline)
		return
	}
	for _, p := range c.prompts.Due(now) {
		if p.Attempts >= c.cfg.Retry.MaxAttempts {
			c.expire(p.ControllerID)
			continue
		}
		c.sendPrompt(p.ControllerID)
		next := c.cfg.Retry.Delay(p.Attempts+1, c.rng)
		c.prompts.MarkAttempt(p.ControllerID, now, next)
		observability.RecordPromptRetry()
	}
	c.maybeClose(now)
}

// Run consumes transport events and drives ticks until ctx is cancelled or
// the transport closes.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	events := c.tr.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return transport.ErrClosed
			}
			c.HandleEvent(ev, time.Now())
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

func (c *Coordinator) handleConnect(id string, now time.Time) {
	if err := c.reg.OnConnect(id, now); err != nil {
		// First contact creates the controller, subject to the
		// registry bound.
		if regErr := c.reg.Register(id); regErr != nil {
			c.logger.Warn().Err(regErr).Str("controller", id).Msg("connect rejected")
			return
		}
		if err := c.reg.OnConnect(id, now); err != nil {
			c.logger.Warn().Err(err).Str("controller", id).Msg("connect failed")
			return
		}
		c.logger.Info().Str("controller", id).Msg("controller registered")
	}
	c.logger.Debug().Str("controller", id).Msg("controller connected")

	// Late join: prompt immediately if a round is open and the controller
	// is neither voted nor expired. A reconnect keeps its existing pending
	// prompt and budget.
	if c.state != StateOpen {
		return
	}
	ctl, ok := c.reg.Get(id)
	if !ok || ctl.State != registry.StateConnected || c.prompts.Has(id) {
		return
	}
	c.sendPrompt(id)
	c.prompts.Schedule(id, c.round.ID, now, c.cfg.Retry.InitialDelay)
}

func (c *Coordinator) handleDisconnect(id string, now time.Time) {
	if err := c.reg.OnDisconnect(id, now); err != nil {
		c.logger.Debug().Err(err).Str("controller", id).Msg("disconnect for unknown controller")
		return
	}
	// The pending prompt stays: retries keep running against the failing
	// link so a quick reconnect can still vote before the budget runs out.
	c.logger.Debug().Str("controller", id).Msg("controller disconnected")
	if c.state == StateOpen {
		c.maybeClose(now)
	}
}

func (c *Coordinator) handleFrame(id string, frame []byte, now time.Time) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		observability.RecordFrameDropped("malformed")
		c.logger.Warn().Err(err).Str("controller", id).Msg("malformed frame dropped")
		return
	}
	observability.RecordFrameDecoded(msg.Kind.String())

	switch msg.Kind {
	case protocol.KindVote:
		c.handleVote(id, msg, now)
	case protocol.KindUnknown:
		observability.RecordFrameDropped("unknown_kind")
		c.logger.Debug().Str("controller", id).Msg("unknown frame kind dropped")
	default:
		observability.RecordFrameDropped("unexpected_kind")
		c.logger.Debug().
			Str("controller", id).
			Str("kind", msg.Kind.String()).
			Msg("unexpected frame kind dropped")
	}
}

// handleVote validates and records one vote frame. Every rejection is a
// silent drop: a legitimate retransmit must never surface an error to the
// voter or corrupt the tally.
func (c *Coordinator) handleVote(id string, msg protocol.Message, now time.Time) {
	if c.state != StateOpen || c.round == nil || msg.RoundID != c.round.ID {
		observability.RecordFrameDropped("wrong_round")
		c.logger.Debug().
			Str("controller", id).
			Uint32("round", msg.RoundID).
			Msg("vote for wrong round dropped")
		return
	}
	if _, ok := c.reg.Get(id); !ok {
		observability.RecordFrameDropped("unregistered")
		c.logger.Warn().Str("controller", id).Msg("vote from unregistered controller dropped")
		return
	}
	if c.led.HasVoted(id) {
		observability.RecordFrameDropped("duplicate")
		c.logger.Debug().Str("controller", id).Msg("duplicate vote dropped")
		return
	}
	if !c.reg.AcceptSequence(id, msg.Sequence, now) {
		observability.RecordFrameDropped("replay")
		c.logger.Debug().
			Str("controller", id).
			Uint32("seq", msg.Sequence).
			Msg("replayed sequence dropped")
		return
	}
	if err := c.led.Record(id, msg.RoundID, msg.Choice, msg.Sequence, now); err != nil {
		observability.RecordFrameDropped("ledger")
		c.logger.Warn().Err(err).Str("controller", id).Msg("vote rejected by ledger")
		return
	}

	c.reg.MarkVoted(id)
	c.prompts.Cancel(id)
	observability.RecordVoteAccepted()
	c.sendFrame(id, protocol.Ack(msg.RoundID, msg.Sequence))
	c.logger.Info().
		Str("controller", id).
		Uint32("round", msg.RoundID).
		Uint32("seq", msg.Sequence).
		Msg("vote accepted")
	c.maybeClose(now)
}

// expire removes a controller from the round after its retry budget is
// exhausted; it counts as non-voting in the tally.
func (c *Coordinator) expire(id string) {
	c.prompts.Cancel(id)
	c.reg.MarkExpired(id)
	observability.RecordControllerExpired()
	c.logger.Warn().Str("controller", id).Msg("controller expired, retry budget exhausted")
}

// maybeClose transitions to Closing once every connected controller has
// voted or expired. An empty round (no votes, nothing expired) stays open
// for its deadline or operator action.
func (c *Coordinator) maybeClose(now time.Time) {
	if c.state != StateOpen || c.reg.Undecided() > 0 {
		return
	}
	if c.led.Count() == 0 && c.reg.Count(registry.StateExpired) == 0 {
		return
	}
	c.close(now, CloseTriggerAllVoted)
}

// close runs the Closing broadcast and lands in Closed. The Close frame is
// best-effort and never retried.
func (c *Coordinator) close(now time.Time, trigger string) {
	c.state = StateClosing
	c.round.State = StateClosing
	for _, ctl := range c.reg.List() {
		c.sendFrame(ctl.ID, protocol.Close(c.round.ID))
	}
	c.prompts.Clear()
	c.led.CloseRound()
	c.state = StateClosed
	c.round.State = StateClosed
	c.round.ClosedAt = now
	c.round.CloseTrigger = trigger
	observability.RecordRoundClosed(trigger, now.Sub(c.round.OpenedAt))
	c.logger.Info().
		Uint32("round", c.round.ID).
		Str("trigger", trigger).
		Int("votes", c.led.Count()).
		Msg("round closed")
}

func (c *Coordinator) sendPrompt(id string) {
	if err := c.tr.Send(id, c.promptFrame); err != nil {
		c.logger.Warn().Err(err).Str("controller", id).Msg("prompt send failed")
	}
}

func (c *Coordinator) sendFrame(id string, msg protocol.Message) {
	frame, err := protocol.Encode(msg, c.tr.MaxFrameSize())
	if err != nil {
		c.logger.Error().Err(err).Str("kind", msg.Kind.String()).Msg("frame encode failed")
		return
	}
	if err := c.tr.Send(id, frame); err != nil {
		c.logger.Debug().Err(err).
			Str("controller", id).
			Str("kind", msg.Kind.String()).
			Msg("send failed")
	}
}
