// Package ledger records at most one accepted vote per controller per round
// and folds the records into a final tally once the round closes. Voter
// identity lives only in the in-memory records and is discarded on archive.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrAlreadyVoted   = errors.New("ledger: controller already voted this round")
	ErrWrongRound     = errors.New("ledger: vote does not match the open round")
	ErrRoundNotClosed = errors.New("ledger: tally requires a closed round")
)

// Record is one accepted vote. Immutable once created.
type Record struct {
	ControllerID string
	RoundID      uint32
	Choice       uint8
	Sequence     uint32
	At           time.Time
}

// Ledger holds the vote records for the round currently held by the session.
type Ledger struct {
	mu      sync.RWMutex
	roundID uint32
	open    bool
	closed  bool
	records map[string]Record
}

func New() *Ledger {
	return &Ledger{records: make(map[string]Record)}
}

// OpenRound binds the ledger to a round and starts accepting records.
func (l *Ledger) OpenRound(roundID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roundID = roundID
	l.open = true
	l.closed = false
	clear(l.records)
}

// CloseRound freezes the record set. Further Record calls fail with
// ErrWrongRound and the tally becomes readable.
func (l *Ledger) CloseRound() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	l.closed = true
}

// Reset clears round-scoped records on archive. Tally reads for the archived
// round fail afterwards; results must be read before archiving.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	l.closed = false
	clear(l.records)
}

// Record accepts one vote. The caller has already validated the sequence
// number against the registry; the ledger enforces round scope and the
// one-vote-per-controller invariant.
func (l *Ledger) Record(controllerID string, roundID uint32, choice uint8, seq uint32, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open || roundID != l.roundID {
		return fmt.Errorf("%w: round=%d", ErrWrongRound, roundID)
	}
	if _, ok := l.records[controllerID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyVoted, controllerID)
	}
	l.records[controllerID] = Record{
		ControllerID: controllerID,
		RoundID:      roundID,
		Choice:       choice,
		Sequence:     seq,
		At:           now,
	}
	return nil
}

// HasVoted reports whether controllerID holds a record for the bound round.
func (l *Ledger) HasVoted(controllerID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[controllerID]
	return ok
}

// Count returns the number of accepted votes.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Tally folds the records into per-choice counts. It answers only for the
// bound round and only once that round is closed; ties are reported as-is.
func (l *Ledger) Tally(roundID uint32) (map[uint8]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if roundID != l.roundID {
		return nil, fmt.Errorf("%w: round=%d", ErrWrongRound, roundID)
	}
	if !l.closed {
		return nil, fmt.Errorf("%w: round=%d", ErrRoundNotClosed, roundID)
	}
	counts := make(map[uint8]int)
	for _, rec := range l.records {
		counts[rec.Choice]++
	}
	return counts, nil
}

// Records returns the accepted votes sorted by controller id.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ControllerID < out[j].ControllerID })
	return out
}
