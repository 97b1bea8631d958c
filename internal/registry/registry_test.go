package registry

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestRegisterBounds(t *testing.T) {
	r := New(2)
	if err := r.Register("ctl-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("ctl-a"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := r.Register("ctl-b"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("ctl-c"); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 controllers, got %d", r.Len())
	}
}

func TestDeregisterUnknown(t *testing.T) {
	r := New(4)
	if err := r.Deregister("ctl-unknown"); !errors.Is(err, ErrUnknownController) {
		t.Fatalf("expected ErrUnknownController, got %v", err)
	}
}

func TestSequenceMonotonicAcceptance(t *testing.T) {
	r := New(4)
	if err := r.Register("ctl-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	next, err := r.NextExpectedSequence("ctl-a")
	if err != nil || next != 1 {
		t.Fatalf("expected next=1, got %d err=%v", next, err)
	}
	if !r.AcceptSequence("ctl-a", 1, t0) {
		t.Fatalf("seq 1 should be accepted")
	}
	if r.AcceptSequence("ctl-a", 1, t0) {
		t.Fatalf("replayed seq 1 must be rejected")
	}
	if r.AcceptSequence("ctl-a", 0, t0) {
		t.Fatalf("regressed seq must be rejected")
	}
	if !r.AcceptSequence("ctl-a", 5, t0) {
		t.Fatalf("seq 5 should be accepted")
	}
	if r.AcceptSequence("ctl-a", 3, t0) {
		t.Fatalf("reordered stale seq must be rejected")
	}
	next, _ = r.NextExpectedSequence("ctl-a")
	if next != 6 {
		t.Fatalf("expected next=6, got %d", next)
	}
}

func TestDisconnectKeepsSequenceHistory(t *testing.T) {
	r := New(4)
	if err := r.Register("ctl-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.OnConnect("ctl-a", t0); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !r.AcceptSequence("ctl-a", 3, t0) {
		t.Fatalf("seq 3 should be accepted")
	}
	if err := r.OnDisconnect("ctl-a", t0.Add(time.Second)); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	c, ok := r.Get("ctl-a")
	if !ok || c.State != StateDisconnected {
		t.Fatalf("expected disconnected, got %+v", c)
	}
	if err := r.OnConnect("ctl-a", t0.Add(2*time.Second)); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if r.AcceptSequence("ctl-a", 3, t0) {
		t.Fatalf("history must survive reconnect")
	}
}

func TestVotedSurvivesDisconnectAndResetRound(t *testing.T) {
	r := New(4)
	for _, id := range []string{"ctl-a", "ctl-b"} {
		if err := r.Register(id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		if err := r.OnConnect(id, t0); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
	}
	r.MarkVoted("ctl-a")
	if err := r.OnDisconnect("ctl-a", t0); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	c, _ := r.Get("ctl-a")
	if c.State != StateVoted {
		t.Fatalf("vote participation must survive disconnect, got %v", c.State)
	}
	r.MarkExpired("ctl-b")
	if r.Undecided() != 0 {
		t.Fatalf("expected no undecided controllers, got %d", r.Undecided())
	}

	r.ResetRound()
	a, _ := r.Get("ctl-a")
	b, _ := r.Get("ctl-b")
	if a.State != StateDisconnected {
		t.Fatalf("ctl-a should reset to disconnected, got %v", a.State)
	}
	if b.State != StateConnected {
		t.Fatalf("ctl-b should reset to connected, got %v", b.State)
	}
	if b.LastSeq != 0 {
		t.Fatalf("sequence history must persist across rounds")
	}
}

func TestReconnectDoesNotClearVoted(t *testing.T) {
	r := New(4)
	if err := r.Register("ctl-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.OnConnect("ctl-a", t0); err != nil {
		t.Fatalf("connect: %v", err)
	}
	r.MarkVoted("ctl-a")
	if err := r.OnConnect("ctl-a", t0.Add(time.Second)); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	c, _ := r.Get("ctl-a")
	if c.State != StateVoted {
		t.Fatalf("reconnect must not re-enter a voted controller, got %v", c.State)
	}
}
