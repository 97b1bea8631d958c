// simctl runs one vote round end to end over the in-memory transport with
// injected link faults, standing in for a rack of real controllers.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openballot/votectl/internal/ledger"
	"github.com/openballot/votectl/internal/observability"
	"github.com/openballot/votectl/internal/protocol"
	"github.com/openballot/votectl/internal/registry"
	"github.com/openballot/votectl/internal/session"
	"github.com/openballot/votectl/internal/transport"
)

func main() {
	observability.InitLogger("simctl")
	configPath := flag.String("config", "cmd/simctl/config.toml", "simulator config path")
	flag.Parse()

	cfg, err := loadSimConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load sim config")
	}
	log.Info().
		Int("controllers", cfg.Controllers).
		Float64("drop_rate", cfg.DropRate).
		Float64("duplicate_rate", cfg.DuplicateRate).
		Int64("seed", cfg.Seed).
		Msg("simulation configured")

	lb := transport.NewLoopback(cfg.MTU, transport.Faults{
		DropRate:      cfg.DropRate,
		DuplicateRate: cfg.DuplicateRate,
		Rand:          rand.New(rand.NewSource(cfg.Seed)),
	})

	reg := registry.New(cfg.Controllers)
	policy := session.DefaultConfig()
	policy.TickInterval = 50 * time.Millisecond
	policy.Retry.InitialDelay = 200 * time.Millisecond
	policy.Retry.MaxDelay = time.Second
	coord := session.New(policy, reg, ledger.New(), lb, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("event loop stopped")
		}
	}()

	for i := 0; i < cfg.Controllers; i++ {
		id := fmt.Sprintf("ctl-%d", i+1)
		peer := lb.Connect(id)
		go runController(peer, cfg, int64(i))
	}

	// Let the connect events land before opening the round.
	time.Sleep(200 * time.Millisecond)

	roundID, err := coord.StartRound([]byte(cfg.Ballot), cfg.Deadline, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open round")
	}
	log.Info().Uint32("round", roundID).Str("ballot", cfg.Ballot).Msg("round opened")

	waitClosed(coord, cfg.Deadline)

	counts, err := coord.Tally(roundID)
	if err != nil {
		log.Fatal().Err(err).Msg("tally unavailable")
	}
	snap := coord.Status()
	for choice, n := range counts {
		log.Info().Uint8("choice", choice).Int("votes", n).Msg("tally")
	}
	log.Info().
		Str("trigger", snap.Round.CloseTrigger).
		Int("votes", snap.Votes).
		Int("expired", snap.Expired).
		Msg("round complete")

	if err := coord.Archive(); err != nil {
		log.Error().Err(err).Msg("archive failed")
	}
}

// runController mimics one battery-powered voting box: it answers the first
// prompt of a round with a fresh sequence number and answers retransmitted
// prompts by replaying the same vote.
func runController(peer *transport.Peer, cfg simConfig, ordinal int64) {
	rng := rand.New(rand.NewSource(cfg.Seed + 100*ordinal))
	choice := uint8(rng.Intn(cfg.Choices))

	var seq uint32
	var votedRound uint32
	var votedSeq uint32

	for frame := range peer.Recv() {
		msg, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		switch msg.Kind {
		case protocol.KindPrompt:
			if votedRound != msg.RoundID {
				seq++
				votedRound = msg.RoundID
				votedSeq = seq
			}
			// Simulate a human pause before the button press.
			time.Sleep(time.Duration(rng.Intn(300)) * time.Millisecond)
			vote, err := protocol.Encode(protocol.Vote(msg.RoundID, votedSeq, choice), cfg.MTU)
			if err != nil {
				continue
			}
			_ = peer.Send(vote)
		case protocol.KindClose:
			log.Debug().Str("controller", peer.ID).Uint32("round", msg.RoundID).Msg("round closed")
		}
	}
}

func waitClosed(coord *session.Coordinator, deadline time.Duration) {
	limit := 30 * time.Second
	if deadline > 0 {
		limit = deadline + 15*time.Second
	}
	expire := time.Now().Add(limit)
	for time.Now().Before(expire) {
		if coord.Status().State == session.StateClosed {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Warn().Msg("round did not close within the expected window")
}
