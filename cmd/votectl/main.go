package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/openballot/votectl/internal/config"
	"github.com/openballot/votectl/internal/ledger"
	"github.com/openballot/votectl/internal/observability"
	"github.com/openballot/votectl/internal/registry"
	"github.com/openballot/votectl/internal/server"
	"github.com/openballot/votectl/internal/session"
	"github.com/openballot/votectl/internal/transport"
)

func main() {
	observability.InitLogger("votectl")
	configPath := flag.String("config", "cmd/votectl/config.toml", "coordinator config path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load coordinator config")
	}
	log.Info().Str("path", *configPath).Msg("loaded coordinator config")

	reg := registry.New(cfg.MaxControllers)
	peers := make([]transport.UDPPeer, 0, len(cfg.Controllers))
	for _, ctl := range cfg.Controllers {
		if err := reg.Register(ctl.ID); err != nil {
			log.Fatal().Err(err).Str("controller", ctl.ID).Msg("roster registration failed")
		}
		peers = append(peers, transport.UDPPeer{ID: ctl.ID, Addr: ctl.Addr})
	}

	tr, err := transport.NewUDP(cfg.ListenUDP, cfg.MTU, peers, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start transport")
	}
	defer tr.Close()

	coord := session.New(cfg.SessionPolicy(), reg, ledger.New(), tr, log.Logger)
	go func() {
		if err := coord.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("event loop stopped")
		}
	}()

	srv := server.New(cfg.Name, cfg.ControlAddr, cfg.CorsOrigins, coord, reg)
	log.Info().
		Str("control_addr", cfg.ControlAddr).
		Str("listen_udp", cfg.ListenUDP).
		Int("controllers", len(cfg.Controllers)).
		Msg("coordinator started")
	if err := srv.Serve(); err != nil {
		log.Fatal().Err(err).Msg("control server stopped")
	}
}
