package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cfoust/kbsync/pkg/config"
	"github.com/cfoust/kbsync/pkg/diagnostics"
	"github.com/cfoust/kbsync/pkg/engine"
	"github.com/cfoust/kbsync/pkg/scenario"
	"github.com/cfoust/kbsync/pkg/store"

	"github.com/rs/zerolog/log"
)

// setup loads a scenario and wires an engine to its simulated host.
func setup(ctx context.Context, cfg *config.Config, path string) (*engine.Engine, *scenario.Scenario, store.Store, error) {
	script, err := scenario.Load(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load scenario: %w", err)
	}

	preferences, err := store.Open(cfg.StoreSettings())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	h := script.Build()
	e := engine.New(cfg, h, preferences)
	h.OnEcho(func(entityID string, probeID uint64, arrival time.Time) {
		err := e.OnProbeEcho(entityID, probeID, arrival)
		if err != nil {
			log.Debug().Err(err).Msg("echo for disconnected entity")
		}
	})

	err = script.Connect(ctx, e)
	if err != nil {
		e.Shutdown()
		preferences.Close()
		return nil, nil, nil, err
	}

	return e, script, preferences, nil
}

func serveCommand(configs []string, path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	e, script, preferences, err := setup(ctx, cfg, path)
	if err != nil {
		return err
	}
	defer preferences.Close()
	defer e.Shutdown()

	log.Info().Int("players", len(script.Players)).Msg("simulation started")

	go e.Run(ctx)

	errc := make(chan error, 1)
	var server *diagnostics.Server
	if cfg.Diagnostics.Enabled {
		server = diagnostics.NewServer(e)
		go func() {
			errc <- server.Serve(ctx, cfg.Diagnostics.Port)
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	select {
	case err := <-errc:
		log.Printf("failed to serve: %v", err)
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}

	cancel()

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdownCtx)
	}

	return nil
}
