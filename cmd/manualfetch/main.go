// Command manualfetch runs exactly one ingestion cycle against the
// currently-live games and prints the result. Operational tool for
// verifying upstream and warehouse connectivity without waiting for the
// orchestrator's window to open.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"courtside/ingestion/internal/client"
	"courtside/ingestion/internal/config"
	"courtside/ingestion/internal/ingest"
	"courtside/ingestion/internal/retry"
	"courtside/ingestion/internal/tracker"
	"courtside/ingestion/internal/warehouse"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	ctx := context.Background()
	cfg := config.MustLoad()

	wh, err := warehouse.New(ctx, warehouse.Config{
		Host:          cfg.DatabaseHost,
		Port:          strconv.Itoa(cfg.DatabasePort),
		User:          cfg.DatabaseUser,
		Password:      cfg.DatabasePassword,
		Database:      cfg.DatabaseName,
		SSLMode:       cfg.DatabaseSSLMode,
		SnapshotTable: cfg.SnapshotTable,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to warehouse")
	}
	defer wh.Close()

	log.Info().Msg("Validating service health...")
	if err := wh.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Warehouse health check failed")
	}

	live, err := wh.Games.LiveGames(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list live games")
	}
	if len(live) == 0 {
		log.Info().Msg("No live games. Exiting.")
		return
	}
	log.Info().Int("count", len(live)).Msg("Live games found")

	policy := retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	upstream := client.NewClient(cfg.StatsBaseURL, cfg.StatsAPIKey, cfg.UpstreamTimeout, policy)

	trk := tracker.New()
	trk.IngestSchedule(live)

	runner := ingest.NewRunner(upstream, wh.Snapshots, trk, wh.Games, cfg.SnapshotPageSize)
	result, err := runner.RunCycle(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Cycle failed")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	log.Info().
		Int("games_fetched", result.GamesFetched).
		Int("rows_written", result.RowsWritten).
		Int("errors", result.Errors).
		Msg("Manual fetch complete.")
}
