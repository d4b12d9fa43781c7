package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signal-tracker/pkg/cluster"
	"github.com/signal-tracker/pkg/config"
	"github.com/signal-tracker/pkg/db"
	"github.com/signal-tracker/pkg/dedup"
	"github.com/signal-tracker/pkg/embed"
	"github.com/signal-tracker/pkg/engine"
	"github.com/signal-tracker/pkg/feed"
	"github.com/signal-tracker/pkg/jobs"
	"github.com/signal-tracker/pkg/market"
	"github.com/signal-tracker/pkg/ranking"
	"github.com/signal-tracker/pkg/reputation"
	"github.com/signal-tracker/pkg/scanner"
	"github.com/signal-tracker/pkg/source"
	"github.com/signal-tracker/pkg/summarize"
	"github.com/signal-tracker/pkg/types"
)

func main() {
	showLeaderboard := flag.Bool("leaderboard", false, "print the persisted source leaderboard and exit")
	realtime := flag.Bool("realtime", false, "replay recorded messages with their original timing gaps")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer store.Close()

	if *showLeaderboard {
		printLeaderboard(store)
		return
	}

	log.Info().Msg("📡 Signal Tracker starting...")

	// Oracles. Each is optional; the pipeline degrades without them.
	var embedOracle embed.Oracle
	if cfg.EmbeddingURL != "" {
		embedOracle = embed.NewHTTPOracle(cfg.EmbeddingURL, cfg.EmbeddingTimeout, cfg.EmbeddingDimension)
	}
	marketOracle := market.NewDexScreenerClient(cfg.DexScreenerAPI, cfg.MarketTimeout)
	var summarizer summarize.Oracle
	if c := summarize.NewClient(cfg); c != nil {
		summarizer = c
	}

	// Core pipeline.
	tracker := reputation.NewTracker(cfg.Reputation)
	sink := db.NewBufferedSink(store, 1000)
	defer sink.Close()
	clusters := cluster.NewEngine(cfg.ClusterWindow, cfg.Scoring, tracker, ranking.NewSpamDetector(), sink)
	dd := dedup.New(cfg.DedupWindow, cfg.SimilarityThreshold, embedOracle)
	pipeline := engine.New(cfg, dd, clusters, tracker)

	scn := scanner.New(cfg, marketOracle, summarizer)
	server := feed.NewServer(cfg, pipeline, clusters, tracker, scn, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down...")
		cancel()
	}()

	runner := jobs.NewRunner(cfg, clusters, tracker, marketOracle, store)
	if err := runner.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("job scheduler failed")
	}
	defer runner.Stop()

	errCh := make(chan error, 10)
	go func() { errCh <- pipeline.Run(ctx) }()
	go func() { errCh <- server.Start() }()

	if cfg.ReplayFile != "" {
		replay := source.NewReplaySource(cfg.ReplayFile, *realtime)
		go func() { errCh <- runSource(ctx, replay, server, pipeline) }()
	} else {
		log.Warn().Msg("no message source configured, set REPLAY_FILE or wire a chat client")
	}

	printSummary(cfg, store)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("error")
		}
		cancel()
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	server.Shutdown(shutCtx)
	clusters.RetireStale()
	log.Info().Msg("goodbye 👋")
}

func runSource(ctx context.Context, src source.ChatSource, server *feed.Server, pipeline *engine.Engine) error {
	return src.Start(ctx, func(msg types.RawMessage) {
		server.Observe(msg)
		pipeline.Enqueue(msg)
	})
}

func printLeaderboard(store *db.Store) {
	board, err := store.LoadLeaderboard(3, 25)
	if err != nil {
		log.Fatal().Err(err).Msg("leaderboard load failed")
	}
	if len(board) == 0 {
		fmt.Println("no sources with enough calls yet")
		return
	}

	color.New(color.Bold, color.FgCyan).Println("\n  🏆 SOURCE LEADERBOARD")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Source", "Trust", "Hit Rate", "Avg Return", "Calls", "Flagged"})
	for _, s := range board {
		name := s.Name
		if name == "" {
			name = s.SourceID
		}
		flagged := ""
		if s.IsFlagged {
			flagged = "⚠ " + s.FlagReason
		}
		table.Append([]string{
			name,
			fmt.Sprintf("%.1f", s.TrustScore),
			fmt.Sprintf("%.0f%%", s.HitRate*100),
			fmt.Sprintf("%+.1f%%", s.AvgReturn*100),
			fmt.Sprintf("%d", s.TotalCalls),
			flagged,
		})
	}
	table.Render()
}

func printSummary(cfg *config.Config, store *db.Store) {
	fmt.Println("\n" + strings.Repeat("═", 60))
	fmt.Println("  📡 SIGNAL TRACKER - RUNNING")
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("  Feed:      http://localhost:%d/api/feed\n", cfg.HTTPPort)
	fmt.Printf("  Push:      ws://localhost:%d/ws\n", cfg.HTTPPort)
	fmt.Printf("  Metrics:   http://localhost:%d/metrics\n", cfg.HTTPPort)
	fmt.Printf("  Chains:    Solana, Ethereum, Base, BSC\n")
	fmt.Printf("  Window:    %s cluster / %s dedup\n", cfg.ClusterWindow, cfg.DedupWindow)
	embStatus := "❌ Disabled (set EMBEDDING_URL for semantic dedup)"
	if cfg.EmbeddingURL != "" {
		embStatus = "✅ " + cfg.EmbeddingURL
	}
	fmt.Printf("  Embedding: %s\n", embStatus)
	aiStatus := "❌ Disabled (set ANTHROPIC_API_KEY or OPENAI_API_KEY)"
	if cfg.AnthropicAPIKey != "" {
		aiStatus = "✅ Anthropic Claude"
	}
	if cfg.OpenAIAPIKey != "" {
		aiStatus = "✅ OpenAI"
	}
	if cfg.OllamaURL != "" {
		aiStatus = "✅ Ollama (local)"
	}
	fmt.Printf("  Summaries: %s\n", aiStatus)
	if stats, err := store.GetStats(); err == nil {
		fmt.Printf("  DB: %d retired clusters, %d sources, %d discoveries\n",
			stats.RetiredClusters, stats.TrackedSources, stats.Discoveries)
	}
	fmt.Println(strings.Repeat("═", 60) + "\n")
}
