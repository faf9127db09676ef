// Package main runs a parameter optimization from a config file: plain
// grid search or walk-forward validation, against in-memory or
// PostgreSQL+ClickHouse storage, with optional metrics and progress
// streaming over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"strategy-opt-lab/internal/config"
	"strategy-opt-lab/internal/observability"
	"strategy-opt-lab/internal/orchestrator"
	"strategy-opt-lab/internal/progressws"
	"strategy-opt-lab/internal/storage"
	chstore "strategy-opt-lab/internal/storage/clickhouse"
	"strategy-opt-lab/internal/storage/memory"
	"strategy-opt-lab/internal/storage/migrations"
	pgstore "strategy-opt-lab/internal/storage/postgres"
)

func main() {
	// Load .env file if exists; system env vars win.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Run config file (required)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for result archival (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	listenAddr := flag.String("listen-addr", "", "HTTP address for /metrics and /ws progress streaming (empty disables)")
	outputJSON := flag.Bool("json", false, "Output outcome as JSON")
	verbose := flag.Bool("verbose", false, "Verbose logging")

	flag.Parse()

	logger := log.New(os.Stderr, "[optimize] ", log.LstdFlags)

	if *configPath == "" {
		logger.Fatal("--config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	// Stores
	var runStore storage.RunStore = memory.NewRunStore()
	var resultStore storage.ResultStore = memory.NewResultStore()
	var archive storage.ResultArchive

	if !*useMemory {
		if *postgresDSN == "" {
			logger.Fatal("--postgres-dsn is required when not using --use-memory")
		}

		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("postgres migrations: %v", err)
		}
		runStore = pgstore.NewRunStore(pool)
		resultStore = pgstore.NewResultStore(pool)

		if *clickhouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
			if err != nil {
				logger.Fatalf("clickhouse migrations: %v", err)
			}
			defer conn.Close()
			archive = chstore.NewResultArchive(conn)
		}
	}

	// Optional HTTP listener: prometheus metrics plus websocket progress.
	var hub *progressws.Hub
	if *listenAddr != "" {
		hub = progressws.NewHub(*verbose)
		defer hub.Close()

		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.Handle("/ws", hub)

		server := &http.Server{Addr: *listenAddr, Handler: mux}
		go func() {
			logger.Printf("Serving /metrics and /ws on %s", *listenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("http server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	orch := orchestrator.New(orchestrator.Options{
		RunStore:    runStore,
		ResultStore: resultStore,
		Simulator:   newSyntheticSimulator(),
		Archive:     archive,
		Workers:     cfg.MaxConcurrency,
		OnProgress: func(p orchestrator.Progress) {
			if hub != nil {
				hub.Broadcast(progressws.ProgressEvent{
					RunID:     p.RunID,
					Completed: p.Completed,
					Total:     p.Total,
					Fraction:  p.Fraction,
				})
			}
		},
		Verbose: *verbose,
	})

	logger.Printf("Starting %s: %d combinations, %d workers",
		cfg.Name, cfg.Space.Count(), cfg.MaxConcurrency)

	if cfg.WalkForward() {
		runWalkForward(ctx, orch, cfg, logger, *outputJSON)
	} else {
		runGridSearch(ctx, orch, cfg, logger, *outputJSON)
	}
}

func runGridSearch(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.RunConfig, logger *log.Logger, asJSON bool) {
	outcome, err := orch.RunGridSearch(ctx, orchestrator.GridRequest{
		Name:           cfg.Name,
		Symbols:        cfg.Symbols,
		Start:          cfg.StartDate,
		End:            cfg.EndDate,
		Strategies:     cfg.Strategies,
		InitialCapital: cfg.InitialCapital,
		RiskPerTrade:   cfg.BaseRiskPerTrade,
		Space:          cfg.Space,
		Metric:         cfg.Metric,
		MinTrades:      cfg.MinTrades,
	})
	if err != nil {
		logger.Fatalf("grid search: %v", err)
	}

	if asJSON {
		printJSON(outcome)
		return
	}

	fmt.Printf("Run %s completed.\n\n", outcome.RunID)
	if outcome.Best == nil {
		fmt.Println("No combination reached the minimum trade count.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("BEST COMBINATION")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Params", outcome.Best.Combination.Key()},
		{"Trades", outcome.Best.Metrics.TotalTrades},
		{"Win Rate", fmt.Sprintf("%.4f", outcome.Best.Metrics.WinRate)},
		{"Profit Factor", fmt.Sprintf("%.4f", outcome.Best.Metrics.ProfitFactor)},
		{"Net Profit", fmt.Sprintf("%.2f", outcome.Best.Metrics.NetProfit)},
		{"Sharpe", fmt.Sprintf("%.4f", outcome.Best.Metrics.SharpeRatio)},
		{"Max Drawdown %", fmt.Sprintf("%.2f", outcome.Best.Metrics.MaxDrawdownPct)},
	})
	t.Render()
}

func runWalkForward(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.RunConfig, logger *log.Logger, asJSON bool) {
	outcome, err := orch.RunWalkForward(ctx, orchestrator.WalkForwardRequest{
		Name:           cfg.Name,
		Symbols:        cfg.Symbols,
		Start:          cfg.StartDate,
		End:            cfg.EndDate,
		Strategies:     cfg.Strategies,
		InitialCapital: cfg.InitialCapital,
		RiskPerTrade:   cfg.BaseRiskPerTrade,
		Space:          cfg.Space,
		Plan:           cfg.Plan,
	})
	if err != nil {
		logger.Fatalf("walk-forward: %v", err)
	}

	if asJSON {
		printJSON(outcome)
		return
	}

	fmt.Printf("Run %s completed: %d windows evaluated.\n\n", outcome.RunID, len(outcome.Windows))
	if len(outcome.Summaries) == 0 {
		fmt.Println("No window produced a qualified winner.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("WALK-FORWARD VALIDATION")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Params", "Windows", "Avg IS", "Avg OOS", "Degradation %", "Efficiency", "OOS PF", "Verdict"})
	for _, s := range outcome.Summaries {
		verdict := "OK"
		if s.IsOverfit {
			verdict = "OVERFIT"
		}
		t.AppendRow(table.Row{
			s.Combination.Key(),
			s.Windows,
			fmt.Sprintf("%.4f", s.AvgInSample),
			fmt.Sprintf("%.4f", s.AvgOutOfSample),
			fmtOptional(s.DegradationPct),
			fmtOptional(s.Efficiency),
			fmt.Sprintf("%.4f", s.OOSProfitFactor),
			verdict,
		})
	}
	t.Render()

	if outcome.Best != nil {
		fmt.Printf("\nRecommended parameters: %s\n", outcome.Best.Key())
	} else {
		fmt.Println("\nEvery candidate is flagged overfit; no recommendation.")
	}
}

func fmtOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

func printJSON(v interface{}) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}
