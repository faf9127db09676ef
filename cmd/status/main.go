// Package main inspects optimization runs: lists all known runs or prints
// the state and top results of a single run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
	pgstore "strategy-opt-lab/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	runID := flag.String("run-id", "", "Run to inspect (empty lists all runs)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	metricName := flag.String("metric", string(domain.MetricProfitFactor), "Metric for the top-results sort")
	topN := flag.Int("top", 10, "Number of top results to show")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[status] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	metric, err := domain.ParseMetric(*metricName)
	if err != nil {
		logger.Fatalf("invalid metric: %v", err)
	}

	ctx := context.Background()
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	runStore := pgstore.NewRunStore(pool)
	resultStore := pgstore.NewResultStore(pool)

	if *runID == "" {
		listRuns(ctx, runStore, logger, *outputJSON)
		return
	}
	showRun(ctx, runStore, resultStore, *runID, metric, *topN, logger, *outputJSON)
}

func listRuns(ctx context.Context, runStore storage.RunStore, logger *log.Logger, asJSON bool) {
	runs, err := runStore.List(ctx)
	if err != nil {
		logger.Fatalf("list runs: %v", err)
	}

	if asJSON {
		printJSON(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("OPTIMIZATION RUNS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run ID", "Name", "Mode", "Status", "Progress", "Created"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.Name,
			r.Mode,
			r.Status,
			fmt.Sprintf("%d/%d", r.CompletedCombinations, r.TotalCombinations),
			formatMillis(r.CreatedAt),
		})
	}
	t.Render()
}

func showRun(ctx context.Context, runStore storage.RunStore, resultStore storage.ResultStore, runID string, metric domain.Metric, topN int, logger *log.Logger, asJSON bool) {
	run, err := runStore.GetStatus(ctx, runID)
	if err != nil {
		logger.Fatalf("get run %s: %v", runID, err)
	}

	results, err := resultStore.GetByRun(ctx, runID, storage.ResultQuery{
		Limit:        topN,
		SortMetric:   metric,
		TrainingOnly: true,
	})
	if err != nil {
		logger.Fatalf("load results for %s: %v", runID, err)
	}

	if asJSON {
		printJSON(struct {
			Run     *domain.RunState       `json:"run"`
			Results []*domain.ResultRecord `json:"results"`
		}{run, results})
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("RUN STATE")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Run ID", run.RunID},
		{"Name", run.Name},
		{"Mode", run.Mode},
		{"Status", run.Status},
		{"Progress", fmt.Sprintf("%d/%d (%.1f%%)", run.CompletedCombinations, run.TotalCombinations, run.Progress*100)},
		{"Created", formatMillis(run.CreatedAt)},
	})
	if run.StartedAt > 0 {
		t.AppendRow(table.Row{"Started", formatMillis(run.StartedAt)})
	}
	if run.FinishedAt > 0 {
		t.AppendRow(table.Row{"Finished", formatMillis(run.FinishedAt)})
	}
	if run.BestParams != nil {
		t.AppendRow(table.Row{"Best Params", run.BestParams.Key()})
	}
	if run.ErrorDetail != "" {
		t.AppendRow(table.Row{"Error", run.ErrorDetail})
	}
	t.Render()

	if len(results) == 0 {
		fmt.Println("\nNo results recorded.")
		return
	}

	fmt.Println()
	rt := table.NewWriter()
	rt.SetOutputMirror(os.Stdout)
	rt.SetTitle(fmt.Sprintf("TOP RESULTS BY %s", metric))
	rt.SetStyle(table.StyleRounded)
	rt.AppendHeader(table.Row{"Params", "Window", "Trades", "Win Rate", "PF", "Net Profit", "Sharpe"})
	for _, rec := range results {
		window := "-"
		if rec.WindowIndex != nil {
			window = fmt.Sprintf("%d", *rec.WindowIndex)
		}
		rt.AppendRow(table.Row{
			rec.Combination.Key(),
			window,
			rec.Metrics.TotalTrades,
			fmt.Sprintf("%.4f", rec.Metrics.WinRate),
			fmt.Sprintf("%.4f", rec.Metrics.ProfitFactor),
			fmt.Sprintf("%.2f", rec.Metrics.NetProfit),
			fmt.Sprintf("%.4f", rec.Metrics.SharpeRatio),
		})
	}
	rt.Render()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func printJSON(v interface{}) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}
