// Package main generates reports for a finished optimization run: Markdown,
// CSV, and an Excel workbook, written to an output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/reporting"
	pgstore "strategy-opt-lab/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	runID := flag.String("run-id", "", "Run to report on (required)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	metricName := flag.String("metric", string(domain.MetricProfitFactor), "Metric for the top-results sort")
	topN := flag.Int("top", reporting.DefaultTopResults, "Number of top results in the report")

	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	if *runID == "" {
		logger.Fatal("--run-id is required")
	}
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

	gen := reporting.NewGenerator(pgstore.NewRunStore(pool), pgstore.NewResultStore(pool)).
		WithTopResults(*topN)

	report, err := gen.Generate(ctx, *runID, metric)
	if err != nil {
		logger.Fatalf("generate report: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}

	mdPath := filepath.Join(*outputDir, *runID+".md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		logger.Fatalf("write markdown: %v", err)
	}

	csvPath := filepath.Join(*outputDir, *runID+"_results.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderResultsCSV(report)), 0644); err != nil {
		logger.Fatalf("write results csv: %v", err)
	}

	written := []string{mdPath, csvPath}

	if len(report.Summaries) > 0 {
		valPath := filepath.Join(*outputDir, *runID+"_validation.csv")
		if err := os.WriteFile(valPath, []byte(reporting.RenderValidationCSV(report)), 0644); err != nil {
			logger.Fatalf("write validation csv: %v", err)
		}
		written = append(written, valPath)
	}

	xlsxPath := filepath.Join(*outputDir, *runID+".xlsx")
	if err := reporting.WriteWorkbook(report, xlsxPath); err != nil {
		logger.Fatalf("write workbook: %v", err)
	}
	written = append(written, xlsxPath)

	for _, path := range written {
		fmt.Println(path)
	}
}
