// Command openresponses runs the Responses protocol compliance suite
// against a target service and reports per-test results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vinhnx/openresponses/internal/telemetry"
	"github.com/vinhnx/openresponses/pkg/compliance"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		dbPath     = flag.String("db", "", "record results into this SQLite database")
		filterArg  = flag.String("filter", "", "comma-separated template ids to run")
		listOnly   = flag.Bool("list", false, "list template ids and exit")
		verbose    = flag.Bool("verbose", false, "attach the exchange to passing results too")
		jsonOut    = flag.Bool("json", false, "print final results as JSON")
		quiet      = flag.Bool("quiet", false, "suppress structured logs")
	)
	flag.Parse()

	if *listOnly {
		for _, id := range compliance.TemplateIDs() {
			fmt.Println(id)
		}
		return
	}

	logLevel := slog.LevelInfo
	if *quiet {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("openresponses-compliance", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	opts := []compliance.Option{
		compliance.WithFileConfig(*configPath),
		compliance.WithLogger(logger),
	}
	if *dbPath != "" {
		opts = append(opts, compliance.WithStore(*dbPath))
	}
	if *filterArg != "" {
		opts = append(opts, compliance.WithFilter(strings.Split(*filterArg, ",")...))
	}
	if *verbose {
		opts = append(opts, compliance.WithVerbose())
	}

	h, err := compliance.New(opts...)
	if err != nil {
		log.Fatalf("Failed to create harness: %v", err)
	}
	defer h.Close()

	onProgress := func(res compliance.Result) {
		switch res.Status {
		case "running":
			fmt.Printf("... %-14s %s\n", res.ID, res.Name)
		case "passed":
			fmt.Printf("ok  %-14s %dms\n", res.ID, res.DurationMS)
		case "failed":
			fmt.Printf("FAIL %-13s %dms\n", res.ID, res.DurationMS)
			for _, e := range res.Errors {
				fmt.Printf("     %s\n", e)
			}
		}
	}
	if *jsonOut {
		onProgress = nil
	}

	summary, results, err := h.Run(context.Background(), onProgress)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	if *jsonOut {
		out := struct {
			Summary compliance.Summary  `json:"summary"`
			Results []compliance.Result `json:"results"`
		}{summary, results}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("Failed to encode results: %v", err)
		}
	} else {
		fmt.Printf("\n%d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	}

	if !summary.Ok() {
		os.Exit(1)
	}
}
