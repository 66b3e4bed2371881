// Command refserver serves the reference implementation of the
// Responses protocol, optionally with injected faults, as a local
// target for the compliance suite.
package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vinhnx/openresponses/internal/refserver"
)

func main() {
	_ = godotenv.Load()

	var (
		addr      = flag.String("addr", ":8090", "listen address")
		apiKey    = flag.String("api-key", "", "require this bearer credential")
		faultsArg = flag.String("faults", "", "comma-separated faults to inject (see internal/refserver)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	faults, err := parseFaults(*faultsArg)
	if err != nil {
		log.Fatalf("Invalid -faults: %v", err)
	}

	opts := []refserver.Option{refserver.WithLogger(logger)}
	if *apiKey != "" {
		opts = append(opts, refserver.WithAPIKey(*apiKey))
	}
	if faults.Any() {
		opts = append(opts, refserver.WithFaults(faults))
		logger.Warn("fault injection enabled", slog.String("faults", *faultsArg))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           refserver.New(opts...).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("reference server listening", slog.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func parseFaults(arg string) (refserver.Faults, error) {
	var f refserver.Faults
	if arg == "" {
		return f, nil
	}
	for _, name := range strings.Split(arg, ",") {
		switch strings.TrimSpace(name) {
		case "drop-item-added":
			f.DropItemAdded = true
		case "duplicate-item-done":
			f.DuplicateItemDone = true
		case "reset-sequence":
			f.ResetSequence = true
		case "skip-completed":
			f.SkipCompleted = true
		case "unknown-event":
			f.EmitUnknownEvent = true
		case "delta-after-done":
			f.DeltaAfterDone = true
		case "malformed-event":
			f.MalformedEvent = true
		case "omit-usage":
			f.OmitUsage = true
		default:
			return f, &unknownFaultError{name}
		}
	}
	return f, nil
}

type unknownFaultError struct {
	name string
}

func (e *unknownFaultError) Error() string {
	return "unknown fault " + e.name
}
