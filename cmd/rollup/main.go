/*
main.go - One-shot pipeline invocation

PURPOSE:
  Runs a single daily rollup cycle and exits. This is the entry point
  for an external scheduler (cron, systemd timer); the pipeline assumes
  exactly one invocation in flight at a time, which the scheduler
  enforces.

COMMAND-LINE FLAGS:
  -data    Artifact root directory (default: ./data)
  -ledger  Completion ledger file (default: {data}/completions.log)
  -feed    Vendor feed URL (required)
  -date    Run date YYYY-MM-DD (default: yesterday)

EXIT CODE:
  0 if all four tasks completed, 1 otherwise. A non-zero exit is not
  fatal to the data: the next invocation's recovery finishes the run.
*/
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/gridline/meter-rollup/feed"
	"github.com/gridline/meter-rollup/rollup"
)

func main() {
	dataRoot := flag.String("data", "./data", "artifact root directory")
	ledgerPath := flag.String("ledger", "", "completion ledger file (default: {data}/completions.log)")
	feedURL := flag.String("feed", "", "vendor feed URL")
	dateFlag := flag.String("date", "", "run date YYYY-MM-DD (default: yesterday)")
	flag.Parse()

	if *feedURL == "" {
		log.Fatal("-feed is required")
	}
	if *ledgerPath == "" {
		*ledgerPath = filepath.Join(*dataRoot, "completions.log")
	}

	date := rollup.Yesterday()
	if *dateFlag != "" {
		var err error
		if date, err = rollup.ParseRunDate(*dateFlag); err != nil {
			log.Fatalf("Invalid -date: %v", err)
		}
	}

	pipeline := rollup.NewPipeline(
		feed.NewHTTPSource(*feedURL),
		rollup.NewFileLedger(*ledgerPath),
		*dataRoot,
	)

	if err := pipeline.Run(context.Background(), date); err != nil {
		log.Printf("Run for %s finished with failures: %v", date, err)
		os.Exit(1)
	}
}
