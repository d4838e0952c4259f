// Candidly runs one unattended voice interview with proctoring.
// The candidate's browser connects to the embedded web server for
// speech and media; the orchestrator drives the conversation against
// the interview backend and submits the transcript when it ends.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/candidly/pkg/config"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	app, err := New(cfg)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// parseFlags loads the environment and lets flags override it.
func parseFlags() (config.Config, error) {
	envFile := flag.String("env", "", "Path to a .env file (default .env if present)")
	token := flag.String("session", "", "Session token (overrides CANDIDLY_SESSION_TOKEN)")
	candidate := flag.String("candidate", "", "Candidate ID (overrides CANDIDLY_CANDIDATE_ID)")
	name := flag.String("name", "", "Candidate display name")
	addr := flag.String("addr", "", "HTTP listen address (overrides CANDIDLY_LISTEN_ADDR)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return cfg, err
	}

	if *token != "" {
		cfg.SessionToken = *token
	}
	if *candidate != "" {
		cfg.CandidateID = *candidate
	}
	if *name != "" {
		cfg.CandidateName = *name
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}
