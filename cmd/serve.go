package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetsign/meetsign/internal/checkin"
	"github.com/meetsign/meetsign/internal/config"
	"github.com/meetsign/meetsign/internal/evidence"
	"github.com/meetsign/meetsign/internal/recognizer"
	"github.com/meetsign/meetsign/internal/store/postgres"
	"github.com/meetsign/meetsign/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the check-in server",
	Long: `Start the meetsign check-in server.
The server exposes the WebSocket sign-in stream, one-shot photo
check-in, feature export and face registration endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

// initEvidence opens the evidence store if a directory is configured.
func initEvidence(cfg *config.Config) (*evidence.Store, error) {
	if cfg.Evidence.Dir == "" {
		fmt.Println("Evidence snapshots disabled (EVIDENCE_DIR not set)")
		return nil, nil
	}
	ev, err := evidence.NewStore(cfg.Evidence.Dir, cfg.Evidence.MaxWidth)
	if err != nil {
		return nil, fmt.Errorf("opening evidence store: %w", err)
	}
	fmt.Printf("Evidence snapshots stored under %s\n", cfg.Evidence.Dir)
	return ev, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Recognizer.URL == "" {
		return errors.New("RECOGNIZER_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	st := postgres.NewMeetingRepository(pool)
	rec := recognizer.NewHTTPClient(cfg.Recognizer.URL, cfg.Recognizer.CallTimeout())

	ev, err := initEvidence(cfg)
	if err != nil {
		return err
	}

	registry := checkin.NewRegistry(st, checkin.Options{
		Threshold:  cfg.Matching.Threshold(),
		HNSWCutoff: cfg.Matching.HNSWCutoff,
	})

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, registry, st, rec, ev)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		// Drain queued sign-in writes before the process exits.
		registry.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Starting meetsign check-in server on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	// ListenAndServe unblocks as soon as the listener closes; wait for
	// the drain to finish before the process exits.
	<-shutdownDone
	return nil
}
