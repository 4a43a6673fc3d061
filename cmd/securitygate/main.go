package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/securitygate/securitygate/internal/api"
	"github.com/securitygate/securitygate/internal/config"
	"github.com/securitygate/securitygate/internal/github"
	"github.com/securitygate/securitygate/internal/logging"
	"github.com/securitygate/securitygate/internal/risk"
	"github.com/securitygate/securitygate/internal/scanner"
	"github.com/securitygate/securitygate/internal/store"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "securitygate",
	Short:   "securitygate - pull request security analysis gateway",
	Long:    `securitygate scores pull requests by combining external security scanners with an ML-based behavioral risk model and renders an auto-approve / manual-review / block verdict.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("securitygate %s\n", Version)
		fmt.Printf("  Built:  %s\n", BuildTime)
		fmt.Printf("  Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runServer() {
	cfg := config.Load()
	logging.Init(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "securitygate",
	})

	st, err := store.New(cfg.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DataPath).Msg("Failed to open analysis store")
	}
	defer st.Close()

	orchestrator := scanner.NewOrchestrator(
		scanner.NewSemgrep(cfg.SemgrepRules),
		scanner.NewSnyk(),
	)
	predictor := risk.NewPredictor(cfg.ModelPath)
	ghClient := github.NewClient(cfg.GitHubToken)

	router := api.NewRouter(cfg, st, orchestrator, predictor, ghClient)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", cfg.MetricsPort))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("securitygate API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down API server cleanly")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
