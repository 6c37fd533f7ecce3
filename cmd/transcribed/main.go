package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"podcast-transcriber/internal/bootstrap"
	"podcast-transcriber/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "transcribed",
	Short: "Podcast transcription job service",
	Long:  "transcribed accepts audio uploads, runs them through the whisperx pipeline one at a time, and serves job status over HTTP.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the background worker",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.FromEnv()
		app, err := bootstrap.New(cfg)
		if err != nil {
			log.Fatalf("bootstrap app: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Run(ctx); err != nil {
			log.Fatalf("run app: %v", err)
		}
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the ledger database schema and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.FromEnv()
		if err := bootstrap.InitDB(cfg); err != nil {
			log.Fatalf("init db: %v", err)
		}
		log.Printf("ledger initialized at %s", cfg.DBPath)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initDBCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
