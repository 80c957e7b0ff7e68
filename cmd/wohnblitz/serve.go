package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jonathan/wohnblitz/internal/bot"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/maintenance"
	"github.com/jonathan/wohnblitz/internal/observability"
	"github.com/jonathan/wohnblitz/internal/server"
	"github.com/jonathan/wohnblitz/internal/session"
	"github.com/jonathan/wohnblitz/internal/settings"
	"github.com/spf13/cobra"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bot manager and its HTTP control API",
	Long: `Start the bot manager, the hourly maintenance scheduler and an HTTP server
exposing bot control, configuration, logs and monitoring endpoints.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "Apply the database schema before starting")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if serveMigrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	registry := observability.NewRegistry()
	manager := bot.NewManager(
		settings.NewProvider(database),
		database,
		session.NewChromeFactory(cfg.SessionOptions()),
		cfg.BotOptions(),
	)

	scheduler := maintenance.New(database, manager, registry, cfg.MaintenanceOptions())
	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := server.New(server.Config{Port: cfg.Port}, server.Deps{
		Bots:        manager,
		Store:       database,
		Metrics:     registry,
		Maintenance: scheduler,
	})

	log.Printf("[serve] Polling %s every %s", cfg.ListingsURL, cfg.BotOptions().PollInterval)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
