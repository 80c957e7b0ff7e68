package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/config"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/listings"
	"github.com/jonathan/wohnblitz/internal/observability"
	"github.com/jonathan/wohnblitz/internal/session"
	"github.com/jonathan/wohnblitz/internal/settings"
	"github.com/jonathan/wohnblitz/internal/types"
	"github.com/spf13/cobra"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Fetch the listings page once and show what a bot would apply to",
	Long: `Loads the listings page in a browser (or reads a saved copy with --html),
extracts the listings and evaluates them against a user's filter, or the
default filter when no user is given. Nothing is submitted.`,
	RunE: runCrawl,
}

var (
	crawlUserID   string
	crawlHTMLFile string
)

func init() {
	crawlCmd.Flags().StringVarP(&crawlUserID, "user", "u", "", "User UUID whose filter to apply (needs DATABASE_URL)")
	crawlCmd.Flags().StringVar(&crawlHTMLFile, "html", "", "Read listings from a saved HTML file instead of the live site")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	filter, err := crawlFilter(ctx, cfg)
	if err != nil {
		return err
	}

	page, err := crawlPage(ctx, cfg)
	if err != nil {
		return err
	}

	p := observability.NewPrinter(cmd.OutOrStdout())
	p.PrintFilterSettings(filter)
	if page.Outcome == session.OutcomeEmpty {
		fmt.Fprintln(cmd.OutOrStdout(), "The page holds no listing items; the site layout may have changed.")
		return nil
	}
	p.PrintListings(page.Listings, filter)
	p.PrintSkipped(page.Skipped)
	return nil
}

func crawlFilter(ctx context.Context, cfg *config.Config) (types.FilterSettings, error) {
	if crawlUserID == "" {
		return types.DefaultFilterSettings(), nil
	}
	userID, err := uuid.Parse(crawlUserID)
	if err != nil {
		return types.FilterSettings{}, fmt.Errorf("invalid user ID %q: %w", crawlUserID, err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return types.FilterSettings{}, err
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return types.FilterSettings{}, err
	}
	defer database.Close()

	return settings.NewProvider(database).FilterSettings(ctx, userID)
}

func crawlPage(ctx context.Context, cfg *config.Config) (*session.Page, error) {
	opts := cfg.SessionOptions()

	if crawlHTMLFile != "" {
		html, err := os.ReadFile(crawlHTMLFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", crawlHTMLFile, err)
		}
		extractor := listings.NewExtractor(opts.ListingsURL)
		extractor.Selectors = opts.Selectors
		return session.ExtractHTML(extractor, string(html))
	}

	s, err := session.NewChromeSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.Cleanup()

	if err := s.OpenListingsPage(ctx); err != nil {
		return nil, err
	}
	return s.ExtractPage(ctx)
}
