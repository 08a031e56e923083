package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/market-comments/internal/comments"
	"github.com/example/market-comments/internal/favorites"
	"github.com/example/market-comments/internal/marketapi"
	"github.com/example/market-comments/internal/platform/analytics"
	"github.com/example/market-comments/internal/platform/auth"
	"github.com/example/market-comments/internal/platform/config"
	"github.com/example/market-comments/internal/platform/logging"
	"github.com/example/market-comments/internal/platform/natsconn"
	"github.com/example/market-comments/internal/platform/run"
	"github.com/example/market-comments/internal/tui"
)

func main() {
	product := flag.String("product", "", "product id (overrides MARKET_PRODUCT_ID)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		run.Exit(2)
	}
	if p := strings.TrimSpace(*product); p != "" {
		cfg.ProductID = p
	}
	if cfg.ProductID == "" {
		fmt.Fprintln(os.Stderr, "Error: no product; pass -product or set MARKET_PRODUCT_ID")
		run.Exit(2)
	}

	// stdout belongs to the terminal UI, so logs go to a file.
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		run.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	session := auth.NewSession()
	if err := session.Login(cfg.API.Token); err != nil {
		fmt.Fprintln(os.Stderr, "Error: MARKET_TOKEN is required")
		run.Exit(2)
	}
	if session.Expired(time.Now()) {
		log.Warn("token already expired, requests will be rejected")
	}

	client := marketapi.New(cfg.API.BaseURL, session)
	client.HTTPClient.Timeout = cfg.API.Timeout

	events, nc := initAnalytics(cfg.Analytics, log)

	view := comments.NewView(comments.Options{
		ProductID: cfg.ProductID,
		API:       client,
		Identity:  session,
		Events:    events,
		Logger:    log,
	})
	favs := favorites.New(client, events, log)

	log.Info("starting",
		zap.String("api", cfg.API.BaseURL),
		zap.String("product_id", cfg.ProductID),
		zap.String("user", session.Handle()),
		zap.Bool("analytics", events != nil))

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		model := tui.NewModel(ctx, view, favs, log, tui.Config{SearchDebounce: cfg.SearchDebounce})
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	}, tea.ErrProgramKilled)

	view.Close()
	if nc != nil {
		_ = nc.Drain()
	}
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// initAnalytics connects to NATS when analytics is enabled. A failed
// connection disables analytics rather than the app.
func initAnalytics(cfg config.AnalyticsConfig, log *zap.Logger) (*analytics.Publisher, *nats.Conn) {
	if !cfg.Enabled {
		return nil, nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: "market-comments"})
	if err != nil {
		log.Warn("analytics disabled", zap.Error(err))
		return nil, nil
	}
	return analytics.New(nc, log), nc
}
