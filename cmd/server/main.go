// cmd/server/main.go
// Entry point for the Activity Lobby server: the WebSocket coordination service behind a
// Discord Activity. It admits authenticated connections, moves them between rooms keyed by
// the activity instance id and keeps them alive with a periodic ping.
//
// The "cmd/server" directory follows the usual Go layout: cmd/ holds executables and
// internal/ holds the packages they are built from.
package main

import (
	"context"
	"fmt"
	"os"
	// os/signal turns SIGINT/SIGTERM into a cancelled context for graceful shutdown
	"os/signal"
	"syscall"
	"time"

	// zap is the structured logger every component receives
	"go.uber.org/zap"

	// Internal packages, imported by module path
	"github.com/trentd187/activity-lobby/internal/config"
	"github.com/trentd187/activity-lobby/internal/database"
	"github.com/trentd187/activity-lobby/internal/discord"
	"github.com/trentd187/activity-lobby/internal/hub"
	"github.com/trentd187/activity-lobby/internal/identity"
	"github.com/trentd187/activity-lobby/internal/logging"
	"github.com/trentd187/activity-lobby/internal/server"
)

const (
	migrationsDir   = "migrations"     // golang-migrate reads *.up.sql files from here
	activityBuffer  = 1024             // activity events queued before Record starts dropping
	shutdownTimeout = 10 * time.Second // how long in-flight HTTP requests get to finish
)

// main only reports the error; run does the work so its deferred calls (logger sync,
// signal stop) still execute before the process exits non-zero.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// --- Step 1: configuration and logging ---
	// Load reads environment variables (and an optional .env file) and validates them.
	// Any error here is fatal: there is no sensible default for, say, a missing JWT_SECRET.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	// Sync flushes any buffered log entries on the way out.
	defer func() { _ = log.Sync() }()

	// ctx is cancelled on SIGINT/SIGTERM. It drives the keepalive loop and tells us
	// when to start shutting down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Step 2: optional activity log ---
	// Without DATABASE_URL lifecycle events go to a NopRecorder and are discarded.
	//
	// The activity log runs on its own context, not ctx: it must keep accepting events
	// until every session has been disconnected during shutdown, and only then stop.
	var recorder hub.ActivityRecorder = hub.NopRecorder{}
	activityCtx, stopActivity := context.WithCancel(context.Background())
	defer stopActivity()
	activityDone := make(chan struct{})
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		// Migrations run on every start; golang-migrate skips versions already applied.
		if err := database.RunMigrations(migrationsDir, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		activity := database.NewActivityLog(db, log.Named("activity"), activityBuffer)
		go func() {
			defer close(activityDone)
			activity.Run(activityCtx)
		}()
		recorder = activity
		log.Info("activity log enabled")
	} else {
		close(activityDone)
	}

	// --- Step 3: the hub and its keepalive ---
	// "go ...Run(ctx)" starts the ping loop in the background; it returns when ctx is
	// cancelled.
	h := hub.New(log.Named("hub"), recorder, cfg.SendBuffer)
	go hub.NewKeepalive(h.Registry(), cfg.KeepaliveInterval, log.Named("keepalive")).Run(ctx)

	// --- Step 4: HTTP application ---
	// The same secret signs tokens at POST /api/token and verifies them at the gate.
	deps := server.Deps{
		Log:      log,
		Hub:      h,
		Verifier: identity.NewVerifier(cfg.JWTSecret),
		Signer:   identity.NewSigner(cfg.JWTSecret, cfg.TokenTTL),
	}
	if cfg.TokenExchangeEnabled() {
		deps.Exchanger = discord.NewClient(cfg.DiscordAPIBase, cfg.DiscordClientID, cfg.DiscordClientSecret)
	} else {
		log.Warn("CLIENT_ID or CLIENT_SECRET not set, POST /api/token is disabled")
	}
	app := server.New(cfg, deps)

	// Listen blocks, so it runs in a goroutine and reports its result on a channel.
	// The buffer of 1 lets the goroutine exit even if nobody is reading any more.
	listenErr := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("ws_path", cfg.WSPath),
		)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	// --- Step 5: wait for a signal or a listener failure ---
	var runErr error
	select {
	case err := <-listenErr:
		runErr = fmt.Errorf("listening on port %s: %w", cfg.Port, err)
		stop()
	case <-ctx.Done():
		log.Info("shutting down", zap.Int("sessions", h.Registry().Count()))
	}

	// --- Step 6: graceful shutdown ---
	// Upgraded WebSocket connections are hijacked from the HTTP server, so
	// ShutdownWithTimeout does not see them. Disconnecting every session first sends
	// each client a close frame, releases its room and records its disconnected row.
	n := h.DisconnectAll()
	log.Info("sessions disconnected", zap.Int("sessions", n))

	if runErr == nil {
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Warn("graceful shutdown incomplete", zap.Error(err))
		}
	}

	// Only now stop the activity log; Run flushes whatever is still queued before it
	// returns.
	stopActivity()
	<-activityDone
	return runErr
}
