// Command server loads configuration, opens the store, constructs the
// Twitch and Discord clients, bootstraps the webhook engine, wires the
// control-plane service, and runs the gRPC and HTTP listeners side by
// side until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kzh/stitch/internal/channel"
	"github.com/kzh/stitch/internal/config"
	"github.com/kzh/stitch/internal/discord"
	"github.com/kzh/stitch/internal/logger"
	"github.com/kzh/stitch/internal/rpc"
	"github.com/kzh/stitch/internal/store"
	"github.com/kzh/stitch/internal/twitch"
	"github.com/kzh/stitch/internal/webhook"
)

func main() {
	app := &cli.App{
		Name:  "stitch",
		Usage: "Twitch live-stream notification engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "gRPC control-plane listen port", EnvVars: []string{"PORT"}},
			&cli.StringFlag{Name: "webhook-port", Usage: "webhook ingestion HTTP listen port", EnvVars: []string{"WEBHOOK_PORT"}},
			&cli.StringFlag{Name: "webhook-url", Usage: "externally reachable host for the EventSub callback", EnvVars: []string{"WEBHOOK_URL"}},
			&cli.StringFlag{Name: "webhook-secret", Usage: "shared secret for EventSub signature verification", EnvVars: []string{"WEBHOOK_SECRET"}},
			&cli.StringFlag{Name: "database-url", Usage: "Postgres connection string", EnvVars: []string{"DATABASE_URL"}},
			&cli.StringFlag{Name: "twitch-client-id", EnvVars: []string{"TWITCH_CLIENT_ID"}},
			&cli.StringFlag{Name: "twitch-client-secret", EnvVars: []string{"TWITCH_CLIENT_SECRET"}},
			&cli.StringFlag{Name: "discord-token", EnvVars: []string{"DISCORD_TOKEN"}},
			&cli.Uint64Flag{Name: "discord-channel", Usage: "Discord channel id cards are published to", EnvVars: []string{"DISCORD_CHANNEL"}},
			&cli.StringFlag{Name: "log-level", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", EnvVars: []string{"LOG_FORMAT"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverlay copies any flag the caller actually set into the
// environment so config.Load's single os.Getenv-based code path stays
// authoritative.
func applyFlagOverlay(c *cli.Context) {
	setString := func(flag, env string) {
		if c.IsSet(flag) {
			os.Setenv(env, c.String(flag))
		}
	}
	setString("port", "PORT")
	setString("webhook-port", "WEBHOOK_PORT")
	setString("webhook-url", "WEBHOOK_URL")
	setString("webhook-secret", "WEBHOOK_SECRET")
	setString("database-url", "DATABASE_URL")
	setString("twitch-client-id", "TWITCH_CLIENT_ID")
	setString("twitch-client-secret", "TWITCH_CLIENT_SECRET")
	setString("discord-token", "DISCORD_TOKEN")
	setString("log-level", "LOG_LEVEL")
	setString("log-format", "LOG_FORMAT")
	if c.IsSet("discord-channel") {
		os.Setenv("DISCORD_CHANNEL", strconv.FormatUint(c.Uint64("discord-channel"), 10))
	}
}

func run(c *cli.Context) error {
	applyFlagOverlay(c)
	cfg := config.Load()
	log := logger.New(logger.FromLevelAndFormat(cfg.LogLevel, cfg.LogFormat))

	st, err := store.Open(cfg.DatabaseURL, store.Config{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api, err := twitch.New(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.WebhookURL, cfg.WebhookSecret)
	if err != nil {
		log.Error("failed to construct twitch client", "error", err)
		return err
	}

	publisher := discord.New(cfg.DiscordToken, cfg.DiscordChannel)

	log.Info("bootstrapping webhook engine")
	engine, err := webhook.New(ctx, webhook.Config{
		Store:         st,
		API:           api,
		Publisher:     publisher,
		Logger:        log,
		WebhookSecret: cfg.WebhookSecret,
	})
	if err != nil {
		log.Error("failed to bootstrap webhook engine", "error", err)
		return err
	}

	channelSvc, err := channel.NewService(ctx, st, api, engine)
	if err != nil {
		log.Error("failed to construct channel service", "error", err)
		return err
	}

	grpcServer := rpc.NewServer(channelSvc)
	grpcListener, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		log.Error("failed to bind gRPC listener", "port", cfg.Port, "error", err)
		return err
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.WebhookPort,
		Handler: engine.Router(),
	}

	go func() {
		log.Info("control-plane gRPC listening", "port", cfg.Port)
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error("grpc server error", "error", err)
		}
	}()

	go func() {
		log.Info("webhook ingestion listening", "port", cfg.WebhookPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	grpcStopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(grpcStopped)
	}()
	select {
	case <-grpcStopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("webhook http server forced to shutdown", "error", err)
	}

	log.Info("draining in-flight online handlers")
	engine.Drain()

	log.Info("shutdown complete")
	return nil
}
