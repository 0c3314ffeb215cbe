package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/FilipGjorgjeski/klepetalnica/broker"
	"github.com/FilipGjorgjeski/klepetalnica/history"
	"github.com/FilipGjorgjeski/klepetalnica/internal/config"
	"github.com/FilipGjorgjeski/klepetalnica/internal/log"
	"github.com/FilipGjorgjeski/klepetalnica/internal/metrics"
	"github.com/FilipGjorgjeski/klepetalnica/internal/server"
	"github.com/FilipGjorgjeski/klepetalnica/presence"
	"github.com/FilipGjorgjeski/klepetalnica/relay"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "klepetalnica-node",
	Short: "Klepetalnica room relay node",
	Long: `klepetalnica-node runs one instance of the room relay. Instances
share a message broker (Redis pub/sub or NATS) and coordinate only
through it: each node subscribes to a room's channel while it has
local participants and fans incoming events out to them.`,
	RunE: runServe,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	logger := log.WithInstanceID(cfg.InstanceID)
	metrics.Register()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub()

	var rel *relay.Relay
	handler := func(channel string, payload []byte) {
		rel.Handle(channel, payload)
	}

	var rdb *redis.Client
	if cfg.Broker == config.BrokerRedis || cfg.HistoryEnabled || cfg.PresenceEnabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			if cfg.Broker == config.BrokerRedis {
				return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
			}
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("redis unreachable, history and presence disabled")
			rdb = nil
		}
	}

	var bkr broker.Broker
	switch cfg.Broker {
	case config.BrokerRedis:
		bkr = broker.NewRedis(ctx, rdb, handler, log.WithComponent("broker"))
	case config.BrokerNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.InstanceID))
		if err != nil {
			return fmt.Errorf("nats connect %s: %w", cfg.NATSURL, err)
		}
		bkr = broker.NewNATS(nc, handler, log.WithComponent("broker"))
	case config.BrokerMemory:
		bkr = broker.NewBus().Attach(handler)
	default:
		return fmt.Errorf("unknown broker %q", cfg.Broker)
	}

	var hist relay.HistoryStore
	if cfg.HistoryEnabled {
		if rdb != nil {
			hist = history.NewRedis(rdb, cfg.HistoryLimit)
		} else {
			hist = history.NewMemory(cfg.HistoryLimit)
		}
	}
	var pres relay.PresenceMirror
	if cfg.PresenceEnabled && rdb != nil {
		pres = presence.NewRedis(rdb, log.WithComponent("presence"))
	}

	rel = relay.New(relay.Config{
		Broker:   bkr,
		Sink:     hub,
		ServerID: cfg.InstanceID,
		History:  hist,
		Presence: pres,
		Logger:   logger,
	})
	if err := rel.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	srv := server.New(cfg.ListenAddr, cfg.MetricsPath, rel, hub, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info().
		Str("broker", cfg.Broker).
		Str("addr", cfg.ListenAddr).
		Msg("node started")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
	}

	if err := rel.Close(); err != nil {
		logger.Warn().Err(err).Msg("broker close")
	}
	return nil
}
