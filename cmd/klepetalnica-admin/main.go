package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/FilipGjorgjeski/klepetalnica/broker"
	"github.com/FilipGjorgjeski/klepetalnica/internal/log"
	"github.com/FilipGjorgjeski/klepetalnica/relay"
)

var (
	redisAddr   string
	messageType string
	notifyLevel string
)

var rootCmd = &cobra.Command{
	Use:   "klepetalnica-admin",
	Short: "Operator commands for a klepetalnica cluster",
	Long: `klepetalnica-admin publishes operator events onto the shared broker.
Every connected node picks them up and fans them out to its local
sessions, so a single command reaches the whole cluster.`,
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <message>",
	Short: "Send a message to every connected session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPublisher(cmd.Context(), func(ctx context.Context, pub *relay.Publisher) {
			pub.PublishGlobalBroadcast(ctx, messageType, args[0])
		})
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify <notification>",
	Short: "Send a system notification to every connected session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPublisher(cmd.Context(), func(ctx context.Context, pub *relay.Publisher) {
			pub.PublishSystemNotification(ctx, args[0], notifyLevel)
		})
	},
}

func withPublisher(ctx context.Context, fn func(context.Context, *relay.Publisher)) error {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", redisAddr, err)
	}

	logger := log.WithComponent("admin")
	b := broker.NewRedis(ctx, client, func(string, []byte) {}, logger)
	defer b.Close()

	fn(ctx, relay.NewPublisher(b, "admin", logger))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "redis address")
	broadcastCmd.Flags().StringVar(&messageType, "type", "ANNOUNCEMENT", "broadcast message type")
	notifyCmd.Flags().StringVar(&notifyLevel, "level", "info", "notification level")

	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(notifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
