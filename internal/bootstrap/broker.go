package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/receiptq/config"
	redisadapter "github.com/target/receiptq/internal/adapters/redis"
	"github.com/target/receiptq/internal/backoff"
	"github.com/target/receiptq/internal/broker"
)

// BrokerConfig groups what is needed to build and connect the broker client.
type BrokerConfig struct {
	Queue   config.QueueConfig
	Clients RedisClientFactory
	Logger  *slog.Logger
}

// NewBrokerClient builds the broker client over Redis. It does not connect.
func NewBrokerClient(cfg BrokerConfig) (*broker.Client, error) {
	if cfg.Clients == nil {
		return nil, errors.New("redis client factory is required")
	}
	return broker.NewClient(broker.Options{
		Dialer: redisadapter.NewDialer(func() redis.UniversalClient { return cfg.Clients() }, redisadapter.QueueConnOptions{
			TaskTTL:   cfg.Queue.TaskTTL,
			FailedTTL: cfg.Queue.FailedTTL,
		}),
		QueueName:  cfg.Queue.Name,
		MaxRetries: cfg.Queue.MaxConnectRetries,
		Backoff:    backoff.NewExponential(cfg.Queue.InitialBackoff, cfg.Queue.MaxBackoff),
		Logger:     cfg.Logger,
	})
}

// ConnectBroker builds the broker client and connects it with retries.
func ConnectBroker(ctx context.Context, cfg BrokerConfig) (*broker.Client, error) {
	client, err := NewBrokerClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create broker client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	return client, nil
}

// keepBrokerConnected redials the broker every interval while it is disconnected.
// It returns nil once ctx is done.
func keepBrokerConnected(ctx context.Context, client *broker.Client, interval time.Duration, logger *slog.Logger) error {
	if client == nil {
		return errors.New("broker client is required")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if client.Connected() {
				continue
			}
			if err := client.Connect(ctx); err != nil && ctx.Err() == nil {
				logger.WarnContext(ctx, "broker still unavailable", "error", err)
			} else if err == nil {
				logger.InfoContext(ctx, "broker connected")
			}
		}
	}
}
