package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client Redis 客户端封装
type Client struct {
	config *Config
	logger *logger.Logger
	client redis.UniversalClient
}

// New 创建 Redis 客户端并执行健康检查
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		logger: log.Named("redis"),
		client: redis.NewUniversalClient(universalOptions(cfg)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c.logger.Info("redis client initialized successfully",
		zap.String("mode", string(cfg.Mode)),
		zap.String("master_addr", cfg.MasterAddr),
	)
	return c, nil
}

// NewFromUniversal wraps an existing go-redis client.
func NewFromUniversal(rc redis.UniversalClient, log *logger.Logger) *Client {
	return &Client{config: DefaultConfig(), logger: log.Named("redis"), client: rc}
}

func universalOptions(cfg *Config) *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,

		MaxRetries: cfg.MaxRetries,
	}

	switch cfg.Mode {
	case ModeSentinel:
		opts.Addrs = cfg.SentinelAddrs
		opts.MasterName = cfg.MasterName
	case ModeCluster:
		opts.Addrs = cfg.ClusterAddrs
		opts.DB = 0
	default:
		opts.Addrs = []string{cfg.MasterAddr}
	}
	return opts
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	if c.client == nil {
		return ErrNotInitialized
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis ping failed", zap.Error(err))
		return err
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		c.logger.Error("close redis client failed", zap.Error(err))
		return err
	}
	c.logger.Info("redis client closed")
	return nil
}

// Universal returns the underlying go-redis client.
func (c *Client) Universal() redis.UniversalClient {
	return c.client
}
