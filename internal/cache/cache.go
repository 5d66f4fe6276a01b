package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"referral-api/internal/config"
)

const (
	codePrefix     = "code:"
	userCodePrefix = "usercode:"
)

// CodeRecord is the cached snapshot of a referral code. IsExpired is
// evaluated once when the record is written and reused by later reads
// until the entry's TTL elapses.
type CodeRecord struct {
	ID        uint      `json:"id"`
	Code      string    `json:"code"`
	UserID    uint      `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	LiveDays  int       `json:"live_days"`
	ExpiresAt time.Time `json:"expires_at"`
	IsExpired bool      `json:"is_expired"`
}

// Client wraps the Redis connection used as a read-through accelerator.
// The cache is never the system of record: read errors are logged and
// reported as misses so callers fall back to the store.
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient creates a Redis connection and pings it
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// NewClientFromRedis wraps an existing go-redis client (used by tests)
func NewClientFromRedis(rdb *goredis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// GetCode returns the cached record for a code string, or (nil, nil) on miss
func (c *Client) GetCode(ctx context.Context, code string) (*CodeRecord, error) {
	data, err := c.rdb.Get(ctx, codePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		c.logger.Warn("cache read failed, treating as miss", zap.String("code", code), zap.Error(err))
		return nil, nil
	}

	var record CodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		c.logger.Warn("cache record unmarshal failed, treating as miss", zap.String("code", code), zap.Error(err))
		return nil, nil
	}

	return &record, nil
}

// SetCode stores a code record under the code key. A non-positive TTL
// would persist forever in Redis, so it deletes the key instead.
func (c *Client) SetCode(ctx context.Context, record *CodeRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return c.DeleteCode(ctx, record.Code)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal code record: %w", err)
	}

	return c.rdb.Set(ctx, codePrefix+record.Code, data, ttl).Err()
}

// DeleteCode removes the record keyed by the code string
func (c *Client) DeleteCode(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, codePrefix+code).Err()
}

// GetUserCode returns the code string cached for a user, or ("", nil) on miss
func (c *Client) GetUserCode(ctx context.Context, userID uint) (string, error) {
	code, err := c.rdb.Get(ctx, userCodeKey(userID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		c.logger.Warn("cache read failed, treating as miss", zap.Uint("user_id", userID), zap.Error(err))
		return "", nil
	}
	return code, nil
}

// SetUserCode stores the user→code pointer. Non-positive TTLs delete the key.
func (c *Client) SetUserCode(ctx context.Context, userID uint, code string, ttl time.Duration) error {
	if ttl <= 0 {
		return c.DeleteUserCode(ctx, userID)
	}
	return c.rdb.Set(ctx, userCodeKey(userID), code, ttl).Err()
}

// DeleteUserCode removes the user→code pointer
func (c *Client) DeleteUserCode(ctx context.Context, userID uint) error {
	return c.rdb.Del(ctx, userCodeKey(userID)).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func userCodeKey(userID uint) string {
	return fmt.Sprintf("%s%d", userCodePrefix, userID)
}
