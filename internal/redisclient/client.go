package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/advance_token.lua
var advanceTokenScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

const sequenceKey = "sequence:current"

var ErrTokenNotFound = errors.New("sequence token not initialized")

type Client struct {
	rdb           *redis.Client
	advanceScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing connection
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		advanceScript: redis.NewScript(advanceTokenScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// InitToken stores start as the current sequence token unless one is already
// stored, and returns the token in effect
func (c *Client) InitToken(ctx context.Context, start string) (string, error) {
	if _, err := c.rdb.SetNX(ctx, sequenceKey, start, 0).Result(); err != nil {
		return "", fmt.Errorf("failed to init sequence token: %w", err)
	}
	return c.CurrentToken(ctx)
}

// CurrentToken returns the stored sequence token
func (c *Client) CurrentToken(ctx context.Context) (string, error) {
	token, err := c.rdb.Get(ctx, sequenceKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get sequence token: %w", err)
	}
	return token, nil
}

// AdvanceToken atomically replaces expected with next. It returns false when
// the stored token is no longer expected.
func (c *Client) AdvanceToken(ctx context.Context, expected, next string) (bool, error) {
	result, err := c.advanceScript.Run(ctx, c.rdb, []string{sequenceKey}, expected, next).Result()
	if err != nil {
		return false, fmt.Errorf("advance token script failed: %w", err)
	}

	advanced, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return advanced == 1, nil
}

// MarkSubmitted records that orderID reached the ledger
func (c *Client) MarkSubmitted(ctx context.Context, orderID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, submittedKey(orderID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// IsSubmitted checks whether orderID was already submitted
func (c *Client) IsSubmitted(ctx context.Context, orderID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, submittedKey(orderID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock. The returned owner value must be
// passed to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	owner := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockName(lockKey), owner, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return owner, true, nil
}

// ReleaseLock releases a lock held by owner
func (c *Client) ReleaseLock(ctx context.Context, lockKey, owner string) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{lockName(lockKey)}, owner).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func submittedKey(orderID string) string {
	return fmt.Sprintf("submitted:%s", orderID)
}

func lockName(name string) string {
	return fmt.Sprintf("lock:%s", name)
}
