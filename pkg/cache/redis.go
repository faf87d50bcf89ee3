package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"safetrain-backend/pkg/models"
)

const keyPrefix = "safetrain:org:identity:"

// OrgCache keeps organizations by identity in Redis. It is a read-through
// optimisation only: every failure degrades to a miss and the store stays
// authoritative. A zero-value or disabled cache does nothing.
type OrgCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New connects to redisURL. An empty URL, a bad URL or a failed ping
// returns a disabled cache and logs why.
func New(ctx context.Context, redisURL string, ttl time.Duration, log *zap.Logger) *OrgCache {
	if redisURL == "" {
		log.Info("Redis URL not provided, caching disabled")
		return &OrgCache{log: log}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("Failed to parse Redis URL, caching disabled", zap.Error(err))
		return &OrgCache{log: log}
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Test connection
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Failed to connect to Redis, caching disabled", zap.Error(err))
		client.Close()
		return &OrgCache{log: log}
	}

	log.Info("Redis cache initialized", zap.String("addr", opt.Addr), zap.Duration("ttl", ttl))
	return NewWithClient(client, ttl, log)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *OrgCache {
	return &OrgCache{client: client, ttl: ttl, log: log}
}

// Enabled reports whether a Redis client is attached.
func (c *OrgCache) Enabled() bool {
	return c != nil && c.client != nil
}

func key(identityID string) string {
	return keyPrefix + identityID
}

// Get returns the cached organization for identityID.
func (c *OrgCache) Get(ctx context.Context, identityID string) (*models.Organization, bool) {
	if !c.Enabled() {
		return nil, false
	}

	data, err := c.client.Get(ctx, key(identityID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Cache read failed", zap.String("identity_id", identityID), zap.Error(err))
		}
		return nil, false
	}

	var org models.Organization
	if err := json.Unmarshal(data, &org); err != nil {
		c.log.Warn("Dropping undecodable cache entry", zap.String("identity_id", identityID), zap.Error(err))
		c.Delete(ctx, identityID)
		return nil, false
	}
	return &org, true
}

// Set stores org under its identity.
func (c *OrgCache) Set(ctx context.Context, org *models.Organization) {
	if !c.Enabled() || org == nil {
		return
	}

	data, err := json.Marshal(org)
	if err != nil {
		c.log.Warn("Cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key(org.IdentityID), data, c.ttl).Err(); err != nil {
		c.log.Warn("Cache write failed", zap.String("identity_id", org.IdentityID), zap.Error(err))
	}
}

// Delete removes the entry for identityID.
func (c *OrgCache) Delete(ctx context.Context, identityID string) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Del(ctx, key(identityID)).Err(); err != nil {
		c.log.Warn("Cache delete failed", zap.String("identity_id", identityID), zap.Error(err))
	}
}

// Ping checks the connection; a disabled cache is always healthy.
func (c *OrgCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *OrgCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
