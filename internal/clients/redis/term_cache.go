package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
	"github.com/caselight/caselight-backend/internal/utils"
)

// TermCache stores generated term definitions in redis keyed by
// (term, complexity level). The deployment works without redis; callers
// treat a nil *TermCache as no cache.
type TermCache struct {
	log    *logger.Logger
	client *goredis.Client
	ttl    time.Duration
}

// NewTermCache connects using REDIS_ADDR. Returns nil when unset so the
// caller wires a pass-through.
func NewTermCache(ctx context.Context, log *logger.Logger) (*TermCache, error) {
	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		log.Info("REDIS_ADDR not set, term definition cache disabled")
		return nil, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: utils.GetEnv("REDIS_PASSWORD", "", log),
		DB:       utils.GetEnvAsInt("REDIS_DB", 0, log),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := time.Duration(utils.GetEnvAsInt("TERM_CACHE_TTL_HOURS", 24, log)) * time.Hour
	return &TermCache{
		log:    log.With("client", "TermCache"),
		client: client,
		ttl:    ttl,
	}, nil
}

func termKey(term string, level types.ComplexityLevel) string {
	return fmt.Sprintf("term:%s:%s", level, term)
}

func (c *TermCache) Get(ctx context.Context, term string, level types.ComplexityLevel) (*types.TermDefinition, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, termKey(term, level)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("term cache get failed", "error", err.Error())
		}
		return nil, false
	}
	var def types.TermDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		c.log.Warn("term cache entry corrupt, dropping", "error", err.Error())
		_ = c.client.Del(ctx, termKey(term, level)).Err()
		return nil, false
	}
	return &def, true
}

func (c *TermCache) Set(ctx context.Context, term string, level types.ComplexityLevel, def *types.TermDefinition) {
	if c == nil || def == nil {
		return
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, termKey(term, level), raw, c.ttl).Err(); err != nil {
		c.log.Warn("term cache set failed", "error", err.Error())
	}
}

// Close releases the underlying connection pool.
func (c *TermCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
