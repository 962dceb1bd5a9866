package cache

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

const (
	biblePrefix     = "bible:"
	DefaultBibleTTL = time.Hour
)

// BibleCache maps a fingerprint to validated bible JSON. Backend failures are logged and
// reported as misses; they never surface to callers.
type BibleCache struct {
	kv  KV
	ttl time.Duration
	log *logger.Logger
}

func NewBibleCache(kv KV, ttl time.Duration, log *logger.Logger) *BibleCache {
	if kv == nil {
		kv = NopKV{}
	}
	if ttl <= 0 {
		ttl = DefaultBibleTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BibleCache{kv: kv, ttl: ttl, log: log.With("service", "BibleCache")}
}

func Key(fingerprint string) string { return biblePrefix + fingerprint }

// Get returns the cached bytes and true on a hit.
func (c *BibleCache) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	b, err := c.kv.Get(ctx, Key(fingerprint))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn("cache read failed, treating as miss", "fingerprint", fingerprint, "error", err)
		}
		return nil, false
	}
	if len(b) == 0 {
		return nil, false
	}
	return b, true
}

// Set stores raw under the fingerprint with the configured TTL.
func (c *BibleCache) Set(ctx context.Context, fingerprint string, raw []byte) {
	if err := c.kv.Set(ctx, Key(fingerprint), raw, c.ttl); err != nil {
		c.log.Warn("cache write failed", "fingerprint", fingerprint, "error", err)
	}
}
