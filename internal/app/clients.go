package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/opengaia-backend/internal/data/db"
	"github.com/yungbote/opengaia-backend/internal/platform/elevenlabs"
	"github.com/yungbote/opengaia-backend/internal/platform/llm"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
	"github.com/yungbote/opengaia-backend/internal/platform/objectstore"
	"github.com/yungbote/opengaia-backend/internal/platform/redisx"
)

type Clients struct {
	LLM   llm.Client
	Redis *goredis.Client
	DB    *gorm.DB
	// Objects is nil when no portrait bucket is configured; images are then inlined.
	Objects *objectstore.GCS
	TTS     *elevenlabs.Client
}

// wireClients builds the outbound clients. The LLM client and the database are required
// when configured; redis and the bucket degrade to in-process fallbacks.
func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// LLM
	llmClient, err := llm.New(cfg.llmClientConfig(), log)
	if err != nil {
		return Clients{}, fmt.Errorf("init llm client: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		log.Warn("LLM_API_KEY not set; generation will serve the fallback bible and dialogue will fail upstream")
	}
	out.LLM = llmClient

	// Redis
	if cfg.redisConfig().Enabled() {
		rdb, err := redisx.Connect(ctx, cfg.redisConfig())
		if err != nil {
			log.Warn("Redis unavailable; bible cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			out.Redis = rdb
		}
	}

	// Postgres / sqlite
	if cfg.Database.URL != "" {
		gdb, err := db.Open(cfg.Database.URL, log)
		if err != nil {
			out.close(log)
			return Clients{}, fmt.Errorf("init database: %w", err)
		}
		if err := db.AutoMigrateAll(gdb); err != nil {
			out.DB = gdb
			out.close(log)
			return Clients{}, fmt.Errorf("database automigrate: %w", err)
		}
		out.DB = gdb
	} else {
		log.Info("DATABASE_URL not set; generated worlds are not persisted")
	}

	// Gcs
	if cfg.objectStoreConfig().Enabled() {
		store, err := objectstore.NewGCS(ctx, cfg.objectStoreConfig(), log)
		if err != nil {
			log.Warn("Portrait bucket unavailable; images will be inlined", "bucket", cfg.Portrait.Bucket, "error", err)
		} else {
			out.Objects = store
		}
	}

	// ElevenLabs
	out.TTS = elevenlabs.New(cfg.elevenLabsConfig(), log)
	if !out.TTS.Configured() {
		log.Warn("ELEVENLABS_API_KEY not set; voice requests will fail")
	}

	return out, nil
}

func (c *Clients) close(log *logger.Logger) {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
		c.Redis = nil
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn("database close failed", "error", err)
			}
		}
		c.DB = nil
	}
	if c.Objects != nil {
		if err := c.Objects.Close(); err != nil {
			log.Warn("storage client close failed", "error", err)
		}
		c.Objects = nil
	}
}
