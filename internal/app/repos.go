package app

import (
	"github.com/yungbote/opengaia-backend/internal/data/cache"
	"github.com/yungbote/opengaia-backend/internal/data/repos/world"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type Repos struct {
	Bibles *cache.BibleCache
	Worlds world.Repo
}

func wireRepos(log *logger.Logger, cfg Config, clients Clients) Repos {
	log.Info("Wiring repos...")

	var kv cache.KV = cache.NopKV{}
	if clients.Redis != nil {
		kv = cache.NewRedisKV(clients.Redis)
	}

	worlds := world.NopRepo()
	if clients.DB != nil {
		worlds = world.NewRepo(clients.DB, log)
	}

	return Repos{
		Bibles: cache.NewBibleCache(kv, cfg.Redis.BibleTTL, log),
		Worlds: worlds,
	}
}
