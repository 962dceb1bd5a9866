package app

import (
	"fmt"
	"os"

	"github.com/yungbote/opengaia-backend/internal/modules/branch"
	"github.com/yungbote/opengaia-backend/internal/modules/dialogue"
	"github.com/yungbote/opengaia-backend/internal/modules/portrait"
	"github.com/yungbote/opengaia-backend/internal/modules/voice"
	"github.com/yungbote/opengaia-backend/internal/modules/worldgen"
	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
	"github.com/yungbote/opengaia-backend/internal/platform/objectstore"
	"github.com/yungbote/opengaia-backend/internal/prompts"
)

type Services struct {
	World     *worldgen.Service
	Dialogue  *dialogue.Engine
	Branch    *branch.Resolver
	Portraits *portrait.Service
	Voice     *voice.Service
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, repos Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	reg, err := loadPrompts(cfg.PromptsPath)
	if err != nil {
		return Services{}, err
	}

	var objects objectstore.Store
	if clients.Objects != nil {
		objects = clients.Objects
	}

	return Services{
		World: worldgen.New(
			worldgen.Config{Model: cfg.LLM.WorldModel, GenerateTimeout: cfg.LLM.GenerateTimeout},
			worldgen.Deps{Log: log, LLM: clients.LLM, Prompts: reg, Cache: repos.Bibles, Store: repos.Worlds, Metrics: metrics},
		),
		Dialogue: dialogue.New(
			dialogue.Config{Model: cfg.LLM.DialogueModel},
			dialogue.Deps{Log: log, LLM: clients.LLM, Prompts: reg, Metrics: metrics},
		),
		Branch: branch.New(
			branch.Config{Model: cfg.LLM.BranchModel},
			branch.Deps{Log: log, LLM: clients.LLM, Prompts: reg, Metrics: metrics},
		),
		Portraits: portrait.New(
			portrait.Config{Model: cfg.LLM.ImageModel, MaxConcurrent: cfg.Portrait.MaxConcurrent},
			portrait.Deps{Log: log, LLM: clients.LLM, Store: objects, Metrics: metrics},
		),
		Voice: voice.New(voice.Deps{Log: log, TTS: clients.TTS, Voices: cfg.voiceRegistry()}),
	}, nil
}

// loadPrompts returns the embedded templates unless path names an override file.
func loadPrompts(path string) (*prompts.Registry, error) {
	if path == "" {
		return prompts.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	reg, err := prompts.LoadRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("load prompts file %s: %w", path, err)
	}
	return reg, nil
}
