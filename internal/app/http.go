package app

import (
	httpH "github.com/yungbote/opengaia-backend/internal/http/handlers"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	World    *httpH.WorldHandler
	Dialogue *httpH.DialogueHandler
	Story    *httpH.StoryHandler
	Portrait *httpH.PortraitHandler
	Voice    *httpH.VoiceHandler
}

func wireHandlers(log *logger.Logger, services Services, repos Repos) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		World:    httpH.NewWorldHandler(log, services.World, repos.Worlds),
		Dialogue: httpH.NewDialogueHandler(services.Dialogue),
		Story:    httpH.NewStoryHandler(services.Branch),
		Portrait: httpH.NewPortraitHandler(services.Portraits),
		Voice:    httpH.NewVoiceHandler(log, services.Voice),
	}
}
