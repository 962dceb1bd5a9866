package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/opengaia-backend/internal/http/handlers"
	httpMW "github.com/yungbote/opengaia-backend/internal/http/middleware"
	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	// ServiceName labels otelgin spans; empty disables gin instrumentation.
	ServiceName string

	HealthHandler   *httpH.HealthHandler
	WorldHandler    *httpH.WorldHandler
	DialogueHandler *httpH.DialogueHandler
	StoryHandler    *httpH.StoryHandler
	PortraitHandler *httpH.PortraitHandler
	VoiceHandler    *httpH.VoiceHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Worlds
		if cfg.WorldHandler != nil {
			api.POST("/generate-world", cfg.WorldHandler.GenerateWorld)
			api.GET("/bibles", cfg.WorldHandler.ListBibles)
			api.GET("/bibles/:id", cfg.WorldHandler.GetBible)
			api.POST("/generate-tilemap", cfg.WorldHandler.GenerateTileMap)
		}

		// Dialogue
		if cfg.DialogueHandler != nil {
			api.POST("/npc-dialogue", cfg.DialogueHandler.Turn)
		}

		// Story branching
		if cfg.StoryHandler != nil {
			api.POST("/branch-story", cfg.StoryHandler.Branch)
		}

		// Portraits
		if cfg.PortraitHandler != nil {
			api.POST("/generate-portrait", cfg.PortraitHandler.Generate)
			api.POST("/generate-portraits", cfg.PortraitHandler.Batch)
		}

		// Voice
		if cfg.VoiceHandler != nil {
			api.POST("/npc-voice", cfg.VoiceHandler.Speak)
		}
	}

	return r
}
