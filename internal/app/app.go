package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/opengaia-backend/internal/http"
	"github.com/yungbote/opengaia-backend/internal/observability"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics
	Server   *apphttp.Server

	shutdownOtel func(context.Context) error
}

// New loads config from the process environment and wires the whole service graph.
func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownOtel := observability.InitOTel(ctx, log, cfg.otelConfig())
	metrics := observability.NewMetrics()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(log, cfg, clients)
	serviceset, err := wireServices(log, cfg, clients, reposet, metrics)
	if err != nil {
		clients.close(log)
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, serviceset, reposet)

	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		ServiceName:     serviceName,
		HealthHandler:   handlerset.Health,
		WorldHandler:    handlerset.World,
		DialogueHandler: handlerset.Dialogue,
		StoryHandler:    handlerset.Story,
		PortraitHandler: handlerset.Portrait,
		VoiceHandler:    handlerset.Voice,
	}, cfg.HTTP.ShutdownTimeout)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		Server:       server,
		shutdownOtel: shutdownOtel,
	}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx, a.Cfg.HTTP.Addr)
}

// Close waits for in-flight world persists, then releases clients and flushes traces.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.World != nil {
		a.Services.World.Wait()
	}
	a.Clients.close(a.Log)
	if a.shutdownOtel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Log.Sync()
}
