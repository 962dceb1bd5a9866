package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/opengaia-backend/internal/data/repos/world"
	"github.com/yungbote/opengaia-backend/internal/http/response"
	"github.com/yungbote/opengaia-backend/internal/modules/worldgen"
	"github.com/yungbote/opengaia-backend/internal/platform/apierr"
	"github.com/yungbote/opengaia-backend/internal/platform/ctxutil"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type WorldGenerator interface {
	Generate(ctx context.Context, story, endGoal string) (worldgen.Result, error)
	TileMap(ctx context.Context, tileMapPrompt string) (map[string]any, error)
}

type WorldHandler struct {
	log    *logger.Logger
	gen    WorldGenerator
	worlds world.Repo
}

func NewWorldHandler(log *logger.Logger, gen WorldGenerator, worlds world.Repo) *WorldHandler {
	if log == nil {
		log = logger.Nop()
	}
	if worlds == nil {
		worlds = world.NopRepo()
	}
	return &WorldHandler{log: log.With("handler", "WorldHandler"), gen: gen, worlds: worlds}
}

type generateWorldRequest struct {
	Story   string `json:"story" binding:"required,min=10"`
	EndGoal string `json:"end_goal" binding:"required,min=5"`
}

type generateWorldResponse struct {
	GameBible   json.RawMessage `json:"game_bible"`
	Fingerprint string          `json:"fingerprint"`
	Source      string          `json:"source"`
}

// POST /api/generate-world
func (h *WorldHandler) GenerateWorld(c *gin.Context) {
	var req generateWorldRequest
	if !bindJSON(c, &req) {
		return
	}
	// Lengths are checked on trimmed text; the fingerprint covers the request as sent.
	if len([]rune(strings.TrimSpace(req.Story))) < 10 || len([]rune(strings.TrimSpace(req.EndGoal))) < 5 {
		badRequest(c, "story must be at least 10 characters and end_goal at least 5")
		return
	}
	res, err := h.gen.Generate(c.Request.Context(), req.Story, req.EndGoal)
	if err != nil {
		response.RespondAPIError(c, canceled(err))
		return
	}
	response.RespondOK(c, generateWorldResponse{
		GameBible:   res.Raw,
		Fingerprint: res.Fingerprint,
		Source:      string(res.Source),
	})
}

// GET /api/bibles
func (h *WorldHandler) ListBibles(c *gin.Context) {
	limit := world.DefaultListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 200 {
			badRequest(c, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	rows, err := h.worlds.List(c.Request.Context(), limit)
	if err != nil {
		h.log.Warn("list bibles failed; returning empty list", append(ctxutil.LogFields(c.Request.Context()), "error", err)...)
		rows = []world.Summary{}
	}
	response.RespondOK(c, gin.H{"bibles": rows})
}

type bibleResponse struct {
	ID        uuid.UUID       `json:"id"`
	Story     string          `json:"story"`
	EndGoal   string          `json:"end_goal"`
	GameBible json.RawMessage `json:"game_bible"`
	CreatedAt time.Time       `json:"created_at"`
}

// GET /api/bibles/:id
func (h *WorldHandler) GetBible(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, apierr.NotFound("bible_not_found", world.ErrNotFound))
		return
	}
	rec, err := h.worlds.GetByID(c.Request.Context(), id)
	switch {
	case errors.Is(err, world.ErrNotFound):
		response.RespondAPIError(c, apierr.NotFound("bible_not_found", err))
		return
	case err != nil:
		response.RespondAPIError(c, apierr.New(http.StatusServiceUnavailable, "store_unavailable", err))
		return
	}
	response.RespondOK(c, bibleResponse{
		ID:        rec.ID,
		Story:     rec.Story,
		EndGoal:   rec.EndGoal,
		GameBible: json.RawMessage(rec.Bible),
		CreatedAt: rec.CreatedAt,
	})
}

type tileMapRequest struct {
	TileMapPrompt string `json:"tile_map_prompt" binding:"required"`
}

// POST /api/generate-tilemap
func (h *WorldHandler) GenerateTileMap(c *gin.Context) {
	var req tileMapRequest
	if !bindJSON(c, &req) {
		return
	}
	tm, err := h.gen.TileMap(c.Request.Context(), req.TileMapPrompt)
	switch {
	case err == nil:
		response.RespondOK(c, gin.H{"tile_map": tm})
	case errors.Is(err, worldgen.ErrEmptyPrompt):
		response.RespondAPIError(c, apierr.BadRequest(err))
	case errors.Is(err, worldgen.ErrTileMapMalformed):
		response.RespondAPIError(c, apierr.Upstream("malformed_reply", err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.RespondAPIError(c, canceled(err))
	default:
		response.RespondAPIError(c, apierr.Upstream("upstream_failed", err))
	}
}
