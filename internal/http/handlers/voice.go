package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/opengaia-backend/internal/http/response"
	"github.com/yungbote/opengaia-backend/internal/modules/voice"
	"github.com/yungbote/opengaia-backend/internal/platform/apierr"
	"github.com/yungbote/opengaia-backend/internal/platform/ctxutil"
	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type VoiceStreamer interface {
	Stream(ctx context.Context, line voice.Line) (io.ReadCloser, error)
}

type VoiceHandler struct {
	log   *logger.Logger
	voice VoiceStreamer
}

func NewVoiceHandler(log *logger.Logger, v VoiceStreamer) *VoiceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &VoiceHandler{log: log.With("handler", "VoiceHandler"), voice: v}
}

type voiceRequest struct {
	NPCID       string `json:"npc_id"`
	Description string `json:"description"`
	Text        string `json:"text"`
	Emotion     string `json:"emotion"`
}

const streamChunk = 4096

// POST /api/npc-voice
func (h *VoiceHandler) Speak(c *gin.Context) {
	var req voiceRequest
	if !bindJSON(c, &req) {
		return
	}
	rc, err := h.voice.Stream(c.Request.Context(), voice.Line{
		NPCID:       req.NPCID,
		Description: req.Description,
		Text:        req.Text,
		Emotion:     req.Emotion,
	})
	if err != nil {
		switch {
		case errors.Is(err, voice.ErrEmptyText):
			response.RespondAPIError(c, apierr.BadRequest(err))
		case errors.Is(err, voice.ErrUnknownVoice):
			response.RespondAPIError(c, apierr.NotFound("voice_not_found", err))
		case errors.Is(err, voice.ErrNotConfigured):
			response.RespondAPIError(c, apierr.New(http.StatusInternalServerError, "voice_not_configured", err))
		default:
			response.RespondAPIError(c, apierr.Upstream("upstream_failed", err))
		}
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "audio/mpeg")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	buf := make([]byte, streamChunk)
	var streamErr error
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				streamErr = werr
				break
			}
			c.Writer.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}
	}
	if streamErr != nil {
		h.log.Warn("voice stream interrupted", append(ctxutil.LogFields(c.Request.Context()), "error", streamErr)...)
	}
}
