package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/opengaia-backend/internal/http/response"
	"github.com/yungbote/opengaia-backend/internal/modules/portrait"
	"github.com/yungbote/opengaia-backend/internal/platform/apierr"
)

type PortraitGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Batch(ctx context.Context, subjects []portrait.Subject, field portrait.Field) map[string]string
}

type PortraitHandler struct {
	portraits PortraitGenerator
}

func NewPortraitHandler(portraits PortraitGenerator) *PortraitHandler {
	return &PortraitHandler{portraits: portraits}
}

type portraitRequest struct {
	PortraitPrompt string `json:"portrait_prompt" binding:"required"`
}

// POST /api/generate-portrait
func (h *PortraitHandler) Generate(c *gin.Context) {
	var req portraitRequest
	if !bindJSON(c, &req) {
		return
	}
	url, err := h.portraits.Generate(c.Request.Context(), req.PortraitPrompt)
	switch {
	case err == nil && url != "":
		response.RespondOK(c, gin.H{"image_url": url})
	case errors.Is(err, portrait.ErrEmptyPrompt):
		response.RespondAPIError(c, apierr.BadRequest(err))
	case err == nil:
		response.RespondAPIError(c, apierr.Upstream("upstream_failed", portrait.ErrEmptyImage))
	default:
		response.RespondAPIError(c, apierr.Upstream("upstream_failed", err))
	}
}

type portraitBatchRequest struct {
	Characters []portrait.Subject `json:"characters"`
	Field      string             `json:"field"`
}

// POST /api/generate-portraits
func (h *PortraitHandler) Batch(c *gin.Context) {
	var req portraitBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	for _, s := range req.Characters {
		if s.ID == "" {
			badRequest(c, "every character needs an id")
			return
		}
	}
	images := h.portraits.Batch(c.Request.Context(), req.Characters, portrait.ParseField(req.Field))
	response.RespondOK(c, gin.H{"images": images})
}
