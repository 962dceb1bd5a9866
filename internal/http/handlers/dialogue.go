package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/opengaia-backend/internal/http/response"
	"github.com/yungbote/opengaia-backend/internal/modules/dialogue"
	"github.com/yungbote/opengaia-backend/internal/platform/apierr"
)

type DialogueEngine interface {
	Turn(ctx context.Context, req dialogue.Request) (dialogue.Response, error)
}

type DialogueHandler struct {
	engine DialogueEngine
}

func NewDialogueHandler(engine DialogueEngine) *DialogueHandler {
	return &DialogueHandler{engine: engine}
}

// POST /api/npc-dialogue
func (h *DialogueHandler) Turn(c *gin.Context) {
	var req dialogue.Request
	if !bindJSON(c, &req) {
		return
	}
	if msg := validateDialogue(req); msg != "" {
		badRequest(c, msg)
		return
	}
	resp, err := h.engine.Turn(c.Request.Context(), req)
	switch {
	case err == nil:
		response.RespondOK(c, resp)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.RespondAPIError(c, canceled(err))
	case errors.Is(err, dialogue.ErrMalformedReply):
		response.RespondAPIError(c, apierr.Upstream("malformed_reply", err))
	default:
		response.RespondAPIError(c, apierr.Upstream("upstream_failed", err))
	}
}

func validateDialogue(req dialogue.Request) string {
	switch {
	case strings.TrimSpace(req.CharacterName) == "":
		return "character_name is required"
	case req.TrustLevel < dialogue.MinTrust || req.TrustLevel > dialogue.MaxTrust:
		return "trust_level must be between 0 and 100"
	case req.TrustThreshold < dialogue.MinTrust || req.TrustThreshold > dialogue.MaxTrust:
		return "trust_threshold must be between 0 and 100"
	case len(req.ConversationHistory) > 0 && strings.TrimSpace(req.PlayerChoiceText) == "" && req.PlayerChoiceIndex == nil:
		return "player_choice_text or player_choice_index is required after the opening turn"
	}
	return ""
}
