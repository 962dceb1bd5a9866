package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/opengaia-backend/internal/http/response"
	"github.com/yungbote/opengaia-backend/internal/modules/branch"
	"github.com/yungbote/opengaia-backend/internal/platform/apierr"
)

type BranchResolver interface {
	Resolve(ctx context.Context, state branch.GameState) (branch.Outcome, error)
}

type StoryHandler struct {
	resolver BranchResolver
}

func NewStoryHandler(resolver BranchResolver) *StoryHandler {
	return &StoryHandler{resolver: resolver}
}

// POST /api/branch-story
func (h *StoryHandler) Branch(c *gin.Context) {
	var state branch.GameState
	if !bindJSON(c, &state) {
		return
	}
	out, err := h.resolver.Resolve(c.Request.Context(), state)
	switch {
	case err == nil:
		response.RespondOK(c, out)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.RespondAPIError(c, canceled(err))
	case errors.Is(err, branch.ErrInvalidState):
		response.RespondAPIError(c, apierr.BadRequest(err))
	case errors.Is(err, branch.ErrMalformedReply):
		response.RespondAPIError(c, apierr.Upstream("malformed_reply", err))
	default:
		response.RespondAPIError(c, apierr.Upstream("upstream_failed", err))
	}
}
