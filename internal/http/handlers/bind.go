package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/opengaia-backend/internal/http/response"
	"github.com/yungbote/opengaia-backend/internal/platform/apierr"
)

// bindJSON decodes the body into dst and renders a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondAPIError(c, apierr.BadRequest(fmt.Errorf("invalid request body: %w", err)))
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	response.RespondAPIError(c, apierr.BadRequest(errors.New(msg)))
}

// canceled maps a context error from a departed or timed-out caller.
func canceled(err error) *apierr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	}
	return apierr.New(499, "client_closed_request", err)
}
