package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const serviceName = "open-gaia-backend"

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
}
