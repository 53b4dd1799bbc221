package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/pkg/logger"
)

// Health status values.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// Health is the body of GET /health.
type Health struct {
	Status string                 `json:"status"`
	Checks map[string]string      `json:"checks,omitempty"`
	Pools  map[string]interface{} `json:"pools,omitempty"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(c *gin.Context) {
	checks := make(map[string]string, len(s.checks))
	allHealthy := true

	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "error"
			allHealthy = false
			continue
		}
		checks[name] = "ok"
	}

	body := Health{Status: HealthStatusOK, Checks: checks}
	if s.poolsFn != nil {
		body.Pools = s.poolsFn()
	}

	httpStatus := http.StatusOK
	if !allHealthy {
		body.Status = HealthStatusDegraded
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, body)
}
