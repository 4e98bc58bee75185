package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/platform/metrics"
)

type RouterConfig struct {
	ServiceName string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// NewRouter returns a gin engine with the shared middleware chain and the
// health and metrics endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(
		Recovery(cfg.Logger),
		RequestID(),
		Tracing(cfg.ServiceName),
		AccessLog(cfg.Logger),
		Metrics(cfg.Metrics),
	)

	r.GET("/health", HealthCheck)
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
