package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func NewRouter(h *Handler, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.POST("/metrics", h.IngestMetrics)
		api.GET("/metrics", h.GetMetrics)
		api.GET("/sites", h.GetSites)
		api.GET("/sites/:site/metrics", h.GetSiteMetrics)
		api.GET("/anomalies", h.GetAnomalies)
		api.GET("/alerts", h.GetAlerts)
		api.GET("/live", h.GetLive)
	}

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
	})

	return r
}

func RequestLoggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Debugf("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}
