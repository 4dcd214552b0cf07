package http

import (
	"github.com/gin-gonic/gin"

	"fleet-monitor/livemap/internal/metrics"
)

func NewRouter(h *Handler, hub *Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestMetrics())

	h.Register(r.Group(""))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if hub != nil {
		r.GET("/ws", hub.ServeWS)
	}
	return r
}
