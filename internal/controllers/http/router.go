package http

import (
	"log/slog"

	"card-order-service/internal/controllers/http/middleware"

	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler, l *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics("/metrics", "/healthz"), middleware.Logging(l))
	h.RegisterRoutes(r)
	return r
}
