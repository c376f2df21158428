package http

import (
	"github.com/gin-gonic/gin"
	"github.com/richardliu001/tipster-ledger/internal/config"
	"github.com/richardliu001/tipster-ledger/internal/service"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine. The webhook route sits outside the rate
// limiter so provider retries are never throttled.
func NewRouter(svc *service.LedgerService, wh *WebhookHandler, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.POST("/webhooks/paystack", wh.Handle)

	api := r.Group("/")
	api.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(api, svc)
	return r
}
