package api_gateway

import (
	"log/slog"

	"github.com/crowdfund-ledger/internal/api_gateway/handler"
	"github.com/crowdfund-ledger/internal/api_gateway/middleware"
	"github.com/crowdfund-ledger/internal/metrics"
	"github.com/gin-gonic/gin"
)

// handlers groups the HTTP handlers mounted by setupRouter
type handlers struct {
	campaign     *handler.CampaignHandler
	contribution *handler.ContributionHandler
	settlement   *handler.SettlementHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers, m *metrics.Metrics, checks []ReadinessCheck) {
	// CorrelationID runs first so logs and panics carry the id.
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.Recovery(logger))

	v1 := r.Group("/api/v1")
	{
		campaigns := v1.Group("/campaigns")
		{
			campaigns.POST("", h.campaign.Register)
			campaigns.GET("/:id", h.campaign.GetByID)
			campaigns.GET("/:id/total", h.campaign.GetTotal)
			campaigns.GET("/:id/stats", h.campaign.GetStats)
			campaigns.GET("/:id/events", h.campaign.GetEvents)

			campaigns.POST("/:id/contributions", h.contribution.Record)
			campaigns.GET("/:id/contributions", h.contribution.List)
			campaigns.GET("/:id/hall-of-fame", h.contribution.HallOfFame)

			campaigns.POST("/:id/settlement", h.settlement.Begin)
			campaigns.POST("/:id/settlement/resume", h.settlement.Resume)
			campaigns.GET("/:id/settlement", h.settlement.Get)
		}

		v1.GET("/contributors/:ref/contributions", h.contribution.ContributorHistory)
		v1.GET("/creators/:ref/summary", h.campaign.CreatorSummary)
	}

	r.GET("/health", healthHandler)
	r.GET("/ready", readinessHandler(logger, checks))
	r.GET("/metrics", gin.WrapH(m.Handler()))
}
