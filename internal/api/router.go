package api

import (
	"net/http"

	"github.com/evetabi/settlement/internal/api/handler"
	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/service"
	"github.com/evetabi/settlement/internal/ws"
	"github.com/gin-gonic/gin"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc       *service.AuthService
	MarketSvc     *service.MarketService
	TradeSvc      *service.TradeService
	LiquiditySvc  *service.LiquidityService
	ResolutionSvc *service.ResolutionService
	DisputeSvc    *service.DisputeService
	SettlementSvc *service.SettlementService
	Hub           *ws.Hub
	Limiter       middleware.Limiter // nil disables rate limiting
	Cfg           *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware and CORS rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	marketH := handler.NewMarketHandler(deps.MarketSvc)
	tradeH := handler.NewTradeHandler(deps.TradeSvc)
	liquidityH := handler.NewLiquidityHandler(deps.LiquiditySvc)
	resolutionH := handler.NewResolutionHandler(deps.ResolutionSvc)
	disputeH := handler.NewDisputeHandler(deps.DisputeSvc)
	settlementH := handler.NewSettlementHandler(deps.SettlementSvc)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	api := r.Group("/api")
	{
		// ── Public reads ─────────────────────────────────────────────────────
		api.GET("/markets", marketH.ListMarkets)
		api.GET("/markets/:id", marketH.GetByID)
		api.GET("/markets/:id/quote", marketH.Quote)
		api.GET("/markets/:id/settlements", settlementH.ListByMarket)
		api.GET("/settlements/:id/verify", settlementH.Verify)

		// ── Authenticated routes ──────────────────────────────────────────────
		markets := api.Group("/markets")
		markets.Use(jwtMW, middleware.RateLimitMiddleware("api", deps.Limiter))
		{
			markets.POST("", marketH.Create)

			// Liquidity
			markets.POST("/:id/liquidity", liquidityH.Add)
			markets.POST("/:id/liquidity/withdraw", liquidityH.Withdraw)
			markets.POST("/:id/liquidity/claim", liquidityH.Claim)
			markets.GET("/:id/liquidity/me", liquidityH.Mine)
			markets.GET("/:id/holdings/me", tradeH.Holdings)

			// Options
			opt := markets.Group("/:id/options/:optionId")
			{
				opt.POST("/buy", tradeH.Buy)
				opt.POST("/sell", tradeH.Sell)
				opt.POST("/resolve", resolutionH.Resolve)
				opt.POST("/submissions", resolutionH.Submit)
				opt.POST("/disputes", disputeH.File)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only
// Server.AllowedOrigins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
