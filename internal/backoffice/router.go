package backoffice

import (
	"net/http"
	"strings"

	"github.com/evetabi/settlement/internal/api/middleware"
	"github.com/evetabi/settlement/internal/backoffice/handler"
	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/gin-gonic/gin"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc       *service.AuthService
	MarketSvc     *service.MarketService
	LiquiditySvc  *service.LiquidityService
	ResolutionSvc *service.ResolutionService
	DisputeSvc    *service.DisputeService
	SettlementSvc *service.SettlementService
	Cfg           *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.MarketSvc, deps.DisputeSvc)
	marketH := handler.NewMarketAdminHandler(deps.MarketSvc, deps.LiquiditySvc, deps.ResolutionSvc, deps.SettlementSvc)
	disputeH := handler.NewDisputeAdminHandler(deps.DisputeSvc)

	// Reads are open to every back-office role; decisions need admin.
	adminOnly := middleware.RoleMiddleware(domain.RoleAdmin)

	admin := r.Group("/admin")
	admin.Use(middleware.JWTMiddleware(deps.AuthSvc), middleware.BackofficeMiddleware())
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Markets
		m := admin.Group("/markets")
		{
			m.GET("", marketH.List)
			m.GET("/:id", marketH.Detail)
			m.GET("/:id/settlements", marketH.Settlements)
			m.GET("/:id/liquidity", marketH.Liquidity)
			m.GET("/:id/options/:optionId/submissions", marketH.Submissions)
			m.POST("/:id/options/:optionId/resolve", adminOnly, marketH.Resolve)
		}

		// Disputes
		d := admin.Group("/disputes")
		{
			d.GET("", disputeH.List)
			d.GET("/:id", disputeH.Detail)
			d.POST("/:id/review", adminOnly, disputeH.Review)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: your IP is not whitelisted",
			})
			return
		}
		c.Next()
	}
}
