package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volna-retail/loyalty-backend/api/controllers"
	"github.com/volna-retail/loyalty-backend/api/middleware"
	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/coupons"
	"github.com/volna-retail/loyalty-backend/internal/orders"
	"github.com/volna-retail/loyalty-backend/internal/points"
	"github.com/volna-retail/loyalty-backend/internal/scans"
	"github.com/volna-retail/loyalty-backend/pkg/config"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	pkgredis "github.com/volna-retail/loyalty-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *pkgredis.Client
	Gatherer prometheus.Gatherer

	Points  points.Service
	Coupons coupons.Service
	Scans   scans.Service
	Orders  orders.Service
	Audit   audit.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	scanPolicy := middleware.NewScanRateLimitPolicy(
		"scans",
		cfg.ScanRateLimit.Window,
		cfg.ScanRateLimit.IPLimit,
		cfg.ScanRateLimit.StoreLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		staffOrAdmin := middleware.RequireRole(logg,
			string(enums.OperatorTypeStaff),
			string(enums.OperatorTypeAdmin),
		)
		adminOnly := middleware.RequireRole(logg, string(enums.OperatorTypeAdmin))

		r.Route("/points", func(r chi.Router) {
			r.Use(staffOrAdmin)
			r.Post("/add", controllers.AddPoints(deps.Points, logg))
			r.Post("/deduct", controllers.DeductPoints(deps.Points, logg))
		})

		r.Route("/members/{memberID}", func(r chi.Router) {
			r.Get("/points/balance", controllers.GetPointsBalance(deps.Points, logg))
			r.Get("/points/history", controllers.GetPointsHistory(deps.Points, logg))
			r.Get("/coupons", controllers.ListMemberCoupons(deps.Coupons, logg))
			r.Get("/orders", controllers.ListMemberOrders(deps.Orders, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/{couponID}", controllers.GetCoupon(deps.Coupons, logg))
			r.Post("/{couponID}/use", controllers.UseCoupon(deps.Coupons, logg))
			r.With(adminOnly).Post("/freeze", controllers.FreezeCoupons(deps.Coupons, logg))
		})

		r.Route("/scans", func(r chi.Router) {
			r.With(middleware.ScanRateLimit(scanPolicy, deps.Redis, logg)).
				Post("/", controllers.LogScan(deps.Scans, logg))
			r.With(staffOrAdmin).Get("/unmatched", controllers.ListUnmatchedScans(deps.Scans, logg))
			r.With(staffOrAdmin).Post("/{scanID}/match", controllers.MatchScan(deps.Scans, logg))
		})

		r.Get("/campaign-codes/{codeID}/stats", controllers.GetCampaignCodeStats(deps.Scans, logg))

		r.Post("/checkout/quote", controllers.QuoteOrder(deps.Orders, logg))
		r.Post("/checkout", controllers.Checkout(deps.Orders, logg))
		r.Get("/orders/{orderID}", controllers.GetOrder(deps.Orders, logg))

		r.Route("/audit", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/verify", controllers.VerifyAuditChain(deps.Audit, logg))
			r.Get("/records/{table}/{recordID}", controllers.ListAuditTrail(deps.Audit, logg))
		})
	})

	return r
}
