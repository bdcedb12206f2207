package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stallpay/stallpay/internal/audit"
	"github.com/stallpay/stallpay/internal/config"
	"github.com/stallpay/stallpay/internal/deposit"
	"github.com/stallpay/stallpay/internal/identity"
	"github.com/stallpay/stallpay/internal/ledger"
	"github.com/stallpay/stallpay/internal/market"
	"github.com/stallpay/stallpay/internal/middleware"
	"github.com/stallpay/stallpay/internal/notification"
	"github.com/stallpay/stallpay/internal/payout"
	"github.com/stallpay/stallpay/internal/tier"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Postgres and Redis may be absent only in development.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Stores and services.
	var store ledger.Store
	var depositRepo deposit.Repository
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		depositRepo = deposit.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewMemoryStore()
		depositRepo = deposit.NewMemoryRepository()
	}

	engine := ledger.NewEngine(store, ledger.FeeSchedule{
		MarkupBps:          d.Cfg.MarkupBps,
		PlatformFeeBps:     d.Cfg.PlatformFeeBps,
		SubscriptionFeeBps: d.Cfg.SubscriptionFeeBps,
		MinFeeCents:        d.Cfg.MinFeeCents,
	})
	notifier := notification.NewLoggerNotifier(d.Logger)
	tierSource := tier.NewStaticSource(tier.NewLedgerVolumes(store), tier.DefaultThresholds())

	marketSvc := market.NewService(engine, tierSource, notifier)
	payoutSvc := payout.NewService(engine, payout.StaticRail{}, notifier)
	depositSvc := deposit.NewService(depositRepo, nil, nil, engine, notifier, deposit.Config{
		MinAmountCents: d.Cfg.DepositMinCents,
		MaxAmountCents: d.Cfg.DepositMaxCents,
		TTL:            d.Cfg.DepositTTL,
	}, d.Logger)
	reconciler := audit.NewReconciler(store)
	detector := audit.NewDetector(store, audit.DefaultThresholds())

	ledgerHandler := ledger.NewHandler(engine)
	marketHandler := market.NewHandler(marketSvc)
	payoutHandler := payout.NewHandler(payoutSvc)
	depositHandler := deposit.NewHandler(depositSvc)
	auditHandler := audit.NewHandler(reconciler, detector)

	api := app.Group("/api/v1")

	// Authenticated user surface. The identity layer upstream resolves the
	// (username, role) pair; this service trusts it.
	authed := api.Group("", identity.Middleware())
	RegisterLedgerRoutes(authed, ledgerHandler)
	RegisterMarketRoutes(authed, marketHandler)
	RegisterWithdrawalRoutes(authed, payoutHandler, middleware.WithdrawRateLimit(d.Cache, d.Cfg.WithdrawMaxPerMin))
	RegisterDepositRoutes(authed, depositHandler)

	// Admin surface.
	admin := api.Group("/admin", middleware.AdminKey(d.Cfg.AdminKeyHash))
	RegisterAdminRoutes(admin, ledgerHandler, payoutHandler, depositHandler, auditHandler)

	return nil
}
