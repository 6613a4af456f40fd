package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/admin"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/audit"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/auth"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/balance"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/config"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/dashboard"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/database"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/events"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/httperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/ledger"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/logging"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/mail"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/notify"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/storage"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/voucher"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	expvarmw "github.com/gofiber/fiber/v2/middleware/expvar"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database.Init(cfg)
	db := database.DB

	bus := events.NewBus(logger.Named("events"))
	auditWriter := audit.NewWriter(db, logger.Named("audit"))

	mailer := mail.New(mail.SMTPConfig{
		Host:   cfg.SMTPHost,
		Port:   cfg.SMTPPort,
		User:   cfg.SMTPUser,
		Pass:   cfg.SMTPPass,
		Sender: cfg.SMTPSender,
	}, logger.Named("mail"))

	notifier := notify.NewService(db, mailer, logger.Named("notify"))
	bus.Subscribe("notify", notifier.HandleEvent)

	allocator := voucher.NewAllocator(voucher.NewGormStore(db), logger.Named("voucher"))
	balances := balance.NewService(db, auditWriter, logger.Named("balance"))
	ledgerSvc := ledger.NewService(ledger.Options{
		DB:       db,
		Vouchers: allocator,
		Balances: balances,
		Events:   bus,
		Audit:    auditWriter,
		Policy: ledger.Policy{
			Limit:        cfg.AutoApproveLimit,
			TrustedRoles: cfg.AutoApproveRoles,
		},
		Log: logger.Named("ledger"),
	})
	signer := storage.NewSigner(cfg.StorageBaseURL, cfg.StorageSigningKey)

	app := fiber.New(fiber.Config{
		ErrorHandler: httperr.Handler(logger.Named("http")),
	})

	app.Use(recover.New())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	// /debug/vars
	app.Use(expvarmw.New())

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg.JWTSecret))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler(db))

	verifiers := auth.RequireRole(models.RoleAdmin, models.RoleAccountant)

	// Vouchers & cashbook
	protected.Post("/vouchers/allocate", voucher.AllocateHandler(allocator))
	protected.Post("/cash-transactions", ledger.SubmitHandler(ledgerSvc))
	protected.Get("/cash-transactions", ledger.ListHandler(ledgerSvc))
	protected.Get("/cash-transactions/export", ledger.ExportHandler(ledgerSvc))
	protected.Get("/cash-transactions/:id", ledger.GetHandler(ledgerSvc))
	protected.Post("/cash-transactions/approve", verifiers, ledger.ApproveHandler(ledgerSvc))
	protected.Post("/cash-transactions/reject", verifiers, ledger.RejectHandler(ledgerSvc))
	protected.Get("/branches/:branch/running-balance", ledger.RunningBalanceHandler(ledgerSvc))

	// Dashboard
	protected.Get("/dashboard/cash-chart", dashboard.CashChartHandler(ledgerSvc))

	// Opening balances
	protected.Get("/opening-balances", balance.ListBalancesHandler(balances))
	protected.Get("/opening-balances/:branch", balance.GetBalanceHandler(balances))
	protected.Post("/opening-balances/entries", verifiers, balance.AppendEntryHandler(balances))

	// Notifications
	protected.Get("/notifications", notify.ListHandler(notifier))
	protected.Post("/notifications/notify", verifiers, notify.NotifyHandler(notifier))
	protected.Post("/notifications/:id/view", notify.MarkViewedHandler(notifier))

	// Attachments
	protected.Post("/storage/sign", storage.SignHandler(signer))

	// Peer cache invalidation
	protected.Get("/events", events.StreamHandler(bus))

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/staff", admin.CreateStaffHandler(db))
	adminRoutes.Get("/staff", admin.ListStaffHandler(db))
	adminRoutes.Put("/staff/:id", admin.UpdateStaffHandler(db))
	adminRoutes.Post("/opening-balances", balance.CreateBalanceHandler(balances))
	adminRoutes.Post("/opening-balances/:branch/reconcile", balance.ReconcileHandler(balances))
	adminRoutes.Get("/audit-logs", audit.ListAuditLogsHandler(db))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down")
		bus.Close()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
