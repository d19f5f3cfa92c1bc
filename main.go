package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/utils"

	"schoolbill_backend/internals/configs"
	database "schoolbill_backend/internals/databases"
	"schoolbill_backend/internals/features/billing/gateway"
	invsvc "schoolbill_backend/internals/features/billing/invoices/service"
	"schoolbill_backend/internals/features/billing/notify"
	paysvc "schoolbill_backend/internals/features/billing/payments/service"
	"schoolbill_backend/internals/features/billing/reconcile"
	middlewares "schoolbill_backend/internals/middlewares"
	"schoolbill_backend/internals/observability"
	routes "schoolbill_backend/internals/route"
)

func main() {
	configs.LoadEnv()

	app := fiber.New(fiber.Config{
		// 🚀 JSON super cepat
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
	})

	// ⚙️ middleware dasar + performa
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault})) // gzip
	app.Use(etag.New())                                                  // 304 caching

	// 🔎 Request-ID + timing (observability ringan)
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = utils.UUID()
		}
		c.Set("X-Request-ID", id)
		c.Locals("reqid", id)
		start := time.Now()
		ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
		defer cancel()
		c.SetUserContext(ctx)
		err := c.Next()
		dur := time.Since(start)
		log.Printf("[REQ] id=%s %s %s status=%d dur=%s", id, c.Method(), c.OriginalURL(), c.Response().StatusCode(), dur)
		return err
	})

	app.Use(middlewares.RecoveryMiddleware())
	app.Use(middlewares.CorsMiddleware())
	app.Use(middlewares.GlobalRateLimiter())

	// 🔌 DB connect + pool + migrasi
	database.ConnectDB()
	database.TunePool()
	if err := database.RunMigrations(database.DB); err != nil {
		log.Fatalf("❌ Migrasi gagal: %v", err)
	}

	// ===================== Billing core =====================
	billingCfg := configs.LoadBilling()

	store := paysvc.NewGormStore(database.DB)
	applicator := paysvc.NewApplicator(store, notify.LogNotifier{})
	invoiceSvc := invsvc.NewInvoiceService(database.DB)

	registry := gateway.NewRegistry(
		gateway.NewMpesaProvider(configs.LoadMpesa(), billingCfg.GatewayTimeout),
		gateway.NewCardProProvider(configs.LoadCardPro(), billingCfg.GatewayTimeout),
		gateway.NewMidtransProvider(configs.LoadMidtrans()),
	)

	// ⏱ scheduler: reconcile payment pending + sweep invoice overdue
	schedCtx, stopSched := context.WithCancel(context.Background())
	scheduler := reconcile.NewScheduler(store, applicator, registry, invoiceSvc.SweepOverdue, billingCfg)
	scheduler.Start(schedCtx)

	// ❤️ Health check (anti-cold start)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	// 📈 Prometheus
	app.Get("/metrics", observability.MetricsHandler())

	// ✅ Routes
	routes.SetupRoutes(app, database.DB, applicator, registry)

	// 🔒 Keep-Alive & timeout koneksi server
	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	// Start server non-blocking
	go func() {
		log.Printf("✅ Listening on :%s", port)
		if err := app.Listen("0.0.0.0:" + port); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown: stop scheduler dulu, lalu server, lalu pool DB
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSched()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
