package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/velvetline/velvetline/app/controllers"
	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/app/repository"
	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/cache"
	"github.com/velvetline/velvetline/internal/pkg/clock"
	"github.com/velvetline/velvetline/internal/pkg/database"
	"github.com/velvetline/velvetline/internal/pkg/env"
	"github.com/velvetline/velvetline/internal/pkg/notification"
	"github.com/velvetline/velvetline/internal/pkg/payment"
	"github.com/velvetline/velvetline/internal/pkg/reservation"
	"github.com/velvetline/velvetline/internal/pkg/retention"
	"github.com/velvetline/velvetline/internal/pkg/router"
	"github.com/velvetline/velvetline/internal/pkg/scheduler"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	scheduler.GetManager().Stop()
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	if err := models.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
	}

	// Domain services share one clock so tests can replace time wholesale.
	clk := clock.NewSystem()
	reservations := reservation.NewManager(db, clk)
	sink := notification.NewDBSink(db)
	lifecycle := booking.NewLifecycle(db, reservations, sink, clk)
	paymentRepo := payment.NewRepository(db)
	gateway := payment.NewGatewayClientFromEnv()
	guard := payment.NewGuard(db, paymentRepo, gateway, lifecycle, clk)
	webhooks := payment.NewWebhookProcessor(db, paymentRepo, lifecycle)
	rotator := retention.NewRotator(db, clk)

	engine := scheduler.New(db, clk)
	scheduler.RegisterEngineTasks(engine, guard, reservations, lifecycle, rotator)
	scheduler.GetManager().Configure(engine, guard)
	scheduler.GetManager().Start()

	controllers.SetEngine(&controllers.Engine{
		Reservations: reservations,
		Lifecycle:    lifecycle,
		Guard:        guard,
		Webhooks:     webhooks,
	})

	app := fiber.New(fiber.Config{
		AppName:   "velvetline",
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
