package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/velvetline/velvetline/app/controllers"
	"github.com/velvetline/velvetline/internal/pkg/constants"
	"github.com/velvetline/velvetline/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIPrefix, limiter.New(limiter.Config{Max: 120}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "velvetline api v1",
		})
	})

	// Public surface: catalog, registration and the gateway callback.
	api.Get(constants.RouteEvents, controllers.HandleListEvents)
	api.Get(constants.RouteEventByID, controllers.HandleGetEvent)
	api.Post("/register", controllers.HandleRegister)
	api.Post(constants.RouteWebhook, controllers.HandlePaymentWebhook)

	// Authenticated surface.
	authed := api.Group("", middleware.APIKeyAuthMiddleware())
	authed.Get("/account", controllers.HandleGetAccount)
	authed.Post("/account/api-key", controllers.HandleRotateAPIKey)
	authed.Post(constants.RouteCheckout, controllers.HandleCreateBooking)
	authed.Get(constants.RouteCheckout, controllers.HandleListMyBookings)
	authed.Get(constants.RouteBookingByCode, controllers.HandleGetBooking)
	authed.Post(constants.RouteReservations, controllers.HandleCreateReservation)
	authed.Delete(constants.RouteReservationByID, controllers.HandleReleaseReservation)

	// Admin surface.
	admin := authed.Group("", middleware.AdminOnlyMiddleware())
	admin.Post(constants.RouteAdminCancelBooking, controllers.HandleAdminCancelBooking)
	admin.Post(constants.RouteAdminRunCycle, controllers.HandleAdminRunCycle)
	admin.Get(constants.RouteAdminStats, controllers.HandleAdminStats)
	admin.Get("/admin/inventory/check", controllers.HandleAdminInventoryCheck)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
