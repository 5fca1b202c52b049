package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/app/repository"
	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/reservation"
	"github.com/velvetline/velvetline/internal/pkg/usercontext"
)

// CreateBookingRequest is the checkout payload.
type CreateBookingRequest struct {
	AccessTierID uint `json:"access_tier_id" validate:"required,min=1"`
	Quantity     int  `json:"quantity" validate:"required,min=1,max=10"`
}

// HandleCreateBooking reserves stock and opens a PENDING booking with a
// payment intent. Insufficient stock is a client error, not a server one.
func HandleCreateBooking(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	settings := models.GetAppSettings()
	if !settings.IsCheckoutEnabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "checkout_disabled", "message": "Checkout is temporarily disabled"})
	}

	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	eng := getEngine()
	ttl := settings.GetBookingTTL()

	b, err := eng.Lifecycle.Create(c.UserContext(), booking.CreateInput{
		UserID:       userCtx.UserID,
		AccessTierID: req.AccessTierID,
		Quantity:     req.Quantity,
		TTL:          ttl,
	})
	if err != nil {
		if reservation.IsInsufficientStock(err) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient_stock", "message": err.Error()})
		}
		if errors.Is(err, reservation.ErrTierNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Access tier not found"})
		}
		fiberlog.Errorf("[Booking] Checkout failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Checkout failed"})
	}

	intent, err := eng.Guard.StartPayment(c.UserContext(), b, ttl)
	if err != nil {
		// Booking stays PENDING; the expiry sweep reclaims it if the buyer
		// never retries payment.
		fiberlog.Errorf("[Booking] Payment intent creation failed for %s: %v", b.BookingCode, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_init_failed", "message": "Booking created but payment could not be initialized"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"booking":           serializeBooking(b),
		"payment_reference": intent.ReferenceID,
	})
}

// HandleGetBooking returns one booking by its external code. Users only see
// their own bookings; admins see all.
func HandleGetBooking(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing booking code"})
	}

	repo := repository.GetGlobalFactory().GetBookingRepository()
	b, err := repo.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Booking not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load booking"})
	}
	if b.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Booking not found"})
	}

	return c.JSON(serializeBooking(b))
}

// HandleListMyBookings returns the authenticated user's bookings.
func HandleListMyBookings(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	repo := repository.GetGlobalFactory().GetBookingRepository()
	bookings, err := repo.GetByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load bookings"})
	}

	items := make([]fiber.Map, 0, len(bookings))
	for i := range bookings {
		items = append(items, serializeBooking(&bookings[i]))
	}
	return c.JSON(fiber.Map{"bookings": items, "offset": offset, "limit": limit})
}

func serializeBooking(b *models.Booking) fiber.Map {
	out := fiber.Map{
		"booking_code":   b.BookingCode,
		"access_tier_id": b.AccessTierID,
		"quantity":       b.Quantity,
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
		"total_amount":   b.TotalAmount,
		"expires_at":     b.ExpiresAt,
		"created_at":     b.CreatedAt,
	}
	if b.AccessTier.ID != 0 {
		out["access_tier"] = fiber.Map{
			"name":        b.AccessTier.Name,
			"price_cents": b.AccessTier.PriceCents,
		}
		if b.AccessTier.Event.ID != 0 {
			out["event"] = fiber.Map{
				"id":        b.AccessTier.Event.ID,
				"title":     b.AccessTier.Event.Title,
				"starts_at": b.AccessTier.Event.StartsAt,
			}
		}
	}
	return out
}
