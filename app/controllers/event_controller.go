package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/app/repository"
	metrics "github.com/velvetline/velvetline/internal/pkg/metrics/counter"
)

// HandleListEvents returns published events with their active tiers.
func HandleListEvents(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	repo := repository.GetGlobalFactory().GetEventRepository()
	events, err := repo.GetPublished(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load events"})
	}

	items := make([]fiber.Map, 0, len(events))
	for i := range events {
		items = append(items, serializeEvent(&events[i]))
	}
	return c.JSON(fiber.Map{"events": items, "offset": offset, "limit": limit})
}

// HandleGetEvent returns one event with all its tiers and records a view on
// each tier through the buffered counter.
func HandleGetEvent(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid event id"})
	}

	repo := repository.GetGlobalFactory().GetEventRepository()
	event, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Event not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load event"})
	}

	for i := range event.AccessTiers {
		if err := metrics.AddTierView(event.AccessTiers[i].ID); err != nil {
			fiberlog.Debugf("[Event] View counter unavailable: %v", err)
			break
		}
	}

	return c.JSON(serializeEvent(event))
}

func serializeEvent(e *models.Event) fiber.Map {
	tiers := make([]fiber.Map, 0, len(e.AccessTiers))
	for i := range e.AccessTiers {
		t := &e.AccessTiers[i]
		tiers = append(tiers, fiber.Map{
			"id":                 t.ID,
			"name":               t.Name,
			"price_cents":        t.PriceCents,
			"available_quantity": t.AvailableQuantity,
			"is_active":          t.IsActive,
		})
	}
	return fiber.Map{
		"id":           e.ID,
		"title":        e.Title,
		"venue":        e.Venue,
		"description":  e.Description,
		"starts_at":    e.StartsAt,
		"status":       e.Status,
		"access_tiers": tiers,
	}
}
