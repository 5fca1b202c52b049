package controllers

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/payment"
	"github.com/velvetline/velvetline/internal/pkg/reservation"
)

// Engine bundles the long-lived domain services the HTTP handlers delegate
// to. It is wired once at startup.
type Engine struct {
	Reservations *reservation.Manager
	Lifecycle    *booking.Lifecycle
	Guard        *payment.Guard
	Webhooks     *payment.WebhookProcessor
}

var (
	engine   *Engine
	engineMu sync.RWMutex
)

var validate = validator.New()

// SetEngine installs the domain services used by all handlers.
func SetEngine(e *Engine) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engine = e
}

func getEngine() *Engine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return engine
}
