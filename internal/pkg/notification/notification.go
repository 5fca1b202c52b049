package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/mail"
)

// Event carries the payload of a buyer-facing notification.
type Event struct {
	UserID       uint
	BookingCode  string
	EventContext string
}

// Sink receives payment reminder and payment expired events produced by the
// booking lifecycle. Delivery (push, email) is the sink's concern; the
// engine only emits.
type Sink interface {
	PaymentReminder(ctx context.Context, ev Event) error
	PaymentExpired(ctx context.Context, ev Event) error
}

// DBSink persists notification rows and forwards reminder/expiry mails to
// the buyer when an address is on file.
type DBSink struct {
	db *gorm.DB
}

// NewDBSink creates the default sink backed by the notifications table.
func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) PaymentReminder(ctx context.Context, ev Event) error {
	_ = ctx
	content := fmt.Sprintf("Your booking %s for %s is still awaiting payment. Complete it before it expires.", ev.BookingCode, ev.EventContext)
	if err := models.CreateNotification(s.db, ev.UserID, models.NotificationTypePaymentReminder, ev.BookingCode, ev.EventContext, content); err != nil {
		return err
	}
	s.mailUser(ev.UserID, "Payment reminder for "+ev.BookingCode, content)
	return nil
}

func (s *DBSink) PaymentExpired(ctx context.Context, ev Event) error {
	_ = ctx
	content := fmt.Sprintf("Your booking %s for %s expired because payment was not completed in time.", ev.BookingCode, ev.EventContext)
	if err := models.CreateNotification(s.db, ev.UserID, models.NotificationTypePaymentExpired, ev.BookingCode, ev.EventContext, content); err != nil {
		return err
	}
	s.mailUser(ev.UserID, "Booking "+ev.BookingCode+" expired", content)
	return nil
}

// mailUser delivers best-effort; a failed mail never fails the transition
// that produced the event.
func (s *DBSink) mailUser(userID uint, subject, body string) {
	var user models.User
	if err := s.db.Select("id", "email").First(&user, userID).Error; err != nil {
		log.Errorf("[Notification] User %d lookup failed: %v", userID, err)
		return
	}
	if user.Email == "" {
		return
	}
	if err := mail.SendMail(user.Email, subject, body); err != nil {
		log.Errorf("[Notification] Mail to user %d failed: %v", userID, err)
	}
}

// MemorySink collects events in memory for tests.
type MemorySink struct {
	mu        sync.Mutex
	Reminders []Event
	Expired   []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) PaymentReminder(ctx context.Context, ev Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reminders = append(s.Reminders, ev)
	return nil
}

func (s *MemorySink) PaymentExpired(ctx context.Context, ev Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Expired = append(s.Expired, ev)
	return nil
}
