package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotificationTypePaymentReminder = "payment_reminder"
	NotificationTypePaymentExpired  = "payment_expired"
)

// Notification is the persisted record of an outbound buyer notification
// (payment reminder or payment expired). Delivery itself happens through the
// notification sink; this row is the audit trail for it.
type Notification struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"index" json:"user_id"`
	User         User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type         string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=payment_reminder payment_expired"`
	BookingCode  string         `gorm:"type:varchar(20);index" json:"booking_code"`
	EventContext string         `gorm:"type:varchar(255)" json:"event_context"`
	Content      string         `gorm:"type:text" json:"content"`
	IsRead       bool           `gorm:"default:false" json:"is_read"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkAsRead flags a notification as seen by the user.
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}

// CreateNotification stores a new outbound notification record.
func CreateNotification(db *gorm.DB, userID uint, notificationType, bookingCode, eventContext, content string) error {
	notification := Notification{
		UserID:       userID,
		Type:         notificationType,
		BookingCode:  bookingCode,
		EventContext: eventContext,
		Content:      content,
		IsRead:       false,
	}

	return db.Create(&notification).Error
}
