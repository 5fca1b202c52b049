package models

import "time"

// DailyStats aggregates booking and payment activity for a single day.
type DailyStats struct {
	Date            time.Time `json:"date"`
	BookingsCreated int64     `json:"bookings_created"`
	BookingsPaid    int64     `json:"bookings_paid"`
	BookingsExpired int64     `json:"bookings_expired"`
	PaymentsPending int64     `json:"payments_pending"`
	PaymentsFailed  int64     `json:"payments_failed"`
	TicketsSold     int64     `json:"tickets_sold"`
	RevenueCents    int64     `json:"revenue_cents"`
}
