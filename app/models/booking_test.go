package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateBookingCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateBookingCode()
		assert.True(t, strings.HasPrefix(code, "VL-"))
		assert.Len(t, code, 15)
		assert.False(t, seen[code], "booking codes must not repeat")
		seen[code] = true
	}
}

func TestBookingIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{status: BookingStatusPending, want: false},
		{status: BookingStatusPaid, want: true},
		{status: BookingStatusCancelled, want: true},
		{status: BookingStatusExpired, want: true},
	}

	for _, tt := range tests {
		b := Booking{Status: tt.status}
		if got := b.IsTerminal(); got != tt.want {
			t.Fatalf("IsTerminal() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAccessTierQuantitiesConsistent(t *testing.T) {
	tests := []struct {
		name string
		tier AccessTier
		want bool
	}{
		{name: "untouched", tier: AccessTier{TotalQuantity: 100, AvailableQuantity: 100}, want: true},
		{name: "partially sold", tier: AccessTier{TotalQuantity: 100, SoldQuantity: 40, AvailableQuantity: 60}, want: true},
		{name: "negative available", tier: AccessTier{TotalQuantity: 100, SoldQuantity: 40, AvailableQuantity: -1}, want: false},
		{name: "oversold", tier: AccessTier{TotalQuantity: 100, SoldQuantity: 80, AvailableQuantity: 30}, want: false},
	}

	for _, tt := range tests {
		if got := tt.tier.QuantitiesConsistent(); got != tt.want {
			t.Fatalf("%s: QuantitiesConsistent() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
