package constants

// Route paths shared between router installation and controllers.
const (
	APIPrefix = "/api/v1"

	RouteCheckout        = "/bookings"
	RouteBookingByCode   = "/bookings/:code"
	RouteReservations    = "/reservations"
	RouteReservationByID = "/reservations/:token"
	RouteWebhook         = "/webhooks/payment"
	RouteEvents          = "/events"
	RouteEventByID       = "/events/:id"

	RouteAdminCancelBooking = "/admin/bookings/:code/cancel"
	RouteAdminRunCycle      = "/admin/reconcile/run"
	RouteAdminStats         = "/admin/stats/daily"
)
