package routes

import (
	"github.com/julienschmidt/httprouter"

	"rueda/admin"
	"rueda/booking"
	"rueda/globals"
	"rueda/middleware"
	"rueda/ratelim"
)

// Authenticate runs first so the limiter can key on the caller's user id.
func participant(auth *middleware.Authenticator, rateLimiter *ratelim.RateLimiter, h httprouter.Handle) httprouter.Handle {
	return auth.Authenticate(rateLimiter.Limit(h))
}

func operator(auth *middleware.Authenticator, rateLimiter *ratelim.RateLimiter, h httprouter.Handle) httprouter.Handle {
	return auth.Authenticate(middleware.RequireRole(globals.RoleAdmin, rateLimiter.Limit(h)))
}

func AddBookingRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter, auth *middleware.Authenticator, h *booking.Handler) {
	router.POST("/api/meetings", participant(auth, rateLimiter, h.SendRequest))
	router.GET("/api/meetings", participant(auth, rateLimiter, h.ListRequests))
	router.POST("/api/meetings/:id/accept", participant(auth, rateLimiter, h.AcceptRequest))
	router.POST("/api/meetings/:id/reject", participant(auth, rateLimiter, h.RejectRequest))

	router.GET("/api/agenda/me", participant(auth, rateLimiter, h.MySchedule))
	router.GET("/api/agenda/me.pdf", participant(auth, rateLimiter, h.MySchedulePDF))
	router.GET("/api/slots/available", participant(auth, rateLimiter, h.AvailableSlots))
	router.GET("/api/participants", participant(auth, rateLimiter, h.SearchParticipants))

	router.GET("/api/notifications", participant(auth, rateLimiter, h.ListNotifications))
	router.POST("/api/notifications/read", participant(auth, rateLimiter, h.MarkRead))
}

func AddAdminRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter, auth *middleware.Authenticator, h *admin.Handler) {
	router.GET("/api/admin/config", operator(auth, rateLimiter, h.GetConfig))
	router.PUT("/api/admin/config", operator(auth, rateLimiter, h.PutConfig))
	router.POST("/api/admin/agenda/generate", operator(auth, rateLimiter, h.Generate))
	router.POST("/api/admin/agenda/reset", operator(auth, rateLimiter, h.Reset))
	router.GET("/api/admin/maintenance", operator(auth, rateLimiter, h.GetMaintenance))
	router.PUT("/api/admin/maintenance", operator(auth, rateLimiter, h.PutMaintenance))
	router.POST("/api/admin/meetings", operator(auth, rateLimiter, h.Assign))
	router.GET("/api/admin/slots", operator(auth, rateLimiter, h.ListSlots))
	router.POST("/api/admin/tickets/verify", operator(auth, rateLimiter, h.VerifyTicket))
}

// AddFeedRoutes mounts the websocket feed. The limiter only sees the
// handshake.
func AddFeedRoutes(router *httprouter.Router, rateLimiter *ratelim.RateLimiter, auth *middleware.Authenticator, h *booking.Handler) {
	router.GET("/ws/feed", participant(auth, rateLimiter, h.Feed()))
}
