package routes

import (
	"github.com/julienschmidt/httprouter"

	"rueda/admin"
	"rueda/booking"
	"rueda/middleware"
	"rueda/ratelim"
)

func RoutesWrapper(router *httprouter.Router, rateLimiter *ratelim.RateLimiter, auth *middleware.Authenticator, bh *booking.Handler, ah *admin.Handler) {
	AddBookingRoutes(router, rateLimiter, auth, bh)
	AddAdminRoutes(router, rateLimiter, auth, ah)
	AddFeedRoutes(router, rateLimiter, auth, bh)
}
