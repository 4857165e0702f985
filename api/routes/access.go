package routes

import (
	"net/http"

	"github.com/angelmondragon/bookstore-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/bookstore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bookstore-backend/api/middleware"
)

// Access is the authorization a route requires.
type Access int

const (
	// AccessPublic needs no session.
	AccessPublic Access = iota
	// AccessSession needs a valid session token.
	AccessSession
	// AccessAdmin needs a valid session token carrying the admin role.
	AccessAdmin
	// AccessStripe is authenticated by the Stripe-Signature header inside the handler.
	AccessStripe
)

func (a Access) String() string {
	switch a {
	case AccessSession:
		return "session"
	case AccessAdmin:
		return "admin"
	case AccessStripe:
		return "stripe-signature"
	default:
		return "public"
	}
}

// Route is one row of the authorization table.
type Route struct {
	Method    string
	Pattern   string
	Access    Access
	RateLimit *middleware.AuthRateLimitPolicy
	Handler   http.HandlerFunc
}

// Table returns every API route with the access it requires. The router mounts
// exactly these rows, so this table is the authorization policy.
func Table(deps Dependencies) []Route {
	cfg := deps.Config
	logg := deps.Logger
	limits := middleware.PoliciesFromConfig(cfg.AuthRateLimit)

	return []Route{
		// accounts
		{Method: http.MethodPost, Pattern: "/api/user/register", Access: AccessPublic, RateLimit: &limits.Register, Handler: controllers.AuthRegister(deps.Auth, logg)},
		{Method: http.MethodPost, Pattern: "/api/user/login", Access: AccessPublic, RateLimit: &limits.Login, Handler: controllers.AuthLogin(deps.Auth, cfg.Cookie, logg)},
		{Method: http.MethodPost, Pattern: "/api/user/google-auth", Access: AccessPublic, Handler: controllers.AuthGoogle(deps.Auth, cfg.Cookie, logg)},
		{Method: http.MethodPost, Pattern: "/api/user/logout", Access: AccessPublic, Handler: controllers.AuthLogout(cfg.Cookie)},
		{Method: http.MethodPost, Pattern: "/api/user/forgot-password", Access: AccessPublic, RateLimit: &limits.Reset, Handler: controllers.AuthForgotPassword(deps.Auth, logg)},
		{Method: http.MethodPost, Pattern: "/api/user/reset-password/{token}", Access: AccessPublic, Handler: controllers.AuthResetPassword(deps.Auth, logg)},
		{Method: http.MethodGet, Pattern: "/api/user/me", Access: AccessSession, Handler: controllers.UserProfile(deps.Users, logg)},
		{Method: http.MethodPatch, Pattern: "/api/user/update-profile", Access: AccessSession, Handler: controllers.UserUpdateProfile(deps.Users, logg)},
		{Method: http.MethodPatch, Pattern: "/api/user/change-password", Access: AccessSession, Handler: controllers.UserChangePassword(deps.Users, logg)},
		{Method: http.MethodPatch, Pattern: "/api/user/deactivate", Access: AccessSession, Handler: controllers.UserDeactivate(deps.Users, cfg.Cookie, logg)},

		// notifications
		{Method: http.MethodGet, Pattern: "/api/user/notifications", Access: AccessSession, Handler: controllers.ListNotifications(deps.Notifications, logg)},
		{Method: http.MethodPatch, Pattern: "/api/user/notifications/read-all", Access: AccessSession, Handler: controllers.MarkAllNotificationsRead(deps.Notifications, logg)},
		{Method: http.MethodPatch, Pattern: "/api/user/notifications/{id}/read", Access: AccessSession, Handler: controllers.MarkNotificationRead(deps.Notifications, logg)},
		{Method: http.MethodDelete, Pattern: "/api/user/notifications", Access: AccessSession, Handler: controllers.ClearNotifications(deps.Notifications, logg)},

		// catalog
		{Method: http.MethodGet, Pattern: "/api/product/list", Access: AccessPublic, Handler: controllers.ListProducts(deps.Products, logg)},
		{Method: http.MethodGet, Pattern: "/api/product/{id}", Access: AccessPublic, Handler: controllers.GetProduct(deps.Products, logg)},
		{Method: http.MethodPost, Pattern: "/api/product/create", Access: AccessAdmin, Handler: controllers.CreateProduct(deps.Products, logg)},
		{Method: http.MethodPut, Pattern: "/api/product/update/{id}", Access: AccessAdmin, Handler: controllers.UpdateProduct(deps.Products, logg)},
		{Method: http.MethodDelete, Pattern: "/api/product/delete/{id}", Access: AccessAdmin, Handler: controllers.DeleteProduct(deps.Products, logg)},

		// cart
		{Method: http.MethodPost, Pattern: "/api/cart/add", Access: AccessSession, Handler: controllers.CartAdd(deps.Cart, logg)},
		{Method: http.MethodPatch, Pattern: "/api/cart/update", Access: AccessSession, Handler: controllers.CartUpdate(deps.Cart, logg)},
		{Method: http.MethodPost, Pattern: "/api/cart/sync", Access: AccessSession, Handler: controllers.CartSync(deps.Cart, logg)},
		{Method: http.MethodPost, Pattern: "/api/cart/delete-item", Access: AccessSession, Handler: controllers.CartDeleteItem(deps.Cart, logg)},
		{Method: http.MethodPost, Pattern: "/api/cart/get", Access: AccessSession, Handler: controllers.CartGet(deps.Cart, logg)},
		{Method: http.MethodGet, Pattern: "/api/cart/dashboard-stats", Access: AccessAdmin, Handler: controllers.DashboardStats(deps.Dashboard, logg)},

		// orders
		{Method: http.MethodPost, Pattern: "/api/order/place", Access: AccessSession, Handler: controllers.OrderPlace(deps.Orders, logg)},
		{Method: http.MethodPost, Pattern: "/api/order/stripe", Access: AccessSession, Handler: controllers.OrderStripe(deps.Orders, logg)},
		{Method: http.MethodPost, Pattern: "/api/order/verifystripe", Access: AccessStripe, Handler: webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSigner, deps.StripeGuard, logg)},
		{Method: http.MethodPost, Pattern: "/api/order/userorders", Access: AccessSession, Handler: controllers.OrdersForUser(deps.Orders, logg)},
		{Method: http.MethodPost, Pattern: "/api/order/status", Access: AccessAdmin, Handler: controllers.OrderUpdateStatus(deps.Orders, logg)},
		{Method: http.MethodPost, Pattern: "/api/order/list", Access: AccessAdmin, Handler: controllers.OrdersListAll(deps.Orders, logg)},

		// admin
		{Method: http.MethodPost, Pattern: "/api/auth/admin-login", Access: AccessPublic, RateLimit: &limits.Login, Handler: controllers.AdminAuthLogin(deps.Auth, cfg.Cookie, logg)},
		{Method: http.MethodGet, Pattern: "/api/auth/users", Access: AccessAdmin, Handler: controllers.AdminListUsers(deps.Users, logg)},
		{Method: http.MethodPatch, Pattern: "/api/auth/update/{id}", Access: AccessAdmin, Handler: controllers.AdminUpdateUser(deps.Users, logg)},
		{Method: http.MethodPatch, Pattern: "/api/auth/reactivate/{id}", Access: AccessAdmin, Handler: controllers.AdminReactivateUser(deps.Users, logg)},
		{Method: http.MethodDelete, Pattern: "/api/auth/users/{id}", Access: AccessAdmin, Handler: controllers.AdminDeleteUser(deps.Users, logg)},
		{Method: http.MethodGet, Pattern: "/api/auth/dashboard-stats", Access: AccessAdmin, Handler: controllers.DashboardStats(deps.Dashboard, logg)},
		{Method: http.MethodGet, Pattern: "/api/auth/activities", Access: AccessAdmin, Handler: controllers.DashboardActivities(deps.Dashboard, logg)},
	}
}
