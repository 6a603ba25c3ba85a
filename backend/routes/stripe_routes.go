package routes

import (
	"net/http"

	"github.com/adlens/adlens/backend/handlers"
	middleware "github.com/adlens/adlens/backend/middlewares"
)

func StripeRoutes(mux *http.ServeMux, s *handlers.Stripe, authMw *middleware.Authenticator) {
	mux.HandleFunc("POST /api/stripe/webhook", s.HandleWebhook)

	mux.Handle("POST /api/stripe/customer", authMw.AuthMiddleware(http.HandlerFunc(s.CreateCustomer)))
	mux.Handle("POST /api/stripe/checkout", authMw.AuthMiddleware(http.HandlerFunc(s.CreateCheckoutSession)))
	mux.Handle("POST /api/stripe/portal", authMw.AuthMiddleware(http.HandlerFunc(s.CreatePortalSession)))
	mux.Handle("POST /api/stripe/cancel-subscription", authMw.AuthMiddleware(http.HandlerFunc(s.CancelSubscription)))
	mux.Handle("GET /api/stripe/subscription", authMw.AuthMiddleware(http.HandlerFunc(s.GetSubscription)))

	mux.Handle("GET /api/payment-methods", authMw.AuthMiddleware(http.HandlerFunc(s.ListPaymentMethods)))
	mux.Handle("POST /api/payment-methods", authMw.AuthMiddleware(http.HandlerFunc(s.AttachPaymentMethod)))
	mux.Handle("PUT /api/payment-methods/{id}/default", authMw.AuthMiddleware(http.HandlerFunc(s.SetDefaultPaymentMethod)))
	mux.Handle("DELETE /api/payment-methods/{id}", authMw.AuthMiddleware(http.HandlerFunc(s.DeletePaymentMethod)))

	mux.Handle("GET /api/invoices", authMw.AuthMiddleware(http.HandlerFunc(s.ListInvoices)))
	mux.Handle("POST /api/invoices/sync", authMw.AuthMiddleware(http.HandlerFunc(s.SyncInvoices)))
}
