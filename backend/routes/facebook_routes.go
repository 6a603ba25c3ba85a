package routes

import (
	"net/http"

	"github.com/adlens/adlens/backend/handlers"
	middleware "github.com/adlens/adlens/backend/middlewares"
)

func FacebookRoutes(mux *http.ServeMux, fh *handlers.FacebookHandler, authMw *middleware.Authenticator) {
	mux.Handle("POST /api/facebook/connect", authMw.AuthMiddleware(http.HandlerFunc(fh.Connect)))
	mux.Handle("DELETE /api/facebook/connect", authMw.AuthMiddleware(http.HandlerFunc(fh.Disconnect)))
	mux.Handle("GET /api/facebook/ad-accounts", authMw.AuthMiddleware(http.HandlerFunc(fh.AdAccounts)))
	mux.Handle("GET /api/facebook/campaigns", authMw.AuthMiddleware(http.HandlerFunc(fh.Campaigns)))
	mux.Handle("GET /api/facebook/metrics", authMw.AuthMiddleware(http.HandlerFunc(fh.Metrics)))
	mux.Handle("GET /api/facebook/creatives", authMw.AuthMiddleware(http.HandlerFunc(fh.Creatives)))
}
