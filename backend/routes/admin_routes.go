package routes

import (
	"net/http"

	"github.com/adlens/adlens/backend/handlers"
	middleware "github.com/adlens/adlens/backend/middlewares"
)

func AdminRoutes(mux *http.ServeMux, mh *handlers.MaintenanceHandler, adminToken string) {
	admin := middleware.AdminOnly(adminToken)

	mux.Handle("POST /api/admin/db/migrate", admin(http.HandlerFunc(mh.Migrate)))
	mux.Handle("GET /api/admin/db/status", admin(http.HandlerFunc(mh.Status)))
	mux.Handle("GET /api/admin/db/ping", admin(http.HandlerFunc(mh.Ping)))

	mux.HandleFunc("GET /api/health", mh.Health)
}
