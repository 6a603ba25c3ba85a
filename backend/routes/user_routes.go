package routes

import (
	"net/http"

	"github.com/adlens/adlens/backend/handlers"
	middleware "github.com/adlens/adlens/backend/middlewares"
)

func RegisterUserRoutes(mux *http.ServeMux, uh *handlers.UserHandler, authMw *middleware.Authenticator) {
	mux.HandleFunc("POST /api/auth/signup", uh.Signup)
	mux.HandleFunc("POST /api/auth/login", uh.Login)
	mux.HandleFunc("POST /api/auth/logout", uh.Logout)
	mux.HandleFunc("POST /api/auth/refresh", uh.RefreshTokenVerify)
	mux.Handle("GET /api/auth/session", authMw.AuthMiddleware(http.HandlerFunc(uh.Session)))

	mux.Handle("GET /api/users/profile", authMw.AuthMiddleware(http.HandlerFunc(uh.GetProfile)))
	mux.Handle("PUT /api/users/profile", authMw.AuthMiddleware(http.HandlerFunc(uh.UpdateProfile)))
}
