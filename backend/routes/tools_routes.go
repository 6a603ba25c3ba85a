package routes

import (
	"net/http"

	"github.com/adlens/adlens/backend/handlers"
	middleware "github.com/adlens/adlens/backend/middlewares"
)

func ToolRoutes(mux *http.ServeMux, ah *handlers.AnalysisHandler, eh *handlers.ExportHandler, authMw *middleware.Authenticator) {
	mux.Handle("POST /api/ai/analyze", authMw.AuthMiddleware(http.HandlerFunc(ah.Analyze)))
	mux.Handle("POST /api/export/campaigns", authMw.AuthMiddleware(http.HandlerFunc(eh.ExportCampaigns)))
}
