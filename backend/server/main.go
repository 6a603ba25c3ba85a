package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adlens/adlens/backend/billing"
	"github.com/adlens/adlens/backend/blob"
	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/database"
	"github.com/adlens/adlens/backend/facebook"
	"github.com/adlens/adlens/backend/handlers"
	"github.com/adlens/adlens/backend/logger"
	middleware "github.com/adlens/adlens/backend/middlewares"
	"github.com/adlens/adlens/backend/notify"
	"github.com/adlens/adlens/backend/routes"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"github.com/adlens/adlens/backend/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const exportRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := database.Migrate(cfg.Database.URL); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	db, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database connection", zap.Error(closeErr))
		}
		log.Info("database connection closed")
	}()

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("invalid redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	st := store.New(db)

	billingService := &billing.Service{
		Store:       st,
		Redis:       redisClient,
		Notifier:    notify.Noop{},
		Prices:      cfg.Stripe,
		FrontendURL: cfg.App.FrontendURL,
	}
	if cfg.Stripe.Enabled() {
		billingService.Provider = billing.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, billing routes answer 503")
	}
	if cfg.Notify.Enabled() {
		n, err := notify.NewSESNotifier(ctx, cfg.Notify.Region, cfg.Notify.FromEmail, cfg.App.FrontendURL)
		if err != nil {
			log.Fatal("ses setup failed", zap.Error(err))
		}
		billingService.Notifier = n
	}

	var exports blob.Store
	if cfg.Blob.Enabled() {
		s3Store, err := blob.NewS3Store(cfg.Blob.Region, cfg.Blob.Bucket, cfg.Blob.AccessKey, cfg.Blob.SecretKey)
		if err != nil {
			log.Fatal("s3 setup failed", zap.Error(err))
		}
		exports = s3Store
		go purgeExports(ctx, s3Store)
	} else {
		log.Warn("S3 bucket not configured, exports answer 503")
	}

	authMw := &middleware.Authenticator{
		RedisClient:  redisClient,
		AccessSecret: []byte(cfg.Auth.AccessSecret),
	}

	userHandler := &handlers.UserHandler{
		Store:       st,
		RedisClient: redisClient,
		Auth:        cfg.Auth,
	}
	stripeHandler := &handlers.Stripe{
		Store:   st,
		Billing: billingService,
	}
	facebookHandler := &handlers.FacebookHandler{
		Store:      st,
		Graph:      facebook.NewClient(cfg.Facebook, nil),
		MetricsTTL: cfg.Facebook.MetricsTTL,
	}
	analysisHandler := &handlers.AnalysisHandler{
		Workflow: workflow.NewClient(cfg.Workflow.AnalysisURL, cfg.Workflow.SharedSecret, cfg.Workflow.Timeout, nil),
	}
	exportHandler := &handlers.ExportHandler{
		Store:  st,
		Blob:   exports,
		URLTTL: cfg.Blob.URLTTL,
	}
	maintenanceHandler := &handlers.MaintenanceHandler{
		Store:       st,
		RedisClient: redisClient,
		DatabaseURL: cfg.Database.URL,
	}

	mux := http.NewServeMux()

	routes.RegisterUserRoutes(mux, userHandler, authMw)
	routes.StripeRoutes(mux, stripeHandler, authMw)
	routes.FacebookRoutes(mux, facebookHandler, authMw)
	routes.ToolRoutes(mux, analysisHandler, exportHandler, authMw)
	routes.AdminRoutes(mux, maintenanceHandler, cfg.App.AdminToken)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "This route does not exist")
	})

	handler := middleware.RequestLogger(log)(
		middleware.CORS(cfg.App.FrontendURL)(
			middleware.SetCommonHeaders(
				middleware.GlobalRateLimiter(redisClient)(mux),
			),
		),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Workflow.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server is running", zap.String("addr", "http://localhost:"+cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

// purgeExports deletes export objects past their retention once a day.
func purgeExports(ctx context.Context, s blob.Store) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		n, err := s.PurgeOlderThan(ctx, blob.ExportPrefix, time.Now().Add(-exportRetention))
		if err != nil {
			zap.L().Error("export purge failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("purged stale exports", zap.Int("deleted", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
