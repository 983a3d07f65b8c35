package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/background"
	"github.com/BradenHooton/cadence/internal/config"
	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cadence/internal/middleware"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/repositories"
	"github.com/BradenHooton/cadence/internal/routes"
	"github.com/BradenHooton/cadence/internal/services"
	pkgauth "github.com/BradenHooton/cadence/pkg/auth"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Pending logins live in Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	refreshRepo := repositories.NewRefreshTokenRepository(db, cfg.Auth.StorageTimeout)
	oneTimeRepo := repositories.NewOneTimeTokenRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	pendingLogins := repositories.NewPendingLoginStore(redisClient)

	// Security primitives
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.LinkTokenSecret, cfg.Auth.AccessTokenExpiry)
	hasher, err := pkgauth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize password hasher", slog.Any("error", err))
		os.Exit(1)
	}
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})
	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES delivers codes and links
	sesCtx, sesCancel := context.WithTimeout(context.Background(), 10*time.Second)
	channel, err := services.NewSESNotificationChannel(sesCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	sesCancel()
	if err != nil {
		logger.Error("failed to initialize email channel", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	timeout := cfg.Auth.StorageTimeout
	credentialService := services.NewCredentialService(userRepo, hasher, timingDelay, auditLogger, logger, timeout)
	refreshService := services.NewRefreshTokenService(refreshRepo, userRepo, tokenManager, auditLogger, logger,
		cfg.Auth.RefreshTokenExpiry, timeout)
	otpService := services.NewOTPService(pendingLogins, userRepo, refreshService, channel,
		auth.NewOTPGenerator(cfg.Auth.OTPLength), auditLogger, logger, services.OTPConfig{
			Expiry:         cfg.Auth.OTPExpiry,
			MaxAttempts:    cfg.Auth.OTPMaxAttempts,
			StorageTimeout: timeout,
		})
	magicLinkService := services.NewMagicLinkService(userRepo, oneTimeRepo, refreshService, channel, tokenManager,
		timingDelay, auditLogger, logger, cfg.Email.AppBaseURL, cfg.Auth.MagicLinkExpiry, timeout)
	resetService := services.NewPasswordResetService(userRepo, oneTimeRepo, hasher, channel, tokenManager,
		timingDelay, auditLogger, logger, cfg.Email.AppBaseURL, cfg.Auth.PasswordResetExpiry, timeout)
	accountService := services.NewAccountService(userRepo, oneTimeRepo, hasher, channel, tokenManager,
		timingDelay, auditLogger, logger, services.AccountConfig{
			BaseURL:            cfg.Email.AppBaseURL,
			ConfirmationExpiry: cfg.Auth.ConfirmationExpiry,
			StorageTimeout:     timeout,
		})
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, logger, timeout)
	notificationService := services.NewNotificationService(notificationRepo, logger, timeout)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, hasher, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	cookieConfig := auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Path:     "/api/auth",
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}
	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(handlers.AuthServices{
			Credentials:   credentialService,
			OTP:           otpService,
			RefreshTokens: refreshService,
			MagicLinks:    magicLinkService,
			PasswordReset: resetService,
			Accounts:      accountService,
		}, cookieConfig, logger),
		Admin:         handlers.NewAdminHandler(accountService, notificationService, logger),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptionService),
		Notifications: handlers.NewNotificationHandler(notificationService),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, cfg.Server.TrustedProxies))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, h, tokenManager, userRepo,
			middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRateLimit, TrustedProxies: cfg.Server.TrustedProxies},
			middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.UserRateLimit, TrustedProxies: cfg.Server.TrustedProxies},
			logger,
		)
	})

	// Health check with database and redis
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "healthy", "database": "up", "redis": "up"}
		code := http.StatusOK
		if err := db.HealthCheck(ctx); err != nil {
			status["status"], status["database"], code = "unhealthy", "down", http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status["status"], status["redis"], code = "unhealthy", "down", http.StatusServiceUnavailable
		}
		pkghttp.WriteJSON(w, code, status)
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(map[string]background.ExpiredDeleter{
		"refresh_tokens":  refreshRepo,
		"one_time_tokens": oneTimeRepo,
	}, logger, cfg.Auth.CleanupInterval)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	scheduled, err := db.HasScheduledExpiry(cleanupCtx)
	if err != nil {
		logger.Warn("could not check for database-side token expiry", slog.Any("error", err))
	}
	if scheduled {
		logger.Info("expired tokens are reclaimed by pg_cron; application sweep disabled",
			slog.String("job", database.ExpiryJobName))
	} else {
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureAdminUser creates the first admin account if ADMIN_EMAIL,
// ADMIN_USERNAME and ADMIN_PASSWORD are set.
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, hasher *pkgauth.PasswordHasher, logger *slog.Logger) error {
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	adminUsername := strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminUsername == "" || adminPassword == "" {
		logger.Info("admin bootstrap variables not set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := hasher.Hash(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = userRepo.Create(ctx, &models.User{
		Email:        adminEmail,
		Username:     adminUsername,
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
		Status:       models.StatusActive,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
