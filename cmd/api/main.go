package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"capital-creator/marketplace-backend/internal/auth"
	"capital-creator/marketplace-backend/internal/chain/memory"
	"capital-creator/marketplace-backend/internal/chain/solanarpc"
	"capital-creator/marketplace-backend/internal/config"
	"capital-creator/marketplace-backend/internal/identity"
	"capital-creator/marketplace-backend/internal/notifications"
	"capital-creator/marketplace-backend/internal/notifications/websocket"
	"capital-creator/marketplace-backend/internal/profile"
	"capital-creator/marketplace-backend/internal/settlement"
	"capital-creator/marketplace-backend/pkg/security"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	validator := security.NewValidator()

	// ---------------- CHAIN ----------------
	chain, ledger, err := newChain(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up chain client", zap.Error(err))
	}

	// ---------------- PROFILES ----------------
	profileRepo, err := newProfileRepository(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to set up profile store", zap.Error(err))
	}
	profileService := profile.NewService(profileRepo, logger)

	// ---------------- NOTIFICATIONS ----------------
	wsManager := websocket.NewManager(cfg.Server.AllowedOrigins, logger)
	defer wsManager.Close()

	notificationService, err := newNotificationService(cfg, profileService, wsManager, logger)
	if err != nil {
		logger.Fatal("Failed to set up notifications", zap.Error(err))
	}

	// ---------------- SETTLEMENT ----------------
	rate := settlement.FeeRate{
		Numerator:   cfg.Settlement.FeeRateNumerator,
		Denominator: cfg.Settlement.FeeRateDenominator,
	}
	provisioner := settlement.NewAccountProvisioner(chain, cfg.Settlement.QueryTimeout.Std(), logger)
	builder := settlement.NewTransactionBuilder(rate, provisioner, chain, cfg.Settlement.SubmitTimeout.Std(), logger)
	settlementService := settlement.NewService(builder, chain, settlement.ServiceConfig{
		Treasury: settlement.Party(cfg.Settlement.Treasury),
		Token:    settlement.TokenID(cfg.Settlement.TokenMint),
		Decimals: cfg.Settlement.Decimals,
		FeePayer: settlement.Party(cfg.Settlement.FeePayer),
	}, logger)
	settlementService.AddListener(profileService)
	settlementService.AddListener(notificationService)

	// ---------------- IDENTITY ----------------
	fetcher := identity.NewOEmbedFetcher(&http.Client{Timeout: cfg.Identity.VerifyTimeout.Std()}, cfg.Identity.OEmbedEndpoint)
	identityService := identity.NewService(map[identity.Medium]identity.ProofVerifier{
		identity.MediumSocial: identity.NewSocialPostVerifier(identity.SocialPostParser{}, fetcher, logger),
		identity.MediumWallet: identity.NewWalletSignatureVerifier(validator),
	}, profileService, identity.Config{
		ChallengeTTL:  cfg.Identity.ChallengeTTL.Std(),
		VerifyTimeout: cfg.Identity.VerifyTimeout.Std(),
	}, logger)
	identityService.AddListener(notificationService)

	sweeper := identity.NewSweeper(identityService, cfg.Identity.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start challenge sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// ---------------- AUTH ----------------
	authService := auth.NewService(auth.Config{
		JWTSecret:    cfg.Auth.JWTSecret,
		Issuer:       cfg.Auth.Issuer,
		SessionTTL:   cfg.Auth.SessionTTL.Std(),
		ChallengeTTL: cfg.Auth.ChallengeTTL.Std(),
	}, validator, logger)

	// Setup Router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors(cfg.Server.AllowedOrigins))

	api := router.Group("/api/v1")
	{
		auth.RegisterRoutes(api, auth.NewHandler(authService))

		profileHandler := profile.NewHandler(profileService)
		profileHandler.RegisterPublicRoutes(api)

		protected := api.Group("")
		protected.Use(auth.RequireWallet(authService))
		settlement.NewHandler(settlementService).RegisterRoutes(protected)
		identity.NewHandler(identityService).RegisterRoutes(protected)
		profileHandler.RegisterRoutes(protected)
		if ledger != nil {
			memory.NewHandler(ledger, settlement.TokenID(cfg.Settlement.TokenMint), cfg.Settlement.Decimals).RegisterRoutes(protected)
		}
	}

	router.GET("/ws", auth.RequireWallet(authService), wsManager.Handle)

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"chain":       chainName(ledger),
			"connections": wsManager.GetConnectionCount(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("chain", chainName(ledger)),
		zap.String("fee_rate", rate.String()))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	zapCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

// newChain dials Solana when an RPC URL is configured and otherwise returns
// the in-memory ledger, which is also returned as the second value.
func newChain(cfg *config.Config, logger *zap.Logger) (settlement.ChainClient, *memory.Ledger, error) {
	var platform solana.PrivateKey
	if cfg.Solana.PlatformKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.Solana.PlatformKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse platform key: %w", err)
		}
		platform = key
	}

	if cfg.Solana.RPCURL == "" {
		if platform == nil {
			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to generate platform key: %w", err)
			}
			platform = key
		}
		logger.Warn("No Solana RPC configured, settling against the in-memory ledger",
			zap.String("platform", platform.PublicKey().String()))
		ledger := memory.NewLedger(platform)
		return ledger, ledger, nil
	}

	custodial := make([]solana.PrivateKey, 0, len(cfg.Solana.CustodialKeys))
	for i, raw := range cfg.Solana.CustodialKeys {
		key, err := solana.PrivateKeyFromBase58(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse custodial key %d: %w", i, err)
		}
		custodial = append(custodial, key)
	}

	client := solanarpc.Dial(cfg.Solana.RPCURL, platform, custodial, solanarpc.Config{
		Decimals:     uint8(cfg.Settlement.Decimals),
		Commitment:   rpc.CommitmentType(cfg.Solana.Commitment),
		PollInterval: cfg.Solana.PollInterval.Std(),
	}, logger)
	logger.Info("Connected to Solana RPC",
		zap.String("url", cfg.Solana.RPCURL),
		zap.String("platform", client.PlatformAddress()),
		zap.Int("custodial_keys", len(custodial)))
	return client, nil, nil
}

func newProfileRepository(cfg config.DatabaseConfig, logger *zap.Logger) (profile.Repository, error) {
	if cfg.Driver == "memory" {
		logger.Warn("Profiles are kept in memory and lost on restart")
		return profile.NewMemoryRepository(), nil
	}

	logger.Info("Connecting to database", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime.Std())

	return profile.NewRepository(db)
}

func newNotificationService(cfg *config.Config, profiles *profile.Service, pusher notifications.Pusher, logger *zap.Logger) (*notifications.Service, error) {
	n := cfg.Notifications

	var email *notifications.EmailChannel
	var sms *notifications.SMSChannel
	if n.EmailFrom != "" || n.SMSEnabled {
		awsCfg, err := notifications.LoadAWSConfig(context.Background(), notifications.AWSConfig{
			Region:          n.Region,
			AccessKeyID:     n.AccessKeyID,
			SecretAccessKey: n.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		if n.EmailFrom != "" {
			email = notifications.NewEmailChannel(sesv2.NewFromConfig(awsCfg), n.EmailFrom)
		}
		if n.SMSEnabled {
			sms = notifications.NewSMSChannel(sns.NewFromConfig(awsCfg), n.SMSSenderID)
		}
	} else {
		logger.Warn("Email and SMS notifications are disabled")
	}

	contacts := notifications.ContactLookupFunc(func(ctx context.Context, address string) (*notifications.Contact, error) {
		p, err := profiles.GetProfile(ctx, address)
		if err != nil {
			return nil, err
		}
		return &notifications.Contact{Address: p.Address, Name: p.Name, Email: p.Email, Phone: p.Phone}, nil
	})

	return notifications.NewService(contacts, email, sms, pusher, notifications.ServiceConfig{
		TokenSymbol: cfg.Settlement.TokenSymbol,
		ExplorerURL: cfg.Settlement.ExplorerURL,
		SendTimeout: n.SendTimeout.Std(),
	}, logger), nil
}

func chainName(ledger *memory.Ledger) string {
	if ledger != nil {
		return "memory"
	}
	return "solana"
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// cors mirrors the request origin when it is allowed; an empty list allows all
func cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allow := "*"
		if len(allowed) > 0 {
			allow = ""
			for _, o := range allowed {
				if o == origin {
					allow = origin
					break
				}
			}
		}
		if allow != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allow)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
