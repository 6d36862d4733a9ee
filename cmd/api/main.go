package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/alabites/api/internal/clients/alabites"
	"github.com/alabites/api/internal/handlers"
	"github.com/alabites/api/internal/payments"
	"github.com/alabites/api/internal/platform/auth"
	"github.com/alabites/api/internal/platform/config"
	"github.com/alabites/api/internal/platform/idempotency"
	"github.com/alabites/api/internal/platform/jobs"
	"github.com/alabites/api/internal/platform/observability"
	"github.com/alabites/api/internal/platform/secrets"
	"github.com/alabites/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	backendClient, err := alabites.NewClient(cfg.Backend.BaseURL, alabites.WithTimeout(cfg.Backend.Timeout))
	if err != nil {
		logger.Fatal("failed to initialise backend client", zap.Error(err))
	}

	paymentManager := buildPaymentManager(logger, cfg)

	stockService, err := services.NewStockService(services.StockServiceDeps{
		Products: backendClient,
		Stocks:   backendClient,
		Logger:   observability.EventLogger(logger.Named("stock")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stock service", zap.Error(err))
	}

	paymentLogger := observability.EventLogger(logger.Named("payments"))
	balanceHandler, err := services.NewBalancePaymentHandler(services.BalancePaymentHandlerDeps{
		Accounts: backendClient,
		Logger:   paymentLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise balance payment handler", zap.Error(err))
	}
	paymentHandlers := []services.PaymentHandler{
		balanceHandler,
		services.NewCounterPaymentHandler(services.CounterPaymentHandlerDeps{Logger: paymentLogger}),
	}
	if paymentManager != nil {
		cardHandler, err := services.NewCardPaymentHandler(services.CardPaymentHandlerDeps{
			Payments: paymentManager,
			Currency: cfg.PSP.Currency,
			Logger:   paymentLogger,
		})
		if err != nil {
			logger.Fatal("failed to initialise card payment handler", zap.Error(err))
		}
		paymentHandlers = append(paymentHandlers, cardHandler)
	} else {
		logger.Warn("no payment gateway configured; card payments disabled")
	}

	var eventPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Features.EnableOrderEvents && cfg.Events.Topic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventPublisher, err = jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Stocks:   stockService,
		Handlers: paymentHandlers,
		Accounts: backendClient,
		Orders:   backendClient,
		Events:   eventPublisher,
		Clock:    time.Now,
		Logger:   observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	productHandlers := handlers.NewProductHandlers(backendClient)

	var checkoutMiddlewares []func(http.Handler) http.Handler
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Features.EnableIdempotencyReplay {
		firestoreClient, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		defer func() {
			if err := firestoreClient.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()

		idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
		checkoutMiddlewares = append(checkoutMiddlewares, idempotency.Middleware(
			idempotencyStore,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
		))

		if cfg.Idempotency.CleanupInterval > 0 {
			cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
			cleanupWG.Add(1)
			go func() {
				defer cleanupWG.Done()
				cleanupLogger := logger.Named("idempotency")
				for {
					select {
					case <-cleanupTicker.C:
						runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
						removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
						cancel()
						if err != nil {
							cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
							continue
						}
						if removed > 0 {
							cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
						}
					case <-cleanupCtx.Done():
						return
					}
				}
			}()
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firebase.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firebase.ProjectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithReadyCheck("backend", func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, err := backendClient.ListProducts(checkCtx)
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(checkoutMiddlewares...),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("alabites api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildPaymentManager(logger *zap.Logger, cfg config.Config) *payments.Manager {
	providers := make(map[string]payments.Provider)

	if key := strings.TrimSpace(cfg.PSP.PayMongoSecretKey); key != "" {
		provider, err := payments.NewPayMongoProvider(payments.PayMongoProviderConfig{
			SecretKey: key,
			BaseURL:   cfg.PSP.PayMongoBaseURL,
			Logger:    observability.EventLogger(logger.Named("paymongo")),
		})
		if err != nil {
			logger.Fatal("failed to initialise paymongo provider", zap.Error(err))
		}
		providers["paymongo"] = provider
	}

	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: observability.EventLogger(logger.Named("stripe")),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		providers["stripe"] = provider
	}

	if len(providers) == 0 {
		return nil
	}

	manager, err := payments.NewManager(providers)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}
	return manager
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project := strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	fallbackPath := strings.TrimSpace(os.Getenv("API_SECRET_FALLBACK_FILE"))
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	opts = append(opts, secrets.WithFallbackFile(fallbackPath))
	if credentialsFile := strings.TrimSpace(os.Getenv("API_FIREBASE_CREDENTIALS_FILE")); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret-backed config fields that must resolve
// to a value. Gateway keys are only required when the operator points the
// corresponding env var at a secret reference.
func requiredSecretNames() []string {
	var required []string
	if strings.TrimSpace(os.Getenv("API_PSP_PAYMONGO_SECRET_KEY")) != "" {
		required = append(required, "PSP.PayMongoSecretKey")
	}
	if strings.TrimSpace(os.Getenv("API_PSP_STRIPE_API_KEY")) != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	return required
}
