package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mazira-designs/api/internal/catalog"
	"github.com/mazira-designs/api/internal/checkout"
	"github.com/mazira-designs/api/internal/crm"
	"github.com/mazira-designs/api/internal/handlers"
	"github.com/mazira-designs/api/internal/media"
	"github.com/mazira-designs/api/internal/payments"
	"github.com/mazira-designs/api/internal/platform/config"
	"github.com/mazira-designs/api/internal/platform/events"
	pfirestore "github.com/mazira-designs/api/internal/platform/firestore"
	"github.com/mazira-designs/api/internal/platform/idempotency"
	"github.com/mazira-designs/api/internal/platform/observability"
	"github.com/mazira-designs/api/internal/platform/secrets"
	"github.com/mazira-designs/api/internal/platform/session"
	"github.com/mazira-designs/api/internal/repositories"
	"github.com/mazira-designs/api/internal/services"
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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	priceList, err := loadCatalog(cfg.Catalog)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}
	for _, warning := range priceList.Warnings() {
		logger.Warn("catalog warning", zap.String("detail", warning))
	}

	var checks []repositories.DependencyCheck

	var firestoreProvider *pfirestore.Provider
	if cfg.Checkout.RecordBackend == config.StoreFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Critical: true,
			Check:    firestoreProvider.Ping,
		})
	}

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  time.Second,
			Critical: cfg.Idempotency.Backend == config.StoreRedis,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	checks = append(checks, secretManagerCheck(fetcher))

	systemService, err := newSystemService(checks, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	background, stopBackground := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup

	var idempotencyStore idempotency.Store
	switch cfg.Idempotency.Backend {
	case config.StoreRedis:
		idempotencyStore = idempotency.NewRedisStore(redisClient, "mazira:idempotency:")
	default:
		memoryStore := idempotency.NewMemoryStore()
		idempotencyStore = memoryStore
		runEvery(background, &backgroundWG, cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
			removed, err := memoryStore.Sweep(ctx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
			if err != nil {
				logger.Named("idempotency").Error("idempotency cleanup error", zap.Error(err))
				return
			}
			if removed > 0 {
				logger.Named("idempotency").Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	var records repositories.CheckoutRecordRepository
	if firestoreProvider != nil {
		firestoreRecords, err := repositories.NewFirestoreCheckoutRecordRepository(firestoreProvider, time.Now)
		if err != nil {
			logger.Fatal("failed to initialise checkout record repository", zap.Error(err))
		}
		records = firestoreRecords
	} else {
		memoryRecords := repositories.NewMemoryCheckoutRecordRepository(time.Now)
		records = memoryRecords
		runEvery(background, &backgroundWG, time.Hour, func(ctx context.Context) {
			if removed := memoryRecords.Sweep(ctx); removed > 0 {
				logger.Named("checkout").Info("expired checkout records removed", zap.Int("count", removed))
			}
		})
	}

	var publisher services.EventPublisher
	if projectID := strings.TrimSpace(cfg.PubSub.ProjectID); projectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		pubsubPublisher, err := events.NewPubSubPublisher(pubsubClient.Topic(cfg.PubSub.CheckoutTopic), pubsubClient.Topic(cfg.PubSub.LeadTopic))
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		defer pubsubPublisher.Stop()
		publisher = pubsubPublisher
	}

	planService, err := services.NewPlanService(services.PlanServiceDeps{
		Catalog: priceList,
		Logger:  eventLogger(logger.Named("plan"), "plan log"),
	})
	if err != nil {
		logger.Fatal("failed to initialise plan service", zap.Error(err))
	}

	cartBuilder, err := checkout.NewBuilder(priceList)
	if err != nil {
		logger.Fatal("failed to initialise cart builder", zap.Error(err))
	}

	var checkoutService services.CheckoutService
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
		logger.Warn("stripe api key not configured; checkout disabled")
	} else {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.Stripe.APIKey,
			SessionTTL: cfg.Stripe.SessionTTL,
			Logger:     eventLogger(logger.Named("payments"), "stripe log"),
			Clock:      time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		paymentManager, err := payments.NewManager(map[string]payments.Provider{
			"stripe": stripeProvider,
		})
		if err != nil {
			logger.Fatal("failed to initialise payment manager", zap.Error(err))
		}
		checkoutService, err = services.NewCheckoutService(services.CheckoutServiceDeps{
			Builder:     cartBuilder,
			Plans:       planService,
			Payments:    paymentManager,
			Records:     records,
			Events:      publisher,
			SiteBaseURL: cfg.Site.BaseURL,
			Currency:    cfg.Stripe.Currency,
			RecordTTL:   cfg.Checkout.RecordTTL,
			Meter:       otel.Meter("github.com/mazira-designs/api/checkout"),
			Clock:       time.Now,
			Logger:      eventLogger(logger.Named("checkout"), "checkout log"),
		})
		if err != nil {
			logger.Fatal("failed to initialise checkout service", zap.Error(err))
		}
	}

	crmLogger := eventLogger(logger.Named("crm"), "crm log")
	webhookClient := crm.NewWebhookClient(crm.WebhookConfig{
		RapidURL: cfg.CRM.RapidWebhookURL,
		FullURL:  cfg.CRM.FullWebhookURL,
		Timeout:  cfg.CRM.Timeout,
		Clock:    time.Now,
		Logger:   crmLogger,
	})
	onboardingDeps := services.OnboardingServiceDeps{
		Webhook: webhookClient,
		Policy: media.Policy{
			AllowedTypes: append([]string(nil), media.DefaultAllowedTypes...),
			MaxBytes:     cfg.Media.MaxBytes,
			MaxDimension: cfg.Media.MaxDimension,
		},
		Events: publisher,
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("onboarding"), "onboarding log"),
	}
	contactsClient, err := crm.NewContactsClient(crm.ContactsConfig{
		URL:        cfg.CRM.ContactsURL,
		APIKey:     cfg.CRM.ContactsAPIKey,
		LocationID: cfg.CRM.LocationID,
		Timeout:    cfg.CRM.Timeout,
		Logger:     crmLogger,
	})
	switch {
	case err == nil:
		onboardingDeps.Contacts = contactsClient
	case errors.Is(err, crm.ErrNotConfigured):
		logger.Info("crm contacts api not configured; leads go to webhooks only")
	default:
		logger.Fatal("failed to initialise crm contacts client", zap.Error(err))
	}
	uploader, closeUploader, err := newUploader(ctx, cfg.Media)
	if err != nil {
		logger.Fatal("failed to initialise logo uploader", zap.Error(err))
	}
	defer closeUploader()
	if uploader != nil {
		onboardingDeps.Uploader = uploader
	}
	onboardingService, err := services.NewOnboardingService(onboardingDeps)
	if err != nil {
		logger.Fatal("failed to initialise onboarding service", zap.Error(err))
	}

	sessionSecret := cfg.Session.Secret
	if sessionSecret == "" {
		sessionSecret = ephemeralSecret()
		logger.Warn("session secret not configured; plans will not survive a restart")
	}
	sessionStore, err := session.NewStore(session.Config{
		Secret:     sessionSecret,
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Session.Secure,
	})
	if err != nil {
		logger.Fatal("failed to initialise session store", zap.Error(err))
	}

	onboardingLimiter := newRateLimiter(redisClient, cfg.RateLimits.OnboardingPerMinute)
	checkoutLimiter := newRateLimiter(redisClient, cfg.RateLimits.CheckoutPerMinute)
	defaultLimiter := newRateLimiter(redisClient, cfg.RateLimits.DefaultPerMinute)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		handlers.CORS(cfg.Server.AllowedOrigins),
		sessionStore.Middleware(),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(handlers.NewPublicHandlers(planService).Routes, handlers.RateLimit(defaultLimiter, "public")),
		handlers.WithPlanRoutes(handlers.NewPlanHandlers(planService, sessionStore).Routes, handlers.RateLimit(defaultLimiter, "plan")),
		handlers.WithOnboardingRoutes(
			handlers.NewOnboardingHandlers(onboardingService, handlers.WithMaxLogoSize(cfg.Media.MaxBytes)).Routes,
			handlers.RateLimit(onboardingLimiter, "onboarding"),
		),
	}
	if checkoutService != nil {
		opts = append(opts, handlers.WithCheckoutRoutes(
			handlers.NewCheckoutHandlers(checkoutService, sessionStore).Routes,
			handlers.RateLimit(checkoutLimiter, "checkout"),
			idempotencyMiddleware,
		))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("mazira api listening",
			zap.String("environment", buildInfo.Environment),
			zap.Int("categories", len(priceList.Categories())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopBackground()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if path := strings.TrimSpace(cfg.File); path != "" {
		return catalog.LoadFile(path)
	}
	return catalog.Default()
}

// runEvery calls fn on every tick until ctx is cancelled.
func runEvery(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func eventLogger(logger *zap.Logger, msg string) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(msg, zFields...)
	}
}

func newRateLimiter(client *redis.Client, perMinute int) handlers.RateLimiter {
	if client != nil {
		return handlers.NewRedisRateLimiter(client, "mazira:ratelimit:", perMinute, time.Minute)
	}
	return handlers.NewMemoryRateLimiter(perMinute, time.Minute, time.Now)
}

// newUploader returns a nil uploader when logo storage is disabled.
func newUploader(ctx context.Context, cfg config.MediaConfig) (media.Uploader, func(), error) {
	noop := func() {}
	namer := media.ObjectNamer{Prefix: cfg.Prefix}
	switch cfg.Backend {
	case config.MediaBackendCloudinary:
		uploader, err := media.NewCloudinaryUploader(media.CloudinaryConfig{
			CloudName:    cfg.CloudinaryCloudName,
			UploadPreset: cfg.CloudinaryUploadPreset,
			Folder:       cfg.CloudinaryFolder,
		})
		if err != nil {
			return nil, noop, err
		}
		return uploader, noop, nil
	case config.MediaBackendGCS:
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, err
		}
		uploader, err := media.NewGCSUploader(client, media.GCSConfig{
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
			Namer:         namer,
		})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return uploader, func() { _ = client.Close() }, nil
	case config.MediaBackendS3:
		uploader, err := media.NewS3Uploader(ctx, media.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			EndpointURL:     cfg.S3Endpoint,
			PublicBaseURL:   cfg.PublicBaseURL,
			Namer:           namer,
		})
		if err != nil {
			return nil, noop, err
		}
		return uploader, noop, nil
	default:
		return nil, noop, nil
	}
}

func ephemeralSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = chooseFirst(cfg.Server.Version, "dev")
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = chooseFirst(cfg.Server.CommitSHA, "unknown")
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: chooseFirst(cfg.Server.Environment, "local"),
		StartedAt:   started,
	}
}

func chooseFirst(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check:   fetcher.Ping,
	}
}

func newSystemService(checks []repositories.DependencyCheck, build services.BuildInfo) (services.SystemService, error) {
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
		CacheFor:         2 * time.Second,
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.PubSub.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string { return strings.TrimSpace(env[key]) }

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(chooseFirst(lookup("API_SECRET_PROJECT_ID"), lookup("API_FIRESTORE_PROJECT_ID"))),
		secrets.WithFallbackFile(chooseFirst(lookup("API_SECRET_FALLBACK_FILE"), secrets.DefaultFallbackFile)),
	}
	if pins := parsePins(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_GCP_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets a deployed environment cannot start without.
func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["API_ENVIRONMENT"]))
	if environment == "" || environment == "local" {
		return nil
	}
	required := []string{"Stripe.APIKey", "Session.Secret"}
	if strings.EqualFold(strings.TrimSpace(env["API_MEDIA_BACKEND"]), config.MediaBackendS3) && strings.TrimSpace(env["API_MEDIA_S3_ACCESS_KEY_ID"]) != "" {
		required = append(required, "Media.S3SecretAccessKey")
	}
	return required
}

// parsePins reads "stripe_api_key=5,crm_api_key=2". Bare names get the secret:// scheme.
func parsePins(raw string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		ref, version, ok := strings.Cut(strings.TrimSpace(entry), "=")
		ref, version = strings.TrimSpace(ref), strings.TrimSpace(version)
		if !ok || ref == "" || version == "" {
			continue
		}
		if !strings.Contains(ref, "://") {
			ref = "secret://" + ref
		}
		out[ref] = version
	}
	return out
}
