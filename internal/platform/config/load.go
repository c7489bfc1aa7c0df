package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Option customises Load and EnvironmentValues.
type Option func(*loader)

type loader struct {
	envFile         string
	overrides       map[string]string
	systemEnv       bool
	resolver        SecretResolver
	requiredSecrets []string
}

func newLoader(opts []Option) loader {
	l := loader{envFile: ".env", systemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&l)
		}
	}
	return l
}

// WithEnvFile reads dotenv values from path instead of ./.env. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap supplies values that win over both the process environment and the dotenv file.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.overrides = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(l *loader) { l.systemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.resolver = resolver }
}

// WithRequiredSecrets makes Load fail with *MissingSecretsError when any named secret field
// (for example "Stripe.APIKey") resolves empty.
func WithRequiredSecrets(names ...string) Option {
	return func(l *loader) { l.requiredSecrets = append(l.requiredSecrets, names...) }
}

// EnvironmentValues merges the dotenv file, the process environment and WithEnvMap values,
// later sources winning. main uses it to configure the secret fetcher before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	l := newLoader(opts)
	src, err := l.source()
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(src.dotenv)+len(src.overrides))
	for k, v := range src.dotenv {
		values[k] = v
	}
	if l.systemEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && strings.TrimSpace(k) != "" {
				values[k] = v
			}
		}
	}
	for k, v := range src.overrides {
		values[k] = v
	}
	return values, nil
}

// Load builds the Config from defaults and the environment, resolves secret references and
// validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)
	env, err := l.source()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           env.str("API_SERVER_PORT", "8080"),
			Environment:    strings.ToLower(env.str("API_ENVIRONMENT", envLocal)),
			Version:        env.str("API_VERSION", "dev"),
			CommitSHA:      env.str("API_COMMIT_SHA", ""),
			ReadTimeout:    env.duration("API_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   env.duration("API_SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    env.duration("API_SERVER_IDLE_TIMEOUT", 2*time.Minute),
			AllowedOrigins: env.list("API_SERVER_ALLOWED_ORIGINS"),
		},
		Site: SiteConfig{
			BaseURL: strings.TrimRight(env.str("API_SITE_BASE_URL", "http://localhost:3000"), "/"),
		},
		Stripe: StripeConfig{
			APIKey:     env.str("API_STRIPE_API_KEY", ""),
			Currency:   strings.ToLower(env.str("API_STRIPE_CURRENCY", "usd")),
			SessionTTL: env.duration("API_STRIPE_SESSION_TTL", 24*time.Hour),
		},
		CRM: CRMConfig{
			RapidWebhookURL: env.str("API_CRM_RAPID_WEBHOOK_URL", ""),
			FullWebhookURL:  env.str("API_CRM_FULL_WEBHOOK_URL", ""),
			ContactsURL:     env.str("API_CRM_CONTACTS_URL", ""),
			ContactsAPIKey:  env.str("API_CRM_API_KEY", ""),
			LocationID:      env.str("API_CRM_LOCATION_ID", ""),
			Timeout:         env.duration("API_CRM_TIMEOUT", 10*time.Second),
		},
		Media: MediaConfig{
			Backend:                strings.ToLower(env.str("API_MEDIA_BACKEND", MediaBackendNone)),
			MaxBytes:               int64(env.num("API_MEDIA_MAX_BYTES", 5<<20)),
			MaxDimension:           env.num("API_MEDIA_MAX_DIMENSION", 1024),
			CloudinaryCloudName:    env.str("API_MEDIA_CLOUDINARY_CLOUD_NAME", ""),
			CloudinaryUploadPreset: env.str("API_MEDIA_CLOUDINARY_UPLOAD_PRESET", ""),
			CloudinaryFolder:       env.str("API_MEDIA_CLOUDINARY_FOLDER", ""),
			Bucket:                 env.str("API_MEDIA_BUCKET", ""),
			Prefix:                 env.str("API_MEDIA_PREFIX", "onboarding/logos"),
			PublicBaseURL:          env.str("API_MEDIA_PUBLIC_BASE_URL", ""),
			S3Region:               env.str("API_MEDIA_S3_REGION", ""),
			S3Endpoint:             env.str("API_MEDIA_S3_ENDPOINT", ""),
			S3AccessKeyID:          env.str("API_MEDIA_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey:      env.str("API_MEDIA_S3_SECRET_ACCESS_KEY", ""),
		},
		Session: SessionConfig{
			Secret:     env.str("API_SESSION_SECRET", ""),
			CookieName: env.str("API_SESSION_COOKIE_NAME", "mazira_plan"),
			MaxAge:     env.duration("API_SESSION_MAX_AGE", 30*24*time.Hour),
		},
		Checkout: CheckoutConfig{
			RecordBackend: strings.ToLower(env.str("API_CHECKOUT_RECORD_BACKEND", StoreMemory)),
			RecordTTL:     env.duration("API_CHECKOUT_RECORD_TTL", 7*24*time.Hour),
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(env.str("API_IDEMPOTENCY_BACKEND", StoreMemory)),
			Header:           env.str("API_IDEMPOTENCY_HEADER", "Idempotency-Key"),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", 24*time.Hour),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", time.Hour),
			CleanupBatchSize: env.num("API_IDEMPOTENCY_CLEANUP_BATCH", 200),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.num("API_REDIS_DB", 0),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:     env.str("API_PUBSUB_PROJECT_ID", ""),
			CheckoutTopic: env.str("API_PUBSUB_CHECKOUT_TOPIC", "checkout-events"),
			LeadTopic:     env.str("API_PUBSUB_LEAD_TOPIC", "lead-events"),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:    env.num("API_RATELIMIT_DEFAULT_PER_MIN", 120),
			OnboardingPerMinute: env.num("API_RATELIMIT_ONBOARDING_PER_MIN", 10),
			CheckoutPerMinute:   env.num("API_RATELIMIT_CHECKOUT_PER_MIN", 20),
		},
		Catalog: CatalogConfig{
			File: env.str("API_CATALOG_FILE", ""),
		},
	}
	cfg.Session.Secure = env.flag("API_SESSION_SECURE", !cfg.IsLocal())
	// Pub/Sub shares the Firestore project unless told otherwise.
	if cfg.PubSub.ProjectID == "" && env.flag("API_PUBSUB_ENABLED", false) {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecretFields(ctx, &cfg, l.resolver)
	if err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(l.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

// source layers WithEnvMap over the process environment over the dotenv file.
type source struct {
	overrides map[string]string
	system    bool
	dotenv    map[string]string
}

func (l loader) source() (source, error) {
	src := source{overrides: l.overrides, system: l.systemEnv}
	if l.envFile == "" {
		return src, nil
	}
	values, err := godotenv.Read(l.envFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return source{}, fmt.Errorf("config: read %s: %w", l.envFile, err)
	default:
		src.dotenv = values
	}
	return src, nil
}

func (s source) lookup(key string) string {
	if v, ok := s.overrides[key]; ok {
		return strings.TrimSpace(v)
	}
	if s.system {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(s.dotenv[key])
}

func (s source) str(key, fallback string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return fallback
}

// duration, num and flag fall back on unparsable input; validation catches impossible values.
func (s source) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s.lookup(key)); err == nil {
		return d
	}
	return fallback
}

func (s source) num(key string, fallback int) int {
	if n, err := strconv.Atoi(s.lookup(key)); err == nil {
		return n
	}
	return fallback
}

func (s source) flag(key string, fallback bool) bool {
	switch strings.ToLower(s.lookup(key)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

func (s source) list(key string) []string {
	var out []string
	for _, part := range strings.Split(s.lookup(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
