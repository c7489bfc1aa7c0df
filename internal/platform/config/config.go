// Package config loads the API's runtime settings from API_* environment variables, an
// optional .env file and Secret Manager references.
package config

import "time"

const envLocal = "local"

// Media backends accepted by API_MEDIA_BACKEND. An empty backend disables logo uploads.
const (
	MediaBackendNone       = ""
	MediaBackendCloudinary = "cloudinary"
	MediaBackendGCS        = "gcs"
	MediaBackendS3         = "s3"
)

// Store backends. Checkout records support memory and firestore; idempotency keys support memory and redis.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StoreRedis     = "redis"
)

// Config is the full runtime configuration, one struct per concern. Field tags are checked by
// go-playground/validator after loading.
type Config struct {
	Server      ServerConfig
	Site        SiteConfig
	Stripe      StripeConfig
	CRM         CRMConfig
	Media       MediaConfig
	Session     SessionConfig
	Checkout    CheckoutConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	RateLimits  RateLimitConfig
	Catalog     CatalogConfig
}

type ServerConfig struct {
	Port           string `validate:"required,numeric"`
	Environment    string `validate:"required"`
	Version        string
	CommitSHA      string
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	IdleTimeout    time.Duration `validate:"gt=0"`
	AllowedOrigins []string      `validate:"dive,http_url"`
}

// SiteConfig is the storefront that checkout redirects back to.
type SiteConfig struct {
	BaseURL string `validate:"required,http_url"`
}

// StripeConfig holds payment credentials. Stripe rejects session expiries outside 30m..24h.
type StripeConfig struct {
	APIKey     string
	Currency   string        `validate:"len=3,alpha,lowercase"`
	SessionTTL time.Duration `validate:"min=30m,max=24h"`
}

// CRMConfig configures lead delivery. Empty webhook URLs fall back to the production triggers.
type CRMConfig struct {
	RapidWebhookURL string `validate:"omitempty,http_url"`
	FullWebhookURL  string `validate:"omitempty,http_url"`
	ContactsURL     string `validate:"omitempty,http_url"`
	ContactsAPIKey  string
	LocationID      string
	Timeout         time.Duration `validate:"gt=0"`
}

// MediaConfig selects where onboarding logos are stored.
type MediaConfig struct {
	Backend                string `validate:"omitempty,oneof=cloudinary gcs s3"`
	MaxBytes               int64  `validate:"gt=0"`
	MaxDimension           int    `validate:"gt=0"`
	CloudinaryCloudName    string `validate:"required_if=Backend cloudinary"`
	CloudinaryUploadPreset string `validate:"required_if=Backend cloudinary"`
	CloudinaryFolder       string
	Bucket                 string
	Prefix                 string
	PublicBaseURL          string `validate:"omitempty,http_url"`
	S3Region               string
	S3Endpoint             string `validate:"omitempty,url"`
	S3AccessKeyID          string
	S3SecretAccessKey      string
}

// SessionConfig configures the signed plan cookie.
type SessionConfig struct {
	Secret     string
	CookieName string        `validate:"required"`
	MaxAge     time.Duration `validate:"gt=0"`
	Secure     bool
}

// CheckoutConfig controls where checkout records live and for how long.
type CheckoutConfig struct {
	RecordBackend string        `validate:"oneof=memory firestore"`
	RecordTTL     time.Duration `validate:"gt=0"`
}

type IdempotencyConfig struct {
	Backend          string        `validate:"oneof=memory redis"`
	Header           string        `validate:"required"`
	TTL              time.Duration `validate:"gt=0"`
	CleanupInterval  time.Duration `validate:"gt=0"`
	CleanupBatchSize int           `validate:"gt=0"`
}

// RedisConfig locates the shared Redis instance. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
}

type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the event topics. Publishing is disabled when the project is empty.
type PubSubConfig struct {
	ProjectID     string
	CheckoutTopic string `validate:"required_with=ProjectID"`
	LeadTopic     string `validate:"required_with=ProjectID"`
}

// RateLimitConfig is requests per minute per client; 0 disables a limiter.
type RateLimitConfig struct {
	DefaultPerMinute    int `validate:"gte=0"`
	OnboardingPerMinute int `validate:"gte=0"`
	CheckoutPerMinute   int `validate:"gte=0"`
}

// CatalogConfig optionally replaces the embedded price list with a YAML file.
type CatalogConfig struct {
	File string
}

// IsLocal reports whether the service runs on a developer machine.
func (c Config) IsLocal() bool {
	return c.Server.Environment == envLocal
}
