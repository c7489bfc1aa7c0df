// Package secrets resolves secret:// configuration references against Google Secret Manager,
// with a local YAML file for development machines.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DefaultFallbackFile holds development values keyed by reference.
	DefaultFallbackFile = ".secrets.local.yaml"
	// HealthReference is probed by Ping. The secret does not need to exist.
	HealthReference = "secret://system/healthz?version=latest"

	defaultCacheTTL = 10 * time.Minute
	meterName       = "github.com/mazira-designs/api/internal/platform/secrets"
)

// ErrNotFound reports a reference that neither Secret Manager nor the fallback file can satisfy.
var ErrNotFound = errors.New("secrets: not found")

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves references and caches values for a bounded time. Concurrent misses for the
// same version share one Secret Manager call. Without credentials only the fallback file is read.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	clientOpts []option.ClientOption

	logger   *zap.Logger
	clock    func() time.Time
	meter    metric.Meter
	project  string
	pins     map[string]string
	cacheTTL time.Duration
	fallback *fallbackFile

	mu       sync.RWMutex
	cache    map[string]cacheEntry
	inflight singleflight.Group

	duration  metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	canonical string
	expiresAt time.Time
}

// Option customises NewFetcher.
type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the clock used for cache expiry and latency.
func WithClock(clock func() time.Time) Option {
	return func(f *Fetcher) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(f *Fetcher) { f.project = projectID }
}

// WithFallbackFile reads development values from path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallback = newFallbackFile(path) }
}

// WithCacheTTL bounds how long resolved values are reused. Zero keeps the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.cacheTTL = ttl
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(f *Fetcher) { f.meter = m }
}

// WithSecretManagerClient injects a client; the fetcher will not close it.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithClientOptions is forwarded to secretmanager.NewClient.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) { f.clientOpts = append(f.clientOpts, opts...) }
}

// WithVersionPins fixes the version used for references that do not name one, keyed by
// canonical reference ("secret://stripe_api_key": "5").
func WithVersionPins(pins map[string]string) Option {
	return func(f *Fetcher) {
		f.pins = make(map[string]string, len(pins))
		for ref, version := range pins {
			if parsed, err := parseReference(ref); err == nil && version != "" {
				f.pins[parsed.canonical] = version
			}
		}
	}
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created is logged and the
// fetcher runs from the fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:   zap.NewNop(),
		clock:    time.Now,
		cacheTTL: defaultCacheTTL,
		fallback: newFallbackFile(DefaultFallbackFile),
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.meter == nil {
		f.meter = otel.GetMeterProvider().Meter(meterName)
	}

	var err error
	f.duration, err = f.meter.Float64Histogram("secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent resolving a secret reference"))
	if err != nil {
		f.logger.Warn("secrets: duration metric unavailable", zap.Error(err))
	}
	f.cacheHits, err = f.meter.Int64Counter("secrets.resolve.cache_hits",
		metric.WithDescription("Secret references answered from the in-memory cache"))
	if err != nil {
		f.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	if f.client == nil {
		client, err := newSecretManagerClient(ctx, f.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client, f.ownsClient = client, true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret makes Fetcher a config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value for ref.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.clock()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	version := parsed.version
	if version == "" {
		version = f.pinnedVersion(parsed.canonical)
	}
	key := parsed.canonical + "#" + version

	if value, ok := f.cached(key); ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.canonical))))
		}
		f.observe(ctx, start, "cache", nil)
		return value, nil
	}

	v, err, _ := f.inflight.Do(key, func() (any, error) {
		value, source, err := f.load(ctx, parsed, version)
		f.observe(ctx, start, source, err)
		if err != nil {
			return "", err
		}
		f.store(key, parsed.canonical, value)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// load asks Secret Manager first. Permission and availability failures fall through to the
// fallback file; NotFound does not, so a deleted secret never silently resolves to a dev value.
func (f *Fetcher) load(ctx context.Context, ref reference, version string) (string, string, error) {
	if project := firstNonEmpty(ref.project, f.project); project != "" && f.client != nil {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.secret, version)
		value, err := f.access(ctx, name)
		switch {
		case err == nil:
			return value, "remote", nil
		case status.Code(err) == codes.NotFound:
			return "", "remote", fmt.Errorf("%w: %s: %w", ErrNotFound, ref.canonical, err)
		case !recoverable(err):
			return "", "remote", fmt.Errorf("secrets: access %s: %w", ref.canonical, err)
		}
		f.logger.Debug("secrets: using fallback file", zap.String("ref", maskReference(ref.canonical)), zap.Error(err))
	}

	value, ok, err := f.fallback.lookup(ref.canonical, version)
	if err != nil {
		return "", "fallback", err
	}
	if !ok {
		return "", "fallback", fmt.Errorf("%w: no fallback value for %s", ErrNotFound, ref.canonical)
	}
	return value, "fallback", nil
}

func (f *Fetcher) access(ctx context.Context, name string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

// Ping checks that Secret Manager answers. A missing health secret counts as reachable.
func (f *Fetcher) Ping(ctx context.Context) error {
	f.Invalidate(HealthReference)
	if _, err := f.Resolve(ctx, HealthReference); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cache {
		if entry.canonical == parsed.canonical {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) pinnedVersion(canonical string) string {
	if pin := f.pins[canonical]; pin != "" {
		return pin
	}
	return "latest"
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	entry, ok := f.cache[key]
	f.mu.RUnlock()
	if !ok || !f.clock().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, canonical, value string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{value: value, canonical: canonical, expiresAt: f.clock().Add(f.cacheTTL)}
	f.mu.Unlock()
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string, err error) {
	if f.duration == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source), attribute.Bool("error", err != nil)}
	elapsed := f.clock().Sub(start)
	f.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

// recoverable lists remote failures the fallback file may stand in for.
func recoverable(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
