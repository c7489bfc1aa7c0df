package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mazira-designs/api/internal/platform/httpx"
	"github.com/mazira-designs/api/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
	maxBodyBytes      = 1 << 20
)

// Logger receives store failures that do not change the response.
type Logger interface {
	Printf(format string, args ...any)
}

type guard struct {
	store   Store
	next    http.Handler
	header  string
	ttl     time.Duration
	methods []string
	now     func() time.Time
	logger  Logger
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*guard)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long keys are remembered.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods replaces the guarded methods. The default is POST only.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		var out []string
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			g.methods = out
		}
	}
}

func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) { g.logger = logger }
}

func WithClock(now func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if now != nil {
			g.now = now
		}
	}
}

// Middleware requires an idempotency key on guarded methods and replays the first non-5xx
// response stored under it. A nil store disables the check.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	proto := guard{
		store:   store,
		header:  defaultHeaderName,
		ttl:     DefaultTTL,
		methods: []string{http.MethodPost},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&proto)
		}
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		g := proto
		g.next = next
		return &g
	}
}

func (g *guard) guards(method string) bool {
	for _, m := range g.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.guards(r.Method) {
		g.next.ServeHTTP(w, r)
		return
	}
	ctx := r.Context()

	value := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case value == "":
		fail(ctx, w, http.StatusBadRequest, "idempotency_key_required", "missing "+g.header+" header")
		return
	case len(value) > maxKeyLength:
		fail(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key is too long")
		return
	}

	body, err := bufferBody(r)
	if errors.Is(err, errBodyTooLarge) {
		fail(ctx, w, http.StatusRequestEntityTooLarge, "request_too_large", "request body is too large")
		return
	}
	if err != nil {
		fail(ctx, w, http.StatusBadRequest, "invalid_body", "unable to read request body")
		return
	}

	key := keyFor(r, value, body)
	claim, err := g.store.Claim(ctx, key, g.now(), g.ttl)
	if errors.Is(err, ErrFingerprintMismatch) {
		fail(ctx, w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	}
	if err != nil {
		g.logf("idempotency: claim %s: %v", value, err)
		fail(ctx, w, http.StatusServiceUnavailable, "idempotency_unavailable", "unable to process idempotency key")
		return
	}

	switch claim.State {
	case Replay:
		replay(w, claim.Record)
	case InFlight:
		fail(ctx, w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
	default:
		g.serveFresh(ctx, w, r, key)
	}
}

func (g *guard) serveFresh(ctx context.Context, w http.ResponseWriter, r *http.Request, key Key) {
	buf := &bufferedWriter{header: http.Header{}}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				g.abandon(ctx, key)
				panic(rec)
			}
		}()
		g.next.ServeHTTP(buf, r)
	}()

	resp := buf.response()
	if resp.Status >= http.StatusInternalServerError {
		// failures are retryable under the same key
		g.abandon(ctx, key)
		buf.flushTo(w)
		return
	}
	if err := g.store.Complete(ctx, key, resp, g.now(), g.ttl); err != nil {
		g.logf("idempotency: complete %s (%s): %v", key.Value, key.Scope, err)
		g.abandon(ctx, key)
		fail(ctx, w, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	buf.flushTo(w)
}

func (g *guard) abandon(ctx context.Context, key Key) {
	if err := g.store.Abandon(context.WithoutCancel(ctx), key); err != nil {
		g.logf("idempotency: abandon %s: %v", key.Value, err)
	}
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

var errBodyTooLarge = errors.New("idempotency: body too large")

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// keyFor scopes value to the plan-session visitor and fingerprints the method, route and body.
// Requests without a visitor share the anonymous scope.
func keyFor(r *http.Request, value string, body []byte) Key {
	scope := "anonymous"
	if id := strings.TrimSpace(requestctx.VisitorID(r.Context())); id != "" {
		scope = "visitor:" + id
	}
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return Key{Value: value, Scope: scope, Fingerprint: hex.EncodeToString(h.Sum(nil))}
}

func replay(w http.ResponseWriter, record Record) {
	dst := w.Header()
	for name, values := range record.Header {
		dst[name] = append([]string(nil), values...)
	}
	dst.Set(replayHeaderName, "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

func fail(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// bufferedWriter holds the handler output until the store has accepted it.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) response() Response {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	return Response{Status: status, Header: b.header.Clone(), Body: b.body.Bytes()}
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	resp := b.response()
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
