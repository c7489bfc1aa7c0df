package crm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/mazira-designs/api/internal/domain"
)

const (
	// DefaultRapidWebhookURL receives rapid onboarding submissions.
	DefaultRapidWebhookURL = "https://services.leadconnectorhq.com/hooks/k0kSpAXAHqFOlef030ZV/webhook-trigger/VsToUzxUlNEhuhFlt4vW"
	// DefaultFullWebhookURL receives full onboarding submissions.
	DefaultFullWebhookURL = "https://services.leadconnectorhq.com/hooks/k0kSpAXAHqFOlef030ZV/webhook-trigger/iXnzTITay8UD167PFUSj"
	// DefaultContactsURL is the contacts endpoint of the REST API.
	DefaultContactsURL = "https://rest.gohighlevel.com/v1/contacts/"

	leadSource     = "website_onboarding"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 2048
)

// ErrNotConfigured is returned when a client is used without its endpoint or credentials.
var ErrNotConfigured = errors.New("crm: client not configured")

// Submitter forwards a lead to the CRM.
type Submitter interface {
	Submit(ctx context.Context, lead domain.Lead) error
}

// TransportError reports an unreachable CRM or a non-2xx response. Callers may retry.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("crm: %s responded %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("crm: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether a retry could succeed.
func (e *TransportError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Logger receives client events.
type Logger func(ctx context.Context, event string, fields map[string]any)

func checkResponse(endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &TransportError{
		Endpoint:   redactEndpoint(endpoint),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// redactEndpoint drops the trigger id so webhook secrets stay out of logs.
func redactEndpoint(endpoint string) string {
	if idx := strings.Index(endpoint, "/webhook-trigger/"); idx >= 0 {
		return endpoint[:idx] + "/webhook-trigger/…"
	}
	return endpoint
}

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
