package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domain "github.com/mazira-designs/api/internal/domain"
)

// WebhookConfig configures the webhook client.
type WebhookConfig struct {
	RapidURL   string
	FullURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Clock      func() time.Time
	Logger     Logger
}

// WebhookClient posts onboarding leads to the inbound webhook for their mode.
type WebhookClient struct {
	urls   map[domain.OnboardingMode]string
	http   *http.Client
	clock  func() time.Time
	logger Logger
}

// NewWebhookClient constructs a webhook client. Empty URLs fall back to the production triggers.
func NewWebhookClient(cfg WebhookConfig) *WebhookClient {
	rapid := strings.TrimSpace(cfg.RapidURL)
	if rapid == "" {
		rapid = DefaultRapidWebhookURL
	}
	full := strings.TrimSpace(cfg.FullURL)
	if full == "" {
		full = DefaultFullWebhookURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookClient{
		urls: map[domain.OnboardingMode]string{
			domain.OnboardingRapid: rapid,
			domain.OnboardingFull:  full,
		},
		http:   newHTTPClient(cfg.HTTPClient, cfg.Timeout),
		clock:  clock,
		logger: logger,
	}
}

type webhookContact struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Website     string `json:"website,omitempty"`
}

type webhookField struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type webhookPayload struct {
	Contact        webhookContact `json:"contact"`
	CustomFields   []webhookField `json:"customFields"`
	Source         string         `json:"source"`
	WorkflowType   string         `json:"workflow_type"`
	SubmissionType string         `json:"submissionType"`
	Timestamp      string         `json:"timestamp"`
}

// Submit posts the lead. The endpoint is chosen by lead.Mode, never by payload shape.
func (c *WebhookClient) Submit(ctx context.Context, lead domain.Lead) error {
	if c == nil {
		return ErrNotConfigured
	}
	endpoint, ok := c.urls[lead.Mode]
	if !ok {
		return fmt.Errorf("crm: unsupported onboarding mode %q", lead.Mode)
	}

	payload := webhookPayload{
		Contact: webhookContact{
			FirstName:   lead.FirstName,
			LastName:    lead.LastName,
			Email:       lead.Email,
			Phone:       lead.Phone,
			CompanyName: lead.CompanyName,
			Website:     lead.Website,
		},
		CustomFields:   customFields(lead),
		Source:         leadSource,
		WorkflowType:   string(lead.Mode),
		SubmissionType: string(lead.Mode),
		Timestamp:      submittedAt(lead, c.clock).Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("crm: encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crm: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		return &TransportError{Endpoint: redactEndpoint(endpoint), Err: err}
	}
	defer resp.Body.Close()
	if err := checkResponse(endpoint, resp); err != nil {
		return err
	}

	c.logger(ctx, "crm.webhook.submitted", map[string]any{
		"mode":   lead.Mode,
		"fields": len(payload.CustomFields),
		"status": resp.StatusCode,
	})
	return nil
}

// customFields lists logo_url and onboarding_type before the form fields, skipping empty values.
func customFields(lead domain.Lead) []webhookField {
	fields := make([]webhookField, 0, len(lead.Fields)+2)
	if lead.LogoURL != "" {
		fields = append(fields, webhookField{ID: "logo_url", Value: lead.LogoURL})
	}
	fields = append(fields, webhookField{ID: "onboarding_type", Value: string(lead.Mode)})
	for _, f := range lead.Fields {
		if strings.TrimSpace(f.Value) == "" || f.ID == "logo" || f.ID == "company_logo" {
			continue
		}
		fields = append(fields, webhookField{ID: f.ID, Value: f.Value})
	}
	return fields
}

func submittedAt(lead domain.Lead, clock func() time.Time) time.Time {
	if !lead.SubmittedAt.IsZero() {
		return lead.SubmittedAt.UTC()
	}
	return clock().UTC()
}
