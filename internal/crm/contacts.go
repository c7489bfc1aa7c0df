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

var goalTags = map[string]string{
	"sales":     "goal_sales",
	"awareness": "goal_awareness",
	"education": "goal_education",
	"trust":     "goal_trust",
}

// ContactsConfig configures the contacts API client.
type ContactsConfig struct {
	URL        string
	APIKey     string
	LocationID string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     Logger
}

// ContactsClient creates contacts through the REST API.
type ContactsClient struct {
	url        string
	apiKey     string
	locationID string
	http       *http.Client
	logger     Logger
}

// NewContactsClient returns ErrNotConfigured without an API key or location id.
func NewContactsClient(cfg ContactsConfig) (*ContactsClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	location := strings.TrimSpace(cfg.LocationID)
	if apiKey == "" || location == "" {
		return nil, ErrNotConfigured
	}
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = DefaultContactsURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ContactsClient{
		url:        endpoint,
		apiKey:     apiKey,
		locationID: location,
		http:       newHTTPClient(cfg.HTTPClient, cfg.Timeout),
		logger:     logger,
	}, nil
}

type contactField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type contactPayload struct {
	LocationID   string         `json:"locationId"`
	FirstName    string         `json:"firstName,omitempty"`
	LastName     string         `json:"lastName,omitempty"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	CompanyName  string         `json:"companyName,omitempty"`
	Website      string         `json:"website,omitempty"`
	Tags         []string       `json:"tags"`
	Source       string         `json:"source"`
	CustomFields []contactField `json:"customFields,omitempty"`
}

type contactResponse struct {
	ID      string `json:"id"`
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

// CreateContact creates the contact and returns its id.
func (c *ContactsClient) CreateContact(ctx context.Context, lead domain.Lead) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	payload := contactPayload{
		LocationID:  c.locationID,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		Email:       lead.Email,
		Phone:       lead.Phone,
		CompanyName: lead.CompanyName,
		Website:     lead.Website,
		Tags:        Tags(lead),
		Source:      leadSource,
	}
	if lead.LogoURL != "" {
		payload.CustomFields = append(payload.CustomFields, contactField{Name: "company_logo_url", Value: lead.LogoURL})
	}
	for _, f := range lead.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		payload.CustomFields = append(payload.CustomFields, contactField{Name: f.ID, Value: f.Value})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("crm: encode contact: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("crm: build contact request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", ctxErr
		}
		return "", &TransportError{Endpoint: c.url, Err: err}
	}
	defer resp.Body.Close()
	if err := checkResponse(c.url, resp); err != nil {
		return "", err
	}

	var decoded contactResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &TransportError{Endpoint: c.url, Err: fmt.Errorf("decode response: %w", err)}
	}
	id := decoded.ID
	if id == "" {
		id = decoded.Contact.ID
	}
	c.logger(ctx, "crm.contact.created", map[string]any{"mode": lead.Mode, "contactId": id, "tags": payload.Tags})
	return id, nil
}

// Submit satisfies Submitter.
func (c *ContactsClient) Submit(ctx context.Context, lead domain.Lead) error {
	_, err := c.CreateContact(ctx, lead)
	return err
}

// Tags returns the onboarding tag for the mode followed by one tag per recognised goal.
func Tags(lead domain.Lead) []string {
	tags := []string{"Rapid Onboarding"}
	if lead.Mode == domain.OnboardingFull {
		tags[0] = "Full Onboarding"
	}
	seen := make(map[string]bool)
	for _, goal := range lead.Goals {
		tag, ok := goalTags[strings.ToLower(strings.TrimSpace(goal))]
		if !ok || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
