package services

import (
	"context"
	"time"

	"github.com/mazira-designs/api/internal/configurator"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Category           = domain.Category
	Platform           = domain.Platform
	PlanLineItem       = domain.PlanLineItem
	CheckoutCartItem   = domain.CheckoutCartItem
	CustomerData       = domain.CustomerData
	CheckoutRecord     = domain.CheckoutRecord
	Lead               = domain.Lead
	LeadField          = domain.LeadField
	OnboardingMode     = domain.OnboardingMode
	SystemHealthReport = domain.SystemHealthReport
	PlanState          = configurator.State
	CategoryState      = configurator.CategoryState
)

// PlanService exposes the catalog and runs selector operations against a stored plan state.
type PlanService interface {
	Catalog(ctx context.Context) []CategoryView
	Category(ctx context.Context, category Category) (CategoryView, error)
	Evaluate(ctx context.Context, state PlanState) (PlanView, error)
	Apply(ctx context.Context, state PlanState, op PlanOperation) (PlanView, error)
	Quote(ctx context.Context, selections []CategoryState) (PlanView, error)
}

// CheckoutService turns a plan into a hosted payment session.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error)
	LookupCheckoutSession(ctx context.Context, sessionID string) (CheckoutSessionStatus, error)
}

// OnboardingService forwards intake forms to the CRM.
type OnboardingService interface {
	Submit(ctx context.Context, cmd OnboardingCommand) (OnboardingResult, error)
}

// SystemService aggregates utility endpoints (health checks).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EventPublisher emits integration events. Implementations must be safe for concurrent use.
type EventPublisher interface {
	PublishCheckoutSession(ctx context.Context, event CheckoutSessionEvent) (string, error)
	PublishLead(ctx context.Context, event LeadSubmittedEvent) (string, error)
}

// TierView is a tier option as shown in the plan builder.
type TierView struct {
	Key          string `json:"key"`
	PriceID      string `json:"priceId"`
	Label        string `json:"label"`
	DisplayLabel string `json:"displayLabel"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unitPrice"`
	Default      bool   `json:"default"`
}

// PlatformView is a selectable platform with its add-on price.
type PlatformView struct {
	Platform   Platform `json:"platform"`
	Name       string   `json:"name"`
	FreeKey    string   `json:"freeKey"`
	AddKey     string   `json:"addKey"`
	AddPriceID string   `json:"addPriceId"`
}

// CategoryView describes one configurable category.
type CategoryView struct {
	Category            Category       `json:"category"`
	Name                string         `json:"name"`
	Kind                string         `json:"kind"`
	Unit                string         `json:"unit,omitempty"`
	Tiers               []TierView     `json:"tiers"`
	Platforms           []PlatformView `json:"platforms,omitempty"`
	DefaultFreePlatform Platform       `json:"defaultFreePlatform,omitempty"`
	Surcharge           int64          `json:"surcharge,omitempty"`
}

// PlanAction names a selector operation.
type PlanAction string

const (
	PlanActionSelectTier     PlanAction = "select_tier"
	PlanActionToggleTier     PlanAction = "toggle_tier"
	PlanActionClearTier      PlanAction = "clear_tier"
	PlanActionDefaultTier    PlanAction = "default_tier"
	PlanActionFreePlatform   PlanAction = "free_platform"
	PlanActionTogglePlatform PlanAction = "toggle_platform"
	PlanActionClear          PlanAction = "clear"
)

// PlanOperation is one user interaction with the plan builder.
type PlanOperation struct {
	Action   PlanAction
	Category Category
	Value    string
	Checked  bool
}

// PlanView is the evaluated plan returned to clients. State is the normalised form to persist.
type PlanView struct {
	State     PlanState      `json:"-"`
	LineItems []PlanLineItem `json:"lineItems"`
	Total     int64          `json:"total"`
	Currency  string         `json:"currency"`
	Skipped   []string       `json:"skipped,omitempty"`
	Changed   bool           `json:"changed"`
}

// CreateCheckoutSessionCommand captures checkout input. LineItems take precedence over State.
type CreateCheckoutSessionCommand struct {
	VisitorID      string
	LineItems      []PlanLineItem
	State          *PlanState
	Customer       CustomerData
	IdempotencyKey string
}

// CheckoutSessionResult is returned after the provider session has been created.
type CheckoutSessionResult struct {
	SessionID   string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
	Cart        []CheckoutCartItem
	Total       int64
	Currency    string
}

// CheckoutSessionStatus merges the provider view with the stored checkout record.
type CheckoutSessionStatus struct {
	Session payments.SessionDetails
	Record  *CheckoutRecord
}

// OnboardingCommand is a raw intake form submission. Fields keep submission order; repeated
// keys are joined.
type OnboardingCommand struct {
	Mode   OnboardingMode
	Fields []LeadField
	Goals  []string
	Logo   *LogoUpload
}

// LogoUpload is the optional company logo attached to an onboarding form.
type LogoUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// OnboardingResult reports what reached the CRM.
type OnboardingResult struct {
	Mode        OnboardingMode
	LogoURL     string
	LogoSkipped string
	ContactID   string
	SubmittedAt time.Time
}

// CheckoutSessionEvent is published after a provider session is created.
type CheckoutSessionEvent struct {
	EventID        string             `json:"eventId"`
	SessionID      string             `json:"sessionId"`
	Provider       string             `json:"provider"`
	VisitorID      string             `json:"visitorId,omitempty"`
	Total          int64              `json:"total"`
	Currency       string             `json:"currency"`
	Items          []CheckoutCartItem `json:"items"`
	CreatedAt      time.Time          `json:"createdAt"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty"`
}

// LeadSubmittedEvent is published after a lead has been accepted by the CRM.
type LeadSubmittedEvent struct {
	EventID     string    `json:"eventId"`
	Mode        string    `json:"mode"`
	Email       string    `json:"email"`
	CompanyName string    `json:"companyName,omitempty"`
	HasLogo     bool      `json:"hasLogo"`
	Goals       []string  `json:"goals,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}
