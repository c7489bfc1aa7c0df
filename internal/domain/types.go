package domain

import (
	"time"
)

// CheckoutRecord keeps what was sent to the payment provider so the onboarding step can prefill
// customer data after the redirect.
type CheckoutRecord struct {
	ID        string
	SessionID string
	Provider  string
	VisitorID string
	LineItems []PlanLineItem
	Total     int64
	Currency  string
	Customer  CustomerData
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OnboardingMode selects the intake form and CRM webhook.
type OnboardingMode string

const (
	OnboardingRapid OnboardingMode = "rapid"
	OnboardingFull  OnboardingMode = "full"
)

// ParseOnboardingMode matches "rapid" or "full".
func ParseOnboardingMode(value string) (OnboardingMode, bool) {
	switch OnboardingMode(value) {
	case OnboardingRapid, OnboardingFull:
		return OnboardingMode(value), true
	default:
		return "", false
	}
}

// Lead is a normalised onboarding submission bound for the CRM.
type Lead struct {
	Mode        OnboardingMode
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	CompanyName string
	Website     string
	Goals       []string
	LogoURL     string
	// Fields holds every remaining form field in submission order.
	Fields      []LeadField
	SubmittedAt time.Time
}

// LeadField is a single custom field value.
type LeadField struct {
	ID    string
	Value string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
