package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/mazira-designs/api/internal/crm"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/media"
	"github.com/mazira-designs/api/internal/platform/textutil"
)

const (
	maxOnboardingFields     = 64
	maxOnboardingValueRunes = 5000
	maxOnboardingGoals      = 16
)

var (
	// ErrOnboardingInvalidInput indicates a missing or oversized form field.
	ErrOnboardingInvalidInput = errors.New("onboarding: invalid input")
	// ErrOnboardingDeliveryFailed indicates the CRM did not accept the lead.
	ErrOnboardingDeliveryFailed = errors.New("onboarding: delivery failed")
)

// contactFieldIDs are promoted to the CRM contact instead of custom fields.
var contactFieldIDs = map[string]bool{
	"first_name":   true,
	"last_name":    true,
	"email":        true,
	"phone":        true,
	"company_name": true,
	"website":      true,
}

type contactCreator interface {
	CreateContact(ctx context.Context, lead Lead) (string, error)
}

// OnboardingServiceDeps wires the dependencies required by the onboarding service.
type OnboardingServiceDeps struct {
	Webhook  crm.Submitter
	Contacts contactCreator
	Uploader media.Uploader
	Policy   media.Policy
	Events   EventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type onboardingService struct {
	webhook  crm.Submitter
	contacts contactCreator
	uploader media.Uploader
	policy   media.Policy
	events   EventPublisher
	validate *validator.Validate
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

var _ OnboardingService = (*onboardingService)(nil)

// leadInput carries the contact fields through validation.
type leadInput struct {
	FirstName   string `validate:"required,max=80"`
	LastName    string `validate:"max=80"`
	Email       string `validate:"required,email,max=254"`
	Phone       string `validate:"max=40"`
	CompanyName string `validate:"required,max=160"`
	Website     string `validate:"max=500"`
}

// NewOnboardingService constructs an OnboardingService. Only the webhook is required.
func NewOnboardingService(deps OnboardingServiceDeps) (OnboardingService, error) {
	if deps.Webhook == nil {
		return nil, errors.New("onboarding service: crm webhook is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	policy := deps.Policy
	if policy.MaxBytes == 0 && len(policy.AllowedTypes) == 0 {
		policy = media.DefaultPolicy()
	}
	return &onboardingService{
		webhook:  deps.Webhook,
		contacts: deps.Contacts,
		uploader: deps.Uploader,
		policy:   policy,
		events:   deps.Events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Submit validates the form, stores the logo when possible and forwards the lead. A logo that is
// unusable or fails to upload is logged and the lead is sent without logo_url.
func (s *onboardingService) Submit(ctx context.Context, cmd OnboardingCommand) (OnboardingResult, error) {
	mode, ok := domain.ParseOnboardingMode(strings.ToLower(strings.TrimSpace(string(cmd.Mode))))
	if !ok {
		return OnboardingResult{}, fmt.Errorf("%w: unknown onboarding mode %q", ErrOnboardingInvalidInput, cmd.Mode)
	}

	lead, err := s.buildLead(mode, cmd)
	if err != nil {
		return OnboardingResult{}, err
	}

	result := OnboardingResult{Mode: mode, SubmittedAt: lead.SubmittedAt}
	if cmd.Logo != nil && len(cmd.Logo.Data) > 0 {
		prepared, err := s.policy.Prepare(media.File{Name: cmd.Logo.Name, ContentType: cmd.Logo.ContentType, Data: cmd.Logo.Data})
		if err != nil {
			s.logger(ctx, "onboarding.logo_rejected", map[string]any{
				"error": err.Error(),
				"size":  len(cmd.Logo.Data),
			})
			result.LogoSkipped = "logo rejected: " + err.Error()
		} else {
			lead.LogoURL, result.LogoSkipped = s.uploadLogo(ctx, prepared)
			result.LogoURL = lead.LogoURL
		}
	}

	if err := s.webhook.Submit(ctx, lead); err != nil {
		s.logger(ctx, "onboarding.crm_failed", map[string]any{
			"mode":  string(mode),
			"error": err.Error(),
		})
		return OnboardingResult{}, fmt.Errorf("%w: %w", ErrOnboardingDeliveryFailed, err)
	}

	if s.contacts != nil {
		id, err := s.contacts.CreateContact(ctx, lead)
		if err != nil {
			s.logger(ctx, "onboarding.contact_failed", map[string]any{
				"mode":  string(mode),
				"error": err.Error(),
			})
		}
		result.ContactID = id
	}

	if s.events != nil {
		event := LeadSubmittedEvent{
			EventID:     ulid.Make().String(),
			Mode:        string(mode),
			Email:       lead.Email,
			CompanyName: lead.CompanyName,
			HasLogo:     lead.LogoURL != "",
			Goals:       lead.Goals,
			SubmittedAt: lead.SubmittedAt,
		}
		if _, err := s.events.PublishLead(ctx, event); err != nil {
			s.logger(ctx, "onboarding.event_failed", map[string]any{"error": err.Error()})
		}
	}

	s.logger(ctx, "onboarding.submitted", map[string]any{
		"mode":    string(mode),
		"fields":  len(lead.Fields),
		"hasLogo": lead.LogoURL != "",
	})
	return result, nil
}

func (s *onboardingService) buildLead(mode OnboardingMode, cmd OnboardingCommand) (Lead, error) {
	if len(cmd.Fields) > maxOnboardingFields {
		return Lead{}, fmt.Errorf("%w: too many fields", ErrOnboardingInvalidInput)
	}

	contact := make(map[string]string, len(contactFieldIDs))
	var custom []LeadField
	index := make(map[string]int)
	for _, field := range cmd.Fields {
		id := normaliseFieldID(field.ID)
		if id == "" || id == "onboarding_type" || id == "logo_url" {
			continue
		}
		value := textutil.PlainText(field.Value)
		if len([]rune(value)) > maxOnboardingValueRunes {
			return Lead{}, fmt.Errorf("%w: %s is too long", ErrOnboardingInvalidInput, id)
		}
		if contactFieldIDs[id] {
			contact[id] = value
			continue
		}
		if value == "" {
			continue
		}
		if i, ok := index[id]; ok {
			custom[i].Value += ", " + value
			continue
		}
		index[id] = len(custom)
		custom = append(custom, LeadField{ID: id, Value: value})
	}

	input := leadInput{
		FirstName:   contact["first_name"],
		LastName:    contact["last_name"],
		Email:       strings.ToLower(contact["email"]),
		Phone:       contact["phone"],
		CompanyName: contact["company_name"],
		Website:     contact["website"],
	}
	if err := s.validate.Struct(input); err != nil {
		return Lead{}, fmt.Errorf("%w: %s", ErrOnboardingInvalidInput, validationSummary(err))
	}

	goals := make([]string, 0, len(cmd.Goals))
	for _, goal := range cmd.Goals {
		if goal = textutil.PlainText(goal); goal != "" && len(goals) < maxOnboardingGoals {
			goals = append(goals, goal)
		}
	}
	if len(goals) > 0 {
		custom = append(custom, LeadField{ID: "content_goals", Value: strings.Join(goals, ", ")})
	}

	return Lead{
		Mode:        mode,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Email:       input.Email,
		Phone:       input.Phone,
		CompanyName: input.CompanyName,
		Website:     input.Website,
		Goals:       goals,
		Fields:      custom,
		SubmittedAt: s.now(),
	}, nil
}

// uploadLogo returns the stored URL, or an empty URL and the reason it was skipped.
func (s *onboardingService) uploadLogo(ctx context.Context, file media.File) (string, string) {
	if s.uploader == nil {
		s.logger(ctx, "onboarding.logo_skipped", map[string]any{"reason": "no media backend"})
		return "", "media backend not configured"
	}
	url, err := s.uploader.Upload(ctx, file)
	if err != nil {
		fields := map[string]any{"error": err.Error(), "size": file.Size()}
		var uploadErr *media.UploadError
		if errors.As(err, &uploadErr) {
			fields["backend"] = uploadErr.Backend
		}
		s.logger(ctx, "onboarding.logo_upload_failed", fields)
		return "", "logo upload failed"
	}
	return url, ""
}

func normaliseFieldID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimSuffix(id, "[]")
	return strings.ReplaceAll(id, "-", "_")
}
