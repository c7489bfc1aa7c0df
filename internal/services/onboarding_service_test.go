package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/mazira-designs/api/internal/crm"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/media"
)

type stubSubmitter struct {
	leads []domain.Lead
	err   error
}

func (s *stubSubmitter) Submit(_ context.Context, lead domain.Lead) error {
	s.leads = append(s.leads, lead)
	return s.err
}

type stubContacts struct {
	id    string
	err   error
	calls int
}

func (s *stubContacts) CreateContact(context.Context, domain.Lead) (string, error) {
	s.calls++
	return s.id, s.err
}

type stubUploader struct {
	url   string
	err   error
	files []media.File
}

func (s *stubUploader) Upload(_ context.Context, file media.File) (string, error) {
	s.files = append(s.files, file)
	return s.url, s.err
}

var onboardingNow = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

func rapidFields() []LeadField {
	return []LeadField{
		{ID: "first_name", Value: " Ada "},
		{ID: "email", Value: "Ada@Example.com"},
		{ID: "company_name", Value: "Acme <b>Labs</b>"},
		{ID: "website", Value: "acme.example"},
		{ID: "target_audience", Value: "Founders"},
		{ID: "marketing_channels", Value: "Instagram"},
		{ID: "marketing_channels", Value: "TikTok"},
		{ID: "onboarding_type", Value: "spoofed"},
		{ID: "industry", Value: ""},
	}
}

func pngLogo(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type onboardingFixture struct {
	svc      OnboardingService
	webhook  *stubSubmitter
	contacts *stubContacts
	uploader *stubUploader
	events   *recordingPublisher
	logs     []string
}

func newOnboardingFixture(t *testing.T) *onboardingFixture {
	t.Helper()
	f := &onboardingFixture{
		webhook:  &stubSubmitter{},
		contacts: &stubContacts{id: "contact-1"},
		uploader: &stubUploader{url: "https://res.cloudinary.com/mazira/logo.png"},
		events:   &recordingPublisher{},
	}
	svc, err := NewOnboardingService(OnboardingServiceDeps{
		Webhook:  f.webhook,
		Contacts: f.contacts,
		Uploader: f.uploader,
		Events:   f.events,
		Clock:    func() time.Time { return onboardingNow },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			f.logs = append(f.logs, event)
		},
	})
	if err != nil {
		t.Fatalf("NewOnboardingService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *onboardingFixture) logged(event string) bool {
	for _, e := range f.logs {
		if e == event {
			return true
		}
	}
	return false
}

func TestNewOnboardingServiceRequiresWebhook(t *testing.T) {
	if _, err := NewOnboardingService(OnboardingServiceDeps{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOnboardingServiceSubmitsNormalisedLead(t *testing.T) {
	f := newOnboardingFixture(t)
	result, err := f.svc.Submit(context.Background(), OnboardingCommand{
		Mode:   domain.OnboardingFull,
		Fields: rapidFields(),
		Goals:  []string{"Sales", "Awareness"},
		Logo:   &LogoUpload{Name: "logo.png", ContentType: "image/png", Data: pngLogo(t)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.LogoURL == "" || result.ContactID != "contact-1" || result.Mode != domain.OnboardingFull {
		t.Fatalf("unexpected result %+v", result)
	}

	if len(f.webhook.leads) != 1 {
		t.Fatalf("expected one webhook call")
	}
	lead := f.webhook.leads[0]
	if lead.FirstName != "Ada" || lead.Email != "ada@example.com" || lead.CompanyName != "Acme Labs" {
		t.Fatalf("unexpected contact fields %+v", lead)
	}
	if lead.LogoURL != result.LogoURL || !lead.SubmittedAt.Equal(onboardingNow) {
		t.Fatalf("unexpected lead metadata %+v", lead)
	}
	want := []LeadField{
		{ID: "target_audience", Value: "Founders"},
		{ID: "marketing_channels", Value: "Instagram, TikTok"},
		{ID: "content_goals", Value: "Sales, Awareness"},
	}
	if len(lead.Fields) != len(want) {
		t.Fatalf("expected fields %+v, got %+v", want, lead.Fields)
	}
	for i := range want {
		if lead.Fields[i] != want[i] {
			t.Fatalf("field %d: expected %+v, got %+v", i, want[i], lead.Fields[i])
		}
	}
	if len(f.events.leads) != 1 || !f.events.leads[0].HasLogo {
		t.Fatalf("expected lead event, got %+v", f.events.leads)
	}
}

func TestOnboardingServiceRejectsMissingRequiredFields(t *testing.T) {
	f := newOnboardingFixture(t)
	_, err := f.svc.Submit(context.Background(), OnboardingCommand{
		Mode:   domain.OnboardingRapid,
		Fields: []LeadField{{ID: "first_name", Value: "Ada"}, {ID: "email", Value: "not-an-email"}},
	})
	if !errors.Is(err, ErrOnboardingInvalidInput) {
		t.Fatalf("expected ErrOnboardingInvalidInput, got %v", err)
	}
	if len(f.webhook.leads) != 0 {
		t.Fatalf("webhook must not be called")
	}
}

func TestOnboardingServiceRejectsUnknownMode(t *testing.T) {
	f := newOnboardingFixture(t)
	if _, err := f.svc.Submit(context.Background(), OnboardingCommand{Mode: "express", Fields: rapidFields()}); !errors.Is(err, ErrOnboardingInvalidInput) {
		t.Fatalf("expected ErrOnboardingInvalidInput, got %v", err)
	}
}

func TestOnboardingServiceDropsInvalidLogo(t *testing.T) {
	f := newOnboardingFixture(t)
	result, err := f.svc.Submit(context.Background(), OnboardingCommand{
		Mode:   domain.OnboardingRapid,
		Fields: rapidFields(),
		Logo:   &LogoUpload{Name: "logo.png", ContentType: "image/png", Data: []byte("plain text")},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(f.uploader.files) != 0 {
		t.Fatalf("uploader must not be called")
	}
	if result.LogoURL != "" || !strings.HasPrefix(result.LogoSkipped, "logo rejected") {
		t.Fatalf("expected rejected logo to be skipped, got %+v", result)
	}
	if len(f.webhook.leads) != 1 || f.webhook.leads[0].LogoURL != "" {
		t.Fatalf("expected lead sent without logo_url, got %+v", f.webhook.leads)
	}
	if !f.logged("onboarding.logo_rejected") {
		t.Fatalf("expected rejection to be logged, got %v", f.logs)
	}
}

func TestOnboardingServiceContinuesWhenUploadFails(t *testing.T) {
	f := newOnboardingFixture(t)
	f.uploader.err = &media.UploadError{Backend: "cloudinary", Err: errors.New("503")}

	result, err := f.svc.Submit(context.Background(), OnboardingCommand{
		Mode:   domain.OnboardingRapid,
		Fields: rapidFields(),
		Logo:   &LogoUpload{Name: "logo.png", ContentType: "image/png", Data: pngLogo(t)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.LogoURL != "" || result.LogoSkipped == "" {
		t.Fatalf("expected skipped logo, got %+v", result)
	}
	if len(f.webhook.leads) != 1 || f.webhook.leads[0].LogoURL != "" {
		t.Fatalf("expected lead without logo_url")
	}
	if !f.logged("onboarding.logo_upload_failed") {
		t.Fatalf("expected upload failure to be logged, got %v", f.logs)
	}
}

func TestOnboardingServiceWebhookFailure(t *testing.T) {
	f := newOnboardingFixture(t)
	f.webhook.err = &crm.TransportError{Endpoint: "https://hooks.example", StatusCode: 502}

	_, err := f.svc.Submit(context.Background(), OnboardingCommand{Mode: domain.OnboardingRapid, Fields: rapidFields()})
	if !errors.Is(err, ErrOnboardingDeliveryFailed) {
		t.Fatalf("expected ErrOnboardingDeliveryFailed, got %v", err)
	}
	var transport *crm.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError in chain, got %v", err)
	}
	if f.contacts.calls != 0 || len(f.events.leads) != 0 {
		t.Fatalf("no follow-up calls expected after webhook failure")
	}
}

func TestOnboardingServiceContactFailureIsNotFatal(t *testing.T) {
	f := newOnboardingFixture(t)
	f.contacts.id = ""
	f.contacts.err = errors.New("401")

	if _, err := f.svc.Submit(context.Background(), OnboardingCommand{Mode: domain.OnboardingRapid, Fields: rapidFields()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !f.logged("onboarding.contact_failed") {
		t.Fatalf("expected contact failure to be logged, got %v", f.logs)
	}
}
