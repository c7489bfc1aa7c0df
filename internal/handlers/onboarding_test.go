package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mazira-designs/api/internal/crm"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/services"
)

type stubOnboardingService struct {
	cmd    services.OnboardingCommand
	calls  int
	result services.OnboardingResult
	err    error
}

func (s *stubOnboardingService) Submit(_ context.Context, cmd services.OnboardingCommand) (services.OnboardingResult, error) {
	s.calls++
	s.cmd = cmd
	if s.err != nil {
		return services.OnboardingResult{}, s.err
	}
	result := s.result
	result.Mode = cmd.Mode
	return result, nil
}

func newOnboardingRouter(svc services.OnboardingService) chi.Router {
	router := chi.NewRouter()
	router.Route("/onboarding", NewOnboardingHandlers(svc).Routes)
	return router
}

func TestOnboardingHandlersJSON(t *testing.T) {
	svc := &stubOnboardingService{result: services.OnboardingResult{ContactID: "c-1", SubmittedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}}
	router := newOnboardingRouter(svc)

	body := `{"fields":[{"id":"first_name","value":"Ada"},{"id":"email","value":"ada@example.com"}],"goals":["Sales"]}`
	req := httptest.NewRequest(http.MethodPost, "/onboarding/rapid", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.cmd.Mode != domain.OnboardingRapid || len(svc.cmd.Fields) != 2 || svc.cmd.Fields[1].ID != "email" {
		t.Fatalf("unexpected command %+v", svc.cmd)
	}
	if len(svc.cmd.Goals) != 1 || svc.cmd.Goals[0] != "Sales" {
		t.Fatalf("expected goals, got %v", svc.cmd.Goals)
	}
	var resp onboardingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "rapid" || resp.ContactID != "c-1" || resp.SubmittedAt == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOnboardingHandlersMultipartKeepsOrder(t *testing.T) {
	svc := &stubOnboardingService{}
	router := newOnboardingRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("company_name", "Acme")
	_ = mw.WriteField("first_name", "Ada")
	_ = mw.WriteField("marketing_channels[]", "Instagram")
	_ = mw.WriteField("content_goals", "Awareness")
	_ = mw.WriteField("marketing_channels[]", "TikTok")
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="company_logo"; filename="logo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/onboarding/full", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var ids []string
	for _, f := range svc.cmd.Fields {
		ids = append(ids, f.ID)
	}
	want := []string{"company_name", "first_name", "marketing_channels[]", "marketing_channels[]"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("expected field order %v, got %v", want, ids)
	}
	if len(svc.cmd.Goals) != 1 || svc.cmd.Goals[0] != "Awareness" {
		t.Fatalf("expected goals from multipart, got %v", svc.cmd.Goals)
	}
	if svc.cmd.Logo == nil || svc.cmd.Logo.Name != "logo.png" || svc.cmd.Logo.ContentType != "image/png" {
		t.Fatalf("expected logo upload, got %+v", svc.cmd.Logo)
	}
}

func TestOnboardingHandlersRejectsUnknownForm(t *testing.T) {
	svc := &stubOnboardingService{}
	router := newOnboardingRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/onboarding/express", bytes.NewBufferString(`{"fields":[]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound || svc.calls != 0 {
		t.Fatalf("expected 404 without submit, got %d (%d calls)", rr.Code, svc.calls)
	}
}

func TestOnboardingHandlersUnsupportedMediaType(t *testing.T) {
	router := newOnboardingRouter(&stubOnboardingService{})
	req := httptest.NewRequest(http.MethodPost, "/onboarding/rapid", bytes.NewBufferString("first_name=Ada"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestOnboardingHandlersErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid", err: fmt.Errorf("%w: email", services.ErrOnboardingInvalidInput), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "transport", err: fmt.Errorf("%w: %w", services.ErrOnboardingDeliveryFailed, &crm.TransportError{Endpoint: "https://hooks", StatusCode: 503}), status: http.StatusBadGateway, code: "crm_unavailable"},
		{name: "delivery", err: services.ErrOnboardingDeliveryFailed, status: http.StatusBadGateway, code: "crm_unavailable"},
		{name: "unexpected", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: "onboarding_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newOnboardingRouter(&stubOnboardingService{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/onboarding/rapid", bytes.NewBufferString(`{"fields":[{"id":"first_name","value":"Ada"}]}`))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}
