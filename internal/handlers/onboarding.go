package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mazira-designs/api/internal/crm"
	domain "github.com/mazira-designs/api/internal/domain"
	"github.com/mazira-designs/api/internal/media"
	"github.com/mazira-designs/api/internal/platform/httpx"
	"github.com/mazira-designs/api/internal/services"
)

const (
	maxOnboardingJSONBody  = 64 * 1024
	maxOnboardingFieldSize = 16 * 1024
	logoFieldName          = "company_logo"
)

// OnboardingHandlers accept the rapid and full intake forms.
type OnboardingHandlers struct {
	onboarding  services.OnboardingService
	maxLogoSize int64
}

// OnboardingOption customises onboarding handlers.
type OnboardingOption func(*OnboardingHandlers)

// WithMaxLogoSize caps the logo part read from multipart submissions.
func WithMaxLogoSize(limit int64) OnboardingOption {
	return func(h *OnboardingHandlers) {
		if limit > 0 {
			h.maxLogoSize = limit
		}
	}
}

// NewOnboardingHandlers constructs onboarding handlers.
func NewOnboardingHandlers(onboarding services.OnboardingService, opts ...OnboardingOption) *OnboardingHandlers {
	h := &OnboardingHandlers{onboarding: onboarding, maxLogoSize: media.DefaultMaxBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers onboarding endpoints under the provided router.
func (h *OnboardingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{mode}", h.submit)
}

type onboardingFieldPayload struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type onboardingRequest struct {
	Fields []onboardingFieldPayload `json:"fields"`
	Goals  []string                 `json:"goals"`
}

type onboardingResponse struct {
	Mode        string `json:"mode"`
	LogoURL     string `json:"logoUrl,omitempty"`
	LogoSkipped string `json:"logoSkipped,omitempty"`
	ContactID   string `json:"contactId,omitempty"`
	SubmittedAt string `json:"submittedAt"`
}

func (h *OnboardingHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.onboarding == nil {
		httpx.WriteError(ctx, w, httpx.NewError("onboarding_unavailable", "onboarding is unavailable", http.StatusServiceUnavailable))
		return
	}

	mode, ok := domain.ParseOnboardingMode(strings.ToLower(chi.URLParam(r, "mode")))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("route_not_found", "unknown onboarding form", http.StatusNotFound))
		return
	}

	cmd := services.OnboardingCommand{Mode: mode}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxLogoSize+4*maxOnboardingJSONBody)
		if herr := h.readMultipart(r, &cmd); herr != nil {
			httpx.WriteError(ctx, w, *herr)
			return
		}
	case "application/json", "":
		var req onboardingRequest
		if herr := decodeJSONBody(r, maxOnboardingJSONBody, &req, false); herr != nil {
			httpx.WriteError(ctx, w, *herr)
			return
		}
		for _, f := range req.Fields {
			cmd.Fields = append(cmd.Fields, services.LeadField{ID: f.ID, Value: f.Value})
		}
		cmd.Goals = req.Goals
	default:
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_media_type", "use application/json or multipart/form-data", http.StatusUnsupportedMediaType))
		return
	}

	result, err := h.onboarding.Submit(ctx, cmd)
	if err != nil {
		writeOnboardingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, onboardingResponse{
		Mode:        string(result.Mode),
		LogoURL:     result.LogoURL,
		LogoSkipped: result.LogoSkipped,
		ContactID:   result.ContactID,
		SubmittedAt: formatTime(result.SubmittedAt),
	})
}

// readMultipart streams parts so fields keep their submission order.
func (h *OnboardingHandlers) readMultipart(r *http.Request, cmd *services.OnboardingCommand) *httpx.Error {
	invalid := func(msg string) *httpx.Error {
		e := httpx.NewError("invalid_request", msg, http.StatusBadRequest)
		return &e
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return invalid(err.Error())
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return invalid(fmt.Sprintf("malformed multipart body: %v", err))
		}

		name := part.FormName()
		if name == logoFieldName {
			if part.FileName() == "" {
				_ = part.Close()
				continue
			}
			// One byte over the limit lets the media policy report the size error.
			data, err := io.ReadAll(io.LimitReader(part, h.maxLogoSize+1))
			_ = part.Close()
			if err != nil {
				return invalid(fmt.Sprintf("read %s: %v", logoFieldName, err))
			}
			if len(data) > 0 {
				cmd.Logo = &services.LogoUpload{
					Name:        part.FileName(),
					ContentType: part.Header.Get("Content-Type"),
					Data:        data,
				}
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxOnboardingFieldSize+1))
		_ = part.Close()
		if err != nil {
			return invalid(fmt.Sprintf("read %s: %v", name, err))
		}
		if len(data) > maxOnboardingFieldSize {
			e := httpx.NewError("payload_too_large", fmt.Sprintf("%s is too large", name), http.StatusRequestEntityTooLarge)
			return &e
		}
		switch strings.TrimSuffix(name, "[]") {
		case "goals", "content_goals":
			cmd.Goals = append(cmd.Goals, string(data))
		default:
			cmd.Fields = append(cmd.Fields, services.LeadField{ID: name, Value: string(data)})
		}
	}
}

func writeOnboardingError(ctx context.Context, w http.ResponseWriter, err error) {
	var transport *crm.TransportError
	switch {
	case errors.Is(err, services.ErrOnboardingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.As(err, &transport):
		e := httpx.NewError("crm_unavailable", "the form could not be delivered, please try again", http.StatusBadGateway)
		if transport.StatusCode != 0 {
			e = e.WithDetails(map[string]any{"upstreamStatus": transport.StatusCode, "retryable": transport.Temporary()})
		}
		httpx.WriteError(ctx, w, e)
	case errors.Is(err, services.ErrOnboardingDeliveryFailed):
		httpx.WriteError(ctx, w, httpx.NewError("crm_unavailable", "the form could not be delivered, please try again", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("onboarding_error", "failed to submit onboarding form", http.StatusInternalServerError))
	}
}
