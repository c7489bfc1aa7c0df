package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const defaultCloudinaryBase = "https://api.cloudinary.com/v1_1"

// CloudinaryConfig configures unsigned uploads with an upload preset.
type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	Folder       string
	// BaseURL overrides the API host, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// CloudinaryUploader posts multipart uploads to the image upload endpoint.
type CloudinaryUploader struct {
	endpoint string
	preset   string
	folder   string
	http     *http.Client
}

// NewCloudinaryUploader requires a cloud name and upload preset.
func NewCloudinaryUploader(cfg CloudinaryConfig) (*CloudinaryUploader, error) {
	cloud := strings.TrimSpace(cfg.CloudName)
	preset := strings.TrimSpace(cfg.UploadPreset)
	if cloud == "" || preset == "" {
		return nil, errors.New("media: cloudinary cloud name and upload preset are required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultCloudinaryBase
	}
	endpoint, err := url.JoinPath(base, cloud, "image", "upload")
	if err != nil {
		return nil, fmt.Errorf("media: cloudinary endpoint: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &CloudinaryUploader{
		endpoint: endpoint,
		preset:   preset,
		folder:   strings.TrimSpace(cfg.Folder),
		http:     client,
	}, nil
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the file and returns secure_url.
func (u *CloudinaryUploader) Upload(ctx context.Context, file File) (string, error) {
	secureURL, err := u.upload(ctx, file)
	if err != nil {
		return "", &UploadError{Backend: "cloudinary", Err: err}
	}
	return secureURL, nil
}

func (u *CloudinaryUploader) upload(ctx context.Context, file File) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	header.Set("Content-Type", file.ContentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", err
	}
	if err := form.WriteField("upload_preset", u.preset); err != nil {
		return "", err
	}
	if u.folder != "" {
		if err := form.WriteField("folder", u.folder); err != nil {
			return "", err
		}
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded cloudinaryResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = json.Unmarshal(raw, &decoded)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	if !strings.HasPrefix(decoded.SecureURL, "https://") {
		return "", errors.New("response has no secure_url")
	}
	return decoded.SecureURL, nil
}
