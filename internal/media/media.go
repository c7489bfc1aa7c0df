// Package media validates onboarding uploads and stores them with an image host.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxBytes matches the 5MB limit of the onboarding form.
	DefaultMaxBytes = 5 << 20
	// DefaultMaxDimension bounds the longest edge of stored logos.
	DefaultMaxDimension = 1024
)

// DefaultAllowedTypes are the logo formats accepted by the onboarding form.
var DefaultAllowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/svg+xml"}

// ErrInvalidFile is matched by validation failures.
var ErrInvalidFile = errors.New("media: invalid file")

// File is an in-memory upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Uploader stores a file and returns its public https URL.
type Uploader interface {
	Upload(ctx context.Context, file File) (string, error)
}

// UploadError wraps any failure of the media host. Onboarding continues without the URL.
type UploadError struct {
	Backend string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("media: %s upload failed: %v", e.Backend, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Policy bounds what Validate accepts.
type Policy struct {
	AllowedTypes []string
	MaxBytes     int64
	MaxDimension int
}

// DefaultPolicy returns the onboarding logo policy.
func DefaultPolicy() Policy {
	return Policy{
		AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
		MaxBytes:     DefaultMaxBytes,
		MaxDimension: DefaultMaxDimension,
	}
}

// Validate checks size and type. The declared content type must agree with the sniffed one for
// raster formats.
func (p Policy) Validate(file File) (File, error) {
	if len(file.Data) == 0 {
		return File{}, fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if p.MaxBytes > 0 && file.Size() > p.MaxBytes {
		return File{}, fmt.Errorf("%w: file must be less than %dMB", ErrInvalidFile, p.MaxBytes>>20)
	}
	file.Name = sanitizeName(file.Name)
	declared := normaliseType(file.ContentType)
	sniffed := normaliseType(http.DetectContentType(file.Data))
	switch {
	case declared == "image/svg+xml" || strings.EqualFold(filepath.Ext(file.Name), ".svg"):
		if !bytes.Contains(bytes.ToLower(file.Data[:min(len(file.Data), 1024)]), []byte("<svg")) {
			return File{}, fmt.Errorf("%w: not an svg document", ErrInvalidFile)
		}
		declared = "image/svg+xml"
	case strings.HasPrefix(sniffed, "image/"):
		declared = sniffed
	default:
		return File{}, fmt.Errorf("%w: unrecognised image data", ErrInvalidFile)
	}
	if len(p.AllowedTypes) > 0 && !allowed(declared, p.AllowedTypes) {
		return File{}, fmt.Errorf("%w: file must be one of: %s", ErrInvalidFile, strings.Join(p.AllowedTypes, ", "))
	}
	file.ContentType = declared
	return file, nil
}

// Prepare validates the file and downsizes raster images whose longest edge exceeds the policy.
func (p Policy) Prepare(file File) (File, error) {
	file, err := p.Validate(file)
	if err != nil {
		return File{}, err
	}
	if p.MaxDimension <= 0 || file.ContentType == "image/svg+xml" || file.ContentType == "image/gif" {
		return file, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil || (cfg.Width <= p.MaxDimension && cfg.Height <= p.MaxDimension) {
		return file, nil
	}
	img, err := imaging.Decode(bytes.NewReader(file.Data), imaging.AutoOrientation(true))
	if err != nil {
		return file, nil
	}
	resized := imaging.Fit(img, p.MaxDimension, p.MaxDimension, imaging.Lanczos)

	target := imaging.PNG
	if format == "jpeg" {
		target = imaging.JPEG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, target); err != nil {
		return File{}, fmt.Errorf("media: encode resized image: %w", err)
	}
	file.Data = buf.Bytes()
	if target == imaging.PNG {
		file.ContentType = "image/png"
		file.Name = strings.TrimSuffix(file.Name, filepath.Ext(file.Name)) + ".png"
	}
	return file, nil
}

func normaliseType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	if value == "image/jpg" {
		return "image/jpeg"
	}
	return value
}

func allowed(contentType string, list []string) bool {
	for _, candidate := range list {
		if normaliseType(candidate) == contentType {
			return true
		}
	}
	return false
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "logo"
	}
	return out
}
