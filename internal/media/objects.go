package media

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ObjectNamer composes object keys for self-hosted backends: {prefix}/{yyyy}/{mm}/{id}/{file}.
type ObjectNamer struct {
	Prefix string
	Clock  func() time.Time
	NewID  func() string
}

// Name returns the object key for file.
func (n ObjectNamer) Name(file File) (string, error) {
	clock := n.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := n.NewID
	if newID == nil {
		newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	id, err := validateSegment("id", newID())
	if err != nil {
		return "", err
	}
	name, err := validateSegment("file name", sanitizeName(file.Name))
	if err != nil {
		return "", err
	}
	now := clock().UTC()
	key := fmt.Sprintf("%04d/%02d/%s/%s", now.Year(), int(now.Month()), id, name)
	prefix := strings.Trim(strings.TrimSpace(n.Prefix), "/")
	if prefix != "" {
		for _, segment := range strings.Split(prefix, "/") {
			if _, err := validateSegment("prefix", segment); err != nil {
				return "", err
			}
		}
		key = prefix + "/" + key
	}
	return key, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("media: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("media: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("media: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

// publicURL joins base and key, escaping each key segment.
func publicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
