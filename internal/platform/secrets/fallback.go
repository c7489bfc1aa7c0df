package secrets

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// fallbackFile is a YAML map from reference to value, read once on first use:
//
//	secret://stripe_api_key: sk_test_123
//	secret://stripe_api_key?version=5: sk_test_pinned
//
// A key without a version answers every version that has no entry of its own.
type fallbackFile struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func newFallbackFile(path string) *fallbackFile {
	return &fallbackFile{path: path}
}

func (f *fallbackFile) lookup(canonical, version string) (string, bool, error) {
	if f == nil || f.path == "" {
		return "", false, nil
	}
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	if v, ok := f.values[canonical+"#"+version]; ok {
		return v, true, nil
	}
	v, ok := f.values[canonical]
	return v, ok, nil
}

func (f *fallbackFile) load() {
	f.values = map[string]string{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.err = fmt.Errorf("secrets: read %s: %w", f.path, err)
		return
	}
	var doc map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		f.err = fmt.Errorf("secrets: parse %s: %w", f.path, err)
		return
	}
	for raw, value := range doc {
		ref, err := parseReference(raw)
		if err != nil {
			f.err = fmt.Errorf("secrets: %s: %w", f.path, err)
			return
		}
		key := ref.canonical
		if ref.version != "" {
			key += "#" + ref.version
		}
		f.values[key] = value
	}
}
