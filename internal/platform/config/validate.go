package config

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists the fields that failed validation, named like "Media.Bucket".
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: invalid fields [" + strings.Join(e.fields, ", ") + "]"
}

// Fields returns a sorted copy of the failing field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// validate runs the struct tags, then the rules that span sections.
func validate(cfg Config) error {
	failed := map[string]bool{}

	if err := structValidator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			failed[strings.TrimPrefix(fe.Namespace(), "Config.")] = true
		}
	}

	if cfg.Session.Secret == "" && !cfg.IsLocal() {
		failed["Session.Secret"] = true
	}
	if (cfg.Media.Backend == MediaBackendGCS || cfg.Media.Backend == MediaBackendS3) && cfg.Media.Bucket == "" {
		failed["Media.Bucket"] = true
	}
	if cfg.Checkout.RecordBackend == StoreFirestore && cfg.Firestore.ProjectID == "" {
		failed["Firestore.ProjectID"] = true
	}
	if cfg.Idempotency.Backend == StoreRedis && cfg.Redis.Addr == "" {
		failed["Redis.Addr"] = true
	}

	if len(failed) == 0 {
		return nil
	}
	fields := make([]string, 0, len(failed))
	for name := range failed {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return &ValidationError{fields: fields}
}
