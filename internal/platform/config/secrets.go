package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SecretResolver turns a secret:// reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError reports a reference that could not be resolved.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errNoResolver = errors.New("no secret resolver configured")

// MissingSecretsError lists required secret fields that resolved empty.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return "config: missing required secrets [" + strings.Join(e.RedactedNames(), ", ") + "]"
}

// Names returns the sorted field names, such as "Stripe.APIKey".
func (e *MissingSecretsError) Names() []string {
	return append([]string(nil), e.names...)
}

// RedactedNames hashes each name so logs do not reveal which credentials a deploy lacks.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, len(e.names))
	for i, name := range e.names {
		out[i] = redactSecretName(name)
	}
	sort.Strings(out)
	return out
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

// secretFields lists every Config field that may hold a secret reference.
func secretFields(cfg *Config) map[string]*string {
	return map[string]*string{
		"Stripe.APIKey":           &cfg.Stripe.APIKey,
		"CRM.ContactsAPIKey":      &cfg.CRM.ContactsAPIKey,
		"Media.S3SecretAccessKey": &cfg.Media.S3SecretAccessKey,
		"Session.Secret":          &cfg.Session.Secret,
		"Redis.Password":          &cfg.Redis.Password,
	}
}

// resolveSecretFields replaces references in place and returns every secret field's final value.
func resolveSecretFields(ctx context.Context, cfg *Config, resolver SecretResolver) (map[string]string, error) {
	values := make(map[string]string)
	for name, field := range secretFields(cfg) {
		ref, ok := secretRef(*field)
		if ok {
			if resolver == nil {
				return nil, &SecretError{Ref: ref, Err: errNoResolver}
			}
			secret, err := resolver.ResolveSecret(ctx, ref)
			if err != nil {
				return nil, &SecretError{Ref: ref, Err: err}
			}
			*field = secret
		}
		values[name] = strings.TrimSpace(*field)
	}
	return values, nil
}

// secretRef normalises sm:// to secret:// and reports whether value is a reference at all.
func secretRef(value string) (string, bool) {
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "secret://"):
		return value, true
	case strings.HasPrefix(value, "sm://"):
		return "secret://" + strings.TrimPrefix(value, "sm://"), true
	}
	return "", false
}

func missingSecrets(required []string, values map[string]string) *MissingSecretsError {
	seen := map[string]bool{}
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingSecretsError{names: missing}
}
