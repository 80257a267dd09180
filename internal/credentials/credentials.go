// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package credentials resolves API keys for external services from layered
// sources: process environment variables first, then a .env file, then
// plain-text files under the workspace .secrets/ directory. Values are never
// logged or printed unmasked.
package credentials

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Service names accepted by Resolve and the credentials check command.
const (
	ServiceAnthropic   = "anthropic"
	ServiceAWS         = "aws"
	ServiceHuggingFace = "huggingface"
)

// Credential key names, shared with the conventional environment variables.
const (
	KeyAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	KeyAWSAccessKeyID   = "AWS_ACCESS_KEY_ID"
	KeyAWSSecretKey     = "AWS_SECRET_ACCESS_KEY"
	KeyAWSRegion        = "AWS_REGION"
	KeyHuggingFaceToken = "HUGGINGFACE_TOKEN"
)

// DefaultAWSRegion fills in AWS_REGION when the other AWS keys are present
// but no region is configured anywhere.
const DefaultAWSRegion = "eu-west-1"

// serviceKeys maps each known service to the keys it requires.
var serviceKeys = map[string][]string{
	ServiceAnthropic:   {KeyAnthropicAPIKey},
	ServiceAWS:         {KeyAWSAccessKeyID, KeyAWSSecretKey, KeyAWSRegion},
	ServiceHuggingFace: {KeyHuggingFaceToken},
}

// defaultEnvFiles lists the .env locations tried in order; the first one
// that exists wins.
var defaultEnvFiles = []string{".env", "../.env"}

// Provider resolves credential keys against the layered sources.
type Provider struct {
	secrets map[string]string
}

// Load builds a Provider. It loads the first existing .env file into the
// process environment (never overriding variables that are already set) and
// reads the .secrets directory. When no envFiles are given the conventional
// locations .env and ../.env are tried.
func Load(secretsDir string, envFiles ...string) (*Provider, error) {
	if len(envFiles) == 0 {
		envFiles = defaultEnvFiles
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", path, err)
		}
		break
	}

	secrets, err := loadSecretsDir(secretsDir)
	if err != nil {
		return nil, err
	}
	return &Provider{secrets: secrets}, nil
}

// Lookup returns the value for a credential key: the process environment
// (which includes anything the .env file contributed) first, then the
// .secrets directory.
func (p *Provider) Lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value, true
	}
	if value, ok := p.secrets[key]; ok {
		return value, true
	}
	return "", false
}

// LoadedKeys returns the names of the keys read from the .secrets
// directory, sorted. Names only, never values.
func (p *Provider) LoadedKeys() []string {
	keys := make([]string, 0, len(p.secrets))
	for k := range p.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns all credential values for a known service, keyed by
// credential name. AWS_REGION falls back to DefaultAWSRegion when the other
// AWS keys are present. Missing keys make the whole service fail with an
// error naming them.
func (p *Provider) Resolve(service string) (map[string]string, error) {
	keys, ok := serviceKeys[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q (known: %s)", service, strings.Join(ServiceNames(), ", "))
	}

	values := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		if value, ok := p.Lookup(key); ok {
			values[key] = value
			continue
		}
		missing = append(missing, key)
	}

	if service == ServiceAWS && len(missing) == 1 && missing[0] == KeyAWSRegion {
		values[KeyAWSRegion] = DefaultAWSRegion
		missing = nil
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing credentials for %s: %s", service, strings.Join(missing, ", "))
	}
	return values, nil
}

// Missing returns the credential keys absent for the given services, sorted.
// With no arguments it checks every known service. A missing AWS_REGION is
// not reported when the rest of the AWS keys are present, because Resolve
// fills it with the default region.
func (p *Provider) Missing(services ...string) []string {
	if len(services) == 0 {
		services = ServiceNames()
	}

	seen := make(map[string]bool)
	var missing []string
	for _, service := range services {
		keys, ok := serviceKeys[service]
		if !ok {
			continue
		}

		var absent []string
		for _, key := range keys {
			if _, ok := p.Lookup(key); !ok {
				absent = append(absent, key)
			}
		}
		if service == ServiceAWS && len(absent) == 1 && absent[0] == KeyAWSRegion {
			continue
		}
		for _, key := range absent {
			if !seen[key] {
				seen[key] = true
				missing = append(missing, key)
			}
		}
	}

	sort.Strings(missing)
	return missing
}

// Keys returns the credential key names for a known service, in declaration
// order, or nil for an unknown service.
func Keys(service string) []string {
	return serviceKeys[service]
}

// ServiceNames returns the known service names, sorted.
func ServiceNames() []string {
	names := make([]string, 0, len(serviceKeys))
	for name := range serviceKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mask renders a credential value safe for display: the first four
// characters followed by an ellipsis. Values of four characters or fewer
// are fully masked, and empty values stay empty.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "…"
	}
	return value[:4] + "…"
}
