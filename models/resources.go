package models

import "strings"

// Collection names of the admin resources
const (
	CollectionAPIKeys       = "api-keys"
	CollectionPricing       = "pricing"
	CollectionModelMappings = "model-mappings"
)

// APIKey is an upstream provider credential managed by administrators
type APIKey struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Provider string `json:"provider" validate:"required,oneof=openai anthropic bedrock"`
	Key      string `json:"key" validate:"required,min=8"`
	Enabled  bool   `json:"enabled"`
}

// Redact replaces the secret with its masked form
func (k *APIKey) Redact() {
	k.Key = MaskSecret(k.Key)
}

// Pricing is the per-model price used for cost reporting
type Pricing struct {
	Provider         string  `json:"provider" validate:"required,oneof=openai anthropic bedrock"`
	Model            string  `json:"model" validate:"required,max=200"`
	InputPerMillion  float64 `json:"inputPerMillion" validate:"gte=0"`
	OutputPerMillion float64 `json:"outputPerMillion" validate:"gte=0"`
	Currency         string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// ModelMapping routes a public model alias to a provider model
type ModelMapping struct {
	Alias    string `json:"alias" validate:"required,max=200"`
	Provider string `json:"provider" validate:"required,oneof=openai anthropic bedrock"`
	Model    string `json:"model" validate:"required,max=200"`
}

// MaskSecret keeps the last four characters of a secret
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}
