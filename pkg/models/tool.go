package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AuthType is the authentication scheme for an external API binding.
type AuthType string

const (
	AuthAPIKey       AuthType = "api_key"
	AuthBearer       AuthType = "bearer"
	AuthOAuth2       AuthType = "oauth2"
	AuthCustomHeader AuthType = "custom_header"
)

// Valid reports whether the auth type is one of the closed set.
func (a AuthType) Valid() bool {
	switch a {
	case AuthAPIKey, AuthBearer, AuthOAuth2, AuthCustomHeader:
		return true
	}
	return false
}

// EncryptedBlob is the wire format for stored credentials: AES-256-GCM
// output with all parts lowercase hex. IV is 24 hex chars, the tag 32.
type EncryptedBlob struct {
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Ciphertext string `json:"ciphertext"`
}

// ToolEndpoint describes one callable endpoint of a bound API.
type ToolEndpoint struct {
	Path           string          `json:"path"`
	Method         string          `json:"method"`
	Description    string          `json:"description,omitempty"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
}

// ToolEntry is a per-bot external API binding. The encrypted auth blob never
// leaves the runtime; API projections must strip it.
type ToolEntry struct {
	ID        string         `json:"id"`
	BotID     string         `json:"bot_id"`
	Name      string         `json:"name"`
	BaseURL   string         `json:"base_url"`
	AuthType  AuthType       `json:"auth_type"`
	Auth      *EncryptedBlob `json:"-"`
	Endpoints []ToolEndpoint `json:"endpoints"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FindEndpoint returns the endpoint matching (path, method), or nil.
func (t *ToolEntry) FindEndpoint(path, method string) *ToolEndpoint {
	for i := range t.Endpoints {
		ep := &t.Endpoints[i]
		if ep.Path == path && strings.EqualFold(ep.Method, method) {
			return ep
		}
	}
	return nil
}
