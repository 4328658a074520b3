package action

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AuthContext maps a system name to the opaque credential blob the caller stored for it.
// Only the handler for that system interprets its blob.
type AuthContext map[string]json.RawMessage

// Has reports whether credentials exist for system.
func (a AuthContext) Has(system string) bool {
	raw, ok := a[system]
	return ok && len(raw) > 0 && string(raw) != "null"
}

// Decode unmarshals the blob stored for system into v.
func (a AuthContext) Decode(system string, v any) error {
	if !a.Has(system) {
		return fmt.Errorf("no authorization data for system '%s'", system)
	}
	if err := json.Unmarshal(a[system], v); err != nil {
		return fmt.Errorf("invalid authorization data for system '%s': %w", system, err)
	}
	return nil
}

// Token returns a bearer token for system. The blob may be a bare JSON string or an
// object carrying "token" or "access_token".
func (a AuthContext) Token(system string) (string, error) {
	if !a.Has(system) {
		return "", fmt.Errorf("no authorization data for system '%s'", system)
	}
	var s string
	if err := json.Unmarshal(a[system], &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("empty token for system '%s'", system)
		}
		return s, nil
	}
	var obj struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(a[system], &obj); err != nil {
		return "", fmt.Errorf("invalid authorization data for system '%s': %w", system, err)
	}
	if obj.Token != "" {
		return obj.Token, nil
	}
	if obj.AccessToken != "" {
		return obj.AccessToken, nil
	}
	return "", fmt.Errorf("no token in authorization data for system '%s'", system)
}
