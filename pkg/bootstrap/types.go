// Package bootstrap loads the systems manifest: which external systems are enabled, where they
// live and how fast the dispatcher may call them.
package bootstrap

import "sort"

// SystemConfig is a single system entry in the manifest.
type SystemConfig struct {
	// Enabled defaults to true when omitted.
	Enabled        *bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Description    string  `yaml:"description,omitempty" json:"description,omitempty"`
	BaseURL        string  `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	RateLimitRPS   float64 `yaml:"rateLimitRps,omitempty" json:"rateLimitRps,omitempty"`
	RateLimitBurst int     `yaml:"rateLimitBurst,omitempty" json:"rateLimitBurst,omitempty"`
}

// IsEnabled reports whether the entry is enabled.
func (s SystemConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SystemsConfig is the root manifest.
type SystemsConfig struct {
	Name        string                  `yaml:"name" json:"name"`
	Version     string                  `yaml:"version" json:"version"`
	Description string                  `yaml:"description,omitempty" json:"description,omitempty"`
	Systems     map[string]SystemConfig `yaml:"systems" json:"systems"`
}

// ResolvedSystems provides fast lookup of manifest entries.
type ResolvedSystems struct {
	name    string
	version string
	systems map[string]*SystemConfig
}

// Get returns the entry for a system, or nil when the manifest does not mention it.
func (rs *ResolvedSystems) Get(system string) *SystemConfig {
	if rs == nil {
		return nil
	}
	return rs.systems[system]
}

// IsEnabled reports whether a system may be registered. Systems absent from the manifest are enabled.
func (rs *ResolvedSystems) IsEnabled(system string) bool {
	sc := rs.Get(system)
	return sc == nil || sc.IsEnabled()
}

// Description returns the manifest description for a system.
func (rs *ResolvedSystems) Description(system string) string {
	if sc := rs.Get(system); sc != nil {
		return sc.Description
	}
	return ""
}

// BaseURL returns the configured base URL for a system, or fallback when none is set.
func (rs *ResolvedSystems) BaseURL(system, fallback string) string {
	if sc := rs.Get(system); sc != nil && sc.BaseURL != "" {
		return sc.BaseURL
	}
	return fallback
}

// RateLimit returns the outbound rate for a system; ok is false when none is configured.
func (rs *ResolvedSystems) RateLimit(system string) (rps float64, burst int, ok bool) {
	sc := rs.Get(system)
	if sc == nil || sc.RateLimitRPS <= 0 {
		return 0, 0, false
	}
	burst = sc.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return sc.RateLimitRPS, burst, true
}

// Names returns all system names in the manifest, sorted.
func (rs *ResolvedSystems) Names() []string {
	if rs == nil {
		return nil
	}
	names := make([]string, 0, len(rs.systems))
	for n := range rs.systems {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Name returns the manifest name.
func (rs *ResolvedSystems) Name() string {
	if rs == nil {
		return ""
	}
	return rs.name
}

// Version returns the manifest version.
func (rs *ResolvedSystems) Version() string {
	if rs == nil {
		return ""
	}
	return rs.version
}
