package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/morezero/actions-dispatcher/pkg/semver"
)

const logPrefix = "bootstrap:loader"

// EnvSystemsFile names the environment variable consulted after explicit paths.
const EnvSystemsFile = "SYSTEMS_FILE"

// LoadSystemsConfig loads the systems manifest from file paths or environment and merges it over
// the embedded default. It tries paths in order: first any paths passed in, then SYSTEMS_FILE,
// then config/systems.yaml, systems.yaml and systems.json.
// JSON manifests are accepted since yaml.v3 parses JSON documents.
func LoadSystemsConfig(paths ...string) (*SystemsConfig, error) {
	all := make([]string, 0, len(paths)+4)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvSystemsFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/systems.yaml", "systems.yaml", "systems.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cfg, err := ParseSystemsConfig(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse systems file %s: %v", logPrefix, p, err))
			continue
		}

		if err := semver.CheckCompatible(cfg.Version, semver.SupportedManifestRange); err != nil {
			return nil, fmt.Errorf("%s - systems file %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded systems config from %s", logPrefix, p))
		return MergeSystemsConfigs(GetDefaultSystemsConfig(), cfg), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default systems config", logPrefix))
	return GetDefaultSystemsConfig(), nil
}

// ParseSystemsConfig decodes a YAML or JSON manifest document.
func ParseSystemsConfig(data []byte) (*SystemsConfig, error) {
	var cfg SystemsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s - decode manifest: %w", logPrefix, err)
	}
	return &cfg, nil
}

// GetDefaultSystemsConfig returns the embedded fallback manifest.
func GetDefaultSystemsConfig() *SystemsConfig {
	return &SystemsConfig{
		Name:        "actions-dispatcher-systems",
		Version:     "1.0.0",
		Description: "Default external systems manifest",
		Systems: map[string]SystemConfig{
			"Test": {
				Description: "Diagnostic actions used to verify the dispatch path",
			},
			"GitFlame": {
				Description:    "GitFlame repositories and issues",
				BaseURL:        "https://api.gitflame.ru/api/v1",
				RateLimitRPS:   5,
				RateLimitBurst: 10,
			},
		},
	}
}

// CreateResolvedSystems builds a ResolvedSystems for fast lookups.
func CreateResolvedSystems(cfg *SystemsConfig) *ResolvedSystems {
	systems := make(map[string]*SystemConfig, len(cfg.Systems))
	for name, sc := range cfg.Systems {
		c := sc
		systems[name] = &c
	}
	return &ResolvedSystems{
		name:    cfg.Name,
		version: cfg.Version,
		systems: systems,
	}
}

// MergeSystemsConfigs merges an override manifest into a base manifest. Override entries replace
// base entries field by field; zero-valued override fields keep the base value.
func MergeSystemsConfigs(base, override *SystemsConfig) *SystemsConfig {
	merged := *base
	merged.Systems = make(map[string]SystemConfig, len(base.Systems)+len(override.Systems))
	for name, sc := range base.Systems {
		merged.Systems[name] = sc
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}

	for name, o := range override.Systems {
		sc := merged.Systems[name]
		if o.Enabled != nil {
			enabled := *o.Enabled
			sc.Enabled = &enabled
		}
		if o.Description != "" {
			sc.Description = o.Description
		}
		if o.BaseURL != "" {
			sc.BaseURL = o.BaseURL
		}
		if o.RateLimitRPS != 0 {
			sc.RateLimitRPS = o.RateLimitRPS
		}
		if o.RateLimitBurst != 0 {
			sc.RateLimitBurst = o.RateLimitBurst
		}
		merged.Systems[name] = sc
	}

	return &merged
}
