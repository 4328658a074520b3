// Package config provides dispatcher configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/actions-dispatcher/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Transport names accepted in TRANSPORT.
const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"
	TransportNone      = "none"
)

// Config holds actions-dispatcher configuration.
type Config struct {
	// Inbound transport: websocket (chat backend), nats (COMMS request/reply) or none (HTTP only).
	Transport string `envconfig:"TRANSPORT" default:"websocket"`

	// Team identity presented to the chat backend.
	TeamID      string `envconfig:"TEAM_ID"`
	AccessToken string `envconfig:"ACCESS_TOKEN"`

	// Websocket transport
	SocketEndpoint string        `envconfig:"SOCKET_ENDPOINT" default:"ws://localhost:8000/actions-ws"`
	ReconnectWait  time.Duration `envconfig:"RECONNECT_WAIT" default:"2s"`
	// MaxReconnects < 0 retries forever.
	MaxReconnects int `envconfig:"MAX_RECONNECTS" default:"-1"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"actions-dispatcher"`

	// Subject overrides (empty = derive from TEAM_ID / defaults)
	DispatchSubject        string `envconfig:"DISPATCH_SUBJECT"`
	EventsEnabled          bool   `envconfig:"EVENTS_ENABLED" default:"false"`
	DispatchedEventSubject string `envconfig:"DISPATCHED_EVENT_SUBJECT"`

	// Systems manifest
	SystemsFile string `envconfig:"SYSTEMS_FILE"`

	// Integrations
	LLMEndpoint     string        `envconfig:"LLM_ENDPOINT" default:"http://localhost:1322/llm/get_response"`
	GitFlameAPIURL  string        `envconfig:"GITFLAME_API_URL"`
	OutboundTimeout time.Duration `envconfig:"OUTBOUND_TIMEOUT" default:"30s"`
	BlockingWorkers int           `envconfig:"BLOCKING_WORKERS" default:"8"`

	// Audit: Postgres when DATABASE_URL is set, SQLite when AUDIT_SQLITE_PATH is set.
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	RunMigrations   bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"migrations"`
	AuditSQLitePath string `envconfig:"AUDIT_SQLITE_PATH"`

	// HTTP surface (HTTP_PORT=0 disables it)
	HTTPPort            int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout  time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	HTTPDispatchEnabled bool          `envconfig:"HTTP_DISPATCH_ENABLED" default:"false"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ResolvedDispatchSubject returns DISPATCH_SUBJECT, or the per-team subject when unset.
func (c *Config) ResolvedDispatchSubject() string {
	if c.DispatchSubject != "" {
		return c.DispatchSubject
	}
	return commsutil.BuildDispatchSubject(c.TeamID)
}

// NeedsCOMMS reports whether serve must connect to COMMS.
func (c *Config) NeedsCOMMS() bool {
	return c.Transport == TransportNATS || c.EventsEnabled
}

// ValidateForServe checks required config when running the dispatcher.
func (c *Config) ValidateForServe() error {
	switch c.Transport {
	case TransportWebsocket:
		if c.TeamID == "" {
			return fmt.Errorf("%s - TEAM_ID is required for the websocket transport", logPrefix)
		}
		if c.SocketEndpoint == "" {
			return fmt.Errorf("%s - SOCKET_ENDPOINT is required for the websocket transport", logPrefix)
		}
	case TransportNATS:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required for the nats transport", logPrefix)
		}
	case TransportNone:
		if c.HTTPPort <= 0 || !c.HTTPDispatchEnabled {
			return fmt.Errorf("%s - TRANSPORT=none needs HTTP_PORT and HTTP_DISPATCH_ENABLED=true", logPrefix)
		}
	default:
		return fmt.Errorf("%s - unknown TRANSPORT %q (want websocket, nats or none)", logPrefix, c.Transport)
	}
	if c.EventsEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required when EVENTS_ENABLED", logPrefix)
	}
	if c.OutboundTimeout <= 0 {
		return fmt.Errorf("%s - OUTBOUND_TIMEOUT must be positive", logPrefix)
	}
	if c.BlockingWorkers <= 0 {
		return fmt.Errorf("%s - BLOCKING_WORKERS must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
