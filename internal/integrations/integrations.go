// Package integrations registers every known external system with the action registry during
// startup. Systems disabled in the manifest are skipped.
package integrations

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/morezero/actions-dispatcher/internal/integrations/extract"
	"github.com/morezero/actions-dispatcher/internal/integrations/gitflame"
	"github.com/morezero/actions-dispatcher/internal/integrations/llm"
	"github.com/morezero/actions-dispatcher/internal/integrations/testsystem"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/bootstrap"
	"github.com/morezero/actions-dispatcher/pkg/ratelimit"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

const logPrefix = "integrations:register"

// Deps are the shared collaborators handed to integrations.
type Deps struct {
	Pool            *blocking.Pool
	Systems         *bootstrap.ResolvedSystems
	TeamID          string
	LLMEndpoint     string
	GitFlameAPIURL  string
	OutboundTimeout time.Duration
	// HTTPClient overrides the client built from OutboundTimeout.
	HTTPClient *http.Client
	// Completer overrides the LLM client built from LLMEndpoint.
	Completer llm.Completer
}

// NewLimiter builds the outbound limiter from the manifest's per-system rates.
// Systems without a configured rate are not throttled.
func NewLimiter(systems *bootstrap.ResolvedSystems) *ratelimit.MapLimiter {
	lim := ratelimit.New(math.Inf(1), 1, 10*time.Minute)
	for _, name := range systems.Names() {
		if rps, burst, ok := systems.RateLimit(name); ok {
			lim.SetKeyLimit(name, rps, burst)
		}
	}
	return lim
}

// Register adds all enabled systems to reg.
func Register(reg *registry.Registry, deps Deps) error {
	hc := deps.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: deps.OutboundTimeout}
	}
	limiter := NewLimiter(deps.Systems)

	if enabled(deps.Systems, testsystem.SystemName) {
		if err := testsystem.Register(reg); err != nil {
			return fmt.Errorf("%s - %s: %w", logPrefix, testsystem.SystemName, err)
		}
	}

	if enabled(deps.Systems, gitflame.SystemName) {
		baseURL := deps.GitFlameAPIURL
		if baseURL == "" {
			baseURL = deps.Systems.BaseURL(gitflame.SystemName, gitflame.DefaultBaseURL)
		}
		client := gitflame.NewClient(gitflame.NewClientParams{
			BaseURL:    baseURL,
			HTTPClient: hc,
			Limiter:    limiter,
			Pool:       deps.Pool,
		})
		if err := client.Register(reg); err != nil {
			return fmt.Errorf("%s - %s: %w", logPrefix, gitflame.SystemName, err)
		}

		completer := deps.Completer
		if completer == nil {
			completer = llm.NewClient(llm.NewClientParams{
				Endpoint:   deps.LLMEndpoint,
				TeamID:     deps.TeamID,
				HTTPClient: hc,
			})
		}
		if err := extract.Register(reg, completer, deps.Pool); err != nil {
			return fmt.Errorf("%s - %s extract: %w", logPrefix, extract.SystemName, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Registered %d actions across %v", logPrefix, reg.Len(), reg.Systems()))
	return nil
}

func enabled(systems *bootstrap.ResolvedSystems, name string) bool {
	if systems.IsEnabled(name) {
		return true
	}
	slog.Info(fmt.Sprintf("%s - System %s disabled by manifest", logPrefix, name))
	return false
}
