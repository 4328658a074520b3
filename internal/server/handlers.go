package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/events"
	"github.com/morezero/actions-dispatcher/pkg/registry"
	"github.com/morezero/actions-dispatcher/pkg/transport"
)

const maxDispatchBody = 1 << 20

// recentSource supplies the invocation history shown on the home page.
type recentSource interface {
	Recent(ctx context.Context, limit int) ([]events.ActionDispatchedEvent, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// HealthOutput is the /health response body.
type HealthOutput struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Actions   int               `json:"actions"`
	Checks    map[string]string `json:"checks"`
}

// health runs every registered check. A service with no checks is healthy.
func (s *Server) health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}
	if s.reg != nil {
		out.Actions = s.reg.Len()
	}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			out.Checks[name] = err.Error()
			out.Status = "unhealthy"
			continue
		}
		out.Checks[name] = "ok"
	}
	return out
}

// Handler returns the HTTP mux: health, metrics, the action catalogue and, when
// enabled, POST /dispatch.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome())
	mux.HandleFunc("GET /action/{system}/{action}", s.handleActionDetail())
	mux.HandleFunc("GET /system/{system}/openapi.json", s.handleOpenAPI())
	mux.HandleFunc("GET /system/{system}/docs", s.handleDocs())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.reg == nil || !s.reg.Frozen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	gatherer := s.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if s.cfg.HTTPDispatchEnabled && s.disp != nil {
		mux.HandleFunc("POST /dispatch", s.handleDispatch(s.disp))
	}
	return mux
}

// handleDispatch answers one request per POST with the same envelope the socket
// transport sends. Notices get 204; bodies no reply can be built for get 400.
func (s *Server) handleDispatch(disp transport.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDispatchBody))
		if err != nil {
			http.Error(w, "request body too large or unreadable", http.StatusBadRequest)
			return
		}
		reply, err := transport.Process(r.Context(), disp, body)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - rejected HTTP dispatch: %v", logPrefix, err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(reply)
	}
}

// homeData is the data passed to the home page template.
type homeData struct {
	Health      *HealthOutput
	Manifest    string
	Systems     []systemRow
	Recent      []events.ActionDispatchedEvent
	Counts      map[string]int
	RecentError string
}

type systemRow struct {
	registry.SystemDescription
	Description string
}

// handleHome returns an HTTP handler for the action catalogue page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(templateFuncs).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.health(ctx)}
		if s.systems != nil {
			data.Manifest = fmt.Sprintf("%s@%s", s.systems.Name(), s.systems.Version())
		}
		for _, sd := range s.reg.Catalogue() {
			data.Systems = append(data.Systems, systemRow{
				SystemDescription: sd,
				Description:       s.systems.Description(sd.Name),
			})
		}
		if s.recent != nil {
			recent, err := s.recent.Recent(ctx, 20)
			if err != nil {
				data.RecentError = err.Error()
			} else {
				data.Recent = recent
			}
			if counts, err := s.recent.CountByStatus(ctx); err == nil {
				data.Counts = counts
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// actionDetailData is the data passed to the action detail page template.
type actionDetailData struct {
	Describe *registry.ActionDescription
}

// handleActionDetail returns an HTTP handler for one action's contracts.
func (s *Server) handleActionDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("actionDetail").Funcs(templateFuncs).Parse(actionDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.reg.Describe(r.PathValue("system"), r.PathValue("action"))
		if err != nil {
			if action.IsNotFound(err) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, actionDetailData{Describe: d}); err != nil {
			slog.Error(fmt.Sprintf("%s - action detail template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleOpenAPI serves the generated OpenAPI document for one system.
func (s *Server) handleOpenAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sd, err := s.reg.DescribeSystem(r.PathValue("system"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		spec := buildOpenAPISpec(sd, s.systems.Description(sd.Name), s.systems.Version())
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=60")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			slog.Error(fmt.Sprintf("%s - openapi json encode: %v", logPrefix, err))
		}
	}
}

// handleDocs serves Swagger UI pointed at the system's OpenAPI document.
func (s *Server) handleDocs() http.HandlerFunc {
	swaggerTmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		system := r.PathValue("system")
		if _, err := s.reg.DescribeSystem(system); err != nil {
			http.NotFound(w, r)
			return
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		specURL := scheme + "://" + r.Host + "/system/" + url.PathEscape(system) + "/openapi.json"
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		swaggerTmpl.Execute(w, map[string]string{"System": system, "SpecURL": specURL})
	}
}

var templateFuncs = template.FuncMap{
	"json": func(v interface{}) string {
		if v == nil {
			return ""
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	},
	"pathEscape": url.PathEscape,
}
