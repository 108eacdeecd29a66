package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/health"
	"github.com/c360/docmesh/metric"
)

// Route paths
const (
	UIConfigPath = "/swagger/ui-config"
	// UIPath sits outside /swagger/{group}/ so every group name is servable
	UIPath       = "/swagger-ui/"
	DocsPath     = "/swagger/docs"
	RefreshPath  = "/swagger/refresh"

	// PlaceholderUIName labels the UI entry shown before any group is known
	PlaceholderUIName = "API (Loading...)"
	placeholderUIURL  = "/swagger/v1/swagger.json"
)

// Refresher accepts manual refresh requests
type Refresher interface {
	TriggerRefresh()
}

// HandlerConfig wires the HTTP routes
type HandlerConfig struct {
	Provider *Provider
	// Directory lists the configured groups shown in the UI
	Directory endpoint.Directory
	Health    *health.Monitor
	Metrics   *metric.MetricsRegistry
	Refresher Refresher
	// RefreshLimiter bounds manual refresh requests; nil means unlimited
	RefreshLimiter *rate.Limiter
	// Ready reports whether the first refresh has completed
	Ready func() bool
	// SystemName names the aggregate health status
	SystemName string
	EnableUI   bool
	Logger     *slog.Logger
}

type handler struct {
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler builds the HTTP routes
func NewHandler(cfg HandlerConfig) http.Handler {
	if cfg.SystemName == "" {
		cfg.SystemName = "docmesh"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{cfg: cfg, logger: logger.With("component", "gateway")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /swagger/{group}/{file}", h.handleDocument)
	mux.HandleFunc("GET "+DocsPath, h.handleDocs)
	mux.HandleFunc("GET "+UIConfigPath, h.handleUIConfig)
	mux.HandleFunc("POST "+RefreshPath, h.handleRefresh)
	mux.HandleFunc("GET /healthz", h.handleLiveness)
	mux.HandleFunc("GET /readyz", h.handleReadiness)

	if cfg.Health != nil {
		mux.Handle("GET /health", cfg.Health.Handler(cfg.SystemName))
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", metric.Handler(cfg.Metrics))
	}
	if cfg.EnableUI {
		ui := httpSwagger.Handler(
			httpSwagger.URL(placeholderUIURL),
			httpSwagger.DeepLinking(true),
			httpSwagger.DocExpansion("none"),
			httpSwagger.UIConfig(map[string]string{
				"configUrl": `"` + UIConfigPath + `"`,
			}),
		)
		mux.Handle("GET "+UIPath, ui)
	}
	return mux
}

func (h *handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	file := r.PathValue("file")

	switch file {
	case "swagger.json":
		doc := h.cfg.Provider.GetDocument(r.Context(), group)
		h.writeJSON(w, http.StatusOK, doc)
	case "swagger.yaml":
		doc := h.cfg.Provider.GetDocument(r.Context(), group)
		data, err := document.ToYAML(doc)
		if err != nil {
			h.logger.Error("Failed to encode document as YAML", "document", group, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to encode document")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		h.writeError(w, http.StatusNotFound, "resource not found")
	}
}

// DocumentLink is one entry of the document list
type DocumentLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func documentURL(name string) string {
	return "/swagger/" + name + "/swagger.json"
}

func (h *handler) handleDocs(w http.ResponseWriter, r *http.Request) {
	names := h.cfg.Provider.ListDocumentNames(r.Context())
	links := make([]DocumentLink, 0, len(names))
	for _, n := range names {
		links = append(links, DocumentLink{Name: n, URL: documentURL(n)})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": links})
}

// UIURLs builds the UI document list, de-duplicated case-insensitively by
// name. When names is empty a single placeholder entry is returned.
func UIURLs(names []string) []DocumentLink {
	seen := make(map[string]bool, len(names))
	links := make([]DocumentLink, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, DocumentLink{Name: n, URL: documentURL(n)})
	}
	if len(links) == 0 {
		links = append(links, DocumentLink{Name: PlaceholderUIName, URL: placeholderUIURL})
	}
	return links
}

func (h *handler) handleUIConfig(w http.ResponseWriter, r *http.Request) {
	var names []string
	if h.cfg.Directory != nil {
		names = endpoint.GroupNames(h.cfg.Directory.List(r.Context()))
	}
	names = append(names, h.cfg.Provider.ListDocumentNames(r.Context())...)
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, map[string]any{"urls": UIURLs(names)})
}

func (h *handler) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if h.cfg.Refresher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	if h.cfg.RefreshLimiter != nil && !h.cfg.RefreshLimiter.Allow() {
		h.logger.Warn("Manual refresh rate limited")
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded")
		return
	}
	h.cfg.Refresher.TriggerRefresh()
	h.logger.Info("Manual refresh requested")
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh triggered"})
}

// handleLiveness is a simple liveness check
func (h *handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.cfg.Ready != nil && !h.cfg.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes an error response
func (h *handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	data, _ := json.Marshal(map[string]any{
		"error":  message,
		"status": statusCode,
	})
	_, _ = w.Write(data)
}
