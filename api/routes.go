// Package api exposes the chat service over HTTP.
package api

import (
	"context"
	"mcpchat/chat"
	"mcpchat/config"
	"mcpchat/mcp"
	"mcpchat/storage"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolSource lists MCP tool servers and their tools. *mcp.Manager
// implements it.
type ToolSource interface {
	Tools() []mcptypes.Tool
	Servers() []mcp.ServerStatus
	Server(name string) (mcp.ServerStatus, bool)
}

// HistorySource reads persisted provider statuses. *storage.StatusLog
// implements it.
type HistorySource interface {
	History(ctx context.Context, providerID string, limit int) ([]storage.StatusRecord, error)
}

// Deps are the collaborators the handlers need. Tools and History may be
// nil.
type Deps struct {
	Chat    *chat.Service
	Tools   ToolSource
	History HistorySource
}

// NewRouter creates the chi router with every route registered.
func NewRouter(deps Deps) *chi.Mux {
	h := &handler{deps: deps}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if config.Debug {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: config.DebugLog, NoColor: true}))
	} else {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", h.Chat) // POST /api/v1/chat

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", h.ListProviders)                   // GET /api/v1/providers
			r.Get("/{provider}/health", h.ProviderHealth) // GET /api/v1/providers/{provider}/health
			r.Get("/{provider}/history", h.StatusHistory) // GET /api/v1/providers/{provider}/history
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/providers/status", h.ProviderStatuses) // GET /api/v1/settings/providers/status
			r.Get("/mcp/servers", h.ListToolServers)       // GET /api/v1/settings/mcp/servers
			r.Get("/mcp/servers/{name}", h.GetToolServer)  // GET /api/v1/settings/mcp/servers/{name}
		})

		r.Get("/tools", h.ListTools) // GET /api/v1/tools
	})

	return r
}
