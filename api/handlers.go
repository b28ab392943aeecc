package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mcpchat/chat"
	"mcpchat/config"
	"mcpchat/model"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

const (
	maxRequestBody      = 4 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type handler struct {
	deps Deps
}

// chatResponse is the batch reply of POST /api/v1/chat.
type chatResponse struct {
	*model.Response
	Artifact *chat.Artifact `json:"artifact,omitempty"`
}

type providerHealthResponse struct {
	Provider     string             `json:"provider"`
	Healthy      bool               `json:"healthy"`
	Error        string             `json:"error,omitempty"`
	Capabilities model.Capabilities `json:"capabilities"`
}

func (h *handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		writeError(w, model.NewError(model.KindInvalidRequest, "", fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	if req.Stream {
		h.streamChat(w, r, req)
		return
	}

	resp, err := h.deps.Chat.HandleChat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: resp, Artifact: chat.DetectArtifact(resp)})
}

func (h *handler) streamChat(w http.ResponseWriter, r *http.Request, req model.Request) {
	stream, err := h.deps.Chat.StreamChat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stream.Close()

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}

	for stream.Next() {
		d := stream.Current()
		ev := streamEvent{Delta: d}
		if d.Done {
			ev.Artifact = chat.DetectArtifact(stream.Response())
		}
		if err := sse.send("", ev); err != nil {
			// Client went away; closing the stream cancels the vendor call.
			if config.Debug {
				config.DebugLog.Printf("[API] Stream write failed: %v", err)
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		body, _ := errorBody(err)
		sse.send("error", body)
	}
}

func (h *handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers":  h.deps.Chat.ListProviders(),
		"configured": h.deps.Chat.ConfiguredProviders(),
	})
}

func (h *handler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")

	status, err := h.deps.Chat.ProviderHealth(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := providerHealthResponse{
		Provider: id,
		Healthy:  status.Healthy,
		Error:    status.Error,
	}
	if status.Configured {
		ctx := r.Context()
		if !status.Healthy {
			// No model list call to a provider that just failed its check.
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(ctx)
			cancel()
		}
		if caps, err := h.deps.Chat.Capabilities(ctx, id); err == nil {
			resp.Capabilities = caps
		}
	}
	if resp.Capabilities.SupportedModels == nil {
		resp.Capabilities.SupportedModels = status.AvailableModels
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) ProviderStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Chat.ProviderStatuses(r.Context()))
}

func (h *handler) StatusHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	if h.deps.History == nil {
		writeJSONError(w, http.StatusNotFound, "status history is not enabled", "not_found", false)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, model.NewError(model.KindInvalidRequest, "", "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.deps.History.History(r.Context(), id, limit)
	if err != nil {
		if config.Debug {
			config.DebugLog.Printf("[API] Reading %s history: %v", id, err)
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to read status history", "internal", false)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) ListToolServers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tools == nil {
		writeJSON(w, http.StatusOK, map[string]any{"servers": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": h.deps.Tools.Servers()})
}

func (h *handler) GetToolServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.deps.Tools != nil {
		if status, ok := h.deps.Tools.Server(name); ok {
			writeJSON(w, http.StatusOK, status)
			return
		}
	}
	writeJSONError(w, http.StatusNotFound, fmt.Sprintf("tool server %q is not configured", name), "not_found", false)
}

func (h *handler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools := []mcptypes.Tool{}
	if h.deps.Tools != nil {
		tools = append(tools, h.deps.Tools.Tools()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}
