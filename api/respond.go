package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mcpchat/chat"
	"mcpchat/config"
	"mcpchat/model"
	"math"
	"net/http"
	"strconv"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Detail    string `json:"detail"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// streamEvent is one SSE data payload. The terminal event may name an
// artifact for the renderer.
type streamEvent struct {
	model.Delta
	Artifact *chat.Artifact `json:"artifact,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && config.Debug {
		config.DebugLog.Printf("[API] Encoding response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, detail, kind string, retryable bool) {
	writeJSON(w, status, errorResponse{Detail: detail, Kind: kind, Retryable: retryable})
}

// statusFor maps an error kind onto the HTTP status the client sees.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidRequest, model.KindUnknownProvider, model.KindNotConfigured, model.KindConfig:
		return http.StatusBadRequest
	case model.KindAuth:
		return http.StatusUnauthorized
	case model.KindRateLimit:
		return http.StatusTooManyRequests
	case model.KindProviderUnavailable:
		return http.StatusBadGateway
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorBody converts err into the response body and status.
func errorBody(err error) (errorResponse, int) {
	var e *model.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.Canceled) {
			return errorResponse{Detail: "request cancelled", Kind: "cancelled"}, 499
		}
		return errorResponse{Detail: "internal error", Kind: "internal"}, http.StatusInternalServerError
	}
	return errorResponse{
		Detail:    e.Error(),
		Kind:      string(e.Kind),
		Retryable: e.Retryable(),
	}, statusFor(e.Kind)
}

func writeError(w http.ResponseWriter, err error) {
	body, status := errorBody(err)

	var e *model.Error
	if errors.As(err, &e) && e.Kind == model.KindRateLimit && e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	if status == http.StatusInternalServerError && config.Debug {
		config.DebugLog.Printf("[API] Unexpected error: %v", err)
	}
	writeJSON(w, status, body)
}

// sseWriter writes server-sent events, flushing after each one.
type sseWriter struct {
	bw      *bufio.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not implement http.Flusher")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{bw: bufio.NewWriter(w), flusher: flusher}, nil
}

// send writes one event. An empty name sends an unnamed data event.
func (s *sseWriter) send(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(s.bw, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.bw, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := s.bw.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
