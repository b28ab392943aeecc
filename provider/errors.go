package provider

import (
	"context"
	"errors"
	"mcpchat/model"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// classifyStatus maps a vendor HTTP status onto the error taxonomy.
func classifyStatus(provider string, status int, header http.Header, cause error) *model.Error {
	var kind model.ErrorKind
	var msg string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind, msg = model.KindAuth, "authentication failed"
	case status == http.StatusTooManyRequests:
		kind, msg = model.KindRateLimit, "rate limited"
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind, msg = model.KindTimeout, "request timed out"
	case status >= 500 || status == 529:
		kind, msg = model.KindProviderUnavailable, "service unavailable"
	case status >= 400:
		kind, msg = model.KindInvalidRequest, "request rejected"
	default:
		kind, msg = model.KindProviderUnavailable, "unexpected response"
	}

	e := model.WrapError(kind, provider, cause, "%s (HTTP %d)", msg, status)
	e.StatusCode = status
	if kind == model.KindRateLimit {
		e.RetryAfter = retryAfter(header, time.Now())
	}
	return e
}

// retryAfter reads the vendor's suggested backoff. Both the standard
// Retry-After header (seconds or HTTP date) and the millisecond variant some
// vendors send are understood.
func retryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if ms := header.Get("retry-after-ms"); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil && v > 0 {
			return time.Duration(v * float64(time.Millisecond))
		}
	}
	ra := strings.TrimSpace(header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(ra, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// classifyTransport handles errors that never produced an HTTP status.
// Cancellation by the caller is passed through unchanged.
func classifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	var typed *model.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.WrapError(model.KindTimeout, provider, err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.WrapError(model.KindTimeout, provider, err, "request timed out")
	}
	return model.WrapError(model.KindProviderUnavailable, provider, err, "cannot reach provider")
}

// classifyOpenAI converts errors from the OpenAI SDK, which is also used by
// the OpenAI-compatible variants.
func classifyOpenAI(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return classifyStatus(provider, apiErr.StatusCode, header, err)
	}
	return classifyTransport(provider, err)
}

func classifyAnthropic(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return classifyStatus(provider, apiErr.StatusCode, header, err)
	}
	return classifyTransport(provider, err)
}

func classifyOllama(provider string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(provider, statusErr.StatusCode, nil, errors.New(statusErr.ErrorMessage))
	}
	// The Ollama client reports an error body without its status, so a
	// missing model only shows up in the message.
	if msg := err.Error(); model.KindOf(err) == "" && strings.Contains(msg, "model") && strings.Contains(msg, "not found") {
		return model.WrapError(model.KindInvalidRequest, provider, err, "model not available")
	}
	return classifyTransport(provider, err)
}
