package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/BaSui01/agentflow/llm"
)

// MapHTTPError maps an upstream HTTP status to the gateway's error
// taxonomy, per the fixed table every adapter shares: 401/403 -> Auth,
// 404 -> NotFound, 408 -> Timeout, 429 -> RateLimit (retry_after from the
// Retry-After header, default 60s), 5xx -> Unavailable, anything else ->
// the generic upstream error.
func MapHTTPError(status int, msg, provider string, retryAfter *http.Header) *llm.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewErrorFromCode(llm.ErrAuthentication, msg, status, false, provider)
	case http.StatusNotFound:
		return llm.NewErrorFromCode(llm.ErrModelNotFound, msg, status, false, provider)
	case http.StatusRequestTimeout:
		return llm.NewErrorFromCode(llm.ErrUpstreamTimeout, msg, status, true, provider)
	case http.StatusTooManyRequests:
		e := llm.NewErrorFromCode(llm.ErrRateLimit, msg, status, true, provider)
		e.RetryAfterSeconds = parseRetryAfter(retryAfter)
		return e
	default:
		if status >= 500 {
			return llm.NewErrorFromCode(llm.ErrProviderUnavailable, msg, status, true, provider)
		}
		return llm.NewErrorFromCode(llm.ErrUpstreamError, msg, status, false, provider)
	}
}

func parseRetryAfter(h *http.Header) int {
	if h == nil {
		return 60
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 60
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return 60
}

// ReadErrorMessage reads body and extracts a human-readable message,
// falling back to the raw bytes if the body isn't the expected
// {"error": {"message": ...}} envelope.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}

// SafeCloseBody closes body if non-nil, swallowing the close error — the
// response has already been fully read or abandoned by this point.
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
