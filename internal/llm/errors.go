package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/common"
)

// Markers that identify a 429 as exhausted quota rather than a short-term throttle.
var quotaMarkers = []string{
	"insufficient_quota",
	"billing",
	"credit balance",
	"perday",
	"per day",
	"daily",
}

const maxErrorBody = 512

// statusError maps a non-success HTTP status into an error. Throttling,
// quota, timeout and availability failures become *common.UpstreamError.
func statusError(provider string, status int, body string) error {
	msg := truncate(strings.TrimSpace(body), maxErrorBody)

	var kind error
	switch {
	case status == http.StatusTooManyRequests && isQuotaMessage(msg):
		kind = common.ErrUpstreamQuotaExhausted
	case status == http.StatusTooManyRequests:
		kind = common.ErrUpstreamRateLimited
	case status == http.StatusPaymentRequired || (status == http.StatusBadRequest && isQuotaMessage(msg)):
		kind = common.ErrUpstreamQuotaExhausted
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = common.ErrUpstreamTimeout
	case status == 529:
		// Anthropic's "overloaded" status.
		kind = common.ErrUpstreamRateLimited
	case status >= http.StatusInternalServerError:
		kind = common.ErrUpstreamUnavailable
	default:
		return fmt.Errorf("%s API error (status %d): %s", provider, status, msg)
	}

	return &common.UpstreamError{
		Provider:   provider,
		StatusCode: status,
		Message:    msg,
		Err:        kind,
	}
}

// transportError maps a failed round trip into an error.
func transportError(provider string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &common.UpstreamError{
			Provider: provider,
			Message:  err.Error(),
			Err:      common.ErrUpstreamTimeout,
		}
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}

func isQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
