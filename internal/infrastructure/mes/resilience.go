package mes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

var alreadyFinalizedMarkers = []string{"já está finalizado", "ja esta finalizado", "já finalizado"}

func isAlreadyFinalizedMessage(msg string) bool {
	lower := strings.ToLower(norm.NFC.String(msg))
	for _, marker := range alreadyFinalizedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classifyMESError marks network failures and gateway statuses as transient.
// Only transport failures and 5xx answers count against the breaker; a
// rejected record says nothing about the health of the MES.
func classifyMESError(err error) resilience.Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, domain.ErrTransport) {
			return resilience.Class{Transient: true, Trips: true}
		}
		return resilience.Class{}
	}
	if errors.Is(err, errUnauthorized) {
		return resilience.Class{}
	}

	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return resilience.Class{
			Transient: isRetryableHTTPStatus(remote.StatusCode),
			Trips:     remote.StatusCode >= http.StatusInternalServerError,
		}
	}
	if errors.Is(err, domain.ErrTransport) {
		return resilience.Class{Transient: true, Trips: true}
	}
	return resilience.Class{Trips: true}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
