package spapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// UpstreamError classifies a failed marketplace call. Retriable errors have
// already been retried up to the policy budget before they surface.
type UpstreamError struct {
	Kind      string
	Status    int
	Retriable bool
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("upstream %s", e.Kind)
}

// classifyStatus maps an HTTP status to an UpstreamError. 2xx must be handled
// before calling this.
func classifyStatus(status int) *UpstreamError {
	switch {
	case status == http.StatusTooManyRequests:
		return &UpstreamError{Kind: "throttled", Status: status, Retriable: true}
	case status >= 500:
		return &UpstreamError{Kind: "server_error", Status: status, Retriable: true}
	case status == http.StatusUnauthorized:
		return &UpstreamError{Kind: "unauthorized", Status: status}
	case status == http.StatusForbidden:
		return &UpstreamError{Kind: "forbidden", Status: status}
	case status == http.StatusNotFound:
		return &UpstreamError{Kind: "not_found", Status: status}
	case status == http.StatusBadRequest:
		return &UpstreamError{Kind: "bad_request", Status: status}
	default:
		return &UpstreamError{Kind: "client_error", Status: status}
	}
}

// classifyTransport categorizes a transport-level error from the HTTP client.
func classifyTransport(err error) *UpstreamError {
	kind := "network"
	retriable := true
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	case errors.Is(err, context.Canceled):
		kind = "canceled"
		retriable = false
	default:
		var dnsErr *net.DNSError
		var opErr *net.OpError
		if errors.As(err, &dnsErr) {
			kind = "dns"
		} else if errors.As(err, &opErr) && opErr.Op == "dial" {
			kind = "connection"
		}
	}
	return &UpstreamError{Kind: kind, Retriable: retriable}
}
