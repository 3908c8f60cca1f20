package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// connectivityMarkers is the fixed set of failure shapes the host
// environments produce when the network, not the application, is the problem.
// Matching is substring-based on the lowered error text because the shells
// surface these as loosely formatted messages.
var connectivityMarkers = []string{
	"timeout",
	"timed out",
	"network",
	"offline",
	"unavailable",
	"resource-exhausted",
	"resource exhausted",
	"failed to fetch",
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
}

// IsConnectivityError reports whether err looks like a connectivity failure
// and is therefore safe to queue for replay. Application errors, such as a
// rejected mutation, never match.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectivityMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
