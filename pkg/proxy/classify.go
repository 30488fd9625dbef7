package proxy

import (
	"context"
	"errors"
	"net"

	"github.com/mockgate/mockgate/pkg/rule"
)

// ClassifyError maps an upstream exchange error to an error class.
// Returns "" for errors that should pass through unclassified.
func ClassifyError(err error) rule.ErrorClass {
	if err == nil {
		return ""
	}

	// A client cancel can surface wrapped in a net.OpError when it lands
	// mid-dial, so the cancellation check has to run before the net
	// branches.
	if errors.Is(err, context.Canceled) {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return rule.ErrorTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return rule.ErrorTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return rule.ErrorConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return rule.ErrorConnection
	}

	// url.Error wrapping a transport failure lands here. Treat any other
	// pre-response failure as a connection problem.
	return rule.ErrorConnection
}

// ClassifyStatus maps an upstream HTTP status to an error class.
// Returns "" for statuses that should be relayed unmodified.
func ClassifyStatus(status int) rule.ErrorClass {
	if status >= 500 && status < 600 {
		return rule.ErrorHTTP5xx
	}
	return ""
}
