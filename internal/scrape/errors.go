package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailKind is the typed failure class for a fetch attempt. The pipeline
// records it on the owning URL result; it never aborts a job.
type FailKind string

const (
	FailUnreachable FailKind = "unreachable"
	FailTimeout     FailKind = "timeout"
	FailBlocked     FailKind = "blocked"
	FailParse       FailKind = "parse_error"
)

// Error is a typed fetch failure.
type Error struct {
	Kind  FailKind
	URL   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("scrape: %s: %s: %v", e.Kind, e.URL, e.cause)
	}
	return fmt.Sprintf("scrape: %s: %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error { return e.cause }

func failErr(kind FailKind, url string, cause error) *Error {
	return &Error{Kind: kind, URL: url, cause: cause}
}

// KindOf extracts the failure kind from err, defaulting to unreachable
// for untyped transport errors.
func KindOf(err error) FailKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailTimeout
	}
	return FailUnreachable
}
