package plesk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResponseNotOK is the class of every protocol-level failure: malformed
	// XML, a missing or duplicated singular field, or a status other than "ok".
	ErrResponseNotOK = errors.New("RPC response not ok")

	// ErrSiteResolution is returned when a site name cannot be resolved to
	// exactly one site id. It is also an ErrResponseNotOK.
	ErrSiteResolution = fmt.Errorf("site resolution failed: %w", ErrResponseNotOK)

	// ErrInsecureTLS is returned by NewClient when certificate verification
	// is disabled in the supplied TLS config.
	ErrInsecureTLS = errors.New("TLS certificate verification cannot be disabled")

	// ErrInvalidText is returned when a site, account or alias name cannot
	// be carried in a packet without being altered.
	ErrInvalidText = errors.New("invalid text")
)

// ResponseError describes a response the agent returned that could not be
// accepted. Body holds the raw response for diagnostics.
type ResponseError struct {
	Op      string
	Reason  string
	ErrCode string
	ErrText string
	Body    []byte

	kind error
}

func (e *ResponseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v: %s", e.Op, e.kind, e.Reason)
	if e.ErrCode != "" || e.ErrText != "" {
		fmt.Fprintf(&b, " (errcode %s: %s)", e.ErrCode, e.ErrText)
	}
	fmt.Fprintf(&b, ": '%s'", e.Body)
	return b.String()
}

func (e *ResponseError) Unwrap() error {
	return e.kind
}

func notOK(op, reason string, body []byte) *ResponseError {
	return &ResponseError{Op: op, Reason: reason, Body: body, kind: ErrResponseNotOK}
}

func siteNotResolved(op, reason string, body []byte) *ResponseError {
	return &ResponseError{Op: op, Reason: reason, Body: body, kind: ErrSiteResolution}
}
