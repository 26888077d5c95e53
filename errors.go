package threatdex

import (
	"errors"
	"strings"
	"time"
)

// Error is the threatdex error domain type.
//
// Errors coming from pipeline components should be inspectable as
// ([errors.As]) an *Error somewhere in the chain. Create an Error at the
// system boundary (HTTP client, database, cache) and prefer fmt.Errorf with
// "%w" for intermediate wrapping.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string

	// RetryAfter is a backoff hint, set when Kind is ErrRateLimited and the
	// upstream provided one.
	RetryAfter time.Duration
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrInvalid, ErrNotFound, ErrTransient, ErrRateLimited, ErrPermanent, ErrInternal:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is] against a declared ErrorKind.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
//
// If unsure which kind applies, use ErrInternal.
type ErrorKind string

var (
	ErrInvalid     = ErrorKind("invalid")      // request or record fails validation
	ErrNotFound    = ErrorKind("not found")    // requested entity does not exist
	ErrTransient   = ErrorKind("transient")    // may succeed on retry
	ErrRateLimited = ErrorKind("rate limited") // upstream asked us to back off
	ErrPermanent   = ErrorKind("permanent")    // will never succeed
	ErrInternal    = ErrorKind("internal")     // non-specific internal error
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}

// BackoffHint extracts a Retry-After style hint from err, if any.
func BackoffHint(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}
