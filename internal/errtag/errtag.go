// Package errtag implements the core's error taxonomy: every error surfaced
// across the async runtime, pipeline engine, and container lifecycle carries
// a category and severity so the scheduler and the shell's verbose mode can
// reason about it uniformly.
package errtag

import "fmt"

// Category is a closed classification of error kinds, independent of the
// component that raised the error.
type Category string

const (
	Configuration         Category = "configuration"
	NotFound              Category = "not_found"
	AlreadyExists          Category = "already_exists"
	InvalidState           Category = "invalid_state"
	Timeout                Category = "timeout"
	Cancelled              Category = "cancelled"
	UnsupportedFeature     Category = "unsupported_feature"
	InsufficientPrivileges Category = "insufficient_privileges"
	Namespace              Category = "namespace"
	Cgroup                 Category = "cgroup"
	Capability             Category = "capability"
	Seccomp                Category = "seccomp"
	Mount                  Category = "mount"
	Security               Category = "security"
	Scheduling             Category = "scheduling"
	Channel                Category = "channel"
	Pool                   Category = "pool"
	Build                  Category = "build"
	Syntax                 Category = "syntax"
	Execution              Category = "execution"
	Data                   Category = "data"
	IO                     Category = "io"
	Permission             Category = "permission"
	Serialization          Category = "serialization"
	Internal               Category = "internal"

	// WouldBlock and Interrupted and ResourceUnavailable round out the
	// recoverable set named in spec.md §7; they are not raised directly by
	// this package but are recognized by Recoverable below.
	WouldBlock          Category = "would_block"
	Interrupted          Category = "interrupted"
	ResourceUnavailable  Category = "resource_unavailable"
)

// Severity ranks how urgently an error needs attention.
type Severity string

const (
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

// Error is the core's tagged error type. It always wraps an underlying
// cause so %w unwrapping and errors.Is/As keep working across the taxonomy.
type Error struct {
	Category Category
	Severity Severity
	Step     string // optional: which composite-application step failed (§4.8)
	Cause    error
}

func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: %s (step=%s): %v", e.Category, e.Severity, e.Step, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Severity, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New tags cause with category/severity, defaulting severity to Medium.
func New(category Category, severity Severity, cause error) *Error {
	if severity == "" {
		severity = Medium
	}
	return &Error{Category: category, Severity: severity, Cause: cause}
}

// Newf is New with fmt.Errorf-style formatting of the cause.
func Newf(category Category, severity Severity, format string, args ...any) *Error {
	return New(category, severity, fmt.Errorf(format, args...))
}

// WithStep attaches the failed composite-application step (§4.8 step 1-7)
// to an existing tagged error and returns it for chaining.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// recoverable is the fixed set of categories the scheduler may retry,
// per spec.md §7: "Timeout, WouldBlock, Interrupted, ResourceUnavailable".
var recoverable = map[Category]bool{
	Timeout:             true,
	WouldBlock:          true,
	Interrupted:         true,
	ResourceUnavailable: true,
}

// Recoverable reports whether an error (tagged or not) belongs to the
// recoverable set a scheduler retry policy may act on.
func Recoverable(err error) bool {
	var tagged *Error
	if e, ok := err.(*Error); ok {
		tagged = e
	} else {
		return false
	}
	return recoverable[tagged.Category]
}

// CategoryOf extracts the category from a tagged error, or Internal if the
// error was never tagged (a defect per spec.md §7, but handled gracefully).
func CategoryOf(err error) Category {
	if e, ok := err.(*Error); ok {
		return e.Category
	}
	return Internal
}
