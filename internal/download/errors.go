package download

import "github.com/cockroachdb/errors"

// Error taxonomy (spec §7). Each sentinel is wrapped with context via
// errors.Wrap/errors.Mark, the same pattern the teacher uses for its own
// wrapped errors; callers test for a kind with errors.Is.
var (
	// ErrConfig signals a malformed retry expression, unknown protocol or
	// invalid option type. Fatal to the operation; never retried.
	ErrConfig = errors.New("config error")

	// ErrNoMatch signals that a listing matched zero files.
	ErrNoMatch = errors.New("no match")

	// ErrNetwork signals DNS/connect/auth/protocol-level failure. Retried
	// under the retry policy; surfaced only after exhaustion.
	ErrNetwork = errors.New("network error")

	// ErrArchiveIntegrity signals a failed archive probe. Treated like
	// ErrNetwork: the file is deleted and the attempt retried.
	ErrArchiveIntegrity = errors.New("archive integrity error")

	// ErrCanceled signals a cooperative cancel flag observed by the
	// client's polling loop.
	ErrCanceled = errors.New("canceled")

	// ErrInternal marks a programming error (e.g. no handler for a
	// protocol code). Logged with a stack trace; the job is acked and
	// recorded as an error, never retried.
	ErrInternal = errors.New("internal error")
)

// ConfigError wraps ErrConfig with a message.
func ConfigError(msg string) error {
	return errors.Mark(errors.New(msg), ErrConfig)
}

// NetworkError wraps ErrNetwork with the causing error.
func NetworkError(cause error) error {
	return errors.Mark(errors.Wrap(cause, "network error"), ErrNetwork)
}

// ArchiveIntegrityError wraps ErrArchiveIntegrity with the causing error.
func ArchiveIntegrityError(cause error) error {
	return errors.Mark(errors.Wrap(cause, "archive integrity error"), ErrArchiveIntegrity)
}

// NoMatchError wraps ErrNoMatch for the given pattern set.
func NoMatchError(msg string) error {
	return errors.Mark(errors.New(msg), ErrNoMatch)
}

// InternalError wraps ErrInternal with the causing error.
func InternalError(cause error) error {
	return errors.Mark(errors.Wrap(cause, "internal error"), ErrInternal)
}

// Retriable reports whether err should be retried by a RetryPolicy:
// network and archive-integrity failures are; config, no-match, cancel
// and internal errors are not (spec §7 propagation policy).
func Retriable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrArchiveIntegrity)
}
