package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Sentinel errors for the failure classes the REPL reacts to directly.
// Everything else is reported and the loop moves on.
var (
	// ErrOutputExists is returned when a prompt names an output file that is
	// already present on disk. The file is never overwritten.
	ErrOutputExists = stderrors.New("output file already exists")

	// ErrEventNotFound is returned by bang expansion when the referenced
	// history event does not exist.
	ErrEventNotFound = stderrors.New("event not found")

	// ErrBadEventSpec is returned by bang expansion for a malformed event
	// designator such as `!-x`.
	ErrBadEventSpec = stderrors.New("bad event specification")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s", file, line, fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), err)
}
