package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic turns a recovered panic value into an internal error. The
// stack trace is attached to the cause, never to the caller-facing details.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = fmt.Errorf("panic: %w\n%s", v, debug.Stack())
	case string:
		err = fmt.Errorf("panic: %s\n%s", v, debug.Stack())
	default:
		err = fmt.Errorf("panic: %v\n%s", v, debug.Stack())
	}

	return ErrInternal.WithCause(err)
}
