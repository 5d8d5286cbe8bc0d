// Package panicerr keeps a panic in a push handler or a dial from taking the
// whole client down: the panic comes back as an ordinary error.
package panicerr

import (
	"context"
	"errors"

	"github.com/sourcegraph/conc/panics"
)

// ErrPanic matches every error produced from a recovered panic.
var ErrPanic = errors.New("recovered panic")

// Try runs fn and reports a panic inside it as an error wrapping ErrPanic.
// The panic value and stack are kept in the message.
func Try(fn func()) error {
	r := panics.Try(fn)
	if r == nil {
		return nil
	}
	return errors.Join(ErrPanic, r.AsError())
}

// Call runs fn and returns its error, or the panic it raised.
func Call(fn func() error) error {
	var err error
	if perr := Try(func() { err = fn() }); perr != nil {
		return perr
	}
	return err
}

// SafeContext wraps fn so calling it never panics.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Call(func() error { return fn(ctx) })
	}
}
