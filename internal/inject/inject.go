// Package inject delivers transcripts as input: typed into the focused
// window via an external keystroke utility, or written into a wrapped
// child's pseudo-terminal.
package inject

import "context"

// Injector delivers one transcript. Failures are reportable, never fatal to
// the calling daemon.
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Func adapts a function to the Injector interface.
type Func func(context.Context, string) error

func (f Func) Inject(ctx context.Context, text string) error {
	return f(ctx, text)
}
