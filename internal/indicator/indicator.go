// Package indicator surfaces session state to the user: audible cues on
// record start/stop/error, a terminal-title status line in proxy mode, and
// desktop notifications in window mode.
package indicator

import "context"

// Controller is the session-facing indicator contract.
type Controller interface {
	ShowRecording(context.Context)
	ShowTranscribing(context.Context)
	ShowError(context.Context, string)
	Hide(context.Context)
	CueStart()
	CueStop()
	CueError()
}

// Noop preserves session flow when no indicator is wired.
type Noop struct{}

func (Noop) ShowRecording(context.Context)     {}
func (Noop) ShowTranscribing(context.Context)  {}
func (Noop) ShowError(context.Context, string) {}
func (Noop) Hide(context.Context)              {}
func (Noop) CueStart()                         {}
func (Noop) CueStop()                          {}
func (Noop) CueError()                         {}
