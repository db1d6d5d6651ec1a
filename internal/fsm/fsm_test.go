package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionAutoStopPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventTrigger)
	require.NoError(t, err)
	require.Equal(t, StateRecording, next)

	next, err = Transition(next, EventCaptureDone)
	require.NoError(t, err)
	require.Equal(t, StateTranscribing, next)

	next, err = Transition(next, EventTranscribed)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionManualStopPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventTrigger)
	require.NoError(t, err)
	require.Equal(t, StateRecording, next)

	next, err = Transition(next, EventTrigger)
	require.NoError(t, err)
	require.Equal(t, StateTranscribing, next)

	next, err = Transition(next, EventFail)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionMatrix(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle capture-done ignored", state: StateIdle, event: EventCaptureDone, want: StateIdle, wantErr: true},
		{name: "idle transcribed ignored", state: StateIdle, event: EventTranscribed, want: StateIdle, wantErr: true},
		{name: "idle fail ignored", state: StateIdle, event: EventFail, want: StateIdle, wantErr: true},
		{name: "idle abort ignored", state: StateIdle, event: EventAbort, want: StateIdle, wantErr: true},
		{name: "recording abort discards", state: StateRecording, event: EventAbort, want: StateIdle, wantErr: false},
		{name: "recording fail resets", state: StateRecording, event: EventFail, want: StateIdle, wantErr: false},
		{name: "recording transcribed ignored", state: StateRecording, event: EventTranscribed, want: StateRecording, wantErr: true},
		{name: "transcribing trigger ignored", state: StateTranscribing, event: EventTrigger, want: StateTranscribing, wantErr: true},
		{name: "transcribing capture-done ignored", state: StateTranscribing, event: EventCaptureDone, want: StateTranscribing, wantErr: true},
		{name: "transcribing abort ignored", state: StateTranscribing, event: EventAbort, want: StateTranscribing, wantErr: true},
		{name: "transcribing fail resets", state: StateTranscribing, event: EventFail, want: StateIdle, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventTrigger)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
