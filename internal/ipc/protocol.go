package ipc

// Request is one JSON-line control command sent to a running daemon.
type Request struct {
	Op string `json:"op"`
}

// Response reports the daemon's state and outcome for one control command.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
