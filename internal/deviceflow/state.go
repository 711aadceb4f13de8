package deviceflow

// State is a step of one authentication attempt.
// Polling loops on itself while authorization is pending.
type State int

const (
	StateInit State = iota
	StateDeviceCodeRequested
	StatePolling
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDeviceCodeRequested:
		return "device_code_requested"
	case StatePolling:
		return "polling"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateObserver is notified on every state entered, including repeated polls
type StateObserver func(State)
