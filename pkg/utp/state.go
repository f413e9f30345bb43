package utp

// State of an endpoint's stream.  StateClosed is terminal.
type State uint8

const (
	StateUnestablished State = iota
	StateWritable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnestablished:
		return "unestablished"
	case StateWritable:
		return "writable"
	case StateClosed:
		return "closed"
	}

	return "unknown"
}
