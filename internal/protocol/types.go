package protocol

import "fmt"

// FrameSize is the fixed length of a wire frame.
const FrameSize = 8

// Command codes carried in byte 3 of a frame.
const (
	CommandNoop     byte = 0
	CommandShutdown byte = 255
)

// Message is a decoded frame: a command code and a value/index.
// The zero value is the no-op message.
type Message struct {
	Command byte
	Value   byte
}

// IsShutdown reports whether the message requests shutdown.
func (m Message) IsShutdown() bool {
	return m.Command == CommandShutdown
}

// IsNoop reports whether the message carries no work.
func (m Message) IsNoop() bool {
	return m.Command == CommandNoop
}

// ListIndex returns the zero-based command list selected by the message and
// true, or false when the command code does not select a list (anything
// outside 1-4).
func (m Message) ListIndex() (int, bool) {
	if m.Command < 1 || m.Command > 4 {
		return 0, false
	}
	return int(m.Command) - 1, true
}

func (m Message) String() string {
	switch {
	case m.IsNoop():
		return "noop"
	case m.IsShutdown():
		return "shutdown"
	default:
		return fmt.Sprintf("command=%d value=%d", m.Command, m.Value)
	}
}
