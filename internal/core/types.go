package core

// MaxLogMessageSize bounds a single console message forwarded to a LogSink.
const MaxLogMessageSize = 4096

// LogSink receives console.log/warn/error output from a script.
type LogSink func(level, message string)

// Emit truncates oversized messages and forwards them to the sink. A nil
// sink drops the message.
func (s LogSink) Emit(level, message string) {
	if s == nil {
		return
	}
	if len(message) > MaxLogMessageSize {
		message = message[:MaxLogMessageSize] + "...(truncated)"
	}
	s(level, message)
}
