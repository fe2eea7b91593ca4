package metrics

// SessionMetrics provides observability for a debugger wire session.
//
// Implementations can collect metrics about packets exchanged with the
// VM, asynchronous events, and protocol-level errors. This interface is
// optional - pass nil to disable metrics collection with zero overhead.
type SessionMetrics interface {
	// RecordPacketSent records an outbound request packet with its
	// command name (e.g. "VirtualMachine.Version") and wire size.
	RecordPacketSent(command string, bytes int)

	// RecordPacketReceived records an inbound packet. kind is "reply"
	// or "event".
	RecordPacketReceived(kind string, bytes int)

	// RecordVMError records a reply that carried a nonzero JDWP error
	// code.
	RecordVMError(code uint16)

	// RecordEvent records a decoded VM event by kind ("breakpoint",
	// "single_step", "unknown").
	RecordEvent(kind string)

	// SetSessionState records the session state ("connecting",
	// "running", "suspended", "disconnected").
	SetSessionState(state string)
}
