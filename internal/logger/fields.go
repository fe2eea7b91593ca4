package logger

// Standard field keys for structured logging. Use these keys
// consistently across all log statements for log aggregation and
// querying.
const (
	// Session & transport
	KeySession = "session" // debug session UUID
	KeyAddr    = "addr"    // VM address (host:port)

	// Protocol
	KeyCommand = "command" // JDWP command name (VirtualMachine.Version, ...)
	KeyID      = "id"      // packet/request id
	KeyKind    = "kind"    // packet kind: reply, event
	KeyBytes   = "bytes"   // wire size
	KeyCode    = "code"    // JDWP error code

	// Debugger
	KeyClass     = "class"      // class name
	KeyMethod    = "method"     // method name
	KeyThread    = "thread"     // thread object id
	KeyRequestID = "request_id" // event request id
	KeyLocation  = "location"   // bytecode index

	// Generic
	KeyError = "error"
)
