package jdwp

// HandshakeMagic is the fixed 14-byte ASCII magic each side sends once
// per TCP connection before any JDWP packet.
const HandshakeMagic = "JDWP-Handshake"

// HeaderSize is the fixed size of every JDWP packet header.
const HeaderSize = 11

// FlagReply marks a packet as a reply; command packets carry flags 0.
const FlagReply = 0x80

// Command sets.
const (
	CmdSetVM              = 1
	CmdSetReferenceType   = 2
	CmdSetThreadReference = 11
	CmdSetEventRequest    = 15
	CmdSetEvent           = 64
)

// VirtualMachine command set commands.
const (
	VMCmdVersion            = 1
	VMCmdClassesBySignature = 2
	VMCmdIDSizes            = 7
	VMCmdSuspend            = 8
	VMCmdResume             = 9
	VMCmdExit               = 10
)

// ReferenceType command set commands.
const (
	RefTypeCmdSignature = 1
	RefTypeCmdMethods   = 5
)

// ThreadReference command set commands. Resume and SuspendCount are
// distinct opcodes and must never be aliased: Resume decrements the
// per-thread suspend count, SuspendCount only reads it.
const (
	ThreadCmdResume       = 3
	ThreadCmdSuspendCount = 12
)

// EventRequest command set commands.
const (
	EventReqCmdSet                 = 1
	EventReqCmdClear               = 2
	EventReqCmdClearAllBreakpoints = 3
)

// Event command set commands.
const EventCmdComposite = 100

// Event kinds handled by this client.
const (
	EventKindSingleStep = 1
	EventKindBreakpoint = 2
)

// Suspend policies applied when an event fires.
const (
	SuspendPolicyNone        = 0
	SuspendPolicyEventThread = 1
	SuspendPolicyAll         = 2
)

// Event request modifier kinds.
const (
	ModKindLocationOnly = 7
	ModKindStep         = 10
)

// Reference type tags.
const (
	TypeTagClass     = 1
	TypeTagInterface = 2
	TypeTagArray     = 3
)

// Step granularity and depth for single-step requests: one bytecode
// instruction, stepping over calls.
const (
	StepSizeMin  = 0
	StepDepthOver = 1
)

// Version holds the reply to VirtualMachine.Version.
type Version struct {
	Description string
	JDWPMajor   uint32
	JDWPMinor   uint32
	VMVersion   string
	VMName      string
}

// ClassRef is one entry of a VirtualMachine.ClassesBySignature reply.
// TypeID is valid for the lifetime of the session.
type ClassRef struct {
	TypeTag uint8
	TypeID  uint64
	Status  int32
}

// MethodRef is one entry of a ReferenceType.Methods reply, valid for
// the lifetime of the containing class.
type MethodRef struct {
	MethodID  uint64
	Name      string
	Signature string
	ModBits   uint32
}

// Location addresses a specific bytecode index inside a method. It is
// used both to place breakpoints and to report event positions.
type Location struct {
	TypeTag uint8
	ClassID uint64
	MethodID uint64
	Index   uint64
}

// CommandName returns a human-readable "Set.Command" name for known
// opcodes, for logging. Unknown opcodes yield "unknown".
func CommandName(cmdSet, cmd uint8) string {
	type key struct{ set, cmd uint8 }
	names := map[key]string{
		{CmdSetVM, VMCmdVersion}:                              "VirtualMachine.Version",
		{CmdSetVM, VMCmdClassesBySignature}:                   "VirtualMachine.ClassesBySignature",
		{CmdSetVM, VMCmdIDSizes}:                              "VirtualMachine.IDSizes",
		{CmdSetVM, VMCmdSuspend}:                              "VirtualMachine.Suspend",
		{CmdSetVM, VMCmdResume}:                               "VirtualMachine.Resume",
		{CmdSetVM, VMCmdExit}:                                 "VirtualMachine.Exit",
		{CmdSetReferenceType, RefTypeCmdSignature}:            "ReferenceType.Signature",
		{CmdSetReferenceType, RefTypeCmdMethods}:              "ReferenceType.Methods",
		{CmdSetThreadReference, ThreadCmdResume}:              "ThreadReference.Resume",
		{CmdSetThreadReference, ThreadCmdSuspendCount}:        "ThreadReference.SuspendCount",
		{CmdSetEventRequest, EventReqCmdSet}:                  "EventRequest.Set",
		{CmdSetEventRequest, EventReqCmdClear}:                "EventRequest.Clear",
		{CmdSetEventRequest, EventReqCmdClearAllBreakpoints}:  "EventRequest.ClearAllBreakpoints",
		{CmdSetEvent, EventCmdComposite}:                      "Event.Composite",
	}
	if n, ok := names[key{cmdSet, cmd}]; ok {
		return n
	}
	return "unknown"
}
