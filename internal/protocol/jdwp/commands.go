package jdwp

import (
	"context"
	"fmt"

	"github.com/droidprobe/droidprobe/internal/protocol/jdwp/jdwpenc"
)

// Typed request/reply exchanges for the command subset this client
// speaks. Each method serializes the request body, runs one exchange,
// and parses the reply body using the negotiated identifier widths.

// cmdIDSizes issues VirtualMachine.IDSizes. Used once during attach,
// before the negotiated widths replace the defaults.
func (s *Session) cmdIDSizes(ctx context.Context) (IDSizes, error) {
	body, err := s.requestLocked(ctx, CmdSetVM, VMCmdIDSizes, nil)
	if err != nil {
		return IDSizes{}, err
	}

	r := jdwpenc.NewReader(body)
	sizes := IDSizes{
		FieldIDSize:         int(r.ReadUint32()),
		MethodIDSize:        int(r.ReadUint32()),
		ObjectIDSize:        int(r.ReadUint32()),
		ReferenceTypeIDSize: int(r.ReadUint32()),
		FrameIDSize:         int(r.ReadUint32()),
	}
	if err := r.Err(); err != nil {
		return IDSizes{}, fmt.Errorf("parse IDSizes reply: %w", err)
	}
	return sizes, nil
}

// cmdVersion issues VirtualMachine.Version during attach.
func (s *Session) cmdVersion(ctx context.Context) (Version, error) {
	body, err := s.requestLocked(ctx, CmdSetVM, VMCmdVersion, nil)
	if err != nil {
		return Version{}, err
	}
	return parseVersion(body)
}

func parseVersion(body []byte) (Version, error) {
	r := jdwpenc.NewReader(body)
	v := Version{
		Description: r.ReadString(),
		JDWPMajor:   r.ReadUint32(),
		JDWPMinor:   r.ReadUint32(),
		VMVersion:   r.ReadString(),
		VMName:      r.ReadString(),
	}
	if err := r.Err(); err != nil {
		return Version{}, fmt.Errorf("parse Version reply: %w", err)
	}
	return v, nil
}

// ClassesBySignature returns all loaded classes matching a JNI
// signature such as "Lcom/example/App;".
func (s *Session) ClassesBySignature(ctx context.Context, signature string) ([]ClassRef, error) {
	w := jdwpenc.NewWriter(4 + len(signature))
	w.WriteString(signature)

	body, err := s.Request(ctx, CmdSetVM, VMCmdClassesBySignature, w.Bytes())
	if err != nil {
		return nil, err
	}

	r := jdwpenc.NewReader(body)
	count := r.ReadUint32()
	refs := make([]ClassRef, 0, count)
	for i := uint32(0); i < count; i++ {
		refs = append(refs, ClassRef{
			TypeTag: r.ReadUint8(),
			TypeID:  r.ReadID(s.idSizes.ReferenceTypeIDSize),
			Status:  r.ReadInt32(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse ClassesBySignature reply: %w", err)
	}
	return refs, nil
}

// VMSuspend suspends all threads in the VM.
func (s *Session) VMSuspend(ctx context.Context) error {
	_, err := s.Request(ctx, CmdSetVM, VMCmdSuspend, nil)
	return err
}

// VMResume resumes the VM, decrementing the suspend count of every
// thread.
func (s *Session) VMResume(ctx context.Context) error {
	_, err := s.Request(ctx, CmdSetVM, VMCmdResume, nil)
	return err
}

// VMExit terminates the VM with the given exit code.
func (s *Session) VMExit(ctx context.Context, code int32) error {
	w := jdwpenc.NewWriter(4)
	w.WriteInt32(code)
	_, err := s.Request(ctx, CmdSetVM, VMCmdExit, w.Bytes())
	return err
}

// ReferenceTypeSignature returns the JNI signature of a reference type.
func (s *Session) ReferenceTypeSignature(ctx context.Context, typeID uint64) (string, error) {
	w := jdwpenc.NewWriter(8)
	w.WriteID(s.idSizes.ReferenceTypeIDSize, typeID)

	body, err := s.Request(ctx, CmdSetReferenceType, RefTypeCmdSignature, w.Bytes())
	if err != nil {
		return "", err
	}

	r := jdwpenc.NewReader(body)
	sig := r.ReadString()
	if err := r.Err(); err != nil {
		return "", fmt.Errorf("parse Signature reply: %w", err)
	}
	return sig, nil
}

// ReferenceTypeMethods returns every method declared by a reference
// type.
func (s *Session) ReferenceTypeMethods(ctx context.Context, typeID uint64) ([]MethodRef, error) {
	w := jdwpenc.NewWriter(8)
	w.WriteID(s.idSizes.ReferenceTypeIDSize, typeID)

	body, err := s.Request(ctx, CmdSetReferenceType, RefTypeCmdMethods, w.Bytes())
	if err != nil {
		return nil, err
	}

	r := jdwpenc.NewReader(body)
	count := r.ReadUint32()
	methods := make([]MethodRef, 0, count)
	for i := uint32(0); i < count; i++ {
		methods = append(methods, MethodRef{
			MethodID:  r.ReadID(s.idSizes.MethodIDSize),
			Name:      r.ReadString(),
			Signature: r.ReadString(),
			ModBits:   r.ReadUint32(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse Methods reply: %w", err)
	}
	return methods, nil
}

// ThreadResume decrements the suspend count of one thread, resuming it
// when the count reaches zero.
func (s *Session) ThreadResume(ctx context.Context, threadID uint64) error {
	w := jdwpenc.NewWriter(8)
	w.WriteID(s.idSizes.ObjectIDSize, threadID)
	_, err := s.Request(ctx, CmdSetThreadReference, ThreadCmdResume, w.Bytes())
	return err
}

// ThreadSuspendCount reads the suspend count of one thread without
// changing it.
func (s *Session) ThreadSuspendCount(ctx context.Context, threadID uint64) (uint32, error) {
	w := jdwpenc.NewWriter(8)
	w.WriteID(s.idSizes.ObjectIDSize, threadID)

	body, err := s.Request(ctx, CmdSetThreadReference, ThreadCmdSuspendCount, w.Bytes())
	if err != nil {
		return 0, err
	}

	r := jdwpenc.NewReader(body)
	count := r.ReadUint32()
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("parse SuspendCount reply: %w", err)
	}
	return count, nil
}

// SetBreakpointEvent installs a breakpoint event request at the given
// location with an all-threads suspend policy, returning the VM's
// event request id.
func (s *Session) SetBreakpointEvent(ctx context.Context, loc Location) (uint32, error) {
	w := jdwpenc.NewWriter(32)
	w.WriteUint8(EventKindBreakpoint)
	w.WriteUint8(SuspendPolicyAll)
	w.WriteUint32(1)
	w.WriteUint8(ModKindLocationOnly)
	s.writeLocation(w, loc)

	return s.setEventRequest(ctx, w)
}

// SetSingleStepEvent installs a single-step event request on a thread:
// one bytecode instruction, stepping over calls, suspending only the
// stepping thread.
func (s *Session) SetSingleStepEvent(ctx context.Context, threadID uint64) (uint32, error) {
	w := jdwpenc.NewWriter(24)
	w.WriteUint8(EventKindSingleStep)
	w.WriteUint8(SuspendPolicyEventThread)
	w.WriteUint32(1)
	w.WriteUint8(ModKindStep)
	w.WriteID(s.idSizes.ObjectIDSize, threadID)
	w.WriteUint32(StepSizeMin)
	w.WriteUint32(StepDepthOver)

	return s.setEventRequest(ctx, w)
}

func (s *Session) setEventRequest(ctx context.Context, w *jdwpenc.Writer) (uint32, error) {
	if err := w.Err(); err != nil {
		return 0, err
	}

	body, err := s.Request(ctx, CmdSetEventRequest, EventReqCmdSet, w.Bytes())
	if err != nil {
		return 0, err
	}

	r := jdwpenc.NewReader(body)
	requestID := r.ReadUint32()
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("parse EventRequest.Set reply: %w", err)
	}
	return requestID, nil
}

// ClearEvent removes one event request by kind and id.
func (s *Session) ClearEvent(ctx context.Context, eventKind uint8, requestID uint32) error {
	w := jdwpenc.NewWriter(5)
	w.WriteUint8(eventKind)
	w.WriteUint32(requestID)
	_, err := s.Request(ctx, CmdSetEventRequest, EventReqCmdClear, w.Bytes())
	return err
}

// ClearAllBreakpoints removes every breakpoint event request installed
// by this debugger.
func (s *Session) ClearAllBreakpoints(ctx context.Context) error {
	_, err := s.Request(ctx, CmdSetEventRequest, EventReqCmdClearAllBreakpoints, nil)
	return err
}

func (s *Session) writeLocation(w *jdwpenc.Writer, loc Location) {
	w.WriteUint8(loc.TypeTag)
	w.WriteID(s.idSizes.ReferenceTypeIDSize, loc.ClassID)
	w.WriteID(s.idSizes.MethodIDSize, loc.MethodID)
	w.WriteUint64(loc.Index)
}
