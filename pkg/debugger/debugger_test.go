package debugger

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidprobe/droidprobe/internal/protocol/jdwp"
	"github.com/droidprobe/droidprobe/internal/protocol/jdwp/jdwptest"
)

// The scripted VM below reports Dalvik widths: 8-byte ids except
// 4-byte method ids. Wire fixtures are hand-built with encoding/binary
// so a codec bug cannot hide behind symmetric encode/decode.

func be32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func jstr(s string) []byte {
	return cat(be32(uint32(len(s))), []byte(s))
}

const (
	classID  = uint64(0x42)
	threadID = uint64(0x07)

	onCreateID  = uint32(0x11)
	onDestroyID = uint32(0x22)

	bpRequestID   = uint32(0xAA)
	stepRequestID = uint32(0xBB)
)

// appHandler scripts a VM with one loaded class com.example.App with
// methods onCreate and onDestroy, a breakpoint slot, and a stepping
// thread with suspend count 1.
func appHandler(t *testing.T) jdwptest.Handler {
	return func(req jdwptest.Request) jdwptest.Reply {
		switch {
		case req.CmdSet == 1 && req.Cmd == 2: // VM.ClassesBySignature
			return jdwptest.Reply{Body: cat(
				be32(1),          // one class
				[]byte{1},        // CLASS
				be64(classID),    //
				be32(7),          // status
			)}

		case req.CmdSet == 2 && req.Cmd == 5: // ReferenceType.Methods
			return jdwptest.Reply{Body: cat(
				be32(2),
				be32(onCreateID), jstr("onCreate"), jstr("(Landroid/os/Bundle;)V"), be32(0x1),
				be32(onDestroyID), jstr("onDestroy"), jstr("()V"), be32(0),
			)}

		case req.CmdSet == 15 && req.Cmd == 1: // EventRequest.Set
			switch req.Body[0] {
			case 2: // breakpoint
				return jdwptest.Reply{Body: be32(bpRequestID)}
			case 1: // single step
				return jdwptest.Reply{Body: be32(stepRequestID)}
			}
			t.Errorf("EventRequest.Set with unexpected kind %d", req.Body[0])
			return jdwptest.Reply{Err: 102}

		case req.CmdSet == 15 && req.Cmd == 2: // EventRequest.Clear
			return jdwptest.Reply{}

		case req.CmdSet == 1 && req.Cmd == 9: // VM.Resume
			return jdwptest.Reply{Inject: [][]byte{jdwptest.EventPacket(0, breakpointEventBody())}}

		case req.CmdSet == 11 && req.Cmd == 12: // ThreadReference.SuspendCount
			return jdwptest.Reply{Body: be32(1)}

		case req.CmdSet == 11 && req.Cmd == 3: // ThreadReference.Resume
			return jdwptest.Reply{Inject: [][]byte{jdwptest.EventPacket(0, stepEventBody())}}
		}
		return jdwptest.Reply{}
	}
}

func breakpointEventBody() []byte {
	return cat(
		[]byte{2}, // SUSPEND_ALL
		be32(1),
		[]byte{2}, // BREAKPOINT
		be32(bpRequestID),
		be64(threadID),
		[]byte{1}, // CLASS tag
		be64(classID),
		be32(onCreateID),
		be64(0xF0),
	)
}

func stepEventBody() []byte {
	return cat(
		[]byte{1}, // EVENT_THREAD
		be32(1),
		[]byte{1}, // SINGLE_STEP
		be32(stepRequestID),
		be64(threadID),
		[]byte{1},
		be64(classID),
		be32(onCreateID),
		be64(0xF1),
	)
}

func attachedDebugger(t *testing.T) (*Debugger, *jdwptest.VM) {
	t.Helper()

	vm := jdwptest.New(t, jdwptest.AttachHandler(
		[5]uint32{8, 4, 8, 8, 8}, "Dalvik", "2.1.0", "Dalvik", appHandler(t)))

	dbg := New(Options{
		DialTimeout:  2 * time.Second,
		Deadline:     10 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, dbg.Attach(context.Background(), vm.Addr()))
	t.Cleanup(func() { dbg.Detach() })
	return dbg, vm
}

func findRequest(reqs []jdwptest.Request, cmdSet, cmd uint8) (jdwptest.Request, bool) {
	for _, req := range reqs {
		if req.CmdSet == cmdSet && req.Cmd == cmd {
			return req, true
		}
	}
	return jdwptest.Request{}, false
}

func TestAttachTwiceFails(t *testing.T) {
	dbg, vm := attachedDebugger(t)
	err := dbg.Attach(context.Background(), vm.Addr())
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestAttachStatus(t *testing.T) {
	dbg, vm := attachedDebugger(t)

	st := dbg.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, vm.Addr(), st.Addr)
	assert.Equal(t, "Dalvik", st.VMName)
	assert.NotEmpty(t, st.SessionID)
}

func TestSetBreakpointInvalidNames(t *testing.T) {
	dbg, _ := attachedDebugger(t)

	_, err := dbg.SetBreakpoint(context.Background(), "", "onCreate")
	assert.ErrorIs(t, err, ErrInvalidClassName)

	_, err = dbg.SetBreakpoint(context.Background(), "com/example/App", "onCreate")
	assert.ErrorIs(t, err, ErrInvalidClassName)

	_, err = dbg.SetBreakpoint(context.Background(), "com.example.App;", "onCreate")
	assert.ErrorIs(t, err, ErrInvalidClassName)

	_, err = dbg.SetBreakpoint(context.Background(), "com.example.App", "")
	assert.ErrorIs(t, err, ErrInvalidMethodName)
}

func TestSetBreakpointNotAttached(t *testing.T) {
	dbg := New(Options{})
	_, err := dbg.SetBreakpoint(context.Background(), "com.example.App", "onCreate")
	assert.ErrorIs(t, err, ErrNotAttached)
}

// Full wire round trip: the exact bytes of the lookup, method fetch,
// and breakpoint install.
func TestSetBreakpointRoundTrip(t *testing.T) {
	dbg, vm := attachedDebugger(t)

	n, err := dbg.SetBreakpoint(context.Background(), "com.example.App", "onCreate")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the exact-name method matches")

	reqs := vm.Requests()

	lookup, ok := findRequest(reqs, 1, 2)
	require.True(t, ok, "no VM.ClassesBySignature request")
	assert.Equal(t, jstr("Lcom/example/App;"), lookup.Body)

	methods, ok := findRequest(reqs, 2, 5)
	require.True(t, ok, "no ReferenceType.Methods request")
	assert.Equal(t, be64(classID), methods.Body)

	set, ok := findRequest(reqs, 15, 1)
	require.True(t, ok, "no EventRequest.Set request")
	wantSet := cat(
		[]byte{2},       // eventKind BREAKPOINT
		[]byte{2},       // suspendPolicy SUSPEND_ALL
		be32(1),         // one modifier
		[]byte{7},       // modKind LocationOnly
		[]byte{1},       // typeTag CLASS
		be64(classID),   // 8-byte reference type id
		be32(onCreateID), // 4-byte method id
		be64(0),         // location 0
	)
	assert.Equal(t, wantSet, set.Body)

	bps := dbg.Breakpoints()
	require.Len(t, bps, 1)
	assert.Equal(t, bpRequestID, bps[0].RequestID)
	assert.Equal(t, "com.example.App", bps[0].ClassName)
	assert.Equal(t, "onCreate", bps[0].MethodName)
}

func TestBreakpointHit(t *testing.T) {
	dbg, _ := attachedDebugger(t)

	_, err := dbg.SetBreakpoint(context.Background(), "com.example.App", "onCreate")
	require.NoError(t, err)

	require.NoError(t, dbg.Resume(context.Background()))

	bp, err := dbg.WaitForBreakpoint(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bp)
	assert.Equal(t, "com.example.App", bp.ClassName)
	assert.Equal(t, "onCreate", bp.MethodName)

	dbg.mu.Lock()
	assert.True(t, dbg.threadKnown)
	assert.Equal(t, threadID, dbg.suspendedThread)
	dbg.mu.Unlock()

	assert.Equal(t, StateSuspended, dbg.Status().State)
}

func TestStepInstruction(t *testing.T) {
	dbg, vm := attachedDebugger(t)

	_, err := dbg.SetBreakpoint(context.Background(), "com.example.App", "onCreate")
	require.NoError(t, err)
	require.NoError(t, dbg.Resume(context.Background()))
	_, err = dbg.WaitForBreakpoint(context.Background())
	require.NoError(t, err)

	before := len(vm.Requests())
	require.NoError(t, dbg.StepInstruction(context.Background()))

	reqs := vm.Requests()[before:]

	set, ok := findRequest(reqs, 15, 1)
	require.True(t, ok, "no EventRequest.Set for the step")
	wantStep := cat(
		[]byte{1},      // eventKind SINGLE_STEP
		[]byte{1},      // suspendPolicy EVENT_THREAD
		be32(1),        // one modifier
		[]byte{10},     // modKind Step
		be64(threadID), // 8-byte thread id
		be32(0),        // size MIN (instruction)
		be32(1),        // depth OVER
	)
	assert.Equal(t, wantStep, set.Body)

	count, ok := findRequest(reqs, 11, 12)
	require.True(t, ok, "no ThreadReference.SuspendCount request")
	assert.Equal(t, be64(threadID), count.Body)

	// Suspend count 1 means exactly one resume.
	var resumes int
	for _, req := range reqs {
		if req.CmdSet == 11 && req.Cmd == 3 {
			resumes++
			assert.Equal(t, be64(threadID), req.Body)
		}
	}
	assert.Equal(t, 1, resumes)

	dbg.mu.Lock()
	assert.True(t, dbg.threadKnown)
	assert.Equal(t, threadID, dbg.suspendedThread)
	assert.True(t, dbg.stepActive)
	assert.Equal(t, stepRequestID, dbg.stepRequestID)
	dbg.mu.Unlock()
}

func TestStepWithoutSuspendedThread(t *testing.T) {
	dbg, _ := attachedDebugger(t)
	err := dbg.StepInstruction(context.Background())
	assert.ErrorIs(t, err, ErrNotSuspended)
}

func TestResumeClearsStepRequest(t *testing.T) {
	dbg, vm := attachedDebugger(t)

	_, err := dbg.SetBreakpoint(context.Background(), "com.example.App", "onCreate")
	require.NoError(t, err)
	require.NoError(t, dbg.Resume(context.Background()))
	_, err = dbg.WaitForBreakpoint(context.Background())
	require.NoError(t, err)
	require.NoError(t, dbg.StepInstruction(context.Background()))

	before := len(vm.Requests())
	require.NoError(t, dbg.Resume(context.Background()))

	reqs := vm.Requests()[before:]

	clearReq, ok := findRequest(reqs, 15, 2)
	require.True(t, ok, "no EventRequest.Clear before resume")
	assert.Equal(t, cat([]byte{1}, be32(stepRequestID)), clearReq.Body)

	_, ok = findRequest(reqs, 1, 9)
	require.True(t, ok, "no VM.Resume")

	// The clear precedes the resume.
	var clearIdx, resumeIdx int
	for i, req := range reqs {
		if req.CmdSet == 15 && req.Cmd == 2 {
			clearIdx = i
		}
		if req.CmdSet == 1 && req.Cmd == 9 {
			resumeIdx = i
		}
	}
	assert.Less(t, clearIdx, resumeIdx)

	dbg.mu.Lock()
	assert.False(t, dbg.stepActive)
	assert.Zero(t, dbg.stepRequestID)
	assert.False(t, dbg.threadKnown)
	assert.Zero(t, dbg.suspendedThread)
	dbg.mu.Unlock()
}

func TestWaitForBreakpointUnknownRequestID(t *testing.T) {
	dbg, _ := attachedDebugger(t)

	// No breakpoint installed, so the injected event's request id is
	// not in the map.
	require.NoError(t, dbg.Resume(context.Background()))
	bp, err := dbg.WaitForBreakpoint(context.Background())
	require.NoError(t, err)
	assert.Nil(t, bp)
}

func TestDetachIdempotent(t *testing.T) {
	dbg, _ := attachedDebugger(t)

	require.NoError(t, dbg.Detach())
	require.NoError(t, dbg.Detach())
	assert.Equal(t, StateDisconnected, dbg.Status().State)

	err := dbg.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestClassSignature(t *testing.T) {
	sig, err := classSignature("com.example.App")
	require.NoError(t, err)
	assert.Equal(t, "Lcom/example/App;", sig)

	sig, err = classSignature("App")
	require.NoError(t, err)
	assert.Equal(t, "LApp;", sig)

	_, err = classSignature("bad name")
	assert.Error(t, err)
}

func TestRequestSuspendDetached(t *testing.T) {
	dbg := New(Options{})
	// Must not panic with no session.
	dbg.RequestSuspend()
}

func TestInterruptDuringWait(t *testing.T) {
	dbg, _ := attachedDebugger(t)

	_, err := dbg.SetBreakpoint(context.Background(), "com.example.App", "onCreate")
	require.NoError(t, err)

	// Park the wait on a VM that emits nothing, then interrupt it.
	done := make(chan error, 1)
	go func() {
		_, err := dbg.WaitForBreakpoint(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	dbg.RequestSuspend()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForBreakpoint did not return after RequestSuspend")
	}
	assert.Equal(t, StateSuspended, dbg.Status().State)
}

func TestStatusJSONFields(t *testing.T) {
	dbg, _ := attachedDebugger(t)
	st := dbg.Status()
	assert.Equal(t, jdwp.IDSizes{
		FieldIDSize:         8,
		MethodIDSize:        4,
		ObjectIDSize:        8,
		ReferenceTypeIDSize: 8,
		FrameIDSize:         8,
	}, dbg.sess.Load().IDSizes())
	assert.Equal(t, "2.1.0", st.VMVersion)
	assert.Zero(t, st.Breakpoints)
}
