// Package debugger provides the high-level debugging operations the
// interactive layer drives: attach to a VM, install breakpoints by
// class and method name, resume and wait for hits, and single-step.
//
// A Debugger owns at most one wire session at a time and keeps the
// bookkeeping the protocol itself does not: which breakpoints are
// installed, which thread is currently suspended, and whether a step
// request is active.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/droidprobe/droidprobe/internal/logger"
	"github.com/droidprobe/droidprobe/internal/protocol/jdwp"
	"github.com/droidprobe/droidprobe/pkg/metrics"
)

// State is the debugger's coarse lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateRunning      State = "running"
	StateSuspended    State = "suspended"
)

var (
	// ErrAlreadyAttached is returned by Attach when a session is live.
	ErrAlreadyAttached = jdwp.ErrAlreadyAttached

	// ErrInterrupted is returned by blocking waits cut short by a
	// RequestSuspend. The VM is suspended and the session stays open.
	ErrInterrupted = jdwp.ErrInterrupted

	// ErrNotAttached is returned by operations that need a session.
	ErrNotAttached = errors.New("debugger: not attached")

	// ErrNotSuspended is returned by StepInstruction when no thread is
	// known to be suspended.
	ErrNotSuspended = errors.New("debugger: no suspended thread")

	// ErrInvalidClassName is returned by SetBreakpoint for class names
	// that cannot form a JNI signature.
	ErrInvalidClassName = errors.New("debugger: invalid class name")

	// ErrInvalidMethodName is returned by SetBreakpoint for an empty
	// method name.
	ErrInvalidMethodName = errors.New("debugger: invalid method name")
)

// Breakpoint records one installed breakpoint, keyed by the VM's event
// request id.
type Breakpoint struct {
	RequestID  uint32
	ClassName  string
	MethodName string
}

// Options configures the wire session created by Attach.
type Options = jdwp.Options

// Debugger coordinates a single debug session.
//
// Operations (Attach, SetBreakpoint, Resume, WaitForBreakpoint,
// StepInstruction, ...) are serialized by an operation lock and must
// come from one driving flow at a time. Status and RequestSuspend stay
// responsive while an operation is blocked on the VM: Status only
// touches the bookkeeping lock, RequestSuspend only an atomic session
// reference.
type Debugger struct {
	// opMu serializes operations and with them all session I/O.
	opMu sync.Mutex

	// mu guards the bookkeeping fields below. Never held across
	// blocking I/O. Lock order: opMu before mu.
	mu              sync.Mutex
	breakpoints     map[uint32]*Breakpoint
	suspendedThread uint64
	threadKnown     bool
	stepRequestID   uint32
	stepActive      bool
	state           State

	// sess is the live session, readable without opMu for Status and
	// RequestSuspend.
	sess atomic.Pointer[jdwp.Session]

	opts    Options
	metrics metrics.SessionMetrics
}

// New creates a detached Debugger. Attach establishes the session.
func New(opts Options) *Debugger {
	return &Debugger{
		opts:        opts,
		breakpoints: make(map[uint32]*Breakpoint),
		metrics:     opts.Metrics,
	}
}

// Attach connects to a VM at host:port and completes the post-handshake
// negotiation. Attaching while a session is live fails with
// ErrAlreadyAttached.
func (d *Debugger) Attach(ctx context.Context, addr string) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if sess := d.sess.Load(); sess != nil && sess.Connected() {
		return ErrAlreadyAttached
	}

	sess, err := jdwp.Dial(ctx, addr, d.opts)
	if err != nil {
		return err
	}

	d.sess.Store(sess)
	d.resetBookkeeping()
	d.setState(StateRunning)
	return nil
}

// Detach closes the session and forgets all per-session state. Safe to
// call when already detached.
func (d *Debugger) Detach() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess := d.sess.Load()
	if sess == nil {
		return nil
	}
	err := sess.Close()
	d.sess.Store(nil)
	d.resetBookkeeping()
	d.setState(StateDisconnected)
	return err
}

func (d *Debugger) resetBookkeeping() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = make(map[uint32]*Breakpoint)
	d.threadKnown = false
	d.suspendedThread = 0
	d.stepActive = false
	d.stepRequestID = 0
}

// classSignature canonicalizes a dotted class name into JNI signature
// form: com.example.App -> Lcom/example/App;.
func classSignature(className string) (string, error) {
	if className == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidClassName)
	}
	if strings.ContainsAny(className, "/;[ ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidClassName, className)
	}
	sig := "L" + strings.ReplaceAll(className, ".", "/") + ";"
	if !strings.HasSuffix(sig, ";") {
		return "", fmt.Errorf("%w: %q", ErrInvalidClassName, className)
	}
	return sig, nil
}

// SetBreakpoint installs a breakpoint at bytecode index 0 of every
// method named methodName in every loaded class named className
// (multiple overloads yield multiple breakpoints). It returns the
// number installed. Legal whether the VM is running or suspended.
func (d *Debugger) SetBreakpoint(ctx context.Context, className, methodName string) (int, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return 0, err
	}
	if methodName == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidMethodName)
	}

	sig, err := classSignature(className)
	if err != nil {
		return 0, err
	}

	classes, err := sess.ClassesBySignature(ctx, sig)
	if err != nil {
		return 0, err
	}
	if len(classes) == 0 {
		logger.Warn("no loaded class matches",
			"class", className,
			"signature", sig)
		return 0, nil
	}

	installed := 0
	for _, cls := range classes {
		methods, err := sess.ReferenceTypeMethods(ctx, cls.TypeID)
		if err != nil {
			return installed, err
		}

		for _, m := range methods {
			if m.Name != methodName {
				continue
			}

			requestID, err := sess.SetBreakpointEvent(ctx, jdwp.Location{
				TypeTag:  jdwp.TypeTagClass,
				ClassID:  cls.TypeID,
				MethodID: m.MethodID,
				Index:    0,
			})
			if err != nil {
				return installed, err
			}

			d.mu.Lock()
			d.breakpoints[requestID] = &Breakpoint{
				RequestID:  requestID,
				ClassName:  className,
				MethodName: methodName,
			}
			d.mu.Unlock()
			installed++

			logger.Info("breakpoint installed",
				"class", className,
				"method", methodName,
				"signature", m.Signature,
				"request_id", requestID)
		}
	}
	return installed, nil
}

// Breakpoints returns the installed breakpoints for display.
func (d *Debugger) Breakpoints() []*Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*Breakpoint, 0, len(d.breakpoints))
	for _, bp := range d.breakpoints {
		out = append(out, bp)
	}
	return out
}

// ClearBreakpoints removes every installed breakpoint from the VM and
// empties the breakpoint map.
func (d *Debugger) ClearBreakpoints(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return err
	}
	if err := sess.ClearAllBreakpoints(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	d.breakpoints = make(map[uint32]*Breakpoint)
	d.mu.Unlock()
	return nil
}

// Resume clears any active step request, resumes the VM, and forgets
// the suspended thread.
func (d *Debugger) Resume(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return err
	}

	d.mu.Lock()
	stepActive, stepRequestID := d.stepActive, d.stepRequestID
	d.mu.Unlock()

	if stepActive {
		if err := sess.ClearEvent(ctx, jdwp.EventKindSingleStep, stepRequestID); err != nil {
			return err
		}
		d.mu.Lock()
		d.stepActive = false
		d.stepRequestID = 0
		d.mu.Unlock()
	}

	if err := sess.VMResume(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	d.threadKnown = false
	d.suspendedThread = 0
	d.mu.Unlock()
	d.setState(StateRunning)
	return nil
}

// WaitForBreakpoint blocks until the VM delivers an event packet, then
// returns the installed Breakpoint that fired, or nil if the packet
// carried no recognized breakpoint event. Step events update the
// suspended thread but return nil.
func (d *Debugger) WaitForBreakpoint(ctx context.Context) (*Breakpoint, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return nil, err
	}

	composite, err := d.nextComposite(ctx, sess)
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			d.setState(StateSuspended)
		}
		return nil, err
	}

	var hit *Breakpoint
	for i := range composite.Events {
		ev := &composite.Events[i]
		switch ev.Kind {
		case jdwp.EventKindBreakpoint:
			d.mu.Lock()
			bp, ok := d.breakpoints[ev.RequestID]
			if ok {
				d.suspendedThread = ev.ThreadID
				d.threadKnown = true
			}
			d.mu.Unlock()

			if !ok {
				logger.Warn("breakpoint event for unknown request",
					"request_id", ev.RequestID)
				continue
			}
			d.setState(StateSuspended)
			if d.metrics != nil {
				d.metrics.RecordEvent("breakpoint")
			}
			logger.Info("breakpoint hit",
				"class", bp.ClassName,
				"method", bp.MethodName,
				"thread", ev.ThreadID,
				"location", ev.Location.Index)
			if hit == nil {
				hit = bp
			}
		case jdwp.EventKindSingleStep:
			d.mu.Lock()
			d.suspendedThread = ev.ThreadID
			d.threadKnown = true
			d.mu.Unlock()
			d.setState(StateSuspended)
			if d.metrics != nil {
				d.metrics.RecordEvent("single_step")
			}
		}
	}
	return hit, nil
}

// StepInstruction executes one bytecode instruction on the suspended
// thread. It installs a single-step event request if none is active,
// unwinds the thread's nested suspensions (a single resume only
// decrements the per-thread suspend count), then blocks until the
// matching step event arrives.
func (d *Debugger) StepInstruction(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return err
	}

	d.mu.Lock()
	threadKnown, thread := d.threadKnown, d.suspendedThread
	stepActive := d.stepActive
	d.mu.Unlock()

	if !threadKnown {
		return ErrNotSuspended
	}

	if !stepActive {
		requestID, err := sess.SetSingleStepEvent(ctx, thread)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.stepRequestID = requestID
		d.stepActive = true
		d.mu.Unlock()
		logger.Debug("step request installed",
			"request_id", requestID,
			"thread", thread)
	}

	count, err := sess.ThreadSuspendCount(ctx, thread)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if err := sess.ThreadResume(ctx, thread); err != nil {
			return err
		}
	}

	d.mu.Lock()
	stepRequestID := d.stepRequestID
	d.mu.Unlock()

	for {
		composite, err := d.nextComposite(ctx, sess)
		if err != nil {
			return err
		}

		for i := range composite.Events {
			ev := &composite.Events[i]
			if ev.Kind != jdwp.EventKindSingleStep || ev.RequestID != stepRequestID {
				continue
			}

			d.mu.Lock()
			d.suspendedThread = ev.ThreadID
			d.threadKnown = true
			d.mu.Unlock()
			if d.metrics != nil {
				d.metrics.RecordEvent("single_step")
			}
			logger.Info("stepped",
				"thread", ev.ThreadID,
				"location", ev.Location.Index)
			return nil
		}
	}
}

// nextComposite waits for one event packet and decodes it. A packet
// whose tail carries an unknown event kind is abandoned past the
// decodable prefix.
func (d *Debugger) nextComposite(ctx context.Context, sess *jdwp.Session) (*jdwp.CompositeEvent, error) {
	pkt, err := sess.WaitForEvent(ctx)
	if err != nil {
		return nil, err
	}

	composite, err := jdwp.DecodeComposite(pkt.Body, sess.IDSizes())
	if err != nil {
		if !errors.Is(err, jdwp.ErrUnsupportedEventKind) {
			return nil, err
		}
		if d.metrics != nil {
			d.metrics.RecordEvent("unknown")
		}
		logger.Warn("abandoning rest of event packet", "error", err)
	}
	return composite, nil
}

// SuspendVM suspends every thread in the VM.
func (d *Debugger) SuspendVM(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return err
	}
	if err := sess.VMSuspend(ctx); err != nil {
		return err
	}
	d.setState(StateSuspended)
	return nil
}

// RequestSuspend asks the session to suspend the VM at the next safe
// point. Unlike SuspendVM it never blocks and is safe to call from the
// interrupt watcher while the driving goroutine is inside Resume,
// WaitForBreakpoint, or StepInstruction.
func (d *Debugger) RequestSuspend() {
	if sess := d.sess.Load(); sess != nil {
		sess.RequestSuspend()
	}
}

// ExitVM terminates the remote VM with the given exit code.
func (d *Debugger) ExitVM(ctx context.Context, code int32) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	sess, err := d.session()
	if err != nil {
		return err
	}
	return sess.VMExit(ctx, code)
}

// Status is a snapshot of the session for display and the status API.
type Status struct {
	State       State  `json:"state"`
	Addr        string `json:"addr,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	VMName      string `json:"vm_name,omitempty"`
	VMVersion   string `json:"vm_version,omitempty"`
	Breakpoints int    `json:"breakpoints"`
	StepActive  bool   `json:"step_active"`
}

// Status returns a point-in-time snapshot of the debugger. It never
// blocks behind an in-flight operation.
func (d *Debugger) Status() Status {
	d.mu.Lock()
	st := Status{
		State:       StateDisconnected,
		Breakpoints: len(d.breakpoints),
		StepActive:  d.stepActive,
	}
	state := d.state
	d.mu.Unlock()

	sess := d.sess.Load()
	if sess == nil || !sess.Connected() {
		return st
	}

	version := sess.Version()
	st.Addr = sess.Addr()
	st.SessionID = sess.ID().String()
	st.VMName = version.VMName
	st.VMVersion = version.VMVersion
	st.State = state
	return st
}

// session returns the live session or ErrNotAttached.
func (d *Debugger) session() (*jdwp.Session, error) {
	sess := d.sess.Load()
	if sess == nil || !sess.Connected() {
		return nil, ErrNotAttached
	}
	return sess, nil
}

// setState records the coarse state reported by Status and publishes
// it to metrics.
func (d *Debugger) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.SetSessionState(string(s))
	}
}
