package jdwp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/droidprobe/droidprobe/internal/logger"
	"github.com/droidprobe/droidprobe/pkg/metrics"
)

// DefaultPollInterval bounds how long a blocked read can go without
// observing the interrupt flag or a cancelled context.
const DefaultPollInterval = 250 * time.Millisecond

// Options configures a session at dial time.
type Options struct {
	// DialTimeout bounds the TCP connect. Zero means no limit.
	DialTimeout time.Duration

	// Deadline bounds the whole session: once elapsed, every blocking
	// operation fails and the session closes. Zero means no deadline.
	Deadline time.Duration

	// PollInterval is the granularity at which blocked reads check for
	// interrupt requests and cancellation. Zero uses DefaultPollInterval.
	PollInterval time.Duration

	// Metrics receives session observability. Nil disables collection.
	Metrics metrics.SessionMetrics
}

// Session owns one JDWP connection to a VM. All exchanges are strictly
// sequential: a single request is outstanding at a time, and event
// packets that arrive while a reply is pending are buffered for
// WaitForEvent rather than discarded.
//
// Session methods must be called from one goroutine at a time; the
// internal mutex enforces this. The only operation safe to invoke
// concurrently is RequestSuspend, which just sets a flag the blocked
// flow observes at the next packet boundary.
type Session struct {
	id   uuid.UUID
	addr string

	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader

	nextID  uint32
	idSizes IDSizes
	version Version

	// connected and closed are atomic so status probes stay
	// responsive while a flow is blocked on the VM holding mu.
	connected atomic.Bool
	closed    atomic.Bool

	// events buffers composite event packets received while waiting
	// for a reply, in VM emission order.
	events []*Packet

	// pendingSuspend tracks ids of interrupt-issued VM.Suspend
	// requests whose replies have not been consumed yet.
	pendingSuspend map[uint32]struct{}

	suspendRequested atomic.Bool

	expiry time.Time
	poll   time.Duration

	metrics metrics.SessionMetrics
}

// Dial connects to a VM at host:port, performs the handshake, and runs
// the attach negotiation (IDSizes, then Version). On any failure the
// socket is closed and an error returned; on success the session is
// connected and ready for requests.
func Dial(ctx context.Context, addr string, opts Options) (*Session, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("jdwp: invalid address %q: %w", addr, err)
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("jdwp: connect %s: %w", addr, err)
	}

	s := &Session{
		id:             uuid.New(),
		addr:           addr,
		conn:           conn,
		br:             bufio.NewReader(conn),
		nextID:         1,
		idSizes:        DefaultIDSizes,
		pendingSuspend: make(map[uint32]struct{}),
		poll:           poll,
		metrics:        opts.Metrics,
	}
	if opts.Deadline > 0 {
		s.expiry = time.Now().Add(opts.Deadline)
	}
	if s.metrics != nil {
		s.metrics.SetSessionState("connecting")
	}

	logger.Info("connecting to VM",
		"session", s.id.String(),
		"addr", addr)

	if err := s.attach(ctx); err != nil {
		s.conn.Close()
		s.closed.Store(true)
		if s.metrics != nil {
			s.metrics.SetSessionState("disconnected")
		}
		return nil, err
	}
	return s, nil
}

// attach performs the handshake and the post-handshake negotiation.
func (s *Session) attach(ctx context.Context) error {
	if err := s.handshake(); err != nil {
		return err
	}

	sizes, err := s.cmdIDSizes(ctx)
	if err != nil {
		return fmt.Errorf("negotiate id sizes: %w", err)
	}
	if err := sizes.Validate(); err != nil {
		return err
	}
	s.idSizes = sizes

	version, err := s.cmdVersion(ctx)
	if err != nil {
		return fmt.Errorf("query version: %w", err)
	}
	s.version = version
	s.connected.Store(true)

	logger.Info("attached to VM",
		"session", s.id.String(),
		"vm", version.VMName,
		"vm_version", version.VMVersion,
		"jdwp", fmt.Sprintf("%d.%d", version.JDWPMajor, version.JDWPMinor))
	return nil
}

// handshake sends the 14-byte magic and requires a bit-exact echo.
func (s *Session) handshake() error {
	if !s.expiry.IsZero() {
		if err := s.conn.SetDeadline(s.expiry); err != nil {
			return fmt.Errorf("jdwp: set deadline: %w", err)
		}
		defer s.conn.SetDeadline(time.Time{})
	}

	if _, err := s.conn.Write([]byte(HandshakeMagic)); err != nil {
		return fmt.Errorf("jdwp: send handshake: %w", err)
	}

	echo := make([]byte, len(HandshakeMagic))
	if _, err := io.ReadFull(s.br, echo); err != nil {
		return fmt.Errorf("jdwp: read handshake: %w", err)
	}
	if string(echo) != HandshakeMagic {
		return fmt.Errorf("%w: got %q", ErrHandshakeFailed, echo)
	}

	logger.Debug("handshake complete", "session", s.id.String())
	return nil
}

// ID returns the session identity used for log correlation.
func (s *Session) ID() uuid.UUID { return s.id }

// Addr returns the VM address the session dialed.
func (s *Session) Addr() string { return s.addr }

// IDSizes returns the identifier widths negotiated at attach. The
// widths are immutable once Dial returns.
func (s *Session) IDSizes() IDSizes {
	return s.idSizes
}

// Version returns the VM version info acquired at attach, immutable
// once Dial returns.
func (s *Session) Version() Version {
	return s.version
}

// Connected reports whether the session completed attach and has not
// been closed. Never blocks behind an in-flight exchange.
func (s *Session) Connected() bool {
	return s.connected.Load() && !s.closed.Load()
}

// RequestSuspend asks the session to issue VM.Suspend at the next safe
// point. Unlike every other method it may be called from any goroutine
// at any time, including while another flow is blocked inside Request
// or WaitForEvent: the blocked flow observes the flag between packet
// reads and sends the suspend itself, so the socket is never touched
// from two flows at once.
func (s *Session) RequestSuspend() {
	s.suspendRequested.Store(true)
}

// Request performs one synchronous command exchange and returns the
// reply body. A nonzero reply error code is returned as *VMError and
// leaves the session open; transport and framing failures close it.
func (s *Session) Request(ctx context.Context, cmdSet, cmd uint8, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked(ctx, cmdSet, cmd, body)
}

func (s *Session) requestLocked(ctx context.Context, cmdSet, cmd uint8, body []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	id, err := s.sendLocked(cmdSet, cmd, body)
	if err != nil {
		return nil, err
	}

	for {
		p, err := s.readSafepointLocked(ctx)
		if err != nil {
			return nil, err
		}

		if !p.IsReply() {
			s.enqueueEventLocked(p)
			continue
		}

		if p.ID == id {
			if p.ErrCode != 0 {
				if s.metrics != nil {
					s.metrics.RecordVMError(p.ErrCode)
				}
				return nil, &VMError{Code: p.ErrCode}
			}
			return p.Body, nil
		}

		if _, ok := s.pendingSuspend[p.ID]; ok {
			s.consumeSuspendReplyLocked(p)
			continue
		}

		return nil, s.failLocked(fmt.Errorf("%w: id %d while waiting for %d", ErrStrayReply, p.ID, id))
	}
}

// WaitForEvent blocks until a composite event packet is available,
// draining the buffer of events received during earlier exchanges
// before touching the socket.
func (s *Session) WaitForEvent(ctx context.Context) (*Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrClosed
	}

	if len(s.events) > 0 {
		p := s.events[0]
		s.events = s.events[1:]
		return p, nil
	}

	for {
		p, err := s.readSafepointLocked(ctx)
		if err != nil {
			return nil, err
		}

		if !p.IsReply() {
			if p.IsEvent() {
				return p, nil
			}
			logger.Warn("ignoring unexpected command packet from VM",
				"session", s.id.String(),
				"cmd_set", p.CmdSet,
				"cmd", p.Cmd)
			continue
		}

		if _, ok := s.pendingSuspend[p.ID]; ok {
			// The user asked for a suspend while we were waiting for
			// events; the VM is now stopped and no event is coming.
			// Hand control back to the caller.
			s.consumeSuspendReplyLocked(p)
			return nil, ErrInterrupted
		}

		return nil, s.failLocked(fmt.Errorf("%w: id %d with no request outstanding", ErrStrayReply, p.ID))
	}
}

// Close releases the socket. Safe to call more than once and after
// transport failures.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.closed.Load() {
		return nil
	}
	s.closed.Store(true)
	s.connected.Store(false)
	if s.metrics != nil {
		s.metrics.SetSessionState("disconnected")
	}
	logger.Info("session closed", "session", s.id.String())
	return s.conn.Close()
}

// sendLocked frames and writes one request, returning its id.
func (s *Session) sendLocked(cmdSet, cmd uint8, body []byte) (uint32, error) {
	id := s.nextID
	s.nextID += 2

	frame := encodeRequest(id, cmdSet, cmd, body)

	if !s.expiry.IsZero() {
		if err := s.conn.SetWriteDeadline(s.expiry); err != nil {
			return 0, s.failLocked(fmt.Errorf("set write deadline: %w", err))
		}
	}
	if _, err := s.conn.Write(frame); err != nil {
		return 0, s.failLocked(fmt.Errorf("send request: %w", err))
	}

	name := CommandName(cmdSet, cmd)
	if s.metrics != nil {
		s.metrics.RecordPacketSent(name, len(frame))
	}
	logger.Debug("sent request",
		"session", s.id.String(),
		"command", name,
		"id", id,
		"bytes", len(frame))
	return id, nil
}

// readSafepointLocked reads the next complete packet, polling so that
// interrupt requests, context cancellation, and the session deadline
// are all observed between packets. The poll deadline only ever gates
// the first byte: bytes already buffered by a timed-out read stay in
// the reader, so framing survives the polling.
func (s *Session) readSafepointLocked(ctx context.Context) (*Packet, error) {
	for {
		if err := s.fireSuspendLocked(); err != nil {
			return nil, err
		}
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return nil, s.failLocked(fmt.Errorf("cancelled: %w", err))
			}
		}
		if !s.expiry.IsZero() && time.Now().After(s.expiry) {
			return nil, s.failLocked(ErrDeadlineExceeded)
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			return nil, s.failLocked(fmt.Errorf("set read deadline: %w", err))
		}
		if _, err := s.br.Peek(1); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, s.failLocked(fmt.Errorf("read packet: %w", err))
		}

		// A packet has begun; finish it under the session deadline only.
		deadline := s.expiry
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return nil, s.failLocked(fmt.Errorf("set read deadline: %w", err))
		}

		p, err := readPacket(s.br)
		if err != nil {
			return nil, s.failLocked(err)
		}

		kind := "reply"
		if !p.IsReply() {
			kind = "event"
		}
		if s.metrics != nil {
			s.metrics.RecordPacketReceived(kind, HeaderSize+len(p.Body))
		}
		logger.Debug("received packet",
			"session", s.id.String(),
			"kind", kind,
			"id", p.ID,
			"bytes", HeaderSize+len(p.Body))
		return p, nil
	}
}

// fireSuspendLocked issues VM.Suspend if an interrupt was requested
// since the last packet boundary. The reply is consumed later by
// whichever flow reads it.
func (s *Session) fireSuspendLocked() error {
	if !s.suspendRequested.CompareAndSwap(true, false) {
		return nil
	}
	id, err := s.sendLocked(CmdSetVM, VMCmdSuspend, nil)
	if err != nil {
		return err
	}
	s.pendingSuspend[id] = struct{}{}
	logger.Info("interrupt: suspend requested", "session", s.id.String(), "id", id)
	return nil
}

func (s *Session) consumeSuspendReplyLocked(p *Packet) {
	delete(s.pendingSuspend, p.ID)
	if p.ErrCode != 0 {
		if s.metrics != nil {
			s.metrics.RecordVMError(p.ErrCode)
		}
		logger.Warn("interrupt suspend failed",
			"session", s.id.String(),
			"id", p.ID,
			"code", p.ErrCode)
		return
	}
	logger.Debug("interrupt suspend acknowledged", "session", s.id.String(), "id", p.ID)
}

func (s *Session) enqueueEventLocked(p *Packet) {
	if !p.IsEvent() {
		logger.Warn("ignoring unexpected command packet from VM",
			"session", s.id.String(),
			"cmd_set", p.CmdSet,
			"cmd", p.Cmd)
		return
	}
	s.events = append(s.events, p)
}

// failLocked closes the session on an unrecoverable error and returns
// the error for propagation. Release happens on every exit path that
// reaches it, so the socket never leaks.
func (s *Session) failLocked(err error) error {
	if !s.closed.Load() {
		logger.Error("session failed",
			"session", s.id.String(),
			"error", err)
		s.closeLocked()
	}
	return err
}
