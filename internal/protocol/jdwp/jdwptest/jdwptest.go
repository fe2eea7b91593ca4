// Package jdwptest provides a scripted fake VM for exercising the
// debugger against real sockets. The fake speaks just enough JDWP to
// echo the handshake, answer requests through a test-supplied handler,
// and inject asynchronous event packets. It deliberately builds its
// wire bytes with encoding/binary rather than the production codec, so
// an encode/decode bug cannot cancel itself out in tests.
package jdwptest

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
)

// Request is one decoded inbound command packet.
type Request struct {
	ID     uint32
	CmdSet uint8
	Cmd    uint8
	Body   []byte
}

// Reply is what a Handler returns for a request. InjectBefore and
// Inject hold complete pre-framed packets (typically events) written
// before and after the reply packet respectively; InjectBefore
// exercises the client's handling of events that interleave with a
// pending reply.
type Reply struct {
	Err          uint16
	Body         []byte
	InjectBefore [][]byte
	Inject       [][]byte
}

// Handler produces the scripted reply for one request.
type Handler func(req Request) Reply

// VM is a fake JDWP endpoint listening on a loopback socket.
type VM struct {
	t  *testing.T
	ln net.Listener

	// HandshakeReply is sent in response to the client's handshake.
	// Defaults to the correct magic; override to test mismatches.
	HandshakeReply []byte

	mu       sync.Mutex
	handler  Handler
	requests []Request
}

// New starts a fake VM on a random loopback port. The returned VM is
// closed automatically when the test ends.
func New(t *testing.T, handler Handler) *VM {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	vm := &VM{
		t:              t,
		ln:             ln,
		HandshakeReply: []byte("JDWP-Handshake"),
		handler:        handler,
	}
	t.Cleanup(vm.Close)
	go vm.serve()
	return vm
}

// Addr returns the host:port the fake VM listens on.
func (vm *VM) Addr() string {
	return vm.ln.Addr().String()
}

// Close stops the listener.
func (vm *VM) Close() {
	vm.ln.Close()
}

// SetHandler swaps the request handler mid-test.
func (vm *VM) SetHandler(h Handler) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.handler = h
}

// Requests returns a copy of every request received so far, in arrival
// order.
func (vm *VM) Requests() []Request {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]Request, len(vm.requests))
	copy(out, vm.requests)
	return out
}

func (vm *VM) serve() {
	for {
		conn, err := vm.ln.Accept()
		if err != nil {
			return
		}
		vm.handleConn(conn)
	}
}

func (vm *VM) handleConn(conn net.Conn) {
	defer conn.Close()

	// Handshake: read the client's magic, send ours.
	magic := make([]byte, 14)
	if _, err := io.ReadFull(conn, magic); err != nil {
		return
	}
	if _, err := conn.Write(vm.HandshakeReply); err != nil {
		return
	}

	for {
		req, err := readRequest(conn)
		if err != nil {
			return
		}

		vm.mu.Lock()
		vm.requests = append(vm.requests, req)
		handler := vm.handler
		vm.mu.Unlock()

		reply := Reply{}
		if handler != nil {
			reply = handler(req)
		}

		for _, pkt := range reply.InjectBefore {
			if _, err := conn.Write(pkt); err != nil {
				return
			}
		}
		if _, err := conn.Write(ReplyPacket(req.ID, reply.Err, reply.Body)); err != nil {
			return
		}
		for _, pkt := range reply.Inject {
			if _, err := conn.Write(pkt); err != nil {
				return
			}
		}
	}
}

func readRequest(conn net.Conn) (Request, error) {
	hdr := make([]byte, 11)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return Request{}, err
	}

	length := binary.BigEndian.Uint32(hdr[0:4])
	req := Request{
		ID:     binary.BigEndian.Uint32(hdr[4:8]),
		CmdSet: hdr[9],
		Cmd:    hdr[10],
	}
	if length > 11 {
		req.Body = make([]byte, length-11)
		if _, err := io.ReadFull(conn, req.Body); err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

// ReplyPacket frames a reply packet: 11-byte header with the reply
// flag and error code, then the body.
func ReplyPacket(id uint32, errCode uint16, body []byte) []byte {
	pkt := make([]byte, 11+len(body))
	binary.BigEndian.PutUint32(pkt[0:4], uint32(len(pkt)))
	binary.BigEndian.PutUint32(pkt[4:8], id)
	pkt[8] = 0x80
	binary.BigEndian.PutUint16(pkt[9:11], errCode)
	copy(pkt[11:], body)
	return pkt
}

// EventPacket frames a composite event command packet (cmdSet 64,
// cmd 100) around the given body.
func EventPacket(id uint32, body []byte) []byte {
	pkt := make([]byte, 11+len(body))
	binary.BigEndian.PutUint32(pkt[0:4], uint32(len(pkt)))
	binary.BigEndian.PutUint32(pkt[4:8], id)
	pkt[8] = 0
	pkt[9] = 64
	pkt[10] = 100
	copy(pkt[11:], body)
	return pkt
}

// AttachHandler answers the attach negotiation: VM.IDSizes with the
// given five widths (field, method, object, referenceType, frame) and
// VM.Version with the given strings. Other requests fall through to
// next, or get an empty success when next is nil.
func AttachHandler(sizes [5]uint32, description, vmVersion, vmName string, next Handler) Handler {
	return func(req Request) Reply {
		switch {
		case req.CmdSet == 1 && req.Cmd == 7: // VM.IDSizes
			body := make([]byte, 20)
			for i, w := range sizes {
				binary.BigEndian.PutUint32(body[i*4:], w)
			}
			return Reply{Body: body}

		case req.CmdSet == 1 && req.Cmd == 1: // VM.Version
			var body []byte
			body = appendString(body, description)
			body = appendUint32(body, 1)
			body = appendUint32(body, 8)
			body = appendString(body, vmVersion)
			body = appendString(body, vmName)
			return Reply{Body: body}
		}
		if next != nil {
			return next(req)
		}
		return Reply{}
	}
}

func appendUint32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendString(b []byte, s string) []byte {
	b = appendUint32(b, uint32(len(s)))
	return append(b, s...)
}
