package jdwp

import (
	"fmt"
	"io"

	"github.com/droidprobe/droidprobe/internal/protocol/jdwp/jdwpenc"
)

// Packet is a single framed JDWP packet, either a command (flags 0,
// carrying CmdSet/Cmd) or a reply (flags 0x80, carrying ErrCode). The
// VM only ever originates one command: the Event.Composite
// notification.
type Packet struct {
	ID      uint32
	Flags   uint8
	CmdSet  uint8
	Cmd     uint8
	ErrCode uint16
	Body    []byte
}

// IsReply reports whether the packet is a reply to a request.
func (p *Packet) IsReply() bool {
	return p.Flags&FlagReply != 0
}

// IsEvent reports whether the packet is an asynchronous composite
// event notification.
func (p *Packet) IsEvent() bool {
	return !p.IsReply() && p.CmdSet == CmdSetEvent && p.Cmd == EventCmdComposite
}

// encodeRequest frames an outbound command packet: the 11-byte header
// followed by the body. The total length field covers the header.
func encodeRequest(id uint32, cmdSet, cmd uint8, body []byte) []byte {
	w := jdwpenc.NewWriter(HeaderSize + len(body))
	w.WriteUint32(uint32(HeaderSize + len(body)))
	w.WriteUint32(id)
	w.WriteUint8(0)
	w.WriteUint8(cmdSet)
	w.WriteUint8(cmd)
	w.WriteBytes(body)
	return w.Bytes()
}

// readPacket reads one complete packet from r. The header is read with
// io.ReadFull, so a short read surfaces as io.ErrUnexpectedEOF rather
// than a silently truncated packet. A declared length below the header
// size is ErrBadFraming and poisons the stream.
func readPacket(r io.Reader) (*Packet, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	hr := jdwpenc.NewReader(hdr[:])
	length := hr.ReadUint32()
	id := hr.ReadUint32()
	flags := hr.ReadUint8()

	if length < HeaderSize {
		return nil, fmt.Errorf("%w: declared length %d below header size", ErrBadFraming, length)
	}

	p := &Packet{ID: id, Flags: flags}
	if p.IsReply() {
		p.ErrCode = hr.ReadUint16()
	} else {
		p.CmdSet = hr.ReadUint8()
		p.Cmd = hr.ReadUint8()
	}
	if err := hr.Err(); err != nil {
		return nil, err
	}

	if bodyLen := int(length) - HeaderSize; bodyLen > 0 {
		p.Body = make([]byte, bodyLen)
		if _, err := io.ReadFull(r, p.Body); err != nil {
			return nil, fmt.Errorf("read packet body: %w", err)
		}
	}
	return p, nil
}
