package jdwp

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestFraming(t *testing.T) {
	body := []byte{0xAA, 0xBB, 0xCC}
	frame := encodeRequest(5, CmdSetVM, VMCmdVersion, body)

	// A body of length L produces exactly 11+L bytes on the wire.
	require.Len(t, frame, HeaderSize+len(body))

	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0E}, frame[0:4], "length big-endian")
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x05}, frame[4:8], "id big-endian")
	assert.Equal(t, byte(0), frame[8], "flags")
	assert.Equal(t, byte(CmdSetVM), frame[9])
	assert.Equal(t, byte(VMCmdVersion), frame[10])
	assert.Equal(t, body, frame[11:])
}

func TestEncodeRequestEmptyBody(t *testing.T) {
	frame := encodeRequest(1, CmdSetVM, VMCmdIDSizes, nil)
	require.Len(t, frame, HeaderSize)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0B}, frame[0:4])
}

func TestReadPacketReply(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x0D, // length 13
		0x00, 0x00, 0x00, 0x07, // id 7
		0x80,       // reply flag
		0x00, 0x15, // errcode 21
		0xDE, 0xAD, // body
	}

	p, err := readPacket(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.True(t, p.IsReply())
	assert.False(t, p.IsEvent())
	assert.Equal(t, uint32(7), p.ID)
	assert.Equal(t, uint16(21), p.ErrCode)
	assert.Equal(t, []byte{0xDE, 0xAD}, p.Body)
}

func TestReadPacketEvent(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x0C, // length 12
		0x00, 0x00, 0x00, 0x00, // id 0
		0x00,      // command flags
		64, 100,   // Event.Composite
		0x02,      // body
	}

	p, err := readPacket(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.False(t, p.IsReply())
	assert.True(t, p.IsEvent())
	assert.Equal(t, uint8(64), p.CmdSet)
	assert.Equal(t, uint8(100), p.Cmd)
	assert.Equal(t, []byte{0x02}, p.Body)
}

func TestReadPacketBadFraming(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x0A, // length 10 < 11
		0x00, 0x00, 0x00, 0x01,
		0x00,
		1, 1,
	}

	_, err := readPacket(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrBadFraming)
}

func TestReadPacketShortHeader(t *testing.T) {
	_, err := readPacket(bytes.NewReader([]byte{0x00, 0x00}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadPacketShortBody(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x10, // length 16, body of 5
		0x00, 0x00, 0x00, 0x01,
		0x00,
		1, 1,
		0xAA, 0xBB, // only 2 body bytes
	}

	_, err := readPacket(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

func TestVMErrorMessage(t *testing.T) {
	err := &VMError{Code: 21}
	assert.Contains(t, err.Error(), "INVALID_CLASS")

	unnamed := &VMError{Code: 999}
	assert.Contains(t, unnamed.Error(), "999")
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "VirtualMachine.IDSizes", CommandName(CmdSetVM, VMCmdIDSizes))
	assert.Equal(t, "ThreadReference.SuspendCount", CommandName(CmdSetThreadReference, ThreadCmdSuspendCount))
	assert.Equal(t, "unknown", CommandName(99, 99))
}
