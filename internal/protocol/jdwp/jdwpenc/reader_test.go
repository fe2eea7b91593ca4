package jdwpenc

import (
	"errors"
	"testing"
)

func TestNewReader(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	r := NewReader(data)
	if r.Position() != 0 {
		t.Errorf("expected position 0, got %d", r.Position())
	}
	if r.Remaining() != 4 {
		t.Errorf("expected remaining 4, got %d", r.Remaining())
	}
	if r.Err() != nil {
		t.Errorf("expected no error, got %v", r.Err())
	}
}

func TestReaderReadUint16(t *testing.T) {
	// BE encoding of 0x0102
	data := []byte{0x01, 0x02}
	r := NewReader(data)
	v := r.ReadUint16()
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if v != 0x0102 {
		t.Errorf("expected 0x0102, got 0x%04X", v)
	}
	if r.Position() != 2 {
		t.Errorf("expected position 2, got %d", r.Position())
	}
}

func TestReaderReadUint32(t *testing.T) {
	// BE encoding of 0x01020304
	data := []byte{0x01, 0x02, 0x03, 0x04}
	r := NewReader(data)
	v := r.ReadUint32()
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if v != 0x01020304 {
		t.Errorf("expected 0x01020304, got 0x%08X", v)
	}
}

func TestReaderReadUint64(t *testing.T) {
	// BE encoding of 0x0102030405060708
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	r := NewReader(data)
	v := r.ReadUint64()
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if v != 0x0102030405060708 {
		t.Errorf("expected 0x0102030405060708, got 0x%016X", v)
	}
}

func TestReaderReadInt32Negative(t *testing.T) {
	// BE two's complement of -2
	data := []byte{0xFF, 0xFF, 0xFF, 0xFE}
	r := NewReader(data)
	v := r.ReadInt32()
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if v != -2 {
		t.Errorf("expected -2, got %d", v)
	}
}

func TestReaderReadID(t *testing.T) {
	tests := []struct {
		name string
		size int
		data []byte
		want uint64
	}{
		{"width1", 1, []byte{0x42}, 0x42},
		{"width2", 2, []byte{0x01, 0x42}, 0x0142},
		{"width4", 4, []byte{0x00, 0x00, 0x01, 0x42}, 0x0142},
		{"width8", 8, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x42}, 0x0142},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			v := r.ReadID(tt.size)
			if r.Err() != nil {
				t.Fatalf("unexpected error: %v", r.Err())
			}
			if v != tt.want {
				t.Errorf("expected 0x%X, got 0x%X", tt.want, v)
			}
			if r.Remaining() != 0 {
				t.Errorf("expected remaining 0, got %d", r.Remaining())
			}
		})
	}
}

func TestReaderReadIDBadSize(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	_ = r.ReadID(3)
	if !errors.Is(r.Err(), ErrBadIDSize) {
		t.Errorf("expected ErrBadIDSize, got %v", r.Err())
	}
}

func TestReaderReadString(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x03, 'a', 'b', 'c', 0xFF}
	r := NewReader(data)
	s := r.ReadString()
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if s != "abc" {
		t.Errorf("expected %q, got %q", "abc", s)
	}
	if r.Remaining() != 1 {
		t.Errorf("expected remaining 1, got %d", r.Remaining())
	}
}

func TestReaderReadStringTruncated(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x05, 'a', 'b'}
	r := NewReader(data)
	_ = r.ReadString()
	if !errors.Is(r.Err(), ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", r.Err())
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_ = r.ReadUint32()
	if !errors.Is(r.Err(), ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", r.Err())
	}
}

func TestReaderErrorSticky(t *testing.T) {
	r := NewReader([]byte{0x01})
	_ = r.ReadUint32() // fails
	first := r.Err()
	if first == nil {
		t.Fatal("expected error")
	}
	// Subsequent reads must be no-ops with the same error.
	if v := r.ReadUint8(); v != 0 {
		t.Errorf("expected zero value after error, got %d", v)
	}
	if r.Err() != first {
		t.Errorf("error changed after sticky failure")
	}
	if r.Position() != 0 {
		t.Errorf("position advanced after error: %d", r.Position())
	}
}

func TestReaderReadBytes(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)
	b := r.ReadBytes(2)
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if len(b) != 2 || b[0] != 0x01 || b[1] != 0x02 {
		t.Errorf("unexpected bytes: %v", b)
	}
	// Returned slice must be a copy.
	b[0] = 0xAA
	if data[0] != 0x01 {
		t.Errorf("ReadBytes aliases the input buffer")
	}
}

func TestReaderSkip(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	r.Skip(2)
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if v := r.ReadUint8(); v != 0x03 {
		t.Errorf("expected 0x03 after skip, got 0x%02X", v)
	}
}
