package jdwp

import "fmt"

// IDSizes holds the byte widths of the VM's opaque identifier types,
// negotiated once per session via VirtualMachine.IDSizes. Every
// identifier field decoded after attach uses these widths.
type IDSizes struct {
	FieldIDSize         int
	MethodIDSize        int
	ObjectIDSize        int
	ReferenceTypeIDSize int
	FrameIDSize         int
}

// DefaultIDSizes are the widths assumed before negotiation completes.
var DefaultIDSizes = IDSizes{
	FieldIDSize:         8,
	MethodIDSize:        8,
	ObjectIDSize:        8,
	ReferenceTypeIDSize: 8,
	FrameIDSize:         8,
}

// Validate checks every negotiated width is one the wire codec can
// decode. VMs only ever report 4 or 8, but 1 and 2 are representable.
func (s IDSizes) Validate() error {
	for _, w := range []struct {
		name string
		size int
	}{
		{"fieldIDSize", s.FieldIDSize},
		{"methodIDSize", s.MethodIDSize},
		{"objectIDSize", s.ObjectIDSize},
		{"referenceTypeIDSize", s.ReferenceTypeIDSize},
		{"frameIDSize", s.FrameIDSize},
	} {
		switch w.size {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("jdwp: invalid %s %d", w.name, w.size)
		}
	}
	return nil
}
