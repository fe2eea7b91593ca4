package jdwp

import (
	"fmt"

	"github.com/droidprobe/droidprobe/internal/protocol/jdwp/jdwpenc"
)

// Event is one entry of a composite event notification. RequestID ties
// the event back to the EventRequest.Set call that installed it.
type Event struct {
	Kind      uint8
	RequestID uint32
	ThreadID  uint64
	Location  Location
}

// CompositeEvent is the decoded body of the one packet type the VM
// pushes asynchronously: a suspend policy plus one or more events that
// fired together.
type CompositeEvent struct {
	SuspendPolicy uint8
	Events        []Event
}

// DecodeComposite parses a composite event body using the negotiated
// identifier widths. An unknown event kind makes the remainder of the
// packet undecodable (its length depends on the kind), so decoding
// stops there: the events parsed so far are returned together with
// ErrUnsupportedEventKind.
func DecodeComposite(body []byte, sizes IDSizes) (*CompositeEvent, error) {
	r := jdwpenc.NewReader(body)

	ce := &CompositeEvent{SuspendPolicy: r.ReadUint8()}
	count := r.ReadUint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse composite header: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		kind := r.ReadUint8()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("parse event %d: %w", i, err)
		}

		switch kind {
		case EventKindSingleStep, EventKindBreakpoint:
			ev := Event{
				Kind:      kind,
				RequestID: r.ReadUint32(),
				ThreadID:  r.ReadID(sizes.ObjectIDSize),
				Location: Location{
					TypeTag:  r.ReadUint8(),
					ClassID:  r.ReadID(sizes.ReferenceTypeIDSize),
					MethodID: r.ReadID(sizes.MethodIDSize),
					Index:    r.ReadUint64(),
				},
			}
			if err := r.Err(); err != nil {
				return nil, fmt.Errorf("parse event %d: %w", i, err)
			}
			ce.Events = append(ce.Events, ev)
		default:
			return ce, fmt.Errorf("%w: kind %d", ErrUnsupportedEventKind, kind)
		}
	}
	return ce, nil
}
