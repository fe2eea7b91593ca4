// Package jdwpenc provides sequential big-endian encoding and decoding
// of JDWP wire data.
//
// JDWP transmits all multi-byte integers in network byte order and
// identifies VM entities (objects, methods, reference types, fields,
// frames) with opaque handles whose byte widths are negotiated once per
// session via VM.IDSizes. Reader and Writer therefore expose both
// fixed-width primitives and width-parameterized ID accessors, so the
// command codecs never touch byte order or widths directly.
//
// Both types accumulate errors: after the first failure every
// subsequent operation is a no-op returning a zero value, and the
// caller checks Err() once at the end of a decode or encode sequence.
package jdwpenc
