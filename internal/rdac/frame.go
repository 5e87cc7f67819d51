package rdac

import (
	"bytes"
	"errors"
	"fmt"

	"enginemon/internal/telemetry"
)

const (
	Preamble byte = 0xAA

	headerLen  = 2 // preamble + type
	trailerLen = 1 // sum8
)

var (
	// ErrIncomplete means the buffer holds the start of a frame but not all of
	// it. Nothing should be consumed; read more bytes and retry.
	ErrIncomplete = errors.New("rdac: incomplete frame")
	// ErrChecksum means a candidate frame failed its checksum.
	ErrChecksum = errors.New("rdac: checksum mismatch")
	// ErrMalformedFrame covers bytes that cannot start a frame: no preamble or
	// an unknown message type.
	ErrMalformedFrame = errors.New("rdac: malformed frame")
)

// DecodeError classifies a rejected frame and tells the caller how many bytes
// to drop before trying again. Skip is always >= 1.
type DecodeError struct {
	Err    error
	Type   byte
	Skip   int
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (skip %d)", e.Err, e.Skip)
	}
	return fmt.Sprintf("%v: %s (skip %d)", e.Err, e.Detail, e.Skip)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Class maps the error onto the status classification.
func (e *DecodeError) Class() telemetry.Class {
	if errors.Is(e.Err, ErrChecksum) {
		return telemetry.ClassChecksumError
	}
	return telemetry.ClassMalformedFrame
}

// Decode attempts to decode one frame at the front of buf.
//
// On success it returns the record and the number of bytes the frame used.
// When buf holds only part of a frame it returns ErrIncomplete and n == 0.
// Any other failure is a *DecodeError; the caller drops DecodeError.Skip
// bytes, which is the minimum needed to reach the next candidate preamble.
func Decode(buf []byte) (rec telemetry.Payload, n int, err error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != Preamble {
		skip := len(buf)
		if i := bytes.IndexByte(buf[1:], Preamble); i >= 0 {
			skip = i + 1
		}
		return nil, 0, &DecodeError{Err: ErrMalformedFrame, Skip: skip, Detail: "missing preamble"}
	}
	if len(buf) < headerLen {
		return nil, 0, ErrIncomplete
	}

	m, ok := specByID[buf[1]]
	if !ok {
		return nil, 0, &DecodeError{
			Err:    ErrMalformedFrame,
			Type:   buf[1],
			Skip:   1,
			Detail: fmt.Sprintf("unknown message type 0x%02X", buf[1]),
		}
	}

	total := headerLen + m.size + trailerLen
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	want := sum8(buf[1 : total-1])
	got := buf[total-1]
	if got != want {
		return nil, 0, &DecodeError{
			Err:    ErrChecksum,
			Type:   m.id,
			Skip:   1,
			Detail: fmt.Sprintf("type 0x%02X got 0x%02X want 0x%02X", m.id, got, want),
		}
	}

	return m.decode(buf[headerLen : headerLen+m.size]), total, nil
}

// Encode builds the on-wire frame for a record.
func Encode(rec telemetry.Payload) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("rdac: record is nil")
	}
	m, ok := specByKind[rec.Kind()]
	if !ok {
		return nil, fmt.Errorf("rdac: no message type for %s", rec.Kind())
	}

	out := make([]byte, headerLen+m.size+trailerLen)
	out[0] = Preamble
	out[1] = m.id
	if !m.encode(rec, out[headerLen:headerLen+m.size]) {
		return nil, fmt.Errorf("rdac: unsupported record type %T", rec)
	}
	out[len(out)-1] = sum8(out[1 : len(out)-1])
	return out, nil
}

// sum8 is the unit's additive checksum: the low byte of the sum of the type
// byte and every payload byte.
func sum8(p []byte) byte {
	var s byte
	for _, b := range p {
		s += b
	}
	return s
}
