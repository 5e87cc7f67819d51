package rdac

import (
	"encoding/binary"
	"math"

	"enginemon/internal/telemetry"
)

// Message type identifiers as sent by the unit.
const (
	TypePrimary   byte = 0x01
	TypeSecondary byte = 0x02
	TypeAuxiliary byte = 0x03
	TypeEGT       byte = 0x04
	TypeCHT       byte = 0x05
)

// messageSpec describes one message type. Adding a type means adding a row to
// messageTable; neither Decode nor the connector loop change.
type messageSpec struct {
	id     byte
	kind   telemetry.Kind
	size   int
	decode func(p []byte) telemetry.Payload
	encode func(rec telemetry.Payload, p []byte) bool
}

var messageTable = []messageSpec{
	{
		id:   TypePrimary,
		kind: telemetry.KindPrimary,
		size: 4,
		decode: func(p []byte) telemetry.Payload {
			return telemetry.Primary{
				RPM:         float64(u16(p, 0)),
				FuelFlowLPH: float64(u16(p, 2)) / 10,
			}
		},
		encode: func(rec telemetry.Payload, p []byte) bool {
			r, ok := rec.(telemetry.Primary)
			if !ok {
				return false
			}
			putU16(p, 0, r.RPM, 1)
			putU16(p, 2, r.FuelFlowLPH, 10)
			return true
		},
	},
	{
		id:   TypeSecondary,
		kind: telemetry.KindSecondary,
		size: 14,
		decode: func(p []byte) telemetry.Payload {
			return telemetry.Secondary{
				OilTempC:            float64(i16(p, 0)) / 10,
				OilPressureKPa:      float64(u16(p, 2)) / 10,
				FuelPressureKPa:     float64(u16(p, 4)) / 10,
				CoolantTempC:        float64(i16(p, 6)) / 10,
				Volts:               float64(u16(p, 8)) / 100,
				Amps:                float64(i16(p, 10)) / 10,
				ManifoldPressureKPa: float64(u16(p, 12)) / 10,
			}
		},
		encode: func(rec telemetry.Payload, p []byte) bool {
			r, ok := rec.(telemetry.Secondary)
			if !ok {
				return false
			}
			putI16(p, 0, r.OilTempC, 10)
			putU16(p, 2, r.OilPressureKPa, 10)
			putU16(p, 4, r.FuelPressureKPa, 10)
			putI16(p, 6, r.CoolantTempC, 10)
			putU16(p, 8, r.Volts, 100)
			putI16(p, 10, r.Amps, 10)
			putU16(p, 12, r.ManifoldPressureKPa, 10)
			return true
		},
	},
	{
		id:   TypeAuxiliary,
		kind: telemetry.KindAuxiliary,
		size: 2,
		decode: func(p []byte) telemetry.Payload {
			return telemetry.Auxiliary{FuelLevelL: float64(u16(p, 0)) / 10}
		},
		encode: func(rec telemetry.Payload, p []byte) bool {
			r, ok := rec.(telemetry.Auxiliary)
			if !ok {
				return false
			}
			putU16(p, 0, r.FuelLevelL, 10)
			return true
		},
	},
	{
		id:   TypeEGT,
		kind: telemetry.KindEGT,
		size: 8,
		decode: func(p []byte) telemetry.Payload {
			var r telemetry.EGTBank
			for i := range r.TempC {
				r.TempC[i] = binary.BigEndian.Uint16(p[i*2:])
			}
			return r
		},
		encode: func(rec telemetry.Payload, p []byte) bool {
			r, ok := rec.(telemetry.EGTBank)
			if !ok {
				return false
			}
			for i, v := range r.TempC {
				binary.BigEndian.PutUint16(p[i*2:], v)
			}
			return true
		},
	},
	{
		id:   TypeCHT,
		kind: telemetry.KindCHT,
		size: 8,
		decode: func(p []byte) telemetry.Payload {
			var r telemetry.CHTBank
			for i := range r.TempC {
				r.TempC[i] = binary.BigEndian.Uint16(p[i*2:])
			}
			return r
		},
		encode: func(rec telemetry.Payload, p []byte) bool {
			r, ok := rec.(telemetry.CHTBank)
			if !ok {
				return false
			}
			for i, v := range r.TempC {
				binary.BigEndian.PutUint16(p[i*2:], v)
			}
			return true
		},
	},
}

var (
	specByID   = map[byte]*messageSpec{}
	specByKind = map[telemetry.Kind]*messageSpec{}
)

func init() {
	for i := range messageTable {
		m := &messageTable[i]
		specByID[m.id] = m
		specByKind[m.kind] = m
	}
}

// FrameLen returns the full on-wire length of a message type, or 0 when the
// type is unknown.
func FrameLen(msgType byte) int {
	m, ok := specByID[msgType]
	if !ok {
		return 0
	}
	return headerLen + m.size + trailerLen
}

func u16(p []byte, off int) uint16 {
	return binary.BigEndian.Uint16(p[off:])
}

func i16(p []byte, off int) int16 {
	return int16(binary.BigEndian.Uint16(p[off:]))
}

// putU16 and putI16 write v*div as a fixed-point integer. Values outside the
// field range saturate.
func putU16(p []byte, off int, v float64, div float64) {
	raw := math.Round(v * div)
	raw = math.Max(0, math.Min(math.MaxUint16, raw))
	binary.BigEndian.PutUint16(p[off:], uint16(raw))
}

func putI16(p []byte, off int, v float64, div float64) {
	raw := math.Round(v * div)
	raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
	binary.BigEndian.PutUint16(p[off:], uint16(int16(raw)))
}
