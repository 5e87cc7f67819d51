package rdac

import (
	"bytes"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"enginemon/internal/telemetry"
)

func recordGen() *rapid.Generator[telemetry.Payload] {
	u16 := rapid.IntRange(0, 65535)
	i16 := rapid.IntRange(-32768, 32767)
	bank := func(t *rapid.T, label string) [4]uint16 {
		var b [4]uint16
		for i := range b {
			b[i] = uint16(u16.Draw(t, label))
		}
		return b
	}
	return rapid.Custom(func(t *rapid.T) telemetry.Payload {
		switch rapid.IntRange(0, 4).Draw(t, "kind") {
		case 0:
			return telemetry.Primary{
				RPM:         float64(u16.Draw(t, "rpm")),
				FuelFlowLPH: float64(u16.Draw(t, "flow")) / 10,
			}
		case 1:
			return telemetry.Secondary{
				OilTempC:            float64(i16.Draw(t, "oilT")) / 10,
				OilPressureKPa:      float64(u16.Draw(t, "oilP")) / 10,
				FuelPressureKPa:     float64(u16.Draw(t, "fuelP")) / 10,
				CoolantTempC:        float64(i16.Draw(t, "coolT")) / 10,
				Volts:               float64(u16.Draw(t, "volts")) / 100,
				Amps:                float64(i16.Draw(t, "amps")) / 10,
				ManifoldPressureKPa: float64(u16.Draw(t, "map")) / 10,
			}
		case 2:
			return telemetry.Auxiliary{FuelLevelL: float64(u16.Draw(t, "fuel")) / 10}
		case 3:
			return telemetry.EGTBank{TempC: bank(t, "egt")}
		default:
			return telemetry.CHTBank{TempC: bank(t, "cht")}
		}
	})
}

// noiseGen never yields a preamble byte, so noise cannot start a frame.
func noiseGen(maxLen int) *rapid.Generator[[]byte] {
	b := rapid.Custom(func(t *rapid.T) byte {
		v := byte(rapid.IntRange(0, 254).Draw(t, "b"))
		if v >= Preamble {
			v++
		}
		return v
	})
	return rapid.SliceOfN(b, 0, maxLen)
}

func TestPropertyRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		rec := recordGen().Draw(t, "rec")
		frame, err := Encode(rec)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, n, err := Decode(frame)
		if err != nil {
			t.Fatalf("Decode(% X): %v", frame, err)
		}
		if n != len(frame) {
			t.Fatalf("consumed %d of %d", n, len(frame))
		}
		if got != rec {
			t.Fatalf("round trip: got %+v want %+v", got, rec)
		}
	})
}

func TestPropertySingleByteCorruptionIsChecksumError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		rec := recordGen().Draw(t, "rec")
		frame, err := Encode(rec)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		// Any byte after the type: payload or checksum.
		i := rapid.IntRange(headerLen, len(frame)-1).Draw(t, "index")
		delta := byte(rapid.IntRange(1, 255).Draw(t, "delta"))
		frame[i] += delta

		got, n, err := Decode(frame)
		if !errors.Is(err, ErrChecksum) {
			t.Fatalf("err=%v want ErrChecksum (rec %+v)", err, got)
		}
		if got != nil || n != 0 {
			t.Fatalf("emitted %+v n=%d from a corrupt frame", got, n)
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Skip < 1 {
			t.Fatalf("want DecodeError with Skip >= 1, got %v", err)
		}
	})
}

func TestPropertyResyncAfterNoise(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		recs := rapid.SliceOfN(recordGen(), 1, 20).Draw(t, "recs")

		var stream bytes.Buffer
		for i, rec := range recs {
			stream.Write(noiseGen(16).Draw(t, "noise"))
			frame, err := Encode(rec)
			if err != nil {
				t.Fatalf("Encode[%d]: %v", i, err)
			}
			stream.Write(frame)
		}

		buf := stream.Bytes()
		var got []telemetry.Payload
		for len(buf) > 0 {
			rec, n, err := Decode(buf)
			if errors.Is(err, ErrIncomplete) {
				t.Fatalf("stream ended mid-frame: % X", buf)
			}
			var de *DecodeError
			if errors.As(err, &de) {
				buf = buf[de.Skip:]
				continue
			}
			got = append(got, rec)
			buf = buf[n:]
		}

		if len(got) != len(recs) {
			t.Fatalf("decoded %d records, want %d", len(got), len(recs))
		}
		for i := range recs {
			if got[i] != recs[i] {
				t.Fatalf("record %d: got %+v want %+v", i, got[i], recs[i])
			}
		}
	})
}

func TestPropertyDecodeNeverPanics(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "buf")
		_, n, err := Decode(buf)
		if err == nil && (n <= 0 || n > len(buf)) {
			t.Fatalf("n=%d for len %d", n, len(buf))
		}
		var de *DecodeError
		if errors.As(err, &de) && (de.Skip < 1 || de.Skip > len(buf)) {
			t.Fatalf("skip=%d for len %d", de.Skip, len(buf))
		}
	})
}
