package nav

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"enginemon/internal/telemetry"
)

var (
	ErrChecksum          = errors.New("nmea: checksum mismatch")
	ErrMalformedSentence = errors.New("nmea: malformed sentence")
)

type nmeaSentence struct {
	Talker string
	Type   string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields []string
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSentence, fmt.Sprintf(format, args...))
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, malformed("missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, malformed("missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, malformed("short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, malformed("bad checksum %q", ck[:2])
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("%w: got %02X want %02X", ErrChecksum, got, want[0])
	}

	parts := strings.Split(payload, ",")
	typeField := parts[0]
	if len(typeField) < 3 {
		return nmeaSentence{}, malformed("short type %q", typeField)
	}
	// Accept GPxxx/GNxxx/IIxxx etc; normalize to the last 3 chars.
	t := typeField[len(typeField)-3:]
	return nmeaSentence{
		Talker: typeField[:len(typeField)-3],
		Type:   strings.ToUpper(t),
		Fields: parts,
	}, nil
}

// Decode parses one line.
//
// ok is false with a nil error for well-formed sentences of a type that does
// not carry route timing; those are expected traffic, not anomalies.
func Decode(line string) (rec telemetry.NavRecord, ok bool, err error) {
	sent, err := parseNMEASentence(line)
	if err != nil {
		return telemetry.NavRecord{}, false, err
	}
	switch sent.Type {
	case "RMB":
		rec, err = decodeRMB(sent.Fields)
	case "ZTG":
		rec, err = decodeZTG(sent.Fields)
	default:
		return telemetry.NavRecord{}, false, nil
	}
	if err != nil {
		return telemetry.NavRecord{}, false, err
	}
	return rec, true, nil
}

// RMB: Recommended Minimum Navigation Information
// Fields (NMEA 0183 v2.3):
//
//	 0: talker+type
//	 1: status (A=active, V=void)
//	 2: cross track error (nm)
//	 3: direction to steer (L/R)
//	 4: origin waypoint ID
//	 5: destination waypoint ID
//	 6: destination latitude
//	 7: N/S
//	 8: destination longitude
//	 9: E/W
//	10: range to destination (nm)
//	11: bearing to destination (deg true)
//	12: destination closing velocity (kt)
//	13: arrival status (A=arrived, V=not arrived)
//	14: mode indicator (v2.3 only)
//
// Some route computers append the time to go (hhmm.m or hhmmss.s) after the
// arrival status or mode indicator. When present it is used as-is instead of
// range over closing velocity.
func decodeRMB(f []string) (telemetry.NavRecord, error) {
	if len(f) < 14 {
		return telemetry.NavRecord{}, malformed("RMB has %d fields, want >= 14", len(f))
	}
	if strings.TrimSpace(f[1]) != "A" {
		return telemetry.NavRecord{}, nil
	}
	if strings.TrimSpace(f[13]) == "A" {
		return telemetry.NavRecord{TimeToDestination: 0, Valid: true}, nil
	}
	if v, ok := rmbTimeToGo(f[14:]); ok {
		d, err := parseTimeToGo(v)
		if err != nil {
			return telemetry.NavRecord{}, malformed("RMB time to go %q: %v", v, err)
		}
		return telemetry.NavRecord{TimeToDestination: d, Valid: true}, nil
	}

	rangeNm, rangeOK, err := parseOptionalFloat(f[10])
	if err != nil {
		return telemetry.NavRecord{}, malformed("RMB range %q", f[10])
	}
	closingKt, velOK, err := parseOptionalFloat(f[12])
	if err != nil {
		return telemetry.NavRecord{}, malformed("RMB closing velocity %q", f[12])
	}
	// Without a positive closing speed there is no meaningful ETE.
	if !rangeOK || !velOK || closingKt <= 0 || rangeNm < 0 {
		return telemetry.NavRecord{}, nil
	}

	hours := rangeNm / closingKt
	return telemetry.NavRecord{
		TimeToDestination: time.Duration(math.Round(hours * float64(time.Hour))),
		Valid:             true,
	}, nil
}

// rmbTimeToGo finds a trailing time-to-go field, skipping the one-letter
// mode indicator.
func rmbTimeToGo(trailing []string) (string, bool) {
	for _, v := range trailing {
		v = strings.TrimSpace(v)
		if v == "" || isModeIndicator(v) {
			continue
		}
		return v, true
	}
	return "", false
}

func isModeIndicator(v string) bool {
	return len(v) == 1 && v[0] >= 'A' && v[0] <= 'Z'
}

// ZTG: UTC and Time to Destination Waypoint
// Fields:
//
//	0: talker+type
//	1: UTC of fix (hhmmss.ss)
//	2: time to go (hhmmss.ss, some units send hhmm.m)
//	3: destination waypoint ID
func decodeZTG(f []string) (telemetry.NavRecord, error) {
	if len(f) < 3 {
		return telemetry.NavRecord{}, malformed("ZTG has %d fields, want >= 3", len(f))
	}
	v := strings.TrimSpace(f[2])
	if v == "" {
		return telemetry.NavRecord{}, nil
	}
	d, err := parseTimeToGo(v)
	if err != nil {
		return telemetry.NavRecord{}, malformed("ZTG time to go %q: %v", v, err)
	}
	return telemetry.NavRecord{TimeToDestination: d, Valid: true}, nil
}

// parseTimeToGo accepts hhmmss(.s) and hhmm(.m). The fraction belongs to the
// last unit present.
func parseTimeToGo(v string) (time.Duration, error) {
	intPart, frac := v, ""
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		intPart, frac = v[:dot], v[dot:]
	}
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
	}

	var hh, mm string
	var last float64
	var unit time.Duration
	switch len(intPart) {
	case 6:
		hh, mm = intPart[:2], intPart[2:4]
		s, err := strconv.ParseFloat(intPart[4:]+frac, 64)
		if err != nil {
			return 0, err
		}
		last, unit = s, time.Second
	case 4:
		hh = intPart[:2]
		m, err := strconv.ParseFloat(intPart[2:]+frac, 64)
		if err != nil {
			return 0, err
		}
		last, unit = m, time.Minute
	default:
		return 0, fmt.Errorf("want hhmmss or hhmm, got %d digits", len(intPart))
	}

	h, _ := strconv.Atoi(hh)
	d := time.Duration(h) * time.Hour
	if mm != "" {
		m, _ := strconv.Atoi(mm)
		if m > 59 {
			return 0, fmt.Errorf("minutes %d out of range", m)
		}
		d += time.Duration(m) * time.Minute
	}
	if last >= 60 {
		return 0, fmt.Errorf("value %.2f out of range", last)
	}
	d += time.Duration(math.Round(last * float64(unit)))
	return d, nil
}

// parseOptionalFloat distinguishes an empty field (ok == false) from a
// garbage one (err != nil).
func parseOptionalFloat(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
