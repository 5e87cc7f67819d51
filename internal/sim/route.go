package sim

import (
	"fmt"
	"math"
	"time"
)

// RouteSim flies legs of DistanceNm at GroundKt toward a waypoint, holds at
// the waypoint for Hold, then starts the next leg.
type RouteSim struct {
	DistanceNm float64
	GroundKt   float64
	Hold       time.Duration
}

func (r RouteSim) withDefaults() RouteSim {
	if r.DistanceNm <= 0 {
		r.DistanceNm = 40
	}
	if r.GroundKt <= 0 {
		r.GroundKt = 100
	}
	if r.Hold <= 0 {
		r.Hold = 10 * time.Second
	}
	return r
}

// State returns the range to the waypoint at elapsed and whether the aircraft
// is holding there.
func (r RouteSim) State(elapsed time.Duration) (rangeNm float64, arrived bool) {
	r = r.withDefaults()
	leg := time.Duration(math.Round(r.DistanceNm / r.GroundKt * float64(time.Hour)))
	cycle := leg + r.Hold
	if elapsed < 0 {
		elapsed = 0
	}
	t := elapsed % cycle
	if t >= leg {
		return 0, true
	}
	return r.DistanceNm - r.GroundKt*t.Hours(), false
}

// Sentences returns the NMEA lines a navigator would send at elapsed,
// including a GGA that carries no route data.
func (r RouteSim) Sentences(now time.Time, elapsed time.Duration) []string {
	r = r.withDefaults()
	rangeNm, arrived := r.State(elapsed)
	utc := now.UTC()
	stamp := fmt.Sprintf("%02d%02d%05.2f", utc.Hour(), utc.Minute(), float64(utc.Second())+float64(utc.Nanosecond())/1e9)

	arrival, vel := "V", r.GroundKt
	if arrived {
		arrival, vel = "A", 0
	}
	rmb := fmt.Sprintf("GPRMB,A,0.00,R,ORIG,DEST,4807.038,N,01131.000,E,%.1f,090.0,%.1f,%s,A",
		rangeNm, vel, arrival)

	togo := time.Duration(math.Round(rangeNm / r.GroundKt * float64(time.Hour)))
	ztg := fmt.Sprintf("GPZTG,%s,%s,DEST", stamp, hhmmss(togo))

	gga := fmt.Sprintf("GPGGA,%s,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", stamp)

	return []string{Sentence(gga), Sentence(rmb), Sentence(ztg)}
}

// Sentence frames an NMEA body (no '$', no checksum) as a full line.
func Sentence(body string) string {
	var ck byte
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, ck)
}

func hhmmss(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := math.Floor(d.Seconds()*100) / 100
	return fmt.Sprintf("%02d%02d%05.2f", h%100, m, s)
}
