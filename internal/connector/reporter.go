package connector

import (
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Reporter rate-limits decode anomaly reports. Reports it refuses are counted
// and handed back with the next one it allows.
type Reporter struct {
	lim        *rate.Limiter
	clock      clockwork.Clock
	suppressed int
}

// NewReporter allows perSec reports per second with the given burst.
// perSec <= 0 disables limiting.
func NewReporter(perSec float64, burst int, clock clockwork.Clock) *Reporter {
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Reporter{lim: rate.NewLimiter(limit, burst), clock: clock}
}

// Allow reports whether a report may go out now and, if so, how many were
// suppressed since the last one.
func (r *Reporter) Allow() (ok bool, suppressed int) {
	if !r.lim.AllowN(r.clock.Now(), 1) {
		r.suppressed++
		return false, 0
	}
	s := r.suppressed
	r.suppressed = 0
	return true, s
}
