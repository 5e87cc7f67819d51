package sim

import (
	"strings"
	"testing"
	"time"

	"enginemon/internal/nav"
)

func TestRouteSim_StateClosesThenHolds(t *testing.T) {
	r := RouteSim{DistanceNm: 10, GroundKt: 120, Hold: 30 * time.Second}

	rng, arrived := r.State(0)
	if rng != 10 || arrived {
		t.Fatalf("start range=%v arrived=%v", rng, arrived)
	}
	rng, arrived = r.State(150 * time.Second)
	if arrived || rng < 4.99 || rng > 5.01 {
		t.Fatalf("mid range=%v arrived=%v want 5", rng, arrived)
	}
	// Leg is 5 minutes; 10s into the hold.
	rng, arrived = r.State(5*time.Minute + 10*time.Second)
	if rng != 0 || !arrived {
		t.Fatalf("hold range=%v arrived=%v", rng, arrived)
	}
	// Next leg restarts.
	rng, arrived = r.State(5*time.Minute + 30*time.Second)
	if rng != 10 || arrived {
		t.Fatalf("next leg range=%v arrived=%v", rng, arrived)
	}
}

func TestRouteSim_SentencesDecode(t *testing.T) {
	r := RouteSim{DistanceNm: 10, GroundKt: 120}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lines := r.Sentences(now, 150*time.Second)
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3", len(lines))
	}

	var got []time.Duration
	for _, line := range lines {
		if !strings.HasSuffix(line, "\r\n") {
			t.Fatalf("missing CRLF: %q", line)
		}
		rec, ok, err := nav.Decode(strings.TrimRight(line, "\r\n"))
		if err != nil {
			t.Fatalf("Decode(%q): %v", line, err)
		}
		if !ok {
			continue
		}
		if !rec.Valid {
			t.Fatalf("record from %q is not valid", line)
		}
		got = append(got, rec.TimeToDestination)
	}
	// RMB and ZTG both report 2.5 minutes to go; GGA is ignored.
	if len(got) != 2 {
		t.Fatalf("records=%d want 2", len(got))
	}
	for _, d := range got {
		if d < 149*time.Second || d > 151*time.Second {
			t.Fatalf("time to go=%s want ~150s", d)
		}
	}
}

func TestSentence_Checksum(t *testing.T) {
	// Well-known reference sentence.
	got := Sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	want := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
