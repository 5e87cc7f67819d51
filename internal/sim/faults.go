package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// FaultKind names a line fault the simulator can inject.
type FaultKind string

const (
	// FaultNoise inserts Bytes random bytes ahead of the next batch.
	FaultNoise FaultKind = "noise"
	// FaultCorrupt flips one bit in the next batch.
	FaultCorrupt FaultKind = "corrupt"
	// FaultDrop fails the next read, then refuses to open for Down.
	FaultDrop FaultKind = "drop"
)

// FaultScript is a deterministic fault schedule for a simulated link.
//
// YAML schema (v1):
//
//	version: 1
//	faults:
//	  - t: 5s
//	    kind: noise
//	    bytes: 12
//	  - t: 8s
//	    kind: corrupt
//	  - t: 12s
//	    kind: drop
//	    down: 3s
//
// Faults must be sorted by t.
type FaultScript struct {
	Version int     `yaml:"version"`
	Faults  []Fault `yaml:"faults"`
}

type Fault struct {
	T     time.Duration `yaml:"t"`
	Kind  FaultKind     `yaml:"kind"`
	Bytes int           `yaml:"bytes"`
	Down  time.Duration `yaml:"down"`
}

// FaultPlan is a validated FaultScript.
type FaultPlan struct {
	faults []Fault
}

// LoadFaultScript reads and unmarshals a YAML fault script from path.
func LoadFaultScript(path string) (FaultScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FaultScript{}, err
	}
	return ParseFaultScriptYAML(b)
}

func ParseFaultScriptYAML(b []byte) (FaultScript, error) {
	var s FaultScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return FaultScript{}, err
	}
	return s, nil
}

// NewFaultPlan validates script and fills per-kind defaults.
func NewFaultPlan(script FaultScript) (*FaultPlan, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported fault script version %d", script.Version)
	}

	faults := make([]Fault, len(script.Faults))
	copy(faults, script.Faults)
	for i := range faults {
		f := &faults[i]
		if f.T < 0 {
			return nil, fmt.Errorf("faults[%d].t must be >= 0", i)
		}
		if i > 0 && f.T < faults[i-1].T {
			return nil, fmt.Errorf("faults must be sorted by t (index %d)", i)
		}
		switch f.Kind {
		case FaultNoise:
			if f.Bytes <= 0 {
				f.Bytes = 8
			}
		case FaultCorrupt:
		case FaultDrop:
			if f.Down < 0 {
				return nil, fmt.Errorf("faults[%d].down must be >= 0", i)
			}
		default:
			return nil, fmt.Errorf("faults[%d].kind %q must be one of noise, corrupt, drop", i, f.Kind)
		}
	}
	return &FaultPlan{faults: faults}, nil
}

// Between returns the faults scheduled in (from, to].
func (p *FaultPlan) Between(from, to time.Duration) []Fault {
	if p == nil || to <= from {
		return nil
	}
	lo := sort.Search(len(p.faults), func(i int) bool { return p.faults[i].T > from })
	hi := sort.Search(len(p.faults), func(i int) bool { return p.faults[i].T > to })
	if lo >= hi {
		return nil
	}
	return p.faults[lo:hi]
}
