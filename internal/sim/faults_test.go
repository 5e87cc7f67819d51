package sim

import (
	"testing"
	"time"
)

func TestFaultPlan_ParseAndBetween(t *testing.T) {
	script, err := ParseFaultScriptYAML([]byte(`
version: 1
faults:
  - t: 0s
    kind: noise
  - t: 2s
    kind: corrupt
  - t: 5s
    kind: drop
    down: 3s
`))
	if err != nil {
		t.Fatalf("ParseFaultScriptYAML: %v", err)
	}
	plan, err := NewFaultPlan(script)
	if err != nil {
		t.Fatalf("NewFaultPlan: %v", err)
	}

	got := plan.Between(-1, 0)
	if len(got) != 1 || got[0].Kind != FaultNoise || got[0].Bytes != 8 {
		t.Fatalf("first window=%+v", got)
	}
	if got := plan.Between(0, 1*time.Second); len(got) != 0 {
		t.Fatalf("empty window=%+v", got)
	}
	got = plan.Between(1*time.Second, 10*time.Second)
	if len(got) != 2 || got[0].Kind != FaultCorrupt || got[1].Kind != FaultDrop || got[1].Down != 3*time.Second {
		t.Fatalf("late window=%+v", got)
	}
	if got := plan.Between(5*time.Second, 5*time.Second); got != nil {
		t.Fatalf("zero-width window=%+v", got)
	}
}

func TestFaultPlan_Validation(t *testing.T) {
	cases := []struct {
		name   string
		script FaultScript
		want   string
	}{
		{
			name:   "Version",
			script: FaultScript{Version: 2},
			want:   "unsupported fault script version 2",
		},
		{
			name:   "Unsorted",
			script: FaultScript{Faults: []Fault{{T: 2 * time.Second, Kind: FaultNoise}, {T: time.Second, Kind: FaultNoise}}},
			want:   "faults must be sorted by t (index 1)",
		},
		{
			name:   "Kind",
			script: FaultScript{Faults: []Fault{{Kind: "melt"}}},
			want:   `faults[0].kind "melt" must be one of noise, corrupt, drop`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFaultPlan(tc.script)
			if err == nil || err.Error() != tc.want {
				t.Fatalf("err=%v want %q", err, tc.want)
			}
		})
	}
}

func TestFaultPlan_NilIsEmpty(t *testing.T) {
	var p *FaultPlan
	if got := p.Between(0, time.Hour); got != nil {
		t.Fatalf("got %+v", got)
	}
}
