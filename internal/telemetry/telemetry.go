// Package telemetry defines the values that travel from the connectors to the
// display: decoded engine records, time-to-destination and status
// notifications.
//
// All types are plain values. Once a connector publishes one it no longer
// touches it.
package telemetry

import (
	"fmt"
	"time"
)

type Kind int

const (
	KindPrimary Kind = iota + 1
	KindSecondary
	KindAuxiliary
	KindEGT
	KindCHT
	KindTimeToDestination
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	case KindAuxiliary:
		return "auxiliary"
	case KindEGT:
		return "egt"
	case KindCHT:
		return "cht"
	case KindTimeToDestination:
		return "time_to_destination"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Payload is anything that can be carried by an Event.
type Payload interface {
	Kind() Kind
}

// Event is the unit delivered on the event channel.
type Event struct {
	// Source is the link name of the producing connector ("engine", "nav").
	Source  string
	Time    time.Time
	Payload Payload
}

// IsRecord reports whether the event carries sensor data rather than a status.
func (e Event) IsRecord() bool {
	return e.Payload != nil && e.Payload.Kind() != KindStatus
}

// Primary is RDAC message 1: engine speed and fuel flow.
type Primary struct {
	RPM         float64 `json:"rpm"`
	FuelFlowLPH float64 `json:"fuel_flow_lph"`
}

func (Primary) Kind() Kind { return KindPrimary }

// Secondary is RDAC message 2: temperatures, pressures and electrical.
type Secondary struct {
	OilTempC            float64 `json:"oil_temp_c"`
	OilPressureKPa      float64 `json:"oil_pressure_kpa"`
	FuelPressureKPa     float64 `json:"fuel_pressure_kpa"`
	CoolantTempC        float64 `json:"coolant_temp_c"`
	Volts               float64 `json:"volts"`
	Amps                float64 `json:"amps"`
	ManifoldPressureKPa float64 `json:"manifold_pressure_kpa"`
}

func (Secondary) Kind() Kind { return KindSecondary }

// Auxiliary is RDAC message 3, a single scalar (fuel level in liters).
type Auxiliary struct {
	FuelLevelL float64 `json:"fuel_level_l"`
}

func (Auxiliary) Kind() Kind { return KindAuxiliary }

// EGTBank holds the four exhaust gas temperatures in degC.
type EGTBank struct {
	TempC [4]uint16 `json:"temp_c"`
}

func (EGTBank) Kind() Kind { return KindEGT }

// CHTBank holds the four cylinder head temperatures in degC.
type CHTBank struct {
	TempC [4]uint16 `json:"temp_c"`
}

func (CHTBank) Kind() Kind { return KindCHT }

// NavRecord is the decoded time to the active destination waypoint.
//
// TimeToDestination is never negative. Valid is false when the receiver
// reports a void fix or no closing speed; the duration is zero then.
type NavRecord struct {
	TimeToDestination time.Duration `json:"time_to_destination"`
	Valid             bool          `json:"valid"`
}

func (NavRecord) Kind() Kind { return KindTimeToDestination }

// Minutes returns the time to destination in fractional minutes, the unit the
// display uses.
func (n NavRecord) Minutes() float64 {
	return n.TimeToDestination.Minutes()
}
