package stimulus

import (
	"fmt"

	"github.com/relabs-tech/reaction_trainer/internal/order"
)

// Hardware-meaningful parameter ranges. The firmware clamps on its
// side too; clamping before transmission keeps the transmitted
// configuration identical to what the device will actually store.
const (
	MinPulseWidthUS    = 20
	MaxPulseWidthUS    = 1000
	MinPulseCount      = 1
	MaxPulseCount      = 100
	MinBurstCount      = 1
	MaxBurstCount      = 20
	MinPulseIntervalUS = 0
	MaxPulseIntervalUS = 100000
)

// Params are the four live-tunable stimulation parameters.
type Params struct {
	PulseWidthUS    int `json:"pulse_width_us"`
	PulseCount      int `json:"pulse_count"`
	BurstCount      int `json:"burst_count"`
	PulseIntervalUS int `json:"pulse_interval_us"`
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamped returns p with every field forced into its hardware range.
func (p Params) Clamped() Params {
	return Params{
		PulseWidthUS:    clamp(p.PulseWidthUS, MinPulseWidthUS, MaxPulseWidthUS),
		PulseCount:      clamp(p.PulseCount, MinPulseCount, MaxPulseCount),
		BurstCount:      clamp(p.BurstCount, MinBurstCount, MaxBurstCount),
		PulseIntervalUS: clamp(p.PulseIntervalUS, MinPulseIntervalUS, MaxPulseIntervalUS),
	}
}

// ConfigCommands renders p as the four W/C/B/I device commands, in the
// order the firmware documents them, after clamping.
func ConfigCommands(p Params) []string {
	p = p.Clamped()
	return []string{
		fmt.Sprintf("W%d", p.PulseWidthUS),
		fmt.Sprintf("C%d", p.PulseCount),
		fmt.Sprintf("B%d", p.BurstCount),
		fmt.Sprintf("I%d", p.PulseIntervalUS),
	}
}

// FireCommand returns the single-letter fire command for side.
func FireCommand(side order.Side) string {
	if side == order.Left {
		return "L"
	}
	return "R"
}
