package firmware

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parameter ranges enforced by the device. The host clamps before
// transmitting too, but the device is the authority on what it stores.
const (
	minPulseWidthUS    = 20
	maxPulseWidthUS    = 1000
	minPulseCount      = 1
	maxPulseCount      = 100
	minBurstCount      = 1
	maxBurstCount      = 20
	minPulseIntervalUS = 0
	maxPulseIntervalUS = 100000
)

// Cooldown is the minimum time between two fire commands. It is
// shared across both sides: firing Left blocks an immediate Right.
const Cooldown = 500 * time.Millisecond

// Level is an output level during one step of a pulse train.
type Level int

const (
	LevelRest Level = iota
	LevelPositive
	LevelNegative
)

func (l Level) String() string {
	switch l {
	case LevelPositive:
		return "+"
	case LevelNegative:
		return "-"
	}
	return "."
}

// Step is one timed segment of a pulse train. A train always ends on
// LevelRest: outputs are forced low for safety.
type Step struct {
	Level    Level
	Duration time.Duration
}

// Side labels match the wire protocol's fire commands.
type Side byte

const (
	SideLeft  Side = 'L'
	SideRight Side = 'R'
)

// Device models the EMS stimulation firmware: it interprets one
// command line at a time, clamps configuration values to hardware
// ranges, enforces the re-trigger cooldown, and renders fire commands
// as biphasic pulse-train schedules.
type Device struct {
	PulseWidthUS    int
	PulseCount      int
	BurstCount      int
	PulseIntervalUS int

	lastFire time.Time
	hasFired bool
}

// New returns a device with the firmware's power-on defaults.
func New() *Device {
	return &Device{
		PulseWidthUS:    200,
		PulseCount:      20,
		BurstCount:      1,
		PulseIntervalUS: 10000,
	}
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

// Exec interprets one command line at time now. Configuration
// commands return (0, nil, nil). Fire commands return the side and the
// pulse-train schedule to execute, or a nil train when the command is
// ignored because it arrived inside the cooldown window.
func (d *Device) Exec(line string, now time.Time) (Side, []Step, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil, nil
	}

	cmd, arg := line[0], line[1:]
	switch cmd {
	case 'W', 'C', 'B', 'I':
		n, err := strconv.Atoi(arg)
		if err != nil {
			return 0, nil, fmt.Errorf("firmware: bad %c argument %q: %w", cmd, arg, err)
		}
		switch cmd {
		case 'W':
			d.PulseWidthUS = clamp(n, minPulseWidthUS, maxPulseWidthUS)
		case 'C':
			d.PulseCount = clamp(n, minPulseCount, maxPulseCount)
		case 'B':
			d.BurstCount = clamp(n, minBurstCount, maxBurstCount)
		case 'I':
			d.PulseIntervalUS = clamp(n, minPulseIntervalUS, maxPulseIntervalUS)
		}
		return 0, nil, nil

	case 'L', 'R':
		if arg != "" {
			return 0, nil, fmt.Errorf("firmware: unexpected argument %q on fire command %c", arg, cmd)
		}
		if d.hasFired && now.Sub(d.lastFire) < Cooldown {
			return Side(cmd), nil, nil
		}
		d.lastFire = now
		d.hasFired = true
		return Side(cmd), d.Train(), nil

	default:
		return 0, nil, fmt.Errorf("firmware: unknown command %q", line)
	}
}

// Train renders the pulse-train schedule for the current
// configuration: PulseCount repetitions of BurstCount biphasic cycles,
// each cycle (+phase, rest, -phase, rest) of PulseWidthUS each,
// repetitions separated by PulseIntervalUS except after the last.
func (d *Device) Train() []Step {
	w := time.Duration(d.PulseWidthUS) * time.Microsecond
	gap := time.Duration(d.PulseIntervalUS) * time.Microsecond

	var steps []Step
	for rep := 0; rep < d.PulseCount; rep++ {
		for b := 0; b < d.BurstCount; b++ {
			steps = append(steps,
				Step{LevelPositive, w},
				Step{LevelRest, w},
				Step{LevelNegative, w},
				Step{LevelRest, w},
			)
		}
		if rep < d.PulseCount-1 {
			steps = append(steps, Step{LevelRest, gap})
		}
	}
	return steps
}

// TrainDuration sums a schedule's wall time.
func TrainDuration(steps []Step) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.Duration
	}
	return total
}
