package stimulus

import "log"

// ConfigChangeDetector re-synchronizes the device configuration when
// any of the four stimulation parameters differs from what was last
// transmitted. All four are always resent together so the device sees
// a combined configuration, never a partial edit. No debouncing.
type ConfigChangeDetector struct {
	queue *Queue
	last  Params
	sent  bool
}

func NewConfigChangeDetector(q *Queue) *ConfigChangeDetector {
	return &ConfigChangeDetector{queue: q}
}

// Check is called once per frame with the currently desired
// parameters. The first call always transmits.
func (d *ConfigChangeDetector) Check(p Params) {
	p = p.Clamped()
	if d.sent && p == d.last {
		return
	}
	for _, cmd := range ConfigCommands(p) {
		d.queue.Enqueue(cmd)
	}
	if d.sent {
		log.Printf("stimulus: configuration changed, resent W%d C%d B%d I%d",
			p.PulseWidthUS, p.PulseCount, p.BurstCount, p.PulseIntervalUS)
	}
	d.last = p
	d.sent = true
}
