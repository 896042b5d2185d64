package orientation

import (
	"math"
)

// Pose is the canonical representation of the participant's head/body
// orientation. The trial logic only consumes Yaw; roll and pitch are
// carried for monitoring.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide poses over time: the head
// tracker of the rendering rig over MQTT, a mock source for bench
// runs, maybe a replay source from file later.
type Source interface {
	Next() (Pose, error)
}

// YawDeviation returns the shortest signed angular difference between
// yawDeg and 0 degrees (facing the center target), normalized to
// (-180, 180]. Negative means the participant has turned left.
func YawDeviation(yawDeg float64) float64 {
	d := math.Mod(yawDeg, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
