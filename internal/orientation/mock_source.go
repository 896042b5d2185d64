// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock orientation source that sweeps the yaw
// smoothly through the center and past both reaction thresholds, so a
// full run can be exercised with no tracker attached.
func NewMockSource() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Next() (Pose, error) {
	elapsed := time.Since(m.start).Seconds()

	return Pose{
		Roll:  0,
		Pitch: 2 * math.Sin(elapsed*0.7),
		Yaw:   35 * math.Sin(elapsed*1.1),
	}, nil
}
