package orientation

import (
	"math"
	"testing"
)

func TestYawDeviation(t *testing.T) {
	tests := []struct {
		yaw  float64
		want float64
	}{
		{0, 0},
		{10, 10},
		{-10, -10},
		{350, -10},
		{-350, 10},
		{180, 180},
		{-180, 180},
		{190, -170},
		{720, 0},
		{725.5, 5.5},
	}

	for _, tc := range tests {
		got := YawDeviation(tc.yaw)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("YawDeviation(%v) = %v, want %v", tc.yaw, got, tc.want)
		}
	}
}

func TestMockSourceStaysInRange(t *testing.T) {
	src := NewMockSource()
	for i := 0; i < 10; i++ {
		pose, err := src.Next()
		if err != nil {
			t.Fatalf("mock source error: %v", err)
		}
		if math.Abs(pose.Yaw) > 35 {
			t.Errorf("mock yaw %v outside sweep range", pose.Yaw)
		}
	}
}
