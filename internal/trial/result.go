package trial

import (
	"time"

	"github.com/relabs-tech/reaction_trainer/internal/order"
)

// Result is one completed trial. Created exactly once per trial,
// never mutated afterwards.
type Result struct {
	Index      int        `json:"trial"` // 1-based, monotonic
	Side       order.Side `json:"-"`
	SideLabel  string     `json:"direction"`
	ReactionMS float64    `json:"reaction_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}
