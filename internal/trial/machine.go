package trial

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/relabs-tech/reaction_trainer/internal/order"
	"github.com/relabs-tech/reaction_trainer/internal/orientation"
)

// State is the experiment run state.
type State int

const (
	Idle State = iota
	ReturnToCenter
	WaitRandom
	Measuring
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ReturnToCenter:
		return "ReturnToCenter"
	case WaitRandom:
		return "WaitRandom"
	case Measuring:
		return "Measuring"
	case Finished:
		return "Finished"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Scene is the visual layer the machine drives: three target objects
// owned by the external renderer. The machine only says what to show.
type Scene interface {
	ShowCenter()
	HideCenter()
	ShowTarget(side order.Side)
	HideTargets()
}

// ReactionDisplay shows the participant their last reaction time.
// Optional collaborator: a nil display makes every update a no-op.
type ReactionDisplay interface {
	Show(ms float64)
	Clear()
}

// Stimulator delivers fire commands toward the stimulation device.
type Stimulator interface {
	Fire(side order.Side)
}

// RecordSink receives completed trial rows.
type RecordSink interface {
	Record(Result) error
}

// Params are the thresholds and timings the machine consults.
type Params struct {
	MaxTrials          int
	EMSEnabled         bool
	AngleThresholdDeg  float64
	CenterThresholdDeg float64
	MinWaitSec         float64
	MaxWaitSec         float64
	StimOffsetLeftSec  float64
	StimOffsetRightSec float64
}

// Deps are the machine's collaborators. Scene, Stimulator and Sink
// are required; Display is optional; a nil RNG gets a time-seeded one.
type Deps struct {
	Scene   Scene
	Stim    Stimulator
	Sink    RecordSink
	Display ReactionDisplay
	Order   []order.Side
	RNG     *rand.Rand
}

// Machine is the trial state machine. It is single-threaded by
// construction: one goroutine calls Update once per frame, and no
// other goroutine touches it. All waiting is deadline-based so an
// Update never blocks the frame loop.
type Machine struct {
	params Params
	scene  Scene
	stim   Stimulator
	sink   RecordSink
	disp   ReactionDisplay
	rng    *rand.Rand

	state     State
	order     []order.Side
	next      int
	side      order.Side
	timer     ReactionTimer
	completed int

	waitUntil time.Time
	revealAt  time.Time // pending target reveal (stimulus-first offsets)
	fireAt    time.Time // pending stimulation (vision-first offsets)

	revealPending bool
	firePending   bool
}

func NewMachine(p Params, d Deps) (*Machine, error) {
	if d.Scene == nil {
		return nil, fmt.Errorf("trial: scene collaborator is required")
	}
	if d.Stim == nil {
		return nil, fmt.Errorf("trial: stimulator collaborator is required")
	}
	if d.Sink == nil {
		return nil, fmt.Errorf("trial: record sink is required")
	}
	if p.MaxWaitSec < p.MinWaitSec {
		return nil, fmt.Errorf("trial: max wait %.2fs below min wait %.2fs", p.MaxWaitSec, p.MinWaitSec)
	}
	rng := d.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Machine{
		params: p,
		scene:  d.Scene,
		stim:   d.Stim,
		sink:   d.Sink,
		disp:   d.Display,
		rng:    rng,
		order:  d.Order,
		state:  Idle,
	}, nil
}

// Start arms the machine. A run with no trials to measure completes
// immediately.
func (m *Machine) Start() {
	if m.params.MaxTrials <= 0 {
		log.Println("trial: no trials configured, finishing immediately")
		m.state = Finished
		return
	}
	m.state = ReturnToCenter
	m.scene.ShowCenter()
}

// Update advances the machine by one frame. yawDeg is the current
// body yaw in degrees, 0 = facing the center target.
func (m *Machine) Update(now time.Time, yawDeg float64) {
	switch m.state {
	case ReturnToCenter:
		dev := orientation.YawDeviation(yawDeg)
		if math.Abs(dev) < m.params.CenterThresholdDeg {
			// State changes before the wait is armed so one crossing
			// cannot trigger twice.
			m.state = WaitRandom
			m.waitUntil = now.Add(m.randomWait())
		}

	case WaitRandom:
		// No reaction polling here; the frame loop keeps servicing
		// everything else while the machine waits on its deadlines.
		if m.revealPending {
			if !now.Before(m.revealAt) {
				m.revealTarget(now)
			}
			return
		}
		if !now.Before(m.waitUntil) {
			m.beginTrial(now)
		}

	case Measuring:
		if m.firePending && !now.Before(m.fireAt) {
			m.firePending = false
			m.fire()
		}
		dev := orientation.YawDeviation(yawDeg)
		hit := (m.side == order.Left && dev < -m.params.AngleThresholdDeg) ||
			(m.side == order.Right && dev > m.params.AngleThresholdDeg)
		if hit {
			m.finishTrial(now)
		}
	}
}

// State reports the current run state.
func (m *Machine) State() State { return m.state }

// Completed reports how many trials have been measured.
func (m *Machine) Completed() int { return m.completed }

// CurrentSide reports the active trial's side. Meaningful only once
// the first trial has begun.
func (m *Machine) CurrentSide() order.Side { return m.side }

// Done reports whether the run has finished.
func (m *Machine) Done() bool { return m.state == Finished }

func (m *Machine) randomWait() time.Duration {
	span := m.params.MaxWaitSec - m.params.MinWaitSec
	sec := m.params.MinWaitSec + m.rng.Float64()*span
	return time.Duration(sec * float64(time.Second))
}

func (m *Machine) nextSide() order.Side {
	if m.next < len(m.order) {
		s := m.order[m.next]
		m.next++
		return s
	}
	return order.Random(m.rng)
}

func (m *Machine) offsetFor(side order.Side) float64 {
	if side == order.Left {
		return m.params.StimOffsetLeftSec
	}
	return m.params.StimOffsetRightSec
}

// beginTrial runs when the random wait has elapsed: pick the side,
// hide the center target, and sequence stimulation against target
// onset per the configured offset.
func (m *Machine) beginTrial(now time.Time) {
	m.side = m.nextSide()
	m.scene.HideCenter()

	offset := m.offsetFor(m.side)
	switch {
	case offset < 0:
		// Stimulus precedes vision: fire now, reveal |offset| later.
		m.fire()
		m.revealAt = now.Add(time.Duration(-offset * float64(time.Second)))
		m.revealPending = true
	case offset == 0:
		m.revealTarget(now)
		m.fire()
	default:
		// Vision precedes stimulus: reveal now, fire offset later.
		m.revealTarget(now)
		m.fireAt = now.Add(time.Duration(offset * float64(time.Second)))
		m.firePending = true
	}
}

// revealTarget shows the side target and opens the measurement window
// in the same frame.
func (m *Machine) revealTarget(now time.Time) {
	m.revealPending = false
	m.scene.ShowTarget(m.side)
	if m.disp != nil {
		m.disp.Clear()
	}
	m.timer.Restart(now)
	m.state = Measuring
}

func (m *Machine) fire() {
	if !m.params.EMSEnabled {
		return
	}
	m.stim.Fire(m.side)
}

func (m *Machine) finishTrial(now time.Time) {
	ms := m.timer.ElapsedMillis(now)
	m.completed++

	// A reaction can land before a +offset fire is due; the undelivered
	// fire dies with its trial.
	m.firePending = false
	m.revealPending = false

	res := Result{
		Index:      m.completed,
		Side:       m.side,
		SideLabel:  m.side.String(),
		ReactionMS: ms,
		Timestamp:  now,
	}
	if m.disp != nil {
		m.disp.Show(ms)
	}
	if err := m.sink.Record(res); err != nil {
		log.Printf("trial: record trial %d: %v", res.Index, err)
	}
	m.scene.HideTargets()

	if m.completed >= m.params.MaxTrials {
		m.state = Finished
		return
	}
	m.state = ReturnToCenter
	m.scene.ShowCenter()
}
