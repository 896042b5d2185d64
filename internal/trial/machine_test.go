package trial

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/relabs-tech/reaction_trainer/internal/order"
)

type sceneCall struct {
	op   string
	side order.Side
	at   time.Time
}

type fakeScene struct {
	calls []sceneCall
	now   func() time.Time
}

func (s *fakeScene) record(op string, side order.Side) {
	var at time.Time
	if s.now != nil {
		at = s.now()
	}
	s.calls = append(s.calls, sceneCall{op: op, side: side, at: at})
}

func (s *fakeScene) ShowCenter()                { s.record("show-center", 0) }
func (s *fakeScene) HideCenter()                { s.record("hide-center", 0) }
func (s *fakeScene) ShowTarget(side order.Side) { s.record("show-target", side) }
func (s *fakeScene) HideTargets()               { s.record("hide-targets", 0) }

func (s *fakeScene) lastTargetShownAt() (time.Time, bool) {
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].op == "show-target" {
			return s.calls[i].at, true
		}
	}
	return time.Time{}, false
}

func (s *fakeScene) count(op string) int {
	n := 0
	for _, c := range s.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type fakeStim struct {
	fires []struct {
		side order.Side
		at   time.Time
	}
	now func() time.Time
}

func (f *fakeStim) Fire(side order.Side) {
	var at time.Time
	if f.now != nil {
		at = f.now()
	}
	f.fires = append(f.fires, struct {
		side order.Side
		at   time.Time
	}{side, at})
}

type fakeSink struct {
	results []Result
}

func (f *fakeSink) Record(r Result) error {
	f.results = append(f.results, r)
	return nil
}

type fakeDisplay struct {
	shown  []float64
	clears int
}

func (f *fakeDisplay) Show(ms float64) { f.shown = append(f.shown, ms) }
func (f *fakeDisplay) Clear()          { f.clears++ }

// harness drives a machine with a synthetic clock shared by the fakes.
type harness struct {
	m     *Machine
	scene *fakeScene
	stim  *fakeStim
	sink  *fakeSink
	disp  *fakeDisplay
	now   time.Time
}

func newHarness(t *testing.T, p Params, trialOrder []order.Side) *harness {
	t.Helper()
	h := &harness{
		scene: &fakeScene{},
		stim:  &fakeStim{},
		sink:  &fakeSink{},
		disp:  &fakeDisplay{},
		now:   time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	h.scene.now = func() time.Time { return h.now }
	h.stim.now = func() time.Time { return h.now }

	m, err := NewMachine(p, Deps{
		Scene:   h.scene,
		Stim:    h.stim,
		Sink:    h.sink,
		Display: h.disp,
		Order:   trialOrder,
		RNG:     rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	h.m = m
	return h
}

func (h *harness) step(d time.Duration, yaw float64) {
	h.now = h.now.Add(d)
	h.m.Update(h.now, yaw)
}

func baseParams() Params {
	return Params{
		MaxTrials:          2,
		EMSEnabled:         true,
		AngleThresholdDeg:  15,
		CenterThresholdDeg: 2,
		MinWaitSec:         0,
		MaxWaitSec:         0,
	}
}

func TestCenterAlignmentTransition(t *testing.T) {
	h := newHarness(t, baseParams(), []order.Side{order.Left, order.Left})
	h.m.Start()

	if h.m.State() != ReturnToCenter {
		t.Fatalf("state after Start = %v", h.m.State())
	}

	h.step(10*time.Millisecond, 5) // outside centerThreshold=2
	if h.m.State() != ReturnToCenter {
		t.Errorf("yaw 5 should not leave ReturnToCenter, state = %v", h.m.State())
	}

	h.step(10*time.Millisecond, 1) // inside
	if h.m.State() != WaitRandom {
		t.Errorf("yaw 1 should enter WaitRandom, state = %v", h.m.State())
	}
}

func TestDetectionThresholds(t *testing.T) {
	h := newHarness(t, baseParams(), []order.Side{order.Left, order.Left})
	h.m.Start()

	h.step(time.Millisecond, 0) // -> WaitRandom (zero wait)
	h.step(time.Millisecond, 0) // wait elapsed -> Measuring, Left trial
	if h.m.State() != Measuring {
		t.Fatalf("state = %v, want Measuring", h.m.State())
	}
	if h.m.CurrentSide() != order.Left {
		t.Fatalf("side = %v, want Left", h.m.CurrentSide())
	}

	h.step(50*time.Millisecond, -14) // below threshold, no detection
	if len(h.sink.results) != 0 {
		t.Fatal("yaw -14 must not register with angleThreshold 15")
	}
	h.step(50*time.Millisecond, 16) // wrong direction for a Left trial
	if len(h.sink.results) != 0 {
		t.Fatal("rightward yaw must not register on a Left trial")
	}

	h.step(49*time.Millisecond, -16)
	if len(h.sink.results) != 1 {
		t.Fatal("yaw -16 must register on a Left trial")
	}

	res := h.sink.results[0]
	if res.Index != 1 || res.Side != order.Left {
		t.Errorf("result = %+v", res)
	}
	if math.Abs(res.ReactionMS-149) > 1e-9 {
		t.Errorf("reaction time = %v ms, want 149", res.ReactionMS)
	}
	if len(h.disp.shown) != 1 || h.disp.shown[0] != res.ReactionMS {
		t.Errorf("display shown = %v", h.disp.shown)
	}
}

func TestNegativeOffsetFiresBeforeReveal(t *testing.T) {
	p := baseParams()
	p.StimOffsetLeftSec = -0.1
	h := newHarness(t, p, []order.Side{order.Left, order.Left})
	h.m.Start()

	h.step(time.Millisecond, 0) // -> WaitRandom
	h.step(time.Millisecond, 0) // wait elapsed: fire now, reveal later
	if len(h.stim.fires) != 1 {
		t.Fatalf("fires = %d, want 1 (stimulus precedes vision)", len(h.stim.fires))
	}
	if _, shown := h.scene.lastTargetShownAt(); shown {
		t.Fatal("target revealed in the same frame as a -0.1s-offset fire")
	}
	if h.m.State() != WaitRandom {
		t.Fatalf("state = %v, want WaitRandom while reveal is pending", h.m.State())
	}

	h.step(50*time.Millisecond, 0) // 51ms after fire, still pending
	if _, shown := h.scene.lastTargetShownAt(); shown {
		t.Fatal("target revealed before the offset elapsed")
	}

	h.step(50*time.Millisecond, 0) // 101ms after fire
	shownAt, shown := h.scene.lastTargetShownAt()
	if !shown {
		t.Fatal("target not revealed after the offset elapsed")
	}
	if gap := shownAt.Sub(h.stim.fires[0].at); gap < 100*time.Millisecond {
		t.Errorf("fire-to-reveal gap = %v, want >= 100ms", gap)
	}
	if h.m.State() != Measuring {
		t.Errorf("state = %v, want Measuring", h.m.State())
	}
}

func TestPositiveOffsetRevealsBeforeFire(t *testing.T) {
	p := baseParams()
	p.StimOffsetLeftSec = 0.1
	h := newHarness(t, p, []order.Side{order.Left, order.Left})
	h.m.Start()

	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0) // reveal now, fire later
	shownAt, shown := h.scene.lastTargetShownAt()
	if !shown {
		t.Fatal("target not revealed at wait end")
	}
	if len(h.stim.fires) != 0 {
		t.Fatal("fired in the same frame as a +0.1s-offset reveal")
	}

	h.step(50*time.Millisecond, 0)
	if len(h.stim.fires) != 0 {
		t.Fatal("fired before the offset elapsed")
	}

	h.step(50*time.Millisecond, 0)
	if len(h.stim.fires) != 1 {
		t.Fatal("did not fire after the offset elapsed")
	}
	if gap := h.stim.fires[0].at.Sub(shownAt); gap < 100*time.Millisecond {
		t.Errorf("reveal-to-fire gap = %v, want >= 100ms", gap)
	}
}

func TestReactionBeforePendingFireCancelsIt(t *testing.T) {
	p := baseParams()
	p.StimOffsetLeftSec = 0.5
	h := newHarness(t, p, []order.Side{order.Left, order.Right})
	h.m.Start()

	// trial 1: Left, fire scheduled 500ms after reveal.
	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	h.step(100*time.Millisecond, -20) // react before the fire is due
	if len(h.stim.fires) != 0 {
		t.Fatalf("fires after early reaction = %d, want 0", len(h.stim.fires))
	}
	if h.m.State() != ReturnToCenter {
		t.Fatalf("state = %v, want ReturnToCenter", h.m.State())
	}

	// trial 2: Right, offset 0, well past trial 1's stale fire deadline.
	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	if len(h.stim.fires) != 1 {
		t.Fatalf("fires at trial 2 reveal = %d, want exactly 1", len(h.stim.fires))
	}
	if h.stim.fires[0].side != order.Right {
		t.Errorf("trial 2 fired %v, want Right", h.stim.fires[0].side)
	}

	h.step(500*time.Millisecond, 0) // measuring; trial 1's deadline must stay dead
	if len(h.stim.fires) != 1 {
		t.Errorf("fires mid-trial 2 = %d, want 1 (no carry-over)", len(h.stim.fires))
	}
}

func TestZeroOffsetFiresAndRevealsTogether(t *testing.T) {
	h := newHarness(t, baseParams(), []order.Side{order.Left, order.Left})
	h.m.Start()

	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	shownAt, shown := h.scene.lastTargetShownAt()
	if !shown || len(h.stim.fires) != 1 {
		t.Fatalf("want reveal and fire in the same frame, shown=%v fires=%d", shown, len(h.stim.fires))
	}
	if !shownAt.Equal(h.stim.fires[0].at) {
		t.Errorf("reveal at %v, fire at %v, want the same instant", shownAt, h.stim.fires[0].at)
	}
}

func TestRunCompletion(t *testing.T) {
	h := newHarness(t, baseParams(), []order.Side{order.Left, order.Right})
	h.m.Start()

	// trial 1: Left
	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	h.step(100*time.Millisecond, -20)
	if h.m.State() != ReturnToCenter {
		t.Fatalf("after trial 1: state = %v, want ReturnToCenter", h.m.State())
	}
	if got := h.scene.count("show-center"); got != 2 {
		t.Errorf("center target shown %d times, want 2", got)
	}

	// trial 2: Right
	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	h.step(100*time.Millisecond, 20)
	if !h.m.Done() {
		t.Fatalf("after trial 2: state = %v, want Finished", h.m.State())
	}
	if h.m.Completed() != 2 {
		t.Errorf("completed = %d, want 2", h.m.Completed())
	}
	if h.sink.results[1].Index != 2 || h.sink.results[1].Side != order.Right {
		t.Errorf("trial 2 result = %+v", h.sink.results[1])
	}
	if got := h.scene.count("hide-targets"); got != 2 {
		t.Errorf("targets hidden %d times, want 2", got)
	}
}

func TestZeroTrialsFinishesImmediately(t *testing.T) {
	p := baseParams()
	p.MaxTrials = 0
	h := newHarness(t, p, nil)
	h.m.Start()
	if !h.m.Done() {
		t.Errorf("state = %v, want Finished for MaxTrials=0", h.m.State())
	}
	if got := h.scene.count("show-center"); got != 0 {
		t.Errorf("center target shown %d times on an empty run", got)
	}
}

func TestEMSDisabledSuppressesFires(t *testing.T) {
	p := baseParams()
	p.EMSEnabled = false
	p.MaxTrials = 1
	h := newHarness(t, p, []order.Side{order.Left})
	h.m.Start()

	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	h.step(100*time.Millisecond, -20)
	if len(h.stim.fires) != 0 {
		t.Errorf("fired %d times with EMS disabled", len(h.stim.fires))
	}
	if len(h.sink.results) != 1 {
		t.Errorf("trial should still complete without EMS, results = %d", len(h.sink.results))
	}
}

func TestNoReactionPollingDuringWait(t *testing.T) {
	p := baseParams()
	p.MinWaitSec = 1
	p.MaxWaitSec = 1
	h := newHarness(t, p, []order.Side{order.Left, order.Left})
	h.m.Start()

	h.step(time.Millisecond, 0) // -> WaitRandom, 1s deadline
	h.step(500*time.Millisecond, -90)
	if h.m.State() != WaitRandom || len(h.sink.results) != 0 {
		t.Errorf("a yaw excursion during WaitRandom must not register, state=%v results=%d",
			h.m.State(), len(h.sink.results))
	}
}

func TestNewMachineRequiresScene(t *testing.T) {
	_, err := NewMachine(baseParams(), Deps{Stim: &fakeStim{}, Sink: &fakeSink{}})
	if err == nil {
		t.Error("NewMachine must fail without a scene")
	}
}

func TestNilDisplayIsNoop(t *testing.T) {
	h := &harness{
		scene: &fakeScene{},
		stim:  &fakeStim{},
		sink:  &fakeSink{},
		now:   time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	p := baseParams()
	p.MaxTrials = 1
	m, err := NewMachine(p, Deps{
		Scene: h.scene,
		Stim:  h.stim,
		Sink:  h.sink,
		Order: []order.Side{order.Left},
		RNG:   rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	h.m = m
	h.m.Start()
	h.step(time.Millisecond, 0)
	h.step(time.Millisecond, 0)
	h.step(100*time.Millisecond, -20) // must not panic on the nil display
	if !h.m.Done() {
		t.Errorf("state = %v, want Finished", h.m.State())
	}
}
