package game

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/pthm-cable/sweepers/components"
)

// stubBrain returns a fixed output and records every input it sees.
type stubBrain struct {
	out     []float64
	n       int
	weights []float64
	inputs  [][]float64
}

func (b *stubBrain) NumWeights() int { return b.n }

func (b *stubBrain) PutWeights(w []float64) error {
	if len(w) != b.n {
		return errors.New("stub: wrong weight count")
	}
	b.weights = append(b.weights[:0], w...)
	return nil
}

func (b *stubBrain) Update(in []float64) []float64 {
	b.inputs = append(b.inputs, append([]float64(nil), in...))
	return b.out
}

// stubOptimizer breeds genomes whose weights all equal the epoch number and
// reports statistics of the population it last received.
type stubOptimizer struct {
	pop       []components.Genome
	avg, best float64
	epochs    int
	received  []components.Genome
}

func newStubOptimizer(size, weights int) *stubOptimizer {
	pop := make([]components.Genome, size)
	for i := range pop {
		pop[i] = components.Genome{Weights: make([]float64, weights)}
	}
	return &stubOptimizer{pop: pop}
}

func (o *stubOptimizer) Population() []components.Genome {
	out := make([]components.Genome, len(o.pop))
	for i, g := range o.pop {
		out[i] = g.Clone()
	}
	return out
}

func (o *stubOptimizer) Epoch(pop []components.Genome) ([]components.Genome, error) {
	o.received = make([]components.Genome, len(pop))
	var total float64
	o.best = 0
	for i, g := range pop {
		o.received[i] = g.Clone()
		total += g.Fitness
		o.best = max(o.best, g.Fitness)
	}
	o.avg = total / float64(len(pop))
	o.epochs++

	for i := range o.pop {
		for j := range o.pop[i].Weights {
			o.pop[i].Weights[j] = float64(o.epochs)
		}
	}
	return o.Population(), nil
}

func (o *stubOptimizer) AverageFitness() float64 { return o.avg }
func (o *stubOptimizer) BestFitness() float64    { return o.best }

func newTestState(t *testing.T, w, h int) *Gamestate {
	t.Helper()
	gs, err := NewGamestate(w, h, DefaultPhysics(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewGamestate: %v", err)
	}
	return gs
}

func addSweeper(t *testing.T, gs *Gamestate, x, y, rot float64, out ...float64) *stubBrain {
	t.Helper()
	brain := &stubBrain{out: out, n: 2}
	if _, err := gs.AddSweeper(brain, components.Vec(x, y), rot); err != nil {
		t.Fatalf("AddSweeper: %v", err)
	}
	return brain
}

func turn(t *testing.T, gs *Gamestate) {
	t.Helper()
	if err := gs.DoTurn(); err != nil {
		t.Fatalf("DoTurn: %v", err)
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewGamestateRejectsBadDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 10}, {10, 0}, {-5, 5}} {
		_, err := NewGamestate(dims[0], dims[1], DefaultPhysics(), rand.New(rand.NewSource(1)))
		if !errors.Is(err, ErrBadDimensions) {
			t.Errorf("%v: err = %v, want ErrBadDimensions", dims, err)
		}
	}
}

func TestAddSweeperKeepsPopulationAligned(t *testing.T) {
	gs := newTestState(t, 100, 100)
	addSweeper(t, gs, 1, 1, 0, 0, 0, 0)
	addSweeper(t, gs, 2, 2, 0, 0, 0, 0)

	if len(gs.Population) != 2 || len(gs.Sweepers) != 2 {
		t.Fatalf("population %d, sweepers %d", len(gs.Population), len(gs.Sweepers))
	}
	if _, err := gs.AddSweeper(nil, components.Vec(0, 0), 0); err == nil {
		t.Error("expected error for nil brain")
	}
}

func TestSweeperCollectsMine(t *testing.T) {
	gs := newTestState(t, 400, 300)
	brain := addSweeper(t, gs, 50, 50, 0, 0.5, 0.5, 0)
	gs.AddMine(components.Vec(55, 50))

	turn(t, gs)

	s := gs.Sweepers[0]
	if !near(s.Position.X, 51) || !near(s.Position.Y, 50) {
		t.Errorf("position = %+v, want (51, 50)", s.Position)
	}
	if s.Rotation != 0 {
		t.Errorf("rotation = %v, want 0", s.Rotation)
	}
	if s.MinesSwept != 1 || gs.Population[0].Fitness != 1 {
		t.Errorf("mines swept %d, fitness %v, want 1/1", s.MinesSwept, gs.Population[0].Fitness)
	}

	m := gs.Mines[0].Position
	if m.X < 0 || m.X >= 400 || m.Y < 0 || m.Y >= 300 || m.X != math.Trunc(m.X) || m.Y != math.Trunc(m.Y) {
		t.Errorf("relocated mine %+v not an integer position inside the arena", m)
	}

	// Sensor input is [query - mine, look direction]
	want := []float64{-5, 0, 1, 0}
	got := brain.inputs[0]
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("inputs = %v, want %v", got, want)
		}
	}
	if gs.Counters().MinesSwept != 1 {
		t.Errorf("counter = %d, want 1", gs.Counters().MinesSwept)
	}
}

func TestOneMinePerSweeperPerTick(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 100, 100, 0, 0, 0, 0)
	gs.AddMine(components.Vec(102, 100))
	gs.AddMine(components.Vec(100, 103))

	turn(t, gs)

	if gs.Sweepers[0].MinesSwept != 1 {
		t.Errorf("MinesSwept = %d, want 1", gs.Sweepers[0].MinesSwept)
	}
	if gs.Mines[1].Position != components.Vec(100, 103) {
		t.Error("second mine moved; only the first match is collected")
	}
}

func TestDeadSweeperCollectsMines(t *testing.T) {
	gs := newTestState(t, 400, 400)
	brain := addSweeper(t, gs, 100, 100, 0, 0.5, 0.5, 1)
	gs.Sweepers[0].Dead = true
	gs.AddMine(components.Vec(101, 100))

	turn(t, gs)

	if len(brain.inputs) != 0 {
		t.Error("dead sweeper's brain was evaluated")
	}
	if gs.Sweepers[0].MinesSwept != 1 {
		t.Errorf("MinesSwept = %d, want 1", gs.Sweepers[0].MinesSwept)
	}
}

func TestRotationClamped(t *testing.T) {
	tests := []struct {
		name string
		out  []float64
		want float64
	}{
		{"left", []float64{1, 0, 0}, 0.3},
		{"right", []float64{0, 1, 0}, -0.3},
		{"gentle", []float64{0.6, 0.5, 0}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := newTestState(t, 400, 400)
			addSweeper(t, gs, 200, 200, 0, tt.out...)
			turn(t, gs)
			if !near(gs.Sweepers[0].Rotation, tt.want) {
				t.Errorf("rotation = %v, want %v", gs.Sweepers[0].Rotation, tt.want)
			}
		})
	}
}

func TestPositionWraps(t *testing.T) {
	tests := []struct {
		name     string
		x, y     float64
		rotation float64
		wantX    float64
	}{
		{"right edge", 399.5, 10, 0, 0.5},
		{"left edge", 0.5, 10, math.Pi, 399.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := newTestState(t, 400, 300)
			addSweeper(t, gs, tt.x, tt.y, tt.rotation, 0.5, 0.5, 0)
			turn(t, gs)

			p := gs.Sweepers[0].Position
			if !near(p.X, tt.wantX) {
				t.Errorf("x = %v, want %v", p.X, tt.wantX)
			}
			if p.X < 0 || p.X >= 400 || p.Y < 0 || p.Y >= 300 {
				t.Errorf("position %+v outside arena", p)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		v, bound, want float64
	}{
		{0, 400, 0},
		{399.9, 400, 399.9},
		{400, 400, 0},
		{401, 400, 1},
		{-1, 400, 399},
		{-1e-20, 400, 0},
	}
	for _, tt := range tests {
		if got := wrap(tt.v, tt.bound); !near(got, tt.want) {
			t.Errorf("wrap(%v, %v) = %v, want %v", tt.v, tt.bound, got, tt.want)
		}
	}
}

func TestFiringSetsCooldown(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 50, 50, 0, 0, 0, 1)

	turn(t, gs)
	if got := gs.Sweepers[0].Cooldown; got != 119 {
		t.Fatalf("cooldown after firing = %d, want 119", got)
	}
	bullets := gs.Bullets()
	if len(bullets) != 1 {
		t.Fatalf("bullets = %d, want 1", len(bullets))
	}
	if !near(bullets[0].Position.X, 54) || bullets[0].Shooter != 0 {
		t.Errorf("bullet = %+v, want x=54 shooter 0", bullets[0])
	}

	turn(t, gs)
	if got := gs.Sweepers[0].Cooldown; got != 118 {
		t.Errorf("cooldown = %d, want 118", got)
	}
	if gs.Counters().ShotsFired != 1 {
		t.Errorf("shots fired = %d, want 1", gs.Counters().ShotsFired)
	}
}

func TestFireGating(t *testing.T) {
	tests := []struct {
		name     string
		cooldown int
		shoot    float64
		wantShot bool
	}{
		{"ready", 0, 1, true},
		{"negative cooldown", -40, 0.9, true},
		{"reloading", 1, 1, false},
		{"threshold is strict", 0, 0.5, false},
		{"not asked", 0, 0.1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := newTestState(t, 400, 400)
			addSweeper(t, gs, 200, 200, 0, 0, 0, tt.shoot)
			gs.Sweepers[0].Cooldown = tt.cooldown

			turn(t, gs)

			shot := gs.Counters().ShotsFired == 1
			if shot != tt.wantShot {
				t.Errorf("shot = %v, want %v", shot, tt.wantShot)
			}
			want := tt.cooldown - 1
			if tt.wantShot {
				want = 119
			}
			if gs.Sweepers[0].Cooldown != want {
				t.Errorf("cooldown = %d, want %d", gs.Sweepers[0].Cooldown, want)
			}
		})
	}
}

func TestCooldownKeepsFalling(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 200, 200, 0, 0, 0, 0)
	gs.Sweepers[0].Cooldown = 3

	for i := 0; i < 5; i++ {
		turn(t, gs)
	}
	if got := gs.Sweepers[0].Cooldown; got != -2 {
		t.Errorf("cooldown = %d, want -2", got)
	}

	// Dead sweepers keep their cooldown
	gs.Sweepers[0].Dead = true
	turn(t, gs)
	if got := gs.Sweepers[0].Cooldown; got != -2 {
		t.Errorf("dead cooldown = %d, want -2", got)
	}
}

func TestBulletKillsOtherSweeper(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 100, 100, 0, 0, 0, 1)
	victim := addSweeper(t, gs, 110, 100, 0, 0, 0, 0)

	turn(t, gs)

	if !gs.Sweepers[1].Dead {
		t.Fatal("victim should be dead")
	}
	if gs.Sweepers[0].Dead {
		t.Error("shooter hit by its own bullet")
	}
	if len(gs.Bullets()) != 0 {
		t.Error("bullet not removed on hit")
	}
	if gs.Counters().Kills != 1 {
		t.Errorf("kills = %d, want 1", gs.Counters().Kills)
	}
	if gs.AliveCount() != 1 {
		t.Errorf("alive = %d, want 1", gs.AliveCount())
	}

	turn(t, gs)
	if len(victim.inputs) != 1 {
		t.Errorf("dead victim evaluated %d times, want 1", len(victim.inputs))
	}
}

func TestDeadSweeperAbsorbsBullet(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 100, 100, 0, 0, 0, 1)
	addSweeper(t, gs, 110, 100, 0, 0, 0, 0)
	gs.Sweepers[1].Dead = true

	turn(t, gs)

	if len(gs.Bullets()) != 0 {
		t.Error("dead sweeper should stop the bullet")
	}
	if gs.Counters().Kills != 0 {
		t.Errorf("kills = %d, want 0 for an already dead target", gs.Counters().Kills)
	}
}

func TestBulletLeavesArena(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 398, 100, 0, 0, 0, 1)

	turn(t, gs)

	if len(gs.Bullets()) != 0 {
		t.Errorf("bullet outside the arena not removed: %+v", gs.Bullets())
	}
	if gs.Counters().ShotsFired != 1 {
		t.Error("expected one shot")
	}
}

func TestBulletTravels(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 100, 100, 0, 0, 0, 1)

	for i := 0; i < 10; i++ {
		turn(t, gs)
	}
	bullets := gs.Bullets()
	if len(bullets) != 1 {
		t.Fatalf("bullets = %d, want 1", len(bullets))
	}
	if !near(bullets[0].Position.X, 140) || !near(bullets[0].Position.Y, 100) {
		t.Errorf("bullet at %+v, want (140, 100)", bullets[0].Position)
	}
}

func TestClosestMine(t *testing.T) {
	gs := newTestState(t, 400, 400)
	if v := gs.ClosestMine(10, 10); v != (components.Vector2D{}) {
		t.Errorf("no mines: got %+v, want zero vector", v)
	}

	gs.AddMine(components.Vec(20, 10))
	gs.AddMine(components.Vec(0, 10)) // same distance, higher index
	gs.AddMine(components.Vec(300, 300))

	if v := gs.ClosestMine(10, 10); v != components.Vec(-10, 0) {
		t.Errorf("got %+v, want (-10, 0) from the lower-index mine", v)
	}
}

func TestDoTurnErrors(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 10, 10, 0, 0.5, 0.5)

	if err := gs.DoTurn(); !errors.Is(err, ErrBrainOutput) {
		t.Errorf("short output: err = %v, want ErrBrainOutput", err)
	}

	gs = newTestState(t, 400, 400)
	addSweeper(t, gs, 10, 10, 0, 0, 0, 0)
	gs.Population = nil
	if err := gs.DoTurn(); !errors.Is(err, ErrPopulationMismatch) {
		t.Errorf("misaligned: err = %v, want ErrPopulationMismatch", err)
	}
}

func TestBrainTransplant(t *testing.T) {
	gs := newTestState(t, 400, 400)
	b0 := addSweeper(t, gs, 100, 100, 0.5, 0, 0, 1)
	addSweeper(t, gs, 300, 300, 0, 0, 0, 0)
	gs.AddMine(components.Vec(100, 104))

	opt := newStubOptimizer(2, 2)
	if err := gs.AttachOptimizer(opt); err != nil {
		t.Fatalf("AttachOptimizer: %v", err)
	}

	turn(t, gs)
	if gs.Population[0].Fitness != 1 {
		t.Fatalf("fitness = %v, want 1 before transition", gs.Population[0].Fitness)
	}
	posBefore := gs.Sweepers[0].Position

	report, err := gs.BrainTransplant()
	if err != nil {
		t.Fatalf("BrainTransplant: %v", err)
	}

	// Report carries the optimizer's statistics from before this epoch
	if report.Generation != 1 || report.AverageFitness != 0 || report.BestFitness != 0 {
		t.Errorf("report = %+v, want gen 1 with zero stats", report)
	}
	if opt.received[0].Fitness != 1 {
		t.Error("optimizer did not receive the scored population")
	}
	if b0.weights[0] != 1 {
		t.Errorf("brain weights = %v, want the new genome", b0.weights)
	}
	for i, s := range gs.Sweepers {
		if s.MinesSwept != 0 || s.Dead || s.Cooldown != 0 {
			t.Errorf("sweeper %d not reset: %+v", i, s)
		}
	}
	if gs.Sweepers[0].Position != posBefore || gs.Sweepers[0].Rotation != 0.5 {
		t.Error("placement changed without ResetPlacement")
	}
	if gs.Counters() != (Counters{}) || gs.Ticks() != 0 {
		t.Errorf("counters %+v ticks %d not reset", gs.Counters(), gs.Ticks())
	}

	report, err = gs.BrainTransplant()
	if err != nil {
		t.Fatal(err)
	}
	if report.Generation != 2 || report.BestFitness != 1 || report.AverageFitness != 0.5 {
		t.Errorf("second report = %+v, want gen 2 avg 0.5 best 1", report)
	}
}

func TestBrainTransplantResetPlacement(t *testing.T) {
	gs := newTestState(t, 200, 100)
	gs.ResetPlacement = true
	addSweeper(t, gs, 50, 50, 0, 0, 0, 1)
	if err := gs.AttachOptimizer(newStubOptimizer(1, 2)); err != nil {
		t.Fatal(err)
	}

	turn(t, gs)
	if len(gs.Bullets()) != 1 {
		t.Fatal("expected a bullet in flight")
	}

	if _, err := gs.BrainTransplant(); err != nil {
		t.Fatal(err)
	}
	if len(gs.Bullets()) != 0 {
		t.Error("bullets not cleared on re-placement")
	}
	p := gs.Sweepers[0].Position
	if p.X < 0 || p.X >= 200 || p.Y < 0 || p.Y >= 100 {
		t.Errorf("new position %+v outside arena", p)
	}
}

func TestBrainTransplantErrors(t *testing.T) {
	gs := newTestState(t, 400, 400)
	addSweeper(t, gs, 10, 10, 0, 0, 0, 0)

	if _, err := gs.BrainTransplant(); !errors.Is(err, ErrNoOptimizer) {
		t.Errorf("err = %v, want ErrNoOptimizer", err)
	}
	if err := gs.AttachOptimizer(newStubOptimizer(3, 2)); !errors.Is(err, ErrPopulationMismatch) {
		t.Errorf("err = %v, want ErrPopulationMismatch", err)
	}
	if err := gs.LoadPopulation([]components.Genome{{Weights: []float64{1}}}); err == nil {
		t.Error("expected error for wrong weight count")
	}
}

// malformedOptimizer breeds a population whose last genome is too short.
type malformedOptimizer struct {
	*stubOptimizer
}

func (o malformedOptimizer) Epoch(pop []components.Genome) ([]components.Genome, error) {
	next := make([]components.Genome, len(pop))
	for i := range next {
		next[i] = components.Genome{Weights: []float64{7, 7}}
	}
	next[len(next)-1].Weights = []float64{1}
	return next, nil
}

func TestBrainTransplantRejectedPopulationLeavesStateIntact(t *testing.T) {
	gs := newTestState(t, 400, 400)
	b0 := addSweeper(t, gs, 10, 10, 0, 0, 0, 0)
	b1 := addSweeper(t, gs, 300, 300, 0, 0, 0, 0)
	if err := gs.AttachOptimizer(malformedOptimizer{newStubOptimizer(2, 2)}); err != nil {
		t.Fatalf("AttachOptimizer: %v", err)
	}
	gs.Sweepers[0].Dead = true
	gs.Population[0].Fitness = 3

	_, err := gs.BrainTransplant()
	if !errors.Is(err, ErrGenomeLength) {
		t.Fatalf("err = %v, want ErrGenomeLength", err)
	}

	if gs.Generation() != 0 {
		t.Errorf("Generation = %d, want 0", gs.Generation())
	}
	for i, b := range []*stubBrain{b0, b1} {
		if len(b.weights) != 2 || b.weights[0] != 0 || b.weights[1] != 0 {
			t.Errorf("brain %d weights = %v, want [0 0]", i, b.weights)
		}
	}
	if got := gs.Population[0]; got.Fitness != 3 || got.Weights[0] != 0 {
		t.Errorf("population[0] = %+v, want the scored genome", got)
	}
	if !gs.Sweepers[0].Dead {
		t.Error("sweeper 0 was reset by a failed transition")
	}
}

func TestLoadPopulationChecksEveryGenomeFirst(t *testing.T) {
	gs := newTestState(t, 400, 400)
	b0 := addSweeper(t, gs, 10, 10, 0, 0, 0, 0)
	addSweeper(t, gs, 300, 300, 0, 0, 0, 0)

	err := gs.LoadPopulation([]components.Genome{
		{Weights: []float64{5, 5}},
		{Weights: []float64{5, 5, 5}},
	})
	if !errors.Is(err, ErrGenomeLength) {
		t.Fatalf("err = %v, want ErrGenomeLength", err)
	}
	if len(b0.weights) != 0 {
		t.Errorf("brain 0 weights = %v, want untouched", b0.weights)
	}
}

func TestGenerationReportString(t *testing.T) {
	r := GenerationReport{Generation: 3, AverageFitness: 1.5, BestFitness: 4.9}
	got := r.String()
	if got != "Transplanting brains. Gen 3: Avg fitness 1.50, best 4" {
		t.Errorf("String() = %q", got)
	}
	if !strings.HasPrefix(got, "Transplanting brains.") {
		t.Error("missing prefix")
	}
}

func TestPopulateUsesRandomPlacement(t *testing.T) {
	gs := newTestState(t, 300, 200)
	calls := 0
	err := gs.Populate(5, 7, func() components.Brain {
		calls++
		return &stubBrain{out: []float64{0, 0, 0}, n: 1}
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 5 || len(gs.Sweepers) != 5 || len(gs.Mines) != 7 {
		t.Fatalf("calls %d sweepers %d mines %d", calls, len(gs.Sweepers), len(gs.Mines))
	}
	for _, m := range gs.Mines {
		if m.Position.X < 0 || m.Position.X >= 300 || m.Position.Y < 0 || m.Position.Y >= 200 {
			t.Errorf("mine %+v outside arena", m.Position)
		}
	}
}
