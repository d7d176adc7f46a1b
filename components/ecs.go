package components

// ECS components for projectiles. Bullets come and go every tick, so they
// live in an ark world rather than in the index-aligned sweeper slice.

// Position represents a bullet's arena position.
type Position struct {
	X, Y float64
}

// Heading is a bullet's direction of travel in radians.
type Heading struct {
	Rotation float64
}

// Shooter is a non-owning reference to the firing sweeper, by sweeper index.
// It is used only to exclude self-hits.
type Shooter struct {
	Index int
}
