package fdtd

// Extension augments the operator's update coefficients without the
// operator knowing extension internals. Extensions are additive and
// order-independent; they read the already-resolved per-face boundary
// types, so boundary assignment must precede construction.
type Extension interface {
	Name() string
	// BuildExtension runs after the base coefficients exist and may
	// modify them in place.
	BuildExtension() error
	// CreateEngineExtension returns the run-time counterpart, or nil if
	// the extension is purely an operator-side modification.
	CreateEngineExtension(eng *Engine) EngineExtension
}

// EngineExtension hooks into the engine's update cycle.
type EngineExtension interface {
	Apply2Voltages()
	Apply2Current()
}
