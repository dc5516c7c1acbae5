// Package physics is the model catalog: named dynamical systems written
// as right-hand-side formulas, so the same model drives both the series
// stepper and the classical integrators.
//
// Each catalog entry is a [Model] bundling the expression form, a plain
// float64 [dynamo.System], an initial state, and event presets:
//
//   - harmonic: frictionless linear oscillator
//   - pendulum: planar pendulum with linear drag
//   - vanderpol: van der Pol relaxation oscillator
//   - lorenz: Lorenz convection system
//   - duffing: periodically forced double-well oscillator
//
// # Energy Conservation
//
// Models with a conserved quantity implement [dynamo.Hamiltonian] on
// their dynamics, so energy drift can be monitored the usual way:
//
//	m, _ := physics.Default("pendulum")
//	if h, ok := m.Dynamics.(dynamo.Hamiltonian); ok {
//	    energy := h.Energy(m.Initial)
//	}
package physics
