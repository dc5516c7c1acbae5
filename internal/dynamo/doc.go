// Package dynamo provides core simulation primitives for dynamical systems.
//
// The package defines the fundamental interfaces and types for numerical
// simulation of ordinary differential equations (ODEs):
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, t))
//   - [Integrator]: numerical integrator interface
//   - [Metric]: running scalar observation over a trajectory
//
// Dense output, event detection and the step driver live in the poly,
// events, taylor and sim packages; this package carries the shared
// vocabulary and the error taxonomy they report against.
//
// # Thread Safety
//
// Values in this package are plain data. Runners built on top of them are
// NOT thread-safe; for parallel simulations use sim.Ensemble, which manages
// independent runner instances.
package dynamo
