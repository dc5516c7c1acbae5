// Package events detects and dispatches state events during integration:
// zero crossings of user-defined trigger expressions against a step's
// dense-output polynomials.
//
// The moving parts:
//
//   - [Descriptor]: immutable definition of one event — trigger expression,
//     crossing direction filter, terminal/non-terminal kind, and either a
//     callback with an optional cooldown or a halting disposition.
//   - [Detector]: owns the registered descriptors and the per-event
//     cooldown state for one integrator instance. Registration validates
//     everything up front; a descriptor that registers cleanly never fails
//     during scanning.
//   - [CooldownTracker]: per-event refractory windows in absolute
//     integration time, surviving step boundaries.
//   - [Scanner]: runs once per completed step. It composes each trigger
//     with the step's polynomials, isolates the roots, filters them by
//     direction and cooldown, dispatches non-terminal callbacks in crossing
//     order, and truncates the step at the earliest terminal crossing.
//
// A scanner is synchronous and single-threaded: Scan runs to completion
// within the step that invoked it. Separate integrator instances with
// their own detectors may run concurrently; within one instance nothing
// here is safe for concurrent use. Callbacks must not re-enter the runner
// that invoked them.
package events
