// Package analysis reduces recorded runs to views: phase-plane
// projections, Poincaré sections cut by event triggers, and ASCII
// renderings of both.
//
// # Event-driven sections
//
// A section is just a non-terminal event: the trigger expression is the
// section surface, the direction picks the crossing sense, and the
// callback records the isolated crossing state:
//
//	sec, err := analysis.PoincareSection(ctx, ops, src, trigger,
//	    events.Positive, 0, 1, x0, cfg, log)
//
// Crossing states come from the root isolator, so the scatter does not
// smear with the step size the way grid-sampled sections do.
package analysis
