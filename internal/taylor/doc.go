// Package taylor produces the dense-output steps the event scanner
// consumes.
//
// [Stepper] advances a [System], given by one right-hand-side expression
// per state variable, with fixed-order Taylor series: the jet of each
// variable is grown one coefficient at a time through the recurrence
// c[k+1] = F[k]/(k+1), where F is the right-hand side composed with the
// current jets. The resulting [Step] holds one polynomial per variable
// over the step interval and evaluates the state anywhere inside it, at
// the working precision.
//
// [HermiteSource] offers the same dense-step product for classical
// integrators: endpoint states and slopes pin a cubic per variable. It
// runs at double precision only and trades the series' accuracy for
// compatibility with any right-hand side expressible in plain Go.
package taylor
