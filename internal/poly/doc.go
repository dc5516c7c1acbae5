// Package poly provides dense-output polynomials and real-root isolation
// over a step interval.
//
// A [Poly] holds ascending coefficients of a polynomial in the step-local
// time offset. The [Isolator] finds every real root inside the half-open
// interval [0, extent), tagged with the derivative value there, using
// recursive bisection bounded by Descartes' rule of signs: an interval whose
// mapped coefficient sequence shows zero sign variations holds no roots and
// is dropped; one variation brackets exactly one root, which is refined by
// bisection and a guarded Newton polish; anything else is split at the
// midpoint. Intervals that cannot be split below the merge tolerance while
// still holding multiple candidate roots collapse to a single root flagged
// [Root.Ambiguous].
//
// All arithmetic goes through a precision.Arith, so isolation runs
// identically over float64 and the math/big backed widths. An Isolator is
// not safe for concurrent use; each scanner owns its own.
package poly
