package poly

import (
	"log/slog"
	"sort"

	"github.com/san-kum/taysim/internal/precision"
)

// Root is one isolated real root of a polynomial over a step interval.
type Root[T any] struct {
	// Offset is the step-local time offset of the root in [0, extent).
	Offset T
	// Deriv is the polynomial's derivative value at Offset.
	Deriv T
	// Ambiguous marks a root merged from candidates closer than the merge
	// tolerance, or one whose derivative vanishes at the root; its crossing
	// direction cannot be trusted.
	Ambiguous bool
}

// Isolator finds real roots of dense-output polynomials. Not safe for
// concurrent use; each scanner owns one.
type Isolator[T any] struct {
	ops precision.Arith[T]
	log *slog.Logger
}

func NewIsolator[T any](ops precision.Arith[T], log *slog.Logger) *Isolator[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Isolator[T]{ops: ops, log: log}
}

// Isolate returns every real root of p inside [0, extent), ascending by
// offset. scale is the coefficient magnitude of the polynomials that fed p,
// used for the degeneracy threshold; pass 1 when unknown. A polynomial that
// is numerically zero across the interval yields no roots.
func (iso *Isolator[T]) Isolate(p Poly[T], extent, scale float64) []Root[T] {
	if extent <= 0 || len(p) == 0 {
		return nil
	}
	ops := iso.ops

	c := p
	for len(c) > 0 && ops.Sign(c[len(c)-1]) == 0 {
		c = c[:len(c)-1]
	}
	if len(c) == 0 {
		iso.log.Debug("poly: identically zero trigger polynomial, no roots")
		return nil
	}
	deg := len(c) - 1
	eps := ops.Eps()
	if m := Poly[T](c).MaxAbs(ops); m <= precision.DegeneracyEps(eps, deg, scale) {
		iso.log.Debug("poly: degenerate trigger polynomial, no roots",
			"degree", deg, "maxcoef", m, "scale", scale)
		return nil
	}
	if deg == 0 {
		return nil
	}

	r := &isoRun[T]{
		ops:    ops,
		log:    iso.log,
		B:      ops.FromFloat(extent),
		pd:     p.Derivative(ops),
		rootT:  ops.FromFloat(precision.RootTol(eps, deg, 1)),
		mergeT: ops.FromFloat(precision.MergeTol(eps, deg, 1)),
		half:   ops.FromFloat(0.5),
		zero:   ops.FromFloat(0),
		one:    ops.FromFloat(1),
	}

	// Unit-domain image q(u) = p(extent*u), u in [0, 1].
	q := make(Poly[T], len(c))
	pw := r.one
	for k := range c {
		q[k] = ops.Mul(c[k], pw)
		pw = ops.Mul(pw, r.B)
	}

	// An exact root on the interval start is reported once, then divided
	// out so the recursion sees nonzero endpoint values.
	if ops.Sign(q[0]) == 0 {
		r.emit(r.zero)
		for len(q) > 1 && ops.Sign(q[0]) == 0 {
			q = q[1:]
		}
		if len(q) == 1 {
			return r.finish()
		}
	}
	// An exact root on the far endpoint lies outside the half-open
	// interval; divide it out for the same reason.
	for ops.Sign(horner(ops, q, r.one)) == 0 {
		q = deflate(ops, q, r.one)
		if len(q) <= 1 {
			return r.finish()
		}
	}

	r.walk(q, r.zero, r.one)
	return r.finish()
}

type isoRun[T any] struct {
	ops    precision.Arith[T]
	log    *slog.Logger
	B      T       // step extent
	pd     Poly[T] // derivative of the original polynomial, offset domain
	rootT  T       // refinement width, unit domain
	mergeT T       // merge width, unit domain
	half   T
	zero   T
	one    T
	roots  []Root[T]
}

func (r *isoRun[T]) emit(u T) {
	tau := r.ops.Mul(u, r.B)
	d := r.pd.Eval(r.ops, tau)
	r.roots = append(r.roots, Root[T]{Offset: tau, Deriv: d, Ambiguous: r.ops.Sign(d) == 0})
}

func (r *isoRun[T]) emitAmbiguous(u T) {
	tau := r.ops.Mul(u, r.B)
	r.roots = append(r.roots, Root[T]{Offset: tau, Deriv: r.pd.Eval(r.ops, tau), Ambiguous: true})
}

// walk isolates the roots of the node polynomial nc, the image of the
// global unit-domain polynomial on [a, b] mapped to [0, 1]. Endpoint values
// of nc are nonzero on entry.
func (r *isoRun[T]) walk(nc Poly[T], a, b T) {
	ops := r.ops
	switch variations(ops, nc) {
	case 0:
		return
	case 1:
		r.refine(nc, a, b)
		return
	}

	m := ops.Mul(ops.Add(a, b), r.half)
	width := ops.Sub(b, a)
	if ops.Cmp(width, r.mergeT) <= 0 || ops.Cmp(m, a) <= 0 || ops.Cmp(m, b) >= 0 {
		r.log.Debug("poly: collapsing unresolvable root cluster",
			"center", ops.Float(r.ops.Mul(m, r.B)))
		r.emitAmbiguous(m)
		return
	}

	// An exact root on the split point is reported once, divided out, and
	// the interval rescanned with clean endpoints.
	if ops.Sign(horner(ops, nc, r.half)) == 0 {
		r.emit(m)
		for {
			nc = deflate(ops, nc, r.half)
			if len(nc) <= 1 {
				return
			}
			if ops.Sign(horner(ops, nc, r.half)) != 0 {
				break
			}
		}
		r.walk(nc, a, b)
		return
	}

	left := make(Poly[T], len(nc))
	pw := r.one
	for k := range nc {
		left[k] = ops.Mul(nc[k], pw)
		pw = ops.Mul(pw, r.half)
	}
	right := shiftOne(ops, left.Clone())
	r.walk(left, a, m)
	r.walk(right, m, b)
}

// refine narrows the single bracketed root of nc on (0, 1) by bisection to
// the root tolerance, polishes with guarded Newton steps, and records it in
// global coordinates.
func (r *isoRun[T]) refine(nc Poly[T], a, b T) {
	ops := r.ops
	slo := ops.Sign(nc[0])
	shi := ops.Sign(horner(ops, nc, r.one))
	if slo == 0 && shi == 0 {
		r.emitAmbiguous(ops.Mul(ops.Add(a, b), r.half))
		return
	}
	// A rounded-to-zero endpoint still implies the entering sign: one
	// crossing means the endpoints disagree.
	if slo == 0 {
		slo = -shi
	}

	lo, hi := r.zero, r.one
	tol := ops.Div(r.rootT, ops.Sub(b, a))
	for ops.Cmp(ops.Sub(hi, lo), tol) > 0 {
		m := ops.Mul(ops.Add(lo, hi), r.half)
		if ops.Cmp(m, lo) <= 0 || ops.Cmp(m, hi) >= 0 {
			break
		}
		s := ops.Sign(horner(ops, nc, m))
		if s == 0 {
			lo, hi = m, m
			break
		}
		if s == slo {
			lo = m
		} else {
			hi = m
		}
	}

	u := ops.Mul(ops.Add(lo, hi), r.half)
	nd := nc.Derivative(ops)
	for i := 0; i < 2; i++ {
		d := horner(ops, nd, u)
		if ops.Sign(d) == 0 {
			break
		}
		nu := ops.Sub(u, ops.Div(horner(ops, nc, u), d))
		if ops.Cmp(nu, r.zero) < 0 || ops.Cmp(nu, r.one) > 0 {
			break
		}
		u = nu
	}

	r.emit(ops.Add(a, ops.Mul(ops.Sub(b, a), u)))
}

// finish orders the collected roots, merges any pair closer than the merge
// tolerance into the earlier one flagged ambiguous, and drops roots outside
// the half-open interval.
func (r *isoRun[T]) finish() []Root[T] {
	ops := r.ops
	sort.Slice(r.roots, func(i, j int) bool {
		return ops.Cmp(r.roots[i].Offset, r.roots[j].Offset) < 0
	})
	mergeTau := ops.Mul(r.mergeT, r.B)
	out := r.roots[:0]
	for _, rt := range r.roots {
		if ops.Cmp(rt.Offset, r.zero) < 0 || ops.Cmp(rt.Offset, r.B) >= 0 {
			continue
		}
		if n := len(out); n > 0 && ops.Cmp(ops.Sub(rt.Offset, out[n-1].Offset), mergeTau) <= 0 {
			out[n-1].Ambiguous = true
			continue
		}
		out = append(out, rt)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// variations returns the Descartes bound on the number of roots of c in the
// open unit interval: the sign variation count of (x+1)^n * c(1/(x+1)),
// computed by reversing the coefficients and shifting by one.
func variations[T any](ops precision.Arith[T], c Poly[T]) int {
	w := make([]T, len(c))
	for i := range c {
		w[i] = c[len(c)-1-i]
	}
	shiftOne(ops, w)
	v, prev := 0, 0
	for _, x := range w {
		s := ops.Sign(x)
		if s == 0 {
			continue
		}
		if prev != 0 && s != prev {
			v++
		}
		prev = s
	}
	return v
}

// shiftOne replaces c with the coefficients of c(x+1), in place.
func shiftOne[T any](ops precision.Arith[T], c []T) []T {
	for i := 0; i < len(c); i++ {
		for j := len(c) - 2; j >= i; j-- {
			c[j] = ops.Add(c[j], c[j+1])
		}
	}
	return c
}

// deflate divides c by (u - u0), dropping the (numerically zero) remainder.
func deflate[T any](ops precision.Arith[T], c Poly[T], u0 T) Poly[T] {
	n := len(c) - 1
	d := make(Poly[T], n)
	d[n-1] = c[n]
	for k := n - 1; k >= 1; k-- {
		d[k-1] = ops.Add(c[k], ops.Mul(u0, d[k]))
	}
	return d
}
