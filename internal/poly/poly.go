package poly

import (
	"math"

	"github.com/san-kum/taysim/internal/precision"
)

// Poly is a polynomial in the step-local time offset, stored as ascending
// coefficients: p(tau) = p[0] + p[1]*tau + ... + p[n]*tau^n.
type Poly[T any] []T

func (p Poly[T]) Degree() int { return len(p) - 1 }

func (p Poly[T]) Clone() Poly[T] {
	c := make(Poly[T], len(p))
	copy(c, p)
	return c
}

// Eval evaluates p at tau by Horner's rule.
func (p Poly[T]) Eval(ops precision.Arith[T], tau T) T {
	if len(p) == 0 {
		return ops.FromFloat(0)
	}
	return horner(ops, p, tau)
}

func horner[T any](ops precision.Arith[T], c []T, x T) T {
	acc := c[len(c)-1]
	for i := len(c) - 2; i >= 0; i-- {
		acc = ops.Add(ops.Mul(acc, x), c[i])
	}
	return acc
}

// Derivative returns dp/dtau.
func (p Poly[T]) Derivative(ops precision.Arith[T]) Poly[T] {
	if len(p) <= 1 {
		return Poly[T]{ops.FromFloat(0)}
	}
	d := make(Poly[T], len(p)-1)
	for k := 1; k < len(p); k++ {
		d[k-1] = ops.Mul(p[k], ops.FromFloat(float64(k)))
	}
	return d
}

// Reflect returns p(-tau), the polynomial traversed against the offset
// axis. Backward steps isolate on the reflection so the root interval stays
// [0, |h|).
func (p Poly[T]) Reflect(ops precision.Arith[T]) Poly[T] {
	r := make(Poly[T], len(p))
	for k := range p {
		if k%2 == 1 {
			r[k] = ops.Neg(p[k])
		} else {
			r[k] = p[k]
		}
	}
	return r
}

// MaxAbs returns the largest coefficient magnitude, widened to float64.
func (p Poly[T]) MaxAbs(ops precision.Arith[T]) float64 {
	m := 0.0
	for _, c := range p {
		if v := math.Abs(ops.Float(c)); v > m {
			m = v
		}
	}
	return m
}

// Finite reports whether every coefficient widens to a finite float64.
// Values beyond float64 range count as nonfinite; a trajectory out there
// has already diverged.
func (p Poly[T]) Finite(ops precision.Arith[T]) bool {
	for _, c := range p {
		v := ops.Float(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Constant returns the degree-n series holding a constant value.
func Constant[T any](ops precision.Arith[T], v T, n int) Poly[T] {
	c := make(Poly[T], n+1)
	c[0] = v
	zero := ops.FromFloat(0)
	for k := 1; k <= n; k++ {
		c[k] = zero
	}
	return c
}

// Add returns a+b, sized to the longer operand.
func Add[T any](ops precision.Arith[T], a, b Poly[T]) Poly[T] {
	if len(b) > len(a) {
		a, b = b, a
	}
	c := a.Clone()
	for k := range b {
		c[k] = ops.Add(c[k], b[k])
	}
	return c
}

// Sub returns a-b, sized to the longer operand.
func Sub[T any](ops precision.Arith[T], a, b Poly[T]) Poly[T] {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	c := make(Poly[T], n)
	zero := ops.FromFloat(0)
	for k := 0; k < n; k++ {
		c[k] = zero
		if k < len(a) {
			c[k] = a[k]
		}
		if k < len(b) {
			c[k] = ops.Sub(c[k], b[k])
		}
	}
	return c
}

// Scale returns a scaled by s.
func Scale[T any](ops precision.Arith[T], a Poly[T], s T) Poly[T] {
	c := make(Poly[T], len(a))
	for k := range a {
		c[k] = ops.Mul(a[k], s)
	}
	return c
}

// Mul returns the product of a and b truncated to degree n.
func Mul[T any](ops precision.Arith[T], a, b Poly[T], n int) Poly[T] {
	c := Constant(ops, ops.FromFloat(0), n)
	for i, ai := range a {
		if i > n {
			break
		}
		for j, bj := range b {
			if i+j > n {
				break
			}
			c[i+j] = ops.Add(c[i+j], ops.Mul(ai, bj))
		}
	}
	return c
}

// Div returns the series quotient a/b truncated to degree n. It reports
// false when b has a zero constant term, where no power-series reciprocal
// exists.
func Div[T any](ops precision.Arith[T], a, b Poly[T], n int) (Poly[T], bool) {
	if len(b) == 0 || ops.Sign(b[0]) == 0 {
		return nil, false
	}
	c := Constant(ops, ops.FromFloat(0), n)
	for k := 0; k <= n; k++ {
		acc := ops.FromFloat(0)
		if k < len(a) {
			acc = a[k]
		}
		for j := 1; j <= k && j < len(b); j++ {
			acc = ops.Sub(acc, ops.Mul(b[j], c[k-j]))
		}
		c[k] = ops.Div(acc, b[0])
	}
	return c, true
}
