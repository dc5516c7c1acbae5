package precision

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/san-kum/taysim/internal/dynamo"
)

// PiString carries enough decimal digits of pi for argument reduction and
// literal substitution at the widest working precision plus guard bits
// (150 digits ~ 498 bits).
const PiString = "3.14159265358979323846264338327950288419716939937510" +
	"58209749445923078164062862089986280348253421170679" +
	"82148086513282306647093844609550582231725359408128"

// guardBits pads intermediate transcendental computation so the final
// rounding to working precision absorbs series truncation and reduction
// error.
const guardBits = 64

// ForExtended returns 64-bit mantissa arithmetic carried by math/big.
func ForExtended() Arith[*big.Float] {
	return bigArith{prec: 64, p: Extended}
}

// ForQuad returns 113-bit mantissa arithmetic carried by math/big.
func ForQuad() Arith[*big.Float] {
	return bigArith{prec: 113, p: Quad}
}

type bigArith struct {
	prec uint
	p    Precision
}

func (a bigArith) new() *big.Float { return new(big.Float).SetPrec(a.prec) }

func (a bigArith) FromFloat(v float64) *big.Float { return a.new().SetFloat64(v) }

func (a bigArith) FromString(s string) (*big.Float, error) {
	f, _, err := big.ParseFloat(s, 10, a.prec, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("%w: bad numeric literal %q", dynamo.ErrBadTrigger, s)
	}
	return f, nil
}

func (a bigArith) Float(x *big.Float) float64 {
	f, _ := x.Float64()
	return f
}

func (a bigArith) Add(x, y *big.Float) *big.Float { return a.new().Add(x, y) }

func (a bigArith) Sub(x, y *big.Float) *big.Float { return a.new().Sub(x, y) }

func (a bigArith) Mul(x, y *big.Float) *big.Float { return a.new().Mul(x, y) }

func (a bigArith) Div(x, y *big.Float) *big.Float { return a.new().Quo(x, y) }

func (a bigArith) Neg(x *big.Float) *big.Float { return a.new().Neg(x) }

func (a bigArith) Abs(x *big.Float) *big.Float { return a.new().Abs(x) }

func (a bigArith) Cmp(x, y *big.Float) int { return x.Cmp(y) }

func (a bigArith) Sign(x *big.Float) int { return x.Sign() }

func (a bigArith) Sqrt(x *big.Float) *big.Float { return a.new().Sqrt(x) }

func (a bigArith) Eps() float64 { return Epsilon(int(a.prec)) }

func (a bigArith) Bits() int { return int(a.prec) }

func (a bigArith) Precision() Precision { return a.p }

func (a bigArith) Sin(x *big.Float) *big.Float {
	w := a.prec + guardBits
	return sinSeries(reduceAngle(x, w), w).SetPrec(a.prec)
}

func (a bigArith) Cos(x *big.Float) *big.Float {
	w := a.prec + guardBits
	return cosSeries(reduceAngle(x, w), w).SetPrec(a.prec)
}

func (a bigArith) Exp(x *big.Float) *big.Float {
	w := a.prec + guardBits
	return expSeries(x, w).SetPrec(a.prec)
}

var piCache sync.Map // working precision -> *big.Float, read-only once stored

func piAt(w uint) *big.Float {
	if v, ok := piCache.Load(w); ok {
		return v.(*big.Float)
	}
	f, _, err := big.ParseFloat(PiString, 10, w, big.ToNearestEven)
	if err != nil {
		panic("precision: bad pi constant: " + err.Error())
	}
	piCache.Store(w, f)
	return f
}

// reduceAngle maps x into [-pi, pi] at working precision w. Arguments with
// magnitude beyond 2^guardBits lose the reduction accuracy they came with;
// trigger expressions operate on state values, not accumulated phases, so
// that regime does not arise in practice.
func reduceAngle(x *big.Float, w uint) *big.Float {
	pi := piAt(w)
	twoPi := new(big.Float).SetPrec(w).Add(pi, pi)
	r := new(big.Float).SetPrec(w).Set(x)
	q := new(big.Float).SetPrec(w).Quo(r, twoPi)
	if n, _ := q.Int(nil); n.Sign() != 0 {
		k := new(big.Float).SetPrec(w).SetInt(n)
		r.Sub(r, k.Mul(k, twoPi))
	}
	if r.Cmp(pi) > 0 {
		r.Sub(r, twoPi)
	} else if negPi := new(big.Float).SetPrec(w).Neg(pi); r.Cmp(negPi) < 0 {
		r.Add(r, twoPi)
	}
	return r
}

// negligible reports that term no longer moves sum at precision w.
func negligible(term, sum *big.Float, w uint) bool {
	if term.Sign() == 0 {
		return true
	}
	if sum.Sign() == 0 {
		return false
	}
	return term.MantExp(nil) < sum.MantExp(nil)-int(w)
}

func sinSeries(r *big.Float, w uint) *big.Float {
	sum := new(big.Float).SetPrec(w).Set(r)
	term := new(big.Float).SetPrec(w).Set(r)
	r2 := new(big.Float).SetPrec(w).Mul(r, r)
	den := new(big.Float).SetPrec(w)
	for k := 1; ; k++ {
		term.Mul(term, r2)
		term.Quo(term, den.SetInt64(int64(2*k)*int64(2*k+1)))
		term.Neg(term)
		sum.Add(sum, term)
		if negligible(term, sum, w) {
			return sum
		}
	}
}

func cosSeries(r *big.Float, w uint) *big.Float {
	sum := new(big.Float).SetPrec(w).SetInt64(1)
	term := new(big.Float).SetPrec(w).SetInt64(1)
	r2 := new(big.Float).SetPrec(w).Mul(r, r)
	den := new(big.Float).SetPrec(w)
	for k := 1; ; k++ {
		term.Mul(term, r2)
		term.Quo(term, den.SetInt64(int64(2*k-1)*int64(2*k)))
		term.Neg(term)
		sum.Add(sum, term)
		if negligible(term, sum, w) {
			return sum
		}
	}
}

// expSeries computes exp(x) by scaling x into [-1/2, 1/2], summing the
// Maclaurin series, then squaring back.
func expSeries(x *big.Float, w uint) *big.Float {
	r := new(big.Float).SetPrec(w).Set(x)
	n := 0
	if r.Sign() != 0 {
		if e := r.MantExp(nil); e > -1 {
			n = e + 1
			r.SetMantExp(r, -n)
		}
	}
	sum := new(big.Float).SetPrec(w).SetInt64(1)
	term := new(big.Float).SetPrec(w).SetInt64(1)
	den := new(big.Float).SetPrec(w)
	for k := 1; ; k++ {
		term.Mul(term, r)
		term.Quo(term, den.SetInt64(int64(k)))
		sum.Add(sum, term)
		if negligible(term, sum, w) {
			break
		}
	}
	for i := 0; i < n; i++ {
		sum.Mul(sum, sum)
	}
	return sum
}
