package precision

import (
	"fmt"
	"math"
	"strconv"

	"github.com/san-kum/taysim/internal/dynamo"
)

// Arith is the capability set the event subsystem needs from a scalar type:
// field operations, ordering, a handful of transcendentals for trigger
// composition, and conversions at the edges. Implementations must be
// reentrant; values of T are never mutated in place.
type Arith[T any] interface {
	FromFloat(v float64) T
	// FromString converts a decimal literal directly at working precision,
	// avoiding the double rounding of going through float64.
	FromString(s string) (T, error)
	Float(x T) float64

	Add(x, y T) T
	Sub(x, y T) T
	Mul(x, y T) T
	Div(x, y T) T
	Neg(x T) T
	Abs(x T) T

	// Cmp returns -1, 0 or +1 as x is less than, equal to, or greater than y.
	Cmp(x, y T) int
	// Sign returns -1, 0 or +1 as x is negative, zero, or positive.
	Sign(x T) int

	Sin(x T) T
	Cos(x T) T
	Exp(x T) T
	Sqrt(x T) T

	// Eps is the unit roundoff of the representation.
	Eps() float64
	// Bits is the mantissa width.
	Bits() int
	Precision() Precision
}

// ForDouble returns the hardware float64 arithmetic.
func ForDouble() Arith[float64] {
	return doubleArith{}
}

type doubleArith struct{}

func (doubleArith) FromFloat(v float64) float64 { return v }

func (doubleArith) FromString(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad numeric literal %q", dynamo.ErrBadTrigger, s)
	}
	return v, nil
}

func (doubleArith) Float(x float64) float64 { return x }

func (doubleArith) Add(x, y float64) float64 { return x + y }

func (doubleArith) Sub(x, y float64) float64 { return x - y }

func (doubleArith) Mul(x, y float64) float64 { return x * y }

func (doubleArith) Div(x, y float64) float64 { return x / y }

func (doubleArith) Neg(x float64) float64 { return -x }

func (doubleArith) Abs(x float64) float64 { return math.Abs(x) }

func (doubleArith) Sin(x float64) float64 { return math.Sin(x) }

func (doubleArith) Cos(x float64) float64 { return math.Cos(x) }

func (doubleArith) Exp(x float64) float64 { return math.Exp(x) }

func (doubleArith) Sqrt(x float64) float64 { return math.Sqrt(x) }

func (doubleArith) Eps() float64 { return Epsilon(53) }

func (doubleArith) Bits() int { return 53 }

func (doubleArith) Precision() Precision { return Double }

func (doubleArith) Cmp(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (doubleArith) Sign(x float64) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	default:
		return 0
	}
}
