// Package precision parameterizes the event subsystem over the working
// floating-point type. Every numeric component is generic over a scalar T
// and receives its operations through [Arith]; nothing outside this package
// assumes a mantissa width.
//
// Three precisions are supported: [Double] (hardware float64), [Extended]
// (64-bit mantissa) and [Quad] (113-bit mantissa, IEEE binary128 layout).
// The wider two are carried by math/big floats at fixed precision.
// Availability is a runtime query via [Available]; asking for a precision
// this build cannot supply is a configuration error from [Validate].
package precision

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/taysim/internal/dynamo"
)

// Precision selects the scalar type the integrator and its event machinery
// run in. It is fixed per instance at construction and cannot be mixed.
type Precision int

const (
	// Double is hardware float64 (53-bit mantissa).
	Double Precision = iota
	// Extended is a 64-bit mantissa float, the x87 long-double width.
	Extended
	// Quad is a 113-bit mantissa float, the IEEE binary128 width.
	Quad
)

func (p Precision) String() string {
	switch p {
	case Double:
		return "double"
	case Extended:
		return "extended"
	case Quad:
		return "quad"
	default:
		return fmt.Sprintf("precision(%d)", int(p))
	}
}

// Bits returns the mantissa width in bits.
func (p Precision) Bits() int {
	switch p {
	case Double:
		return 53
	case Extended:
		return 64
	case Quad:
		return 113
	default:
		return 0
	}
}

// ParsePrecision maps a configuration string to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "double", "float64", "":
		return Double, nil
	case "extended", "long-double", "long double":
		return Extended, nil
	case "quad", "float128", "quadruple":
		return Quad, nil
	default:
		return Double, fmt.Errorf("%w: %q", dynamo.ErrUnsupportedPrecision, s)
	}
}

// Available reports whether this build can supply the given precision.
// All three named precisions are backed here (the wider ones by math/big),
// so only out-of-range values are unavailable.
func Available(p Precision) bool {
	switch p {
	case Double, Extended, Quad:
		return true
	default:
		return false
	}
}

// Validate returns a configuration error if p cannot be used.
func Validate(p Precision) error {
	if !Available(p) {
		return fmt.Errorf("%w: %s", dynamo.ErrUnsupportedPrecision, p)
	}
	return nil
}

// Epsilon returns the unit roundoff for a mantissa width: the spacing of
// representable values around 1.0.
func Epsilon(bits int) float64 {
	if bits <= 0 {
		return math.Ldexp(1, -52)
	}
	return math.Ldexp(1, 1-bits)
}

// RootTol returns the absolute width below which a bracketing interval is
// considered converged to a root, for a trigger polynomial of the given
// degree over a step of extent h.
func RootTol(eps float64, degree int, h float64) float64 {
	d := degree
	if d < 1 {
		d = 1
	}
	return 4 * float64(d) * eps * math.Abs(h)
}

// MergeTol returns the separation below which two roots are collapsed into
// one ambiguous root. It grows quadratically with degree: close roots of
// high-degree polynomials are where sign information degrades first.
func MergeTol(eps float64, degree int, h float64) float64 {
	d := float64(degree)
	if d*d < 64 {
		d = 8
	}
	return d * d * eps * math.Abs(h)
}

// DegeneracyEps returns the coefficient magnitude below which a polynomial
// is treated as identically zero over the step. scale is the largest
// coefficient magnitude of the state polynomials feeding the trigger, so
// the threshold is relative: a trigger that collapses to noise against its
// inputs reports no roots, while small-amplitude dynamics keep theirs.
func DegeneracyEps(eps float64, degree int, scale float64) float64 {
	d := degree
	if d < 1 {
		d = 1
	}
	if scale <= 0 {
		scale = 1
	}
	return float64(d) * eps * scale
}
