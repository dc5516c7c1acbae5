package poly

import (
	"math"
	"testing"

	"github.com/san-kum/taysim/internal/precision"
)

func TestEvalHorner(t *testing.T) {
	ops := precision.ForDouble()
	p := Poly[float64]{1, -2, 3} // 1 - 2t + 3t^2

	got := p.Eval(ops, 2.0)
	want := 1.0 - 2.0*2.0 + 3.0*4.0
	if got != want {
		t.Errorf("Eval(2) = %v, want %v", got, want)
	}

	if v := (Poly[float64]{}).Eval(ops, 1.0); v != 0 {
		t.Errorf("empty polynomial evaluated to %v, want 0", v)
	}
}

func TestDerivative(t *testing.T) {
	ops := precision.ForDouble()
	p := Poly[float64]{1, -2, 3, 5}

	d := p.Derivative(ops)
	want := Poly[float64]{-2, 6, 15}
	if len(d) != len(want) {
		t.Fatalf("derivative length %d, want %d", len(d), len(want))
	}
	for i := range want {
		if d[i] != want[i] {
			t.Errorf("derivative coef %d = %v, want %v", i, d[i], want[i])
		}
	}

	c := Poly[float64]{7}
	if dc := c.Derivative(ops); len(dc) != 1 || dc[0] != 0 {
		t.Errorf("constant derivative = %v, want [0]", dc)
	}
}

func TestReflect(t *testing.T) {
	ops := precision.ForDouble()
	p := Poly[float64]{0.5, -1.25, 2, -3}
	r := p.Reflect(ops)

	for _, x := range []float64{0, 0.1, 0.5, 1.0, 2.5} {
		if got, want := r.Eval(ops, x), p.Eval(ops, -x); got != want {
			t.Errorf("reflect eval at %v = %v, want %v", x, got, want)
		}
	}
}

func TestSeriesAddSubScale(t *testing.T) {
	ops := precision.ForDouble()
	a := Poly[float64]{1, 2}
	b := Poly[float64]{3, 4, 5}

	sum := Add(ops, a, b)
	for i, want := range []float64{4, 6, 5} {
		if sum[i] != want {
			t.Errorf("add coef %d = %v, want %v", i, sum[i], want)
		}
	}

	diff := Sub(ops, a, b)
	for i, want := range []float64{-2, -2, -5} {
		if diff[i] != want {
			t.Errorf("sub coef %d = %v, want %v", i, diff[i], want)
		}
	}

	sc := Scale(ops, b, 2.0)
	for i, want := range []float64{6, 8, 10} {
		if sc[i] != want {
			t.Errorf("scale coef %d = %v, want %v", i, sc[i], want)
		}
	}
}

func TestSeriesMulTruncates(t *testing.T) {
	ops := precision.ForDouble()
	a := Poly[float64]{1, 1} // 1 + t

	sq := Mul(ops, a, a, 2)
	for i, want := range []float64{1, 2, 1} {
		if sq[i] != want {
			t.Errorf("square coef %d = %v, want %v", i, sq[i], want)
		}
	}

	cut := Mul(ops, a, a, 1)
	if len(cut) != 2 || cut[0] != 1 || cut[1] != 2 {
		t.Errorf("truncated square = %v, want [1 2]", cut)
	}
}

func TestSeriesDiv(t *testing.T) {
	ops := precision.ForDouble()
	one := Poly[float64]{1}
	den := Poly[float64]{1, 1}

	// 1/(1+t) = 1 - t + t^2 - t^3
	q, ok := Div(ops, one, den, 3)
	if !ok {
		t.Fatal("series division reported failure for invertible denominator")
	}
	for i, want := range []float64{1, -1, 1, -1} {
		if math.Abs(q[i]-want) > 1e-15 {
			t.Errorf("quotient coef %d = %v, want %v", i, q[i], want)
		}
	}

	// Dividing back should recover the numerator.
	back := Mul(ops, q, den, 3)
	for i, want := range []float64{1, 0, 0, 0} {
		if math.Abs(back[i]-want) > 1e-15 {
			t.Errorf("roundtrip coef %d = %v, want %v", i, back[i], want)
		}
	}

	if _, ok := Div(ops, one, Poly[float64]{0, 1}, 3); ok {
		t.Error("series division accepted a zero constant term")
	}
}

func TestFiniteAndMaxAbs(t *testing.T) {
	ops := precision.ForDouble()

	p := Poly[float64]{1, -4, 2}
	if !p.Finite(ops) {
		t.Error("finite polynomial reported nonfinite")
	}
	if m := p.MaxAbs(ops); m != 4 {
		t.Errorf("MaxAbs = %v, want 4", m)
	}

	bad := Poly[float64]{1, math.NaN()}
	if bad.Finite(ops) {
		t.Error("NaN coefficient reported finite")
	}
	inf := Poly[float64]{math.Inf(1)}
	if inf.Finite(ops) {
		t.Error("Inf coefficient reported finite")
	}
}

func TestConstantSeries(t *testing.T) {
	ops := precision.ForDouble()
	c := Constant(ops, 3.5, 4)
	if len(c) != 5 {
		t.Fatalf("constant series length %d, want 5", len(c))
	}
	if c[0] != 3.5 {
		t.Errorf("constant term = %v, want 3.5", c[0])
	}
	for i := 1; i < 5; i++ {
		if c[i] != 0 {
			t.Errorf("coef %d = %v, want 0", i, c[i])
		}
	}
}
