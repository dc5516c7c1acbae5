package events_test

import (
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/poly"
	"github.com/san-kum/taysim/internal/precision"
)

var (
	ops   = precision.ForDouble()
	quiet = slog.New(slog.DiscardHandler)
)

// bddStep drives the scanner with hand-built dense output.
type bddStep struct {
	start float64
	h     float64
	polys []poly.Poly[float64]
}

func (s *bddStep) Start() float64 { return s.start }

func (s *bddStep) Extent() float64 { return s.h }

func (s *bddStep) Polys() []poly.Poly[float64] { return s.polys }

func (s *bddStep) StateAt(tau float64) []float64 {
	out := make([]float64, len(s.polys))
	for i, p := range s.polys {
		out[i] = p.Eval(ops, tau)
	}
	return out
}

func dense(c ...float64) poly.Poly[float64] {
	p := make(poly.Poly[float64], len(c))
	for i, v := range c {
		p[i] = v
	}
	return p
}

func parse(src string, vars []string) *expr.Expr {
	e, err := expr.Parse(src, vars)
	Expect(err).NotTo(HaveOccurred())
	return e
}

var _ = Describe("Detector", func() {
	var det *events.Detector[float64]
	vars := []string{"x", "v"}
	cb := func([]float64, float64) bool { return true }

	BeforeEach(func() {
		det = events.NewDetector(ops, vars, quiet)
	})

	It("rejects a descriptor without a trigger", func() {
		_, err := det.Register(events.Descriptor[float64]{Callback: cb})
		Expect(err).To(MatchError(dynamo.ErrBadDescriptor))
		Expect(det.Len()).To(BeZero())
	})

	It("rejects a trigger bound against foreign variables", func() {
		_, err := det.Register(events.Descriptor[float64]{
			Trigger:  parse("q", []string{"q"}),
			Callback: cb,
		})
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("assigns ids in registration order and never reuses them", func() {
		a, err := det.Register(events.Descriptor[float64]{Trigger: parse("x", vars), Callback: cb})
		Expect(err).NotTo(HaveOccurred())
		b, err := det.Register(events.Descriptor[float64]{Trigger: parse("v", vars), Callback: cb})
		Expect(err).NotTo(HaveOccurred())
		Expect(det.Unregister(a)).To(Succeed())

		c, err := det.Register(events.Descriptor[float64]{Trigger: parse("x - v", vars), Callback: cb})
		Expect(err).NotTo(HaveOccurred())
		Expect([]events.EventID{a, b, c}).To(Equal([]events.EventID{1, 2, 3}))
		Expect(det.Unregister(a)).To(MatchError(dynamo.ErrUnknownEvent))
	})

	It("lists registered events in id order", func() {
		_, err := det.Register(events.Descriptor[float64]{
			Name: "apex", Trigger: parse("v", vars), Callback: cb,
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = det.Register(events.Descriptor[float64]{
			Name: "stop", Trigger: parse("t - 5", vars), Kind: events.Terminal,
		})
		Expect(err).NotTo(HaveOccurred())

		sums := det.Summaries()
		Expect(sums).To(HaveLen(2))
		Expect(sums[0].Name).To(Equal("apex"))
		Expect(sums[1].Kind).To(Equal(events.Terminal))
	})
})

var _ = Describe("Scanner", func() {
	vars := []string{"x", "v"}

	// Degree-six jets of cos and -sin about zero: one oscillator step wide
	// enough to contain the first zero of x near pi/2.
	cosJet := dense(1, 0, -1.0/2, 0, 1.0/24, 0, -1.0/720)
	negSinJet := dense(0, -1, 0, 1.0/6, 0, -1.0/120, 0)

	newScanner := func(descs ...events.Descriptor[float64]) (*events.Detector[float64], *events.Scanner[float64]) {
		det := events.NewDetector(ops, vars, quiet)
		for _, d := range descs {
			_, err := det.Register(d)
			Expect(err).NotTo(HaveOccurred())
		}
		return det, events.NewScanner(det, quiet)
	}

	Context("over a harmonic oscillator step", func() {
		It("fires the position trigger at its falling zero", func() {
			var at []float64
			_, scn := newScanner(events.Descriptor[float64]{
				Name:      "descending-node",
				Trigger:   parse("x", vars),
				Direction: events.Negative,
				Callback: func(state []float64, tm float64) bool {
					at = append(at, tm, state[1])
					return true
				},
			})

			out, err := scn.Scan(&bddStep{start: 0, h: 2,
				polys: []poly.Poly[float64]{cosJet, negSinJet}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fired).To(HaveLen(1))
			Expect(out.Fired[0].Direction).To(Equal(events.Negative))
			Expect(out.Fired[0].Value).To(BeNumerically("~", 0, 1e-12))

			// Crossing near pi/2 with the velocity near its minimum.
			Expect(at[0]).To(BeNumerically("~", 1.5708, 5e-3))
			Expect(at[1]).To(BeNumerically("~", -1, 5e-3))
		})

		It("ignores the crossing when the filter wants it rising", func() {
			_, scn := newScanner(events.Descriptor[float64]{
				Trigger:   parse("x", vars),
				Direction: events.Positive,
				Callback:  func([]float64, float64) bool { return true },
			})
			out, err := scn.Scan(&bddStep{start: 0, h: 2,
				polys: []poly.Poly[float64]{cosJet, negSinJet}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fired).To(BeEmpty())
		})
	})

	Context("with a refractory window", func() {
		It("suppresses crossings until the window elapses", func() {
			fired := 0
			_, scn := newScanner(events.Descriptor[float64]{
				Trigger:  parse("x", vars),
				Cooldown: 1.0,
				Callback: func([]float64, float64) bool { fired++; return true },
			})

			step := func(t0, root float64) *bddStep {
				return &bddStep{start: t0, h: 1, polys: []poly.Poly[float64]{
					dense(-root, 1), dense(0),
				}}
			}

			out, err := scn.Scan(step(0, 0.5))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fired).To(HaveLen(1))

			out, err = scn.Scan(step(1, 0.0))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fired).To(BeEmpty(), "crossing at half the window stays quiet")

			out, err = scn.Scan(step(2, 0.5))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fired).To(HaveLen(1), "crossing past the window fires")
			Expect(fired).To(Equal(2))
		})
	})

	Context("with a terminal guard", func() {
		It("truncates the step and reports the disposition", func() {
			det, scn := newScanner(events.Descriptor[float64]{
				Name:        "wall",
				Trigger:     parse("t - 1", vars),
				Kind:        events.Terminal,
				Disposition: events.HaltAtStepStart,
			})

			out, err := scn.Scan(&bddStep{start: 0.5, h: 2,
				polys: []poly.Poly[float64]{dense(0, 1), dense(1)}})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Truncated()).To(BeTrue())
			Expect(*out.Terminal).To(Equal(det.Summaries()[0].ID))
			Expect(out.TruncatedAt).To(Equal(0.5))
			Expect(out.TerminalFiring.Time).To(Equal(1.0))
			Expect(out.Disposition).To(Equal(events.HaltAtStepStart))
		})
	})

	It("keeps outcomes identical across repeated scans", func() {
		scan := func() events.Outcome {
			_, scn := newScanner(events.Descriptor[float64]{
				Trigger:  parse("sin(x) - v/4", vars),
				Callback: func([]float64, float64) bool { return true },
			})
			out, err := scn.Scan(&bddStep{start: 0.1, h: 1.5,
				polys: []poly.Poly[float64]{cosJet, negSinJet}})
			Expect(err).NotTo(HaveOccurred())
			return out
		}
		first := scan()
		for i := 0; i < 3; i++ {
			Expect(scan()).To(Equal(first))
		}
	})
})
