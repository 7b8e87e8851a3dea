package race

import "github.com/cory-johannsen/derby/internal/game/rng"

type coefRange struct{ lo, hi float64 }

// Coefficient ranges per family. All bounds are positive, so every generated
// curve accelerates forward.
var (
	constC  = coefRange{0.05, 0.09}
	linearA = coefRange{0.010, 0.018}
	linearB = coefRange{0.05, 0.08}
	quadA   = coefRange{0.0015, 0.0025}
	quadB   = coefRange{0.010, 0.018}
	quadC   = coefRange{0.05, 0.08}
	logA    = coefRange{0.08, 0.12}
	logB    = coefRange{0.04, 0.07}
	expA    = coefRange{0.03, 0.05}
	expK    = coefRange{0.9, 1.3}
	expB    = coefRange{0.03, 0.05}
)

// Generator draws curves from a Source.
type Generator struct {
	src rng.Source
}

// NewGenerator returns a Generator drawing from src.
//
// Precondition: src must be non-nil.
func NewGenerator(src rng.Source) *Generator {
	return &Generator{src: src}
}

func (g *Generator) draw(r coefRange) float64 {
	return rng.Between(g.src, r.lo, r.hi)
}

// Curve draws a family uniformly, then its coefficients.
func (g *Generator) Curve() Curve {
	f := Families[g.src.Intn(len(Families))]
	var p Params
	switch f {
	case Const:
		p.C = g.draw(constC)
	case Linear:
		p.A = g.draw(linearA)
		p.B = g.draw(linearB)
	case Quad:
		p.A = g.draw(quadA)
		p.B = g.draw(quadB)
		p.C = g.draw(quadC)
	case Log:
		p.A = g.draw(logA)
		p.B = g.draw(logB)
	case Exp:
		p.A = g.draw(expA)
		p.K = g.draw(expK)
		p.B = g.draw(expB)
	}
	return Curve{Family: f, Params: p}
}

// Specs generates n entities with ids 1..n.
func (g *Generator) Specs(n int) []EntitySpec {
	out := make([]EntitySpec, n)
	for i := range out {
		out[i] = EntitySpec{ID: i + 1, Curve: g.Curve()}
	}
	return out
}

// ShuffleExcept Fisher-Yates shuffles the curves of every entity other than
// keep and returns the new curve for each of them, keyed by id.
func (g *Generator) ShuffleExcept(entities []EntitySpec, keep int) map[int]Curve {
	var ids []int
	var bag []Curve
	for _, e := range entities {
		if e.ID == keep {
			continue
		}
		ids = append(ids, e.ID)
		bag = append(bag, e.Curve)
	}
	for i := len(bag) - 1; i > 0; i-- {
		j := g.src.Intn(i + 1)
		bag[i], bag[j] = bag[j], bag[i]
	}
	out := make(map[int]Curve, len(ids))
	for i, id := range ids {
		out[id] = bag[i]
	}
	return out
}
