// Package race implements the horse race model: acceleration curves, the
// step-integrated motion model, race generation, the race lifecycle state
// machine, and winner determination.
package race

import "math"

// Family tags an acceleration curve shape.
type Family string

const (
	Const  Family = "const"
	Linear Family = "linear"
	Quad   Family = "quad"
	Log    Family = "log"
	Exp    Family = "exp"
)

// Families lists every curve family in generation order.
var Families = []Family{Const, Linear, Quad, Log, Exp}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// Params holds the family-specific curve coefficients. Unused coefficients
// are zero and omitted from JSON.
type Params struct {
	A float64 `json:"a,omitempty"`
	B float64 `json:"b,omitempty"`
	C float64 `json:"c,omitempty"`
	K float64 `json:"k,omitempty"`
}

// Curve is an acceleration function of elapsed race time.
type Curve struct {
	Family Family `json:"curveFamily"`
	Params Params `json:"curveParams"`
}

// AccelerationAt evaluates the curve at t seconds after the race start.
//
// Postcondition: the result is >= 0. Unknown families accelerate at 0.
func (c Curve) AccelerationAt(t float64) float64 {
	p := c.Params
	var a float64
	switch c.Family {
	case Const:
		a = p.C
	case Linear:
		a = p.A*t + p.B
	case Quad:
		a = p.A*t*t + p.B*t + p.C
	case Log:
		a = p.A*math.Log1p(t) + p.B
	case Exp:
		a = p.A*math.Exp(p.K*t) + p.B
	}
	return math.Max(0, a)
}

// EntitySpec is one horse: its id and its acceleration curve.
type EntitySpec struct {
	ID int `json:"id"`
	Curve
}
