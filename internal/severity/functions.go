package severity

// The Function family decodes a raw sample into a plain bool or float,
// upstream of the limits in limits.go.

// AllBitNotSetFunction reports whether none of Mask's bits are set in x.
// Used to decode the nine named interlock booleans from the raw hardware
// status word.
type AllBitNotSetFunction struct {
	Mask uint64
}

func (f AllBitNotSetFunction) Evaluate(x uint64) bool { return x&f.Mask == 0 }

// AnyBitSetFunction reports whether any of Mask's bits are set in x.
type AnyBitSetFunction struct {
	Mask uint64
}

func (f AnyBitSetFunction) Evaluate(x uint64) bool { return x&f.Mask != 0 }

// AllBitSetFunction reports whether every bit of Mask is set in x.
type AllBitSetFunction struct {
	Mask uint64
}

func (f AllBitSetFunction) Evaluate(x uint64) bool { return x&f.Mask == f.Mask }

// AnyBitNotSetFunction reports whether any bit of Mask is clear in x.
type AnyBitNotSetFunction struct {
	Mask uint64
}

func (f AnyBitNotSetFunction) Evaluate(x uint64) bool { return x&f.Mask != f.Mask }

// LinearFunction evaluates m*x + b. Used for the mixing-valve
// percent<->commanded-value calibration.
type LinearFunction struct {
	M, B float64
}

func (f LinearFunction) Evaluate(x float64) float64 { return f.M*x + f.B }

// LinearFromTwoPoints builds a LinearFunction that maps x1->y1, x2->y2,
// the same way the mixing-valve settings build their two calibration
// maps from four configured fixed points.
func LinearFromTwoPoints(x1, y1, x2, y2 float64) LinearFunction {
	if x2 == x1 {
		return LinearFunction{M: 0, B: y1}
	}
	m := (y2 - y1) / (x2 - x1)
	return LinearFunction{M: m, B: y1 - m*x1}
}
