package math

import "strconv"

// Precision is the number of decimal digits kept by Round6.
const Precision = 6

// Round6 rounds f to six decimal digits.
//
// The value is rounded through its shortest decimal form in float64, so the
// result is the correctly rounded decimal (ties resolved on the exact binary
// value) and identical for identical inputs on every platform.
func Round6(f float32) float32 {
	return float32(round6(float64(f)))
}

func round6(f float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', Precision, 64), 64)
	if err != nil {
		// NaN and Inf format to strings ParseFloat accepts, so this is unreachable
		// for any float64 input.
		return f
	}
	return r
}

// FlipV rounds a texture coordinate to six decimal digits and converts it from
// a bottom-left origin to a top-left origin (v' = 1 - v).
func FlipV(uv Vec2) Vec2 {
	return Vec2{
		X: Round6(uv.X),
		Y: float32(1.0 - round6(float64(uv.Y))),
	}
}
