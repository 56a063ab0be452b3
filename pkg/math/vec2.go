package math

// Vec2 is a 2D vector, used for texture coordinates.
type Vec2 struct {
	X, Y float32
}

// V2 builds a Vec2 from a [2]float32.
func V2(a [2]float32) Vec2 {
	return Vec2{a[0], a[1]}
}

// Array returns the components as a [2]float32.
func (v Vec2) Array() [2]float32 {
	return [2]float32{v.X, v.Y}
}

// Round6 rounds both components to six decimal digits.
func (v Vec2) Round6() Vec2 {
	return Vec2{Round6(v.X), Round6(v.Y)}
}
