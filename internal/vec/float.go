package vec

import "math"

// Vec3F представляет точку или вектор в мировых координатах.
// В 2D-слоях компонента Z равна 0 и не участвует в выборке поля.
type Vec3F struct {
	X, Y, Z float64
}

// Add возвращает сумму векторов.
func (v Vec3F) Add(other Vec3F) Vec3F {
	return Vec3F{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub возвращает разность векторов.
func (v Vec3F) Sub(other Vec3F) Vec3F {
	return Vec3F{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale умножает вектор на скаляр.
func (v Vec3F) Scale(s float64) Vec3F {
	return Vec3F{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Neg возвращает вектор противоположного направления.
func (v Vec3F) Neg() Vec3F {
	return Vec3F{X: -v.X, Y: -v.Y, Z: -v.Z}
}

// Dot возвращает скалярное произведение.
func (v Vec3F) Dot(other Vec3F) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length возвращает длину вектора.
func (v Vec3F) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// DistanceTo вычисляет расстояние до другой точки.
func (v Vec3F) DistanceTo(other Vec3F) float64 {
	return v.Sub(other).Length()
}

// Min возвращает покомпонентный минимум.
func (v Vec3F) Min(other Vec3F) Vec3F {
	return Vec3F{
		X: math.Min(v.X, other.X),
		Y: math.Min(v.Y, other.Y),
		Z: math.Min(v.Z, other.Z),
	}
}

// Max возвращает покомпонентный максимум.
func (v Vec3F) Max(other Vec3F) Vec3F {
	return Vec3F{
		X: math.Max(v.X, other.X),
		Y: math.Max(v.Y, other.Y),
		Z: math.Max(v.Z, other.Z),
	}
}

// Abs возвращает покомпонентный модуль.
func (v Vec3F) Abs() Vec3F {
	return Vec3F{X: math.Abs(v.X), Y: math.Abs(v.Y), Z: math.Abs(v.Z)}
}

// Normalized возвращает вектор единичной длины.
// Нулевой вектор возвращается как есть.
func (v Vec3F) Normalized() Vec3F {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}
