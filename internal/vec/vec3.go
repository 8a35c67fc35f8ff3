package vec

import "fmt"

// Vec3 представляет целочисленный индекс чанка в решётке мира.
// Для 2D-слоёв компонента Z всегда равна 0.
type Vec3 struct {
	X, Y, Z int
}

// Add возвращает покомпонентную сумму.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale умножает каждую компоненту на скаляр и возвращает float-вектор.
// Используется для перевода ключа чанка в мировые координаты (key * chunk_size).
func (v Vec3) Scale(s float64) Vec3F {
	return Vec3F{X: float64(v.X) * s, Y: float64(v.Y) * s, Z: float64(v.Z) * s}
}

// String возвращает читаемое представление индекса.
func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
