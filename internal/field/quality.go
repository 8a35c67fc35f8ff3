// Package field содержит хранилище поля расстояний: квантование,
// настройки качества и чанковые массивы выборок с операциями
// объединения и вычитания на месте.
package field

import "math"

const (
	// MaxEncoded — максимальное закодированное значение. Чётное,
	// чтобы Encode(0) было точным и выполнялось тождество
	// Encode(d) + Encode(-d) == MaxEncoded.
	MaxEncoded = 254

	// HalfEncoded — закодированный ноль расстояния.
	HalfEncoded = MaxEncoded / 2

	// Margin — кольцо выборок вокруг номинальной области чанка.
	// Соседние чанки разделяют граничные выборки и потому согласны
	// в градиентах на общей грани.
	Margin = 1
)

// Quality задаёт параметры решётки слоя. Неизменяемо после привязки
// первого чанка.
type Quality struct {
	// ChunkSize — мировой размер ребра чанка.
	ChunkSize float64 `yaml:"chunk_size"`

	// ChunkResolution — число выборок на ребро без учёта полей.
	ChunkResolution int `yaml:"chunk_resolution"`

	// MaxDistance — предел квантования: расстояния дальше не
	// записываются.
	MaxDistance float64 `yaml:"max_distance"`
}

// UnitSize возвращает мировое расстояние между соседними выборками.
func (q Quality) UnitSize() float64 {
	return q.ChunkSize / float64(q.ChunkResolution)
}

// ArraySize возвращает число выборок на ось с учётом полей и
// замыкающей выборки на дальней границе.
func (q Quality) ArraySize() int {
	return q.ChunkResolution + 2*Margin + 1
}

// Encode квантует знаковое расстояние в байт. Монотонно, насыщается
// вне [-MaxDistance, MaxDistance]. math.Round нечётна относительно
// нуля, поэтому Encode(d) + Encode(-d) == MaxEncoded точно.
func (q Quality) Encode(d float64) uint8 {
	if d >= q.MaxDistance {
		return MaxEncoded
	}
	if d <= -q.MaxDistance {
		return 0
	}
	return uint8(HalfEncoded + int(math.Round(float64(HalfEncoded)*d/q.MaxDistance)))
}

// Decode восстанавливает расстояние из байта с точностью до одного
// шага квантования.
func (q Quality) Decode(v uint8) float64 {
	return float64(int(v)-HalfEncoded) * q.MaxDistance / float64(HalfEncoded)
}
