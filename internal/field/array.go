package field

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/annel0/sdf-world/internal/engine"
	"github.com/annel0/sdf-world/internal/sdf"
	"github.com/annel0/sdf-world/internal/vec"
)

// SampleArray хранит плотную решётку квантованных расстояний одного
// чанка. Меньшее закодированное значение означает «глубже внутри»,
// поэтому объединение — это min, а вычитание — max с дополнением.
// Размерность — значение: 2 сжимает ось Z до одной выборки.
type SampleArray struct {
	quality Quality
	dims    int
	size    int
	sizeZ   int
	samples []byte

	// Счётчик модификаций читается главным потоком, пока мутации
	// идут в фоне, поэтому атомарен.
	modCount atomic.Int64
}

// NewSampleArray создаёт массив, заполненный пустым полем MaxEncoded.
func NewSampleArray(quality Quality, dims int) *SampleArray {
	if dims != 2 && dims != 3 {
		panic(fmt.Sprintf("field: недопустимая размерность %d", dims))
	}
	size := quality.ArraySize()
	sizeZ := 1
	if dims == 3 {
		sizeZ = size
	}
	a := &SampleArray{
		quality: quality,
		dims:    dims,
		size:    size,
		sizeZ:   sizeZ,
		samples: make([]byte, size*size*sizeZ),
	}
	for i := range a.samples {
		a.samples[i] = MaxEncoded
	}
	return a
}

// Quality возвращает параметры решётки массива.
func (a *SampleArray) Quality() Quality { return a.quality }

// Dims возвращает размерность массива: 2 или 3.
func (a *SampleArray) Dims() int { return a.dims }

// ModificationCount возвращает счётчик успешных мутаций.
func (a *SampleArray) ModificationCount() int64 { return a.modCount.Load() }

// Samples возвращает сырые байты выборок. Вызывающий не должен
// изменять их и обязан соблюдать дисциплину владения чанка.
func (a *SampleArray) Samples() []byte { return a.samples }

// At возвращает выборку по индексам осей. Для двумерных массивов
// z обязан быть нулевым.
func (a *SampleArray) At(x, y, z int) uint8 {
	return a.samples[a.index(x, y, z)]
}

func (a *SampleArray) index(x, y, z int) int {
	return (z*a.size+y)*a.size + x
}

// sampleRange переводит мировые границы фигуры в индексы выборок:
// floor для минимума, ceil для максимума, с зажимом в пределы
// массива. Пустые границы покрывают весь массив.
func (a *SampleArray) sampleRange(bounds vec.Box) (x0, y0, z0, x1, y1, z1 int, ok bool) {
	if bounds.IsEmpty() {
		return 0, 0, 0, a.size - 1, a.size - 1, a.sizeZ - 1, true
	}
	unit := a.quality.UnitSize()
	rx0 := int(math.Floor(bounds.Min.X/unit)) + Margin
	ry0 := int(math.Floor(bounds.Min.Y/unit)) + Margin
	rx1 := int(math.Ceil(bounds.Max.X/unit)) + Margin
	ry1 := int(math.Ceil(bounds.Max.Y/unit)) + Margin
	rz0, rz1 := 0, 0
	if a.dims == 3 {
		rz0 = int(math.Floor(bounds.Min.Z/unit)) + Margin
		rz1 = int(math.Ceil(bounds.Max.Z/unit)) + Margin
	}
	// Границы целиком вне массива означают отсутствие работы,
	// зажим индексов не должен втянуть их внутрь.
	if rx1 < 0 || rx0 >= a.size || ry1 < 0 || ry0 >= a.size || rz1 < 0 || rz0 >= a.sizeZ {
		return 0, 0, 0, 0, 0, 0, false
	}
	x0 = clampIndex(rx0, a.size)
	y0 = clampIndex(ry0, a.size)
	x1 = clampIndex(rx1, a.size)
	y1 = clampIndex(ry1, a.size)
	z0 = clampIndex(rz0, a.sizeZ)
	z1 = clampIndex(rz1, a.sizeZ)
	return x0, y0, z0, x1, y1, z1, true
}

func clampIndex(i, size int) int {
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}

// Add выполняет объединение с фигурой: для каждой выборки в пересечении
// границ фигуры с областью массива заменяет значение на
// min(текущее, encode(s)), если s < MaxDistance. Возвращает true,
// если хоть одна выборка изменилась.
func (a *SampleArray) Add(shape sdf.Shape) bool {
	changed := a.apply(shape, func(stored uint8, s float64) (uint8, bool) {
		e := a.quality.Encode(s)
		if e < stored {
			return e, true
		}
		return stored, false
	})
	if changed {
		a.modCount.Add(1)
	}
	return changed
}

// Subtract выполняет вычитание фигуры: симметрично Add, значение
// заменяется на max(текущее, MaxEncoded - encode(s)).
func (a *SampleArray) Subtract(shape sdf.Shape) bool {
	changed := a.apply(shape, func(stored uint8, s float64) (uint8, bool) {
		e := MaxEncoded - a.quality.Encode(s)
		if e > stored {
			return e, true
		}
		return stored, false
	})
	if changed {
		a.modCount.Add(1)
	}
	return changed
}

func (a *SampleArray) apply(shape sdf.Shape, merge func(stored uint8, s float64) (uint8, bool)) bool {
	x0, y0, z0, x1, y1, z1, ok := a.sampleRange(shape.Bounds())
	if !ok {
		return false
	}
	unit := a.quality.UnitSize()
	changed := false
	for z := z0; z <= z1; z++ {
		pz := 0.0
		if a.dims == 3 {
			pz = float64(z-Margin) * unit
		}
		for y := y0; y <= y1; y++ {
			py := float64(y-Margin) * unit
			row := (z*a.size + y) * a.size
			for x := x0; x <= x1; x++ {
				px := float64(x-Margin) * unit
				s := shape.Sample(vec.Vec3F{X: px, Y: py, Z: pz})
				if s >= a.quality.MaxDistance {
					continue
				}
				if v, hit := merge(a.samples[row+x], s); hit {
					a.samples[row+x] = v
					changed = true
				}
			}
		}
	}
	return changed
}

// Clear заполняет массив сплошным полем (0) либо пустым (MaxEncoded).
// Счётчик модификаций увеличивается безусловно.
func (a *SampleArray) Clear(solid bool) {
	v := byte(MaxEncoded)
	if solid {
		v = 0
	}
	for i := range a.samples {
		a.samples[i] = v
	}
	a.modCount.Add(1)
}

// Grid возвращает описание решётки для писателя мешей: сырые байты,
// базовый индекс с учётом полей и шаги по осям.
func (a *SampleArray) Grid() engine.Grid {
	return engine.Grid{
		Samples:     a.samples,
		SizeX:       a.size,
		SizeY:       a.size,
		SizeZ:       a.sizeZ,
		Base:        a.index(Margin, Margin, min(Margin, a.sizeZ-1)),
		StrideX:     1,
		StrideY:     a.size,
		StrideZ:     a.size * a.size,
		UnitSize:    a.quality.UnitSize(),
		MaxDistance: a.quality.MaxDistance,
	}
}

// WriteTo передаёт решётку внешнему писателю мешей.
func (a *SampleArray) WriteTo(ctx context.Context, w engine.MeshWriter, resource string) (*engine.MeshResult, error) {
	return w.WriteTo(ctx, a.Grid(), resource)
}

// Equal сравнивает выборки двух массивов побайтно.
func (a *SampleArray) Equal(other *SampleArray) bool {
	return a.dims == other.dims && bytes.Equal(a.samples, other.samples)
}
