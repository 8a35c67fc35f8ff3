package sdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sdf-world/internal/vec"
)

func TestSphere_Sample(t *testing.T) {
	// Тест точного знакового расстояния до сферы
	s := Sphere{Center: vec.Vec3F{X: 1, Y: 2, Z: 3}, Radius: 2}

	assert.InDelta(t, -2.0, s.Sample(s.Center), 1e-12, "в центре расстояние равно -радиусу")
	assert.InDelta(t, 0.0, s.Sample(vec.Vec3F{X: 3, Y: 2, Z: 3}), 1e-12, "на границе расстояние нулевое")
	assert.InDelta(t, 3.0, s.Sample(vec.Vec3F{X: 6, Y: 2, Z: 3}), 1e-12, "снаружи расстояние положительное")
}

func TestBox_SampleAndBounds(t *testing.T) {
	// Тест знакового расстояния и границ параллелепипеда
	b := NewBox(vec.Vec3F{X: -1, Y: -1, Z: -1}, vec.Vec3F{X: 1, Y: 1, Z: 1})

	assert.InDelta(t, -1.0, b.Sample(vec.Vec3F{}), 1e-12, "в центре расстояние равно -полуразмеру")
	assert.InDelta(t, 1.0, b.Sample(vec.Vec3F{X: 2, Y: 0, Z: 0}), 1e-12, "снаружи по оси расстояние до грани")
	corner := b.Sample(vec.Vec3F{X: 2, Y: 2, Z: 2})
	assert.InDelta(t, math.Sqrt(3), corner, 1e-12, "у угла расстояние евклидово")

	bounds := b.Bounds()
	assert.Equal(t, vec.Vec3F{X: -1, Y: -1, Z: -1}, bounds.Min, "минимум границ")
	assert.Equal(t, vec.Vec3F{X: 1, Y: 1, Z: 1}, bounds.Max, "максимум границ")
}

func TestCapsule_Sample(t *testing.T) {
	// Тест расстояния до капсулы вдоль отрезка и за его концами
	c := Capsule{A: vec.Vec3F{X: 0, Y: 0, Z: 0}, B: vec.Vec3F{X: 4, Y: 0, Z: 0}, Radius: 1}

	assert.InDelta(t, -1.0, c.Sample(vec.Vec3F{X: 2, Y: 0, Z: 0}), 1e-12, "на оси внутри")
	assert.InDelta(t, 1.0, c.Sample(vec.Vec3F{X: 2, Y: 2, Z: 0}), 1e-12, "сбоку от оси")
	assert.InDelta(t, 1.0, c.Sample(vec.Vec3F{X: 6, Y: 0, Z: 0}), 1e-12, "за концом отрезка")
}

func TestHalfSpace_Sample(t *testing.T) {
	// Тест полупространства с ненормированной нормалью
	h := NewHalfSpace(vec.Vec3F{X: 0, Y: 0, Z: 5}, vec.Vec3F{X: 0, Y: 0, Z: 2})

	assert.InDelta(t, -2.0, h.Sample(vec.Vec3F{}), 1e-12, "ниже плоскости внутри")
	assert.InDelta(t, 1.0, h.Sample(vec.Vec3F{X: 7, Y: -3, Z: 3}), 1e-12, "выше плоскости снаружи")
	assert.True(t, h.Bounds().IsEmpty(), "полупространство бесконечно")
}

func TestDisc_IgnoresZ(t *testing.T) {
	// Тест двумерного круга: координата Z не влияет на выборку
	d := Disc{Center: vec.Vec3F{X: 1, Y: 1}, Radius: 3}

	a := d.Sample(vec.Vec3F{X: 5, Y: 1, Z: 0})
	b := d.Sample(vec.Vec3F{X: 5, Y: 1, Z: 100})
	assert.Equal(t, a, b, "выборка не зависит от Z")
	assert.InDelta(t, 1.0, a, 1e-12, "расстояние в плоскости XY")
}

func TestCellular_NeighbourSweep(t *testing.T) {
	// Тест клеточного шума: минимум по всем соседям, не только по своей ячейке
	c := Cellular{Seed: 7, CellSize: vec.Vec3F{X: 4, Y: 4, Z: 4}, DistanceOffset: 0}

	// Выборка около границы ячейки: ближайшая опорная точка может лежать
	// в соседней ячейке. Проверяем перебором большого окна.
	p := vec.Vec3F{X: 3.9, Y: 0.1, Z: 2.0}
	got := c.Sample(p)

	best := math.Inf(1)
	for dz := int32(-2); dz <= 2; dz++ {
		for dy := int32(-2); dy <= 2; dy++ {
			for dx := int32(-2); dx <= 2; dx++ {
				nx := int32(math.Floor(p.X/4)) + dx
				ny := int32(math.Floor(p.Y/4)) + dy
				nz := int32(math.Floor(p.Z/4)) + dz
				fx := (float64(nx) + cellFraction(7, nx, ny, nz)) * 4
				fy := (float64(ny) + cellFraction(7, ny, nz, nx)) * 4
				fz := (float64(nz) + cellFraction(7, nz, nx, ny)) * 4
				d := p.DistanceTo(vec.Vec3F{X: fx, Y: fy, Z: fz})
				if d < best {
					best = d
				}
			}
		}
	}
	assert.InDelta(t, best, got, 1e-12, "Sample находит глобально ближайшую опорную точку")
}

func TestCellular_Deterministic(t *testing.T) {
	// Тест детерминизма: одно семя — одинаковые значения
	a := Cellular{Seed: 42, CellSize: vec.Vec3F{X: 2, Y: 2, Z: 2}}
	b := Cellular{Seed: 42, CellSize: vec.Vec3F{X: 2, Y: 2, Z: 2}}
	c := Cellular{Seed: 43, CellSize: vec.Vec3F{X: 2, Y: 2, Z: 2}}

	p := vec.Vec3F{X: 1.3, Y: -2.7, Z: 0.5}
	assert.Equal(t, a.Sample(p), b.Sample(p), "одинаковое семя даёт одинаковый шум")
	assert.NotEqual(t, a.Sample(p), c.Sample(p), "разные семена дают разный шум")
}

func TestTranslate_SampleAndBounds(t *testing.T) {
	// Тест переноса: выборка в p равна выборке внутренней фигуры в p-offset
	s := Sphere{Radius: 1}
	offset := vec.Vec3F{X: 10, Y: 0, Z: 0}
	tr := Translate(offset, s)

	assert.InDelta(t, -1.0, tr.Sample(offset), 1e-12, "центр переносится вместе с фигурой")
	bounds := tr.Bounds()
	assert.Equal(t, vec.Vec3F{X: 9, Y: -1, Z: -1}, bounds.Min, "границы смещены")

	// Нулевое смещение не оборачивает фигуру
	assert.Equal(t, Shape(s), Translate(vec.Vec3F{}, s), "нулевой перенос возвращает фигуру как есть")
}

func TestIntersect_ClipsInfiniteBounds(t *testing.T) {
	// Тест пересечения: границы шума наследуются от конечной фигуры
	noise := Cellular{Seed: 1, CellSize: vec.Vec3F{X: 4, Y: 4, Z: 4}, DistanceOffset: 1}
	box := NewBox(vec.Vec3F{X: 0, Y: 0, Z: 0}, vec.Vec3F{X: 8, Y: 8, Z: 8})
	clipped := Intersect(noise, box)

	bounds := clipped.Bounds()
	assert.False(t, bounds.IsEmpty(), "пересечение с коробкой конечно")
	assert.Equal(t, box.Bounds(), bounds, "границы равны границам коробки")

	// Выборка равна максимуму составляющих
	p := vec.Vec3F{X: 4, Y: 4, Z: 4}
	assert.Equal(t, math.Max(noise.Sample(p), box.Sample(p)), clipped.Sample(p), "пересечение есть максимум")
}

func TestTransform_RotationZ(t *testing.T) {
	// Тест поворота: точка проходит через обратную матрицу
	s := Sphere{Center: vec.Vec3F{X: 4}, Radius: 1}
	rotated := Transform(RotationZ(math.Pi/2), s)

	// Центр сферы поворачивается из (4,0,0) в (0,4,0).
	assert.InDelta(t, -1.0, rotated.Sample(vec.Vec3F{Y: 4}), 1e-9, "центр повёрнут на 90°")
	assert.Greater(t, rotated.Sample(vec.Vec3F{X: 4}), 0.0, "исходное положение снаружи")

	bounds := rotated.Bounds()
	assert.InDelta(t, -1.0, bounds.Min.X, 1e-9, "границы повёрнуты")
	assert.InDelta(t, 5.0, bounds.Max.Y, 1e-9, "границы повёрнуты")
}

func TestTransform_TranslationAndIdentity(t *testing.T) {
	// Тест переноса через аффинную матрицу и тождества
	s := Sphere{Radius: 1}
	m := IdentityAffine()
	m.T = vec.Vec3F{X: 10}
	moved := Transform(m, s)

	assert.InDelta(t, -1.0, moved.Sample(vec.Vec3F{X: 10}), 1e-12, "перенос центра")
	assert.InDelta(t, s.Sample(vec.Vec3F{X: 1}), Transform(IdentityAffine(), s).Sample(vec.Vec3F{X: 1}),
		1e-12, "тождество не меняет выборку")

	// Вырожденная матрица недопустима
	assert.Panics(t, func() { Transform(Affine{}, s) }, "нулевая матрица вырождена")
}

func TestUnion_SampleAndBounds(t *testing.T) {
	// Тест объединения: минимум расстояний, объединённые границы
	a := Sphere{Center: vec.Vec3F{X: -2}, Radius: 1}
	b := Sphere{Center: vec.Vec3F{X: 2}, Radius: 1}
	u := Union{A: a, B: b}

	p := vec.Vec3F{X: -2}
	assert.InDelta(t, -1.0, u.Sample(p), 1e-12, "внутри первой фигуры")
	bounds := u.Bounds()
	assert.Equal(t, vec.Vec3F{X: -3, Y: -1, Z: -1}, bounds.Min, "минимум объединённых границ")
	assert.Equal(t, vec.Vec3F{X: 3, Y: 1, Z: 1}, bounds.Max, "максимум объединённых границ")
}

func TestRegistry_StableIndices(t *testing.T) {
	// Тест реестра: индексы назначаются по отсортированным именам
	FreezeRegistry()

	names := []string{
		"box", "box2d", "capsule", "capsule2d", "cellular", "cellular2d",
		"disc", "halfplane", "halfspace", "intersect", "perlin", "perlin2d",
		"sphere", "translate",
	}
	for i, name := range names {
		idx, ok := TypeIndex(name)
		require.True(t, ok, "вариант %q должен быть зарегистрирован", name)
		assert.Equal(t, uint32(i), idx, "индекс варианта %q стабилен", name)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	// Тест сериализации: фигура восстанавливается из байтов
	shapes := []Shape{
		Sphere{Center: vec.Vec3F{X: 1, Y: 2, Z: 3}, Radius: 4},
		NewBox(vec.Vec3F{X: -1, Y: -2, Z: -3}, vec.Vec3F{X: 1, Y: 2, Z: 3}),
		Capsule{A: vec.Vec3F{X: 0, Y: 0, Z: 0}, B: vec.Vec3F{X: 1, Y: 1, Z: 1}, Radius: 0.5},
		Cellular{Seed: 99, CellSize: vec.Vec3F{X: 4, Y: 4, Z: 4}, DistanceOffset: 2},
		Translate(vec.Vec3F{X: 5}, Disc{Center: vec.Vec3F{X: 1, Y: 1}, Radius: 3}),
		Intersect(
			Cellular2D{Seed: 1, CellSize: vec.Vec3F{X: 4, Y: 4}, DistanceOffset: 1},
			NewBox2D(vec.Vec3F{}, vec.Vec3F{X: 8, Y: 8}),
		),
	}

	for _, s := range shapes {
		data := EncodeShape(s)
		decoded, err := DecodeShape(data)
		require.NoError(t, err, "декодирование %q", s.TypeName())
		assert.Equal(t, s.TypeName(), decoded.TypeName(), "тип варианта сохраняется")

		p := vec.Vec3F{X: 0.7, Y: -1.3, Z: 2.1}
		assert.Equal(t, s.Sample(p), decoded.Sample(p), "выборка %q после восстановления", s.TypeName())
	}
}

func TestDecodeShape_UnknownIndex(t *testing.T) {
	// Тест ошибки протокола: неизвестный индекс варианта
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	_, err := DecodeShape(data)
	assert.Error(t, err, "неизвестный индекс должен вернуть ошибку")
}

func TestDecodeShape_TruncatedPayload(t *testing.T) {
	// Тест ошибки протокола: усечённая полезная нагрузка
	data := EncodeShape(Sphere{Radius: 1})
	_, err := DecodeShape(data[:len(data)-4])
	assert.Error(t, err, "усечённый буфер должен вернуть ошибку")
}

func TestPerlinNoise_RoundTrip(t *testing.T) {
	// Тест градиентного шума: детерминизм и восстановление генератора
	n := NewPerlinNoise(123, 0.1, 0.2, 10)
	p := vec.Vec3F{X: 3.5, Y: -1.25, Z: 7.75}

	data := EncodeShape(n)
	decoded, err := DecodeShape(data)
	require.NoError(t, err)
	assert.Equal(t, n.Sample(p), decoded.Sample(p), "генератор восстанавливается из семени")
	assert.True(t, n.Bounds().IsEmpty(), "шум бесконечен")
}
