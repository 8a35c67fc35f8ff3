package field

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sdf-world/internal/engine"
	"github.com/annel0/sdf-world/internal/sdf"
	"github.com/annel0/sdf-world/internal/vec"
)

func testQuality() Quality {
	return Quality{ChunkSize: 16, ChunkResolution: 16, MaxDistance: 4}
}

func TestQuality_EncodeSymmetry(t *testing.T) {
	// Тест тождества encode(d) + encode(-d) == MaxEncoded
	q := testQuality()
	for _, d := range []float64{0, 0.1, 0.5, 1, 1.7, 2.5, 3.99, 4, 100} {
		sum := int(q.Encode(d)) + int(q.Encode(-d))
		assert.Equal(t, MaxEncoded, sum, "симметрия нарушена при d=%v", d)
	}
}

func TestQuality_EncodeMonotonicSaturating(t *testing.T) {
	// Тест монотонности и насыщения квантования
	q := testQuality()

	assert.Equal(t, uint8(0), q.Encode(-10), "насыщение снизу")
	assert.Equal(t, uint8(MaxEncoded), q.Encode(10), "насыщение сверху")
	assert.Equal(t, uint8(HalfEncoded), q.Encode(0), "ноль кодируется точно")

	prev := q.Encode(-q.MaxDistance)
	for d := -q.MaxDistance; d <= q.MaxDistance; d += 0.01 {
		cur := q.Encode(d)
		assert.GreaterOrEqual(t, cur, prev, "encode монотонен при d=%v", d)
		prev = cur
	}
}

func TestQuality_DecodeInverse(t *testing.T) {
	// Тест обратимости encode/decode с точностью до одного шага
	q := testQuality()
	step := q.MaxDistance / float64(HalfEncoded)
	for _, d := range []float64{-3.5, -1.2, 0, 0.7, 2.9, 3.999} {
		got := q.Decode(q.Encode(d))
		assert.InDelta(t, d, got, step, "decode(encode(%v))", d)
	}
}

func TestSampleArray_EmptyField(t *testing.T) {
	// Тест начального состояния: пустое поле MaxEncoded
	a := NewSampleArray(testQuality(), 3)
	size := testQuality().ArraySize()
	assert.Equal(t, size*size*size, len(a.Samples()), "размер трёхмерного массива")
	for _, v := range a.Samples() {
		if v != MaxEncoded {
			t.Fatalf("массив должен быть заполнен MaxEncoded, найдено %d", v)
		}
	}
	assert.Equal(t, int64(0), a.ModificationCount(), "счётчик начинается с нуля")

	b := NewSampleArray(testQuality(), 2)
	assert.Equal(t, size*size, len(b.Samples()), "размер двумерного массива")
}

func TestSampleArray_AddSphere(t *testing.T) {
	// Тест объединения со сферой в центре чанка
	q := testQuality()
	a := NewSampleArray(q, 3)
	center := vec.Vec3F{X: 8, Y: 8, Z: 8}
	changed := a.Add(sdf.Sphere{Center: center, Radius: 5})

	assert.True(t, changed, "добавление в пустое поле меняет выборки")
	assert.Equal(t, int64(1), a.ModificationCount(), "счётчик увеличился на один")

	// Выборка в центре сферы глубоко внутри
	ci := 8 + Margin
	v := a.At(ci, ci, ci)
	assert.LessOrEqual(t, q.Decode(v), 0.0, "центр сферы внутри поля")

	// Угловая выборка далеко от сферы не изменилась
	assert.Equal(t, uint8(MaxEncoded), a.At(0, 0, 0), "угол массива не затронут")
}

func TestSampleArray_AddIdempotent(t *testing.T) {
	// Тест идемпотентности: повторное добавление ничего не меняет
	a := NewSampleArray(testQuality(), 3)
	s := sdf.Sphere{Center: vec.Vec3F{X: 8, Y: 8, Z: 8}, Radius: 5}

	require.True(t, a.Add(s), "первое добавление меняет поле")
	snapshot := append([]byte(nil), a.Samples()...)
	count := a.ModificationCount()

	assert.False(t, a.Add(s), "повторное добавление не меняет поле")
	assert.Equal(t, snapshot, a.Samples(), "выборки побайтно совпадают")
	assert.Equal(t, count, a.ModificationCount(), "счётчик не увеличился")
}

func TestSampleArray_AddNeverRaises(t *testing.T) {
	// Тест монотонности объединения: add не увеличивает значения
	a := NewSampleArray(testQuality(), 3)
	a.Add(sdf.Sphere{Center: vec.Vec3F{X: 8, Y: 8, Z: 8}, Radius: 5})
	before := append([]byte(nil), a.Samples()...)

	a.Add(sdf.Sphere{Center: vec.Vec3F{X: 4, Y: 8, Z: 8}, Radius: 3})
	for i, v := range a.Samples() {
		if v > before[i] {
			t.Fatalf("add увеличил выборку %d: %d -> %d", i, before[i], v)
		}
	}
}

func TestSampleArray_SubtractRestoresEmpty(t *testing.T) {
	// Тест сценария добавить-затем-вычесть: поле возвращается к пустому
	q := testQuality()
	a := NewSampleArray(q, 3)
	s := sdf.Sphere{Center: vec.Vec3F{X: 8, Y: 8, Z: 8}, Radius: 5}

	require.True(t, a.Add(s), "добавление меняет поле")
	require.True(t, a.Subtract(s), "вычитание меняет поле")

	// Каждая выборка вернулась к MaxEncoded с точностью до одного шага
	for i, v := range a.Samples() {
		if int(v) < MaxEncoded-1 {
			t.Fatalf("выборка %d не вернулась к пустому полю: %d", i, v)
		}
	}

	// Повторное добавление снова сообщает об изменении
	assert.True(t, a.Add(s), "после вычитания добавление снова меняет поле")
}

func TestSampleArray_DisjointBoundsNoOp(t *testing.T) {
	// Тест инварианта: фигура вне массива не меняет ни байта
	a := NewSampleArray(testQuality(), 3)
	before := append([]byte(nil), a.Samples()...)
	count := a.ModificationCount()

	far := sdf.Sphere{Center: vec.Vec3F{X: 1000, Y: 1000, Z: 1000}, Radius: 5}
	assert.False(t, a.Add(far), "далёкая фигура не меняет поле")
	assert.False(t, a.Subtract(far), "далёкое вычитание не меняет поле")
	assert.Equal(t, before, a.Samples(), "массив побайтно неизменен")
	assert.Equal(t, count, a.ModificationCount(), "счётчик не увеличился")
}

func TestSampleArray_Clear(t *testing.T) {
	// Тест заливки: сплошное и пустое поле, счётчик растёт безусловно
	a := NewSampleArray(testQuality(), 2)

	a.Clear(true)
	assert.Equal(t, int64(1), a.ModificationCount(), "clear увеличивает счётчик")
	for _, v := range a.Samples() {
		if v != 0 {
			t.Fatalf("сплошное поле должно быть нулевым, найдено %d", v)
		}
	}

	a.Clear(false)
	assert.Equal(t, int64(2), a.ModificationCount(), "повторный clear тоже увеличивает")
	for _, v := range a.Samples() {
		if v != MaxEncoded {
			t.Fatalf("пустое поле должно быть MaxEncoded, найдено %d", v)
		}
	}
}

func TestSampleArray_CellularClipping(t *testing.T) {
	// Тест ограничения шума: внутри коробки шум, снаружи поле нетронуто
	q := testQuality()
	a := NewSampleArray(q, 2)
	noise := sdf.Cellular2D{Seed: 1, CellSize: vec.Vec3F{X: 4, Y: 4}, DistanceOffset: 2}
	box := sdf.NewBox2D(vec.Vec3F{X: 4, Y: 4}, vec.Vec3F{X: 12, Y: 12})
	clipped := sdf.Intersect(noise, box)

	require.True(t, a.Add(clipped), "шум внутри коробки меняет поле")

	// Посещаются только выборки в границах пересечения: индексы
	// floor(4/unit)+margin .. ceil(12/unit)+margin.
	unit := q.UnitSize()
	lo := int(4/unit) + Margin
	hi := int(12/unit) + Margin
	for y := 0; y < q.ArraySize(); y++ {
		for x := 0; x < q.ArraySize(); x++ {
			px := float64(x-Margin) * unit
			py := float64(y-Margin) * unit
			v := a.At(x, y, 0)
			if x < lo || x > hi || y < lo || y > hi {
				assert.Equal(t, uint8(MaxEncoded), v, "выборка (%d,%d) вне коробки нетронута", x, y)
				continue
			}
			s := clipped.Sample(vec.Vec3F{X: px, Y: py})
			if s >= q.MaxDistance {
				assert.Equal(t, uint8(MaxEncoded), v, "далёкая выборка (%d,%d) нетронута", x, y)
			} else {
				assert.Equal(t, q.Encode(s), v, "выборка (%d,%d) отражает шум", x, y)
			}
		}
	}
}

func TestSampleArray_TwoDimensionalIgnoresZ(t *testing.T) {
	// Тест двумерного массива: одна плоскость, выборка в z=0
	q := testQuality()
	a := NewSampleArray(q, 2)
	require.True(t, a.Add(sdf.Disc{Center: vec.Vec3F{X: 8, Y: 8}, Radius: 5}))

	ci := 8 + Margin
	assert.LessOrEqual(t, q.Decode(a.At(ci, ci, 0)), 0.0, "центр диска внутри поля")
}

func TestSampleArray_ReplayDeterminism(t *testing.T) {
	// Тест детерминизма: одинаковый журнал даёт побайтно равные массивы
	build := func() *SampleArray {
		a := NewSampleArray(testQuality(), 3)
		a.Add(sdf.Sphere{Center: vec.Vec3F{X: 8, Y: 8, Z: 8}, Radius: 6})
		a.Subtract(sdf.NewBox(vec.Vec3F{X: 6, Y: 6, Z: 6}, vec.Vec3F{X: 10, Y: 10, Z: 10}))
		a.Add(sdf.Capsule{A: vec.Vec3F{X: 0, Y: 8, Z: 8}, B: vec.Vec3F{X: 16, Y: 8, Z: 8}, Radius: 2})
		return a
	}
	assert.True(t, build().Equal(build()), "повторы журнала сходятся побайтно")
}

func TestSampleArray_GridForWriter(t *testing.T) {
	// Тест решётки для писателя мешей: базовый индекс и шаги
	q := testQuality()
	a := NewSampleArray(q, 3)
	grid := a.Grid()
	size := q.ArraySize()

	assert.Equal(t, size, grid.SizeX)
	assert.Equal(t, size, grid.SizeZ)
	assert.Equal(t, 1, grid.StrideX)
	assert.Equal(t, size, grid.StrideY)
	assert.Equal(t, size*size, grid.StrideZ)
	assert.Equal(t, (Margin*size+Margin)*size+Margin, grid.Base, "база указывает на (margin,margin,margin)")
	assert.Equal(t, q.UnitSize(), grid.UnitSize)

	b := NewSampleArray(q, 2)
	grid2 := b.Grid()
	assert.Equal(t, 1, grid2.SizeZ, "двумерная решётка имеет одну плоскость")
	assert.Equal(t, Margin*size+Margin, grid2.Base, "база двумерной решётки без слагаемого Z")
}

func TestSampleArray_WriteToSurface(t *testing.T) {
	// Тест извлечения: эталонный писатель находит изоповерхность
	a := NewSampleArray(testQuality(), 3)
	require.True(t, a.Add(sdf.Sphere{Center: vec.Vec3F{X: 8, Y: 8, Z: 8}, Radius: 5}))

	w := engine.NewSurfaceWriter()
	result, err := a.WriteTo(context.Background(), w, "terrain")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Vertices, "сфера порождает вершины поверхности")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.WriteTo(cancelled, w, "terrain")
	assert.Error(t, err, "отменённый контекст прерывает извлечение")
}
