package sdf

import (
	"math"

	"github.com/annel0/sdf-world/internal/protocol"
	"github.com/annel0/sdf-world/internal/vec"
)

func init() {
	Register("translate", readTranslated)
	Register("intersect", readIntersection)
}

// Translated смещает внутреннюю фигуру на Offset. Используется чанками
// для перевода фигуры из мировых координат в локальные.
type Translated struct {
	Offset vec.Vec3F
	Inner  Shape
}

// Translate оборачивает фигуру смещением. Нулевое смещение не
// оборачивается.
func Translate(offset vec.Vec3F, inner Shape) Shape {
	if offset == (vec.Vec3F{}) {
		return inner
	}
	return Translated{Offset: offset, Inner: inner}
}

// Sample возвращает выборку внутренней фигуры в точке p - Offset.
func (t Translated) Sample(p vec.Vec3F) float64 {
	return t.Inner.Sample(p.Sub(t.Offset))
}

// Bounds возвращает смещённые границы внутренней фигуры.
// Пустые границы остаются пустыми.
func (t Translated) Bounds() vec.Box {
	return t.Inner.Bounds().Translate(t.Offset)
}

// TypeName возвращает каноническое имя варианта.
func (t Translated) TypeName() string { return "translate" }

// WritePayload сериализует смещение и внутреннюю фигуру рекурсивно.
func (t Translated) WritePayload(w *protocol.Writer) {
	writeVec(w, t.Offset)
	WriteShape(w, t.Inner)
}

func readTranslated(r *protocol.Reader) (Shape, error) {
	offset := readVec(r)
	inner, err := ReadShape(r)
	if err != nil {
		return nil, err
	}
	return Translated{Offset: offset, Inner: inner}, nil
}

// Intersection задаёт пересечение двух фигур: максимум расстояний.
// Результат консервативен, но точен на границе более глубокой фигуры.
type Intersection struct {
	A, B Shape
}

// Intersect строит пересечение двух фигур. Основное применение:
// ограничение бесконечного шума конечной фигурой.
func Intersect(a, b Shape) Intersection {
	return Intersection{A: a, B: b}
}

// Sample возвращает максимум выборок обеих фигур.
func (i Intersection) Sample(p vec.Vec3F) float64 {
	return math.Max(i.A.Sample(p), i.B.Sample(p))
}

// Bounds возвращает пересечение границ. Пустые границы нейтральны:
// пересечение шума с коробкой наследует границы коробки.
func (i Intersection) Bounds() vec.Box {
	return i.A.Bounds().Intersect(i.B.Bounds())
}

// TypeName возвращает каноническое имя варианта.
func (i Intersection) TypeName() string { return "intersect" }

// WritePayload сериализует обе фигуры рекурсивно.
func (i Intersection) WritePayload(w *protocol.Writer) {
	WriteShape(w, i.A)
	WriteShape(w, i.B)
}

func readIntersection(r *protocol.Reader) (Shape, error) {
	a, err := ReadShape(r)
	if err != nil {
		return nil, err
	}
	b, err := ReadShape(r)
	if err != nil {
		return nil, err
	}
	return Intersection{A: a, B: b}, nil
}

// Union задаёт объединение двух фигур: минимум расстояний. Не входит в
// проводной реестр: объединение выражается двумя последовательными
// добавлениями, локальный тип служит вспомогательной алгеброй.
type Union struct {
	A, B Shape
}

// Sample возвращает минимум выборок обеих фигур.
func (u Union) Sample(p vec.Vec3F) float64 {
	return math.Min(u.A.Sample(p), u.B.Sample(p))
}

// Bounds возвращает объединение границ. Если хотя бы одна фигура
// бесконечна, объединение бесконечно.
func (u Union) Bounds() vec.Box {
	return u.A.Bounds().Union(u.B.Bounds())
}

// TypeName возвращает имя для диагностики; Union не регистрируется.
func (u Union) TypeName() string { return "union" }

// WritePayload не поддерживается: Union не входит в проводной реестр.
func (u Union) WritePayload(w *protocol.Writer) {
	panic("sdf: union не сериализуется, выразите его последовательными добавлениями")
}

// Affine — аффинное преобразование: линейная часть и перенос.
type Affine struct {
	M [3][3]float64
	T vec.Vec3F
}

// IdentityAffine возвращает тождественное преобразование.
func IdentityAffine() Affine {
	return Affine{M: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// RotationZ возвращает поворот вокруг оси Z на угол в радианах.
func RotationZ(rad float64) Affine {
	sin, cos := math.Sincos(rad)
	return Affine{M: [3][3]float64{{cos, -sin, 0}, {sin, cos, 0}, {0, 0, 1}}}
}

// Apply применяет преобразование к точке.
func (a Affine) Apply(p vec.Vec3F) vec.Vec3F {
	return vec.Vec3F{
		X: a.M[0][0]*p.X + a.M[0][1]*p.Y + a.M[0][2]*p.Z + a.T.X,
		Y: a.M[1][0]*p.X + a.M[1][1]*p.Y + a.M[1][2]*p.Z + a.T.Y,
		Z: a.M[2][0]*p.X + a.M[2][1]*p.Y + a.M[2][2]*p.Z + a.T.Z,
	}
}

func (a Affine) inverse() (Affine, bool) {
	m := a.M
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return Affine{}, false
	}
	inv := Affine{M: [3][3]float64{
		{(m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det},
		{(m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det},
		{(m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det},
	}}
	it := inv.Apply(vec.Vec3F{X: -a.T.X, Y: -a.T.Y, Z: -a.T.Z})
	inv.T = it
	return inv, true
}

// Transformed применяет аффинное преобразование к внутренней фигуре:
// выборка берётся в точке, пропущенной через обратную матрицу.
// Вспомогательная алгебра, не входит в реестр.
type Transformed struct {
	Inner   Shape
	Forward Affine
	inv     Affine
}

// Transform оборачивает фигуру преобразованием. Вырожденная матрица
// недопустима.
func Transform(m Affine, inner Shape) Transformed {
	inv, ok := m.inverse()
	if !ok {
		panic("sdf: вырожденная матрица преобразования")
	}
	return Transformed{Inner: inner, Forward: m, inv: inv}
}

// Sample возвращает выборку внутренней фигуры в обратно преобразованной
// точке. При неравномерном масштабе значение перестаёт быть точным
// расстоянием, но знак сохраняется.
func (t Transformed) Sample(p vec.Vec3F) float64 {
	return t.Inner.Sample(t.inv.Apply(p))
}

// Bounds возвращает AABB восьми преобразованных углов внутренних
// границ. Пустые границы остаются пустыми.
func (t Transformed) Bounds() vec.Box {
	inner := t.Inner.Bounds()
	if inner.IsEmpty() {
		return vec.Box{}
	}
	var out vec.Box
	first := true
	for i := 0; i < 8; i++ {
		corner := vec.Vec3F{X: inner.Min.X, Y: inner.Min.Y, Z: inner.Min.Z}
		if i&1 != 0 {
			corner.X = inner.Max.X
		}
		if i&2 != 0 {
			corner.Y = inner.Max.Y
		}
		if i&4 != 0 {
			corner.Z = inner.Max.Z
		}
		p := t.Forward.Apply(corner)
		if first {
			out = vec.Box{Min: p, Max: p}
			first = false
			continue
		}
		out.Min.X = math.Min(out.Min.X, p.X)
		out.Min.Y = math.Min(out.Min.Y, p.Y)
		out.Min.Z = math.Min(out.Min.Z, p.Z)
		out.Max.X = math.Max(out.Max.X, p.X)
		out.Max.Y = math.Max(out.Max.Y, p.Y)
		out.Max.Z = math.Max(out.Max.Z, p.Z)
	}
	return out
}

// TypeName возвращает имя для диагностики; Transformed не
// регистрируется.
func (t Transformed) TypeName() string { return "transform" }

// WritePayload не поддерживается: Transformed не входит в проводной
// реестр.
func (t Transformed) WritePayload(w *protocol.Writer) {
	panic("sdf: transform не сериализуется")
}

// Expanded раздувает внутреннюю фигуру на радиус R. Отрицательный
// радиус сжимает. Вспомогательная алгебра, не входит в реестр.
type Expanded struct {
	Inner Shape
	R     float64
}

// Sample возвращает выборку внутренней фигуры минус радиус.
func (e Expanded) Sample(p vec.Vec3F) float64 {
	return e.Inner.Sample(p) - e.R
}

// Bounds возвращает раздутые границы внутренней фигуры.
func (e Expanded) Bounds() vec.Box {
	return e.Inner.Bounds().Expand(e.R)
}

// TypeName возвращает имя для диагностики; Expanded не регистрируется.
func (e Expanded) TypeName() string { return "expand" }

// WritePayload не поддерживается: Expanded не входит в проводной реестр.
func (e Expanded) WritePayload(w *protocol.Writer) {
	panic("sdf: expand не сериализуется")
}
