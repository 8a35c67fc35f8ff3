package sdf

import (
	"math"

	"github.com/annel0/sdf-world/internal/protocol"
	"github.com/annel0/sdf-world/internal/vec"
)

func init() {
	Register("box", readBox)
	Register("box2d", readBox2D)
	Register("sphere", readSphere)
	Register("disc", readDisc)
	Register("capsule", readCapsule)
	Register("capsule2d", readCapsule2D)
	Register("halfspace", readHalfSpace)
	Register("halfplane", readHalfPlane)
}

// Box задаёт осевыравненный параллелепипед центром и полуразмерами.
type Box struct {
	Center      vec.Vec3F
	HalfExtents vec.Vec3F
}

// NewBox строит Box по двум противоположным углам.
func NewBox(a, b vec.Vec3F) Box {
	min := a.Min(b)
	max := a.Max(b)
	return Box{
		Center:      min.Add(max).Scale(0.5),
		HalfExtents: max.Sub(min).Scale(0.5),
	}
}

// Sample возвращает точное знаковое расстояние до границы параллелепипеда.
func (b Box) Sample(p vec.Vec3F) float64 {
	q := p.Sub(b.Center).Abs().Sub(b.HalfExtents)
	outside := q.Max(vec.Vec3F{}).Length()
	inside := math.Min(math.Max(q.X, math.Max(q.Y, q.Z)), 0)
	return outside + inside
}

// Bounds возвращает точные границы параллелепипеда.
func (b Box) Bounds() vec.Box {
	return vec.Box{
		Min: b.Center.Sub(b.HalfExtents),
		Max: b.Center.Add(b.HalfExtents),
	}
}

// TypeName возвращает каноническое имя варианта.
func (b Box) TypeName() string { return "box" }

// WritePayload сериализует центр и полуразмеры.
func (b Box) WritePayload(w *protocol.Writer) {
	writeVec(w, b.Center)
	writeVec(w, b.HalfExtents)
}

func readBox(r *protocol.Reader) (Shape, error) {
	b := Box{Center: readVec(r), HalfExtents: readVec(r)}
	return b, r.Err()
}

// Box2D задаёт прямоугольник в плоскости XY. Координата Z игнорируется
// при выборке, поэтому фигура пригодна для двумерных слоёв.
type Box2D struct {
	Center      vec.Vec3F
	HalfExtents vec.Vec3F
}

// NewBox2D строит Box2D по двум противоположным углам в плоскости XY.
func NewBox2D(a, b vec.Vec3F) Box2D {
	inner := NewBox(a, b)
	return Box2D{Center: inner.Center, HalfExtents: inner.HalfExtents}
}

// Sample возвращает знаковое расстояние до прямоугольника в плоскости XY.
func (b Box2D) Sample(p vec.Vec3F) float64 {
	qx := math.Abs(p.X-b.Center.X) - b.HalfExtents.X
	qy := math.Abs(p.Y-b.Center.Y) - b.HalfExtents.Y
	ox := math.Max(qx, 0)
	oy := math.Max(qy, 0)
	outside := math.Sqrt(ox*ox + oy*oy)
	inside := math.Min(math.Max(qx, qy), 0)
	return outside + inside
}

// Bounds возвращает границы прямоугольника. Протяжённость по Z нулевая:
// пересечение с интервалами чанков использует замкнутые границы, поэтому
// плоская фигура пересекает слой с Z=0.
func (b Box2D) Bounds() vec.Box {
	return vec.Box{
		Min: vec.Vec3F{X: b.Center.X - b.HalfExtents.X, Y: b.Center.Y - b.HalfExtents.Y},
		Max: vec.Vec3F{X: b.Center.X + b.HalfExtents.X, Y: b.Center.Y + b.HalfExtents.Y},
	}
}

// TypeName возвращает каноническое имя варианта.
func (b Box2D) TypeName() string { return "box2d" }

// WritePayload сериализует центр и полуразмеры.
func (b Box2D) WritePayload(w *protocol.Writer) {
	writeVec(w, b.Center)
	writeVec(w, b.HalfExtents)
}

func readBox2D(r *protocol.Reader) (Shape, error) {
	b := Box2D{Center: readVec(r), HalfExtents: readVec(r)}
	return b, r.Err()
}

// Sphere задаёт шар центром и радиусом.
type Sphere struct {
	Center vec.Vec3F
	Radius float64
}

// Sample возвращает точное знаковое расстояние до сферы.
func (s Sphere) Sample(p vec.Vec3F) float64 {
	return p.DistanceTo(s.Center) - s.Radius
}

// Bounds возвращает точные границы шара.
func (s Sphere) Bounds() vec.Box {
	r := vec.Vec3F{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return vec.Box{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// TypeName возвращает каноническое имя варианта.
func (s Sphere) TypeName() string { return "sphere" }

// WritePayload сериализует центр и радиус.
func (s Sphere) WritePayload(w *protocol.Writer) {
	writeVec(w, s.Center)
	w.WriteFloat64(s.Radius)
}

func readSphere(r *protocol.Reader) (Shape, error) {
	s := Sphere{Center: readVec(r), Radius: r.ReadFloat64()}
	return s, r.Err()
}

// Disc задаёт круг в плоскости XY. Двумерный аналог Sphere.
type Disc struct {
	Center vec.Vec3F
	Radius float64
}

// Sample возвращает знаковое расстояние до окружности в плоскости XY.
func (d Disc) Sample(p vec.Vec3F) float64 {
	dx := p.X - d.Center.X
	dy := p.Y - d.Center.Y
	return math.Sqrt(dx*dx+dy*dy) - d.Radius
}

// Bounds возвращает границы круга с нулевой протяжённостью по Z.
func (d Disc) Bounds() vec.Box {
	return vec.Box{
		Min: vec.Vec3F{X: d.Center.X - d.Radius, Y: d.Center.Y - d.Radius},
		Max: vec.Vec3F{X: d.Center.X + d.Radius, Y: d.Center.Y + d.Radius},
	}
}

// TypeName возвращает каноническое имя варианта.
func (d Disc) TypeName() string { return "disc" }

// WritePayload сериализует центр и радиус.
func (d Disc) WritePayload(w *protocol.Writer) {
	writeVec(w, d.Center)
	w.WriteFloat64(d.Radius)
}

func readDisc(r *protocol.Reader) (Shape, error) {
	d := Disc{Center: readVec(r), Radius: r.ReadFloat64()}
	return d, r.Err()
}

// Capsule задаёт капсулу: множество точек на расстоянии не более Radius
// от отрезка AB.
type Capsule struct {
	A, B   vec.Vec3F
	Radius float64
}

func segmentDistance(p, a, b vec.Vec3F) float64 {
	ab := b.Sub(a)
	ap := p.Sub(a)
	denom := ab.Dot(ab)
	if denom == 0 {
		return ap.Length()
	}
	t := ap.Dot(ab) / denom
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.DistanceTo(a.Add(ab.Scale(t)))
}

// Sample возвращает точное знаковое расстояние до капсулы.
func (c Capsule) Sample(p vec.Vec3F) float64 {
	return segmentDistance(p, c.A, c.B) - c.Radius
}

// Bounds возвращает границы капсулы.
func (c Capsule) Bounds() vec.Box {
	r := vec.Vec3F{X: c.Radius, Y: c.Radius, Z: c.Radius}
	return vec.Box{
		Min: c.A.Min(c.B).Sub(r),
		Max: c.A.Max(c.B).Add(r),
	}
}

// TypeName возвращает каноническое имя варианта.
func (c Capsule) TypeName() string { return "capsule" }

// WritePayload сериализует концы отрезка и радиус.
func (c Capsule) WritePayload(w *protocol.Writer) {
	writeVec(w, c.A)
	writeVec(w, c.B)
	w.WriteFloat64(c.Radius)
}

func readCapsule(r *protocol.Reader) (Shape, error) {
	c := Capsule{A: readVec(r), B: readVec(r), Radius: r.ReadFloat64()}
	return c, r.Err()
}

// Capsule2D задаёт утолщённый отрезок в плоскости XY.
type Capsule2D struct {
	A, B   vec.Vec3F
	Radius float64
}

// Sample возвращает знаковое расстояние до отрезка AB в плоскости XY
// минус радиус.
func (c Capsule2D) Sample(p vec.Vec3F) float64 {
	flat := vec.Vec3F{X: p.X, Y: p.Y}
	a := vec.Vec3F{X: c.A.X, Y: c.A.Y}
	b := vec.Vec3F{X: c.B.X, Y: c.B.Y}
	return segmentDistance(flat, a, b) - c.Radius
}

// Bounds возвращает границы с нулевой протяжённостью по Z.
func (c Capsule2D) Bounds() vec.Box {
	return vec.Box{
		Min: vec.Vec3F{
			X: math.Min(c.A.X, c.B.X) - c.Radius,
			Y: math.Min(c.A.Y, c.B.Y) - c.Radius,
		},
		Max: vec.Vec3F{
			X: math.Max(c.A.X, c.B.X) + c.Radius,
			Y: math.Max(c.A.Y, c.B.Y) + c.Radius,
		},
	}
}

// TypeName возвращает каноническое имя варианта.
func (c Capsule2D) TypeName() string { return "capsule2d" }

// WritePayload сериализует концы отрезка и радиус.
func (c Capsule2D) WritePayload(w *protocol.Writer) {
	writeVec(w, c.A)
	writeVec(w, c.B)
	w.WriteFloat64(c.Radius)
}

func readCapsule2D(r *protocol.Reader) (Shape, error) {
	c := Capsule2D{A: readVec(r), B: readVec(r), Radius: r.ReadFloat64()}
	return c, r.Err()
}

// HalfSpace задаёт полупространство: точки с dot(p, Normal) <= Offset
// находятся внутри. Нормаль нормализуется при создании.
type HalfSpace struct {
	Normal vec.Vec3F
	Offset float64
}

// NewHalfSpace строит полупространство по нормали и точке на границе.
func NewHalfSpace(normal, point vec.Vec3F) HalfSpace {
	n := normal.Normalized()
	return HalfSpace{Normal: n, Offset: n.Dot(point)}
}

// Sample возвращает знаковое расстояние до граничной плоскости.
func (h HalfSpace) Sample(p vec.Vec3F) float64 {
	return p.Dot(h.Normal) - h.Offset
}

// Bounds возвращает пустые границы: полупространство бесконечно.
func (h HalfSpace) Bounds() vec.Box { return vec.Box{} }

// TypeName возвращает каноническое имя варианта.
func (h HalfSpace) TypeName() string { return "halfspace" }

// WritePayload сериализует нормаль и смещение.
func (h HalfSpace) WritePayload(w *protocol.Writer) {
	writeVec(w, h.Normal)
	w.WriteFloat64(h.Offset)
}

func readHalfSpace(r *protocol.Reader) (Shape, error) {
	h := HalfSpace{Normal: readVec(r), Offset: r.ReadFloat64()}
	return h, r.Err()
}

// HalfPlane задаёт полуплоскость в XY: двумерный аналог HalfSpace.
type HalfPlane struct {
	Normal vec.Vec3F
	Offset float64
}

// NewHalfPlane строит полуплоскость по нормали в XY и точке на границе.
func NewHalfPlane(normal, point vec.Vec3F) HalfPlane {
	flat := vec.Vec3F{X: normal.X, Y: normal.Y}
	n := flat.Normalized()
	return HalfPlane{Normal: n, Offset: n.X*point.X + n.Y*point.Y}
}

// Sample возвращает знаковое расстояние до граничной прямой в XY.
func (h HalfPlane) Sample(p vec.Vec3F) float64 {
	return p.X*h.Normal.X + p.Y*h.Normal.Y - h.Offset
}

// Bounds возвращает пустые границы: полуплоскость бесконечна.
func (h HalfPlane) Bounds() vec.Box { return vec.Box{} }

// TypeName возвращает каноническое имя варианта.
func (h HalfPlane) TypeName() string { return "halfplane" }

// WritePayload сериализует нормаль и смещение.
func (h HalfPlane) WritePayload(w *protocol.Writer) {
	writeVec(w, h.Normal)
	w.WriteFloat64(h.Offset)
}

func readHalfPlane(r *protocol.Reader) (Shape, error) {
	h := HalfPlane{Normal: readVec(r), Offset: r.ReadFloat64()}
	return h, r.Err()
}
