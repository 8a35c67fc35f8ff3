package sdf

import (
	"math"

	"github.com/annel0/sdf-world/internal/protocol"
	"github.com/annel0/sdf-world/internal/vec"
)

func init() {
	Register("cellular", readCellular)
	Register("cellular2d", readCellular2D)
}

// hash32 перемешивает 32-битный вход в хорошо распределённый выход.
// Быстрый финализатор в стиле Murmur, стабилен между версиями.
func hash32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// hashCell хэширует целочисленные координаты ячейки с семенем.
// Большие нечётные константы декоррелируют оси.
func hashCell(seed uint32, x, y, z int32) uint32 {
	h := seed
	h ^= uint32(x) * 0x9e3779b1
	h ^= uint32(y) * 0x85ebca6b
	h ^= uint32(z) * 0xc2b2ae35
	return hash32(h)
}

// cellFraction возвращает псевдослучайную долю в [0, 1) из 16 младших
// бит хэша ячейки.
func cellFraction(seed uint32, x, y, z int32) float64 {
	return float64(hashCell(seed, x, y, z)&0xFFFF) / 65536.0
}

// Cellular задаёт клеточный (Worley) шум: расстояние до ближайшей
// дрожащей опорной точки в хэшированной решётке минус смещение.
// Внутренность — область, где опорная точка ближе DistanceOffset.
type Cellular struct {
	Seed           uint32
	CellSize       vec.Vec3F
	DistanceOffset float64
}

// Sample возвращает расстояние до ближайшей опорной точки минус смещение.
// Обход соседей 3x3x3 обязателен: дрожание смещает точку в пределах
// ячейки, и ближайшая может лежать в любой из смежных.
func (c Cellular) Sample(p vec.Vec3F) float64 {
	fx := p.X / c.CellSize.X
	fy := p.Y / c.CellSize.Y
	fz := p.Z / c.CellSize.Z
	cx := int32(math.Floor(fx))
	cy := int32(math.Floor(fy))
	cz := int32(math.Floor(fz))

	minSq := math.Inf(1)
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				nx, ny, nz := cx+dx, cy+dy, cz+dz
				// Аргументы хэша поворачиваются, чтобы все три доли
				// были независимы при том же семени.
				jx := cellFraction(c.Seed, nx, ny, nz)
				jy := cellFraction(c.Seed, ny, nz, nx)
				jz := cellFraction(c.Seed, nz, nx, ny)
				px := (float64(nx) + jx) * c.CellSize.X
				py := (float64(ny) + jy) * c.CellSize.Y
				pz := (float64(nz) + jz) * c.CellSize.Z
				ddx := p.X - px
				ddy := p.Y - py
				ddz := p.Z - pz
				sq := ddx*ddx + ddy*ddy + ddz*ddz
				if sq < minSq {
					minSq = sq
				}
			}
		}
	}
	return math.Sqrt(minSq) - c.DistanceOffset
}

// Bounds возвращает пустые границы: шум определён всюду. Вызывающий
// обязан ограничивать его пересечением с конечной фигурой.
func (c Cellular) Bounds() vec.Box { return vec.Box{} }

// TypeName возвращает каноническое имя варианта.
func (c Cellular) TypeName() string { return "cellular" }

// WritePayload сериализует семя, размер ячейки и смещение.
func (c Cellular) WritePayload(w *protocol.Writer) {
	w.WriteUint32(c.Seed)
	writeVec(w, c.CellSize)
	w.WriteFloat64(c.DistanceOffset)
}

func readCellular(r *protocol.Reader) (Shape, error) {
	c := Cellular{
		Seed:           r.ReadUint32(),
		CellSize:       readVec(r),
		DistanceOffset: r.ReadFloat64(),
	}
	return c, r.Err()
}

// Cellular2D задаёт клеточный шум в плоскости XY. Координата Z
// игнорируется, решётка и обход соседей двумерные.
type Cellular2D struct {
	Seed           uint32
	CellSize       vec.Vec3F
	DistanceOffset float64
}

// Sample возвращает расстояние до ближайшей опорной точки в XY минус
// смещение. Обход соседей 3x3 обязателен.
func (c Cellular2D) Sample(p vec.Vec3F) float64 {
	fx := p.X / c.CellSize.X
	fy := p.Y / c.CellSize.Y
	cx := int32(math.Floor(fx))
	cy := int32(math.Floor(fy))

	minSq := math.Inf(1)
	for dy := int32(-1); dy <= 1; dy++ {
		for dx := int32(-1); dx <= 1; dx++ {
			nx, ny := cx+dx, cy+dy
			jx := cellFraction(c.Seed, nx, ny, 0)
			jy := cellFraction(c.Seed, ny, 0, nx)
			px := (float64(nx) + jx) * c.CellSize.X
			py := (float64(ny) + jy) * c.CellSize.Y
			ddx := p.X - px
			ddy := p.Y - py
			sq := ddx*ddx + ddy*ddy
			if sq < minSq {
				minSq = sq
			}
		}
	}
	return math.Sqrt(minSq) - c.DistanceOffset
}

// Bounds возвращает пустые границы: шум определён всюду.
func (c Cellular2D) Bounds() vec.Box { return vec.Box{} }

// TypeName возвращает каноническое имя варианта.
func (c Cellular2D) TypeName() string { return "cellular2d" }

// WritePayload сериализует семя, размер ячейки и смещение.
func (c Cellular2D) WritePayload(w *protocol.Writer) {
	w.WriteUint32(c.Seed)
	writeVec(w, c.CellSize)
	w.WriteFloat64(c.DistanceOffset)
}

func readCellular2D(r *protocol.Reader) (Shape, error) {
	c := Cellular2D{
		Seed:           r.ReadUint32(),
		CellSize:       readVec(r),
		DistanceOffset: r.ReadFloat64(),
	}
	return c, r.Err()
}
