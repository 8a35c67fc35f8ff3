package engine

import (
	"context"

	"github.com/annel0/sdf-world/internal/vec"
)

// SurfaceWriter — эталонный писатель мешей: находит ячейки, через
// которые проходит нулевая изоповерхность, и выдаёт по вершине на
// ячейку. Хост-движки подставляют собственное извлечение; эталон
// служит тестам и автономному серверу.
type SurfaceWriter struct {
	vertices []vec.Vec3F
	indices  []int32
}

// NewSurfaceWriter создаёт писателя с пустыми рабочими буферами.
func NewSurfaceWriter() *SurfaceWriter {
	return &SurfaceWriter{}
}

const insideThreshold = 127

// WriteTo сканирует решётку и выдаёт вершину в центре каждой ячейки,
// рёбра которой пересекают изоповерхность. Проверяет отмену перед
// каждым слоем по Z.
func (sw *SurfaceWriter) WriteTo(ctx context.Context, grid Grid, resource string) (*MeshResult, error) {
	sw.vertices = sw.vertices[:0]
	sw.indices = sw.indices[:0]

	// Base указывает на выборку начала номинальной области чанка;
	// вершины отсчитываются от неё, то есть в локальных координатах.
	mx := (grid.Base / grid.StrideX) % grid.SizeX
	my := (grid.Base / grid.StrideY) % grid.SizeY
	mz := grid.Base / grid.StrideZ

	maxZ := grid.SizeZ - 1
	if maxZ < 1 {
		// Двумерный слой: одна плоскость ячеек.
		maxZ = 1
	}
	for z := 0; z < maxZ; z++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		for y := 0; y < grid.SizeY-1; y++ {
			for x := 0; x < grid.SizeX-1; x++ {
				if sw.cellCrossesSurface(grid, x, y, z) {
					idx := int32(len(sw.vertices))
					sw.vertices = append(sw.vertices, vec.Vec3F{
						X: (float64(x-mx) + 0.5) * grid.UnitSize,
						Y: (float64(y-my) + 0.5) * grid.UnitSize,
						Z: (float64(z-mz) + 0.5) * grid.UnitSize,
					})
					sw.indices = append(sw.indices, idx)
				}
			}
		}
	}

	result := &MeshResult{
		Vertices: append([]vec.Vec3F(nil), sw.vertices...),
		Indices:  append([]int32(nil), sw.indices...),
	}
	result.Render = result.Vertices
	return result, nil
}

func (sw *SurfaceWriter) cellCrossesSurface(grid Grid, x, y, z int) bool {
	zs := [2]int{z, z + 1}
	if grid.SizeZ == 1 {
		zs[1] = z
	}
	anyInside := false
	anyOutside := false
	for _, cz := range zs {
		for dy := 0; dy <= 1; dy++ {
			for dx := 0; dx <= 1; dx++ {
				v := grid.At(x+dx, y+dy, cz)
				if v <= insideThreshold {
					anyInside = true
				} else {
					anyOutside = true
				}
			}
		}
	}
	return anyInside && anyOutside
}
