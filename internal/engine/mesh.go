// Package engine описывает узкие интерфейсы хост-движка: извлечение
// мешей, физические тела, сцена и текстуры. Ядро вызывает их, но не
// реализует; пакет содержит эталонные реализации для тестов и
// автономного сервера.
package engine

import (
	"context"

	"github.com/annel0/sdf-world/internal/vec"
)

// Grid описывает сырой массив выборок, передаваемый писателю мешей:
// байты, базовый индекс с учётом полей и шаги по осям.
type Grid struct {
	Samples []byte

	// Размеры массива в выборках по осям. SizeZ равен 1 для
	// двумерных слоёв.
	SizeX, SizeY, SizeZ int

	// Base указывает индекс выборки (margin, margin, margin),
	// начала номинальной области чанка.
	Base int

	// Шаги в байтах между соседними выборками по осям.
	StrideX, StrideY, StrideZ int

	// UnitSize задаёт мировое расстояние между выборками,
	// MaxDistance — предел квантования поля.
	UnitSize    float64
	MaxDistance float64
}

// At возвращает выборку по индексам осей без учёта полей.
func (g Grid) At(x, y, z int) byte {
	return g.Samples[x*g.StrideX+y*g.StrideY+z*g.StrideZ]
}

// RenderMesh представляет непрозрачный для ядра меш хост-движка.
type RenderMesh any

// MeshResult содержит результат извлечения: меш для рендера и
// вершины с индексами для коллизии в локальных координатах чанка.
type MeshResult struct {
	Render   RenderMesh
	Vertices []vec.Vec3F
	Indices  []int32
}

// MeshWriter извлекает меш из массива выборок. Реализация обязана
// проверять ctx на каждой точке приостановки: отмена означает, что
// результат устарел и будет отброшен.
type MeshWriter interface {
	WriteTo(ctx context.Context, grid Grid, resource string) (*MeshResult, error)
}

// WriterPool выдаёт писателей мешей в аренду. Писатели содержат
// рабочие буферы, поэтому переиспользуются вместо создания заново.
type WriterPool interface {
	Rent() MeshWriter
	Return(w MeshWriter)
}

type channelPool struct {
	free    chan MeshWriter
	factory func() MeshWriter
}

// NewWriterPool создаёт пул писателей ёмкостью capacity поверх
// фабрики. Пустой пул создаёт нового писателя, переполненный
// отбрасывает возвращаемого.
func NewWriterPool(factory func() MeshWriter, capacity int) WriterPool {
	return &channelPool{
		free:    make(chan MeshWriter, capacity),
		factory: factory,
	}
}

func (p *channelPool) Rent() MeshWriter {
	select {
	case w := <-p.free:
		return w
	default:
		return p.factory()
	}
}

func (p *channelPool) Return(w MeshWriter) {
	select {
	case p.free <- w:
	default:
	}
}
