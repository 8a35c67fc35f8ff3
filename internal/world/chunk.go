package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/sdf-world/internal/engine"
	"github.com/annel0/sdf-world/internal/field"
	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/metrics"
	"github.com/annel0/sdf-world/internal/sdf"
	"github.com/annel0/sdf-world/internal/task"
	"github.com/annel0/sdf-world/internal/vec"
)

// mainTaskKind различает три слота задач главного потока чанка.
type mainTaskKind uint8

const (
	taskUpdateRenderMeshes mainTaskKind = iota
	taskUpdateCollisionMesh
	taskUpdateLayerTexture
)

var mainTaskOrder = [...]mainTaskKind{
	taskUpdateRenderMeshes,
	taskUpdateCollisionMesh,
	taskUpdateLayerTexture,
}

type mainTask struct {
	run     func()
	done    *task.Task[struct{}]
	resolve func(struct{}, error)
}

// Chunk владеет одним массивом выборок и производными от него мешем
// рендера, коллизией и текстурой слоя. Чанк обрабатывает не более
// одной фоновой мутации за раз и сам упорядочивает перестройки меша.
type Chunk struct {
	world    *World
	resource string
	key      vec.Vec3
	options  ResourceOptions
	array    *field.SampleArray

	// lastModification — односпальная очередь мутаций: новая мутация
	// ожидает предыдущую, порядок принятия сохраняется.
	lastModification *task.Task[bool]

	lastMeshModificationCount int64
	updateTask                *task.Task[struct{}]
	updateCancel              context.CancelFunc

	// pending хранит не более одной задачи на слот; короткий мьютекс
	// охраняет только постановку и съём.
	pendingMu sync.Mutex
	pending   map[mainTaskKind]*mainTask

	physics engine.PhysicsBody
	scene   engine.SceneObject
	texture engine.Texture

	// hasPhysicsShape отличает первичное создание коллизионной фигуры
	// от обновления уже существующей.
	hasPhysicsShape bool

	disposed bool
}

func newChunk(w *World, resource string, key vec.Vec3, options ResourceOptions) *Chunk {
	c := &Chunk{
		world:            w,
		resource:         resource,
		key:              key,
		options:          options,
		array:            field.NewSampleArray(options.Quality, options.Dims),
		lastModification: task.Completed(false),
		updateTask:       task.Completed(struct{}{}),
		pending:          make(map[mainTaskKind]*mainTask),
	}
	if options.RendersMesh() && w.host.Scene != nil {
		c.scene = w.host.Scene(key)
	}
	if options.HasCollision && w.host.Physics != nil {
		c.physics = w.host.Physics(key)
	}
	return c
}

// Key возвращает решёточный индекс чанка.
func (c *Chunk) Key() vec.Vec3 { return c.key }

// Resource возвращает слой чанка.
func (c *Chunk) Resource() string { return c.resource }

// Array возвращает массив выборок чанка.
func (c *Chunk) Array() *field.SampleArray { return c.array }

// ModificationCount отражает счётчик массива выборок.
func (c *Chunk) ModificationCount() int64 { return c.array.ModificationCount() }

// origin возвращает мировую точку начала чанка: key * chunk_size.
func (c *Chunk) origin() vec.Vec3F {
	return c.key.Scale(c.options.Quality.ChunkSize)
}

// AddAsync ставит объединение с фигурой в очередь мутаций чанка.
// Вызывается на главном цикле; фигура приходит в мировых координатах.
func (c *Chunk) AddAsync(shape sdf.Shape) *task.Task[bool] {
	return c.chainModification(shape, func(local sdf.Shape) bool {
		return c.array.Add(local)
	})
}

// SubtractAsync ставит вычитание фигуры в очередь мутаций чанка.
func (c *Chunk) SubtractAsync(shape sdf.Shape) *task.Task[bool] {
	return c.chainModification(shape, func(local sdf.Shape) bool {
		return c.array.Subtract(local)
	})
}

// ClearAsync заливает массив чанка сплошным либо пустым полем.
func (c *Chunk) ClearAsync(solid bool) *task.Task[bool] {
	return c.chainModification(nil, func(sdf.Shape) bool {
		c.array.Clear(solid)
		return true
	})
}

func (c *Chunk) chainModification(shape sdf.Shape, apply func(sdf.Shape) bool) *task.Task[bool] {
	c.world.loop.MustBeOnLoop("Chunk.chainModification")
	prev := c.lastModification
	t, resolve := task.New[bool]()
	c.lastModification = t

	var local sdf.Shape
	if shape != nil {
		local = sdf.Translate(c.origin().Neg(), shape)
	}
	go func() {
		// Мутации не отменяются: массив выборок всегда в
		// определённом состоянии.
		prev.Await(context.Background())
		defer func() {
			if r := recover(); r != nil {
				resolve(false, fmt.Errorf("world: мутация чанка %v: %v", c.key, r))
			}
		}()
		resolve(apply(local), nil)
	}()
	return t
}

// updateMesh сверяет счётчик массива с отражённым в меше и при
// расхождении отменяет текущую перестройку и запускает новую.
// Возвращает задачу активной перестройки. Только главный цикл.
func (c *Chunk) updateMesh() *task.Task[struct{}] {
	c.world.loop.MustBeOnLoop("Chunk.updateMesh")
	count := c.array.ModificationCount()
	if count == c.lastMeshModificationCount {
		return c.updateTask
	}
	if c.options.IsTextureSourceOnly {
		// Слой-источник текстур мешей не порождает.
		c.lastMeshModificationCount = count
		return c.updateTask
	}
	if c.updateCancel != nil {
		c.updateCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.updateCancel = cancel
	c.lastMeshModificationCount = count

	t, resolve := task.New[struct{}]()
	c.updateTask = t
	go c.runMeshUpdate(ctx, resolve)
	return t
}

func (c *Chunk) runMeshUpdate(ctx context.Context, resolve func(struct{}, error)) {
	start := time.Now()
	writer := c.world.host.Writers.Rent()
	defer c.world.host.Writers.Return(writer)

	result, err := c.array.WriteTo(ctx, writer, c.resource)
	if err != nil {
		// Отмена — нормальный исход: результат устарел.
		if ctx.Err() != nil {
			resolve(struct{}{}, task.ErrCancelled)
			return
		}
		logging.GetWorldLogger().Error("извлечение меша чанка %v слоя %s: %v", c.key, c.resource, err)
		resolve(struct{}{}, err)
		return
	}

	if c.options.RendersMesh() && c.scene != nil {
		render := result.Render
		c.enqueueMain(taskUpdateRenderMeshes, func() {
			c.scene.ReplaceModel(render)
		})
	}
	if c.options.HasCollision && c.physics != nil {
		// Перевод вершин в мировые координаты — фоновая работа.
		origin := c.origin()
		worldVerts := make([]vec.Vec3F, len(result.Vertices))
		for i, v := range result.Vertices {
			worldVerts[i] = v.Add(origin)
		}
		indices := result.Indices
		c.enqueueMain(taskUpdateCollisionMesh, func() {
			if !c.hasPhysicsShape {
				c.physics.AddMeshShape(worldVerts, indices, c.options.SplitCollisionTags)
				c.hasPhysicsShape = true
				return
			}
			c.physics.UpdateMesh(worldVerts, indices)
		})
	}

	metrics.Default().MeshUpdates.Inc()
	metrics.Default().MeshUpdateDuration.Observe(time.Since(start).Seconds())
	resolve(struct{}{}, nil)
}

// refreshReferencedTexture подаёт текстуру чанка-источника в атрибут
// шейдера этого чанка. Несовпадение решёток — предупреждение
// конфигурации, операция прерывается.
func (c *Chunk) refreshReferencedTexture(source *Chunk, ref TextureRef) {
	if source.resource != ref.Source {
		logging.GetWorldLogger().Warn(
			"чанк-источник %v привязан к слою %s, ожидался %s, текстура пропущена",
			source.key, source.resource, ref.Source)
		return
	}
	if source.options.Quality.ChunkSize != c.options.Quality.ChunkSize {
		logging.GetWorldLogger().Warn(
			"слои %s и %s используют разный размер чанка, текстура %s пропущена",
			c.resource, ref.Source, ref.Attribute)
		return
	}
	c.enqueueMain(taskUpdateLayerTexture, func() {
		if c.scene == nil || c.world.host.Textures == nil {
			return
		}
		if c.texture != nil {
			c.texture.Release()
		}
		grid := source.array.Grid()
		if source.options.Dims == 2 {
			c.texture = c.world.host.Textures.Create2D(grid.Samples, grid.SizeX, grid.SizeY)
		} else {
			c.texture = c.world.host.Textures.Create3D(grid.Samples, grid.SizeX, grid.SizeY, grid.SizeZ)
		}
		c.scene.SetAttribute(ref.Attribute, c.texture)
	})
}

// enqueueMain ставит задачу в слот главного потока. Новая задача
// вытесняет прежнюю того же рода: её promise завершается отменой,
// наблюдаемое состояние отражает самый свежий фоновый результат.
func (c *Chunk) enqueueMain(kind mainTaskKind, run func()) *task.Task[struct{}] {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if old, ok := c.pending[kind]; ok {
		old.resolve(struct{}{}, task.ErrCancelled)
	}
	t, resolve := task.New[struct{}]()
	c.pending[kind] = &mainTask{run: run, done: t, resolve: resolve}
	return t
}

// drainMainTasks выполняет отложенные задачи слотов, соблюдая общий
// бюджет тика: при исчерпании бюджета новые задачи не начинаются.
func (c *Chunk) drainMainTasks(budget *time.Duration) {
	c.world.loop.MustBeOnLoop("Chunk.drainMainTasks")
	for _, kind := range mainTaskOrder {
		if *budget >= tickChunkTaskBudget {
			return
		}
		c.pendingMu.Lock()
		mt := c.pending[kind]
		delete(c.pending, kind)
		c.pendingMu.Unlock()
		if mt == nil {
			continue
		}
		start := time.Now()
		mt.run()
		*budget += time.Since(start)
		mt.resolve(struct{}{}, nil)
	}
}

// dispose отменяет перестройку меша, гасит отложенные задачи и
// освобождает ресурсы хоста. Только главный цикл.
func (c *Chunk) dispose() {
	c.world.loop.MustBeOnLoop("Chunk.dispose")
	if c.disposed {
		return
	}
	c.disposed = true
	if c.updateCancel != nil {
		c.updateCancel()
	}
	c.pendingMu.Lock()
	for kind, mt := range c.pending {
		mt.resolve(struct{}{}, task.ErrCancelled)
		delete(c.pending, kind)
	}
	c.pendingMu.Unlock()
	if c.texture != nil {
		c.texture.Release()
		c.texture = nil
	}
	if c.physics != nil {
		c.physics.Remove()
		c.physics = nil
		c.hasPhysicsShape = false
	}
	if c.scene != nil {
		c.scene.Remove()
		c.scene = nil
	}
}
