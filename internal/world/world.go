package world

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/sdf-world/internal/engine"
	"github.com/annel0/sdf-world/internal/eventbus"
	"github.com/annel0/sdf-world/internal/field"
	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/metrics"
	"github.com/annel0/sdf-world/internal/replication"
	"github.com/annel0/sdf-world/internal/sdf"
	"github.com/annel0/sdf-world/internal/task"
	"github.com/annel0/sdf-world/internal/vec"
)

// tickChunkTaskBudget — кооперативный предел времени главного потока
// на продвижение фоновых результатов чанков за один тик.
const tickChunkTaskBudget = time.Millisecond

// Mode определяет, кто владеет журналом модификаций мира.
type Mode uint8

const (
	// ModeLocal — автономный мир без репликации, мутации разрешены.
	ModeLocal Mode = iota
	// ModeAuthority — сервер: владеет журналом, рассылает кадры.
	ModeAuthority
	// ModeObserver — клиент: мутации разрешены только при приёме
	// реплицированных модификаций.
	ModeObserver
)

type layerState struct {
	resource        string
	options         ResourceOptions
	chunks          map[vec.Vec3]*Chunk
	needsMeshUpdate map[*Chunk]struct{}
	updateTask      *task.Task[struct{}]
}

// World владеет чанками всех слоёв. Весь изменяемый стейт принадлежит
// главному циклу; публичные методы пересылают замыкания через него.
type World struct {
	mode    Mode
	loop    *task.Loop
	host    engine.Host
	options map[string]ResourceOptions

	layers map[string]*layerState
	log    *replication.Log

	// lastModification сериализует мутации всего мира: две
	// модификации применяются к общим чанкам в порядке принятия.
	lastModification *task.Task[bool]

	tickBudget time.Duration
	logger     *logging.Logger
}

// NewWorld создаёт мир с данным режимом, главным циклом, хостом и
// описанием слоёв. Настройки слоёв проверяются сразу.
func NewWorld(mode Mode, loop *task.Loop, host engine.Host, options map[string]ResourceOptions) (*World, error) {
	for name, opts := range options {
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("слой %s: %w", name, err)
		}
	}
	return &World{
		mode:             mode,
		loop:             loop,
		host:             host,
		options:          options,
		layers:           make(map[string]*layerState),
		log:              replication.NewLog(),
		lastModification: task.Completed(false),
		logger:           logging.GetWorldLogger(),
	}, nil
}

// Loop возвращает главный цикл мира.
func (w *World) Loop() *task.Loop { return w.loop }

// Log возвращает журнал модификаций. Читается репликацией на тике
// сервера, который выполняется на главном цикле.
func (w *World) Log() *replication.Log { return w.log }

// AddAsync добавляет фигуру в слой. Возвращаемая задача завершается,
// когда все затронутые чанки применили модификацию; значение true
// означает, что хоть одна выборка изменилась.
func (w *World) AddAsync(shape sdf.Shape, resource string) *task.Task[bool] {
	return w.modifyAsync(replication.Modification{Op: replication.OpAdd, Resource: resource, Shape: shape}, false)
}

// SubtractAsync вычитает фигуру из слоя.
func (w *World) SubtractAsync(shape sdf.Shape, resource string) *task.Task[bool] {
	return w.modifyAsync(replication.Modification{Op: replication.OpSubtract, Resource: resource, Shape: shape}, false)
}

// ApplyReplicated применяет реплицированную модификацию на стороне
// наблюдателя. Вызывается протоколом репликации.
func (w *World) ApplyReplicated(mod replication.Modification) *task.Task[bool] {
	return w.modifyAsync(mod, true)
}

func (w *World) modifyAsync(mod replication.Modification, replicated bool) *task.Task[bool] {
	t, resolve := task.New[bool]()
	w.loop.Post(func() {
		w.assertCanModify(replicated)
		opts, ok := w.options[mod.Resource]
		if !ok {
			w.logger.Error("модификация отвергнута: неизвестный слой %q", mod.Resource)
			resolve(false, fmt.Errorf("world: неизвестный слой %q", mod.Resource))
			return
		}
		w.log.Append(mod)
		metrics.Default().Modifications.WithLabelValues(mod.Op.String()).Inc()
		w.publishEvent(eventbus.EventModificationAccepted, mod.Resource, map[string]any{
			"op":    mod.Op.String(),
			"total": w.log.Len(),
		})

		prev := w.lastModification
		w.lastModification = t
		go w.runModification(mod, opts, prev, resolve)
	})
	return t
}

var tracer = otel.Tracer("sdf-world/world")

func (w *World) runModification(mod replication.Modification, opts ResourceOptions, prev *task.Task[bool], resolve func(bool, error)) {
	ctx, span := tracer.Start(context.Background(), "world.modify",
		trace.WithAttributes(
			attribute.String("resource", mod.Resource),
			attribute.String("op", mod.Op.String()),
		))
	defer span.End()

	prev.Await(ctx)

	var chunks []*Chunk
	var chunkTasks []*task.Task[bool]
	w.loop.Call(func() {
		layer := w.getOrCreateLayer(mod.Resource, opts)
		for _, key := range affectedKeys(mod.Shape, opts) {
			var c *Chunk
			if mod.Op == replication.OpAdd {
				c = w.getOrCreateChunk(layer, key)
			} else if c = layer.chunks[key]; c == nil {
				// Вычитание из пустоты: чанк не создаётся.
				continue
			}
			chunks = append(chunks, c)
			if mod.Op == replication.OpAdd {
				chunkTasks = append(chunkTasks, c.AddAsync(mod.Shape))
			} else {
				chunkTasks = append(chunkTasks, c.SubtractAsync(mod.Shape))
			}
		}
	})

	results, err := task.WhenAll(ctx, chunkTasks)
	changed := false
	w.loop.Call(func() {
		layer := w.layers[mod.Resource]
		for i, c := range chunks {
			if results[i] {
				changed = true
				if layer != nil && !c.disposed {
					layer.needsMeshUpdate[c] = struct{}{}
				}
			}
		}
		if layer != nil {
			w.dispatchMeshUpdate(layer)
		}
		resolve(changed, err)
	})
}

// assertCanModify проверяет право мутировать мир. Нарушение — ошибка
// программиста, процесс останавливается.
func (w *World) assertCanModify(replicated bool) {
	w.loop.MustBeOnLoop("World.modify")
	if w.mode == ModeObserver && !replicated {
		panic("world: наблюдатель может мутировать мир только при приёме репликации")
	}
}

// affectedKeys перечисляет ключи чанков, затронутых фигурой при данном
// качестве. Записываемая область чанка — его AABB, раздутый на одну
// единицу решётки, поэтому границы фигуры расширяются на unit с обеих
// сторон. Пустые границы дают пустой список: бесконечный шум обязан
// быть обёрнут в пересечение с конечной фигурой.
func affectedKeys(shape sdf.Shape, opts ResourceOptions) []vec.Vec3 {
	bounds := shape.Bounds()
	if bounds.IsEmpty() {
		return nil
	}
	cs := opts.Quality.ChunkSize
	unit := opts.Quality.UnitSize()

	// Чанк k пересекает границы, когда (k+1)*cs+unit >= Min и
	// k*cs-unit <= Max; касание краёв считается пересечением.
	kx0 := int(math.Ceil((bounds.Min.X-unit)/cs)) - 1
	ky0 := int(math.Ceil((bounds.Min.Y-unit)/cs)) - 1
	kx1 := int(math.Floor((bounds.Max.X + unit) / cs))
	ky1 := int(math.Floor((bounds.Max.Y + unit) / cs))
	kz0, kz1 := 0, 0
	if opts.Dims == 3 {
		kz0 = int(math.Ceil((bounds.Min.Z-unit)/cs)) - 1
		kz1 = int(math.Floor((bounds.Max.Z + unit) / cs))
	}

	var keys []vec.Vec3
	for z := kz0; z <= kz1; z++ {
		for y := ky0; y <= ky1; y++ {
			for x := kx0; x <= kx1; x++ {
				keys = append(keys, vec.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return keys
}

func (w *World) getOrCreateLayer(resource string, opts ResourceOptions) *layerState {
	layer, ok := w.layers[resource]
	if !ok {
		layer = &layerState{
			resource:        resource,
			options:         opts,
			chunks:          make(map[vec.Vec3]*Chunk),
			needsMeshUpdate: make(map[*Chunk]struct{}),
			updateTask:      task.Completed(struct{}{}),
		}
		w.layers[resource] = layer
	}
	return layer
}

// getOrCreateChunk — единственное место создания чанка; здесь чанк
// привязывается к слою и его качеству.
func (w *World) getOrCreateChunk(layer *layerState, key vec.Vec3) *Chunk {
	c, ok := layer.chunks[key]
	if !ok {
		c = newChunk(w, layer.resource, key, layer.options)
		layer.chunks[key] = c
		metrics.Default().ChunksActive.Inc()
	}
	return c
}

// ChunkAt возвращает чанк слоя по ключу либо nil. Только главный цикл.
func (w *World) ChunkAt(resource string, key vec.Vec3) *Chunk {
	w.loop.MustBeOnLoop("World.ChunkAt")
	layer := w.layers[resource]
	if layer == nil {
		return nil
	}
	return layer.chunks[key]
}

// ChunkKeys возвращает ключи живых чанков слоя. Только главный цикл.
func (w *World) ChunkKeys(resource string) []vec.Vec3 {
	w.loop.MustBeOnLoop("World.ChunkKeys")
	layer := w.layers[resource]
	if layer == nil {
		return nil
	}
	keys := make([]vec.Vec3, 0, len(layer.chunks))
	for k := range layer.chunks {
		keys = append(keys, k)
	}
	return keys
}

// dispatchMeshUpdate запускает перестройку мешей слоя, если прежняя
// завершена: снимает множество грязных чанков и перестраивает их
// параллельно. Чанки, загрязнившиеся во время работы, подхватываются
// следующим тиком.
func (w *World) dispatchMeshUpdate(layer *layerState) {
	w.loop.MustBeOnLoop("World.dispatchMeshUpdate")
	if !layer.updateTask.IsCompleted() || len(layer.needsMeshUpdate) == 0 {
		return
	}
	dirty := make([]*Chunk, 0, len(layer.needsMeshUpdate))
	for c := range layer.needsMeshUpdate {
		dirty = append(dirty, c)
	}
	layer.needsMeshUpdate = make(map[*Chunk]struct{})

	updates := make([]*task.Task[struct{}], 0, len(dirty))
	for _, c := range dirty {
		if !c.disposed {
			updates = append(updates, c.updateMesh())
		}
	}

	t, resolve := task.New[struct{}]()
	layer.updateTask = t
	go func() {
		task.WhenAll(context.Background(), updates)
		w.loop.Call(func() {
			w.applyTextureReferences(layer, dirty)
			w.publishEvent(eventbus.EventMeshPublished, layer.resource, map[string]any{
				"chunks": len(dirty),
			})
		})
		resolve(struct{}{}, nil)
	}()
}

// applyTextureReferences обновляет текстуры слоёв, ссылающихся на
// только что перестроенные чанки. Единственная связь между чанками
// разных слоёв.
func (w *World) applyTextureReferences(sourceLayer *layerState, updated []*Chunk) {
	for _, target := range w.layers {
		for _, ref := range target.options.ReferencedTextures {
			if ref.Source != sourceLayer.resource {
				continue
			}
			for _, src := range updated {
				if src.disposed {
					continue
				}
				if dst := target.chunks[src.key]; dst != nil && !dst.disposed {
					dst.refreshReferencedTexture(src, ref)
				}
			}
		}
	}
}

// Tick — серверный либо клиентский тик: сбрасывает бюджет задач
// главного потока, продвигает перестройки мешей и дренирует слоты
// чанков в пределах бюджета.
func (w *World) Tick() {
	w.loop.Call(func() {
		w.tickBudget = 0
		w.advanceMeshWork()
	})
}

// PreRender продвигает перестройки перед кадром, не сбрасывая бюджет.
func (w *World) PreRender() {
	w.loop.Call(func() {
		w.advanceMeshWork()
	})
}

func (w *World) advanceMeshWork() {
	for _, layer := range w.layers {
		// Чанки, изменившиеся с прошлого прохода, попадают в
		// очередь перестройки по расхождению счётчиков.
		for _, c := range layer.chunks {
			if c.array.ModificationCount() != c.lastMeshModificationCount {
				layer.needsMeshUpdate[c] = struct{}{}
			}
		}
		w.dispatchMeshUpdate(layer)
		for _, c := range layer.chunks {
			c.drainMainTasks(&w.tickBudget)
		}
	}
}

// ClearAsync опустошает мир: увеличивает счётчик очисток, обнуляет
// журнал, дожидается всех задействованных задач, уничтожает чанки и
// слои.
func (w *World) ClearAsync() *task.Task[struct{}] {
	t, resolve := task.New[struct{}]()
	w.loop.Post(func() {
		w.log.Clear()
		w.logger.Info("мир очищается, clear_count=%d", w.log.ClearCount())
		w.publishEvent(eventbus.EventWorldCleared, "", map[string]any{
			"clear_count": w.log.ClearCount(),
		})
		prevMod := w.lastModification
		barrier, barrierResolve := task.New[bool]()
		w.lastModification = barrier

		var layerTasks []*task.Task[struct{}]
		for _, layer := range w.layers {
			layerTasks = append(layerTasks, layer.updateTask)
		}
		go func() {
			prevMod.Await(context.Background())
			task.WhenAll(context.Background(), layerTasks)
			w.loop.Call(func() {
				w.disposeAllLayers()
			})
			barrierResolve(false, nil)
			resolve(struct{}{}, nil)
		}()
	})
	return t
}

// ClearLayerAsync уничтожает чанки одного слоя и вычёркивает его
// записи из журнала. Перенумерация журнала отражена ростом счётчика
// очисток: наблюдатели выполняют полный повтор с нулевого курсора.
func (w *World) ClearLayerAsync(resource string) *task.Task[struct{}] {
	t, resolve := task.New[struct{}]()
	w.loop.Post(func() {
		w.log.RemoveResource(resource)
		w.publishEvent(eventbus.EventLayerRemoved, resource, map[string]any{
			"clear_count": w.log.ClearCount(),
		})
		layer := w.layers[resource]
		if layer == nil {
			resolve(struct{}{}, nil)
			return
		}
		prevMod := w.lastModification
		barrier, barrierResolve := task.New[bool]()
		w.lastModification = barrier
		go func() {
			prevMod.Await(context.Background())
			layer.updateTask.Await(context.Background())
			w.loop.Call(func() {
				for key, c := range layer.chunks {
					c.dispose()
					delete(layer.chunks, key)
					metrics.Default().ChunksActive.Dec()
				}
				delete(w.layers, resource)
			})
			barrierResolve(false, nil)
			resolve(struct{}{}, nil)
		}()
	})
	return t
}

// ApplyReplicatedClear выполняет локальную очистку наблюдателя при
// смене счётчика очисток авторитета.
func (w *World) ApplyReplicatedClear() *task.Task[struct{}] {
	return w.ClearAsync()
}

// RemoveClientChunk уничтожает чанк на стороне наблюдателя, когда
// хост выгружает его из области видимости.
func (w *World) RemoveClientChunk(resource string, key vec.Vec3) {
	w.loop.Call(func() {
		layer := w.layers[resource]
		if layer == nil {
			return
		}
		if c := layer.chunks[key]; c != nil {
			delete(layer.needsMeshUpdate, c)
			c.dispose()
			delete(layer.chunks, key)
			metrics.Default().ChunksActive.Dec()
		}
	})
}

func (w *World) disposeAllLayers() {
	for name, layer := range w.layers {
		for key, c := range layer.chunks {
			c.dispose()
			delete(layer.chunks, key)
			metrics.Default().ChunksActive.Dec()
		}
		delete(w.layers, name)
	}
}

// Options возвращает настройки слоя.
func (w *World) Options(resource string) (ResourceOptions, bool) {
	opts, ok := w.options[resource]
	return opts, ok
}

// Quality возвращает параметры решётки слоя.
func (w *World) Quality(resource string) (field.Quality, bool) {
	opts, ok := w.options[resource]
	return opts.Quality, ok
}

// publishEvent отправляет событие жизненного цикла в глобальную шину.
// Без инициализированной шины вызов ничего не стоит.
func (w *World) publishEvent(eventType, resource string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		w.logger.Warn("сериализация события %s: %v", eventType, err)
		return
	}
	ev := eventbus.NewEnvelope("world", eventType, resource, payload)
	if err := eventbus.Publish(context.Background(), ev); err != nil {
		w.logger.Warn("публикация события %s: %v", eventType, err)
	}
}
