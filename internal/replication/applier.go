package replication

import (
	"errors"
	"fmt"

	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/metrics"
	"github.com/annel0/sdf-world/internal/task"
)

// ErrFrameMismatch возвращается, когда previous_count кадра не совпал
// с локальным счётчиком. Наблюдатель пропускает кадр; авторитет
// повторит его на следующем тике, так как не сдвинул курсор.
var ErrFrameMismatch = errors.New("replication: previous_count кадра не совпал с локальным счётчиком")

// Target — мир наблюдателя с точки зрения применения кадров.
type Target interface {
	ApplyReplicated(Modification) *task.Task[bool]
	ApplyReplicatedClear() *task.Task[struct{}]
}

// Applier применяет входящие кадры к миру наблюдателя, отслеживая
// локальный счётчик применённых модификаций и счётчик очисток.
// Вызывается с главного цикла мира наблюдателя.
type Applier struct {
	target     Target
	clearCount int32
	modCount   int
	started    bool
}

// NewApplier создаёт применитель поверх мира наблюдателя.
func NewApplier(target Target) *Applier {
	return &Applier{target: target}
}

// ModificationCount возвращает число применённых модификаций.
func (a *Applier) ModificationCount() int {
	return a.modCount
}

// Apply разбирает и применяет один кадр. Возвращает задачи всех
// поставленных модификаций: вызывающий может дождаться их для
// детерминированной сверки состояния.
func (a *Applier) Apply(payload []byte) ([]*task.Task[bool], error) {
	metrics.Default().NetworkBytes.WithLabelValues("in").Add(float64(len(payload)))
	frame, err := DecodeFrame(payload)
	if err != nil {
		metrics.Default().DroppedFrames.Inc()
		logging.GetReplicationLogger().Error("кадр отброшен: %v", err)
		return nil, err
	}
	return a.ApplyFrame(frame)
}

// ApplyFrame применяет уже разобранный кадр.
func (a *Applier) ApplyFrame(frame *Frame) ([]*task.Task[bool], error) {
	if a.started && frame.ClearCount != a.clearCount {
		a.target.ApplyReplicatedClear()
		a.modCount = 0
	}
	a.started = true
	a.clearCount = frame.ClearCount

	if frame.PreviousCount != int32(a.modCount) {
		metrics.Default().DroppedFrames.Inc()
		logging.GetReplicationLogger().Warn(
			"кадр отброшен: previous_count=%d, локально применено %d",
			frame.PreviousCount, a.modCount)
		return nil, fmt.Errorf("%w: кадр %d, локально %d",
			ErrFrameMismatch, frame.PreviousCount, a.modCount)
	}

	tasks := make([]*task.Task[bool], 0, len(frame.Mods))
	for _, m := range frame.Mods {
		tasks = append(tasks, a.target.ApplyReplicated(m))
	}
	a.modCount += len(frame.Mods)
	return tasks, nil
}
