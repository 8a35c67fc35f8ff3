package replication

import (
	"sort"

	"github.com/google/uuid"

	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/metrics"
)

// cursor хранит позицию наблюдателя в журнале авторитета.
type cursor struct {
	clearCount int32
	modCount   int
}

// SendFunc доставляет закодированный кадр наблюдателю. Возврат ошибки
// означает, что кадр не поставлен в очередь отправки.
type SendFunc func(id uuid.UUID, frame []byte) error

// Replicator раздаёт журнал авторитета наблюдателям. Принадлежит
// главному циклу мира, как и сам журнал, и не синхронизируется.
type Replicator struct {
	log     *Log
	cursors map[uuid.UUID]*cursor
}

// NewReplicator создаёт репликатор поверх журнала.
func NewReplicator(log *Log) *Replicator {
	return &Replicator{
		log:     log,
		cursors: make(map[uuid.UUID]*cursor),
	}
}

// AddObserver регистрирует наблюдателя с нулевым курсором: первый же
// тик начнёт догонять его с начала журнала.
func (r *Replicator) AddObserver(id uuid.UUID) {
	if _, ok := r.cursors[id]; ok {
		return
	}
	r.cursors[id] = &cursor{clearCount: r.log.ClearCount()}
	logging.GetReplicationLogger().Info("наблюдатель %s зарегистрирован, журнал %d записей", id, r.log.Len())
}

// RemoveObserver снимает наблюдателя с раздачи.
func (r *Replicator) RemoveObserver(id uuid.UUID) {
	delete(r.cursors, id)
}

// Observers возвращает отсортированный список наблюдателей.
func (r *Replicator) Observers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.cursors))
	for id := range r.cursors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Lag возвращает число непосланных наблюдателю записей журнала.
func (r *Replicator) Lag(id uuid.UUID) int {
	c, ok := r.cursors[id]
	if !ok || c.clearCount != r.log.ClearCount() {
		return r.log.Len()
	}
	return r.log.Len() - c.modCount
}

// Tick обходит наблюдателей и шлёт каждому отстающему один кадр.
// Курсор сдвигается только после успешной постановки кадра в очередь:
// при ошибке отправки следующий тик повторит тот же кадр.
func (r *Replicator) Tick(send SendFunc) {
	for id, c := range r.cursors {
		if c.clearCount != r.log.ClearCount() {
			c.clearCount = r.log.ClearCount()
			c.modCount = 0
		}
		if c.modCount == r.log.Len() {
			continue
		}
		mods := r.log.Slice(c.modCount, MaxFrameMods)
		frame := &Frame{
			ClearCount:    c.clearCount,
			PreviousCount: int32(c.modCount),
			TotalCount:    int32(r.log.Len()),
			Mods:          mods,
		}
		payload := frame.Encode()
		if err := send(id, payload); err != nil {
			logging.GetReplicationLogger().Warn("кадр для %s не отправлен: %v", id, err)
			continue
		}
		c.modCount += len(mods)
		metrics.Default().ReplicationFrames.Inc()
		metrics.Default().ReplicationMods.Add(float64(len(mods)))
		metrics.Default().NetworkBytes.WithLabelValues("out").Add(float64(len(payload)))
	}
}
