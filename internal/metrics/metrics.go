// Package metrics регистрирует метрики Prometheus для подсистем мира
// и репликации. Единственный набор на процесс: повторная регистрация
// в дефолтном регистре запрещена.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Set содержит все метрики ядра.
//
// Метрики:
// * sdf_world_modifications_total{op} — counter
// * sdf_world_chunks_active — gauge
// * sdf_world_mesh_updates_total — counter
// * sdf_world_mesh_update_duration_seconds — histogram
// * sdf_world_replication_frames_total — counter
// * sdf_world_replication_modifications_total — counter
// * sdf_world_replication_dropped_frames_total — counter
// * sdf_world_network_bytes_total{direction} — counter
type Set struct {
	Modifications      *prometheus.CounterVec
	ChunksActive       prometheus.Gauge
	MeshUpdates        prometheus.Counter
	MeshUpdateDuration prometheus.Histogram
	ReplicationFrames  prometheus.Counter
	ReplicationMods    prometheus.Counter
	DroppedFrames      prometheus.Counter
	NetworkBytes       *prometheus.CounterVec
}

var (
	defaultSet  *Set
	defaultOnce sync.Once
)

// Default возвращает общий набор метрик, регистрируя его при первом
// обращении.
func Default() *Set {
	defaultOnce.Do(func() {
		defaultSet = newSet()
		defaultSet.register(prometheus.DefaultRegisterer)
	})
	return defaultSet
}

func newSet() *Set {
	return &Set{
		Modifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdf_world",
			Name:      "modifications_total",
			Help:      "Общее число принятых модификаций поля.",
		}, []string{"op"}),
		ChunksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sdf_world",
			Name:      "chunks_active",
			Help:      "Текущее число живых чанков во всех слоях.",
		}),
		MeshUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdf_world",
			Name:      "mesh_updates_total",
			Help:      "Общее число завершённых перестроек мешей.",
		}),
		MeshUpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sdf_world",
			Name:      "mesh_update_duration_seconds",
			Help:      "Длительность фоновой перестройки меша чанка.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ReplicationFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdf_world",
			Name:      "replication_frames_total",
			Help:      "Общее число отправленных кадров репликации.",
		}),
		ReplicationMods: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdf_world",
			Name:      "replication_modifications_total",
			Help:      "Общее число модификаций, отправленных наблюдателям.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdf_world",
			Name:      "replication_dropped_frames_total",
			Help:      "Число кадров, отвергнутых наблюдателями из-за разрыва.",
		}),
		NetworkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdf_world",
			Name:      "network_bytes_total",
			Help:      "Байты, прошедшие через сетевой канал.",
		}, []string{"direction"}),
	}
}

func (s *Set) register(r prometheus.Registerer) {
	r.MustRegister(
		s.Modifications,
		s.ChunksActive,
		s.MeshUpdates,
		s.MeshUpdateDuration,
		s.ReplicationFrames,
		s.ReplicationMods,
		s.DroppedFrames,
		s.NetworkBytes,
	)
}
