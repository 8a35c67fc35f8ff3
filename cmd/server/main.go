package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/sdf-world/internal/config"
	"github.com/annel0/sdf-world/internal/engine"
	"github.com/annel0/sdf-world/internal/eventbus"
	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/network"
	"github.com/annel0/sdf-world/internal/observability"
	"github.com/annel0/sdf-world/internal/replication"
	"github.com/annel0/sdf-world/internal/task"
	"github.com/annel0/sdf-world/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации (по умолчанию WORLD_CONFIG)")
	flag.Parse()

	if err := logging.InitLogger(); err != nil {
		log.Fatalf("инициализация логирования: %v", err)
	}
	defer logging.CloseLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("конфигурация: %v", err)
		os.Exit(1)
	}
	logging.Info("авторитет запускается: слоёв=%d, порт=%d, тик=%s",
		len(cfg.Resources), cfg.Server.GetListenPort(), cfg.Server.GetTickInterval())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		name := cfg.Telemetry.ServiceName
		if name == "" {
			name = "sdf-world"
		}
		shutdown, err := observability.InitTelemetry(ctx, name)
		if err != nil {
			logging.Warn("телеметрия не запустилась: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	bus, busClose := setupEventBus(cfg)
	defer busClose()
	eventbus.Init(bus)
	exporter := eventbus.NewMetricsExporter(bus)
	exporter.Start()
	defer exporter.Stop()
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("слушатель логирования шины: %v", err)
	}

	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logging.Warn("метрики на %s: %v", metricsAddr, err)
		}
	}()

	loop := task.NewLoop()
	go loop.Run(ctx)

	host := engine.Host{
		Writers: engine.NewWriterPool(func() engine.MeshWriter {
			return engine.NewSurfaceWriter()
		}, 4),
	}
	w, err := world.NewWorld(world.ModeAuthority, loop, host, cfg.Resources)
	if err != nil {
		logging.Error("создание мира: %v", err)
		os.Exit(1)
	}

	replicator := replication.NewReplicator(w.Log())
	server := network.NewServer(cfg.Network)
	server.OnConnect(func(id uuid.UUID, ch *network.Channel) {
		loop.Post(func() { replicator.AddObserver(id) })
		publishObserverEvent(eventbus.EventObserverConnected, id, ch.RemoteAddr())
		go drainObserver(ctx, server, id, ch)
	})
	server.OnDisconnect(func(id uuid.UUID) {
		loop.Post(func() { replicator.RemoveObserver(id) })
		publishObserverEvent(eventbus.EventObserverDisconnected, id, "")
	})
	if err := server.Listen(fmt.Sprintf(":%d", cfg.Server.GetListenPort())); err != nil {
		logging.Error("сетевой сервер: %v", err)
		os.Exit(1)
	}
	defer server.Close()

	ticker := time.NewTicker(cfg.Server.GetTickInterval())
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				w.Tick()
				loop.Call(func() { replicator.Tick(server.Send) })
			case <-ctx.Done():
				return
			}
		}
	}()

	logging.Info("авторитет готов: KCP :%d, метрики %s", cfg.Server.GetListenPort(), metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("получен сигнал %v, завершение", sig)
}

// setupEventBus выбирает реализацию шины: JetStream при заданном URL,
// иначе внутрипроцессная.
func setupEventBus(cfg *config.Config) (eventbus.Bus, func()) {
	if cfg.EventBus.URL == "" {
		return eventbus.NewMemoryBus(1024), func() {}
	}
	retention := time.Duration(cfg.EventBus.Retention) * time.Hour
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	js, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
	if err != nil {
		logging.Warn("JetStream %s недоступен, используется внутрипроцессная шина: %v",
			cfg.EventBus.URL, err)
		return eventbus.NewMemoryBus(1024), func() {}
	}
	return js, func() { js.Close() }
}

// drainObserver вычитывает входящие кадры наблюдателя. Наблюдатели не
// шлют модификаций; ошибка чтения означает разрыв сессии.
func drainObserver(ctx context.Context, server *network.Server, id uuid.UUID, ch *network.Channel) {
	for {
		if _, err := ch.Receive(ctx); err != nil {
			server.Disconnect(id)
			return
		}
	}
}

func publishObserverEvent(eventType string, id uuid.UUID, addr string) {
	payload := []byte(fmt.Sprintf(`{"observer":%q,"addr":%q}`, id, addr))
	ev := eventbus.NewEnvelope("server", eventType, "", payload)
	if err := eventbus.Publish(context.Background(), ev); err != nil {
		logging.Warn("публикация события %s: %v", eventType, err)
	}
}
