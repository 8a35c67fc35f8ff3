package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/sdf-world/internal/config"
	"github.com/annel0/sdf-world/internal/engine"
	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/network"
	"github.com/annel0/sdf-world/internal/replication"
	"github.com/annel0/sdf-world/internal/task"
	"github.com/annel0/sdf-world/internal/world"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7777", "адрес KCP-сервера авторитета")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := task.NewLoop()
	go loop.Run(ctx)

	host := engine.Host{
		Writers: engine.NewWriterPool(func() engine.MeshWriter {
			return engine.NewSurfaceWriter()
		}, 4),
	}
	w, err := world.NewWorld(world.ModeObserver, loop, host, cfg.Resources)
	if err != nil {
		logging.Error("создание мира: %v", err)
		os.Exit(1)
	}

	client, err := network.Dial(*addr, cfg.Network)
	if err != nil {
		logging.Error("подключение к %s: %v", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	// Сервер принимает сессию по первому датаграмму: короткое приветствие
	// открывает канал до прихода кадров.
	if err := client.Send(ctx, []byte("hello")); err != nil {
		logging.Error("приветствие: %v", err)
		os.Exit(1)
	}
	logging.Info("наблюдатель подключён к %s", *addr)

	applier := replication.NewApplier(w)
	go func() {
		for {
			payload, err := client.Receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logging.Error("приём кадра: %v", err)
				}
				cancel()
				return
			}
			loop.Call(func() {
				if _, err := applier.Apply(payload); err != nil {
					logging.Warn("кадр отвергнут: %v", err)
				}
			})
		}
	}()

	ticker := time.NewTicker(cfg.Server.GetTickInterval())
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				w.Tick()
			case <-ctx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info("получен сигнал %v, завершение", sig)
	case <-ctx.Done():
		logging.Info("соединение с авторитетом потеряно")
	}
}
