// Package config читает YAML-конфигурацию авторитета: слои мира,
// порты, шину событий и телеметрию.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/sdf-world/internal/field"
	"github.com/annel0/sdf-world/internal/network"
	"github.com/annel0/sdf-world/internal/world"
)

// Config — корневая структура конфигурации приложения.
type Config struct {
	Resources map[string]world.ResourceOptions `yaml:"resources"`
	Server    ServerConfig                     `yaml:"server"`
	Network   network.Config                   `yaml:"network"`
	EventBus  EventBusConfig                   `yaml:"eventbus"`
	Telemetry TelemetryConfig                  `yaml:"telemetry"`
}

type ServerConfig struct {
	ListenPort  int `yaml:"listen_port"`
	MetricsPort int `yaml:"metrics_port"`

	// TickMs — период серверного тика раздачи кадров в миллисекундах.
	TickMs int `yaml:"tick_ms"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// GetListenPort возвращает порт KCP с приоритетом конфиг, окружение,
// значение по умолчанию.
func (s *ServerConfig) GetListenPort() int {
	return getPortWithEnvFallback(s.ListenPort, "WORLD_LISTEN_PORT", 7777)
}

// GetMetricsPort возвращает порт Prometheus метрик.
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "WORLD_METRICS_PORT", 2112)
}

// GetTickInterval возвращает период тика раздачи.
func (s *ServerConfig) GetTickInterval() time.Duration {
	if s.TickMs > 0 {
		return time.Duration(s.TickMs) * time.Millisecond
	}
	return 50 * time.Millisecond
}

func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Default возвращает конфигурацию с одним объёмным слоем, пригодную
// для запуска без файла.
func Default() *Config {
	return &Config{
		Resources: map[string]world.ResourceOptions{
			"terrain": {
				Quality:      field.Quality{ChunkSize: 16, ChunkResolution: 32, MaxDistance: 4},
				Dims:         3,
				Material:     "terrain",
				HasCollision: true,
			},
		},
		Network: network.DefaultConfig(),
	}
}

// Load читает YAML-файл конфигурации. Если path пуст, берётся путь из
// WORLD_CONFIG; если и он пуст, возвращается конфигурация по
// умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WORLD_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: чтение %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: разбор %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек всех слоёв.
func (c *Config) Validate() error {
	if len(c.Resources) == 0 {
		return fmt.Errorf("config: не задан ни один слой")
	}
	for name, opts := range c.Resources {
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("config: слой %q: %w", name, err)
		}
		for _, ref := range opts.ReferencedTextures {
			if _, ok := c.Resources[ref.Source]; !ok {
				return fmt.Errorf("config: слой %q ссылается на неизвестный слой %q",
					name, ref.Source)
			}
		}
	}
	return nil
}
