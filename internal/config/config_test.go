package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
resources:
  terrain:
    quality:
      chunk_size: 16
      chunk_resolution: 32
      max_distance: 4
    dims: 3
    material: terrain
    has_collision: true
  paint:
    quality:
      chunk_size: 16
      chunk_resolution: 64
      max_distance: 2
    dims: 2
    material: paint
    referenced_textures:
      - source: terrain
        attribute: terrain_field
server:
  listen_port: 9000
  tick_ms: 100
network:
  compress: false
  buffer_size: 64
eventbus:
  url: nats://127.0.0.1:4222
  stream: WORLD
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// Тест разбора полного файла конфигурации.
func TestLoad_FullFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Contains(t, cfg.Resources, "terrain")
	require.Contains(t, cfg.Resources, "paint")
	terrain := cfg.Resources["terrain"]
	assert.Equal(t, 3, terrain.Dims)
	assert.True(t, terrain.HasCollision)
	assert.Equal(t, 16.0, terrain.Quality.ChunkSize)

	paint := cfg.Resources["paint"]
	assert.Equal(t, 2, paint.Dims)
	require.Len(t, paint.ReferencedTextures, 1)
	assert.Equal(t, "terrain", paint.ReferencedTextures[0].Source)
	assert.Equal(t, "terrain_field", paint.ReferencedTextures[0].Attribute)

	assert.Equal(t, 9000, cfg.Server.GetListenPort())
	assert.Equal(t, 100*time.Millisecond, cfg.Server.GetTickInterval())
	assert.False(t, cfg.Network.Compress)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.EventBus.URL)
}

// Тест конфигурации по умолчанию при пустом пути и окружении.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORLD_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Contains(t, cfg.Resources, "terrain")
	assert.Equal(t, 7777, cfg.Server.GetListenPort())
	assert.Equal(t, 2112, cfg.Server.GetMetricsPort())
	assert.Equal(t, 50*time.Millisecond, cfg.Server.GetTickInterval())
}

// Тест приоритета окружения для портов.
func TestServerConfig_EnvFallback(t *testing.T) {
	t.Setenv("WORLD_LISTEN_PORT", "8123")
	s := ServerConfig{}
	assert.Equal(t, 8123, s.GetListenPort())

	s.ListenPort = 9999
	assert.Equal(t, 9999, s.GetListenPort(), "конфиг важнее окружения")
}

// Тест валидации: ссылка текстуры на несуществующий слой.
func TestValidate_UnknownTextureSource(t *testing.T) {
	broken := `
resources:
  paint:
    quality:
      chunk_size: 16
      chunk_resolution: 32
      max_distance: 4
    dims: 2
    material: paint
    referenced_textures:
      - source: missing
        attribute: attr
`
	_, err := Load(writeConfig(t, broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

// Тест валидации размерности слоя.
func TestValidate_BadDims(t *testing.T) {
	broken := `
resources:
  terrain:
    quality:
      chunk_size: 16
      chunk_resolution: 32
      max_distance: 4
    dims: 5
    material: terrain
`
	_, err := Load(writeConfig(t, broken))
	assert.Error(t, err)
}
