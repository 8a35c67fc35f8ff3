// Package world владеет чанками всех слоёв, принимает модификации,
// раздаёт по-чанковую работу и поддерживает очередь перестройки мешей.
package world

import (
	"fmt"

	"github.com/annel0/sdf-world/internal/field"
)

// TextureRef отображает текстуру чанка исходного слоя на атрибут
// шейдера целевого слоя.
type TextureRef struct {
	Source    string `yaml:"source"`
	Attribute string `yaml:"attribute"`
}

// ResourceOptions описывает слой: решётку, размерность и политику
// рендера, коллизии и текстур. Неизменяемо после привязки первого
// чанка.
type ResourceOptions struct {
	Quality field.Quality `yaml:"quality"`

	// Dims — размерность слоя: 2 (слой) или 3 (объём).
	Dims int `yaml:"dims"`

	// Material — материал рендера; пустая строка отключает рендер мешей.
	Material string `yaml:"material"`

	// HasCollision включает создание коллизионных мешей.
	HasCollision bool `yaml:"has_collision"`

	// IsTextureSourceOnly подавляет генерацию мешей: чанки слоя
	// существуют только как источник текстур для других слоёв.
	IsTextureSourceOnly bool `yaml:"is_texture_source_only"`

	// SplitCollisionTags применяется к каждой физической фигуре слоя.
	SplitCollisionTags []string `yaml:"split_collision_tags"`

	// ReferencedTextures перечисляет текстуры чужих слоёв,
	// подаваемые в шейдер этого слоя.
	ReferencedTextures []TextureRef `yaml:"referenced_textures"`
}

// Validate проверяет согласованность настроек слоя.
func (o ResourceOptions) Validate() error {
	if o.Dims != 2 && o.Dims != 3 {
		return fmt.Errorf("world: размерность слоя должна быть 2 или 3, получено %d", o.Dims)
	}
	if o.Quality.ChunkSize <= 0 || o.Quality.ChunkResolution <= 0 || o.Quality.MaxDistance <= 0 {
		return fmt.Errorf("world: параметры качества должны быть положительными: %+v", o.Quality)
	}
	return nil
}

// RendersMesh сообщает, порождает ли слой меши для рендера.
func (o ResourceOptions) RendersMesh() bool {
	return o.Material != "" && !o.IsTextureSourceOnly
}
