package engine

import "github.com/annel0/sdf-world/internal/vec"

// PhysicsBody представляет коллизию одного чанка в физическом движке
// хоста. Вершины передаются уже в мировых координатах.
type PhysicsBody interface {
	AddMeshShape(vertices []vec.Vec3F, indices []int32, tags []string)
	UpdateMesh(vertices []vec.Vec3F, indices []int32)
	Remove()
}

// SceneObject представляет узел сцены одного чанка: подмена модели и
// атрибуты шейдера (в том числе текстуры соседних слоёв).
type SceneObject interface {
	ReplaceModel(mesh RenderMesh)
	SetAttribute(name string, value any)
	Remove()
}

// Texture представляет текстурный объект хоста.
type Texture interface {
	Release()
}

// TextureFactory создаёт текстуры из сырых байтов выборок.
type TextureFactory interface {
	Create2D(data []byte, width, height int) Texture
	Create3D(data []byte, width, height, depth int) Texture
}

// Host объединяет интерфейсы хост-движка, потребляемые ядром.
// Physics, Scene и Textures могут быть nil: соответствующая подсистема
// отключается. Writers обязателен: перестройка мешей берёт писателя из пула.
type Host struct {
	Writers  WriterPool
	Physics  func(key vec.Vec3) PhysicsBody
	Scene    func(key vec.Vec3) SceneObject
	Textures TextureFactory
}
