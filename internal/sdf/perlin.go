package sdf

import (
	"github.com/aquilax/go-perlin"

	"github.com/annel0/sdf-world/internal/protocol"
	"github.com/annel0/sdf-world/internal/vec"
)

func init() {
	Register("perlin", readPerlinNoise)
	Register("perlin2d", readPerlinNoise2D)
}

const (
	perlinAlpha   = 2
	perlinBeta    = 2
	perlinOctaves = 3
)

// PerlinNoise задаёт градиентный шум как фигуру: внутренность там, где
// значение шума превышает порог. Расстояние приближённое, масштаб
// задаётся амплитудой.
type PerlinNoise struct {
	Seed      int64
	Frequency float64
	Threshold float64
	Amplitude float64

	gen *perlin.Perlin
}

// NewPerlinNoise создаёт трёхмерный градиентный шум с параметрами
// генератора, общими для всех пиров с тем же семенем.
func NewPerlinNoise(seed int64, frequency, threshold, amplitude float64) *PerlinNoise {
	return &PerlinNoise{
		Seed:      seed,
		Frequency: frequency,
		Threshold: threshold,
		Amplitude: amplitude,
		gen:       perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed),
	}
}

// Sample возвращает (порог - шум) * амплитуду: отрицательно там, где
// шум выше порога.
func (n *PerlinNoise) Sample(p vec.Vec3F) float64 {
	v := n.gen.Noise3D(p.X*n.Frequency, p.Y*n.Frequency, p.Z*n.Frequency)
	return (n.Threshold - v) * n.Amplitude
}

// Bounds возвращает пустые границы: шум определён всюду.
func (n *PerlinNoise) Bounds() vec.Box { return vec.Box{} }

// TypeName возвращает каноническое имя варианта.
func (n *PerlinNoise) TypeName() string { return "perlin" }

// WritePayload сериализует параметры; генератор восстанавливается
// из семени при чтении.
func (n *PerlinNoise) WritePayload(w *protocol.Writer) {
	w.WriteInt64(n.Seed)
	w.WriteFloat64(n.Frequency)
	w.WriteFloat64(n.Threshold)
	w.WriteFloat64(n.Amplitude)
}

func readPerlinNoise(r *protocol.Reader) (Shape, error) {
	seed := r.ReadInt64()
	frequency := r.ReadFloat64()
	threshold := r.ReadFloat64()
	amplitude := r.ReadFloat64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return NewPerlinNoise(seed, frequency, threshold, amplitude), nil
}

// PerlinNoise2D задаёт градиентный шум в плоскости XY.
type PerlinNoise2D struct {
	Seed      int64
	Frequency float64
	Threshold float64
	Amplitude float64

	gen *perlin.Perlin
}

// NewPerlinNoise2D создаёт двумерный градиентный шум.
func NewPerlinNoise2D(seed int64, frequency, threshold, amplitude float64) *PerlinNoise2D {
	return &PerlinNoise2D{
		Seed:      seed,
		Frequency: frequency,
		Threshold: threshold,
		Amplitude: amplitude,
		gen:       perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed),
	}
}

// Sample возвращает (порог - шум) * амплитуду по координатам XY.
func (n *PerlinNoise2D) Sample(p vec.Vec3F) float64 {
	v := n.gen.Noise2D(p.X*n.Frequency, p.Y*n.Frequency)
	return (n.Threshold - v) * n.Amplitude
}

// Bounds возвращает пустые границы: шум определён всюду.
func (n *PerlinNoise2D) Bounds() vec.Box { return vec.Box{} }

// TypeName возвращает каноническое имя варианта.
func (n *PerlinNoise2D) TypeName() string { return "perlin2d" }

// WritePayload сериализует параметры генератора.
func (n *PerlinNoise2D) WritePayload(w *protocol.Writer) {
	w.WriteInt64(n.Seed)
	w.WriteFloat64(n.Frequency)
	w.WriteFloat64(n.Threshold)
	w.WriteFloat64(n.Amplitude)
}

func readPerlinNoise2D(r *protocol.Reader) (Shape, error) {
	seed := r.ReadInt64()
	frequency := r.ReadFloat64()
	threshold := r.ReadFloat64()
	amplitude := r.ReadFloat64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return NewPerlinNoise2D(seed, frequency, threshold, amplitude), nil
}
