package vec

// Box представляет осевыравненный ограничивающий параллелепипед в мировых
// координатах. Нулевое значение Box{} — «пустые границы»: фигура считается
// бесконечной (процедурный шум), и перечисление затронутых чанков для неё
// не выполняется.
type Box struct {
	Min, Max Vec3F
}

// NewBox строит границы по двум произвольным углам.
func NewBox(a, b Vec3F) Box {
	return Box{Min: a.Min(b), Max: a.Max(b)}
}

// IsEmpty сообщает, являются ли границы пустыми (бесконечная фигура).
func (b Box) IsEmpty() bool {
	return b == Box{}
}

// Translate сдвигает границы на вектор offset. Пустые границы остаются пустыми.
func (b Box) Translate(offset Vec3F) Box {
	if b.IsEmpty() {
		return b
	}
	return Box{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Expand расширяет границы на r по всем осям. Пустые границы остаются пустыми.
func (b Box) Expand(r float64) Box {
	if b.IsEmpty() {
		return b
	}
	d := Vec3F{X: r, Y: r, Z: r}
	return Box{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Intersects проверяет пересечение с другими границами.
// Интервалы считаются замкнутыми: касание граней — это пересечение,
// иначе фигура, заканчивающаяся ровно на границе чанка, не обновила бы
// его поля-отступы. Пустые границы пересекаются со всем.
func (b Box) Intersects(other Box) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return true
	}
	return b.Min.X <= other.Max.X && other.Min.X <= b.Max.X &&
		b.Min.Y <= other.Max.Y && other.Min.Y <= b.Max.Y &&
		b.Min.Z <= other.Max.Z && other.Min.Z <= b.Max.Z
}

// Intersect возвращает пересечение границ. Пустые границы нейтральны.
func (b Box) Intersect(other Box) Box {
	if b.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return b
	}
	return Box{Min: b.Min.Max(other.Min), Max: b.Max.Min(other.Max)}
}

// Union возвращает объединение границ. Если одна из сторон пуста,
// результат пуст: объединение с бесконечной фигурой бесконечно.
func (b Box) Union(other Box) Box {
	if b.IsEmpty() || other.IsEmpty() {
		return Box{}
	}
	return Box{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Contains проверяет, лежит ли точка внутри границ (включая грани).
func (b Box) Contains(p Vec3F) bool {
	if b.IsEmpty() {
		return true
	}
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}
