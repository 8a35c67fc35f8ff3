// Package replication содержит журнал модификаций, проводной формат
// кадров и протокол доставки от авторитета к наблюдателям.
package replication

import (
	"github.com/annel0/sdf-world/internal/sdf"
)

// Op задаёт оператор модификации поля.
type Op uint8

const (
	// OpAdd — объединение фигуры с полем.
	OpAdd Op = 0
	// OpSubtract — вычитание фигуры из поля.
	OpSubtract Op = 1
)

// String возвращает имя оператора для логов и метрик.
func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSubtract:
		return "subtract"
	default:
		return "unknown"
	}
}

// Modification — одна запись журнала: оператор, слой и фигура.
// Фигура неизменяема и принадлежит журналу.
type Modification struct {
	Op       Op
	Resource string
	Shape    sdf.Shape
}

// Log — упорядоченный журнал модификаций с монотонным счётчиком
// очисток. Принадлежит главному циклу мира и не синхронизируется.
type Log struct {
	mods       []Modification
	clearCount int32
}

// NewLog создаёт пустой журнал.
func NewLog() *Log {
	return &Log{}
}

// Append добавляет запись в конец журнала.
func (l *Log) Append(m Modification) {
	l.mods = append(l.mods, m)
}

// Len возвращает текущую длину журнала.
func (l *Log) Len() int {
	return len(l.mods)
}

// ClearCount возвращает монотонный счётчик очисток.
func (l *Log) ClearCount() int32 {
	return l.clearCount
}

// Slice возвращает до n записей начиная с from.
func (l *Log) Slice(from, n int) []Modification {
	if from >= len(l.mods) {
		return nil
	}
	end := from + n
	if end > len(l.mods) {
		end = len(l.mods)
	}
	return l.mods[from:end]
}

// Clear опустошает журнал и увеличивает счётчик очисток.
func (l *Log) Clear() {
	l.mods = l.mods[:0]
	l.clearCount++
}

// RemoveResource удаляет записи слоя и увеличивает счётчик очисток:
// перенумерация записей требует от наблюдателей полного повтора
// отфильтрованного журнала с нулевого курсора.
func (l *Log) RemoveResource(resource string) {
	kept := l.mods[:0]
	for _, m := range l.mods {
		if m.Resource != resource {
			kept = append(kept, m)
		}
	}
	l.mods = kept
	l.clearCount++
}
