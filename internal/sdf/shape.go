// Package sdf содержит аналитические фигуры со знаковыми функциями
// расстояния, операторы композиции и проводной реестр вариантов.
package sdf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/sdf-world/internal/protocol"
	"github.com/annel0/sdf-world/internal/vec"
)

// Shape представляет аналитическую фигуру в мировых координатах.
// Значение фигуры неизменяемо после создания.
type Shape interface {
	// Sample возвращает знаковое расстояние в точке p
	// (отрицательное внутри, положительное снаружи).
	Sample(p vec.Vec3F) float64

	// Bounds возвращает консервативные осевыравненные границы.
	// Пустые границы (vec.Box{}) означают бесконечную фигуру.
	Bounds() vec.Box

	// TypeName возвращает каноническое имя варианта для реестра.
	TypeName() string

	// WritePayload сериализует полезную нагрузку фигуры (без индекса типа).
	WritePayload(w *protocol.Writer)
}

// ReadFunc десериализует полезную нагрузку варианта.
type ReadFunc func(r *protocol.Reader) (Shape, error)

type registration struct {
	name string
	read ReadFunc
}

var (
	regMu         sync.Mutex
	registrations []registration
	freezeOnce    sync.Once
	indexByName   map[string]uint32
	readByIndex   []ReadFunc
)

// Register добавляет вариант фигуры в реестр. Вызывается из init()
// файлов пакета; после заморозки реестра регистрация запрещена.
func Register(name string, read ReadFunc) {
	regMu.Lock()
	defer regMu.Unlock()
	if indexByName != nil {
		panic(fmt.Sprintf("sdf: регистрация %q после заморозки реестра", name))
	}
	for _, reg := range registrations {
		if reg.name == name {
			panic(fmt.Sprintf("sdf: повторная регистрация варианта %q", name))
		}
	}
	registrations = append(registrations, registration{name: name, read: read})
}

// FreezeRegistry сортирует зарегистрированные варианты по каноническому
// имени и назначает проводные индексы. Сортировка даёт всем пирам одно и
// то же назначение индексов без согласования. Идемпотентна.
func FreezeRegistry() {
	freezeOnce.Do(func() {
		regMu.Lock()
		defer regMu.Unlock()
		sort.Slice(registrations, func(i, j int) bool {
			return registrations[i].name < registrations[j].name
		})
		indexByName = make(map[string]uint32, len(registrations))
		readByIndex = make([]ReadFunc, len(registrations))
		for i, reg := range registrations {
			indexByName[reg.name] = uint32(i)
			readByIndex[i] = reg.read
		}
	})
}

// TypeIndex возвращает проводной индекс варианта по имени.
func TypeIndex(name string) (uint32, bool) {
	FreezeRegistry()
	idx, ok := indexByName[name]
	return idx, ok
}

// WriteShape записывает фигуру как (индекс, полезная нагрузка).
// Незарегистрированный вариант — ошибка программиста.
func WriteShape(w *protocol.Writer, s Shape) {
	FreezeRegistry()
	idx, ok := indexByName[s.TypeName()]
	if !ok {
		panic(fmt.Sprintf("sdf: запись незарегистрированного варианта %q", s.TypeName()))
	}
	w.WriteUint32(idx)
	s.WritePayload(w)
}

// ReadShape читает фигуру, диспетчеризуя по индексу варианта.
// Неизвестный индекс — ошибка протокола, восстановимая ресинхронизацией.
func ReadShape(r *protocol.Reader) (Shape, error) {
	FreezeRegistry()
	idx := r.ReadUint32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if int(idx) >= len(readByIndex) {
		return nil, fmt.Errorf("sdf: неизвестный индекс варианта %d (зарегистрировано %d)", idx, len(readByIndex))
	}
	return readByIndex[idx](r)
}

// EncodeShape сериализует фигуру в самостоятельный байтовый срез.
func EncodeShape(s Shape) []byte {
	w := protocol.NewWriter()
	WriteShape(w, s)
	return w.Bytes()
}

// DecodeShape десериализует фигуру из байтового среза.
func DecodeShape(data []byte) (Shape, error) {
	r := protocol.NewReader(data)
	s, err := ReadShape(r)
	if err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func writeVec(w *protocol.Writer, v vec.Vec3F) {
	w.WriteFloat64(v.X)
	w.WriteFloat64(v.Y)
	w.WriteFloat64(v.Z)
}

func readVec(r *protocol.Reader) vec.Vec3F {
	return vec.Vec3F{
		X: r.ReadFloat64(),
		Y: r.ReadFloat64(),
		Z: r.ReadFloat64(),
	}
}
