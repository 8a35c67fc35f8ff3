package replication

import (
	"errors"
	"fmt"

	"github.com/annel0/sdf-world/internal/protocol"
	"github.com/annel0/sdf-world/internal/sdf"
)

// MaxFrameMods ограничивает число модификаций в одном кадре.
const MaxFrameMods = 64

// ErrMalformedFrame возвращается при нарушении структуры кадра.
var ErrMalformedFrame = errors.New("replication: повреждённый кадр")

// Frame — один кадр доставки: позиция курсора наблюдателя и порция
// журнала. TotalCount сообщает длину журнала на момент отправки, чтобы
// наблюдатель мог оценить отставание.
type Frame struct {
	ClearCount    int32
	PreviousCount int32
	TotalCount    int32
	Mods          []Modification
}

// Encode сериализует кадр в проводной формат.
func (f *Frame) Encode() []byte {
	w := protocol.NewWriter()
	w.WriteInt32(f.ClearCount)
	w.WriteInt32(f.PreviousCount)
	w.WriteInt32(int32(len(f.Mods)))
	w.WriteInt32(f.TotalCount)
	for _, m := range f.Mods {
		w.WriteUint8(uint8(m.Op))
		w.WriteString(m.Resource)
		sdf.WriteShape(w, m.Shape)
	}
	return w.Bytes()
}

// DecodeFrame разбирает кадр из проводного формата.
func DecodeFrame(data []byte) (*Frame, error) {
	r := protocol.NewReader(data)
	f := &Frame{
		ClearCount:    r.ReadInt32(),
		PreviousCount: r.ReadInt32(),
	}
	frameCount := r.ReadInt32()
	f.TotalCount = r.ReadInt32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: заголовок: %v", ErrMalformedFrame, err)
	}
	if frameCount < 0 || frameCount > MaxFrameMods {
		return nil, fmt.Errorf("%w: frame_count %d вне диапазона [0, %d]",
			ErrMalformedFrame, frameCount, MaxFrameMods)
	}
	f.Mods = make([]Modification, 0, frameCount)
	for i := int32(0); i < frameCount; i++ {
		op := Op(r.ReadUint8())
		resource := r.ReadString()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: модификация %d: %v", ErrMalformedFrame, i, err)
		}
		if op != OpAdd && op != OpSubtract {
			return nil, fmt.Errorf("%w: неизвестный оператор %d", ErrMalformedFrame, op)
		}
		shape, err := sdf.ReadShape(r)
		if err != nil {
			return nil, fmt.Errorf("%w: фигура модификации %d: %v", ErrMalformedFrame, i, err)
		}
		f.Mods = append(f.Mods, Modification{Op: op, Resource: resource, Shape: shape})
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d лишних байт после кадра", ErrMalformedFrame, r.Remaining())
	}
	return f, nil
}
