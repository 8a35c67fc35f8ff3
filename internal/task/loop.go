package task

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
)

// Loop — однопоточная очередь замыканий, эквивалент главного потока движка.
// Весь изменяемый стейт мира принадлежит горутине цикла; публичные методы
// мира отправляют замыкания через Post/Call вместо блокировок.
type Loop struct {
	queue  chan func()
	goid   atomic.Int64 // id горутины, выполняющей Run
	closed atomic.Bool
}

// NewLoop создаёт цикл с буферизованной очередью.
func NewLoop() *Loop {
	return &Loop{queue: make(chan func(), 1024)}
}

// Run выполняет замыкания до отмены контекста. Должен вызываться ровно
// одной горутиной.
func (l *Loop) Run(ctx context.Context) {
	l.goid.Store(currentGoroutineID())
	defer l.goid.Store(0)
	for {
		select {
		case <-ctx.Done():
			l.closed.Store(true)
			l.drainPending()
			return
		case f := <-l.queue:
			f()
		}
	}
}

// drainPending выполняет оставшиеся замыкания после остановки цикла,
// чтобы ожидающие Call не зависли навсегда.
func (l *Loop) drainPending() {
	for {
		select {
		case f := <-l.queue:
			f()
		default:
			return
		}
	}
}

// Post ставит замыкание в очередь главного цикла.
func (l *Loop) Post(f func()) {
	if l.OnLoop() {
		// Уже на главном цикле: вложенный Post из выполняемого замыкания
		// не должен блокироваться на заполненной очереди.
		f()
		return
	}
	l.queue <- f
}

// Call выполняет замыкание на главном цикле и дожидается завершения.
func (l *Loop) Call(f func()) {
	if l.OnLoop() {
		f()
		return
	}
	done := make(chan struct{})
	l.queue <- func() {
		defer close(done)
		f()
	}
	<-done
}

// OnLoop сообщает, выполняется ли текущая горутина внутри Run.
func (l *Loop) OnLoop() bool {
	id := l.goid.Load()
	return id != 0 && id == currentGoroutineID()
}

// MustBeOnLoop — однострочная проверка главного потока.
// Нарушение — ошибка программиста, процесс останавливается.
func (l *Loop) MustBeOnLoop(op string) {
	if !l.OnLoop() {
		panic(fmt.Sprintf("task: %s вызван вне главного цикла", op))
	}
}

// currentGoroutineID извлекает id текущей горутины из заголовка стека.
// Используется только для проверок принадлежности главному циклу.
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Заголовок имеет вид "goroutine 123 [running]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
