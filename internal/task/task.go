// Package task содержит примитивы асинхронного выполнения: promise-задачи
// и главный цикл (аналог главного потока движка). Фоновая работа выполняется
// обычными горутинами; задачи служат для связывания и ожидания результатов.
package task

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled сигнализирует о кооперативной отмене задачи.
// Отмена — нормальное завершение, а не ошибка выполнения.
var ErrCancelled = errors.New("task: cancelled")

// Task представляет одноразовый promise: значение типа T либо ошибку,
// которые появятся позже. Завершённая задача неизменяема.
type Task[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New создаёт незавершённую задачу и функцию её разрешения.
// Повторные вызовы resolve игнорируются.
func New[T any]() (*Task[T], func(T, error)) {
	t := &Task[T]{done: make(chan struct{})}
	resolve := func(v T, err error) {
		t.once.Do(func() {
			t.value = v
			t.err = err
			close(t.done)
		})
	}
	return t, resolve
}

// Completed возвращает уже завершённую задачу с указанным значением.
func Completed[T any](v T) *Task[T] {
	t, resolve := New[T]()
	resolve(v, nil)
	return t
}

// Failed возвращает уже завершённую задачу с ошибкой.
func Failed[T any](err error) *Task[T] {
	t, resolve := New[T]()
	var zero T
	resolve(zero, err)
	return t
}

// Await блокирует до завершения задачи или отмены контекста.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// IsCompleted сообщает, завершена ли задача.
func (t *Task[T]) IsCompleted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done возвращает канал, закрываемый при завершении задачи.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result возвращает значение и ошибку завершённой задачи.
// Для незавершённой задачи возвращает нулевое значение и false.
func (t *Task[T]) Result() (T, error, bool) {
	select {
	case <-t.done:
		return t.value, t.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// WhenAll ожидает завершения всех задач и возвращает их значения в том же
// порядке. Первая ошибка запоминается, но ожидание продолжается до конца:
// частично завершённый набор фоновых работ оставил бы состояние мира
// неопределённым.
func WhenAll[T any](ctx context.Context, tasks []*Task[T]) ([]T, error) {
	results := make([]T, len(tasks))
	var firstErr error
	for i, t := range tasks {
		v, err := t.Await(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results[i] = v
	}
	return results, firstErr
}
