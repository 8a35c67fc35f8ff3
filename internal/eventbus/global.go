package eventbus

import "context"

var globalBus Bus

// Init устанавливает глобальную шину.
func Init(bus Bus) { globalBus = bus }

// Publish отправляет событие в глобальную шину, если она
// инициализирована.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}
