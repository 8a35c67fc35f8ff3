package eventbus

import (
	"context"

	"github.com/annel0/sdf-world/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в
// стандартный лог. Функция неблокирующая.
func StartLoggingListener(bus Bus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s слой=%s prio=%d size=%dB",
			ev.ID, ev.EventType, ev.Resource, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return err
	}
	logging.Info("подписка лога на все события активирована")
	return nil
}
