package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/sdf-world/internal/eventbus"
)

const defaultServerURL = "nats://127.0.0.1:4222"

func main() {
	var (
		serverURL = flag.String("server", defaultServerURL, "адрес NATS")
		command   = flag.String("cmd", "tail", "команда: tail, stats")
		stream    = flag.String("stream", "WORLD", "имя JetStream-стрима")
		types     = flag.String("types", "", "фильтр типов событий через запятую")
		resources = flag.String("resources", "", "фильтр слоёв через запятую")
		since     = flag.String("since", "", "глубина повтора истории, например 1h")
	)
	flag.Parse()

	nc, err := nats.Connect(*serverURL)
	if err != nil {
		log.Fatalf("подключение к %s: %v", *serverURL, err)
	}
	defer nc.Drain()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("jetstream: %v", err)
	}

	switch *command {
	case "tail":
		filter := eventbus.Filter{
			Types:     parseStringList(*types),
			Resources: parseStringList(*resources),
		}
		if err := tailEvents(js, filter, *since); err != nil {
			log.Fatalf("tail: %v", err)
		}
	case "stats":
		if err := showStats(js, *stream); err != nil {
			log.Fatalf("stats: %v", err)
		}
	default:
		fmt.Printf("неизвестная команда %q (доступны tail, stats)\n", *command)
		os.Exit(1)
	}
}

// tailEvents печатает события стрима по мере поступления. При заданном
// since поток начинается с отметки в прошлом, иначе только новые.
func tailEvents(js nats.JetStreamContext, filter eventbus.Filter, since string) error {
	opts := []nats.SubOpt{nats.DeliverNew()}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return fmt.Errorf("разбор since: %w", err)
		}
		opts = []nats.SubOpt{nats.StartTime(time.Now().Add(-d))}
	}

	sub, err := js.Subscribe("world.>", func(msg *nats.Msg) {
		var ev eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		if !matchFilter(&ev, filter) {
			return
		}
		printEvent(&ev)
	}, opts...)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

// showStats печатает сводку стрима: число сообщений, байты, границы.
func showStats(js nats.JetStreamContext, stream string) error {
	info, err := js.StreamInfo(stream)
	if err != nil {
		return fmt.Errorf("стрим %s: %w", stream, err)
	}
	fmt.Printf("Стрим:       %s\n", info.Config.Name)
	fmt.Printf("Сообщений:   %d\n", info.State.Msgs)
	fmt.Printf("Байт:        %d\n", info.State.Bytes)
	fmt.Printf("Первое:      %s\n", info.State.FirstTime.Format(time.RFC3339))
	fmt.Printf("Последнее:   %s\n", info.State.LastTime.Format(time.RFC3339))
	fmt.Printf("Потребители: %d\n", info.State.Consumers)
	return nil
}

func printEvent(ev *eventbus.Envelope) {
	resource := ev.Resource
	if resource == "" {
		resource = "-"
	}
	fmt.Printf("[%s] %-24s слой=%-10s prio=%d %s\n",
		ev.Timestamp.Format("15:04:05"), ev.EventType, resource, ev.Priority,
		string(ev.Payload))
}

func matchFilter(ev *eventbus.Envelope, f eventbus.Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Resource, f.Resources)
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
