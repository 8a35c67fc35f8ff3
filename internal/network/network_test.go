package network

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.KeepAliveMs = 2000
	return cfg
}

type acceptedChannel struct {
	id uuid.UUID
	ch *Channel
}

// startServer поднимает сервер на свободном порту петли.
func startServer(t *testing.T, cfg Config) (*Server, chan acceptedChannel) {
	t.Helper()
	srv := NewServer(cfg)
	accepted := make(chan acceptedChannel, 4)
	srv.OnConnect(func(id uuid.UUID, ch *Channel) {
		accepted <- acceptedChannel{id: id, ch: ch}
	})
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	t.Cleanup(func() { srv.Close() })
	return srv, accepted
}

func dialServer(t *testing.T, srv *Server, cfg Config) *Channel {
	t.Helper()
	client, err := Dial(srv.Addr(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// Тест петлевой доставки: кадр клиента доезжает до серверного канала
// байт в байт, ответ сервера возвращается клиенту.
func TestChannel_RoundTrip(t *testing.T) {
	cfg := testConfig()
	srv, accepted := startServer(t, cfg)
	client := dialServer(t, srv, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request := []byte("ping: observer hello")
	require.NoError(t, client.Send(ctx, request))

	var serverSide acceptedChannel
	select {
	case serverSide = <-accepted:
	case <-ctx.Done():
		t.Fatal("сервер не принял сессию")
	}

	got, err := serverSide.ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, request, got)

	response := bytes.Repeat([]byte{0xAB, 0xCD}, 512)
	require.NoError(t, srv.Send(serverSide.id, response))
	got, err = client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, response, got)
}

// Тест прозрачности сжатия: сильно сжимаемый кадр приходит в
// исходном виде, счётчик байт на проводе меньше размера кадра.
func TestChannel_CompressionTransparent(t *testing.T) {
	cfg := testConfig()
	srv, accepted := startServer(t, cfg)
	client := dialServer(t, srv, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frame := bytes.Repeat([]byte("sdf"), 20000)
	require.NoError(t, client.Send(ctx, frame))

	serverSide := <-accepted
	got, err := serverSide.ch.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, frame, got)

	assert.Eventually(t, func() bool {
		sent := client.Stats().BytesSent
		return sent > 0 && sent < uint64(len(frame))
	}, 2*time.Second, 10*time.Millisecond,
		"сжимаемый кадр должен ужиматься на проводе")
}

// Тест порядка кадров: десять кадров приходят в порядке отправки.
func TestChannel_PreservesOrder(t *testing.T) {
	cfg := testConfig()
	srv, accepted := startServer(t, cfg)
	client := dialServer(t, srv, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		require.NoError(t, client.Send(ctx, []byte{byte(i), byte(i * 3)}))
	}
	serverSide := <-accepted
	for i := 0; i < 10; i++ {
		got, err := serverSide.ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i), byte(i * 3)}, got, "кадр %d", i)
	}
	_ = srv
}

// Тест превышения предела размера кадра.
func TestChannel_RejectsOversizedFrame(t *testing.T) {
	cfg := testConfig()
	srv, _ := startServer(t, cfg)
	client := dialServer(t, srv, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.Send(ctx, make([]byte, maxFrameSize+1))
	assert.Error(t, err)
}

// Тест закрытого канала: отправка и приём возвращают ошибку.
func TestChannel_SendAfterClose(t *testing.T) {
	cfg := testConfig()
	srv, _ := startServer(t, cfg)
	client := dialServer(t, srv, cfg)
	require.NoError(t, client.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, client.Send(ctx, []byte{1}))
	_, err := client.Receive(ctx)
	assert.Error(t, err)
}

// Тест отключения наблюдателя: после Disconnect отправка по его
// идентификатору возвращает ошибку.
func TestServer_Disconnect(t *testing.T) {
	cfg := testConfig()
	srv, accepted := startServer(t, cfg)
	client := dialServer(t, srv, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Send(ctx, []byte("hello")))
	serverSide := <-accepted
	_, err := serverSide.ch.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, srv.Observers(), 1)

	srv.Disconnect(serverSide.id)
	assert.Empty(t, srv.Observers())
	assert.Error(t, srv.Send(serverSide.id, []byte("frame")))
}

// Тест неизвестного наблюдателя.
func TestServer_SendToUnknownObserver(t *testing.T) {
	cfg := testConfig()
	srv, _ := startServer(t, cfg)
	assert.Error(t, srv.Send(uuid.New(), []byte{1}))
}
