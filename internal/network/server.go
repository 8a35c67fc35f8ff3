package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/sdf-world/internal/logging"
)

// Server принимает KCP-сессии наблюдателей и ведёт по каналу на
// каждого. Идентификатор наблюдателя выдаётся при подключении и
// служит ключом раздачи кадров.
type Server struct {
	config Config
	logger *logging.Logger

	listener *kcp.Listener

	mu       sync.RWMutex
	channels map[uuid.UUID]*Channel

	onConnect    func(id uuid.UUID, ch *Channel)
	onDisconnect func(id uuid.UUID)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer создаёт сервер с заданной конфигурацией.
func NewServer(config Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:   config,
		logger:   logging.GetNetworkLogger(),
		channels: make(map[uuid.UUID]*Channel),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnConnect устанавливает обработчик подключения. Вызывается до
// первого кадра наблюдателя.
func (s *Server) OnConnect(handler func(id uuid.UUID, ch *Channel)) {
	s.onConnect = handler
}

// OnDisconnect устанавливает обработчик отключения.
func (s *Server) OnDisconnect(handler func(id uuid.UUID)) {
	s.onDisconnect = handler
}

// Listen начинает приём сессий на addr. Возвращается сразу; приём
// идёт в фоновой горутине до Close.
func (s *Server) Listen(addr string) error {
	listener, err := kcp.ListenWithOptions(addr, nil, s.config.DataShards, s.config.ParityShards)
	if err != nil {
		return fmt.Errorf("network: прослушивание %s: %w", addr, err)
	}
	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info("сервер слушает %s", listener.Addr())
	return nil
}

// Addr возвращает фактический адрес слушателя.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.AcceptKCP()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("приём сессии: %v", err)
			return
		}
		ch, err := newChannel(conn, s.config)
		if err != nil {
			s.logger.Error("канал для %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}
		id := uuid.New()
		s.mu.Lock()
		s.channels[id] = ch
		s.mu.Unlock()
		s.logger.Info("наблюдатель %s подключён: %s", id, ch.RemoteAddr())
		if s.onConnect != nil {
			s.onConnect(id, ch)
		}
	}
}

// Send отправляет кадр наблюдателю. Сигнатура совместима с раздачей
// репликации: ошибка означает, что кадр не поставлен в очередь.
func (s *Server) Send(id uuid.UUID, frame []byte) error {
	s.mu.RLock()
	ch, ok := s.channels[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("network: наблюдатель %s не подключён", id)
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.keepAlive())
	defer cancel()
	return ch.Send(ctx, frame)
}

// Channel возвращает канал наблюдателя.
func (s *Server) Channel(id uuid.UUID) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

// Observers возвращает идентификаторы подключённых наблюдателей.
func (s *Server) Observers() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	return ids
}

// Disconnect закрывает канал наблюдателя и снимает его с учёта.
func (s *Server) Disconnect(id uuid.UUID) {
	s.mu.Lock()
	ch, ok := s.channels[id]
	delete(s.channels, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	ch.Close()
	if s.onDisconnect != nil {
		s.onDisconnect(id)
	}
	s.logger.Info("наблюдатель %s отключён", id)
}

// Close останавливает приём и закрывает все каналы.
func (s *Server) Close() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	channels := s.channels
	s.channels = make(map[uuid.UUID]*Channel)
	s.mu.Unlock()
	for _, ch := range channels {
		ch.Close()
	}
	s.wg.Wait()
	return err
}
