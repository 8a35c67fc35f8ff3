// Package network доставляет кадры репликации по KCP (надёжный UDP)
// с префиксом длины и опциональным zstd-сжатием.
package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/sdf-world/internal/logging"
	"github.com/annel0/sdf-world/internal/metrics"
)

const (
	// maxFrameSize ограничивает размер кадра на проводе.
	maxFrameSize = 4 << 20

	flagCompressed = 0x01
)

// Config задаёт параметры канала и слушателя.
type Config struct {
	// BufferSize — ёмкость очередей отправки и приёма.
	BufferSize int `yaml:"buffer_size"`

	// KeepAliveMs — интервал ожидания в миллисекундах: столько канал
	// ждёт дочитывания кадра или места в очереди отправки.
	KeepAliveMs int `yaml:"keep_alive_ms"`

	// Compress включает zstd-сжатие полезной нагрузки.
	Compress bool `yaml:"compress"`

	// DataShards и ParityShards — параметры FEC протокола KCP.
	DataShards   int `yaml:"data_shards"`
	ParityShards int `yaml:"parity_shards"`
}

// DefaultConfig возвращает параметры, пригодные для интернет-трафика.
func DefaultConfig() Config {
	return Config{
		BufferSize:   256,
		KeepAliveMs:  10000,
		Compress:     true,
		DataShards:   10,
		ParityShards: 3,
	}
}

func (c Config) keepAlive() time.Duration {
	if c.KeepAliveMs > 0 {
		return time.Duration(c.KeepAliveMs) * time.Millisecond
	}
	return 10 * time.Second
}

// Stats — счётчики канала.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
}

// Channel — двунаправленный поток кадров поверх одной KCP-сессии.
// Кадр на проводе: u32 длина (little-endian), u8 флаги, данные.
type Channel struct {
	conn   *kcp.UDPSession
	config Config
	logger *logging.Logger

	compressor   *zstd.Encoder
	decompressor *zstd.Decoder

	sendBuffer chan []byte
	recvBuffer chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Dial подключается к серверу и возвращает готовый канал.
func Dial(addr string, config Config) (*Channel, error) {
	conn, err := kcp.DialWithOptions(addr, nil, config.DataShards, config.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("network: подключение к %s: %w", addr, err)
	}
	return newChannel(conn, config)
}

func newChannel(conn *kcp.UDPSession, config Config) (*Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:       conn,
		config:     config,
		logger:     logging.GetNetworkLogger(),
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan []byte, config.BufferSize),
		recvBuffer: make(chan []byte, config.BufferSize),
	}

	if config.Compress {
		var err error
		c.compressor, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("network: компрессор: %w", err)
		}
		c.decompressor, err = zstd.NewReader(nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("network: декомпрессор: %w", err)
		}
	}

	// Настройки KCP для трафика реального времени.
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1)
	conn.SetWindowSize(512, 512)
	conn.SetMtu(1400)

	c.wg.Add(2)
	go c.sendLoop()
	go c.receiveLoop()

	c.logger.Info("канал открыт: %s", conn.RemoteAddr())
	return c, nil
}

// Send ставит кадр в очередь отправки.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	if len(frame) > maxFrameSize {
		return fmt.Errorf("network: кадр %d байт превышает предел %d", len(frame), maxFrameSize)
	}
	if c.ctx.Err() != nil {
		return fmt.Errorf("network: канал закрыт")
	}
	select {
	case c.sendBuffer <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("network: канал закрыт")
	}
}

// Receive возвращает следующий входящий кадр.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.recvBuffer:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, fmt.Errorf("network: канал закрыт")
	}
}

// RemoteAddr возвращает адрес удалённой стороны.
func (c *Channel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Stats возвращает снимок счётчиков канала.
func (c *Channel) Stats() Stats {
	return Stats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
	}
}

// Close останавливает циклы и закрывает сессию.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.conn.Close()
		c.wg.Wait()
		c.logger.Info("канал закрыт: %s", c.conn.RemoteAddr())
	})
	return c.closeErr
}

func (c *Channel) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case frame := <-c.sendBuffer:
			if err := c.writeFrame(frame); err != nil {
				c.logger.Error("отправка кадра: %v", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Channel) writeFrame(frame []byte) error {
	payload := frame
	var flags byte
	if c.compressor != nil {
		compressed := c.compressor.EncodeAll(frame, nil)
		// Несжимаемые кадры уходят как есть.
		if len(compressed) < len(frame) {
			payload = compressed
			flags |= flagCompressed
		}
	}

	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	header[4] = flags

	c.conn.SetWriteDeadline(time.Now().Add(c.config.keepAlive()))
	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	if _, err := c.conn.Write(payload); err != nil {
		return err
	}
	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(len(header) + len(payload)))
	metrics.Default().NetworkBytes.WithLabelValues("out").Add(float64(len(header) + len(payload)))
	return nil
}

// readFull дочитывает буфер до конца. Таймаут без прочитанных байт
// означает простой канала и не считается ошибкой; таймаут посреди
// кадра разрывает соединение, иначе поток рассинхронизируется.
func (c *Channel) readFull(buf []byte) error {
	read := 0
	for read < len(buf) {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		if read == 0 {
			c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		} else {
			c.conn.SetReadDeadline(time.Now().Add(c.config.keepAlive()))
		}
		n, err := c.conn.Read(buf[read:])
		read += n
		if err != nil {
			if isTimeout(err) && read == 0 {
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Channel) receiveLoop() {
	defer c.wg.Done()
	header := make([]byte, 5)
	for {
		if err := c.readFull(header); err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("чтение заголовка: %v", err)
				c.cancel()
			}
			return
		}

		length := binary.LittleEndian.Uint32(header)
		flags := header[4]
		if length > maxFrameSize {
			c.logger.Error("кадр %d байт превышает предел, канал закрывается", length)
			c.cancel()
			return
		}

		payload := make([]byte, length)
		if err := c.readFull(payload); err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("чтение кадра: %v", err)
				c.cancel()
			}
			return
		}

		if flags&flagCompressed != 0 {
			if c.decompressor == nil {
				c.logger.Error("сжатый кадр при выключенном сжатии, кадр отброшен")
				continue
			}
			decompressed, err := c.decompressor.DecodeAll(payload, nil)
			if err != nil {
				c.logger.Error("декомпрессия кадра: %v", err)
				continue
			}
			payload = decompressed
		}

		c.framesReceived.Add(1)
		c.bytesReceived.Add(uint64(5 + length))
		metrics.Default().NetworkBytes.WithLabelValues("in").Add(float64(5 + length))

		select {
		case c.recvBuffer <- payload:
		default:
			c.logger.Warn("буфер приёма полон, кадр отброшен")
			metrics.Default().DroppedFrames.Inc()
		}
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
