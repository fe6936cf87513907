// Package transport owns the Modbus TCP session: connect, reconnect with
// bounded backoff, request execution, timeout enforcement. It has no decoding
// knowledge; it hands out raw register words.
package transport

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
)

const (
	// DefaultTimeout bounds a single request round trip.
	DefaultTimeout = 10 * time.Second

	backoffBase = 1 * time.Second
	backoffCap  = 60 * time.Second
)

// Config identifies the peer. UnitID is the Modbus unit identifier; older
// protocol stacks call the same wire field "slave id", the semantics never
// changed. Changing any field here requires a fresh session.
type Config struct {
	Host    string
	Port    int
	UnitID  byte
	Timeout time.Duration
}

// Endpoint renders host:port for dialing.
func (c Config) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// conn is the slice of the Modbus client the session needs.
type conn interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	Close() error
}

// dialFunc establishes one connection. One attempt per call.
type dialFunc func(Config) (conn, error)

// Session is a lazily connected Modbus TCP session. Not safe for concurrent
// use by multiple readers; the poll loop is its only caller.
type Session struct {
	cfg  Config
	dial dialFunc

	conn     conn
	failures int
}

// New creates a disconnected session. The first read connects.
func New(cfg Config) *Session {
	return newSession(cfg, dialModbus)
}

func newSession(cfg Config, dial dialFunc) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Session{cfg: cfg, dial: dial}
}

// ReadRegisters reads count holding registers starting at start and returns
// them as big-endian words. A disconnected session tries to reconnect once
// before failing. Connection-level failures mark the session disconnected;
// the next call reconnects.
func (s *Session) ReadRegisters(start, count uint16) ([]uint16, error) {
	if s.conn == nil {
		c, err := s.dial(s.cfg)
		if err != nil {
			s.failures++
			return nil, classify("connect", err)
		}
		log.Printf("transport: connected to %s (unit %d)", s.cfg.Endpoint(), s.cfg.UnitID)
		s.conn = c
	}

	data, err := s.conn.ReadHoldingRegisters(start, count)
	if err != nil {
		te := classify("read", err)
		if te.Kind != KindProtocol {
			s.dropConn()
			s.failures++
		}
		return nil, te
	}

	if len(data) != int(count)*2 {
		s.dropConn()
		s.failures++
		return nil, &Error{
			Kind: KindProtocol,
			Op:   "read",
			Err:  fmt.Errorf("payload length %d does not match %d registers", len(data), count),
		}
	}

	s.failures = 0

	words := make([]uint16, count)
	for i := range words {
		words[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return words, nil
}

// Backoff returns how long to wait before the next reconnect attempt, based
// on consecutive failures. Zero while healthy. Doubles per failure, capped.
func (s *Session) Backoff() time.Duration {
	if s.failures == 0 {
		return 0
	}
	d := backoffBase
	for i := 1; i < s.failures; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

// Connected reports whether a socket is currently open.
func (s *Session) Connected() bool { return s.conn != nil }

// Close releases the socket. The session may be reused; the next read
// reconnects.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) dropConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// ---- goburrow-backed connection ----

type modbusConn struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func dialModbus(cfg Config) (conn, error) {
	handler := modbus.NewTCPClientHandler(cfg.Endpoint())
	handler.Timeout = cfg.Timeout
	handler.SlaveId = cfg.UnitID

	if err := handler.Connect(); err != nil {
		return nil, err
	}
	return &modbusConn{handler: handler, client: modbus.NewClient(handler)}, nil
}

func (c *modbusConn) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.client.ReadHoldingRegisters(address, quantity)
}

func (c *modbusConn) Close() error {
	return c.handler.Close()
}
