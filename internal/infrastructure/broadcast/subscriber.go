package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

// Subscriber is one connected client holding a set of topics. A websocket
// connection is optional: in-process consumers (tests, internal tails)
// read the send channel directly.
type Subscriber struct {
	id     uuid.UUID
	topics []string
	send   chan alert.Message

	conn   *websocket.Conn
	hub    *Hub
	logger *zap.Logger

	closeOnce sync.Once
}

// NewSubscriber creates a channel-only subscriber.
func NewSubscriber(topics []string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &Subscriber{
		id:     uuid.New(),
		topics: topics,
		send:   make(chan alert.Message, buffer),
	}
}

// NewConnSubscriber creates a subscriber backed by a websocket connection.
// The caller must start WritePump and ReadPump after registering.
func NewConnSubscriber(conn *websocket.Conn, hub *Hub, topics []string, logger *zap.Logger) *Subscriber {
	sub := NewSubscriber(topics, hub.cfg.ClientBuffer)
	sub.conn = conn
	sub.hub = hub
	sub.logger = logger
	return sub
}

// ID returns the subscriber's identity for logging.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Receive exposes the delivery channel. Closed when the subscriber
// detaches.
func (s *Subscriber) Receive() <-chan alert.Message { return s.send }

// WritePump drains the send channel onto the websocket connection.
func (s *Subscriber) WritePump() {
	defer s.conn.Close()

	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(msg); err != nil {
			s.logger.Debug("subscriber write failed",
				zap.String("subscriber_id", s.id.String()),
				zap.Error(err),
			)
			s.hub.Unregister(s)
			return
		}
	}

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// ReadPump discards inbound frames, keeping the read side alive for pongs
// and close detection. Subscribers are listen-only.
func (s *Subscriber) ReadPump() {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Subscriber) ping() {
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		go s.hub.Unregister(s)
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}
