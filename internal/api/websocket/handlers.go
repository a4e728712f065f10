// Package websocket upgrades dashboard connections and attaches them to the
// broadcast hub.
package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/infrastructure/broadcast"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from operator-controlled origins; tighten
		// this when the frontend origin list is finalized.
		return true
	},
}

// Handler serves GET /api/v1/ws?topics=tenant:{id},site:{id}.
type Handler struct {
	hub    *broadcast.Hub
	logger *zap.Logger
}

func NewHandler(hub *broadcast.Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger.Named("ws")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics, err := parseTopics(r.URL.Query().Get("topics"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	sub := broadcast.NewConnSubscriber(conn, h.hub, topics, h.logger)
	h.hub.Register(sub)

	go sub.WritePump()
	go sub.ReadPump()

	h.logger.Info("subscriber connected",
		zap.String("subscriber_id", sub.ID().String()),
		zap.Strings("topics", topics),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// parseTopics validates the comma-separated topic list. Only tenant: and
// site: topics exist; a subscription naming no valid topic is rejected
// rather than silently delivering nothing.
func parseTopics(raw string) ([]string, error) {
	if raw == "" {
		return nil, errEmptyTopics
	}

	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		topic := strings.TrimSpace(p)
		if topic == "" {
			continue
		}
		prefix, id, found := strings.Cut(topic, ":")
		if !found || id == "" || (prefix != "tenant" && prefix != "site") {
			return nil, errBadTopic
		}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return nil, errEmptyTopics
	}
	return topics, nil
}

var (
	errEmptyTopics = &topicError{"at least one topic is required"}
	errBadTopic    = &topicError{"topics must be tenant:{id} or site:{id}"}
)

type topicError struct{ msg string }

func (e *topicError) Error() string { return e.msg }
