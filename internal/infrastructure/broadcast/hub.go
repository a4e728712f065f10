// Package broadcast fans alert records out to live dashboard subscribers:
// an in-process hub over websocket connections, optionally mirrored to a
// distributed broker for multi-node deployments.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
)

// Transport mirrors published messages to an external broker so dashboards
// connected to other nodes see them too. Best effort.
type Transport interface {
	PublishAlert(ctx context.Context, topic string, msg alert.Message) error
}

// NameResolver turns entity and site IDs into display names for the wire
// message. Lookups that fail resolve to empty strings; IDs stay
// authoritative.
type NameResolver interface {
	EntityName(ctx context.Context, entityID uuid.UUID) (string, error)
	SiteName(ctx context.Context, siteID uuid.UUID) (string, error)
}

// MetricsCollector receives hub outcomes for instrumentation.
type MetricsCollector interface {
	RecordPublish(topics int, subscribers int)
	RecordDropped(reason string)
	RecordSubscribers(count int)
}

// NoopMetrics satisfies MetricsCollector when no instrumentation is wired.
type NoopMetrics struct{}

func (NoopMetrics) RecordPublish(int, int)   {}
func (NoopMetrics) RecordDropped(string)     {}
func (NoopMetrics) RecordSubscribers(int)    {}

// Config carries the hub's tunables.
type Config struct {
	// BroadcastBuffer bounds the pending-publish channel.
	BroadcastBuffer int `json:"broadcast_buffer" koanf:"broadcast_buffer"`

	// ClientBuffer bounds each subscriber's send channel; a subscriber
	// whose buffer is full misses the message rather than stalling the
	// fan-out.
	ClientBuffer int `json:"client_buffer" koanf:"client_buffer"`

	// PingInterval is the keepalive cadence for websocket subscribers.
	PingInterval time.Duration `json:"ping_interval" koanf:"ping_interval"`

	// ResolveTimeout bounds the display-name lookups per publish.
	ResolveTimeout time.Duration `json:"resolve_timeout" koanf:"resolve_timeout"`
}

func (c *Config) applyDefaults() {
	if c.BroadcastBuffer <= 0 {
		c.BroadcastBuffer = 256
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = 16
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 100 * time.Millisecond
	}
}

type publishJob struct {
	topics []string
	msg    alert.Message
}

// Hub owns the subscriber registry and the fan-out loop. Registration
// changes and publishes flow through channels into one goroutine, so no
// in-flight publish ever stalls a connect or disconnect.
type Hub struct {
	cfg      Config
	logger   *zap.Logger
	metrics  MetricsCollector
	resolver NameResolver
	mirror   Transport

	subscribersLock sync.RWMutex
	subscribers     map[string]map[*Subscriber]struct{}

	publish    chan publishJob
	register   chan *Subscriber
	unregister chan *Subscriber
	done       chan struct{}
	stopped    chan struct{}
}

func NewHub(cfg Config, resolver NameResolver, mirror Transport, logger *zap.Logger) *Hub {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		metrics:     NoopMetrics{},
		resolver:    resolver,
		mirror:      mirror,
		subscribers: make(map[string]map[*Subscriber]struct{}),
		publish:     make(chan publishJob, cfg.BroadcastBuffer),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// SetMetrics replaces the no-op collector. Call before Run.
func (h *Hub) SetMetrics(m MetricsCollector) {
	if m != nil {
		h.metrics = m
	}
}

// Run drives the hub until the context is cancelled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.done:
			h.shutdown()
			return
		case sub := <-h.register:
			h.addSubscriber(sub)
		case sub := <-h.unregister:
			h.removeSubscriber(sub)
		case job := <-h.publish:
			h.fanOut(job)
		case <-ticker.C:
			h.pingSubscribers()
		}
	}
}

// Stop shuts the hub down and waits for the loop to exit.
func (h *Hub) Stop() {
	close(h.done)
	<-h.stopped
}

// Publish fans the record out to its tenant topic and, when it carries a
// site, the site topic. Never blocks the caller and never returns an
// error: broadcast is an enhancement, not a correctness requirement of
// detection.
func (h *Hub) Publish(ctx context.Context, record *alert.Record) {
	entityName, siteName := h.resolveNames(ctx, record)
	msg := alert.NewAnomalyMessage(record, entityName, siteName)
	job := publishJob{topics: record.Topics(), msg: msg}

	if h.mirror != nil {
		go h.mirrorOut(job)
	}

	select {
	case h.publish <- job:
	default:
		h.metrics.RecordDropped("publish_queue_full")
		h.logger.Warn("broadcast dropped, publish queue full",
			zap.String("alert_id", record.ID.String()),
		)
	}
}

// Register attaches a subscriber; Unregister detaches it and closes its
// send channel.
func (h *Hub) Register(sub *Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

func (h *Hub) Unregister(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// SubscriberCount reports attached subscribers across all topics.
func (h *Hub) SubscriberCount() int {
	h.subscribersLock.RLock()
	defer h.subscribersLock.RUnlock()

	unique := make(map[*Subscriber]struct{})
	for _, subs := range h.subscribers {
		for sub := range subs {
			unique[sub] = struct{}{}
		}
	}
	return len(unique)
}

func (h *Hub) resolveNames(ctx context.Context, record *alert.Record) (string, string) {
	if h.resolver == nil {
		return "", ""
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ResolveTimeout)
	defer cancel()

	entityName, err := h.resolver.EntityName(ctx, record.EntityID)
	if err != nil {
		entityName = ""
	}
	siteName := ""
	if record.SiteID != uuid.Nil {
		if siteName, err = h.resolver.SiteName(ctx, record.SiteID); err != nil {
			siteName = ""
		}
	}
	return entityName, siteName
}

func (h *Hub) addSubscriber(sub *Subscriber) {
	h.subscribersLock.Lock()
	for _, topic := range sub.topics {
		if h.subscribers[topic] == nil {
			h.subscribers[topic] = make(map[*Subscriber]struct{})
		}
		h.subscribers[topic][sub] = struct{}{}
	}
	h.subscribersLock.Unlock()

	h.metrics.RecordSubscribers(h.SubscriberCount())
	h.logger.Info("subscriber attached",
		zap.String("subscriber_id", sub.id.String()),
		zap.Strings("topics", sub.topics),
	)
}

func (h *Hub) removeSubscriber(sub *Subscriber) {
	h.subscribersLock.Lock()
	removed := false
	for _, topic := range sub.topics {
		if subs, ok := h.subscribers[topic]; ok {
			if _, attached := subs[sub]; attached {
				delete(subs, sub)
				removed = true
			}
			if len(subs) == 0 {
				delete(h.subscribers, topic)
			}
		}
	}
	h.subscribersLock.Unlock()

	if removed {
		sub.close()
		h.metrics.RecordSubscribers(h.SubscriberCount())
		h.logger.Info("subscriber detached", zap.String("subscriber_id", sub.id.String()))
	}
}

// fanOut delivers to a snapshot of the topic's subscribers. At most once
// per subscriber per publish, even when the subscriber holds both topics.
func (h *Hub) fanOut(job publishJob) {
	h.subscribersLock.RLock()
	targets := make(map[*Subscriber]struct{})
	for _, topic := range job.topics {
		for sub := range h.subscribers[topic] {
			targets[sub] = struct{}{}
		}
	}
	h.subscribersLock.RUnlock()

	for sub := range targets {
		select {
		case sub.send <- job.msg:
		default:
			// Slow subscriber: drop its copy, never stall the rest.
			h.metrics.RecordDropped("subscriber_buffer_full")
			h.logger.Warn("subscriber too slow, message dropped",
				zap.String("subscriber_id", sub.id.String()),
			)
		}
	}

	h.metrics.RecordPublish(len(job.topics), len(targets))
}

func (h *Hub) mirrorOut(job publishJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, topic := range job.topics {
		if err := h.mirror.PublishAlert(ctx, topic, job.msg); err != nil {
			// Logged and swallowed: detection succeeded even if the
			// broker missed it.
			h.metrics.RecordDropped("transport_error")
			h.logger.Warn("broker mirror publish failed",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) pingSubscribers() {
	h.subscribersLock.RLock()
	defer h.subscribersLock.RUnlock()

	seen := make(map[*Subscriber]struct{})
	for _, subs := range h.subscribers {
		for sub := range subs {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			sub.ping()
		}
	}
}

func (h *Hub) shutdown() {
	h.subscribersLock.Lock()
	defer h.subscribersLock.Unlock()

	seen := make(map[*Subscriber]struct{})
	for _, subs := range h.subscribers {
		for sub := range subs {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			sub.close()
		}
	}
	h.subscribers = make(map[string]map[*Subscriber]struct{})
}
