// Package audit emits the structured records an external ticketing system
// consumes: rejections, high-severity findings, and processing timeouts.
// The sink is fire-and-forget; a failed emit is logged, never propagated.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

const subject = "audit.attendance.events"

// recordKind classifies an audit record for the downstream consumer.
type recordKind string

const (
	kindRejection recordKind = "validation_rejected"
	kindFinding   recordKind = "finding_raised"
	kindTimeout   recordKind = "processing_timed_out"
)

// record is the flat shape the ticketing consumer parses.
type record struct {
	Kind       recordKind     `json:"kind"`
	TenantID   string         `json:"tenant_id"`
	EntityID   string         `json:"entity_id"`
	SiteID     string         `json:"site_id,omitempty"`
	EventID    string         `json:"event_id,omitempty"`
	ReasonCode string         `json:"reason_code,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metric     string         `json:"metric,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	ZScore     float64        `json:"z_score,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	EmittedAt  time.Time      `json:"emitted_at"`
}

// NATSSink publishes audit records to the shared broker. When construction
// of the connection fails upstream, wire LogSink instead.
type NATSSink struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSSink(conn *nats.Conn, logger *zap.Logger) *NATSSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{conn: conn, logger: logger}
}

func (s *NATSSink) RecordRejection(_ context.Context, event *attendance.Event, result attendance.ValidationResult) {
	s.emit(record{
		Kind:       kindRejection,
		TenantID:   event.TenantID.String(),
		EntityID:   event.EntityID.String(),
		SiteID:     event.SiteID.String(),
		EventID:    event.ID.String(),
		ReasonCode: result.ReasonCode,
		Reason:     result.Reason,
		Metadata: map[string]any{
			"requires_override": result.RequiresOverride,
			"unavailable":       result.Unavailable,
			"kind":              event.Kind.String(),
		},
		EmittedAt: time.Now().UTC(),
	})
}

func (s *NATSSink) RecordFinding(_ context.Context, finding *anomaly.Finding) {
	s.emit(record{
		Kind:      kindFinding,
		TenantID:  finding.TenantID.String(),
		EntityID:  finding.EntityID.String(),
		SiteID:    finding.SiteID.String(),
		Metric:    string(finding.Metric),
		Severity:  finding.Severity.String(),
		ZScore:    finding.ZScore,
		EmittedAt: time.Now().UTC(),
	})
}

func (s *NATSSink) RecordTimeout(_ context.Context, event *attendance.Event) {
	s.emit(record{
		Kind:      kindTimeout,
		TenantID:  event.TenantID.String(),
		EntityID:  event.EntityID.String(),
		SiteID:    event.SiteID.String(),
		EventID:   event.ID.String(),
		EmittedAt: time.Now().UTC(),
	})
}

func (s *NATSSink) emit(r record) {
	payload, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("audit record encode failed", zap.Error(err))
		return
	}
	if err := s.conn.Publish(subject, payload); err != nil {
		s.logger.Warn("audit record publish failed",
			zap.String("kind", string(r.Kind)),
			zap.Error(err),
		)
	}
}

// LogSink writes audit records to the structured log. The fallback when no
// broker is configured; downstream tooling tails the log stream instead.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) RecordRejection(_ context.Context, event *attendance.Event, result attendance.ValidationResult) {
	s.logger.Info("validation_rejected",
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("entity_id", event.EntityID.String()),
		zap.String("site_id", event.SiteID.String()),
		zap.String("event_id", event.ID.String()),
		zap.String("reason_code", result.ReasonCode),
		zap.String("reason", result.Reason),
		zap.Bool("unavailable", result.Unavailable),
	)
}

func (s *LogSink) RecordFinding(_ context.Context, finding *anomaly.Finding) {
	s.logger.Info("finding_raised",
		zap.String("tenant_id", finding.TenantID.String()),
		zap.String("entity_id", finding.EntityID.String()),
		zap.String("metric", string(finding.Metric)),
		zap.String("severity", finding.Severity.String()),
		zap.Float64("z_score", finding.ZScore),
	)
}

func (s *LogSink) RecordTimeout(_ context.Context, event *attendance.Event) {
	s.logger.Error("processing_timed_out",
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("entity_id", event.EntityID.String()),
		zap.String("event_id", event.ID.String()),
	)
}
