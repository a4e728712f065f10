package alert

import (
	"time"

	"github.com/google/uuid"
)

// MessageTypeAnomalyDetected is the only message type dashboards currently
// subscribe to.
const MessageTypeAnomalyDetected = "anomaly_detected"

// Message is the flat record published to dashboard subscribers. The shape
// is a wire contract; renaming fields breaks deployed clients.
type Message struct {
	Type       string    `json:"type"`
	AlertID    uuid.UUID `json:"alert_id"`
	EntityID   uuid.UUID `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	SiteID     uuid.UUID `json:"site_id"`
	SiteName   string    `json:"site_name"`
	Category   string    `json:"category"`
	Score      float64   `json:"score"`
	Severity   string    `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAnomalyMessage flattens a record for broadcast. Display names are
// resolved by the caller; empty strings are legal when the directory lookup
// fails, the IDs remain authoritative.
func NewAnomalyMessage(r *Record, entityName, siteName string) Message {
	return Message{
		Type:       MessageTypeAnomalyDetected,
		AlertID:    r.ID,
		EntityID:   r.EntityID,
		EntityName: entityName,
		SiteID:     r.SiteID,
		SiteName:   siteName,
		Category:   r.Category,
		Score:      r.LastScore,
		Severity:   r.Severity.String(),
		Timestamp:  r.UpdatedAt,
	}
}

// Topic names subscribers attach to.
func TenantTopic(tenantID uuid.UUID) string { return "tenant:" + tenantID.String() }
func SiteTopic(siteID uuid.UUID) string     { return "site:" + siteID.String() }

// Topics returns every topic a record fans out to: always the tenant topic,
// plus the site topic when the record carries a site.
func (r *Record) Topics() []string {
	topics := []string{TenantTopic(r.TenantID)}
	if r.SiteID != uuid.Nil {
		topics = append(topics, SiteTopic(r.SiteID))
	}
	return topics
}
