package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/broadcast"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

func TestParseTopics(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"single tenant", "tenant:abc", []string{"tenant:abc"}, false},
		{"tenant and site", "tenant:abc,site:xyz", []string{"tenant:abc", "site:xyz"}, false},
		{"spaces trimmed", " tenant:abc , site:xyz ", []string{"tenant:abc", "site:xyz"}, false},
		{"empty", "", nil, true},
		{"only commas", ",,", nil, true},
		{"unknown prefix", "entity:abc", nil, true},
		{"missing id", "tenant:", nil, true},
		{"no separator", "tenant", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTopics(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type staticResolver struct{}

func (staticResolver) EntityName(context.Context, uuid.UUID) (string, error) {
	return "Dana Osei", nil
}

func (staticResolver) SiteName(context.Context, uuid.UUID) (string, error) {
	return "Harbor Terminal", nil
}

func TestServeHTTP_RejectsBadTopics(t *testing.T) {
	hub := broadcast.NewHub(broadcast.Config{}, staticResolver{}, nil, zaptest.NewLogger(t))
	h := NewHandler(hub, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?topics=entity:abc", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTP_StreamsAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := broadcast.NewHub(broadcast.Config{}, staticResolver{}, nil, zaptest.NewLogger(t))
	go hub.Run(ctx)
	defer hub.Stop()

	h := NewHandler(hub, zaptest.NewLogger(t))
	srv := httptest.NewServer(h)
	defer srv.Close()

	record, err := alert.NewRecord(fixtures.NewFindingBuilder(t).Build())
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/v1/ws?topics=tenant:" + record.TenantID.String()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(ctx, record)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg alert.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, record.ID, msg.AlertID)
	assert.Equal(t, "Dana Osei", msg.EntityName)
}
