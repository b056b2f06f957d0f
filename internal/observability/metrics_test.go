package observability

import (
	"net/http/httptest"
	"sync"
	"testing"

	"go-oms/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInMemoryMetrics_Counters(t *testing.T) {
	m := NewInMemoryMetrics()
	m.IncPublished()
	m.IncPublished()
	m.IncReceived()
	m.IncDuplicate()
	m.IncExpedited()

	assert.Equal(t, int64(2), m.GetPublished())
	assert.Equal(t, int64(1), m.GetReceived())
	assert.Equal(t, int64(1), m.GetDuplicates())
	assert.Equal(t, int64(1), m.GetExpedited())
	assert.Equal(t, int64(0), m.GetSentToDLQ())
}

func TestInMemoryMetrics_MaxDeliveryCount(t *testing.T) {
	m := NewInMemoryMetrics()

	var wg sync.WaitGroup
	for i := int32(1); i <= 50; i++ {
		wg.Add(1)
		go func(n int32) {
			defer wg.Done()
			m.ObserveDeliveryCount(n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(50), m.GetMaxDeliveryCount())
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetricsWithRegistry("oms", reg)

	m.IncPublished()
	m.IncSentToDLQ()
	m.IncSentToDLQ()
	m.ObserveDeliveryCount(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `oms_messages_total{event="published"} 1`)
	assert.Contains(t, body, `oms_messages_total{event="dlq"} 2`)
	assert.Contains(t, body, "oms_message_delivery_count_count 1")
}

func TestHeaderFields(t *testing.T) {
	h := models.NewHeader().SetDestination("orders").SetMessageID("m-1")

	fields := HeaderFields(h)
	assert.Equal(t, "orders", fields["destination"])
	assert.Equal(t, "m-1", fields["message_id"])
	assert.Equal(t, models.DefaultPriority, fields["priority"])
	assert.Equal(t, "persistent", fields["durability"])
}

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{level: "debug", want: zapcore.DebugLevel},
		{level: "warn", want: zapcore.WarnLevel},
		{level: "nonsense", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewZapLogger(tt.level)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}
