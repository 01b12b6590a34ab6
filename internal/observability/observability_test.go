package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestRecordersCountByLabel(t *testing.T) {
	m := NewMetrics()

	m.RecordAlertDelivery(domain.ChannelEmail, nil)
	m.RecordAlertDelivery(domain.ChannelEmail, errors.New("smtp down"))
	m.RecordAlertDelivery(domain.ChannelEmail, nil)
	m.RecordStage("classify", false, nil)
	m.RecordExecution(domain.ExecutionCompleted)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alerts.WithLabelValues("EMAIL", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues("EMAIL", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stages.WithLabelValues("classify", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("completed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, 0)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordRouting(domain.RoutingMethod("rule"), true)
	})
	assert.Nil(t, m.Registry())
}

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), m))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].ContextMap()["route"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/ok", "GET", "200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "helpdesk_http_requests_total"))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "loud"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
