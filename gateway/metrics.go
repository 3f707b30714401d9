package gateway

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type callMetrics struct {
	logger     *log.Logger
	start      time.Time
	method     string
	route      string
	status     int
	errorStage string
}

func newCallMetrics(logger *log.Logger, method, route string) *callMetrics {
	return &callMetrics{
		logger: logger,
		start:  time.Now(),
		method: method,
		route:  route,
	}
}

func (m *callMetrics) SetStatus(status int) {
	m.status = status
}

func (m *callMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *callMetrics) Log(err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"method":   m.method,
		"route":    m.route,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.status != 0 {
		fields["status"] = m.status
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger.WithFields(fields).Warn("gateway.request.metrics")
		return
	}
	m.logger.WithFields(fields).Debug("gateway.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
