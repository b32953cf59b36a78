package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/models"
)

const namespace = "ak_mqtt"

// Metrics holds the Prometheus collectors describing the broker session.
type Metrics struct {
	connectionState prometheus.Gauge
	connectAttempts prometheus.Counter
	connectFailures prometheus.Counter
	connectionsLost prometheus.Counter
	subscriptions   *prometheus.CounterVec
	uplinks         *prometheus.CounterVec
	downlinks       prometheus.Counter
	outstanding     prometheus.Gauge
	tokenExpiry     prometheus.Gauge
	tokenRenewals   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current session state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=failed)",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts issued by the session manager",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Connection attempts that failed",
		}),
		connectionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_lost_total",
			Help:      "Established sessions lost unexpectedly",
		}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_total",
			Help:      "Downlink subscription outcomes",
		}, []string{"result"}),
		uplinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uplinks_total",
			Help:      "Uplink samples by outcome",
		}, []string{"result"}),
		downlinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downlinks_total",
			Help:      "Downlink messages received",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outstanding_messages",
			Help:      "Uplinks handed to the transport and not yet acknowledged",
		}),
		tokenExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_expiry_timestamp_seconds",
			Help:      "Unix time at which the current authentication token expires",
		}),
		tokenRenewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_renewals_total",
			Help:      "Authentication token renewals by outcome",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.connectionState, m.connectAttempts, m.connectFailures, m.connectionsLost,
		m.subscriptions, m.uplinks, m.downlinks, m.outstanding, m.tokenExpiry, m.tokenRenewals,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// SetConnectionState records the current session state.
func (m *Metrics) SetConnectionState(state models.ConnectionState) {
	m.connectionState.Set(float64(state))
}

// IncConnectAttempts counts an issued connection attempt.
func (m *Metrics) IncConnectAttempts() {
	m.connectAttempts.Inc()
}

// IncConnectFailures counts a failed connection attempt.
func (m *Metrics) IncConnectFailures() {
	m.connectFailures.Inc()
}

// IncConnectionsLost counts an unexpected session loss.
func (m *Metrics) IncConnectionsLost() {
	m.connectionsLost.Inc()
}

// ObserveSubscription counts a subscription outcome.
func (m *Metrics) ObserveSubscription(err error) {
	m.subscriptions.WithLabelValues(result(err)).Inc()
}

// ObserveUplink counts a publish outcome.
func (m *Metrics) ObserveUplink(err error) {
	m.uplinks.WithLabelValues(result(err)).Inc()
}

// IncDownlinks counts a received downlink.
func (m *Metrics) IncDownlinks() {
	m.downlinks.Inc()
}

// SetOutstanding records the number of unacknowledged uplinks.
func (m *Metrics) SetOutstanding(n int) {
	m.outstanding.Set(float64(n))
}

// SetTokenExpiry records when the current token expires.
func (m *Metrics) SetTokenExpiry(t time.Time) {
	m.tokenExpiry.Set(float64(t.Unix()))
}

// ObserveTokenRenewal counts a token renewal outcome.
func (m *Metrics) ObserveTokenRenewal(err error) {
	m.tokenRenewals.WithLabelValues(result(err)).Inc()
}

// Server exposes a registry over HTTP.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer serves the collectors in gatherer on addr at /metrics.
func NewServer(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	go func() {
		s.logger.Info().Str("address", s.server.Addr).Msg("Starting metrics server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
