package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every method is safe on a nil
// receiver so managers can run without a registry.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Ability metrics
	AbilityStarts   *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Timeouts        *prometheus.CounterVec
	AbilityDeaths   *prometheus.CounterVec
	AbilityRestarts prometheus.Counter
	ServicesLive    *prometheus.GaugeVec

	// Connection metrics
	ConnectionsOpened prometheus.Counter
	ConnectionsClosed *prometheus.CounterVec
	ConnectionsLive   *prometheus.GaugeVec

	// Mission metrics
	Missions      *prometheus.GaugeVec
	MissionWrites *prometheus.CounterVec

	// User metrics
	UsersStarted prometheus.Gauge
	CurrentUser  prometheus.Gauge
	UserSwitches *prometheus.CounterVec

	// Collaborator calls
	CollaboratorCalls    *prometheus.CounterVec
	CollaboratorDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats endpoint
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	AbilityStarts int64   `json:"ability_starts"`
	Timeouts      int64   `json:"timeouts"`
	Deaths        int64   `json:"deaths"`
	UserSwitches  int64   `json:"user_switches"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	totalDuration float64
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics registers the collectors on reg. A nil reg uses a private
// registry so repeated construction in tests never collides.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ams_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ams_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ams_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		AbilityStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_ability_starts_total",
				Help: "Ability start requests by component type and result",
			},
			[]string{"type", "result"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_lifecycle_transitions_total",
				Help: "Completed lifecycle transitions by target state",
			},
			[]string{"state"},
		),
		Timeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_timeouts_total",
				Help: "Handshake timeouts by kind",
			},
			[]string{"kind"},
		),
		AbilityDeaths: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_ability_deaths_total",
				Help: "Hosted process deaths by component type",
			},
			[]string{"type"},
		),
		AbilityRestarts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ams_ability_restarts_total",
				Help: "Services restarted after their process died",
			},
		),
		ServicesLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ams_services_live",
				Help: "Live service and extension records per user",
			},
			[]string{"user"},
		),

		ConnectionsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ams_connections_opened_total",
				Help: "Connection records created",
			},
		),
		ConnectionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_connections_closed_total",
				Help: "Connection records closed by reason",
			},
			[]string{"reason"},
		),
		ConnectionsLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ams_connections_live",
				Help: "Live connection records per user",
			},
			[]string{"user"},
		),

		Missions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ams_missions",
				Help: "Missions held in memory per user",
			},
			[]string{"user"},
		),
		MissionWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_mission_writes_total",
				Help: "Mission persistence operations by kind and result",
			},
			[]string{"op", "result"},
		),

		UsersStarted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ams_users_started",
				Help: "Users in the STARTED state",
			},
		),
		CurrentUser: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ams_current_user",
				Help: "Id of the current foreground user",
			},
		),
		UserSwitches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_user_switches_total",
				Help: "Foreground user switches by how they finished",
			},
			[]string{"finish"},
		),

		CollaboratorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_collaborator_calls_total",
				Help: "Outbound calls to the app spawner and hosted processes",
			},
			[]string{"target", "method", "status"},
		),
		CollaboratorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ams_collaborator_duration_seconds",
				Help:    "Outbound call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"target", "method"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ams_ws_connections",
				Help: "Number of active WebSocket subscribers",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ams_ws_messages_total",
				Help: "WebSocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ams_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordAbilityStart records a start request outcome
func (m *Metrics) RecordAbilityStart(abilityType, result string) {
	if m == nil {
		return
	}
	m.AbilityStarts.WithLabelValues(abilityType, result).Inc()
	m.mu.Lock()
	m.snapshot.AbilityStarts++
	m.mu.Unlock()
}

// RecordTransition records a completed lifecycle transition
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

// RecordTimeout records a handshake timeout
func (m *Metrics) RecordTimeout(kind string) {
	if m == nil {
		return
	}
	m.Timeouts.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Timeouts++
	m.mu.Unlock()
}

// RecordDeath records a hosted process death
func (m *Metrics) RecordDeath(abilityType string) {
	if m == nil {
		return
	}
	m.AbilityDeaths.WithLabelValues(abilityType).Inc()
	m.mu.Lock()
	m.snapshot.Deaths++
	m.mu.Unlock()
}

// IncRestarts records an automatic service restart
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.AbilityRestarts.Inc()
}

// SetServicesLive sets the live service count for a user
func (m *Metrics) SetServicesLive(user string, count int) {
	if m == nil {
		return
	}
	m.ServicesLive.WithLabelValues(user).Set(float64(count))
}

// IncConnectionsOpened records a new connection record
func (m *Metrics) IncConnectionsOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Inc()
}

// RecordConnectionClosed records a connection ending
func (m *Metrics) RecordConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsClosed.WithLabelValues(reason).Inc()
}

// SetConnectionsLive sets the live connection count for a user
func (m *Metrics) SetConnectionsLive(user string, count int) {
	if m == nil {
		return
	}
	m.ConnectionsLive.WithLabelValues(user).Set(float64(count))
}

// SetMissions sets the in-memory mission count for a user
func (m *Metrics) SetMissions(user string, count int) {
	if m == nil {
		return
	}
	m.Missions.WithLabelValues(user).Set(float64(count))
}

// RecordMissionWrite records a persistence operation
func (m *Metrics) RecordMissionWrite(op, result string) {
	if m == nil {
		return
	}
	m.MissionWrites.WithLabelValues(op, result).Inc()
}

// SetUsersStarted sets the number of started users
func (m *Metrics) SetUsersStarted(count int) {
	if m == nil {
		return
	}
	m.UsersStarted.Set(float64(count))
}

// SetCurrentUser records the current foreground user
func (m *Metrics) SetCurrentUser(userID int) {
	if m == nil {
		return
	}
	m.CurrentUser.Set(float64(userID))
}

// RecordUserSwitch records how a user switch finished
func (m *Metrics) RecordUserSwitch(finish string) {
	if m == nil {
		return
	}
	m.UserSwitches.WithLabelValues(finish).Inc()
	m.mu.Lock()
	m.snapshot.UserSwitches++
	m.mu.Unlock()
}

// RecordCollaboratorCall records an outbound call
func (m *Metrics) RecordCollaboratorCall(target, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CollaboratorCalls.WithLabelValues(target, method, status).Inc()
	m.CollaboratorDuration.WithLabelValues(target, method).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket subscribers
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket subscribers
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns the running totals
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	uptime := time.Since(m.startTime).Seconds()
	m.Uptime.Set(uptime)

	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgDurationMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = uptime
	return s
}
