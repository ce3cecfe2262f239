package metrics

import (
	"github.com/cwrk-planet/collab-service/internal/protocol"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "collab"

type Metrics struct {
	roomsOpen       prometheus.Gauge
	members         prometheus.Gauge
	joins           *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	heartbeatReaps  prometheus.Counter
	rejected        *prometheus.CounterVec
	droppedFrames   *prometheus.CounterVec
	connectionsOpen prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		roomsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms_open",
			Help: "Rooms with at least one member.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "room_members",
			Help: "Registered members across all rooms.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "joins_total",
			Help: "Joins, labelled by whether an older connection was replaced.",
		}, []string{"replaced"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcasts_total",
			Help: "Fan-outs by message type.",
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Per-recipient sends by outcome.",
		}, []string{"outcome"}),
		heartbeatReaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeat_reaps_total",
			Help: "Connections terminated for missing a pong.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "admissions_rejected_total",
			Help: "Upgrades closed during admission, by reason.",
		}, []string{"reason"}),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "inbound_frames_dropped_total",
			Help: "Client frames dropped, by reason.",
		}, []string{"reason"}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_open",
			Help: "Upgraded WebSocket connections, joined or not.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.roomsOpen, m.members, m.joins, m.broadcasts, m.deliveries,
			m.heartbeatReaps, m.rejected, m.droppedFrames, m.connectionsOpen,
		)
	}
	return m
}

func (m *Metrics) RoomOpened() { m.roomsOpen.Inc() }
func (m *Metrics) RoomClosed() { m.roomsOpen.Dec() }

func (m *Metrics) Joined(replaced bool) {
	if replaced {
		m.joins.WithLabelValues("true").Inc()
		return
	}
	m.joins.WithLabelValues("false").Inc()
	m.members.Inc()
}

func (m *Metrics) Left() { m.members.Dec() }

func (m *Metrics) Broadcast(t protocol.Type, delivered, dropped int) {
	m.broadcasts.WithLabelValues(string(t)).Inc()
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) HeartbeatReaped()                { m.heartbeatReaps.Inc() }
func (m *Metrics) AdmissionRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }
func (m *Metrics) FrameDropped(reason string)      { m.droppedFrames.WithLabelValues(reason).Inc() }
func (m *Metrics) ConnectionOpened()               { m.connectionsOpen.Inc() }
func (m *Metrics) ConnectionClosed()               { m.connectionsOpen.Dec() }
