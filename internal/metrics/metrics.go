package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-wide Prometheus instruments. Registered on the default registry and
// served by the hosting daemon next to /healthz.

var (
	DispatchTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irrigation_dispatch_ticks_total",
		Help: "Dispatcher wakeups that scanned for due schedules.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irrigation_events_total",
		Help: "Execution events recorded, by terminal or entered status.",
	}, []string{"status"})

	OpenValves = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "irrigation_open_valves",
		Help: "Number of zone valves currently open.",
	})

	ValveCommandErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irrigation_valve_command_errors_total",
		Help: "Valve driver commands that failed or timed out.",
	})

	EmergencyStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irrigation_emergency_stops_total",
		Help: "Times StopAll was invoked.",
	})
)
