package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for task runs.
//
//   - taskd_tasks_total{status} - runs by final outcome
//   - taskd_task_duration_seconds{status} - run time from plan to outcome
//   - taskd_steps_total{tool,result} - executed steps
//   - taskd_dispatch_queue_depth - tasks waiting for a worker
//   - taskd_dispatch_active - tasks running on a worker
type Metrics struct {
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	StepsTotal   *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
	Active       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskd_tasks_total",
				Help: "Task runs by outcome status",
			},
			[]string{"status"},
		),
		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskd_task_duration_seconds",
				Help:    "Duration of a task run in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		StepsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskd_steps_total",
				Help: "Executed plan steps by tool and result",
			},
			[]string{"tool", "result"}, // result: "ok" or "failed"
		),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskd_dispatch_queue_depth",
			Help: "Tasks waiting for a dispatcher worker",
		}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskd_dispatch_active",
			Help: "Tasks currently running on a dispatcher worker",
		}),
	}
}
