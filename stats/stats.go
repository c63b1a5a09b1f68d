// Package stats exposes the runtime's own counters through
// prometheus client_golang gauges, the way aistore exposes per-xaction
// and per-target stats — here scoped to one unit's view of its task
// scheduler, RMA engine and buddy pool (SPEC_FULL.md's Domain Stack).
package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dash-project/dartrt/amq"
	"github.com/dash-project/dartrt/core/buddy"
	"github.com/dash-project/dartrt/rma"
	"github.com/dash-project/dartrt/task"
)

// Registry wires a unit's live components to a dedicated prometheus
// registry (not the global default, so multiple units in-process — as
// this repo's tests run — don't collide registering the same metric
// names twice).
type Registry struct {
	reg *prometheus.Registry

	activeTasks    prometheus.GaugeFunc
	handlesInUse   prometheus.GaugeFunc
	poolBytesUsed  prometheus.GaugeFunc
	poolBytesFree  prometheus.GaugeFunc
	amqOutstanding prometheus.GaugeFunc
}

// Sources bundles the components a Registry reads from; any may be nil
// if this unit doesn't run that component (e.g. no scheduler started
// yet), in which case its gauge always reports zero.
type Sources struct {
	Scheduler *task.Scheduler
	Engine    *rma.Engine
	LocalPool *buddy.Pool
	AMQ       *amq.Queue
}

// New builds and registers every gauge against a fresh registry.
func New(unit int, src Sources) *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.activeTasks = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dartrt",
			Subsystem:   "task",
			Name:        "active_total",
			Help:        "tasks currently queued, waiting or running on this unit",
			ConstLabels: prometheus.Labels{"unit": strconv.Itoa(unit)},
		},
		func() float64 {
			if src.Scheduler == nil {
				return 0
			}
			return float64(src.Scheduler.ActiveTasks())
		},
	)

	r.handlesInUse = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dartrt",
			Subsystem:   "rma",
			Name:        "handles_in_use",
			Help:        "outstanding (unreleased) RMA handles on this unit's engine",
			ConstLabels: prometheus.Labels{"unit": strconv.Itoa(unit)},
		},
		func() float64 {
			if src.Engine == nil {
				return 0
			}
			return float64(src.Engine.HandlesInUse())
		},
	)

	r.poolBytesUsed = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dartrt",
			Subsystem:   "buddy",
			Name:        "bytes_in_use",
			Help:        "bytes currently allocated from this unit's process-local buddy pool",
			ConstLabels: prometheus.Labels{"unit": strconv.Itoa(unit)},
		},
		func() float64 {
			if src.LocalPool == nil {
				return 0
			}
			return float64(src.LocalPool.BytesUsed())
		},
	)

	r.poolBytesFree = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dartrt",
			Subsystem:   "buddy",
			Name:        "bytes_free",
			Help:        "bytes still available in this unit's process-local buddy pool",
			ConstLabels: prometheus.Labels{"unit": strconv.Itoa(unit)},
		},
		func() float64 {
			if src.LocalPool == nil {
				return 0
			}
			return float64(src.LocalPool.BytesFree())
		},
	)

	r.amqOutstanding = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dartrt",
			Subsystem:   "amq",
			Name:        "outstanding_sent",
			Help:        "this unit's own active-message sends not yet accounted for by a local process() drain",
			ConstLabels: prometheus.Labels{"unit": strconv.Itoa(unit)},
		},
		func() float64 {
			if src.AMQ == nil {
				return 0
			}
			return float64(src.AMQ.OutstandingSent())
		},
	)

	r.reg.MustRegister(r.activeTasks, r.handlesInUse, r.poolBytesUsed, r.poolBytesFree, r.amqOutstanding)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP
// handler (cmd/dartd) to serve.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

