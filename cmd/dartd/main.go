// Command dartd is a lightweight, read-only debug/introspection HTTP
// endpoint for one running unit: /debug/tasks and /debug/segments dump
// live runtime state as JSON, and /metrics proxies the unit's
// prometheus registry (SPEC_FULL.md's Domain Stack). It is diagnostic
// tooling only — nothing here is on any collective or RMA call path.
package main

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/dash-project/dartrt/cmn/config"
	"github.com/dash-project/dartrt/cmn/cos"
	"github.com/dash-project/dartrt/cmn/nlog"
	"github.com/dash-project/dartrt/dart"
	"github.com/dash-project/dartrt/transport/shmem"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	flags, err := config.Parse(os.Args[1:])
	if err != nil {
		nlog.Errorln("dartd: parse flags:", err)
		os.Exit(1)
	}

	// This reference build has no real multi-process launcher wiring
	// these flags to an MPI/GASPI job (spec section 6's launcher is
	// external); it stands up a single-unit in-process world sized by
	// --dart-size purely so /debug has live state to show.
	drivers := shmem.NewSharedWorld(cos.Max(flags.DartSize, 1))
	rt, err := dart.Init(drivers[0], dart.Options{})
	if err != nil {
		nlog.Errorln("dartd: init:", err)
		os.Exit(1)
	}
	defer rt.Finalize()

	addr := os.Getenv("DARTD_LISTEN")
	if addr == "" {
		addr = ":9808"
	}

	promHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(rt.Stats.Gatherer(), promhttp.HandlerOpts{}),
	)

	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/debug/tasks":
				handleDebugTasks(ctx, rt)
			case "/debug/segments":
				handleDebugSegments(ctx, rt)
			case "/metrics":
				promHandler(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}

	nlog.Infof("dartd: listening on %s (unit %d of %d)", addr, rt.Root.Me, rt.Root.Size)
	if err := server.ListenAndServe(addr); err != nil {
		nlog.Errorln("dartd: serve:", err)
		os.Exit(1)
	}
}

type tasksView struct {
	ActiveTasks int32 `json:"active_tasks"`
	Phase       int   `json:"phase"`
}

func handleDebugTasks(ctx *fasthttp.RequestCtx, rt *dart.Runtime) {
	v := tasksView{
		ActiveTasks: rt.Scheduler.ActiveTasks(),
		Phase:       rt.Scheduler.Phase(),
	}
	writeJSON(ctx, v)
}

type segmentView struct {
	ID   int32 `json:"id"`
	Size int64 `json:"size"`
	Kind int   `json:"kind"`
}

type segmentsView struct {
	TeamID  int32         `json:"team_id"`
	Segs    []segmentView `json:"segments"`
	Handles int           `json:"handles_in_use"`
}

func handleDebugSegments(ctx *fasthttp.RequestCtx, rt *dart.Runtime) {
	ids := rt.Root.Segs.Ordered()
	v := segmentsView{TeamID: int32(rt.Root.ID), Segs: make([]segmentView, 0, len(ids))}
	for _, id := range ids {
		seg, ok := rt.Root.Segs.Lookup(id)
		if !ok {
			continue
		}
		v.Segs = append(v.Segs, segmentView{ID: int32(id), Size: seg.Size, Kind: int(seg.Kind)})
	}
	v.Handles = rt.Engine.HandlesInUse()
	writeJSON(ctx, v)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

