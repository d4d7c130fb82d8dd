// Package metrics turns camera bus events into Prometheus metrics.
package metrics

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/camcore/internal/camera"
	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/logging"
	"github.com/smazurov/camcore/internal/pipelines"
)

const namespace = "camcore"

// Collector keeps Prometheus metrics and a snapshot cache in sync with the
// event bus.
type Collector struct {
	logger *slog.Logger

	events         *prometheus.CounterVec
	frames         *prometheus.CounterVec
	captures       prometheus.Counter
	faults         *prometheus.CounterVec
	objects        *prometheus.CounterVec
	sessions       *prometheus.GaugeVec
	devicePresent  *prometheus.GaugeVec
	deviceInUse    *prometheus.GaugeVec
	pipelineStatus *prometheus.GaugeVec

	mu            sync.Mutex
	sessionStates map[string]camera.SessionState
	snap          Snapshot
}

// Snapshot is a point-in-time summary published by the SSE exporter.
type Snapshot struct {
	Frames           map[string]uint64 `json:"frames"`
	Captures         uint64            `json:"captures"`
	Faults           uint64            `json:"faults"`
	Sessions         map[string]int    `json:"sessions"`
	DevicesPresent   int               `json:"devices_present"`
	DevicesInUse     int               `json:"devices_in_use"`
	PipelinesRunning int               `json:"pipelines_running"`

	devices   map[string]bool
	pipelines map[string]bool
}

// Kind implements events.Payload.
func (Snapshot) Kind() string { return "metrics_snapshot" }

// NewCollector registers the camera metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		logger: logging.GetLogger("metrics"),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published on the bus by payload kind",
		}, []string{"kind"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "frames_total",
			Help:      "Frames delivered to preview and video outputs",
		}, []string{"output"}),
		captures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "photo",
			Name:      "captures_total",
			Help:      "Completed photo captures",
		}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Asynchronous hardware faults",
		}, []string{"origin", "code"}),
		objects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "objects_total",
			Help:      "Objects reported by metadata outputs",
		}, []string{"type"}),
		sessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "count",
			Help:      "Capture sessions by state",
		}, []string{"state"}),
		devicePresent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "present",
			Help:      "1 while the device is connected",
		}, []string{"device_id"}),
		deviceInUse: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "in_use",
			Help:      "1 while an input holds the device open",
		}, []string{"device_id"}),
		pipelineStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "running",
			Help:      "1 while the pipeline session is running",
		}, []string{"pipeline_id"}),
		sessionStates: make(map[string]camera.SessionState),
		snap: Snapshot{
			Frames:    make(map[string]uint64),
			Sessions:  make(map[string]int),
			devices:   make(map[string]bool),
			pipelines: make(map[string]bool),
		},
	}
}

// Attach subscribes the collector to every envelope on bus.
func (c *Collector) Attach(bus *events.Bus) func() {
	return bus.SubscribeAll(c.Observe)
}

// Observe updates metrics for one envelope.
func (c *Collector) Observe(env events.Envelope) {
	kind := env.Kind()
	if kind == "" {
		return
	}
	c.events.WithLabelValues(kind).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := env.Payload.(type) {
	case camera.FrameEnded:
		output := origin(env.Source)
		c.frames.WithLabelValues(output).Inc()
		c.snap.Frames[output]++
	case camera.CaptureEnded:
		c.captures.Inc()
		c.snap.Captures++
	case camera.Fault:
		c.faults.WithLabelValues(origin(env.Source), string(p.Code)).Inc()
		c.snap.Faults++
		c.logger.Debug("Fault observed", "source", env.Source, "code", p.Code)
	case camera.MetadataObjectsAvailable:
		for _, obj := range p.Objects {
			c.objects.WithLabelValues(obj.Type.String()).Inc()
		}
	case camera.SessionStateChanged:
		c.sessionChanged(env.Source, p.To)
	case camera.DeviceStatusChanged:
		c.deviceChanged(p)
	case pipelines.PipelineStateChanged:
		c.pipelineChanged(p)
	}
}

func (c *Collector) sessionChanged(source string, to camera.SessionState) {
	if to == camera.StateReleased {
		delete(c.sessionStates, source)
	} else {
		c.sessionStates[source] = to
	}

	counts := make(map[string]int)
	for _, s := range c.sessionStates {
		counts[s.String()]++
	}
	for _, s := range []camera.SessionState{camera.StateIdle, camera.StateConfiguring, camera.StateConfigured, camera.StateRunning} {
		c.sessions.WithLabelValues(s.String()).Set(float64(counts[s.String()]))
	}
	c.snap.Sessions = counts
}

func (c *Collector) deviceChanged(ev camera.DeviceStatusChanged) {
	id := ev.Device.ID
	switch ev.Status {
	case camera.StatusAppear:
		c.devicePresent.WithLabelValues(id).Set(1)
		c.deviceInUse.WithLabelValues(id).Set(0)
		c.snap.devices[id] = false
	case camera.StatusDisappear:
		c.devicePresent.DeleteLabelValues(id)
		c.deviceInUse.DeleteLabelValues(id)
		delete(c.snap.devices, id)
	case camera.StatusUnavailable:
		c.deviceInUse.WithLabelValues(id).Set(1)
		c.snap.devices[id] = true
	case camera.StatusAvailable:
		c.deviceInUse.WithLabelValues(id).Set(0)
		c.snap.devices[id] = false
	}

	c.snap.DevicesPresent = len(c.snap.devices)
	c.snap.DevicesInUse = 0
	for _, inUse := range c.snap.devices {
		if inUse {
			c.snap.DevicesInUse++
		}
	}
}

func (c *Collector) pipelineChanged(ev pipelines.PipelineStateChanged) {
	if ev.Deleted {
		c.pipelineStatus.DeleteLabelValues(ev.PipelineID)
		delete(c.snap.pipelines, ev.PipelineID)
	} else {
		running := ev.State == camera.StateRunning
		value := 0.0
		if running {
			value = 1
		}
		c.pipelineStatus.WithLabelValues(ev.PipelineID).Set(value)
		c.snap.pipelines[ev.PipelineID] = running
	}

	c.snap.PipelinesRunning = 0
	for _, running := range c.snap.pipelines {
		if running {
			c.snap.PipelinesRunning++
		}
	}
}

// Snapshot returns a copy of the current summary.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.snap
	out.Frames = make(map[string]uint64, len(c.snap.Frames))
	for k, v := range c.snap.Frames {
		out.Frames[k] = v
	}
	out.Sessions = make(map[string]int, len(c.snap.Sessions))
	for k, v := range c.snap.Sessions {
		out.Sessions[k] = v
	}
	out.devices = nil
	out.pipelines = nil
	return out
}

// origin is the object class of an envelope source, e.g. "preview" for
// "preview/6f1c...".
func origin(source string) string {
	kind, _, _ := strings.Cut(source, "/")
	return kind
}
