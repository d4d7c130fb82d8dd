package exporters

import (
	"context"
	"testing"
	"time"

	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/metrics"
)

type fixedSource struct{ snap metrics.Snapshot }

func (f fixedSource) Snapshot() metrics.Snapshot { return f.snap }

func TestSSEExporterPublishesSnapshots(t *testing.T) {
	bus := events.New()
	got := make(chan metrics.Snapshot, 10)
	unsubscribe := bus.SubscribeAll(func(env events.Envelope) {
		if snap, ok := env.Payload.(metrics.Snapshot); ok {
			got <- snap
		}
	})
	defer unsubscribe()

	exporter := NewSSEExporter(bus, fixedSource{metrics.Snapshot{Captures: 7}})
	exporter.interval = 10 * time.Millisecond
	exporter.Start(context.Background())
	defer exporter.Stop()

	select {
	case snap := <-got:
		if snap.Captures != 7 {
			t.Errorf("Captures = %d, want 7", snap.Captures)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for metrics snapshot")
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	exporter := NewSSEExporter(events.New(), fixedSource{})
	exporter.interval = 10 * time.Millisecond
	exporter.Start(context.Background())

	exporter.Stop()
	exporter.Stop()
}

func TestSSEExporterStopWithoutStart(t *testing.T) {
	exporter := NewSSEExporter(events.New(), fixedSource{})
	exporter.Stop()
}
