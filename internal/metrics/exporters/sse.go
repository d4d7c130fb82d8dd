package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/metrics"
)

// SnapshotSource provides metric summaries.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// SSEExporter periodically publishes metric snapshots on the event bus,
// where the events stream picks them up.
type SSEExporter struct {
	emitter  *events.Emitter
	source   SnapshotSource
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(bus *events.Bus, source SnapshotSource) *SSEExporter {
	return &SSEExporter{
		emitter:  bus.NewEmitter("metrics"),
		source:   source,
		interval: time.Second,
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emitter.Emit(s.source.Snapshot())
		}
	}
}
