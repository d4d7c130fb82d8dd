package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camcore/internal/events"
)

// StreamConnected opens every event stream so clients know the
// subscription is in place.
type StreamConnected struct{}

// Kind implements events.Payload.
func (StreamConnected) Kind() string { return "connected" }

// EventsInput filters the event stream.
type EventsInput struct {
	Kinds  []string `query:"kinds" example:"device_status,session_state" doc:"Only send these payload kinds"`
	Source string   `query:"source" example:"pipeline/" doc:"Only send envelopes whose source starts with this prefix"`
}

func (in *EventsInput) match(env events.Envelope) bool {
	if in.Source != "" && !strings.HasPrefix(env.Source, in.Source) {
		return false
	}
	if len(in.Kinds) == 0 {
		return true
	}
	kind := env.Kind()
	for _, k := range in.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// registerSSERoutes registers the bus event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Every envelope published on the event bus: device status, session state, frame, capture, metadata, fault and pipeline events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.Envelope{},
	}, func(ctx context.Context, input *EventsInput, send sse.Sender) {
		eventCh := make(chan any, 64)
		unsubscribe := events.SubscribeToChannel(s.bus, events.Firehose, eventCh)
		defer unsubscribe()

		hello := events.Envelope{Source: "api", Time: time.Now(), Payload: StreamConnected{}}
		if err := send.Data(hello); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				env, ok := ev.(events.Envelope)
				if !ok || env.Kind() == (events.LogEntry{}).Kind() || !input.match(env) {
					continue
				}
				if err := send.Data(env); err != nil {
					return
				}
			}
		}
	})
}
