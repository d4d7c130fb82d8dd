package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camcore/internal/api/models"
	"github.com/smazurov/camcore/internal/events"
	"github.com/smazurov/camcore/internal/logging"
)

// PublishLogs returns a log callback that emits every entry on em.
func PublishLogs(em *events.Emitter) logging.LogCallback {
	return func(entry logging.LogEntry) {
		em.Emit(logEvent(entry))
	}
}

func logEvent(entry logging.LogEntry) events.LogEntry {
	return events.LogEntry{
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// LogsInput selects how much history the log stream replays.
type LogsInput struct {
	Tail int `query:"tail" minimum:"0" doc:"Replay only the newest N buffered entries (0 = all)"`
}

// registerLogRoutes registers the log streaming SSE endpoint and the
// runtime level controls.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Description: "Current level of every module logger",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Levels: logging.Levels()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPatch,
		Path:        "/api/logs/levels",
		Summary:     "Set Log Level",
		Description: "Change the level of one module logger until the next restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *models.LogLevelRequest) (*models.LogLevelsResponse, error) {
		if err := logging.SetLevel(input.Body.Module, input.Body.Level); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		s.logger.Info("Log level changed", "target", input.Body.Module, "level", input.Body.Level)
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Levels: logging.Levels()}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntry{},
	}, func(ctx context.Context, input *LogsInput, send sse.Sender) {
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Tail(input.Tail) {
				if err := send.Data(logEvent(entry)); err != nil {
					return
				}
			}
		}

		if s.options.Logs == nil {
			<-ctx.Done()
			return
		}

		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel(s.bus, s.options.Logs.Topic(), eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				env, ok := ev.(events.Envelope)
				if !ok {
					continue
				}
				entry, ok := env.Payload.(events.LogEntry)
				if !ok {
					continue
				}
				entry.Seq = env.Seq
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}
