package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/jrzesz33/language_bus/internal/models"
	"github.com/jrzesz33/language_bus/internal/repository"
)

// Recorder persists delivered events
type Recorder interface {
	SaveEvent(ctx context.Context, record *repository.EventRecord) error
}

// Handler is the function target of the language rule. It logs every event
// it receives and answers with a fixed greeting.
type Handler struct {
	logger   *slog.Logger
	recorder Recorder
	ttl      time.Duration
	now      func() time.Time
}

// NewHandler creates a new event handler. recorder may be nil.
func NewHandler(logger *slog.Logger, recorder Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		recorder: recorder,
		ttl:      repository.DefaultRecordTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent is the Lambda entry point
func (h *Handler) HandleEvent(ctx context.Context, event events.CloudWatchEvent) (models.Response, error) {
	logger := h.logger.With(
		slog.String("event_id", event.ID),
		slog.String("source", event.Source),
		slog.String("detail_type", event.DetailType),
	)
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With(slog.String("request_id", lc.AwsRequestID))
	}

	raw, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode event", slog.String("error", err.Error()))
	} else {
		logger.InfoContext(ctx, "received event", slog.String("event", string(raw)))
	}

	if h.recorder != nil {
		record := repository.NewEventRecord(event, h.now(), h.ttl)
		if err := h.recorder.SaveEvent(ctx, record); err != nil {
			logger.ErrorContext(ctx, "failed to record event", slog.String("error", err.Error()))
		} else {
			logger.DebugContext(ctx, "event recorded")
		}
	}

	return models.HelloResponse(), nil
}

// Invoke lets the handler act as an in-process bus target
func (h *Handler) Invoke(ctx context.Context, event events.CloudWatchEvent) error {
	_, err := h.HandleEvent(ctx, event)
	return err
}
