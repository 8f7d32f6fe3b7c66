package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/jrzesz33/language_bus/internal/models"
)

// EventBridgeAPI is the subset of the EventBridge client used for publishing
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher implements Publisher using AWS EventBridge
type EventBridgePublisher struct {
	client EventBridgeAPI
	logger *slog.Logger
}

// NewEventBridgePublisher creates a new EventBridge publisher instance
func NewEventBridgePublisher(client EventBridgeAPI, logger *slog.Logger) *EventBridgePublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventBridgePublisher{
		client: client,
		logger: logger,
	}
}

// PutEvents publishes the batch to EventBridge
func (p *EventBridgePublisher) PutEvents(ctx context.Context, req *models.PutEventsRequest) (*models.PutEventsResult, error) {
	if req == nil || len(req.Entries) == 0 {
		return nil, fmt.Errorf("at least one entry is required")
	}

	input := &eventbridge.PutEventsInput{
		Entries: make([]types.PutEventsRequestEntry, 0, len(req.Entries)),
	}
	for _, entry := range req.Entries {
		input.Entries = append(input.Entries, types.PutEventsRequestEntry{
			Source:       aws.String(entry.Source),
			Detail:       aws.String(entry.Detail),
			DetailType:   aws.String(entry.DetailType),
			EventBusName: optionalString(entry.EventBusName),
			Resources:    entry.Resources,
		})
	}

	output, err := p.client.PutEvents(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to put events to EventBridge: %w", err)
	}

	result := &models.PutEventsResult{
		FailedEntryCount: int(output.FailedEntryCount),
		Entries:          make([]models.PutEventsResultEntry, 0, len(output.Entries)),
	}
	for _, e := range output.Entries {
		result.Entries = append(result.Entries, models.PutEventsResultEntry{
			EventID:      aws.ToString(e.EventId),
			ErrorCode:    aws.ToString(e.ErrorCode),
			ErrorMessage: aws.ToString(e.ErrorMessage),
		})
	}

	if result.FailedEntryCount > 0 {
		p.logger.WarnContext(ctx, "some entries were rejected by EventBridge",
			slog.Int("failed_entry_count", result.FailedEntryCount),
			slog.Int("entry_count", len(req.Entries)),
		)
	}

	p.logger.InfoContext(ctx, "events published to EventBridge",
		slog.Int("entry_count", len(req.Entries)),
		slog.Any("event_ids", result.EventIDs()),
	)

	return result, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
