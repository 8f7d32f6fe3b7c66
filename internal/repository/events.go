package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jrzesz33/language_bus/internal/models"
)

// DefaultRecordTTL is how long audit records are kept
const DefaultRecordTTL = 30 * 24 * time.Hour

// ErrEventNotFound is returned by GetEvent for unknown ids
var ErrEventNotFound = errors.New("event not found")

// EventRecord is the audit entry written for every delivered event
type EventRecord struct {
	// ID is the EventBridge event id
	ID string `json:"id" dynamodbav:"id"`

	Source     string   `json:"source" dynamodbav:"source"`
	DetailType string   `json:"detail_type" dynamodbav:"detail_type"`
	Language   string   `json:"language,omitempty" dynamodbav:"language,omitempty"`
	Account    string   `json:"account" dynamodbav:"account"`
	Region     string   `json:"region" dynamodbav:"region"`
	Resources  []string `json:"resources,omitempty" dynamodbav:"resources,omitempty"`
	Detail     string   `json:"detail" dynamodbav:"detail"`

	// EventTime is the time EventBridge stamped on the event
	EventTime time.Time `json:"event_time" dynamodbav:"event_time"`

	// ReceivedAt is when the function handled the event
	ReceivedAt time.Time `json:"received_at" dynamodbav:"received_at"`

	// ExpiresAt is the DynamoDB TTL attribute (unix seconds)
	ExpiresAt int64 `json:"expires_at" dynamodbav:"expires_at"`
}

// NewEventRecord builds an audit record for event
func NewEventRecord(event events.CloudWatchEvent, receivedAt time.Time, ttl time.Duration) *EventRecord {
	language, _ := models.LanguageOf(event.Source)
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}

	return &EventRecord{
		ID:         event.ID,
		Source:     event.Source,
		DetailType: event.DetailType,
		Language:   language,
		Account:    event.AccountID,
		Region:     event.Region,
		Resources:  event.Resources,
		Detail:     string(event.Detail),
		EventTime:  event.Time,
		ReceivedAt: receivedAt,
		ExpiresAt:  receivedAt.Add(ttl).Unix(),
	}
}

// EventRepository defines the interface for event audit persistence
type EventRepository interface {
	SaveEvent(ctx context.Context, record *EventRecord) error
	GetEvent(ctx context.Context, id string) (*EventRecord, error)
	ListEvents(ctx context.Context, source string, limit int) ([]*EventRecord, error)
}

// DynamoDBAPI is the subset of the DynamoDB client the repository uses
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBEventRepository implements EventRepository using DynamoDB
type DynamoDBEventRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBEventRepository creates a new DynamoDB event repository instance
func NewDynamoDBEventRepository(client DynamoDBAPI, tableName string) *DynamoDBEventRepository {
	return &DynamoDBEventRepository{
		client:    client,
		tableName: tableName,
	}
}

// SaveEvent stores the record once. Delivery is at-least-once, so a record
// that already exists is treated as saved.
func (r *DynamoDBEventRepository) SaveEvent(ctx context.Context, record *EventRecord) error {
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal event record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}

	_, err = r.client.PutItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil
		}
		return fmt.Errorf("failed to save event to DynamoDB: %w", err)
	}

	return nil
}

// GetEvent retrieves an event record by id
func (r *DynamoDBEventRepository) GetEvent(ctx context.Context, id string) (*EventRecord, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	}

	result, err := r.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get event from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}

	var record EventRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
	}

	return &record, nil
}

// ListEvents scans event records, optionally filtered by source. Scan applies
// Limit before the filter, so pages are followed until limit records match
// or the table is exhausted.
func (r *DynamoDBEventRepository) ListEvents(ctx context.Context, source string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	input := &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Limit:     aws.Int32(int32(limit)),
	}

	if source != "" {
		input.FilterExpression = aws.String("#source = :source")
		input.ExpressionAttributeNames = map[string]string{"#source": "source"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":source": &types.AttributeValueMemberS{Value: source},
		}
	}

	records := make([]*EventRecord, 0, limit)
	paginator := dynamodb.NewScanPaginator(r.client, input)
	for paginator.HasMorePages() && len(records) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan events from DynamoDB: %w", err)
		}

		for _, item := range page.Items {
			if len(records) == limit {
				break
			}
			var record EventRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
			}
			records = append(records, &record)
		}
	}

	return records, nil
}
