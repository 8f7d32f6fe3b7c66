package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrzesz33/language_bus/internal/models"
)

type fakeEventBridge struct {
	input  *eventbridge.PutEventsInput
	output *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, params *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestEventBridgePublisher_PutEvents(t *testing.T) {
	fake := &fakeEventBridge{
		output: &eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []types.PutEventsResultEntry{
				{EventId: aws.String("evt-1")},
				{ErrorCode: aws.String("MalformedDetail"), ErrorMessage: aws.String("Detail is malformed.")},
			},
		},
	}
	publisher := NewEventBridgePublisher(fake, nil)

	good := models.NewGatewayEntry("com.amazon.alexa.english", models.StaticDetail, "language-bus")
	noBus := models.NewGatewayEntry("com.amazon.alexa.english", "oops", "")

	result, err := publisher.PutEvents(context.Background(), &models.PutEventsRequest{
		Entries: []models.EventEntry{good, noBus},
	})
	require.NoError(t, err)

	require.Len(t, fake.input.Entries, 2)
	sent := fake.input.Entries[0]
	assert.Equal(t, "com.amazon.alexa.english", aws.ToString(sent.Source))
	assert.Equal(t, models.DetailType, aws.ToString(sent.DetailType))
	assert.Equal(t, "language-bus", aws.ToString(sent.EventBusName))
	assert.Equal(t, []string{"resource1", "resource2"}, sent.Resources)
	assert.Nil(t, fake.input.Entries[1].EventBusName, "empty bus name falls back to the default bus")

	assert.Equal(t, 1, result.FailedEntryCount)
	assert.Equal(t, []string{"evt-1"}, result.EventIDs())
	assert.Equal(t, "MalformedDetail", result.Entries[1].ErrorCode)
}

func TestEventBridgePublisher_Errors(t *testing.T) {
	fake := &fakeEventBridge{err: errors.New("AccessDeniedException")}
	publisher := NewEventBridgePublisher(fake, nil)

	_, err := publisher.PutEvents(context.Background(), &models.PutEventsRequest{
		Entries: []models.EventEntry{models.NewGatewayEntry("s", "{}", "b")},
	})
	assert.ErrorContains(t, err, "AccessDeniedException")

	_, err = publisher.PutEvents(context.Background(), &models.PutEventsRequest{})
	assert.Error(t, err)
}

func TestPublisherImplementations(t *testing.T) {
	var _ Publisher = (*Bus)(nil)
	var _ Publisher = (*EventBridgePublisher)(nil)
}
