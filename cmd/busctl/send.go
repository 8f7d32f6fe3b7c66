package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/spf13/cobra"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/logging"
	"github.com/jrzesz33/language_bus/internal/models"
)

func newSendCmd() *cobra.Command {
	var (
		bus      string
		language string
		detail   string
		region   string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish one language event to a deployed bus",
		Long: `Send makes the same PutEvents call the language mapping template produces
and prints the event id EventBridge assigned.

Examples:
    busctl send --bus language-bus-dev
    busctl send --bus language-bus-dev --language french --detail '{"word":"bonjour"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			awsCfg, err := loadAWSConfig(ctx, region)
			if err != nil {
				return err
			}
			publisher := eventbus.NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), logging.New(os.Stderr))

			entry := models.NewGatewayEntry(models.SourceFor(language), detail, bus)
			return sendEvent(ctx, publisher, entry, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&bus, "bus", "", "Event bus name (required)")
	cmd.Flags().StringVar(&language, "language", models.DefaultLanguage, "Language used as the event source suffix")
	cmd.Flags().StringVar(&detail, "detail", models.StaticDetail, "Event detail JSON object")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "AWS region")
	_ = cmd.MarkFlagRequired("bus")

	return cmd
}

// sendEvent publishes entry and prints the assigned event id
func sendEvent(ctx context.Context, publisher eventbus.Publisher, entry models.EventEntry, out io.Writer) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	result, err := publisher.PutEvents(ctx, &models.PutEventsRequest{Entries: []models.EventEntry{entry}})
	if err != nil {
		return err
	}

	if result.FailedEntryCount > 0 {
		for _, failed := range result.Entries {
			if failed.Failed() {
				return fmt.Errorf("event rejected: %s: %s", failed.ErrorCode, failed.ErrorMessage)
			}
		}
		return fmt.Errorf("event rejected: %d failed entries reported without details", result.FailedEntryCount)
	}

	for _, id := range result.EventIDs() {
		fmt.Fprintln(out, id)
	}
	return nil
}
