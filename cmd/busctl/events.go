package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/jrzesz33/language_bus/internal/repository"
)

func newEventsCmd() *cobra.Command {
	var (
		table  string
		source string
		limit  int
		region string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events recorded in the audit table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			awsCfg, err := loadAWSConfig(ctx, region)
			if err != nil {
				return err
			}
			repo := repository.NewDynamoDBEventRepository(dynamodb.NewFromConfig(awsCfg), table)
			return listEvents(ctx, repo, source, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Audit table name (required)")
	cmd.Flags().StringVar(&source, "source", "", "Only list events from this source")
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum number of items to scan")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "AWS region")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

// listEvents prints one JSON record per line
func listEvents(ctx context.Context, repo repository.EventRepository, source string, limit int, out io.Writer) error {
	records, err := repo.ListEvents(ctx, source, limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}
