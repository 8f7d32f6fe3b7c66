package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jrzesz33/language_bus/internal/logging"
	"github.com/jrzesz33/language_bus/internal/processor"
	"github.com/jrzesz33/language_bus/internal/repository"
	appconfig "github.com/jrzesz33/language_bus/pkg/config"
)

func main() {
	// Setup structured logging
	logger := logging.New(os.Stdout)
	slog.SetDefault(logger)

	// Load configuration
	cfg := appconfig.MustLoad()

	logger.Info("event processor lambda starting",
		slog.String("stage", cfg.Stage.String()),
		slog.String("region", cfg.AWSRegion),
		slog.String("bus", cfg.EventBusName),
		slog.Bool("audit", cfg.AuditEnabled()),
	)

	var recorder processor.Recorder
	if cfg.AuditEnabled() {
		awsCfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.AWSRegion),
		)
		if err != nil {
			logger.Error("failed to load AWS config", slog.String("error", err.Error()))
			panic(fmt.Sprintf("failed to load AWS config: %v", err))
		}

		recorder = repository.NewDynamoDBEventRepository(dynamodb.NewFromConfig(awsCfg), cfg.EventsTableName)
	}

	handler := processor.NewHandler(logger, recorder)

	// Start Lambda handler
	lambda.Start(handler.HandleEvent)
}
