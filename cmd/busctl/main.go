// Command busctl runs the language bus locally and talks to a deployed one.
//
// Usage:
//
//	busctl serve --variant language     Emulate gateway, bus and function
//	busctl send --bus NAME              Publish one event to EventBridge
//	busctl template --variant assembly  Print the VTL request template
//	busctl topology --runtime python    Validate and print the topology
//	busctl events --table NAME          List audited events
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "busctl",
		Short: "Operate the API Gateway to EventBridge language bus",
		Long: `busctl emulates the gateway -> bus -> function topology on a laptop
and publishes to or inspects a deployed bus.

Run the emulator and post a language:

    busctl serve --variant language
    curl -X POST -H 'Content-Type: application/json' localhost:8080/english`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSendCmd(),
		newTemplateCmd(),
		newTopologyCmd(),
		newEventsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}
