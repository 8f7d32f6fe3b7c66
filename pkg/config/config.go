package config

import (
	"fmt"
	"os"

	"github.com/jrzesz33/language_bus/internal/gateway"
	"github.com/jrzesz33/language_bus/internal/models"
)

// Config holds all runtime configuration for the binaries
type Config struct {
	// Stage is the deployment environment (dev, stage, prod)
	Stage models.Stage

	// AWS Configuration
	AWSRegion string

	// EventBusName is the bus events are published to
	EventBusName string

	// GatewayVariant selects the resource layout served by busctl
	GatewayVariant gateway.Variant

	// ListenAddr is the local emulator address
	ListenAddr string

	// EventsTableName enables the audit table when set
	EventsTableName string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = "dev"
	}

	stageEnum := models.Stage(stage)
	if !stageEnum.IsValid() {
		return nil, fmt.Errorf("invalid STAGE value: %s (must be dev, stage, or prod)", stage)
	}

	awsRegion := os.Getenv("AWS_REGION")
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}

	busName := os.Getenv("EVENT_BUS_NAME")
	if busName == "" {
		busName = "MyLanguageBus"
	}

	variantName := os.Getenv("GATEWAY_VARIANT")
	if variantName == "" {
		variantName = string(gateway.VariantLanguage)
	}
	variant, err := gateway.ParseVariant(variantName)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_VARIANT value: %w", err)
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	// Audit table is optional
	eventsTableName := os.Getenv("EVENTS_TABLE_NAME")

	return &Config{
		Stage:           stageEnum,
		AWSRegion:       awsRegion,
		EventBusName:    busName,
		GatewayVariant:  variant,
		ListenAddr:      listenAddr,
		EventsTableName: eventsTableName,
	}, nil
}

// MustLoad loads configuration and panics if there's an error
// This is useful for Lambda handlers where configuration errors should prevent startup
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if !c.Stage.IsValid() {
		return fmt.Errorf("invalid stage: %s", c.Stage)
	}

	if c.AWSRegion == "" {
		return fmt.Errorf("AWS region is required")
	}

	if c.EventBusName == "" {
		return fmt.Errorf("event bus name is required")
	}

	if !c.GatewayVariant.IsValid() {
		return fmt.Errorf("invalid gateway variant: %s", c.GatewayVariant)
	}

	return nil
}

// AuditEnabled reports whether delivered events are recorded
func (c *Config) AuditEnabled() bool {
	return c.EventsTableName != ""
}

// IsDevelopment returns true if the stage is development
func (c *Config) IsDevelopment() bool {
	return c.Stage == models.StageDev
}

// IsProduction returns true if the stage is production
func (c *Config) IsProduction() bool {
	return c.Stage == models.StageProd
}
