package stack

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/jrzesz33/language_bus/internal/gateway"
	"github.com/jrzesz33/language_bus/internal/models"
	"github.com/jrzesz33/language_bus/internal/topology"
)

const (
	defaultArchive          = "../build/eventprocessor.zip"
	defaultLogRetentionDays = 7
	defaultRegion           = "us-east-1"
)

// Config is the deployment configuration read from the Pulumi stack
type Config struct {
	Stage                 models.Stage
	Variant               gateway.Variant
	Runtime               topology.Runtime
	FunctionArchive       string
	LogRetentionDays      int
	EnableAudit           bool
	EnableDeadLetterQueue bool
	Region                string
}

// LoadConfig reads the project and aws namespaces of the stack config
func LoadConfig(ctx *pulumi.Context) (*Config, error) {
	cfg := config.New(ctx, "")

	stage := cfg.Get("stage")
	if stage == "" {
		stage = string(models.StageDev)
		log.Printf("Using default stage: %s", stage)
	}

	variantName := cfg.Get("variant")
	if variantName == "" {
		variantName = string(gateway.VariantLanguage)
	}
	variant, err := gateway.ParseVariant(variantName)
	if err != nil {
		return nil, fmt.Errorf("invalid config 'variant': %w", err)
	}

	runtimeName := cfg.Get("functionRuntime")
	if runtimeName == "" {
		runtimeName = string(topology.RuntimeGo)
	}
	runtime, err := topology.ParseRuntime(runtimeName)
	if err != nil {
		return nil, fmt.Errorf("invalid config 'functionRuntime': %w", err)
	}

	archive := cfg.Get("functionArchive")
	if archive == "" {
		archive = defaultArchive
	}

	logRetentionDays := cfg.GetInt("logRetentionDays")
	if logRetentionDays == 0 {
		logRetentionDays = defaultLogRetentionDays
		log.Printf("Using default logRetentionDays: %d", logRetentionDays)
	}

	region := config.New(ctx, "aws").Get("region")
	if region == "" {
		region = defaultRegion
	}

	c := &Config{
		Stage:                 models.Stage(stage),
		Variant:               variant,
		Runtime:               runtime,
		FunctionArchive:       archive,
		LogRetentionDays:      logRetentionDays,
		EnableAudit:           cfg.GetBool("enableAudit"),
		EnableDeadLetterQueue: cfg.GetBool("enableDeadLetterQueue"),
		Region:                region,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Configuration loaded: stage=%s, variant=%s, runtime=%s, audit=%v, dlq=%v",
		c.Stage, c.Variant, c.Runtime, c.EnableAudit, c.EnableDeadLetterQueue)
	return c, nil
}

// Validate checks the configuration before any resource is declared
func (c *Config) Validate() error {
	if !c.Stage.IsValid() {
		return fmt.Errorf("invalid stage: %s (must be dev, stage, or prod)", c.Stage)
	}
	if !c.Variant.IsValid() {
		return fmt.Errorf("%w: %q", gateway.ErrUnknownVariant, c.Variant)
	}
	if !c.Runtime.IsValid() {
		return fmt.Errorf("unknown function runtime %q", c.Runtime)
	}
	if c.Runtime == topology.RuntimeGo && c.FunctionArchive == "" {
		return fmt.Errorf("functionArchive is required for the go runtime")
	}
	if c.LogRetentionDays < 0 {
		return fmt.Errorf("logRetentionDays must be positive, got %d", c.LogRetentionDays)
	}
	if c.Region == "" {
		return fmt.Errorf("AWS region is required")
	}
	return nil
}

// BusName is the name given to the event bus
func (c *Config) BusName() string {
	return fmt.Sprintf("language-bus-%s", c.Stage)
}

// resourceName prefixes every physical name with the project and stage
func (c *Config) resourceName(kind string) string {
	return fmt.Sprintf("language-bus-%s-%s", kind, c.Stage)
}
