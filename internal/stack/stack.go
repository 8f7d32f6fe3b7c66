// Package stack provisions a validated topology on AWS with Pulumi: an API
// Gateway REST API whose integration calls EventBridge PutEvents, a custom
// bus, a rule routing english events to a Lambda function, and the IAM roles
// that connect them.
package stack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/apigateway"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/dynamodb"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/sqs"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/policy"
	"github.com/jrzesz33/language_bus/internal/topology"
)

const (
	// APIStageName is the stage the REST API is deployed to
	APIStageName = "prod"

	basicExecutionPolicyArn = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"
	// 14 days
	deadLetterRetentionSeconds = 1209600
)

var auditActions = []string{"dynamodb:PutItem", "dynamodb:GetItem"}

// Stack holds the resources declared for one topology
type Stack struct {
	Topology *topology.Topology

	Bus             *cloudwatch.EventBus
	Rule            *cloudwatch.EventRule
	Function        *lambda.Function
	FunctionRole    *iam.Role
	GatewayRole     *iam.Role
	RestAPI         *apigateway.RestApi
	APIStage        *apigateway.Stage
	AuditTable      *dynamodb.Table
	DeadLetterQueue *sqs.Queue
}

// Run is the Pulumi program: load config, declare the stack, export outputs
func Run(ctx *pulumi.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	s.Export(ctx)
	return nil
}

// New declares every resource of the topology selected by cfg
func New(ctx *pulumi.Context, cfg *Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The bus ARN is only known after creation; the shape is checked with a
	// wildcard account and re-checked once the real ARN resolves.
	busName := cfg.BusName()
	shape, err := cfg.resolve(busName, eventbus.BusArn(cfg.Region, "*", busName))
	if err != nil {
		return nil, err
	}

	s := &Stack{Topology: shape}
	tags := pulumi.StringMap{
		"Project":   pulumi.String("language-bus"),
		"Stage":     pulumi.String(cfg.Stage.String()),
		"Variant":   pulumi.String(cfg.Variant.String()),
		"ManagedBy": pulumi.String("pulumi"),
	}

	log.Printf("Creating event bus %s...", busName)
	s.Bus, err = cloudwatch.NewEventBus(ctx, cfg.resourceName("bus"), &cloudwatch.EventBusArgs{
		Name: pulumi.String(busName),
		Tags: tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	if err := s.provisionFunction(ctx, cfg, tags); err != nil {
		return nil, err
	}
	if err := s.provisionRule(ctx, cfg, tags); err != nil {
		return nil, err
	}
	if err := s.provisionGateway(ctx, cfg, tags); err != nil {
		return nil, err
	}

	return s, nil
}

// Export publishes the stack outputs
func (s *Stack) Export(ctx *pulumi.Context) {
	ctx.Export("BusName", s.Bus.Name)
	ctx.Export("BusArn", s.Bus.Arn)
	ctx.Export("RuleArn", s.Rule.Arn)
	ctx.Export("FunctionName", s.Function.Name)
	ctx.Export("GatewayRoleArn", s.GatewayRole.Arn)
	ctx.Export("ApiUrl", s.APIStage.InvokeUrl)

	if s.AuditTable != nil {
		ctx.Export("EventsTableName", s.AuditTable.Name)
	}
	if s.DeadLetterQueue != nil {
		ctx.Export("DeadLetterQueueUrl", s.DeadLetterQueue.Url)
	}
}

func (s *Stack) provisionFunction(ctx *pulumi.Context, cfg *Config, tags pulumi.StringMap) error {
	decl, ok := s.Topology.Function(topology.FunctionLogicalName)
	if !ok {
		return fmt.Errorf("%w: function %s is not declared", topology.ErrInvalidTopology, topology.FunctionLogicalName)
	}
	functionName := cfg.resourceName("processor")

	logGroup, err := cloudwatch.NewLogGroup(ctx, cfg.resourceName("processor-logs"), &cloudwatch.LogGroupArgs{
		Name:            pulumi.String("/aws/lambda/" + functionName),
		RetentionInDays: pulumi.Int(cfg.LogRetentionDays),
		Tags:            tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create function log group: %w", err)
	}

	trust, err := policy.ServiceTrustPolicy(policy.ServiceLambda).JSON()
	if err != nil {
		return err
	}
	s.FunctionRole, err = iam.NewRole(ctx, cfg.resourceName("processor-role"), &iam.RoleArgs{
		Name:             pulumi.String(cfg.resourceName("processor-role")),
		AssumeRolePolicy: pulumi.String(trust),
		Tags:             tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create function role: %w", err)
	}

	_, err = iam.NewRolePolicyAttachment(ctx, cfg.resourceName("processor-basic-execution"), &iam.RolePolicyAttachmentArgs{
		Role:      s.FunctionRole.Name,
		PolicyArn: pulumi.String(basicExecutionPolicyArn),
	})
	if err != nil {
		return fmt.Errorf("failed to attach basic execution policy: %w", err)
	}

	env := pulumi.StringMap{
		"STAGE":          pulumi.String(cfg.Stage.String()),
		"EVENT_BUS_NAME": s.Bus.Name,
	}

	if cfg.EnableAudit {
		log.Printf("Creating audit table...")
		s.AuditTable, err = dynamodb.NewTable(ctx, cfg.resourceName("events"), &dynamodb.TableArgs{
			Name:        pulumi.String(cfg.resourceName("events")),
			BillingMode: pulumi.String("PAY_PER_REQUEST"),
			HashKey:     pulumi.String("id"),
			Attributes: dynamodb.TableAttributeArray{
				&dynamodb.TableAttributeArgs{
					Name: pulumi.String("id"),
					Type: pulumi.String("S"),
				},
			},
			Ttl: &dynamodb.TableTtlArgs{
				AttributeName: pulumi.String("expires_at"),
				Enabled:       pulumi.Bool(true),
			},
			Tags: tags,
		})
		if err != nil {
			return fmt.Errorf("failed to create audit table: %w", err)
		}

		_, err = iam.NewRolePolicy(ctx, cfg.resourceName("processor-audit-policy"), &iam.RolePolicyArgs{
			Role: s.FunctionRole.Name,
			Policy: s.AuditTable.Arn.ApplyT(func(arn string) (string, error) {
				return policy.AllowPolicy(auditActions, arn).JSON()
			}).(pulumi.StringOutput),
		})
		if err != nil {
			return fmt.Errorf("failed to create audit policy: %w", err)
		}

		env["EVENTS_TABLE_NAME"] = s.AuditTable.Name
	}

	log.Printf("Creating %s function %s...", decl.Runtime, functionName)
	s.Function, err = lambda.NewFunction(ctx, functionName, &lambda.FunctionArgs{
		Name:    pulumi.String(functionName),
		Runtime: pulumi.String(decl.Runtime.Identifier()),
		Role:    s.FunctionRole.Arn,
		Handler: pulumi.String(decl.Handler),
		Code:    functionCode(decl),
		Environment: &lambda.FunctionEnvironmentArgs{
			Variables: env,
		},
		MemorySize: pulumi.Int(128),
		Timeout:    pulumi.Int(10),
		Tags:       tags,
	}, pulumi.DependsOn([]pulumi.Resource{logGroup}))
	if err != nil {
		return fmt.Errorf("failed to create function: %w", err)
	}

	return nil
}

func (s *Stack) provisionRule(ctx *pulumi.Context, cfg *Config, tags pulumi.StringMap) error {
	if len(s.Topology.Rules) == 0 {
		return fmt.Errorf("%w: no rule declared", topology.ErrInvalidTopology)
	}
	decl := s.Topology.Rules[0]

	var err error
	s.Rule, err = cloudwatch.NewEventRule(ctx, cfg.resourceName("processor-rule"), &cloudwatch.EventRuleArgs{
		Name:         pulumi.String(cfg.resourceName("processor-rule")),
		Description:  pulumi.String(fmt.Sprintf("%s: forwards matching events to %s", decl.Name, strings.Join(decl.Targets, ", "))),
		EventBusName: s.Bus.Name,
		EventPattern: pulumi.String(decl.Pattern),
		Tags:         tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create event rule: %w", err)
	}

	targetArgs := &cloudwatch.EventTargetArgs{
		Rule:         s.Rule.Name,
		EventBusName: s.Bus.Name,
		TargetId:     pulumi.String(topology.FunctionLogicalName),
		Arn:          s.Function.Arn,
	}

	if cfg.EnableDeadLetterQueue {
		s.DeadLetterQueue, err = sqs.NewQueue(ctx, cfg.resourceName("processor-dlq"), &sqs.QueueArgs{
			Name:                    pulumi.String(cfg.resourceName("processor-dlq")),
			MessageRetentionSeconds: pulumi.Int(deadLetterRetentionSeconds),
			Tags:                    tags,
		})
		if err != nil {
			return fmt.Errorf("failed to create dead-letter queue: %w", err)
		}

		_, err = sqs.NewQueuePolicy(ctx, cfg.resourceName("processor-dlq-policy"), &sqs.QueuePolicyArgs{
			QueueUrl: s.DeadLetterQueue.Url,
			Policy: pulumi.All(s.DeadLetterQueue.Arn, s.Rule.Arn).ApplyT(func(args []interface{}) (string, error) {
				return policy.QueueDeliveryPolicy(args[0].(string), args[1].(string)).JSON()
			}).(pulumi.StringOutput),
		})
		if err != nil {
			return fmt.Errorf("failed to create dead-letter queue policy: %w", err)
		}

		targetArgs.DeadLetterConfig = &cloudwatch.EventTargetDeadLetterConfigArgs{
			Arn: s.DeadLetterQueue.Arn,
		}
	}

	_, err = cloudwatch.NewEventTarget(ctx, cfg.resourceName("processor-target"), targetArgs)
	if err != nil {
		return fmt.Errorf("failed to create event target: %w", err)
	}

	_, err = lambda.NewPermission(ctx, cfg.resourceName("processor-events-permission"), &lambda.PermissionArgs{
		Action:    pulumi.String("lambda:InvokeFunction"),
		Function:  s.Function.Name,
		Principal: pulumi.String(policy.ServiceEvents),
		SourceArn: s.Rule.Arn,
	})
	if err != nil {
		return fmt.Errorf("failed to grant EventBridge invoke permission: %w", err)
	}

	return nil
}

func (s *Stack) provisionGateway(ctx *pulumi.Context, cfg *Config, tags pulumi.StringMap) error {
	roleDecl, ok := s.Topology.Role(topology.RoleLogicalName)
	if !ok {
		return fmt.Errorf("%w: role %s is not declared", topology.ErrInvalidTopology, topology.RoleLogicalName)
	}

	trust, err := roleDecl.TrustPolicy.JSON()
	if err != nil {
		return err
	}
	s.GatewayRole, err = iam.NewRole(ctx, cfg.resourceName("gateway-role"), &iam.RoleArgs{
		Name:             pulumi.String(cfg.resourceName("gateway-role")),
		AssumeRolePolicy: pulumi.String(trust),
		Tags:             tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway role: %w", err)
	}

	// Everything that names the bus is rendered from the topology resolved
	// against the real bus, so the role scope and the template cannot drift.
	resolved := func(render func(*topology.Topology) (string, error)) pulumi.StringOutput {
		return pulumi.All(s.Bus.Name, s.Bus.Arn).ApplyT(func(args []interface{}) (string, error) {
			topo, err := cfg.resolve(args[0].(string), args[1].(string))
			if err != nil {
				return "", err
			}
			return render(topo)
		}).(pulumi.StringOutput)
	}

	_, err = iam.NewRolePolicy(ctx, cfg.resourceName("gateway-put-events"), &iam.RolePolicyArgs{
		Name: pulumi.String(topology.PutEventsPolicyName),
		Role: s.GatewayRole.Name,
		Policy: resolved(func(topo *topology.Topology) (string, error) {
			role, _ := topo.Role(topology.RoleLogicalName)
			return role.PermissionPolicy.JSON()
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway PutEvents policy: %w", err)
	}

	log.Printf("Creating REST API for the %s variant...", cfg.Variant)
	s.RestAPI, err = apigateway.NewRestApi(ctx, cfg.resourceName("api"), &apigateway.RestApiArgs{
		Name:        pulumi.String(fmt.Sprintf("%s-%s", s.Topology.Gateway.Name, cfg.Stage)),
		Description: pulumi.String(fmt.Sprintf("Publishes %s requests to %s", cfg.Variant, cfg.BusName())),
		Tags:        tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create REST API: %w", err)
	}

	var deployDeps []pulumi.Resource
	for _, resDecl := range s.Topology.Gateway.Resources {
		slug := strings.Trim(resDecl.PathPart, "{}")
		res, err := apigateway.NewResource(ctx, cfg.resourceName("api-"+slug), &apigateway.ResourceArgs{
			RestApi:  s.RestAPI.ID(),
			ParentId: s.RestAPI.RootResourceId,
			PathPart: pulumi.String(resDecl.PathPart),
		})
		if err != nil {
			return fmt.Errorf("failed to create API resource %s: %w", resDecl.PathPart, err)
		}

		for _, m := range resDecl.Methods {
			deps, err := s.provisionMethod(ctx, cfg, res, slug, m, resolved)
			if err != nil {
				return err
			}
			deployDeps = append(deployDeps, deps...)
		}
	}

	shapeHash, err := s.shapeHash()
	if err != nil {
		return err
	}
	deployment, err := apigateway.NewDeployment(ctx, cfg.resourceName("api-deployment"), &apigateway.DeploymentArgs{
		RestApi:     s.RestAPI.ID(),
		Description: pulumi.String(fmt.Sprintf("%s gateway", cfg.Variant)),
		Triggers: pulumi.StringMap{
			"redeployment": pulumi.String(shapeHash),
		},
	}, pulumi.DependsOn(deployDeps))
	if err != nil {
		return fmt.Errorf("failed to create API deployment: %w", err)
	}

	s.APIStage, err = apigateway.NewStage(ctx, cfg.resourceName("api-stage"), &apigateway.StageArgs{
		RestApi:    s.RestAPI.ID(),
		Deployment: deployment.ID(),
		StageName:  pulumi.String(APIStageName),
		Tags:       tags,
	})
	if err != nil {
		return fmt.Errorf("failed to create API stage: %w", err)
	}

	return nil
}

func (s *Stack) provisionMethod(
	ctx *pulumi.Context,
	cfg *Config,
	res *apigateway.Resource,
	slug string,
	m topology.MethodDeclaration,
	resolved func(func(*topology.Topology) (string, error)) pulumi.StringOutput,
) ([]pulumi.Resource, error) {
	name := func(kind string) string {
		return cfg.resourceName(fmt.Sprintf("api-%s-%s-%s", slug, strings.ToLower(m.HTTPMethod), kind))
	}

	methodArgs := &apigateway.MethodArgs{
		RestApi:       s.RestAPI.ID(),
		ResourceId:    res.ID(),
		HttpMethod:    pulumi.String(m.HTTPMethod),
		Authorization: pulumi.String("NONE"),
	}
	if len(m.PathParameters) > 0 {
		params := pulumi.BoolMap{}
		for _, p := range m.PathParameters {
			params["method.request.path."+p] = pulumi.Bool(true)
		}
		methodArgs.RequestParameters = params
	}

	method, err := apigateway.NewMethod(ctx, name("method"), methodArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s method: %w", m.HTTPMethod, err)
	}

	requestParams := pulumi.StringMap{}
	for k, v := range m.Integration.RequestParameters {
		requestParams[k] = pulumi.String(v)
	}

	requestTemplates := pulumi.StringMap{}
	for _, contentType := range sortedKeys(m.Integration.RequestTemplates) {
		requestTemplates[contentType] = resolved(func(topo *topology.Topology) (string, error) {
			integration, ok := topo.Integration()
			if !ok {
				return "", fmt.Errorf("%w: gateway has no integration", topology.ErrInvalidTopology)
			}
			return integration.Integration.RequestTemplates[contentType], nil
		})
	}

	integration, err := apigateway.NewIntegration(ctx, name("integration"), &apigateway.IntegrationArgs{
		RestApi:               s.RestAPI.ID(),
		ResourceId:            res.ID(),
		HttpMethod:            method.HttpMethod,
		Type:                  pulumi.String("AWS"),
		IntegrationHttpMethod: pulumi.String("POST"),
		Uri:                   pulumi.String(fmt.Sprintf("arn:aws:apigateway:%s:%s:path//", cfg.Region, m.Integration.Service)),
		Credentials:           s.GatewayRole.Arn,
		RequestParameters:     requestParams,
		RequestTemplates:      requestTemplates,
		PassthroughBehavior:   pulumi.String("WHEN_NO_MATCH"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s integration: %w", m.HTTPMethod, err)
	}

	methodResponse, err := apigateway.NewMethodResponse(ctx, name("response"), &apigateway.MethodResponseArgs{
		RestApi:    s.RestAPI.ID(),
		ResourceId: res.ID(),
		HttpMethod: method.HttpMethod,
		StatusCode: pulumi.String(m.Integration.StatusCode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s method response: %w", m.HTTPMethod, err)
	}

	responseTemplates := pulumi.StringMap{}
	for k, v := range m.Integration.ResponseTemplates {
		responseTemplates[k] = pulumi.String(v)
	}

	integrationResponse, err := apigateway.NewIntegrationResponse(ctx, name("integration-response"), &apigateway.IntegrationResponseArgs{
		RestApi:           s.RestAPI.ID(),
		ResourceId:        res.ID(),
		HttpMethod:        method.HttpMethod,
		StatusCode:        methodResponse.StatusCode,
		ResponseTemplates: responseTemplates,
	}, pulumi.DependsOn([]pulumi.Resource{integration}))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s integration response: %w", m.HTTPMethod, err)
	}

	return []pulumi.Resource{method, integration, integrationResponse}, nil
}

// shapeHash changes whenever the declared gateway changes, forcing a new
// deployment
func (s *Stack) shapeHash() (string, error) {
	data, err := s.Topology.Marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// resolve builds and validates the topology for a concrete bus
func (c *Config) resolve(busName, busArn string) (*topology.Topology, error) {
	topo, err := topology.New(topology.Options{
		Variant:         c.Variant,
		Runtime:         c.Runtime,
		BusName:         busName,
		BusArn:          busArn,
		FunctionArchive: c.FunctionArchive,
	})
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}

func functionCode(fn topology.FunctionDeclaration) pulumi.Archive {
	if fn.Runtime.Inline() {
		return pulumi.NewAssetArchive(map[string]interface{}{
			fn.Runtime.SourceFile(): pulumi.NewStringAsset(fn.InlineCode),
		})
	}
	return pulumi.NewFileArchive(fn.Archive)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
