// Package topology holds the immutable declarations of the
// gateway -> bus -> rule -> function wiring and checks their invariants
// before anything is provisioned or emulated.
package topology

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/gateway"
	"github.com/jrzesz33/language_bus/internal/models"
	"github.com/jrzesz33/language_bus/internal/policy"
)

// ErrInvalidTopology wraps every invariant violation
var ErrInvalidTopology = errors.New("invalid topology")

// Logical names of the declared resources
const (
	BusLogicalName      = "MyLanguageBus"
	RuleLogicalName     = "LambdaProcessorRule"
	FunctionLogicalName = "MyEventProcessor"
	RoleLogicalName     = "GatewayPutEventsRole"
	GatewayLogicalName  = "LanguageRestAPI"

	// PutEventsPolicyName is the name of the role's inline policy
	PutEventsPolicyName = "putEvents"
	// IntegrationStatusCode is the only mapped integration response
	IntegrationStatusCode = "200"
)

// BusDeclaration is the event bus. Name and Arn are assigned by the platform.
type BusDeclaration struct {
	Name string `yaml:"name"`
	Arn  string `yaml:"arn"`
}

// RuleDeclaration forwards events matching Pattern on Bus to Targets
type RuleDeclaration struct {
	Name    string   `yaml:"name"`
	Bus     string   `yaml:"bus"`
	Pattern string   `yaml:"pattern"`
	Targets []string `yaml:"targets"`
}

// FunctionDeclaration is the rule target
type FunctionDeclaration struct {
	Name       string  `yaml:"name"`
	Runtime    Runtime `yaml:"runtime"`
	Handler    string  `yaml:"handler"`
	InlineCode string  `yaml:"inlineCode,omitempty"`
	Archive    string  `yaml:"archive,omitempty"`
}

// RoleDeclaration is the identity the gateway assumes to call PutEvents
type RoleDeclaration struct {
	Name             string          `yaml:"name"`
	TrustPolicy      policy.Document `yaml:"trustPolicy"`
	PermissionPolicy policy.Document `yaml:"permissionPolicy"`
}

// IntegrationDeclaration binds a method to the EventBridge service
type IntegrationDeclaration struct {
	Service           string            `yaml:"service"`
	Action            string            `yaml:"action"`
	CredentialsRole   string            `yaml:"credentialsRole"`
	RequestParameters map[string]string `yaml:"requestParameters"`
	RequestTemplates  map[string]string `yaml:"requestTemplates"`
	ResponseTemplates map[string]string `yaml:"responseTemplates"`
	StatusCode        string            `yaml:"statusCode"`
}

// MethodDeclaration is one HTTP method on a resource
type MethodDeclaration struct {
	HTTPMethod     string                 `yaml:"httpMethod"`
	PathParameters []string               `yaml:"pathParameters,omitempty"`
	Integration    IntegrationDeclaration `yaml:"integration"`
}

// ResourceDeclaration is a path segment under the API root
type ResourceDeclaration struct {
	PathPart string              `yaml:"pathPart"`
	Methods  []MethodDeclaration `yaml:"methods"`
}

// GatewayDeclaration is the REST API
type GatewayDeclaration struct {
	Name      string                `yaml:"name"`
	Variant   gateway.Variant       `yaml:"variant"`
	Resources []ResourceDeclaration `yaml:"resources"`
}

// Topology is the full wiring descriptor
type Topology struct {
	Bus       BusDeclaration        `yaml:"bus"`
	Rules     []RuleDeclaration     `yaml:"rules"`
	Functions []FunctionDeclaration `yaml:"functions"`
	Roles     []RoleDeclaration     `yaml:"roles"`
	Gateway   GatewayDeclaration    `yaml:"gateway"`
}

// Options selects the variant and function implementation
type Options struct {
	Variant         gateway.Variant
	Runtime         Runtime
	BusName         string
	BusArn          string
	FunctionArchive string
}

// New builds the canonical topology for opts
func New(opts Options) (*Topology, error) {
	if !opts.Variant.IsValid() {
		return nil, fmt.Errorf("%w: %q", gateway.ErrUnknownVariant, opts.Variant)
	}
	if !opts.Runtime.IsValid() {
		return nil, fmt.Errorf("unknown function runtime %q", opts.Runtime)
	}

	pattern, err := eventbus.SourcePattern(models.SourceFor(models.DefaultLanguage)).JSON()
	if err != nil {
		return nil, err
	}

	fn := FunctionDeclaration{
		Name:       FunctionLogicalName,
		Runtime:    opts.Runtime,
		Handler:    opts.Runtime.Handler(),
		InlineCode: opts.Runtime.InlineSource(),
	}
	if !opts.Runtime.Inline() {
		fn.Archive = opts.FunctionArchive
	}

	return &Topology{
		Bus: BusDeclaration{Name: opts.BusName, Arn: opts.BusArn},
		Rules: []RuleDeclaration{{
			Name:    RuleLogicalName,
			Bus:     opts.BusName,
			Pattern: pattern,
			Targets: []string{FunctionLogicalName},
		}},
		Functions: []FunctionDeclaration{fn},
		Roles: []RoleDeclaration{{
			Name:             RoleLogicalName,
			TrustPolicy:      policy.ServiceTrustPolicy(policy.ServiceAPIGateway),
			PermissionPolicy: policy.PutEventsPolicy(opts.BusArn),
		}},
		Gateway: GatewayDeclaration{
			Name:    GatewayLogicalName,
			Variant: opts.Variant,
			Resources: []ResourceDeclaration{{
				PathPart: opts.Variant.PathPart(),
				Methods: []MethodDeclaration{{
					HTTPMethod:     opts.Variant.HTTPMethod(),
					PathParameters: opts.Variant.PathParameters(),
					Integration: IntegrationDeclaration{
						Service:           "events",
						Action:            "PutEvents",
						CredentialsRole:   RoleLogicalName,
						RequestParameters: opts.Variant.RequestParameters(),
						RequestTemplates: map[string]string{
							gateway.ContentTypeJSON: opts.Variant.RequestTemplate(opts.BusName),
						},
						ResponseTemplates: opts.Variant.ResponseTemplates(),
						StatusCode:        IntegrationStatusCode,
					},
				}},
			}},
		},
	}, nil
}

// Role returns the role declared under name
func (t *Topology) Role(name string) (RoleDeclaration, bool) {
	for _, r := range t.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleDeclaration{}, false
}

// Function returns the function declared under name
func (t *Topology) Function(name string) (FunctionDeclaration, bool) {
	for _, f := range t.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FunctionDeclaration{}, false
}

// Integration returns the single integration of the gateway
func (t *Topology) Integration() (MethodDeclaration, bool) {
	for _, res := range t.Gateway.Resources {
		for _, m := range res.Methods {
			return m, true
		}
	}
	return MethodDeclaration{}, false
}

// Validate checks every wiring invariant and reports all violations
func (t *Topology) Validate() error {
	var errs []error

	if t.Bus.Name == "" {
		errs = append(errs, errors.New("bus name is required"))
	}
	if t.Bus.Arn == "" {
		errs = append(errs, errors.New("bus ARN is required"))
	}

	for _, rule := range t.Rules {
		if rule.Bus != t.Bus.Name {
			errs = append(errs, fmt.Errorf("rule %s references unknown bus %q", rule.Name, rule.Bus))
		}
		if _, err := eventbus.ParsePattern([]byte(rule.Pattern)); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.Name, err))
		}
		if len(rule.Targets) == 0 {
			errs = append(errs, fmt.Errorf("rule %s has no targets", rule.Name))
		}
		for _, target := range rule.Targets {
			if _, ok := t.Function(target); !ok {
				errs = append(errs, fmt.Errorf("rule %s targets unknown function %q", rule.Name, target))
			}
		}
	}

	for _, fn := range t.Functions {
		errs = append(errs, fn.validate()...)
	}

	if !t.Gateway.Variant.IsValid() {
		errs = append(errs, fmt.Errorf("gateway %s: %w: %q", t.Gateway.Name, gateway.ErrUnknownVariant, t.Gateway.Variant))
	}

	for _, res := range t.Gateway.Resources {
		for _, m := range res.Methods {
			errs = append(errs, t.validateIntegration(res.PathPart, m)...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTopology, errors.Join(errs...))
	}
	return nil
}

func (f FunctionDeclaration) validate() []error {
	var errs []error
	if !f.Runtime.IsValid() {
		errs = append(errs, fmt.Errorf("function %s has unknown runtime %q", f.Name, f.Runtime))
	}
	if f.Handler == "" {
		errs = append(errs, fmt.Errorf("function %s has no handler", f.Name))
	}
	if f.Runtime.Inline() && f.InlineCode == "" {
		errs = append(errs, fmt.Errorf("function %s has no inline code", f.Name))
	}
	if f.Runtime == RuntimeGo && f.Archive == "" {
		errs = append(errs, fmt.Errorf("function %s has no code archive", f.Name))
	}
	return errs
}

func (t *Topology) validateIntegration(path string, m MethodDeclaration) []error {
	var errs []error
	where := fmt.Sprintf("%s /%s", m.HTTPMethod, path)

	role, ok := t.Role(m.Integration.CredentialsRole)
	if !ok {
		return append(errs, fmt.Errorf("%s uses unknown credentials role %q", where, m.Integration.CredentialsRole))
	}
	if !role.TrustPolicy.Trusts(policy.ServiceAPIGateway) {
		errs = append(errs, fmt.Errorf("role %s cannot be assumed by API Gateway", role.Name))
	}
	if !role.PermissionPolicy.IsAllowed(policy.ActionPutEvents, t.Bus.Arn) {
		errs = append(errs, fmt.Errorf("role %s is not allowed %s on %s", role.Name, policy.ActionPutEvents, t.Bus.Arn))
	}
	errs = append(errs, t.validateLeastPrivilege(role)...)

	if len(m.Integration.RequestTemplates) == 0 {
		errs = append(errs, fmt.Errorf("%s has no request template", where))
	}
	for contentType, tmpl := range m.Integration.RequestTemplates {
		bus, ok := gateway.TemplateBusName(tmpl)
		if !ok {
			errs = append(errs, fmt.Errorf("%s template for %s names no event bus", where, contentType))
			continue
		}
		if bus != t.Bus.Name {
			errs = append(errs, fmt.Errorf("%s template targets bus %q but role %s is scoped to %q", where, bus, role.Name, t.Bus.Name))
		}
	}

	return errs
}

// validateLeastPrivilege rejects roles that grant more than PutEvents on
// the declared bus
func (t *Topology) validateLeastPrivilege(role RoleDeclaration) []error {
	var errs []error
	for _, action := range role.PermissionPolicy.Actions() {
		if !strings.EqualFold(action, policy.ActionPutEvents) {
			errs = append(errs, fmt.Errorf("role %s grants %s beyond %s", role.Name, action, policy.ActionPutEvents))
		}
	}
	if t.Bus.Arn != "" && role.PermissionPolicy.IsAllowed(policy.ActionPutEvents, t.Bus.Arn+"-other") {
		errs = append(errs, fmt.Errorf("role %s is not scoped to bus %s", role.Name, t.Bus.Arn))
	}
	return errs
}

// Marshal renders the topology as YAML
func (t *Topology) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal topology: %w", err)
	}
	return data, nil
}

// Parse decodes a YAML topology
func Parse(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}
	return &t, nil
}

// Load reads a YAML topology from path
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	return Parse(data)
}
