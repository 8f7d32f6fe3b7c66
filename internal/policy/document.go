// Package policy models IAM policy documents and evaluates them the way IAM
// does for a single identity policy: explicit deny wins, otherwise an
// explicit allow is required.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Version is the only IAM policy language version in use
	Version = "2012-10-17"

	EffectAllow = "Allow"
	EffectDeny  = "Deny"

	// ActionPutEvents is the EventBridge publish action
	ActionPutEvents = "events:PutEvents"

	// ServiceAPIGateway is the API Gateway service principal
	ServiceAPIGateway = "apigateway.amazonaws.com"
	// ServiceLambda is the Lambda service principal
	ServiceLambda = "lambda.amazonaws.com"
	// ServiceEvents is the EventBridge service principal
	ServiceEvents = "events.amazonaws.com"
)

// StringList is an IAM value that may be written as a string or a list
type StringList []string

// UnmarshalJSON accepts both "a" and ["a", "b"]
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected string or string list: %w", err)
	}
	*s = list
	return nil
}

// Principal identifies who a trust policy statement applies to
type Principal struct {
	Service StringList `json:"Service,omitempty" yaml:"service,omitempty"`
}

// Statement is a single IAM policy statement
type Statement struct {
	Sid       string     `json:"Sid,omitempty" yaml:"sid,omitempty"`
	Effect    string     `json:"Effect" yaml:"effect"`
	Principal *Principal `json:"Principal,omitempty" yaml:"principal,omitempty"`
	Action    StringList `json:"Action" yaml:"action"`
	Resource  StringList `json:"Resource,omitempty" yaml:"resource,omitempty"`

	// Condition is carried through to IAM; IsAllowed does not evaluate it
	Condition map[string]map[string]StringList `json:"Condition,omitempty" yaml:"condition,omitempty"`
}

// Document is an IAM policy document
type Document struct {
	Version   string      `json:"Version" yaml:"version"`
	Statement []Statement `json:"Statement" yaml:"statement"`
}

// Parse decodes a JSON policy document
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse policy document: %w", err)
	}
	return doc, nil
}

// JSON renders the document as the string IAM expects
func (d Document) JSON() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy document: %w", err)
	}
	return string(data), nil
}

// PutEventsPolicy grants events:PutEvents on a single bus
func PutEventsPolicy(busArn string) Document {
	return Document{
		Version: Version,
		Statement: []Statement{{
			Effect:   EffectAllow,
			Action:   StringList{ActionPutEvents},
			Resource: StringList{busArn},
		}},
	}
}

// AllowPolicy grants actions on resources
func AllowPolicy(actions []string, resources ...string) Document {
	return Document{
		Version: Version,
		Statement: []Statement{{
			Effect:   EffectAllow,
			Action:   StringList(actions),
			Resource: StringList(resources),
		}},
	}
}

// QueueDeliveryPolicy lets EventBridge deliver failed events from sourceArn
// to the queue
func QueueDeliveryPolicy(queueArn, sourceArn string) Document {
	return Document{
		Version: Version,
		Statement: []Statement{{
			Effect:    EffectAllow,
			Principal: &Principal{Service: StringList{ServiceEvents}},
			Action:    StringList{"sqs:SendMessage"},
			Resource:  StringList{queueArn},
			Condition: map[string]map[string]StringList{
				"ArnEquals": {"aws:SourceArn": {sourceArn}},
			},
		}},
	}
}

// ServiceTrustPolicy lets a service principal assume the role
func ServiceTrustPolicy(service string) Document {
	return Document{
		Version: Version,
		Statement: []Statement{{
			Effect:    EffectAllow,
			Principal: &Principal{Service: StringList{service}},
			Action:    StringList{"sts:AssumeRole"},
		}},
	}
}

// IsAllowed reports whether the document permits action on resource
func (d Document) IsAllowed(action, resource string) bool {
	allowed := false
	for _, st := range d.Statement {
		if !st.matchesAction(action) || !st.matchesResource(resource) {
			continue
		}
		switch st.Effect {
		case EffectDeny:
			return false
		case EffectAllow:
			allowed = true
		}
	}
	return allowed
}

// Trusts reports whether the document lets service assume the role
func (d Document) Trusts(service string) bool {
	for _, st := range d.Statement {
		if st.Effect != EffectAllow || st.Principal == nil || !st.matchesAction("sts:AssumeRole") {
			continue
		}
		for _, s := range st.Principal.Service {
			if s == service || s+".amazonaws.com" == service {
				return true
			}
		}
	}
	return false
}

// Actions returns every action named by an Allow statement
func (d Document) Actions() []string {
	var actions []string
	for _, st := range d.Statement {
		if st.Effect == EffectAllow {
			actions = append(actions, st.Action...)
		}
	}
	return actions
}

func (s Statement) matchesAction(action string) bool {
	for _, pattern := range s.Action {
		// action names are case-insensitive
		if Match(strings.ToLower(pattern), strings.ToLower(action)) {
			return true
		}
	}
	return false
}

func (s Statement) matchesResource(resource string) bool {
	if len(s.Resource) == 0 {
		// trust policies carry no resource
		return s.Principal != nil
	}
	for _, pattern := range s.Resource {
		if Match(pattern, resource) {
			return true
		}
	}
	return false
}

// Match implements IAM wildcard matching: * matches any run of characters
// (including '/' and ':'), ? matches exactly one.
func Match(pattern, value string) bool {
	p, v := 0, 0
	star, mark := -1, 0

	for v < len(value) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == value[v]):
			p++
			v++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = v
			p++
		case star != -1:
			p = star + 1
			mark++
			v = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
