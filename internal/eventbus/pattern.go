// Package eventbus implements EventBridge-style event routing: content
// patterns, an in-memory bus with rules and targets, and a publisher backed
// by the EventBridge API.
package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ErrInvalidPattern is returned for patterns EventBridge would reject
var ErrInvalidPattern = errors.New("invalid event pattern")

// Pattern is an EventBridge event pattern. Keys name event fields; values
// are either nested patterns or lists of accepted values and operators.
type Pattern map[string]any

// SourcePattern matches events whose source is one of sources
func SourcePattern(sources ...string) Pattern {
	values := make([]any, len(sources))
	for i, s := range sources {
		values[i] = s
	}
	return Pattern{"source": values}
}

// ParsePattern decodes and validates a JSON event pattern
func ParsePattern(data []byte) (Pattern, error) {
	var p Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the pattern structure
func (p Pattern) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: pattern is empty", ErrInvalidPattern)
	}
	return validateObject(p, "")
}

func validateObject(obj map[string]any, path string) error {
	for key, value := range obj {
		field := strings.TrimPrefix(path+"."+key, ".")
		switch v := value.(type) {
		case map[string]any:
			if err := validateObject(v, field); err != nil {
				return err
			}
		case Pattern:
			if err := validateObject(v, field); err != nil {
				return err
			}
		case []any:
			if len(v) == 0 {
				return fmt.Errorf("%w: %s has an empty match list", ErrInvalidPattern, field)
			}
			for _, rule := range v {
				if err := validateRule(rule, field); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: %s must be an object or a list", ErrInvalidPattern, field)
		}
	}
	return nil
}

func validateRule(rule any, field string) error {
	if _, nested := rule.([]any); nested {
		return fmt.Errorf("%w: %s cannot nest lists", ErrInvalidPattern, field)
	}
	op, ok := rule.(map[string]any)
	if !ok {
		return nil
	}
	if len(op) != 1 {
		return fmt.Errorf("%w: %s operator must have exactly one key", ErrInvalidPattern, field)
	}
	for name, arg := range op {
		switch name {
		case "prefix", "suffix", "equals-ignore-case":
			if _, ok := arg.(string); !ok {
				return fmt.Errorf("%w: %s %s expects a string", ErrInvalidPattern, field, name)
			}
		case "exists":
			if _, ok := arg.(bool); !ok {
				return fmt.Errorf("%w: %s exists expects a boolean", ErrInvalidPattern, field)
			}
		case "anything-but":
			if err := validateAnythingBut(arg, field); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s uses unsupported operator %q", ErrInvalidPattern, field, name)
		}
	}
	return nil
}

// validateAnythingBut accepts a scalar, a list of scalars or a prefix object
func validateAnythingBut(arg any, field string) error {
	switch v := arg.(type) {
	case string, float64:
		return nil
	case []any:
		if len(v) == 0 {
			return fmt.Errorf("%w: %s anything-but list is empty", ErrInvalidPattern, field)
		}
		for _, excluded := range v {
			switch excluded.(type) {
			case string, float64:
			default:
				return fmt.Errorf("%w: %s anything-but list accepts only strings and numbers", ErrInvalidPattern, field)
			}
		}
		return nil
	case map[string]any:
		if _, ok := v["prefix"].(string); len(v) != 1 || !ok {
			return fmt.Errorf("%w: %s anything-but object must be a single prefix string", ErrInvalidPattern, field)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s anything-but expects a string, a number, a list or a prefix", ErrInvalidPattern, field)
	}
}

// JSON renders the pattern with sorted keys
func (p Pattern) JSON() (string, error) {
	data, err := json.Marshal(map[string]any(p))
	if err != nil {
		return "", fmt.Errorf("failed to marshal event pattern: %w", err)
	}
	return string(data), nil
}

// Sources returns the exact source values the pattern accepts, if any
func (p Pattern) Sources() []string {
	values, _ := p["source"].([]any)
	var sources []string
	for _, v := range values {
		if s, ok := v.(string); ok {
			sources = append(sources, s)
		}
	}
	sort.Strings(sources)
	return sources
}

// Matches reports whether event satisfies every field of the pattern
func (p Pattern) Matches(event events.CloudWatchEvent) bool {
	doc, err := eventDocument(event)
	if err != nil {
		return false
	}
	return matchObject(p, doc)
}

// eventDocument converts the event to its JSON shape so pattern keys line
// up with the envelope field names (detail-type, resources, ...).
func eventDocument(event events.CloudWatchEvent) (map[string]any, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func matchObject(pattern map[string]any, value any) bool {
	obj, ok := value.(map[string]any)
	if !ok {
		return false
	}

	for key, expected := range pattern {
		actual, present := obj[key]
		switch exp := expected.(type) {
		case map[string]any:
			if !present || !matchObject(exp, actual) {
				return false
			}
		case Pattern:
			if !present || !matchObject(exp, actual) {
				return false
			}
		case []any:
			if !matchField(exp, actual, present) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchField(rules []any, actual any, present bool) bool {
	if list, ok := actual.([]any); ok {
		for _, rule := range rules {
			if isExists(rule) {
				if matchRule(rule, list, present) {
					return true
				}
				continue
			}
			for _, elem := range list {
				if matchRule(rule, elem, true) {
					return true
				}
			}
		}
		return false
	}

	for _, rule := range rules {
		if matchRule(rule, actual, present) {
			return true
		}
	}
	return false
}

func isExists(rule any) bool {
	op, ok := rule.(map[string]any)
	if !ok {
		return false
	}
	_, ok = op["exists"]
	return ok
}

func matchRule(rule, actual any, present bool) bool {
	op, ok := rule.(map[string]any)
	if !ok {
		return present && scalarEqual(rule, actual)
	}

	for name, arg := range op {
		switch name {
		case "exists":
			want, _ := arg.(bool)
			return want == present
		case "prefix":
			s, ok := actual.(string)
			return present && ok && strings.HasPrefix(s, arg.(string))
		case "suffix":
			s, ok := actual.(string)
			return present && ok && strings.HasSuffix(s, arg.(string))
		case "equals-ignore-case":
			s, ok := actual.(string)
			return present && ok && strings.EqualFold(s, arg.(string))
		case "anything-but":
			return present && !matchAnythingBut(arg, actual)
		}
	}
	return false
}

// matchAnythingBut reports whether actual is one of the excluded values
func matchAnythingBut(arg, actual any) bool {
	switch v := arg.(type) {
	case []any:
		for _, excluded := range v {
			if scalarEqual(excluded, actual) {
				return true
			}
		}
		return false
	case map[string]any:
		if prefix, ok := v["prefix"].(string); ok {
			s, isString := actual.(string)
			return isString && strings.HasPrefix(s, prefix)
		}
		return false
	default:
		return scalarEqual(v, actual)
	}
}

// scalarEqual compares JSON scalars; objects and lists never match
func scalarEqual(a, b any) bool {
	switch a.(type) {
	case string, float64, bool, nil:
	default:
		return false
	}
	switch b.(type) {
	case string, float64, bool, nil:
	default:
		return false
	}
	return a == b
}
