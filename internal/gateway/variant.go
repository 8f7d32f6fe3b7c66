// Package gateway describes the API Gateway service integration that turns
// an HTTP request into a single EventBridge PutEvents entry, and emulates it
// locally.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnknownVariant is returned by ParseVariant for unsupported names
var ErrUnknownVariant = errors.New("unknown gateway variant")

// Variant selects the shape of the gateway integration
type Variant string

const (
	// VariantLanguage is POST /{language}; the language becomes the event source suffix
	VariantLanguage Variant = "language"
	// VariantAssembly is ANY /assembly; the JSON body becomes the event detail
	VariantAssembly Variant = "assembly"
)

// LanguageParam is the path parameter of the language variant
const LanguageParam = "language"

// AnyMethod is API Gateway's catch-all HTTP method
const AnyMethod = "ANY"

// Variants lists the supported variants
func Variants() []Variant {
	return []Variant{VariantLanguage, VariantAssembly}
}

// ParseVariant converts a configuration value into a Variant
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", fmt.Errorf("%w: %q (must be language or assembly)", ErrUnknownVariant, s)
	}
	return v, nil
}

// IsValid checks if the variant value is valid
func (v Variant) IsValid() bool {
	switch v {
	case VariantLanguage, VariantAssembly:
		return true
	default:
		return false
	}
}

// String returns the string representation of the variant
func (v Variant) String() string {
	return string(v)
}

// PathPart is the resource path segment under the API root
func (v Variant) PathPart() string {
	if v == VariantAssembly {
		return "assembly"
	}
	return "{" + LanguageParam + "}"
}

// Route is the full resource path
func (v Variant) Route() string {
	return "/" + v.PathPart()
}

// HTTPMethod is the method bound on the resource
func (v Variant) HTTPMethod() string {
	if v == VariantAssembly {
		return AnyMethod
	}
	return http.MethodPost
}

// PathParameters names the path parameters the resource declares
func (v Variant) PathParameters() []string {
	if v == VariantAssembly {
		return nil
	}
	return []string{LanguageParam}
}
