package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// SourcePrefix is prepended to the language to build an event source
	SourcePrefix = "com.amazon.alexa."

	// DefaultLanguage is the language the processing rule listens for
	DefaultLanguage = "english"

	// DetailType is the detail-type stamped on every gateway event
	DetailType = "myDetailType"

	// StaticDetail is the placeholder detail sent by the language gateway
	StaticDetail = `{ "key1": "value1", "key2": "value2" }`
)

// DefaultResources are the resource ARNs attached to every gateway event
var DefaultResources = []string{"resource1", "resource2"}

// SourceFor returns the event source for a language, e.g. com.amazon.alexa.english
func SourceFor(language string) string {
	return SourcePrefix + language
}

// LanguageOf extracts the language from an event source. The second return
// value is false when the source does not carry the alexa prefix.
func LanguageOf(source string) (string, bool) {
	if !strings.HasPrefix(source, SourcePrefix) {
		return "", false
	}
	return strings.TrimPrefix(source, SourcePrefix), true
}

// EventEntry is one entry of an EventBridge PutEvents batch.
// Field names match the AWSEvents.PutEvents wire format.
type EventEntry struct {
	Source       string   `json:"Source" yaml:"source"`
	Detail       string   `json:"Detail" yaml:"detail"`
	Resources    []string `json:"Resources,omitempty" yaml:"resources,omitempty"`
	DetailType   string   `json:"DetailType" yaml:"detailType"`
	EventBusName string   `json:"EventBusName,omitempty" yaml:"eventBusName,omitempty"`
}

// Validate performs the checks EventBridge applies to a single entry
func (e EventEntry) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("entry source is required")
	}
	if e.DetailType == "" {
		return fmt.Errorf("entry detail type is required")
	}

	var detail map[string]any
	if err := json.Unmarshal([]byte(e.Detail), &detail); err != nil || detail == nil {
		return fmt.Errorf("entry detail must be a JSON object")
	}

	return nil
}

// NewGatewayEntry builds the entry the gateway publishes for a request
func NewGatewayEntry(source, detail, busName string) EventEntry {
	resources := make([]string, len(DefaultResources))
	copy(resources, DefaultResources)

	return EventEntry{
		Source:       source,
		Detail:       detail,
		Resources:    resources,
		DetailType:   DetailType,
		EventBusName: busName,
	}
}

// PutEventsRequest is the body sent to AWSEvents.PutEvents
type PutEventsRequest struct {
	Entries []EventEntry `json:"Entries"`
}

// PutEventsResultEntry reports the outcome of one entry
type PutEventsResultEntry struct {
	EventID      string `json:"EventId,omitempty"`
	ErrorCode    string `json:"ErrorCode,omitempty"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// Failed reports whether the entry was rejected
func (r PutEventsResultEntry) Failed() bool {
	return r.ErrorCode != ""
}

// PutEventsResult is the response of a PutEvents call
type PutEventsResult struct {
	FailedEntryCount int                    `json:"FailedEntryCount"`
	Entries          []PutEventsResultEntry `json:"Entries"`
}

// EventIDs returns the ids of all accepted entries
func (r *PutEventsResult) EventIDs() []string {
	ids := make([]string, 0, len(r.Entries))
	for _, entry := range r.Entries {
		if !entry.Failed() {
			ids = append(ids, entry.EventID)
		}
	}
	return ids
}
