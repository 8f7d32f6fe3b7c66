package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/jrzesz33/language_bus/internal/metrics"
	"github.com/jrzesz33/language_bus/internal/models"
)

// MaxEntriesPerCall is the PutEvents batch limit
const MaxEntriesPerCall = 10

// Error codes reported per entry, as EventBridge reports them
const (
	ErrorCodeMalformedDetail = "MalformedDetail"
	ErrorCodeInvalidArgument = "InvalidArgument"
	ErrorCodeNotFound        = "NotFoundException"
)

var (
	// ErrBusNotFound is returned when an entry names another bus
	ErrBusNotFound = errors.New("event bus not found")
	// ErrDuplicateRule is returned when a rule name is reused
	ErrDuplicateRule = errors.New("rule already exists")
)

// Publisher publishes a PutEvents batch
type Publisher interface {
	PutEvents(ctx context.Context, req *models.PutEventsRequest) (*models.PutEventsResult, error)
}

// Target receives events forwarded by a rule
type Target interface {
	Invoke(ctx context.Context, event events.CloudWatchEvent) error
}

// TargetFunc adapts a function to a Target
type TargetFunc func(ctx context.Context, event events.CloudWatchEvent) error

// Invoke calls f
func (f TargetFunc) Invoke(ctx context.Context, event events.CloudWatchEvent) error {
	return f(ctx, event)
}

// Rule forwards matching events to its targets
type Rule struct {
	Name    string
	Pattern Pattern
	Targets []Target
}

// Bus is an in-memory event bus. Delivery is synchronous: PutEvents returns
// after every matching target has been invoked once.
type Bus struct {
	name    string
	account string
	region  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	rules []*Rule
}

// Option configures a Bus
type Option func(*Bus)

// WithLogger sets the bus logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records bus activity in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithAccount sets the account and region stamped on events
func WithAccount(account, region string) Option {
	return func(b *Bus) {
		b.account = account
		b.region = region
	}
}

// WithClock overrides the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

// NewBus creates an empty bus
func NewBus(name string, opts ...Option) *Bus {
	b := &Bus{
		name:    name,
		account: "000000000000",
		region:  "us-east-1",
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the bus name
func (b *Bus) Name() string {
	return b.name
}

// Arn returns the bus ARN
func (b *Bus) Arn() string {
	return BusArn(b.region, b.account, b.name)
}

// BusArn formats an event bus ARN
func BusArn(region, account, name string) string {
	return fmt.Sprintf("arn:aws:events:%s:%s:event-bus/%s", region, account, name)
}

// AddRule registers a rule on the bus
func (b *Bus) AddRule(name string, pattern Pattern, targets ...Target) error {
	if err := pattern.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.rules {
		if r.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, name)
		}
	}

	b.rules = append(b.rules, &Rule{Name: name, Pattern: pattern, Targets: targets})
	b.logger.Debug("rule added",
		slog.String("bus", b.name),
		slog.String("rule", name),
		slog.Int("targets", len(targets)),
	)
	return nil
}

// PutEvents accepts a batch, routes each valid entry and reports per-entry results
func (b *Bus) PutEvents(ctx context.Context, req *models.PutEventsRequest) (*models.PutEventsResult, error) {
	if req == nil || len(req.Entries) == 0 {
		return nil, fmt.Errorf("at least one entry is required")
	}
	if len(req.Entries) > MaxEntriesPerCall {
		return nil, fmt.Errorf("at most %d entries are allowed, got %d", MaxEntriesPerCall, len(req.Entries))
	}

	result := &models.PutEventsResult{Entries: make([]models.PutEventsResultEntry, 0, len(req.Entries))}
	for _, entry := range req.Entries {
		resEntry := b.putEntry(ctx, entry)
		if resEntry.Failed() {
			result.FailedEntryCount++
			b.metrics.EventPublished(b.name, "failed")
		} else {
			b.metrics.EventPublished(b.name, "accepted")
		}
		result.Entries = append(result.Entries, resEntry)
	}

	return result, nil
}

func (b *Bus) putEntry(ctx context.Context, entry models.EventEntry) models.PutEventsResultEntry {
	if entry.EventBusName != "" && entry.EventBusName != b.name && entry.EventBusName != b.Arn() {
		return models.PutEventsResultEntry{
			ErrorCode:    ErrorCodeNotFound,
			ErrorMessage: fmt.Sprintf("%v: %s", ErrBusNotFound, entry.EventBusName),
		}
	}

	if err := entry.Validate(); err != nil {
		code := ErrorCodeInvalidArgument
		if entry.Source != "" && entry.DetailType != "" {
			code = ErrorCodeMalformedDetail
		}
		return models.PutEventsResultEntry{ErrorCode: code, ErrorMessage: err.Error()}
	}

	event := events.CloudWatchEvent{
		Version:    "0",
		ID:         uuid.NewString(),
		DetailType: entry.DetailType,
		Source:     entry.Source,
		AccountID:  b.account,
		Time:       b.now(),
		Region:     b.region,
		Resources:  entry.Resources,
		Detail:     json.RawMessage(entry.Detail),
	}
	if event.Resources == nil {
		event.Resources = []string{}
	}

	b.logger.DebugContext(ctx, "event accepted",
		slog.String("bus", b.name),
		slog.String("event_id", event.ID),
		slog.String("source", event.Source),
	)

	b.route(ctx, event)

	return models.PutEventsResultEntry{EventID: event.ID}
}

func (b *Bus) route(ctx context.Context, event events.CloudWatchEvent) {
	b.mu.RLock()
	rules := make([]*Rule, len(b.rules))
	copy(rules, b.rules)
	b.mu.RUnlock()

	for _, rule := range rules {
		if !rule.Pattern.Matches(event) {
			continue
		}
		b.metrics.RuleMatched(b.name, rule.Name)

		for _, target := range rule.Targets {
			if err := target.Invoke(ctx, event); err != nil {
				b.metrics.TargetInvoked(rule.Name, "error")
				b.logger.ErrorContext(ctx, "target invocation failed",
					slog.String("rule", rule.Name),
					slog.String("event_id", event.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			b.metrics.TargetInvoked(rule.Name, "success")
		}
	}
}
