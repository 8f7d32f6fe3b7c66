package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/metrics"
	"github.com/jrzesz33/language_bus/internal/models"
)

const testBus = "language-bus"

// capture records every entry that reaches the bus and every invocation of
// the english rule target.
type capture struct {
	mu          sync.Mutex
	entries     []models.EventEntry
	invocations []events.CloudWatchEvent
	bus         *eventbus.Bus
}

func newCapture(t *testing.T) *capture {
	t.Helper()
	c := &capture{bus: eventbus.NewBus(testBus)}
	require.NoError(t, c.bus.AddRule("LambdaProcessorRule",
		eventbus.SourcePattern(models.SourceFor(models.DefaultLanguage)),
		eventbus.TargetFunc(func(_ context.Context, event events.CloudWatchEvent) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.invocations = append(c.invocations, event)
			return nil
		}),
	))
	return c
}

func (c *capture) PutEvents(ctx context.Context, req *models.PutEventsRequest) (*models.PutEventsResult, error) {
	c.mu.Lock()
	c.entries = append(c.entries, req.Entries...)
	c.mu.Unlock()
	return c.bus.PutEvents(ctx, req)
}

type failingPublisher struct{}

func (failingPublisher) PutEvents(context.Context, *models.PutEventsRequest) (*models.PutEventsResult, error) {
	return nil, errors.New("AccessDeniedException")
}

func do(h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PostEnglishEndToEnd(t *testing.T) {
	c := newCapture(t)
	m := metrics.New()
	h := NewHandler(VariantLanguage, testBus, c, nil, m)

	rec := do(h, http.MethodPost, "/english", ContentTypeJSON, `{"anything": "goes"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("x-amzn-RequestId"))

	require.Len(t, c.entries, 1)
	assert.Equal(t, "com.amazon.alexa.english", c.entries[0].Source)
	require.Len(t, c.invocations, 1)
	assert.Equal(t, "com.amazon.alexa.english", c.invocations[0].Source)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequests.WithLabelValues("language", OutcomePublished)))
}

func TestHandler_LanguagePaths(t *testing.T) {
	languages := []string{"english", "french", "german", "hindi", "pt-BR", "english2"}

	for _, language := range languages {
		t.Run(language, func(t *testing.T) {
			c := newCapture(t)
			h := NewHandler(VariantLanguage, testBus, c, nil, nil)

			rec := do(h, http.MethodPost, "/"+language, "", "")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			require.Len(t, c.entries, 1, "exactly one event per request")
			assert.Equal(t, "com.amazon.alexa."+language, c.entries[0].Source)

			wantInvocations := 0
			if language == "english" {
				wantInvocations = 1
			}
			assert.Len(t, c.invocations, wantInvocations)
		})
	}
}

func TestHandler_PercentEncodedLanguage(t *testing.T) {
	c := newCapture(t)
	h := NewHandler(VariantLanguage, testBus, c, nil, nil)

	rec := do(h, http.MethodPost, "/espa%C3%B1ol", ContentTypeJSON, "{}")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, c.entries, 1)
	assert.Equal(t, "com.amazon.alexa.español", c.entries[0].Source)
}

func TestHandler_AssemblyAnyMethod(t *testing.T) {
	body := `{"utterance": "what's the weather", "slots": {"city": "Paris"}}`

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			c := newCapture(t)
			h := NewHandler(VariantAssembly, testBus, c, nil, nil)

			rec := do(h, method, "/assembly", ContentTypeJSON+"; charset=utf-8", body)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			require.Len(t, c.entries, 1)
			assert.Equal(t, "com.amazon.alexa.english", c.entries[0].Source)
			assert.Equal(t, body, c.entries[0].Detail)
			require.Len(t, c.invocations, 1)
			assert.JSONEq(t, body, string(c.invocations[0].Detail))
		})
	}
}

func TestHandler_AlwaysOK(t *testing.T) {
	tests := []struct {
		name        string
		variant     Variant
		publisher   eventbus.Publisher
		path        string
		contentType string
		body        string
		outcome     string
	}{
		{"publish error", VariantLanguage, failingPublisher{}, "/english", ContentTypeJSON, "{}", OutcomePublishError},
		{"template error", VariantLanguage, failingPublisher{}, "/en%22glish", ContentTypeJSON, "{}", OutcomeTemplateError},
		{"empty assembly body rejected by bus", VariantAssembly, eventbus.NewBus(testBus), "/assembly", ContentTypeJSON, "", OutcomeRejected},
		{"non-object assembly body rejected by bus", VariantAssembly, eventbus.NewBus(testBus), "/assembly", ContentTypeJSON, "[1,2]", OutcomeRejected},
		{"unmapped content type", VariantAssembly, failingPublisher{}, "/assembly", "text/plain", "hello", OutcomePassthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			h := NewHandler(tt.variant, testBus, tt.publisher, nil, m)

			rec := do(h, http.MethodPost, tt.path, tt.contentType, tt.body)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequests.WithLabelValues(tt.variant.String(), tt.outcome)))
		})
	}
}

func TestHandler_UnknownRoutes(t *testing.T) {
	c := newCapture(t)
	language := NewHandler(VariantLanguage, testBus, c, nil, nil)
	assembly := NewHandler(VariantAssembly, testBus, c, nil, nil)

	tests := []struct {
		name   string
		h      http.Handler
		method string
		path   string
	}{
		{"GET on language resource", language, http.MethodGet, "/english"},
		{"nested language path", language, http.MethodPost, "/english/extra"},
		{"root", language, http.MethodPost, "/"},
		{"assembly on language api", language, http.MethodPost, "/assembly/x"},
		{"other path on assembly api", assembly, http.MethodPost, "/english"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(tt.h, tt.method, tt.path, ContentTypeJSON, "{}")
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.JSONEq(t, missingTokenBody, rec.Body.String())
		})
	}

	assert.Empty(t, c.entries)
}
