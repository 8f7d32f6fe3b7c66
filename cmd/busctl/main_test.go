package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/gateway"
	"github.com/jrzesz33/language_bus/internal/models"
	"github.com/jrzesz33/language_bus/internal/repository"
	"github.com/jrzesz33/language_bus/internal/topology"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []*repository.EventRecord
}

func (r *memoryRecorder) SaveEvent(_ context.Context, record *repository.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memoryRecorder) ListEvents(_ context.Context, source string, limit int) ([]*repository.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*repository.EventRecord
	for _, rec := range r.records {
		if source == "" || rec.Source == source {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRecorder) GetEvent(_ context.Context, id string) (*repository.EventRecord, error) {
	return nil, repository.ErrEventNotFound
}

func (r *memoryRecorder) sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, rec := range r.records {
		out = append(out, rec.Source)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func post(t *testing.T, url, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEmulator_LanguageVariant(t *testing.T) {
	rec := &memoryRecorder{}
	emu, err := newEmulator(gateway.VariantLanguage, "MyLanguageBus", nil, rec, quietLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(emu.handler)
	defer srv.Close()

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		wantStatus  int
		wantSources []string
	}{
		{
			name:        "english reaches the function",
			method:      http.MethodPost,
			path:        "/english",
			contentType: "application/json",
			wantStatus:  http.StatusOK,
			wantSources: []string{"com.amazon.alexa.english"},
		},
		{
			name:        "french is published but not routed",
			method:      http.MethodPost,
			path:        "/french",
			contentType: "application/json",
			wantStatus:  http.StatusOK,
		},
		{
			name:       "unknown route",
			method:     http.MethodPost,
			path:       "/english/extra",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong method",
			method:     http.MethodPut,
			path:       "/english",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.records = nil

			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(`{}`))
			require.NoError(t, err)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				assert.Empty(t, body)
			}
			assert.Equal(t, tt.wantSources, rec.sources())
		})
	}
}

func TestEmulator_AssemblyVariant(t *testing.T) {
	rec := &memoryRecorder{}
	emu, err := newEmulator(gateway.VariantAssembly, "MyLanguageBus", nil, rec, quietLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(emu.handler)
	defer srv.Close()

	resp := post(t, srv.URL+"/assembly", "application/json", `{"word": "hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "com.amazon.alexa.english", rec.records[0].Source)
	assert.JSONEq(t, `{"word": "hello"}`, rec.records[0].Detail)
}

func TestEmulator_Metrics(t *testing.T) {
	emu, err := newEmulator(gateway.VariantLanguage, "MyLanguageBus", nil, nil, quietLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(emu.handler)
	defer srv.Close()

	post(t, srv.URL+"/english", "application/json", `{}`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `language_bus_gateway_requests_total{outcome="published",variant="language"} 1`)
	assert.Contains(t, string(body), `language_bus_rule_matches_total{bus="MyLanguageBus",rule="LambdaProcessorRule"} 1`)
}

type failingPublisher struct{}

func (failingPublisher) PutEvents(context.Context, *models.PutEventsRequest) (*models.PutEventsResult, error) {
	return nil, errors.New("AccessDeniedException")
}

func TestEmulator_ForwardFailureStillAnswers200(t *testing.T) {
	emu, err := newEmulator(gateway.VariantLanguage, "MyLanguageBus", failingPublisher{}, nil, quietLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(emu.handler)
	defer srv.Close()

	resp := post(t, srv.URL+"/english", "application/json", `{}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendEvent(t *testing.T) {
	rec := &memoryRecorder{}
	bus := eventbus.NewBus("MyLanguageBus", eventbus.WithLogger(quietLogger()))
	require.NoError(t, bus.AddRule("all", eventbus.SourcePattern("com.amazon.alexa.english"), eventbus.TargetFunc(
		func(ctx context.Context, event events.CloudWatchEvent) error {
			return rec.SaveEvent(ctx, repository.NewEventRecord(event, event.Time, 0))
		},
	)))

	var out bytes.Buffer
	entry := models.NewGatewayEntry(models.SourceFor(models.DefaultLanguage), models.StaticDetail, "MyLanguageBus")
	require.NoError(t, sendEvent(context.Background(), bus, entry, &out))
	assert.Len(t, strings.TrimSpace(out.String()), 36)
	assert.Len(t, rec.records, 1)

	entry.EventBusName = "other"
	assert.Error(t, sendEvent(context.Background(), bus, entry, &out))

	entry.EventBusName = "MyLanguageBus"
	entry.Detail = "not json"
	assert.Error(t, sendEvent(context.Background(), bus, entry, &out))
}

// stubPublisher returns a fixed result
type stubPublisher struct {
	result *models.PutEventsResult
}

func (p stubPublisher) PutEvents(context.Context, *models.PutEventsRequest) (*models.PutEventsResult, error) {
	return p.result, nil
}

func TestSendEvent_FailedEntries(t *testing.T) {
	entry := models.NewGatewayEntry(models.SourceFor(models.DefaultLanguage), models.StaticDetail, "MyLanguageBus")

	tests := []struct {
		name   string
		result *models.PutEventsResult
		want   string
	}{
		{
			name: "reports the failed entry",
			result: &models.PutEventsResult{
				FailedEntryCount: 1,
				Entries: []models.PutEventsResultEntry{
					{EventID: "ok"},
					{ErrorCode: "InternalFailure", ErrorMessage: "try again"},
				},
			},
			want: "InternalFailure: try again",
		},
		{
			name:   "failure count without entries",
			result: &models.PutEventsResult{FailedEntryCount: 1},
			want:   "1 failed entries reported without details",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := sendEvent(context.Background(), stubPublisher{result: tt.result}, entry, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, out.String())
		})
	}
}

func TestTemplateCmd(t *testing.T) {
	cmd := newTemplateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--variant", "assembly", "--bus", "language-bus-dev"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, gateway.VariantAssembly.RequestTemplate("language-bus-dev")+"\n", out.String())

	bad := newTemplateCmd()
	bad.SetOut(io.Discard)
	bad.SetErr(io.Discard)
	bad.SetArgs([]string{"--variant", "greedy", "--bus", "b"})
	assert.ErrorIs(t, bad.Execute(), gateway.ErrUnknownVariant)
}

func TestTopologyCmd(t *testing.T) {
	cmd := newTopologyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--variant", "language", "--runtime", "python"})

	require.NoError(t, cmd.Execute())

	topo, err := topology.Parse(out.Bytes())
	require.NoError(t, err)
	assert.NoError(t, topo.Validate())
	assert.Equal(t, gateway.VariantLanguage, topo.Gateway.Variant)
	assert.Equal(t, topology.RuntimePython, topo.Functions[0].Runtime)

	// a hand-edited file whose template points at another bus is rejected
	topo.Gateway.Resources[0].Methods[0].Integration.RequestTemplates[gateway.ContentTypeJSON] =
		gateway.VariantLanguage.RequestTemplate("default")
	data, err := topo.Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fromFile := newTopologyCmd()
	fromFile.SetOut(io.Discard)
	fromFile.SetErr(io.Discard)
	fromFile.SetArgs([]string{"--file", path})
	assert.ErrorIs(t, fromFile.Execute(), topology.ErrInvalidTopology)
}

func TestListEvents(t *testing.T) {
	rec := &memoryRecorder{}
	rec.records = []*repository.EventRecord{
		{ID: "1", Source: "com.amazon.alexa.english"},
		{ID: "2", Source: "com.amazon.alexa.french"},
	}

	var out bytes.Buffer
	require.NoError(t, listEvents(context.Background(), rec, "com.amazon.alexa.english", 10, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"id":"1"`)
}
