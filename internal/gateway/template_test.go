package gateway

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrzesz33/language_bus/internal/models"
)

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{"language", VariantLanguage, false},
		{"ASSEMBLY", VariantAssembly, false},
		{" assembly ", VariantAssembly, false},
		{"", "", true},
		{"nodejs", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariant(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownVariant))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVariant_Resource(t *testing.T) {
	assert.Equal(t, "{language}", VariantLanguage.PathPart())
	assert.Equal(t, "/{language}", VariantLanguage.Route())
	assert.Equal(t, http.MethodPost, VariantLanguage.HTTPMethod())
	assert.Equal(t, []string{"language"}, VariantLanguage.PathParameters())

	assert.Equal(t, "assembly", VariantAssembly.PathPart())
	assert.Equal(t, "/assembly", VariantAssembly.Route())
	assert.Equal(t, AnyMethod, VariantAssembly.HTTPMethod())
	assert.Empty(t, VariantAssembly.PathParameters())
}

func TestRequestTemplate_Language(t *testing.T) {
	tmpl := VariantLanguage.RequestTemplate("my-bus")

	want := `#set($language=$input.params('language'))` + "\n" +
		`{"Entries": [{"Source": "com.amazon.alexa.$language", "Detail": "{ \"key1\": \"value1\", \"key2\": \"value2\" }", "Resources": ["resource1", "resource2"], "DetailType": "myDetailType", "EventBusName": "my-bus"}]}`
	assert.Equal(t, want, tmpl)

	bus, ok := TemplateBusName(tmpl)
	assert.True(t, ok)
	assert.Equal(t, "my-bus", bus)
}

func TestRequestTemplate_Assembly(t *testing.T) {
	tmpl := VariantAssembly.RequestTemplate("my-bus")

	assert.False(t, strings.HasPrefix(tmpl, "#set"))
	assert.Contains(t, tmpl, `"Source": "com.amazon.alexa.english"`)
	assert.Contains(t, tmpl, `"Detail": "$util.escapeJavaScript($input.body).replaceAll("\\'","'")"`)
	assert.Contains(t, tmpl, `"EventBusName": "my-bus"`)
}

func TestRequestParameters(t *testing.T) {
	params := VariantLanguage.RequestParameters()
	assert.Equal(t, "'AWSEvents.PutEvents'", params["integration.request.header.X-Amz-Target"])
	assert.Equal(t, "'application/x-amz-json-1.1'", params["integration.request.header.Content-Type"])
	assert.Equal(t, map[string]string{"application/json": ""}, VariantAssembly.ResponseTemplates())
}

func TestTransform_Language(t *testing.T) {
	for _, language := range []string{"english", "french", "german", "pt-BR", "zh_Hans", "1"} {
		t.Run(language, func(t *testing.T) {
			req, err := VariantLanguage.Transform(Request{
				Method:         http.MethodPost,
				PathParameters: map[string]string{"language": language},
				Body:           `{"ignored": true}`,
			}, "my-bus")
			require.NoError(t, err)

			require.Len(t, req.Entries, 1)
			entry := req.Entries[0]
			assert.Equal(t, "com.amazon.alexa."+language, entry.Source)
			assert.JSONEq(t, models.StaticDetail, entry.Detail)
			assert.Equal(t, models.StaticDetail, entry.Detail)
			assert.Equal(t, []string{"resource1", "resource2"}, entry.Resources)
			assert.Equal(t, "myDetailType", entry.DetailType)
			assert.Equal(t, "my-bus", entry.EventBusName)
		})
	}
}

func TestTransform_LanguageBreaksTemplate(t *testing.T) {
	_, err := VariantLanguage.Transform(Request{
		PathParameters: map[string]string{"language": `en"glish`},
	}, "my-bus")
	assert.ErrorIs(t, err, ErrTemplateOutput)
}

func TestTransform_Assembly(t *testing.T) {
	bodies := []string{
		`{"utterance": "turn on the lights"}`,
		`{"quote": "it's here", "url": "https://example.com/a"}`,
		"{\n  \"pretty\": [1, 2]\n}",
		`{}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			req, err := VariantAssembly.Transform(Request{Method: http.MethodPut, Body: body}, "my-bus")
			require.NoError(t, err)

			require.Len(t, req.Entries, 1)
			assert.Equal(t, "com.amazon.alexa.english", req.Entries[0].Source)
			assert.Equal(t, body, req.Entries[0].Detail)
			assert.Equal(t, "my-bus", req.Entries[0].EventBusName)
		})
	}
}

func TestTransform_UnknownVariant(t *testing.T) {
	_, err := Variant("bogus").Transform(Request{}, "bus")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestTemplateBusName_Missing(t *testing.T) {
	_, ok := TemplateBusName(`{"Entries": []}`)
	assert.False(t, ok)
}
