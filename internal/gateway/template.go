package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jrzesz33/language_bus/internal/models"
)

// ContentTypeJSON is the only content type with a mapping template
const ContentTypeJSON = "application/json"

// ErrTemplateOutput is returned when a rendered template is not valid JSON.
// API Gateway would forward such a body and EventBridge would reject it.
var ErrTemplateOutput = errors.New("mapping template produced an invalid PutEvents request")

const (
	// envelope is shared by the deployed VTL template and the local transform
	envelope = `{"Entries": [{"Source": "%s", "Detail": "%s", "Resources": %s, "DetailType": "%s", "EventBusName": "%s"}]}`

	languageSet  = `#set($language=$input.params('` + LanguageParam + `'))`
	languageExpr = `$language`
	bodyExpr     = `$util.escapeJavaScript($input.body).replaceAll("\\'","'")`
)

// Request is the part of an inbound HTTP request the template can see
type Request struct {
	Method         string
	PathParameters map[string]string
	Body           string
}

// RequestParameters are the static integration request headers that turn
// the request into an AWSEvents.PutEvents call
func (v Variant) RequestParameters() map[string]string {
	return map[string]string{
		"integration.request.header.X-Amz-Target": "'AWSEvents.PutEvents'",
		"integration.request.header.Content-Type": "'application/x-amz-json-1.1'",
	}
}

// RequestTemplate renders the VTL mapping template for the integration
func (v Variant) RequestTemplate(busName string) string {
	switch v {
	case VariantAssembly:
		return render(models.SourceFor(models.DefaultLanguage), bodyExpr, busName)
	default:
		return languageSet + "\n" + render(models.SourcePrefix+languageExpr, staticDetail(), busName)
	}
}

// ResponseTemplates maps every successful integration response to an empty body
func (v Variant) ResponseTemplates() map[string]string {
	return map[string]string{ContentTypeJSON: ""}
}

// Transform applies the mapping template to req the way API Gateway would
// and decodes the resulting PutEvents request.
func (v Variant) Transform(req Request, busName string) (*models.PutEventsRequest, error) {
	var body string
	switch v {
	case VariantAssembly:
		body = render(models.SourceFor(models.DefaultLanguage), escapeJSONString(req.Body), busName)
	case VariantLanguage:
		// $input.params returns an empty string for a missing parameter
		language := req.PathParameters[LanguageParam]
		body = render(models.SourceFor(language), staticDetail(), busName)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}

	var out models.PutEventsRequest
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateOutput, err)
	}
	return &out, nil
}

func render(source, detail, busName string) string {
	return fmt.Sprintf(envelope, source, detail, resourceList(), models.DetailType, busName)
}

func staticDetail() string {
	return strings.ReplaceAll(models.StaticDetail, `"`, `\"`)
}

func resourceList() string {
	quoted := make([]string, len(models.DefaultResources))
	for i, r := range models.DefaultResources {
		quoted[i] = `"` + r + `"`
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// TemplateBusName extracts the EventBusName a rendered template targets.
// It is used to check that the template and the role point at the same bus.
func TemplateBusName(template string) (string, bool) {
	const key = `"EventBusName": "`
	start := strings.Index(template, key)
	if start < 0 {
		return "", false
	}
	rest := template[start+len(key):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
