package gateway

import (
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/metrics"
)

// MaxBodyBytes is the API Gateway payload limit
const MaxBodyBytes = 10 << 20

// Outcomes recorded for every request
const (
	OutcomePublished     = "published"
	OutcomeRejected      = "rejected"
	OutcomePublishError  = "publish_error"
	OutcomeTemplateError = "template_error"
	OutcomePassthrough   = "passthrough"
)

const missingTokenBody = `{"message":"Missing Authentication Token"}`

// Handler emulates the deployed REST API: one resource, one method, a
// service integration to PutEvents and a response mapping that answers 200
// with an empty body whatever the integration returned.
type Handler struct {
	variant   Variant
	busName   string
	publisher eventbus.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	router    *mux.Router
}

// NewHandler creates a gateway handler for variant publishing to busName
func NewHandler(variant Variant, busName string, publisher eventbus.Publisher, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		variant:   variant,
		busName:   busName,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		router:    mux.NewRouter(),
	}

	route := h.router.HandleFunc(variant.Route(), h.integrate)
	if method := variant.HTTPMethod(); method != AnyMethod {
		route.Methods(method)
	}

	// REST APIs answer unknown routes and methods with 403
	h.router.NotFoundHandler = http.HandlerFunc(missingToken)
	h.router.MethodNotAllowedHandler = http.HandlerFunc(missingToken)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) integrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := uuid.NewString()
	logger := h.logger.With(
		slog.String("request_id", requestID),
		slog.String("variant", h.variant.String()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	outcome := h.forward(r, logger)
	h.metrics.GatewayRequest(h.variant.String(), outcome)
	logger.InfoContext(ctx, "gateway request completed", slog.String("outcome", outcome))

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.Header().Set("x-amzn-RequestId", requestID)
	w.WriteHeader(http.StatusOK)
}

// forward runs the integration and reports what happened. Failures are
// logged only: the response mapping has no error case.
func (h *Handler) forward(r *http.Request, logger *slog.Logger) string {
	ctx := r.Context()

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != ContentTypeJSON {
			logger.WarnContext(ctx, "no mapping template for content type, request not transformed",
				slog.String("content_type", ct),
			)
			return OutcomePassthrough
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		logger.ErrorContext(ctx, "failed to read request body", slog.String("error", err.Error()))
		return OutcomeTemplateError
	}

	req, err := h.variant.Transform(Request{
		Method:         r.Method,
		PathParameters: mux.Vars(r),
		Body:           string(body),
	}, h.busName)
	if err != nil {
		logger.ErrorContext(ctx, "failed to apply mapping template", slog.String("error", err.Error()))
		return OutcomeTemplateError
	}

	result, err := h.publisher.PutEvents(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "failed to publish event", slog.String("error", err.Error()))
		return OutcomePublishError
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.Failed() {
				logger.WarnContext(ctx, "event rejected by bus",
					slog.String("error_code", entry.ErrorCode),
					slog.String("error_message", entry.ErrorMessage),
				)
			}
		}
		return OutcomeRejected
	}

	logger.DebugContext(ctx, "event published", slog.Any("event_ids", result.EventIDs()))
	return OutcomePublished
}

func missingToken(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(http.StatusForbidden)
	_, _ = io.WriteString(w, missingTokenBody)
}
