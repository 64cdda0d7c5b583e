package server

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"guildboard/internal/engine"
	"guildboard/internal/engine/auth"
	"guildboard/internal/logging"
	"guildboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
	// Registerer receives the HTTP collectors and Gatherer backs /metrics.
	// Either may be nil.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"insufficient role"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the achievement API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := logging.OrNop(cfg.Logger)
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newRequestMiddleware(newHTTPMetrics(cfg.Registerer), log))
	router.Use(newAuthMiddleware(cfg.Auth, cfg.Engine.Repo, log))
	hcfg := huma.DefaultConfig("Guildboard API", "0.1.0")
	hcfg.Info.Description = "Members authenticate with Authorization: Bearer <token>. The scheduler uses X-Api-Key."
	hcfg.OpenAPIPath = path.Join(basePath, "openapi")
	hcfg.DocsPath = "/docs"
	hcfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		schemeBearer: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		schemeAPIKey: {Type: "apiKey", In: "header", Name: apiKeyHeader},
	}
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, auth: cfg.Auth, log: log}
	registerMetrics(router, cfg.Gatherer)
	registerHealth(group)
	h.registerSync(group)
	h.registerSyncAll(group)
	h.registerProgress(group)
	h.registerCatalog(group)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the envelope. Unexpected errors are
// logged and reported without internal detail.
func handleError(log *zap.Logger, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		log.Info("request forbidden", zap.String("group_id", fe.GroupID), zap.String("role", fe.Role))
		return newAPIError(http.StatusForbidden, "forbidden", "insufficient role", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	log.Error("request failed", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusUnprocessableEntity: "validation_failed",
	http.StatusInternalServerError: "internal_error",
}

func defaultCodeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func registerMetrics(r chi.Router, g prometheus.Gatherer) {
	if g == nil {
		return
	}
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
