package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ferry/internal/domain"
	"ferry/internal/engine"
	"ferry/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"intent not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Ferry API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Ferry API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerLocations(group, cfg.Engine)
	registerIntents(group, cfg.Engine)
	registerReviews(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se *engine.ScanError
	if errors.As(err, &se) {
		switch se.Kind {
		case engine.ScanIntentNotFound, engine.ScanSourceLocNotFound, engine.ScanDestLocNotFound:
			return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": string(se.Kind)})
		case engine.ScanSourcePathNotExists, engine.ScanSourcePathNotDir:
			return newAPIError(http.StatusUnprocessableEntity, string(se.Kind), err.Error(), nil)
		default:
			return newAPIError(http.StatusInternalServerError, string(se.Kind), err.Error(), nil)
		}
	}
	var sce *engine.SchedulerError
	if errors.As(err, &sce) {
		if sce.Kind == engine.SchedIntentNotFound {
			return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
		}
		return newAPIError(http.StatusInternalServerError, string(sce.Kind), err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, engine.ErrJobNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrJobNotPending) || errors.Is(err, engine.ErrReviewAlreadyResolved) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrResolutionNotOffered) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not found"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Ferry API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Workspace status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		locations, err := e.Repo.ListLocations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		intents, err := e.Repo.ListIntents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountAllJobsByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		reviews, err := e.Repo.ListOpenReviews(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		jobs := make(map[string]int64, len(counts))
		for status, n := range counts {
			jobs[string(status)] = n
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			Locations: int64(len(locations)),
			Intents:   int64(len(intents)),
			Jobs:      jobs,
			OpenItems: int64(len(reviews)),
		}}, nil
	})
}

func registerLocations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-location",
		Method:        http.MethodPost,
		Path:          "/locations",
		Summary:       "Declare location",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateLocationRequest `json:"body"`
	}) (*struct {
		Body LocationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.CreateLocationOptions{
			Name:      input.Body.Name,
			Kind:      domain.LocationKind(input.Body.Kind),
			Path:      input.Body.Path,
			Available: input.Body.Available,
		}
		if input.Body.Label != nil {
			opts.Label = *input.Body.Label
		}
		l, err := e.CreateLocation(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LocationResponse `json:"body"`
		}{Body: LocationResponse{Location: l}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-locations",
		Method:      http.MethodGet,
		Path:        "/locations",
		Summary:     "List locations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body LocationListResponse `json:"body"`
	}, error) {
		items, err := e.ListLocations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LocationListResponse `json:"body"`
		}{Body: LocationListResponse{Locations: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-location-available",
		Method:      http.MethodPatch,
		Path:        "/locations/{location_id}/available",
		Summary:     "Mark location availability",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LocationID string                      `path:"location_id"`
		Body       SetLocationAvailableRequest `json:"body"`
	}) (*struct {
		Body LocationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := e.SetLocationAvailable(ctx, input.LocationID, input.Body.Available); err != nil {
			return nil, handleError(err)
		}
		l, err := e.Repo.GetLocation(ctx, input.LocationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LocationResponse `json:"body"`
		}{Body: LocationResponse{Location: l}}, nil
	})
}

func registerIntents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-intent",
		Method:        http.MethodPost,
		Path:          "/intents",
		Summary:       "Declare transfer intent",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateIntentRequest `json:"body"`
	}) (*struct {
		Body IntentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.CreateIntentOptions{
			SourceID:        input.Body.SourceID,
			DestinationIDs:  input.Body.DestinationIDs,
			Kind:            domain.IntentKind(input.Body.Kind),
			Priority:        input.Body.Priority,
			IncludePatterns: input.Body.IncludePatterns,
			ExcludePatterns: input.Body.ExcludePatterns,
		}
		if input.Body.Name != nil {
			opts.Name = *input.Body.Name
		}
		in, err := e.CreateIntent(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntentResponse `json:"body"`
		}{Body: IntentResponse{Intent: in}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-intents",
		Method:      http.MethodGet,
		Path:        "/intents",
		Summary:     "List intents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body IntentListResponse `json:"body"`
	}, error) {
		items, err := e.ListIntents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntentListResponse `json:"body"`
		}{Body: IntentListResponse{Intents: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-intent",
		Method:      http.MethodGet,
		Path:        "/intents/{intent_id}",
		Summary:     "Get intent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body IntentResponse `json:"body"`
	}, error) {
		in, err := e.GetIntent(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntentResponse `json:"body"`
		}{Body: IntentResponse{Intent: in}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scan-intent",
		Method:      http.MethodPost,
		Path:        "/intents/{intent_id}/scan",
		Summary:     "Expand intent into transfer jobs",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body ScanResponse `json:"body"`
	}, error) {
		result, err := e.Scan(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		in, err := e.GetIntent(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScanResponse `json:"body"`
		}{Body: ScanResponse{Result: result, Intent: in}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-intent",
		Method:      http.MethodPost,
		Path:        "/intents/{intent_id}/run",
		Summary:     "Execute pending transfer jobs",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		result, err := e.Run(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		in, err := e.GetIntent(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: RunResponse{Result: result, Intent: in}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-intent-jobs",
		Method:      http.MethodGet,
		Path:        "/intents/{intent_id}/jobs",
		Summary:     "List transfer jobs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
		Status   string `query:"status" enum:"pending,transferring,complete,failed,needs_review,skipped"`
	}) (*struct {
		Body JobListResponse `json:"body"`
	}, error) {
		if _, err := e.GetIntent(ctx, input.IntentID); err != nil {
			return nil, handleError(err)
		}
		jobs, err := e.Repo.ListJobs(ctx, input.IntentID, domain.JobStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobListResponse `json:"body"`
		}{Body: JobListResponse{Jobs: jobs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-intent-reviews",
		Method:      http.MethodGet,
		Path:        "/intents/{intent_id}/reviews",
		Summary:     "List open review items for an intent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body ReviewListResponse `json:"body"`
	}, error) {
		if _, err := e.GetIntent(ctx, input.IntentID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListOpenReviews(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewListResponse `json:"body"`
		}{Body: ReviewListResponse{Reviews: items}}, nil
	})
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/reviews",
		Summary:     "List open review items",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReviewListResponse `json:"body"`
	}, error) {
		items, err := e.ListOpenReviews(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewListResponse `json:"body"`
		}{Body: ReviewListResponse{Reviews: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-review",
		Method:      http.MethodPost,
		Path:        "/reviews/{review_id}/resolve",
		Summary:     "Resolve a review item",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ReviewID string               `path:"review_id"`
		Body     ResolveReviewRequest `json:"body"`
	}) (*struct {
		Body ReviewResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Resolution == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "resolution is required", nil)
		}
		item, err := e.ResolveReview(ctx, input.ReviewID, input.Body.Resolution)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewResponse `json:"body"`
		}{Body: ReviewResponse{Review: item}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		Limit    int    `query:"limit" default:"50"`
		IntentID string `query:"intent_id"`
		Type     string `query:"type"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.IntentID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Events: items}}, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		raw := "fy_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		key := domain.APIKey{
			ID:      uuid.NewString(),
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(raw),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
		if err != nil {
			return nil, handleError(err)
		}
		// The raw key is returned exactly once; only its hash is stored.
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        stored.ID,
			Name:      stored.Name,
			Key:       raw,
			CreatedAt: stored.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body APIKeyListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAPIKeys(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		keys := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			keys = append(keys, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body APIKeyListResponse `json:"body"`
		}{Body: APIKeyListResponse{Keys: keys}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/keys/{key_id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Subject string `json:"subject"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		subject := strings.TrimSpace(input.Body.Subject)
		if subject == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "subject is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, subject)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
