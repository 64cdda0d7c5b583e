package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"guildboard/internal/domain"
	"guildboard/internal/engine"
)

var (
	bearerSecurity = []map[string][]string{{schemeBearer: {}}}
	apiKeySecurity = []map[string][]string{{schemeAPIKey: {}}}
)

type handlers struct {
	engine engine.Engine
	auth   AuthConfig
	log    *zap.Logger
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Security:    []map[string][]string{},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (h handlers) registerSync(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-group-achievements",
		Method:      http.MethodPost,
		Path:        "/achievements/sync",
		Summary:     "Recalculate achievements for one group",
		Description: "Caller must be an admin or officer of the group.",
		Security:    bearerSecurity,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SyncRequest `json:"body" required:"false"`
	}) (*struct {
		Body SyncResponse `json:"body"`
	}, error) {
		userID, authErr := requireUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		groupID := strings.TrimSpace(input.Body.TenantID)
		if groupID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tenantId is required", nil)
		}
		res, err := h.engine.SyncGroupAs(ctx, groupID, userID)
		if err != nil {
			return nil, handleError(h.log.With(zap.String("group_id", groupID)), err)
		}
		return &struct {
			Body SyncResponse `json:"body"`
		}{Body: mapSyncResult(res)}, nil
	})
}

func (h handlers) registerSyncAll(api huma.API) {
	handler := func(ctx context.Context, _ *struct{}) (*struct {
		Body SyncAllResponse `json:"body"`
	}, error) {
		if authErr := requireScheduler(ctx, h.auth); authErr != nil {
			return nil, authErr
		}
		// A dropped scheduler connection must not abort the run; the run
		// deadline still applies.
		summary, err := h.engine.SyncAll(context.WithoutCancel(ctx))
		if err != nil {
			return nil, handleError(h.log, err)
		}
		return &struct {
			Body SyncAllResponse `json:"body"`
		}{Body: mapSummary(summary)}, nil
	}
	errs := []int{http.StatusUnauthorized, http.StatusInternalServerError}
	huma.Register(api, huma.Operation{
		OperationID: "sync-all-achievements",
		Method:      http.MethodGet,
		Path:        "/achievements/sync-all",
		Summary:     "Recalculate achievements for every group",
		Security:    apiKeySecurity,
		Errors:      errs,
	}, handler)
	huma.Register(api, huma.Operation{
		OperationID: "sync-all-achievements-post",
		Method:      http.MethodPost,
		Path:        "/achievements/sync-all",
		Summary:     "Recalculate achievements for every group",
		Security:    apiKeySecurity,
		Errors:      errs,
	}, handler)
}

func (h handlers) registerProgress(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "group-achievements",
		Method:      http.MethodGet,
		Path:        "/groups/{group_id}/achievements",
		Summary:     "Latest achievement progress for a group",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		userID, authErr := requireUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := h.engine.GroupProgress(ctx, input.GroupID, userID)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		defs, err := h.engine.Repo.ListDefinitions(ctx)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: mapProgress(input.GroupID, defs, rows)}, nil
	})
}

func (h handlers) registerCatalog(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-achievements",
		Method:      http.MethodGet,
		Path:        "/achievements",
		Summary:     "Achievement catalogue",
		Security:    bearerSecurity,
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CatalogResponse `json:"body"`
	}, error) {
		if _, authErr := requireUser(ctx); authErr != nil {
			return nil, authErr
		}
		defs, err := h.engine.Repo.ListDefinitions(ctx)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		if defs == nil {
			defs = []domain.AchievementDefinition{}
		}
		return &struct {
			Body CatalogResponse `json:"body"`
		}{Body: CatalogResponse{Items: defs}}, nil
	})
}
