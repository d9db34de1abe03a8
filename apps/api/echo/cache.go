package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursefactory/core/querycache"
)

type cacheApi struct {
	cache    *querycache.Cache
	validate *validator.Validate
}

func registerCacheAPI(g *echo.Group, cache *querycache.Cache, validate *validator.Validate) {
	api := cacheApi{cache: cache, validate: validate}

	ag := g.Group("/admin/cache")
	ag.GET("", api.stats)
	ag.DELETE("", api.invalidate)
}

type invalidateParams struct {
	Pattern string `query:"pattern" validate:"omitempty,regexp"`
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

func (api *cacheApi) stats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.cache.Stats())
}

// invalidate drops the entries matching the "pattern" query param, or every entry when it is empty.
func (api *cacheApi) invalidate(ctx echo.Context) error {
	params := invalidateParams{Pattern: ctx.QueryParam("pattern")}
	if err := api.validate.Struct(params); err != nil {
		return err
	}
	if params.Pattern == "" {
		removed := api.cache.Stats().Total
		api.cache.InvalidateAll()
		return ctx.JSON(http.StatusOK, invalidateResponse{Removed: removed})
	}

	removed, err := api.cache.InvalidatePattern(params.Pattern)
	if err != nil {
		return errors.Wrap(err, "invalidating cache")
	}
	return ctx.JSON(http.StatusOK, invalidateResponse{Removed: removed})
}
