package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core/setting"
)

type settingApi struct {
	svc *setting.Service
}

func registerSettingAPI(g *echo.Group, admin echo.MiddlewareFunc, svc *setting.Service) {
	api := settingApi{svc: svc}

	sg := g.Group("/settings")
	sg.GET("", api.list)
	sg.PUT("", api.update, admin)
	sg.GET("/profile", api.profile, profileMiddleware(svc))
}

func (api *settingApi) list(ctx echo.Context) error {
	values, err := api.svc.All(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing settings")
	}
	return ctx.JSON(http.StatusOK, values)
}

func (api *settingApi) update(ctx echo.Context) error {
	var data map[string]string
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding settings")
	}

	values, err := api.svc.Set(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving settings")
	}
	return ctx.JSON(http.StatusOK, values)
}

func (api *settingApi) profile(ctx echo.Context) error {
	p, err := api.svc.Profile(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading profile")
	}
	return ctx.JSON(http.StatusOK, p)
}
