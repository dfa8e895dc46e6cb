package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core/academicyear"
)

type academicYearApi struct {
	svc      *academicyear.Service
	validate *validator.Validate
}

func registerAcademicYearAPI(g *echo.Group, admin echo.MiddlewareFunc, svc *academicyear.Service, validate *validator.Validate) {
	api := academicYearApi{svc: svc, validate: validate}

	yg := g.Group("/academic-years")
	yg.GET("", api.query)
	yg.POST("", api.create, admin)
	yg.GET("/current", api.current)

	dg := yg.Group("/:id", objectMiddleware(api.get))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, admin)
	dg.DELETE("", api.destroy, admin)
}

func (api *academicYearApi) get(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.Get(ctx.Request().Context(), id)
}

func (api *academicYearApi) create(ctx echo.Context) error {
	var data academicyear.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	year, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *academicYearApi) query(ctx echo.Context) error {
	years, err := api.svc.Query(ctx.Request().Context(), bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying academic years")
	}
	if years == nil {
		years = []academicyear.AcademicYear{}
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *academicYearApi) current(ctx echo.Context) error {
	year, err := api.svc.Current(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) retrieve(ctx echo.Context) error {
	year, ok := ctx.Get(contextObjectKey).(academicyear.AcademicYear)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving academic year from context")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) update(ctx echo.Context) error {
	year, ok := ctx.Get(contextObjectKey).(academicyear.AcademicYear)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving academic year from context")
	}

	var data academicyear.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc, year); err != nil {
		return err
	}

	year, err := api.svc.Update(ctx.Request().Context(), year, data)
	if err != nil {
		return errors.Wrap(err, "updating academic year")
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) destroy(ctx echo.Context) error {
	year, ok := ctx.Get(contextObjectKey).(academicyear.AcademicYear)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving academic year from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), year.ID); err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	return ctx.NoContent(http.StatusNoContent)
}
