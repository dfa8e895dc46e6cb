package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/student"
)

type studentApi struct {
	svc        *student.Service
	paymentSvc *payment.Service
	validate   *validator.Validate
}

func registerStudentAPI(
	g *echo.Group,
	admin echo.MiddlewareFunc,
	svc *student.Service,
	paymentSvc *payment.Service,
	validate *validator.Validate,
) {
	api := studentApi{svc: svc, paymentSvc: paymentSvc, validate: validate}

	sg := g.Group("/students")
	sg.GET("", api.query)
	sg.POST("", api.create)

	dg := sg.Group("/:id", objectMiddleware(api.get))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, admin)
	dg.GET("/enrollments", api.queryEnrollments)
	dg.POST("/enrollments", api.enroll)
	dg.GET("/payments", api.queryPayments)

	eg := g.Group("/enrollments/:id", objectMiddleware(api.getEnrollment))
	eg.GET("", api.retrieveEnrollment)
	eg.PUT("", api.updateEnrollment)
	eg.DELETE("", api.destroyEnrollment, admin)
}

func (api *studentApi) get(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.Get(ctx.Request().Context(), id)
}

func (api *studentApi) getEnrollment(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.GetEnrollment(ctx.Request().Context(), id)
}

func ctxStudent(ctx echo.Context) (student.Student, error) {
	st, ok := ctx.Get(contextObjectKey).(student.Student)
	if !ok {
		return student.Student{}, errors.Wrap(errObjNotFoundInCtx, "retrieving student from context")
	}
	return st, nil
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	st, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	students, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) update(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}

	var data student.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc, st); err != nil {
		return err
	}

	st, err = api.svc.Update(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), st.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) queryEnrollments(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}
	enrs, err := api.svc.Enrollments(ctx.Request().Context(), st.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrs == nil {
		enrs = []student.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *studentApi) enroll(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}

	var data student.NewEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *studentApi) queryPayments(ctx echo.Context) error {
	st, err := ctxStudent(ctx)
	if err != nil {
		return err
	}

	filter := new(payment.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	filter.StudentID = st.ID

	payments, err := api.paymentSvc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying student payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *studentApi) retrieveEnrollment(ctx echo.Context) error {
	enr, ok := ctx.Get(contextObjectKey).(student.Enrollment)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving enrollment from context")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *studentApi) updateEnrollment(ctx echo.Context) error {
	enr, ok := ctx.Get(contextObjectKey).(student.Enrollment)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving enrollment from context")
	}

	var data student.UpdateEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.UpdateEnrollment(ctx.Request().Context(), enr, data)
	if err != nil {
		return errors.Wrap(err, "updating enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *studentApi) destroyEnrollment(ctx echo.Context) error {
	enr, ok := ctx.Get(contextObjectKey).(student.Enrollment)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving enrollment from context")
	}
	if err := api.svc.DeleteEnrollment(ctx.Request().Context(), enr.ID); err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
