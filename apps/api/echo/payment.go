package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	exportsvc "github.com/trezcool/risiti/services/export"
)

type paymentApi struct {
	svc        *payment.Service
	receiptSvc *receipt.Service
	exportSvc  *exportsvc.Service
	validate   *validator.Validate
}

func registerPaymentAPI(
	g *echo.Group,
	admin echo.MiddlewareFunc,
	svc *payment.Service,
	receiptSvc *receipt.Service,
	exportSvc *exportsvc.Service,
	validate *validator.Validate,
) {
	api := paymentApi{svc: svc, receiptSvc: receiptSvc, exportSvc: exportSvc, validate: validate}

	pg := g.Group("/payments")
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.GET("/summary", api.summary)
	pg.GET("/export", api.export, admin)

	dg := pg.Group("/:id", objectMiddleware(api.get))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, admin)
	dg.PUT("/status", api.updateStatus)
	dg.POST("/receipt", api.issueReceipt)
}

func (api *paymentApi) get(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.Get(ctx.Request().Context(), id)
}

func ctxPayment(ctx echo.Context) (payment.Payment, error) {
	pmt, ok := ctx.Get(contextObjectKey).(payment.Payment)
	if !ok {
		return payment.Payment{}, errors.Wrap(errObjNotFoundInCtx, "retrieving payment from context")
	}
	return pmt, nil
}

func (api *paymentApi) create(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if !data.IssueReceipt || data.Status != payment.StatusCompleted {
		pmt, err := api.svc.Record(reqCtx, data, sess.UserID)
		if err != nil {
			return errors.Wrap(err, "recording payment")
		}
		return ctx.JSON(http.StatusCreated, PaymentResponse{Payment: pmt})
	}

	pmt, err := api.svc.Prepare(reqCtx, data, sess.UserID)
	if err != nil {
		return err
	}
	pmt, rcpt, err := api.receiptSvc.RecordAndIssue(reqCtx, pmt, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "recording payment with receipt")
	}
	resp := PaymentResponse{Payment: pmt, Receipt: &rcpt}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *paymentApi) queryPayments(ctx echo.Context) ([]payment.Payment, error) {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return nil, errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	payments, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return payments, nil
}

func (api *paymentApi) query(ctx echo.Context) error {
	payments, err := api.queryPayments(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) export(ctx echo.Context) error {
	payments, err := api.queryPayments(ctx)
	if err != nil {
		return err
	}
	content, err := api.exportSvc.Payments(ctx.Request().Context(), payments)
	if err != nil {
		return errors.Wrap(err, "exporting payments")
	}
	return attachment(ctx, content, exportsvc.ContentType, fmt.Sprintf("payments-%s.xlsx", time.Now().Format("20060102")))
}

func (api *paymentApi) summary(ctx echo.Context) error {
	summary, err := api.svc.Summary(ctx.Request().Context(), ctx.QueryParam("academic_year"))
	if err != nil {
		return errors.Wrap(err, "summarizing payments")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	pmt, err := ctxPayment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) update(ctx echo.Context) error {
	pmt, err := ctxPayment(ctx)
	if err != nil {
		return err
	}

	var data payment.UpdatePayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePayment")
	}
	if err = data.Validate(pmt, api.validate); err != nil {
		return err
	}

	pmt, err = api.svc.Update(ctx.Request().Context(), pmt, data)
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) updateStatus(ctx echo.Context) error {
	pmt, err := ctxPayment(ctx)
	if err != nil {
		return err
	}

	var data StatusRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	pmt, err = api.svc.UpdateStatus(ctx.Request().Context(), pmt, data.Status)
	if err != nil {
		return errors.Wrap(err, "updating payment status")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) destroy(ctx echo.Context) error {
	pmt, err := ctxPayment(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), pmt.ID); err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// issueReceipt returns the receipt of the payment, issuing it on first call.
func (api *paymentApi) issueReceipt(ctx echo.Context) error {
	pmt, err := ctxPayment(ctx)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}

	rcpt, err := api.receiptSvc.Issue(ctx.Request().Context(), pmt.ID, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "issuing receipt")
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func attachment(ctx echo.Context, content []byte, contentType, filename string) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, contentType, content)
}

type (
	PaymentResponse struct {
		payment.Payment
		Receipt *receipt.Receipt `json:"receipt,omitempty"`
	}

	StatusRequest struct {
		Status string `json:"status" validate:"required,oneof=pending completed failed refunded"`
	}
)
