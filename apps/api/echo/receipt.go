package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	exportsvc "github.com/trezcool/risiti/services/export"
)

type receiptApi struct {
	svc       *receipt.Service
	exportSvc *exportsvc.Service
	validate  *validator.Validate
}

func registerReceiptAPI(
	g *echo.Group,
	admin echo.MiddlewareFunc,
	svc *receipt.Service,
	settingSvc *setting.Service,
	exportSvc *exportsvc.Service,
	validate *validator.Validate,
) {
	api := receiptApi{svc: svc, exportSvc: exportSvc, validate: validate}
	profile := profileMiddleware(settingSvc)

	rg := g.Group("/receipts")
	rg.GET("", api.query)
	rg.GET("/export", api.export, admin)
	rg.GET("/by-number/:number", api.retrieveByNumber)

	dg := rg.Group("/:id", objectMiddleware(api.get))
	dg.GET("", api.retrieve)
	dg.GET("/details", api.details)
	dg.GET("/document", api.document, profile)
	dg.GET("/html", api.html, profile)
	dg.GET("/pdf", api.pdf, profile)
	dg.POST("/email", api.email, profile)
}

func (api *receiptApi) get(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.Get(ctx.Request().Context(), id)
}

func ctxReceipt(ctx echo.Context) (receipt.Receipt, error) {
	rcpt, ok := ctx.Get(contextObjectKey).(receipt.Receipt)
	if !ok {
		return receipt.Receipt{}, errors.Wrap(errObjNotFoundInCtx, "retrieving receipt from context")
	}
	return rcpt, nil
}

func (api *receiptApi) queryReceipts(ctx echo.Context) ([]receipt.Receipt, error) {
	filter := new(receipt.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return nil, errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	receipts, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "querying receipts")
	}
	if receipts == nil {
		receipts = []receipt.Receipt{}
	}
	return receipts, nil
}

func (api *receiptApi) query(ctx echo.Context) error {
	receipts, err := api.queryReceipts(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, receipts)
}

func (api *receiptApi) export(ctx echo.Context) error {
	receipts, err := api.queryReceipts(ctx)
	if err != nil {
		return err
	}
	content, err := api.exportSvc.Receipts(ctx.Request().Context(), receipts)
	if err != nil {
		return errors.Wrap(err, "exporting receipts")
	}
	return attachment(ctx, content, exportsvc.ContentType, fmt.Sprintf("receipts-%s.xlsx", time.Now().Format("20060102")))
}

func (api *receiptApi) retrieve(ctx echo.Context) error {
	rcpt, err := ctxReceipt(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func (api *receiptApi) retrieveByNumber(ctx echo.Context) error {
	rcpt, err := api.svc.GetByNumber(ctx.Request().Context(), ctx.Param("number"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func (api *receiptApi) details(ctx echo.Context) error {
	rcpt, err := ctxReceipt(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Details(ctx.Request().Context(), rcpt.ID)
	if err != nil {
		return errors.Wrap(err, "loading receipt details")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *receiptApi) document(ctx echo.Context) error {
	rcpt, err := ctxReceipt(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.Document(ctx.Request().Context(), rcpt.ID)
	if err != nil {
		return errors.Wrap(err, "laying out receipt")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *receiptApi) html(ctx echo.Context) error {
	rcpt, err := ctxReceipt(ctx)
	if err != nil {
		return err
	}
	page, err := api.svc.HTML(ctx.Request().Context(), rcpt.ID)
	if err != nil {
		return errors.Wrap(err, "rendering receipt page")
	}
	return ctx.HTMLBlob(http.StatusOK, page)
}

func (api *receiptApi) pdf(ctx echo.Context) error {
	rcpt, err := ctxReceipt(ctx)
	if err != nil {
		return err
	}
	file, filename, err := api.svc.PDF(ctx.Request().Context(), rcpt.ID)
	if err != nil {
		return errors.Wrap(err, "rendering receipt pdf")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", filename))
	return ctx.Blob(http.StatusOK, "application/pdf", file)
}

func (api *receiptApi) email(ctx echo.Context) error {
	rcpt, err := ctxReceipt(ctx)
	if err != nil {
		return err
	}

	var data receipt.SendEmail
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendEmail")
	}
	data.To = core.CleanString(data.To, true /* lower */)
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	rcpt, err = api.svc.SendEmail(ctx.Request().Context(), rcpt.ID, data)
	if err != nil {
		return errors.Wrap(err, "emailing receipt")
	}
	return ctx.JSON(http.StatusOK, rcpt)
}
