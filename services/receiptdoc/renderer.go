// Package receiptdoc renders receipt documents as HTML pages and PDF files.
package receiptdoc

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/risiti/core/receipt"
	appfs "github.com/trezcool/risiti/fs"
)

const (
	htmlTemplatePath = "templates/receipt/receipt.gohtml"
	qrSize           = 256 // px
	qrImageName      = "qr"

	pageMargin = 20.0 // mm
	lineHeight = 6.0  // mm
)

type Renderer struct {
	once    sync.Once
	tmpl    *template.Template
	tmplErr error
}

var _ receipt.Renderer = (*Renderer)(nil)

func NewRenderer() *Renderer {
	return new(Renderer)
}

func (r *Renderer) template() (*template.Template, error) {
	r.once.Do(func() {
		r.tmpl, r.tmplErr = template.ParseFS(appfs.FS, htmlTemplatePath)
		if r.tmplErr == nil {
			r.tmpl = r.tmpl.Option("missingkey=error")
		}
	})
	return r.tmpl, r.tmplErr
}

// HTML renders a printable HTML page.
func (r *Renderer) HTML(doc receipt.Document) ([]byte, error) {
	tmpl, err := r.template()
	if err != nil {
		return nil, errors.Wrap(err, "parsing receipt template")
	}
	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, doc); err != nil {
		return nil, errors.Wrap(err, "executing receipt template")
	}
	return buf.Bytes(), nil
}

// QRContent is the text encoded in the receipt QR code, used to check a printed receipt.
func QRContent(doc receipt.Document) string {
	return fmt.Sprintf("%s|%s|%s %s|%s", doc.Number, doc.Student.AdmissionNo, doc.Currency, doc.Total, doc.Date)
}

// PDF renders an A4 receipt with a QR code of its key facts.
func (r *Renderer) PDF(doc receipt.Document) ([]byte, error) {
	qr, err := qrcode.Encode(QRContent(doc), qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encoding qr code")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("") // cp1252
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Receipt "+doc.Number, true)
	pdf.SetCreator(doc.Institution.Name, true)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	// header
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 8, tr(doc.Institution.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, l := range []string{doc.Institution.Address, joinNonEmpty(" | ", doc.Institution.Phone, doc.Institution.Email), doc.Institution.Website} {
		if l != "" {
			pdf.CellFormat(contentW, 5, tr(l), "", 1, "C", false, 0, "")
		}
	}
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 8, "OFFICIAL RECEIPT", "", 1, "C", false, 0, "")
	y := pdf.GetY()
	pdf.SetLineWidth(0.5)
	pdf.Line(pageMargin, y, pageW-pageMargin, y)
	pdf.Ln(4)

	// receipt and student details, QR code on the right
	top := pdf.GetY()
	pdf.RegisterImageOptionsReader(qrImageName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions(qrImageName, pageW-pageMargin-30, top, 30, 30, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	field := func(label, value string) {
		if value == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, lineHeight, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(contentW-70, lineHeight, tr(value), "", 1, "L", false, 0, "")
	}
	field("Receipt No:", doc.Number)
	field("Date:", doc.Date)
	field("Academic year:", doc.AcademicYear)
	field("Received from:", doc.Student.Name)
	field("Admission No:", doc.Student.AdmissionNo)
	grade := doc.Student.Grade
	if grade != "" && doc.Student.Section != "" {
		grade += " (" + doc.Student.Section + ")"
	}
	field("Grade:", grade)
	if pdf.GetY() < top+32 {
		pdf.SetY(top + 32)
	}
	pdf.Ln(2)

	// lines
	amountW := 50.0
	pdf.SetFillColor(235, 235, 235)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentW-amountW, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(amountW, 8, tr("Amount ("+doc.Currency+")"), "1", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, l := range doc.Lines {
		pdf.CellFormat(contentW-amountW, 8, tr(l.Label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(amountW, 8, l.Amount, "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentW-amountW, 8, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(amountW, 8, doc.Total, "1", 1, "R", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(contentW, lineHeight, tr("Amount in words: "+doc.TotalInWords), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	method := "Payment method: " + doc.PaymentMethod
	if doc.Reference != "" {
		method += " (ref. " + doc.Reference + ")"
	}
	pdf.CellFormat(contentW, lineHeight, tr(method), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, lineHeight, tr("Payment date: "+doc.PaymentDate), "", 1, "L", false, 0, "")

	// signature
	pdf.Ln(18)
	sigW := 70.0
	sigX := pageW - pageMargin - sigW
	y = pdf.GetY()
	pdf.SetLineWidth(0.2)
	pdf.Line(sigX, y, sigX+sigW, y)
	pdf.SetX(sigX)
	pdf.CellFormat(sigW, lineHeight, tr(doc.Signer.Name), "", 1, "C", false, 0, "")
	pdf.SetX(sigX)
	pdf.CellFormat(sigW, lineHeight, tr(doc.Signer.Title), "", 1, "C", false, 0, "")

	if doc.Disclaimer != "" {
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(100, 100, 100)
		pdf.MultiCell(contentW, 4, tr(doc.Disclaimer), "", "C", false)
	}

	var buf bytes.Buffer
	if err = pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "writing pdf")
	}
	return buf.Bytes(), nil
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
