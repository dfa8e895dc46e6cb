package receipt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/divan/num2words"
	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/setting"
)

const (
	documentDateLayout = "02 Jan 2006"
	discountLabel      = "Discount"
)

type (
	Institution struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Website string `json:"website"`
	}

	DocumentStudent struct {
		Name        string `json:"name"`
		AdmissionNo string `json:"admission_no"`
		Grade       string `json:"grade"`
		Section     string `json:"section"`
	}

	Line struct {
		Label  string `json:"label"`
		Amount string `json:"amount"`
	}

	Signer struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	}

	// Document is the printable content of a receipt, independent of the output format.
	Document struct {
		Institution   Institution     `json:"institution"`
		Number        string          `json:"number"`
		Date          string          `json:"date"`
		AcademicYear  string          `json:"academic_year"`
		Student       DocumentStudent `json:"student"`
		Lines         []Line          `json:"lines"`
		Currency      string          `json:"currency"`
		Total         string          `json:"total"`
		TotalInWords  string          `json:"total_in_words"`
		PaymentMethod string          `json:"payment_method"`
		PaymentDate   string          `json:"payment_date"`
		Reference     string          `json:"reference"`
		Signer        Signer          `json:"signer"`
		Disclaimer    string          `json:"disclaimer"`
	}
)

// NewDocument lays out a receipt. The discount line is only present for a positive discount.
func NewDocument(d Details, p setting.Profile) Document {
	rcpt := d.Receipt
	doc := Document{
		Institution: Institution{
			Name:    p.InstitutionName,
			Address: p.InstitutionAddress,
			Phone:   p.InstitutionPhone,
			Email:   p.InstitutionEmail,
			Website: p.InstitutionWebsite,
		},
		Number:       rcpt.Number,
		Date:         rcpt.GeneratedAt.Format(documentDateLayout),
		AcademicYear: d.AcademicYear.Name,
		Student: DocumentStudent{
			Name:        d.Student.FullName(),
			AdmissionNo: d.Student.AdmissionNo,
		},
		Lines: []Line{
			{Label: payment.TypeLabel(d.Payment.Type), Amount: formatMoney(rcpt.Amount)},
		},
		Currency:      p.Currency,
		PaymentMethod: payment.MethodLabel(d.Payment.Method),
		PaymentDate:   d.Payment.PaymentDate.Format(documentDateLayout),
		Reference:     d.Payment.Reference,
		Signer:        Signer{Name: d.Signer.Name, Title: p.ReceiptSignerTitle},
		Disclaimer:    p.ReceiptDisclaimer,
	}
	if d.Enrollment != nil {
		doc.Student.Grade = d.Enrollment.Grade
		doc.Student.Section = d.Enrollment.Section
	}
	if rcpt.Discount.IsPositive() {
		doc.Lines = append(doc.Lines, Line{Label: discountLabel, Amount: formatMoney(rcpt.Discount.Neg())})
	}

	total := payment.Total(rcpt.Amount, rcpt.Discount)
	doc.Total = formatMoney(total)
	doc.TotalInWords = AmountInWords(total, p.Currency)
	return doc
}

// Text renders the document as plain text, used for email bodies.
func (doc Document) Text() string {
	var b strings.Builder
	w := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(&b, format+"\n", args...) }

	w("%s", doc.Institution.Name)
	for _, l := range []string{doc.Institution.Address, doc.Institution.Phone, doc.Institution.Email, doc.Institution.Website} {
		if l != "" {
			w("%s", l)
		}
	}
	w("")
	w("RECEIPT %s", doc.Number)
	w("Date: %s", doc.Date)
	if doc.AcademicYear != "" {
		w("Academic year: %s", doc.AcademicYear)
	}
	w("Received from: %s (%s)", doc.Student.Name, doc.Student.AdmissionNo)
	if doc.Student.Grade != "" {
		if doc.Student.Section != "" {
			w("Grade: %s (%s)", doc.Student.Grade, doc.Student.Section)
		} else {
			w("Grade: %s", doc.Student.Grade)
		}
	}
	w("")
	for _, l := range doc.Lines {
		w("%-30s %15s", l.Label, l.Amount)
	}
	w("%-30s %15s", "Total ("+doc.Currency+")", doc.Total)
	w("Amount in words: %s", doc.TotalInWords)
	w("")
	if doc.Reference != "" {
		w("Payment method: %s (ref. %s)", doc.PaymentMethod, doc.Reference)
	} else {
		w("Payment method: %s", doc.PaymentMethod)
	}
	w("Payment date: %s", doc.PaymentDate)
	w("")
	w("%s, %s", doc.Signer.Name, doc.Signer.Title)
	if doc.Disclaimer != "" {
		w("")
		w("%s", doc.Disclaimer)
	}
	return b.String()
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// AmountInWords spells out the whole part of amount followed by the cents as a fraction,
// e.g. "Four hundred fifty USD and 25/100".
func AmountInWords(amount decimal.Decimal, currency string) string {
	amount = amount.Round(2)
	whole := amount.Truncate(0)
	cents := amount.Sub(whole).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	words := capitalize(num2words.Convert(int(whole.IntPart())))
	if currency != "" {
		words += " " + currency
	}
	return fmt.Sprintf("%s and %02d/100", words, cents)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
