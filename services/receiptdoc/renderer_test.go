package receiptdoc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/risiti/core/receipt"
)

func sampleDocument() receipt.Document {
	return receipt.Document{
		Institution:  receipt.Institution{Name: "Green Hills Academy", Address: "12 Lake Road", Phone: "+254700000000"},
		Number:       "RCT-2024-000042",
		Date:         "05 Feb 2024",
		AcademicYear: "2024/2025",
		Student:      receipt.DocumentStudent{Name: "Amani Otieno", AdmissionNo: "ADM-001", Grade: "Grade 4", Section: "B"},
		Lines: []receipt.Line{
			{Label: "Tuition Fee", Amount: "500.00"},
			{Label: "Discount", Amount: "-50.00"},
		},
		Currency:      "KES",
		Total:         "450.00",
		TotalInWords:  "Four hundred fifty KES and 00/100",
		PaymentMethod: "Mobile Money",
		PaymentDate:   "04 Feb 2024",
		Reference:     "QX12AB",
		Signer:        receipt.Signer{Name: "Jane Bursar", Title: "Bursar"},
		Disclaimer:    "Fees once paid are not refundable.",
	}
}

func TestRenderer_HTML(t *testing.T) {
	r := NewRenderer()
	doc := sampleDocument()

	html, err := r.HTML(doc)
	require.NoError(t, err)

	page := string(html)
	for _, want := range []string{
		"Green Hills Academy",
		"RCT-2024-000042",
		"Amani Otieno",
		"Grade 4 (B)",
		"-50.00",
		"450.00",
		"Four hundred fifty KES and 00/100",
		"Mobile Money (ref. QX12AB)",
		"Jane Bursar",
	} {
		assert.Contains(t, page, want)
	}

	t.Run("escapes content", func(t *testing.T) {
		doc := sampleDocument()
		doc.Student.Name = "<script>alert(1)</script>"
		html, err := r.HTML(doc)
		require.NoError(t, err)
		assert.NotContains(t, string(html), "<script>")
	})

	t.Run("no discount line", func(t *testing.T) {
		doc := sampleDocument()
		doc.Lines = doc.Lines[:1]
		doc.Total = "500.00"
		html, err := r.HTML(doc)
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(html), "Discount"))
	})
}

func TestRenderer_PDF(t *testing.T) {
	r := NewRenderer()

	pdf, err := r.PDF(sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")), "not a pdf")
	assert.Greater(t, len(pdf), 1000)
}

func TestQRContent(t *testing.T) {
	assert.Equal(t, "RCT-2024-000042|ADM-001|KES 450.00|05 Feb 2024", QRContent(sampleDocument()))
}
