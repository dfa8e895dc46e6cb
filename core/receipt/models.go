package receipt

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
)

const (
	DefaultNumberWidth      = 6
	DefaultMaxAllocAttempts = 10
)

// Receipt is the immutable proof of a completed payment.
// Amounts are copied from the payment at generation time.
type Receipt struct {
	ID             string          `json:"id"`
	Number         string          `json:"number"`
	Sequence       int             `json:"sequence"`
	PaymentID      string          `json:"payment_id"`
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	Amount         decimal.Decimal `json:"amount"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	GeneratedAt    time.Time       `json:"generated_at"`
	SignedBy       string          `json:"signed_by"`
	EmailSent      bool            `json:"email_sent"`
	EmailSentAt    time.Time       `json:"email_sent_at"`
}

// FormatNumber builds a receipt number: {prefix}-{yearTag}-{sequence zero-padded to width}.
func FormatNumber(prefix, yearTag string, seq, width int) string {
	if width <= 0 {
		width = DefaultNumberWidth
	}
	return fmt.Sprintf("%s%0*d", NumberScope(prefix, yearTag), width, seq)
}

// NumberScope is the part shared by every number built from prefix and yearTag.
// Academic years starting in the same calendar year share a scope.
func NumberScope(prefix, yearTag string) string {
	return prefix + "-" + yearTag + "-"
}

// Details gathers everything printed on a receipt.
type Details struct {
	Receipt      Receipt                   `json:"receipt"`
	Payment      payment.Payment           `json:"payment"`
	Student      student.Student           `json:"student"`
	Enrollment   *student.Enrollment       `json:"enrollment"`
	AcademicYear academicyear.AcademicYear `json:"academic_year"`
	Signer       user.User                 `json:"signer"`
}

type GetFilter struct {
	ID        string
	PaymentID string
	Number    string
}

type QueryFilter struct {
	StudentID      string    `query:"student"`
	AcademicYearID string    `query:"academic_year"`
	Number         string    `query:"number"` // prefix match
	DateFrom       core.Date `query:"date_from"`
	DateTo         core.Date `query:"date_to"`
	EmailSent      string    `query:"email_sent"`
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.AcademicYearID = core.CleanString(qf.AcademicYearID)
	qf.Number = core.CleanString(qf.Number)
	qf.EmailSent = core.CleanString(qf.EmailSent, true /* lower */)
	if qf.EmailSent != "true" && qf.EmailSent != "false" {
		qf.EmailSent = ""
	}
}

// SendEmail holds the optional recipient of a receipt email;
// the student (or guardian) email is used when empty.
type SendEmail struct {
	To   string `json:"to" validate:"omitempty,email"`
	Name string `json:"name" validate:"max=200"`
}
