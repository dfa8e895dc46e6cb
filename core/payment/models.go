package payment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core"
)

// Payment types
const (
	TypeTuition      = "tuition"
	TypeRegistration = "registration"
	TypeExam         = "exam"
	TypeTransport    = "transport"
	TypeUniform      = "uniform"
	TypeLibrary      = "library"
	TypeOther        = "other"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodCard         = "card"
	MethodMobileMoney  = "mobile_money"
	MethodCheque       = "cheque"
	MethodOnline       = "online"
)

// Payment statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

var (
	Types    = []string{TypeTuition, TypeRegistration, TypeExam, TypeTransport, TypeUniform, TypeLibrary, TypeOther}
	Methods  = []string{MethodCash, MethodBankTransfer, MethodCard, MethodMobileMoney, MethodCheque, MethodOnline}
	Statuses = []string{StatusPending, StatusCompleted, StatusFailed, StatusRefunded}

	typeLabels = map[string]string{
		TypeTuition:      "Tuition Fee",
		TypeRegistration: "Registration Fee",
		TypeExam:         "Examination Fee",
		TypeTransport:    "Transport Fee",
		TypeUniform:      "Uniform",
		TypeLibrary:      "Library Fee",
		TypeOther:        "Other Fee",
	}
	methodLabels = map[string]string{
		MethodCash:         "Cash",
		MethodBankTransfer: "Bank Transfer",
		MethodCard:         "Card",
		MethodMobileMoney:  "Mobile Money",
		MethodCheque:       "Cheque",
		MethodOnline:       "Online",
	}

	// allowed status changes: {from: [to...]}
	transitions = map[string][]string{
		StatusPending:   {StatusCompleted, StatusFailed},
		StatusCompleted: {StatusRefunded},
		StatusFailed:    {StatusPending},
		StatusRefunded:  {},
	}
)

func TypeLabel(t string) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return t
}

func MethodLabel(m string) string {
	if l, ok := methodLabels[m]; ok {
		return l
	}
	return m
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to string) bool {
	return from == to || core.StringInSlice(to, transitions[from])
}

type Payment struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	Amount         decimal.Decimal `json:"amount"`
	Discount       decimal.Decimal `json:"discount"`
	PaymentDate    core.Date       `json:"payment_date"`
	Type           string          `json:"type"`
	Method         string          `json:"method"`
	Status         string          `json:"status"`
	Reference      string          `json:"reference"`
	Notes          string          `json:"notes"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Total is the amount due after discount, never negative.
func (p Payment) Total() decimal.Decimal {
	return Total(p.Amount, p.Discount)
}

func (p Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// Total returns amount - discount, clamped at zero.
func Total(amount, discount decimal.Decimal) decimal.Decimal {
	total := amount.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

type NewPayment struct {
	StudentID      string          `json:"student_id" validate:"required,uuid"`
	AcademicYearID string          `json:"academic_year_id" validate:"omitempty,uuid"` // defaults to the current year
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	Discount       decimal.Decimal `json:"discount" validate:"gte=0"`
	PaymentDate    core.Date       `json:"payment_date"` // defaults to today
	Type           string          `json:"type" validate:"required,oneof=tuition registration exam transport uniform library other"`
	Method         string          `json:"method" validate:"required,oneof=cash bank_transfer card mobile_money cheque online"`
	Status         string          `json:"status" validate:"omitempty,oneof=pending completed failed refunded"`
	Reference      string          `json:"reference" validate:"max=100"`
	Notes          string          `json:"notes" validate:"max=1000"`
	IssueReceipt   bool            `json:"issue_receipt"` // issue the receipt right away when completed
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentID = core.CleanString(np.StudentID)
	np.AcademicYearID = core.CleanString(np.AcademicYearID)
	np.Type = core.CleanString(np.Type, true /* lower */)
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.Status = core.CleanString(np.Status, true /* lower */)
	np.Reference = core.CleanString(np.Reference)
	np.Notes = core.CleanString(np.Notes)
	if np.Status == "" {
		np.Status = StatusCompleted
	}
	if np.PaymentDate.IsZero() {
		np.PaymentDate = core.DateOf(time.Now())
	}

	if err := validate.Struct(np); err != nil {
		return err
	}
	if np.Status == StatusRefunded {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "a new payment cannot be refunded"})
	}
	if np.Discount.GreaterThan(np.Amount) {
		return core.NewValidationError(nil, core.FieldError{Field: "discount", Error: "cannot be greater than amount"})
	}
	return nil
}

// UpdatePayment holds the fields to change; nil fields are left untouched.
// Only Status may be given once the payment is completed.
type UpdatePayment struct {
	Amount      *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Discount    *decimal.Decimal `json:"discount" validate:"omitempty,gte=0"`
	PaymentDate *core.Date       `json:"payment_date"`
	Type        *string          `json:"type" validate:"omitempty,oneof=tuition registration exam transport uniform library other"`
	Method      *string          `json:"method" validate:"omitempty,oneof=cash bank_transfer card mobile_money cheque online"`
	Status      *string          `json:"status" validate:"omitempty,oneof=pending completed failed refunded"`
	Reference   *string          `json:"reference" validate:"omitempty,max=100"`
	Notes       *string          `json:"notes" validate:"omitempty,max=1000"`
}

func (up *UpdatePayment) Validate(pmt Payment, validate *validator.Validate) error {
	if err := validate.Struct(up); err != nil {
		return err
	}

	if pmt.Status != StatusPending {
		locked := make([]core.FieldError, 0)
		lock := func(set bool, field string) {
			if set {
				locked = append(locked, core.FieldError{Field: field, Error: "cannot be changed once the payment is " + pmt.Status})
			}
		}
		lock(up.Amount != nil, "amount")
		lock(up.Discount != nil, "discount")
		lock(up.PaymentDate != nil, "payment_date")
		lock(up.Type != nil, "type")
		lock(up.Method != nil, "method")
		lock(up.Reference != nil, "reference")
		lock(up.Notes != nil, "notes")
		if len(locked) > 0 {
			return core.NewValidationError(nil, locked...)
		}
	}

	if up.Status != nil && !CanTransition(pmt.Status, *up.Status) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "status",
			Error: "cannot change from " + pmt.Status + " to " + *up.Status,
		})
	}

	amount, discount := pmt.Amount, pmt.Discount
	if up.Amount != nil {
		amount = *up.Amount
	}
	if up.Discount != nil {
		discount = *up.Discount
	}
	if discount.GreaterThan(amount) {
		return core.NewValidationError(nil, core.FieldError{Field: "discount", Error: "cannot be greater than amount"})
	}
	return nil
}

// apply returns pmt with the changes applied.
func (up UpdatePayment) apply(pmt Payment) Payment {
	if up.Amount != nil {
		pmt.Amount = *up.Amount
	}
	if up.Discount != nil {
		pmt.Discount = *up.Discount
	}
	if up.PaymentDate != nil && !up.PaymentDate.IsZero() {
		pmt.PaymentDate = *up.PaymentDate
	}
	if up.Type != nil {
		pmt.Type = *up.Type
	}
	if up.Method != nil {
		pmt.Method = *up.Method
	}
	if up.Status != nil {
		pmt.Status = *up.Status
	}
	if up.Reference != nil {
		pmt.Reference = core.CleanString(*up.Reference)
	}
	if up.Notes != nil {
		pmt.Notes = core.CleanString(*up.Notes)
	}
	return pmt
}

type QueryFilter struct {
	StudentID      string    `query:"student"`
	AcademicYearID string    `query:"academic_year"`
	Status         string    `query:"status"`
	Type           string    `query:"type"`
	Method         string    `query:"method"`
	DateFrom       core.Date `query:"date_from"`
	DateTo         core.Date `query:"date_to"`
	Search         string    `query:"search"` // matches reference and notes
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.AcademicYearID = core.CleanString(qf.AcademicYearID)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
	qf.Method = core.CleanString(qf.Method, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
}

// StatusSummary aggregates the payments of one status.
type StatusSummary struct {
	Status   string          `json:"status"`
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type Summary struct {
	AcademicYearID string          `json:"academic_year_id"`
	Statuses       []StatusSummary `json:"statuses"`
	Collected      decimal.Decimal `json:"collected"` // total of completed payments
}
