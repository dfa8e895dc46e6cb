package student

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentWithdrawn = "withdrawn"
	EnrollmentCompleted = "completed"
)

var EnrollmentStatuses = []string{EnrollmentActive, EnrollmentWithdrawn, EnrollmentCompleted}

// Student is the year independent record of a learner.
type Student struct {
	ID            string    `json:"id"`
	AdmissionNo   string    `json:"admission_no"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Gender        string    `json:"gender"`
	DateOfBirth   core.Date `json:"date_of_birth"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	GuardianName  string    `json:"guardian_name"`
	GuardianPhone string    `json:"guardian_phone"`
	GuardianEmail string    `json:"guardian_email"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// ContactEmail is where receipts are mailed: the student's email, else the guardian's.
func (s Student) ContactEmail() (name, email string) {
	if s.Email != "" {
		return s.FullName(), s.Email
	}
	if s.GuardianEmail != "" {
		name = s.GuardianName
		if name == "" {
			name = "Parent/Guardian of " + s.FullName()
		}
		return name, s.GuardianEmail
	}
	return "", ""
}

// NewStudent holds the fields of a student on create and on (full) update.
type NewStudent struct {
	AdmissionNo   string    `json:"admission_no" validate:"required,max=30"`
	FirstName     string    `json:"first_name" validate:"required,max=100"`
	LastName      string    `json:"last_name" validate:"required,max=100"`
	Gender        string    `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth   core.Date `json:"date_of_birth"`
	Email         string    `json:"email" validate:"omitempty,email,max=254"`
	Phone         string    `json:"phone" validate:"omitempty,phone"`
	GuardianName  string    `json:"guardian_name" validate:"max=200"`
	GuardianPhone string    `json:"guardian_phone" validate:"omitempty,phone"`
	GuardianEmail string    `json:"guardian_email" validate:"omitempty,email,max=254"`
	Address       string    `json:"address" validate:"max=500"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excluded ...Student) error {
	ns.AdmissionNo = strings.ToUpper(core.CleanString(ns.AdmissionNo))
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianPhone = core.CleanString(ns.GuardianPhone)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
	ns.Address = core.CleanString(ns.Address)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	if !ns.DateOfBirth.IsZero() && ns.DateOfBirth.After(time.Now()) {
		return core.NewValidationError(nil, core.FieldError{Field: "date_of_birth", Error: "cannot be in the future"})
	}
	return svc.checkUniqueness(ctx, ns.AdmissionNo, excluded...)
}

type QueryFilter struct {
	Search         string `query:"search"` // matches names, admission no and guardian name
	AcademicYearID string `query:"academic_year"`
	Grade          string `query:"grade"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.AcademicYearID = core.CleanString(qf.AcademicYearID)
	qf.Grade = core.CleanString(qf.Grade)
}

// Enrollment places a student in a grade for one academic year.
type Enrollment struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	Grade          string          `json:"grade"`
	Section        string          `json:"section"`
	Fee            decimal.Decimal `json:"fee"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type NewEnrollment struct {
	AcademicYearID string          `json:"academic_year_id" validate:"required,uuid"`
	Grade          string          `json:"grade" validate:"required,max=50"`
	Section        string          `json:"section" validate:"max=50"`
	Fee            decimal.Decimal `json:"fee" validate:"gte=0"`
	Status         string          `json:"status" validate:"omitempty,oneof=active withdrawn completed"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.AcademicYearID = core.CleanString(ne.AcademicYearID)
	ne.Grade = core.CleanString(ne.Grade)
	ne.Section = core.CleanString(ne.Section)
	ne.Status = core.CleanString(ne.Status, true /* lower */)
	if ne.Status == "" {
		ne.Status = EnrollmentActive
	}
	return validate.Struct(ne)
}

type UpdateEnrollment struct {
	Grade   string          `json:"grade" validate:"required,max=50"`
	Section string          `json:"section" validate:"max=50"`
	Fee     decimal.Decimal `json:"fee" validate:"gte=0"`
	Status  string          `json:"status" validate:"required,oneof=active withdrawn completed"`
}

func (ue *UpdateEnrollment) Validate(validate *validator.Validate) error {
	ue.Grade = core.CleanString(ue.Grade)
	ue.Section = core.CleanString(ue.Section)
	ue.Status = core.CleanString(ue.Status, true /* lower */)
	return validate.Struct(ue)
}

type EnrollmentFilter struct {
	StudentID      string
	AcademicYearID string
}
