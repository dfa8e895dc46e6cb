// Package testutil creates the records tests need and the shared test configuration.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
	logsvc "github.com/trezcool/risiti/services/logger"
)

const DefaultPassword = "Passw0rd!x#"

// NewConfig returns the configuration used by tests: test mode, no debug output.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	return conf
}

// NewLogger returns a logger that discards everything.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

// NewValidate returns a validator with every custom validation registered.
func NewValidate(logger core.Logger) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStaff
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd == "" {
		pwd = DefaultPassword
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateYear adds a one year long academic year starting on start.
func CreateYear(t *testing.T, repo academicyear.Repository, name string, start core.Date, isCurrent bool) academicyear.AcademicYear {
	now := time.Now().UTC()
	year, err := repo.CreateYear(context.Background(), academicyear.AcademicYear{
		Name:      name,
		StartDate: start,
		EndDate:   core.DateOf(start.AddDate(1, 0, -1)),
		IsCurrent: isCurrent,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateYear() failed: %v", err)
	}
	return year
}

func CreateStudent(t *testing.T, repo student.Repository, admissionNo, firstName, lastName string, email ...string) student.Student {
	now := time.Now().UTC()
	st := student.Student{
		AdmissionNo: admissionNo,
		FirstName:   firstName,
		LastName:    lastName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(email) > 0 {
		st.Email = email[0]
	}
	st, err := repo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

func Enroll(t *testing.T, repo student.Repository, studentID, yearID, grade, section string) student.Enrollment {
	now := time.Now().UTC()
	enr, err := repo.CreateEnrollment(context.Background(), student.Enrollment{
		StudentID:      studentID,
		AcademicYearID: yearID,
		Grade:          grade,
		Section:        section,
		Fee:            decimal.Zero,
		Status:         student.EnrollmentActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enr
}

// CreatePayment records a cash payment dated today; amounts are decimal strings.
func CreatePayment(t *testing.T, repo payment.Repository, studentID, yearID, amount, discount, typ, status string) payment.Payment {
	now := time.Now().UTC()
	if discount == "" {
		discount = "0"
	}
	pmt, err := repo.CreatePayment(context.Background(), payment.Payment{
		StudentID:      studentID,
		AcademicYearID: yearID,
		Amount:         decimal.RequireFromString(amount),
		Discount:       decimal.RequireFromString(discount),
		PaymentDate:    core.DateOf(now),
		Type:           typ,
		Method:         payment.MethodCash,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	return pmt
}
