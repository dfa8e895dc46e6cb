// Package payment records the money received from students.
package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/student"
)

var (
	// errors
	ErrNotFound   = errors.New("payment not found")
	ErrHasReceipt = errors.New("payment has a receipt and cannot be deleted")
)

type GetFilter struct {
	ID string
}

type Repository interface {
	CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
	QueryPayments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Payment, error)
	GetPayment(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Payment, error)
	UpdatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
	// DeletePayment returns ErrHasReceipt when a receipt references the payment.
	DeletePayment(ctx context.Context, id string, exec ...core.DBExecutor) error
	// SummarizePayments aggregates the payments of a year per status.
	SummarizePayments(ctx context.Context, yearID string, exec ...core.DBExecutor) ([]StatusSummary, error)
}

type Service struct {
	repo     Repository
	students student.Repository
	years    academicyear.Repository
}

func NewService(repo Repository, students student.Repository, years academicyear.Repository) *Service {
	return &Service{repo: repo, students: students, years: years}
}

// Record saves a new payment made by a student, booked by userID.
// The academic year defaults to the current one.
func (svc *Service) Record(ctx context.Context, np NewPayment, userID string) (Payment, error) {
	pmt, err := svc.Prepare(ctx, np, userID)
	if err != nil {
		return Payment{}, err
	}
	pmt, err = svc.repo.CreatePayment(ctx, pmt)
	return pmt, errors.Wrap(err, "creating payment")
}

// Prepare checks the student and academic year of np and returns the payment Record would save.
func (svc *Service) Prepare(ctx context.Context, np NewPayment, userID string) (Payment, error) {
	if _, err := svc.students.GetStudent(ctx, np.StudentID); err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return Payment{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return Payment{}, errors.Wrap(err, "finding student")
	}

	var (
		year academicyear.AcademicYear
		err  error
	)
	if np.AcademicYearID == "" {
		year, err = svc.years.GetCurrentYear(ctx)
	} else {
		year, err = svc.years.GetYear(ctx, np.AcademicYearID)
	}
	if err != nil {
		switch errors.Cause(err) {
		case academicyear.ErrNotFound, academicyear.ErrNoCurrentYear:
			return Payment{}, core.NewValidationError(err, core.FieldError{Field: "academic_year_id", Error: err.Error()})
		}
		return Payment{}, errors.Wrap(err, "finding academic year")
	}

	now := time.Now().UTC()
	return Payment{
		StudentID:      np.StudentID,
		AcademicYearID: year.ID,
		Amount:         np.Amount,
		Discount:       np.Discount,
		PaymentDate:    np.PaymentDate,
		Type:           np.Type,
		Method:         np.Method,
		Status:         np.Status,
		Reference:      np.Reference,
		Notes:          np.Notes,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, GetFilter{ID: id})
}

// Update applies validated changes to pmt.
func (svc *Service) Update(ctx context.Context, pmt Payment, up UpdatePayment) (Payment, error) {
	pmt = up.apply(pmt)
	pmt.UpdatedAt = time.Now().UTC()
	pmt, err := svc.repo.UpdatePayment(ctx, pmt)
	return pmt, errors.Wrap(err, "updating payment")
}

// UpdateStatus moves pmt to status if the transition is allowed.
func (svc *Service) UpdateStatus(ctx context.Context, pmt Payment, status string) (Payment, error) {
	if !core.StringInSlice(status, Statuses) || !CanTransition(pmt.Status, status) {
		return Payment{}, core.NewValidationError(nil, core.FieldError{
			Field: "status",
			Error: "cannot change from " + pmt.Status + " to " + status,
		})
	}
	return svc.Update(ctx, pmt, UpdatePayment{Status: &status})
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeletePayment(ctx, id); err != nil {
		if errors.Cause(err) == ErrHasReceipt {
			return core.NewConflictError(ErrHasReceipt)
		}
		return err
	}
	return nil
}

// Summary returns the payment totals per status for a year (the current one if yearID is empty).
// Every status is listed, with zero values when there is no payment.
func (svc *Service) Summary(ctx context.Context, yearID string) (Summary, error) {
	var (
		year academicyear.AcademicYear
		err  error
	)
	if yearID == "" {
		year, err = svc.years.GetCurrentYear(ctx)
	} else {
		year, err = svc.years.GetYear(ctx, yearID)
	}
	if err != nil {
		return Summary{}, err
	}

	rows, err := svc.repo.SummarizePayments(ctx, year.ID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summarizing payments")
	}
	byStatus := make(map[string]StatusSummary, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row
	}

	summary := Summary{AcademicYearID: year.ID, Statuses: make([]StatusSummary, 0, len(Statuses)), Collected: decimal.Zero}
	for _, status := range Statuses {
		row, ok := byStatus[status]
		if !ok {
			row = StatusSummary{Status: status, Amount: decimal.Zero, Discount: decimal.Zero, Total: decimal.Zero}
		}
		if status == StatusCompleted {
			summary.Collected = row.Total
		}
		summary.Statuses = append(summary.Statuses, row)
	}
	return summary, nil
}
