// Package academicyear manages the school years payments and receipts are booked against.
package academicyear

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
)

var (
	// errors
	ErrNotFound      = errors.New("academic year not found")
	ErrNameExists    = errors.New("an academic year with this name already exists")
	ErrInUse         = errors.New("academic year has enrollments, payments or receipts")
	ErrNoCurrentYear = errors.New("no current academic year")
)

type AcademicYear struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is the short year label printed in receipt numbers: the year the academic year starts.
func (y AcademicYear) Tag() string {
	return strconv.Itoa(y.StartDate.Year())
}

// Contains reports whether d falls within the academic year.
func (y AcademicYear) Contains(d core.Date) bool {
	return !d.Before(y.StartDate.Time) && !d.After(y.EndDate.Time)
}

// NewAcademicYear holds the fields of a year on create and on (full) update.
type NewAcademicYear struct {
	Name      string    `json:"name" validate:"required,max=50"`
	StartDate core.Date `json:"start_date" validate:"required"`
	EndDate   core.Date `json:"end_date" validate:"required"`
	IsCurrent bool      `json:"is_current"`
}

func (ny *NewAcademicYear) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excluded ...AcademicYear) error {
	ny.Name = core.CleanString(ny.Name)
	if err := validate.Struct(ny); err != nil {
		return err
	}
	if !ny.StartDate.Before(ny.EndDate.Time) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "must be after start_date"})
	}
	return svc.checkUniqueness(ctx, ny.Name, excluded...)
}

type Repository interface {
	CheckNameUniqueness(ctx context.Context, name string, excluded []AcademicYear, exec ...core.DBExecutor) error
	CreateYear(ctx context.Context, year AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
	QueryYears(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]AcademicYear, error)
	GetYear(ctx context.Context, id string, exec ...core.DBExecutor) (AcademicYear, error)
	// GetCurrentYear returns ErrNoCurrentYear when no year is flagged current.
	GetCurrentYear(ctx context.Context, exec ...core.DBExecutor) (AcademicYear, error)
	UpdateYear(ctx context.Context, year AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
	// ClearCurrent unflags every current year except exceptID.
	ClearCurrent(ctx context.Context, exceptID string, exec ...core.DBExecutor) error
	// DeleteYear returns ErrInUse when other records reference the year.
	DeleteYear(ctx context.Context, id string, exec ...core.DBExecutor) error
}

type Service struct {
	tx   core.Transactor
	repo Repository
}

func NewService(tx core.Transactor, repo Repository) *Service {
	return &Service{tx: tx, repo: repo}
}

func (svc *Service) checkUniqueness(ctx context.Context, name string, excluded ...AcademicYear) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, excluded); err != nil {
		if errors.Cause(err) == ErrNameExists {
			return core.NewConflictError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
		}
		return errors.Wrap(err, "checking name uniqueness")
	}
	return nil
}

// Create adds a year. A new current year takes the flag from the previous one.
func (svc *Service) Create(ctx context.Context, ny NewAcademicYear) (AcademicYear, error) {
	now := time.Now().UTC()
	year := AcademicYear{
		Name:      ny.Name,
		StartDate: ny.StartDate,
		EndDate:   ny.EndDate,
		IsCurrent: ny.IsCurrent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if year.IsCurrent {
			if err := svc.repo.ClearCurrent(ctx, "", exec); err != nil {
				return errors.Wrap(err, "clearing current year")
			}
		}
		var err error
		year, err = svc.repo.CreateYear(ctx, year, exec)
		return errors.Wrap(err, "creating academic year")
	})
	return year, err
}

func (svc *Service) Query(ctx context.Context, ordering []core.DBOrdering) ([]AcademicYear, error) {
	return svc.repo.QueryYears(ctx, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.GetYear(ctx, id)
}

func (svc *Service) Current(ctx context.Context) (AcademicYear, error) {
	return svc.repo.GetCurrentYear(ctx)
}

func (svc *Service) Update(ctx context.Context, year AcademicYear, data NewAcademicYear) (AcademicYear, error) {
	year.Name = data.Name
	year.StartDate = data.StartDate
	year.EndDate = data.EndDate
	year.IsCurrent = data.IsCurrent
	year.UpdatedAt = time.Now().UTC()

	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if year.IsCurrent {
			if err := svc.repo.ClearCurrent(ctx, year.ID, exec); err != nil {
				return errors.Wrap(err, "clearing current year")
			}
		}
		var err error
		year, err = svc.repo.UpdateYear(ctx, year, exec)
		return errors.Wrap(err, "updating academic year")
	})
	return year, err
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteYear(ctx, id); err != nil {
		if errors.Cause(err) == ErrInUse {
			return core.NewConflictError(ErrInUse)
		}
		return err
	}
	return nil
}
