package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
)

var (
	// errors
	ErrNotFound           = errors.New("student not found")
	ErrAdmissionNoExists  = errors.New("a student with this admission number already exists")
	ErrInUse              = errors.New("student has enrollments, payments or receipts")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("student is already enrolled for this academic year")
)

type Repository interface {
	CheckAdmissionNoUniqueness(ctx context.Context, admissionNo string, excluded []Student, exec ...core.DBExecutor) error
	CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
	QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
	GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
	UpdateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
	// DeleteStudent returns ErrInUse when other records reference the student.
	DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error

	// CreateEnrollment returns ErrAlreadyEnrolled when the student has an enrollment for the year.
	CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
	QueryEnrollments(ctx context.Context, filter EnrollmentFilter, exec ...core.DBExecutor) ([]Enrollment, error)
	GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
	UpdateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
	DeleteEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) error
}

type Service struct {
	repo  Repository
	years academicyear.Repository
}

func NewService(repo Repository, years academicyear.Repository) *Service {
	return &Service{repo: repo, years: years}
}

func (svc *Service) checkUniqueness(ctx context.Context, admissionNo string, excluded ...Student) error {
	if err := svc.repo.CheckAdmissionNoUniqueness(ctx, admissionNo, excluded); err != nil {
		if errors.Cause(err) == ErrAdmissionNoExists {
			return core.NewConflictError(ErrAdmissionNoExists, core.FieldError{Field: "admission_no", Error: ErrAdmissionNoExists.Error()})
		}
		return errors.Wrap(err, "checking admission number uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	st := fromNewStudent(Student{CreatedAt: now}, ns)
	st.UpdatedAt = now
	st, err := svc.repo.CreateStudent(ctx, st)
	return st, errors.Wrap(err, "creating student")
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Update(ctx context.Context, st Student, data NewStudent) (Student, error) {
	st = fromNewStudent(st, data)
	st.UpdatedAt = time.Now().UTC()
	st, err := svc.repo.UpdateStudent(ctx, st)
	return st, errors.Wrap(err, "updating student")
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteStudent(ctx, id); err != nil {
		if errors.Cause(err) == ErrInUse {
			return core.NewConflictError(ErrInUse)
		}
		return err
	}
	return nil
}

func fromNewStudent(st Student, ns NewStudent) Student {
	st.AdmissionNo = ns.AdmissionNo
	st.FirstName = ns.FirstName
	st.LastName = ns.LastName
	st.Gender = ns.Gender
	st.DateOfBirth = ns.DateOfBirth
	st.Email = ns.Email
	st.Phone = ns.Phone
	st.GuardianName = ns.GuardianName
	st.GuardianPhone = ns.GuardianPhone
	st.GuardianEmail = ns.GuardianEmail
	st.Address = ns.Address
	return st
}

// Enroll places the student in the given academic year.
func (svc *Service) Enroll(ctx context.Context, st Student, ne NewEnrollment) (Enrollment, error) {
	if _, err := svc.years.GetYear(ctx, ne.AcademicYearID); err != nil {
		if errors.Cause(err) == academicyear.ErrNotFound {
			return Enrollment{}, core.NewValidationError(err, core.FieldError{Field: "academic_year_id", Error: err.Error()})
		}
		return Enrollment{}, errors.Wrap(err, "finding academic year")
	}

	now := time.Now().UTC()
	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:      st.ID,
		AcademicYearID: ne.AcademicYearID,
		Grade:          ne.Grade,
		Section:        ne.Section,
		Fee:            ne.Fee,
		Status:         ne.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			return Enrollment{}, core.NewConflictError(ErrAlreadyEnrolled, core.FieldError{Field: "academic_year_id", Error: ErrAlreadyEnrolled.Error()})
		}
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

func (svc *Service) Enrollments(ctx context.Context, studentID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, EnrollmentFilter{StudentID: studentID})
}

// EnrollmentFor returns the student's enrollment for the year, ErrEnrollmentNotFound if none.
func (svc *Service) EnrollmentFor(ctx context.Context, studentID, yearID string) (Enrollment, error) {
	enrs, err := svc.repo.QueryEnrollments(ctx, EnrollmentFilter{StudentID: studentID, AcademicYearID: yearID})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "querying enrollments")
	}
	if len(enrs) == 0 {
		return Enrollment{}, ErrEnrollmentNotFound
	}
	return enrs[0], nil
}

func (svc *Service) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

func (svc *Service) UpdateEnrollment(ctx context.Context, enr Enrollment, data UpdateEnrollment) (Enrollment, error) {
	enr.Grade = data.Grade
	enr.Section = data.Section
	enr.Fee = data.Fee
	enr.Status = data.Status
	enr.UpdatedAt = time.Now().UTC()
	enr, err := svc.repo.UpdateEnrollment(ctx, enr)
	return enr, errors.Wrap(err, "updating enrollment")
}

func (svc *Service) DeleteEnrollment(ctx context.Context, id string) error {
	return svc.repo.DeleteEnrollment(ctx, id)
}
