package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) admissionNoTaken(admissionNo, exceptID string) bool {
	for _, st := range repo.db.students {
		if st.ID != exceptID && st.AdmissionNo == admissionNo {
			return true
		}
	}
	return false
}

func (repo *studentRepository) CheckAdmissionNoUniqueness(_ context.Context, admissionNo string, excluded []student.Student, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

outer:
	for _, st := range repo.db.students {
		if st.AdmissionNo != admissionNo {
			continue
		}
		for _, ex := range excluded {
			if ex.ID == st.ID {
				continue outer
			}
		}
		return student.ErrAdmissionNoExists
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, st student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.admissionNoTaken(st.AdmissionNo, "") {
		return student.Student{}, student.ErrAdmissionNoExists
	}
	st.ID = uuid.New().String()
	repo.db.students[st.ID] = st
	return st, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrolled := func(st student.Student) bool {
		for _, enr := range repo.db.enrollments {
			if enr.StudentID != st.ID {
				continue
			}
			if filter.AcademicYearID != "" && enr.AcademicYearID != filter.AcademicYearID {
				continue
			}
			if filter.Grade != "" && enr.Grade != filter.Grade {
				continue
			}
			return true
		}
		return false
	}

	students := make([]student.Student, 0, len(repo.db.students))
	for _, st := range repo.db.students {
		if filter != nil {
			if filter.Search != "" &&
				!containsFold(st.FirstName, filter.Search) &&
				!containsFold(st.LastName, filter.Search) &&
				!containsFold(st.AdmissionNo, filter.Search) &&
				!containsFold(st.GuardianName, filter.Search) {
				continue
			}
			if (filter.AcademicYearID != "" || filter.Grade != "") && !enrolled(st) {
				continue
			}
		}
		students = append(students, st)
	}

	byName := func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	}
	sortBy(len(students), func(i, j int) { students[i], students[j] = students[j], students[i] }, ordering,
		map[string]lessFunc{
			"admission_no": func(i, j int) bool { return students[i].AdmissionNo < students[j].AdmissionNo },
			"first_name":   func(i, j int) bool { return students[i].FirstName < students[j].FirstName },
			"last_name":    byName,
			"created_at":   func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) },
		},
		byName,
	)
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id string, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if st, ok := repo.db.students[id]; ok {
		return st, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, st student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[st.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	if repo.admissionNoTaken(st.AdmissionNo, st.ID) {
		return student.Student{}, student.ErrAdmissionNoExists
	}
	repo.db.students[st.ID] = st
	return st, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[id]; !ok {
		return student.ErrNotFound
	}
	for _, enr := range repo.db.enrollments {
		if enr.StudentID == id {
			return student.ErrInUse
		}
	}
	for _, pmt := range repo.db.payments {
		if pmt.StudentID == id {
			return student.ErrInUse
		}
	}
	delete(repo.db.students, id)
	return nil
}

func (repo *studentRepository) CreateEnrollment(_ context.Context, enr student.Enrollment, _ ...core.DBExecutor) (student.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, e := range repo.db.enrollments {
		if e.StudentID == enr.StudentID && e.AcademicYearID == enr.AcademicYearID {
			return student.Enrollment{}, student.ErrAlreadyEnrolled
		}
	}
	enr.ID = uuid.New().String()
	repo.db.enrollments[enr.ID] = enr
	return enr, nil
}

func (repo *studentRepository) QueryEnrollments(_ context.Context, filter student.EnrollmentFilter, _ ...core.DBExecutor) ([]student.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := make([]student.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if filter.StudentID != "" && enr.StudentID != filter.StudentID {
			continue
		}
		if filter.AcademicYearID != "" && enr.AcademicYearID != filter.AcademicYearID {
			continue
		}
		enrs = append(enrs, enr)
	}

	// latest year first
	start := func(i int) core.Date { return repo.db.years[enrs[i].AcademicYearID].StartDate }
	sortBy(len(enrs), func(i, j int) { enrs[i], enrs[j] = enrs[j], enrs[i] }, nil, nil,
		func(i, j int) bool { return start(i).After(start(j).Time) },
	)
	return enrs, nil
}

func (repo *studentRepository) GetEnrollment(_ context.Context, id string, _ ...core.DBExecutor) (student.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.enrollments[id]; ok {
		return enr, nil
	}
	return student.Enrollment{}, student.ErrEnrollmentNotFound
}

func (repo *studentRepository) UpdateEnrollment(_ context.Context, enr student.Enrollment, _ ...core.DBExecutor) (student.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.enrollments[enr.ID]; !ok {
		return student.Enrollment{}, student.ErrEnrollmentNotFound
	}
	repo.db.enrollments[enr.ID] = enr
	return enr, nil
}

func (repo *studentRepository) DeleteEnrollment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.enrollments[id]; !ok {
		return student.ErrEnrollmentNotFound
	}
	delete(repo.db.enrollments, id)
	return nil
}
