package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/student"
)

const (
	studentColumns = "id, admission_no, first_name, last_name, gender, date_of_birth, email, phone, " +
		"guardian_name, guardian_phone, guardian_email, address, created_at, updated_at"
	enrollmentColumns = "id, student_id, academic_year_id, grade, section, fee, status, created_at, updated_at"
)

var studentOrderings = map[string]string{
	"admission_no": "admission_no",
	"first_name":   "first_name",
	"last_name":    "last_name",
	"created_at":   "created_at",
}

type studentRow struct {
	ID            string      `db:"id"`
	AdmissionNo   string      `db:"admission_no"`
	FirstName     string      `db:"first_name"`
	LastName      string      `db:"last_name"`
	Gender        null.String `db:"gender"`
	DateOfBirth   core.Date   `db:"date_of_birth"`
	Email         null.String `db:"email"`
	Phone         null.String `db:"phone"`
	GuardianName  null.String `db:"guardian_name"`
	GuardianPhone null.String `db:"guardian_phone"`
	GuardianEmail null.String `db:"guardian_email"`
	Address       null.String `db:"address"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

type enrollmentRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	AcademicYearID string          `db:"academic_year_id"`
	Grade          string          `db:"grade"`
	Section        null.String     `db:"section"`
	Fee            decimal.Decimal `db:"fee"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// nullString stores blank strings as NULL.
func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) toRow(st student.Student) studentRow {
	return studentRow{
		ID:            st.ID,
		AdmissionNo:   st.AdmissionNo,
		FirstName:     st.FirstName,
		LastName:      st.LastName,
		Gender:        nullString(st.Gender),
		DateOfBirth:   st.DateOfBirth,
		Email:         nullString(st.Email),
		Phone:         nullString(st.Phone),
		GuardianName:  nullString(st.GuardianName),
		GuardianPhone: nullString(st.GuardianPhone),
		GuardianEmail: nullString(st.GuardianEmail),
		Address:       nullString(st.Address),
		CreatedAt:     st.CreatedAt.UTC(),
		UpdatedAt:     st.UpdatedAt.UTC(),
	}
}

func (repo studentRepository) fromRow(row studentRow) student.Student {
	return student.Student{
		ID:            row.ID,
		AdmissionNo:   row.AdmissionNo,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Gender:        row.Gender.String,
		DateOfBirth:   row.DateOfBirth,
		Email:         row.Email.String,
		Phone:         row.Phone.String,
		GuardianName:  row.GuardianName.String,
		GuardianPhone: row.GuardianPhone.String,
		GuardianEmail: row.GuardianEmail.String,
		Address:       row.Address.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (repo studentRepository) fromEnrollmentRow(row enrollmentRow) student.Enrollment {
	return student.Enrollment{
		ID:             row.ID,
		StudentID:      row.StudentID,
		AcademicYearID: row.AcademicYearID,
		Grade:          row.Grade,
		Section:        row.Section.String,
		Fee:            row.Fee,
		Status:         row.Status,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (repo studentRepository) toEnrollmentRow(enr student.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:             enr.ID,
		StudentID:      enr.StudentID,
		AcademicYearID: enr.AcademicYearID,
		Grade:          enr.Grade,
		Section:        nullString(enr.Section),
		Fee:            enr.Fee,
		Status:         enr.Status,
		CreatedAt:      enr.CreatedAt.UTC(),
		UpdatedAt:      enr.UpdatedAt.UTC(),
	}
}

func (repo studentRepository) CheckAdmissionNoUniqueness(ctx context.Context, admissionNo string, excluded []student.Student, exec ...core.DBExecutor) error {
	var w whereBuilder
	w.add("admission_no = ?", admissionNo)
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, st := range excluded {
			ids = append(ids, st.ID)
		}
		w.add("id NOT IN (?)", ids)
	}

	query, args, err := sqlx.In("SELECT EXISTS (SELECT 1 FROM student"+w.String()+")", w.args...)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	ext := getExec(repo.db, exec)

	var found bool
	if err = sqlx.GetContext(ctx, ext, &found, ext.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking student uniqueness")
	}
	if found {
		return student.ErrAdmissionNoExists
	}
	return nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, st student.Student, exec ...core.DBExecutor) (student.Student, error) {
	st.ID = uuid.New().String()
	q := `INSERT INTO student (` + studentColumns + `)
		VALUES (:id, :admission_no, :first_name, :last_name, :gender, :date_of_birth, :email, :phone,
			:guardian_name, :guardian_phone, :guardian_email, :address, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(st)); err != nil {
		if isUniqueViolation(err, "student_admission_no_key") {
			return student.Student{}, student.ErrAdmissionNoExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	var w whereBuilder

	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add("(first_name ILIKE ? OR last_name ILIKE ? OR admission_no ILIKE ? OR guardian_name ILIKE ?)", val, val, val, val)
		}
		if filter.AcademicYearID != "" || filter.Grade != "" {
			var ew whereBuilder
			ew.add("e.student_id = student.id")
			if filter.AcademicYearID != "" {
				ew.add("e.academic_year_id = ?", filter.AcademicYearID)
			}
			if filter.Grade != "" {
				ew.add("e.grade = ?", filter.Grade)
			}
			w.add("EXISTS (SELECT 1 FROM enrollment e"+ew.String()+")", ew.args...)
		}
	}

	ext := getExec(repo.db, exec)
	q := "SELECT " + studentColumns + " FROM student" + w.String() +
		core.OrderByClause(core.CleanOrdering(ordering, studentOrderings), "last_name ASC, first_name ASC")

	var rows []studentRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.fromRow(row))
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, "SELECT "+studentColumns+" FROM student WHERE id = $1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	return repo.fromRow(row), nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, st student.Student, exec ...core.DBExecutor) (student.Student, error) {
	q := `UPDATE student SET admission_no = :admission_no, first_name = :first_name, last_name = :last_name,
		gender = :gender, date_of_birth = :date_of_birth, email = :email, phone = :phone,
		guardian_name = :guardian_name, guardian_phone = :guardian_phone, guardian_email = :guardian_email,
		address = :address, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(st))
	if err != nil {
		if isUniqueViolation(err, "student_admission_no_key") {
			return student.Student{}, student.ErrAdmissionNoExists
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return st, nil
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return student.ErrNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, "DELETE FROM student WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return student.ErrInUse
		}
		return errors.Wrap(err, "deleting student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.ErrNotFound
	}
	return nil
}

func (repo studentRepository) CreateEnrollment(ctx context.Context, enr student.Enrollment, exec ...core.DBExecutor) (student.Enrollment, error) {
	enr.ID = uuid.New().String()
	q := `INSERT INTO enrollment (` + enrollmentColumns + `)
		VALUES (:id, :student_id, :academic_year_id, :grade, :section, :fee, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toEnrollmentRow(enr)); err != nil {
		if isUniqueViolation(err, "enrollment_student_year_key") {
			return student.Enrollment{}, student.ErrAlreadyEnrolled
		}
		return student.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo studentRepository) QueryEnrollments(ctx context.Context, filter student.EnrollmentFilter, exec ...core.DBExecutor) ([]student.Enrollment, error) {
	var w whereBuilder
	if filter.StudentID != "" {
		w.add("e.student_id = ?", filter.StudentID)
	}
	if filter.AcademicYearID != "" {
		w.add("e.academic_year_id = ?", filter.AcademicYearID)
	}

	ext := getExec(repo.db, exec)
	q := `SELECT e.id, e.student_id, e.academic_year_id, e.grade, e.section, e.fee, e.status, e.created_at, e.updated_at
		FROM enrollment e JOIN academic_year y ON y.id = e.academic_year_id` + w.String() +
		" ORDER BY y.start_date DESC"

	var rows []enrollmentRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]student.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, repo.fromEnrollmentRow(row))
	}
	return enrs, nil
}

func (repo studentRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (student.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Enrollment{}, student.ErrEnrollmentNotFound
	}
	var row enrollmentRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, "SELECT "+enrollmentColumns+" FROM enrollment WHERE id = $1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Enrollment{}, student.ErrEnrollmentNotFound
		}
		return student.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	return repo.fromEnrollmentRow(row), nil
}

func (repo studentRepository) UpdateEnrollment(ctx context.Context, enr student.Enrollment, exec ...core.DBExecutor) (student.Enrollment, error) {
	q := `UPDATE enrollment SET grade = :grade, section = :section, fee = :fee, status = :status, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toEnrollmentRow(enr))
	if err != nil {
		return student.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Enrollment{}, student.ErrEnrollmentNotFound
	}
	return enr, nil
}

func (repo studentRepository) DeleteEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return student.ErrEnrollmentNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, "DELETE FROM enrollment WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.ErrEnrollmentNotFound
	}
	return nil
}
