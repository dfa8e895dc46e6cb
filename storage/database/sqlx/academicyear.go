package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
)

const yearColumns = "id, name, start_date, end_date, is_current, created_at, updated_at"

var yearOrderings = map[string]string{
	"name":       "name",
	"start_date": "start_date",
	"end_date":   "end_date",
	"created_at": "created_at",
}

type yearRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StartDate core.Date `db:"start_date"`
	EndDate   core.Date `db:"end_date"`
	IsCurrent bool      `db:"is_current"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row yearRow) toYear() academicyear.AcademicYear {
	return academicyear.AcademicYear{
		ID:        row.ID,
		Name:      row.Name,
		StartDate: row.StartDate,
		EndDate:   row.EndDate,
		IsCurrent: row.IsCurrent,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type yearRepository struct {
	db *sqlx.DB
}

var _ academicyear.Repository = (*yearRepository)(nil)

func NewAcademicYearRepository(db *sqlx.DB) *yearRepository {
	return &yearRepository{db: db}
}

func (repo yearRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return academicyear.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo yearRepository) CheckNameUniqueness(ctx context.Context, name string, excluded []academicyear.AcademicYear, exec ...core.DBExecutor) error {
	var w whereBuilder
	w.add("LOWER(name) = LOWER(?)", name)
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, y := range excluded {
			ids = append(ids, y.ID)
		}
		w.add("id NOT IN (?)", ids)
	}

	query, args, err := sqlx.In("SELECT EXISTS (SELECT 1 FROM academic_year"+w.String()+")", w.args...)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	ext := getExec(repo.db, exec)

	var found bool
	if err = sqlx.GetContext(ctx, ext, &found, ext.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking academic year uniqueness")
	}
	if found {
		return academicyear.ErrNameExists
	}
	return nil
}

func (repo yearRepository) CreateYear(ctx context.Context, year academicyear.AcademicYear, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	year.ID = uuid.New().String()
	q := `INSERT INTO academic_year (` + yearColumns + `)
		VALUES (:id, :name, :start_date, :end_date, :is_current, :created_at, :updated_at)`
	row := yearRow{
		ID:        year.ID,
		Name:      year.Name,
		StartDate: year.StartDate,
		EndDate:   year.EndDate,
		IsCurrent: year.IsCurrent,
		CreatedAt: year.CreatedAt,
		UpdatedAt: year.UpdatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, row); err != nil {
		if isUniqueViolation(err, "academic_year_name_key") {
			return academicyear.AcademicYear{}, academicyear.ErrNameExists
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "inserting academic year")
	}
	return year, nil
}

func (repo yearRepository) QueryYears(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]academicyear.AcademicYear, error) {
	q := "SELECT " + yearColumns + " FROM academic_year" +
		core.OrderByClause(core.CleanOrdering(ordering, yearOrderings), "start_date DESC")

	var rows []yearRow
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying academic years")
	}
	years := make([]academicyear.AcademicYear, 0, len(rows))
	for _, row := range rows {
		years = append(years, row.toYear())
	}
	return years, nil
}

func (repo yearRepository) GetYear(ctx context.Context, id string, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	var row yearRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, "SELECT "+yearColumns+" FROM academic_year WHERE id = $1", id)
	if err != nil {
		return academicyear.AcademicYear{}, repo.trapNoRowsErr(err, "finding academic year")
	}
	return row.toYear(), nil
}

func (repo yearRepository) GetCurrentYear(ctx context.Context, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	var row yearRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, "SELECT "+yearColumns+" FROM academic_year WHERE is_current")
	if err != nil {
		if err == sql.ErrNoRows {
			return academicyear.AcademicYear{}, academicyear.ErrNoCurrentYear
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "finding current academic year")
	}
	return row.toYear(), nil
}

func (repo yearRepository) UpdateYear(ctx context.Context, year academicyear.AcademicYear, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	q := `UPDATE academic_year SET name = $2, start_date = $3, end_date = $4, is_current = $5, updated_at = $6
		WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		year.ID, year.Name, year.StartDate, year.EndDate, year.IsCurrent, year.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "academic_year_name_key") {
			return academicyear.AcademicYear{}, academicyear.ErrNameExists
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "updating academic year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	return year, nil
}

func (repo yearRepository) ClearCurrent(ctx context.Context, exceptID string, exec ...core.DBExecutor) error {
	var w whereBuilder
	w.add("is_current")
	if exceptID != "" {
		w.add("id <> ?", exceptID)
	}
	ext := getExec(repo.db, exec)
	_, err := ext.ExecContext(ctx, ext.Rebind("UPDATE academic_year SET is_current = FALSE"+w.String()), w.args...)
	return errors.Wrap(err, "clearing current academic year")
}

func (repo yearRepository) DeleteYear(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return academicyear.ErrNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, "DELETE FROM academic_year WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return academicyear.ErrInUse
		}
		return errors.Wrap(err, "deleting academic year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academicyear.ErrNotFound
	}
	return nil
}
