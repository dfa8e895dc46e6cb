package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
)

type yearRepository struct {
	db *DB
}

var _ academicyear.Repository = (*yearRepository)(nil)

func NewAcademicYearRepository(db *DB) *yearRepository {
	return &yearRepository{db: db}
}

func (repo *yearRepository) nameTaken(name, exceptID string) bool {
	for _, y := range repo.db.years {
		if y.ID != exceptID && strings.EqualFold(y.Name, name) {
			return true
		}
	}
	return false
}

func (repo *yearRepository) CheckNameUniqueness(_ context.Context, name string, excluded []academicyear.AcademicYear, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, y := range repo.db.years {
		if !strings.EqualFold(y.Name, name) {
			continue
		}
		skip := false
		for _, ex := range excluded {
			if ex.ID == y.ID {
				skip = true
				break
			}
		}
		if !skip {
			return academicyear.ErrNameExists
		}
	}
	return nil
}

func (repo *yearRepository) CreateYear(_ context.Context, year academicyear.AcademicYear, _ ...core.DBExecutor) (academicyear.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.nameTaken(year.Name, "") {
		return academicyear.AcademicYear{}, academicyear.ErrNameExists
	}
	year.ID = uuid.New().String()
	repo.db.years[year.ID] = year
	return year, nil
}

func (repo *yearRepository) QueryYears(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]academicyear.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	years := make([]academicyear.AcademicYear, 0, len(repo.db.years))
	for _, y := range repo.db.years {
		years = append(years, y)
	}
	sortBy(len(years), func(i, j int) { years[i], years[j] = years[j], years[i] }, ordering,
		map[string]lessFunc{
			"name":       func(i, j int) bool { return years[i].Name < years[j].Name },
			"start_date": func(i, j int) bool { return years[i].StartDate.Before(years[j].StartDate.Time) },
			"end_date":   func(i, j int) bool { return years[i].EndDate.Before(years[j].EndDate.Time) },
			"created_at": func(i, j int) bool { return years[i].CreatedAt.Before(years[j].CreatedAt) },
		},
		func(i, j int) bool { return years[i].StartDate.After(years[j].StartDate.Time) },
	)
	return years, nil
}

func (repo *yearRepository) GetYear(_ context.Context, id string, _ ...core.DBExecutor) (academicyear.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if y, ok := repo.db.years[id]; ok {
		return y, nil
	}
	return academicyear.AcademicYear{}, academicyear.ErrNotFound
}

func (repo *yearRepository) GetCurrentYear(_ context.Context, _ ...core.DBExecutor) (academicyear.AcademicYear, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, y := range repo.db.years {
		if y.IsCurrent {
			return y, nil
		}
	}
	return academicyear.AcademicYear{}, academicyear.ErrNoCurrentYear
}

func (repo *yearRepository) UpdateYear(_ context.Context, year academicyear.AcademicYear, _ ...core.DBExecutor) (academicyear.AcademicYear, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.years[year.ID]; !ok {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	if repo.nameTaken(year.Name, year.ID) {
		return academicyear.AcademicYear{}, academicyear.ErrNameExists
	}
	repo.db.years[year.ID] = year
	return year, nil
}

func (repo *yearRepository) ClearCurrent(_ context.Context, exceptID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, y := range repo.db.years {
		if y.IsCurrent && id != exceptID {
			y.IsCurrent = false
			repo.db.years[id] = y
		}
	}
	return nil
}

func (repo *yearRepository) DeleteYear(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.years[id]; !ok {
		return academicyear.ErrNotFound
	}
	for _, enr := range repo.db.enrollments {
		if enr.AcademicYearID == id {
			return academicyear.ErrInUse
		}
	}
	for _, pmt := range repo.db.payments {
		if pmt.AcademicYearID == id {
			return academicyear.ErrInUse
		}
	}
	for _, rcpt := range repo.db.receipts {
		if rcpt.AcademicYearID == id {
			return academicyear.ErrInUse
		}
	}
	delete(repo.db.years, id)
	return nil
}
