package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/setting"
)

type settingRow struct {
	Name      string    `db:"name"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

type settingRepository struct {
	db *sqlx.DB
}

var _ setting.Repository = (*settingRepository)(nil)

func NewSettingRepository(db *sqlx.DB) *settingRepository {
	return &settingRepository{db: db}
}

func (repo settingRepository) QuerySettings(ctx context.Context, exec ...core.DBExecutor) ([]setting.Setting, error) {
	var rows []settingRow
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, "SELECT name, value, updated_at FROM setting ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "querying settings")
	}
	settings := make([]setting.Setting, 0, len(rows))
	for _, row := range rows {
		settings = append(settings, setting.Setting{Name: row.Name, Value: row.Value, UpdatedAt: row.UpdatedAt.UTC()})
	}
	return settings, nil
}

func (repo settingRepository) UpsertSettings(ctx context.Context, settings []setting.Setting, exec ...core.DBExecutor) error {
	q := `INSERT INTO setting (name, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	ext := getExec(repo.db, exec)
	for _, s := range settings {
		if _, err := ext.ExecContext(ctx, q, s.Name, s.Value, s.UpdatedAt.UTC()); err != nil {
			return errors.Wrapf(err, "upserting setting %s", s.Name)
		}
	}
	return nil
}
