package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/setting"
)

type settingRepository struct {
	db *DB
}

var _ setting.Repository = (*settingRepository)(nil)

func NewSettingRepository(db *DB) *settingRepository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) QuerySettings(_ context.Context, _ ...core.DBExecutor) ([]setting.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	settings := make([]setting.Setting, 0, len(repo.db.settings))
	for _, s := range repo.db.settings {
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })
	return settings, nil
}

func (repo *settingRepository) UpsertSettings(_ context.Context, settings []setting.Setting, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range settings {
		repo.db.settings[s.Name] = s
	}
	return nil
}
