package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email && !isExcluded(usr.ID, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.users {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter != nil {
			if filter.Search != "" && !containsFold(usr.Name, filter.Search) && !containsFold(usr.Email, filter.Search) {
				continue
			}
			if len(filter.Roles) > 0 && !core.StringInSlice(usr.Role, filter.Roles) {
				continue
			}
			if active := filter.Active(); active != nil && usr.IsActive != *active {
				continue
			}
			if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom.Time) {
				continue
			}
			if !filter.CreatedTo.IsZero() && !usr.CreatedAt.Before(filter.CreatedTo.AddDate(0, 0, 1)) {
				continue
			}
		}
		users = append(users, usr)
	}

	sortBy(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] }, ordering,
		map[string]lessFunc{
			"name":       func(i, j int) bool { return users[i].Name < users[j].Name },
			"email":      func(i, j int) bool { return users[i].Email < users[j].Email },
			"role":       func(i, j int) bool { return users[i].Role < users[j].Role },
			"created_at": func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) },
			"last_login": func(i, j int) bool { return users[i].LastLogin.Before(users[j].LastLogin) },
		},
		func(i, j int) bool { return users[i].Name < users[j].Name },
	)
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
	case filter.Email != "":
		for _, usr := range repo.db.users {
			if usr.Email == filter.Email {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.users {
		if u.ID != usr.ID && u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cnt := 0
	for _, id := range ids {
		if _, ok := repo.db.users[id]; ok {
			delete(repo.db.users, id)
			cnt++
		}
	}
	// ON DELETE SET NULL
	for id, pmt := range repo.db.payments {
		if core.StringInSlice(pmt.CreatedBy, ids) {
			pmt.CreatedBy = ""
			repo.db.payments[id] = pmt
		}
	}
	for id, rcpt := range repo.db.receipts {
		if core.StringInSlice(rcpt.SignedBy, ids) {
			rcpt.SignedBy = ""
			repo.db.receipts[id] = rcpt
		}
	}
	return cnt, nil
}

func isExcluded(id string, excluded []user.User) bool {
	for _, usr := range excluded {
		if usr.ID == id {
			return true
		}
	}
	return false
}
