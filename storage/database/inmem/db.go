// Package inmemdb implements the core repositories in memory. It backs the tests.
package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
)

// DB holds every table behind a single lock.
type DB struct {
	sync.RWMutex
	users       map[string]user.User
	years       map[string]academicyear.AcademicYear
	students    map[string]student.Student
	enrollments map[string]student.Enrollment
	payments    map[string]payment.Payment
	receipts    map[string]receipt.Receipt
	settings    map[string]setting.Setting
}

func Open() *DB {
	db := new(DB)
	db.Reset()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()

	db.users = make(map[string]user.User)
	db.years = make(map[string]academicyear.AcademicYear)
	db.students = make(map[string]student.Student)
	db.enrollments = make(map[string]student.Enrollment)
	db.payments = make(map[string]payment.Payment)
	db.receipts = make(map[string]receipt.Receipt)
	db.settings = make(map[string]setting.Setting)
}

// Transactor runs transactions one at a time; the tables are restored when fn fails.
// Repository calls made outside a transaction are not isolated from it.
type Transactor struct {
	db *DB
	mu *sync.Mutex
}

var _ core.Transactor = Transactor{}

func NewTransactor(db *DB) Transactor {
	return Transactor{db: db, mu: new(sync.Mutex)}
}

func (t Transactor) WithinTx(_ context.Context, fn core.TxFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.db.snapshot()
	if err := fn(nil); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type tables struct {
	users       map[string]user.User
	years       map[string]academicyear.AcademicYear
	students    map[string]student.Student
	enrollments map[string]student.Enrollment
	payments    map[string]payment.Payment
	receipts    map[string]receipt.Receipt
	settings    map[string]setting.Setting
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (db *DB) snapshot() tables {
	db.RLock()
	defer db.RUnlock()

	return tables{
		users:       copyMap(db.users),
		years:       copyMap(db.years),
		students:    copyMap(db.students),
		enrollments: copyMap(db.enrollments),
		payments:    copyMap(db.payments),
		receipts:    copyMap(db.receipts),
		settings:    copyMap(db.settings),
	}
}

func (db *DB) restore(t tables) {
	db.Lock()
	defer db.Unlock()

	db.users = t.users
	db.years = t.years
	db.students = t.students
	db.enrollments = t.enrollments
	db.payments = t.payments
	db.receipts = t.receipts
	db.settings = t.settings
}

type lessFunc func(i, j int) bool

// sortBy orders n items by the first matching orderings, falling back to fallback.
func sortBy(n int, swap func(i, j int), ordering []core.DBOrdering, fields map[string]lessFunc, fallback lessFunc) {
	less := fallback
	for _, ord := range ordering {
		if f, ok := fields[strings.ToLower(ord.Field)]; ok {
			if ord.Ascending {
				less = f
			} else {
				less = func(i, j int) bool { return f(j, i) }
			}
			break
		}
	}
	sort.Sort(sorter{n: n, less: less, swap: swap})
}

type sorter struct {
	n    int
	less lessFunc
	swap func(i, j int)
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
