// Package sqlxrepos implements the core repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// getExec returns the executor handed over by the service (a transaction), or db.
func getExec(db *sqlx.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}

// constraintViolation returns the name of the violated constraint if err is a postgres error with code.
func constraintViolation(err error, code string) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == code {
		return pqErr.Constraint, true
	}
	return "", false
}

func isUniqueViolation(err error, constraints ...string) bool {
	name, ok := constraintViolation(err, uniqueViolation)
	if !ok {
		return false
	}
	return len(constraints) == 0 || core.StringInSlice(name, constraints)
}

func isForeignKeyViolation(err error) bool {
	_, ok := constraintViolation(err, foreignKeyViolation)
	return ok
}

// whereBuilder collects AND-ed conditions written with `?` bind vars.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern escapes s for use in a LIKE/ILIKE substring match.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func likePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}
