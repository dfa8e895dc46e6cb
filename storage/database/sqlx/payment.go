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
	"github.com/trezcool/risiti/core/payment"
)

const paymentColumns = "id, student_id, academic_year_id, amount, discount, payment_date, type, method, status, " +
	"reference, notes, created_by, created_at, updated_at"

var paymentOrderings = map[string]string{
	"payment_date": "payment_date",
	"amount":       "amount",
	"status":       "status",
	"type":         "type",
	"created_at":   "created_at",
}

type paymentRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	AcademicYearID string          `db:"academic_year_id"`
	Amount         decimal.Decimal `db:"amount"`
	Discount       decimal.Decimal `db:"discount"`
	PaymentDate    core.Date       `db:"payment_date"`
	Type           string          `db:"type"`
	Method         string          `db:"method"`
	Status         string          `db:"status"`
	Reference      null.String     `db:"reference"`
	Notes          null.String     `db:"notes"`
	CreatedBy      null.String     `db:"created_by"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo paymentRepository) toRow(pmt payment.Payment) paymentRow {
	return paymentRow{
		ID:             pmt.ID,
		StudentID:      pmt.StudentID,
		AcademicYearID: pmt.AcademicYearID,
		Amount:         pmt.Amount,
		Discount:       pmt.Discount,
		PaymentDate:    pmt.PaymentDate,
		Type:           pmt.Type,
		Method:         pmt.Method,
		Status:         pmt.Status,
		Reference:      nullString(pmt.Reference),
		Notes:          nullString(pmt.Notes),
		CreatedBy:      nullString(pmt.CreatedBy),
		CreatedAt:      pmt.CreatedAt.UTC(),
		UpdatedAt:      pmt.UpdatedAt.UTC(),
	}
}

func (repo paymentRepository) fromRow(row paymentRow) payment.Payment {
	return payment.Payment{
		ID:             row.ID,
		StudentID:      row.StudentID,
		AcademicYearID: row.AcademicYearID,
		Amount:         row.Amount,
		Discount:       row.Discount,
		PaymentDate:    row.PaymentDate,
		Type:           row.Type,
		Method:         row.Method,
		Status:         row.Status,
		Reference:      row.Reference.String,
		Notes:          row.Notes.String,
		CreatedBy:      row.CreatedBy.String,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	pmt.ID = uuid.New().String()
	q := `INSERT INTO payment (` + paymentColumns + `)
		VALUES (:id, :student_id, :academic_year_id, :amount, :discount, :payment_date, :type, :method, :status,
			:reference, :notes, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(pmt)); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo paymentRepository) QueryPayments(ctx context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]payment.Payment, error) {
	var w whereBuilder

	if filter != nil {
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.AcademicYearID != "" {
			w.add("academic_year_id = ?", filter.AcademicYearID)
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		if filter.Type != "" {
			w.add("type = ?", filter.Type)
		}
		if filter.Method != "" {
			w.add("method = ?", filter.Method)
		}
		if !filter.DateFrom.IsZero() {
			w.add("payment_date >= ?", filter.DateFrom)
		}
		if !filter.DateTo.IsZero() {
			w.add("payment_date <= ?", filter.DateTo)
		}
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add("(reference ILIKE ? OR notes ILIKE ?)", val, val)
		}
	}

	ext := getExec(repo.db, exec)
	q := "SELECT " + paymentColumns + " FROM payment" + w.String() +
		core.OrderByClause(core.CleanOrdering(ordering, paymentOrderings), "payment_date DESC, created_at DESC")

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, repo.fromRow(row))
	}
	return payments, nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, filter payment.GetFilter, exec ...core.DBExecutor) (payment.Payment, error) {
	if _, err := uuid.Parse(filter.ID); err != nil {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, "SELECT "+paymentColumns+" FROM payment WHERE id = $1", filter.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "finding payment")
	}
	return repo.fromRow(row), nil
}

func (repo paymentRepository) UpdatePayment(ctx context.Context, pmt payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	q := `UPDATE payment SET amount = :amount, discount = :discount, payment_date = :payment_date, type = :type,
		method = :method, status = :status, reference = :reference, notes = :notes, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(pmt))
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, nil
}

func (repo paymentRepository) DeletePayment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return payment.ErrNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, "DELETE FROM payment WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return payment.ErrHasReceipt
		}
		return errors.Wrap(err, "deleting payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (repo paymentRepository) SummarizePayments(ctx context.Context, yearID string, exec ...core.DBExecutor) ([]payment.StatusSummary, error) {
	q := `SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(discount), 0) AS discount,
			COALESCE(SUM(GREATEST(amount - discount, 0)), 0) AS total
		FROM payment WHERE academic_year_id = $1
		GROUP BY status`

	var rows []struct {
		Status   string          `db:"status"`
		Count    int             `db:"count"`
		Amount   decimal.Decimal `db:"amount"`
		Discount decimal.Decimal `db:"discount"`
		Total    decimal.Decimal `db:"total"`
	}
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, q, yearID); err != nil {
		return nil, errors.Wrap(err, "summarizing payments")
	}
	summaries := make([]payment.StatusSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, payment.StatusSummary(row))
	}
	return summaries, nil
}
