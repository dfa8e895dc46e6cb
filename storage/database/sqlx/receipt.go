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
	"github.com/trezcool/risiti/core/receipt"
)

const receiptColumns = "id, number, sequence, payment_id, student_id, academic_year_id, amount, discount, total, " +
	"generated_at, signed_by, email_sent, email_sent_at"

var receiptOrderings = map[string]string{
	"number":       "number",
	"generated_at": "generated_at",
	"total":        "total",
}

type receiptRow struct {
	ID             string          `db:"id"`
	Number         string          `db:"number"`
	Sequence       int             `db:"sequence"`
	PaymentID      string          `db:"payment_id"`
	StudentID      string          `db:"student_id"`
	AcademicYearID string          `db:"academic_year_id"`
	Amount         decimal.Decimal `db:"amount"`
	Discount       decimal.Decimal `db:"discount"`
	Total          decimal.Decimal `db:"total"`
	GeneratedAt    time.Time       `db:"generated_at"`
	SignedBy       null.String     `db:"signed_by"`
	EmailSent      bool            `db:"email_sent"`
	EmailSentAt    null.Time       `db:"email_sent_at"`
}

type receiptRepository struct {
	db *sqlx.DB
}

var _ receipt.Repository = (*receiptRepository)(nil)

func NewReceiptRepository(db *sqlx.DB) *receiptRepository {
	return &receiptRepository{db: db}
}

func (repo receiptRepository) toRow(rcpt receipt.Receipt) receiptRow {
	return receiptRow{
		ID:             rcpt.ID,
		Number:         rcpt.Number,
		Sequence:       rcpt.Sequence,
		PaymentID:      rcpt.PaymentID,
		StudentID:      rcpt.StudentID,
		AcademicYearID: rcpt.AcademicYearID,
		Amount:         rcpt.Amount,
		Discount:       rcpt.Discount,
		Total:          rcpt.Total,
		GeneratedAt:    rcpt.GeneratedAt.UTC(),
		SignedBy:       nullString(rcpt.SignedBy),
		EmailSent:      rcpt.EmailSent,
		EmailSentAt:    null.NewTime(rcpt.EmailSentAt.UTC(), !rcpt.EmailSentAt.IsZero()),
	}
}

func (repo receiptRepository) fromRow(row receiptRow) receipt.Receipt {
	rcpt := receipt.Receipt{
		ID:             row.ID,
		Number:         row.Number,
		Sequence:       row.Sequence,
		PaymentID:      row.PaymentID,
		StudentID:      row.StudentID,
		AcademicYearID: row.AcademicYearID,
		Amount:         row.Amount,
		Discount:       row.Discount,
		Total:          row.Total,
		GeneratedAt:    row.GeneratedAt.UTC(),
		SignedBy:       row.SignedBy.String,
		EmailSent:      row.EmailSent,
	}
	if row.EmailSentAt.Valid {
		rcpt.EmailSentAt = row.EmailSentAt.Time.UTC()
	}
	return rcpt
}

// scope only holds letters, digits and dashes: it needs no LIKE escaping.
func (repo receiptRepository) NextSequence(ctx context.Context, yearID, scope string, exec ...core.DBExecutor) (int, error) {
	var seq int
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &seq,
		"SELECT COALESCE(MAX(sequence), 0) + 1 FROM receipt WHERE academic_year_id = $1 OR ($2 <> '' AND number LIKE $2 || '%')",
		yearID, scope)
	return seq, errors.Wrap(err, "selecting next receipt sequence")
}

func (repo receiptRepository) CreateReceipt(ctx context.Context, rcpt receipt.Receipt, exec ...core.DBExecutor) (receipt.Receipt, error) {
	rcpt.ID = uuid.New().String()
	q := `INSERT INTO receipt (` + receiptColumns + `)
		VALUES (:id, :number, :sequence, :payment_id, :student_id, :academic_year_id, :amount, :discount, :total,
			:generated_at, :signed_by, :email_sent, :email_sent_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(rcpt)); err != nil {
		switch {
		case isUniqueViolation(err, "receipt_payment_id_key"):
			return receipt.Receipt{}, receipt.ErrAlreadyIssued
		case isUniqueViolation(err, "receipt_number_key", "receipt_year_sequence_key"):
			return receipt.Receipt{}, receipt.ErrNumberTaken
		}
		return receipt.Receipt{}, errors.Wrap(err, "inserting receipt")
	}
	return rcpt, nil
}

func (repo receiptRepository) GetReceipt(ctx context.Context, filter receipt.GetFilter, exec ...core.DBExecutor) (receipt.Receipt, error) {
	var (
		cond string
		arg  string
	)
	switch {
	case filter.ID != "":
		cond, arg = "id = $1", filter.ID
	case filter.PaymentID != "":
		cond, arg = "payment_id = $1", filter.PaymentID
	case filter.Number != "":
		cond, arg = "number = $1", filter.Number
	default:
		return receipt.Receipt{}, receipt.ErrNotFound
	}
	if filter.Number == "" {
		if _, err := uuid.Parse(arg); err != nil {
			return receipt.Receipt{}, receipt.ErrNotFound
		}
	}

	var row receiptRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, "SELECT "+receiptColumns+" FROM receipt WHERE "+cond, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return receipt.Receipt{}, receipt.ErrNotFound
		}
		return receipt.Receipt{}, errors.Wrap(err, "finding receipt")
	}
	return repo.fromRow(row), nil
}

func (repo receiptRepository) QueryReceipts(ctx context.Context, filter *receipt.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]receipt.Receipt, error) {
	var w whereBuilder

	if filter != nil {
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.AcademicYearID != "" {
			w.add("academic_year_id = ?", filter.AcademicYearID)
		}
		if filter.Number != "" {
			w.add("number ILIKE ?", likePrefix(filter.Number))
		}
		if !filter.DateFrom.IsZero() {
			w.add("generated_at >= ?", filter.DateFrom.Time)
		}
		if !filter.DateTo.IsZero() {
			w.add("generated_at < ?", filter.DateTo.AddDate(0, 0, 1))
		}
		if filter.EmailSent != "" {
			w.add("email_sent = ?", filter.EmailSent == "true")
		}
	}

	ext := getExec(repo.db, exec)
	q := "SELECT " + receiptColumns + " FROM receipt" + w.String() +
		core.OrderByClause(core.CleanOrdering(ordering, receiptOrderings), "generated_at DESC")

	var rows []receiptRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying receipts")
	}
	receipts := make([]receipt.Receipt, 0, len(rows))
	for _, row := range rows {
		receipts = append(receipts, repo.fromRow(row))
	}
	return receipts, nil
}

func (repo receiptRepository) MarkEmailSent(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (receipt.Receipt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return receipt.Receipt{}, receipt.ErrNotFound
	}
	var row receiptRow
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row,
		"UPDATE receipt SET email_sent = TRUE, email_sent_at = $2 WHERE id = $1 RETURNING "+receiptColumns, id, at.UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return receipt.Receipt{}, receipt.ErrNotFound
		}
		return receipt.Receipt{}, errors.Wrap(err, "marking receipt email sent")
	}
	return repo.fromRow(row), nil
}
