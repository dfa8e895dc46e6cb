package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/receipt"
)

type receiptRepository struct {
	db *DB
}

var _ receipt.Repository = (*receiptRepository)(nil)

func NewReceiptRepository(db *DB) *receiptRepository {
	return &receiptRepository{db: db}
}

func (repo *receiptRepository) NextSequence(_ context.Context, yearID, scope string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seq := 0
	for _, rcpt := range repo.db.receipts {
		inScope := rcpt.AcademicYearID == yearID || (scope != "" && strings.HasPrefix(rcpt.Number, scope))
		if inScope && rcpt.Sequence > seq {
			seq = rcpt.Sequence
		}
	}
	return seq + 1, nil
}

func (repo *receiptRepository) CreateReceipt(_ context.Context, rcpt receipt.Receipt, _ ...core.DBExecutor) (receipt.Receipt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, r := range repo.db.receipts {
		if r.PaymentID == rcpt.PaymentID {
			return receipt.Receipt{}, receipt.ErrAlreadyIssued
		}
	}
	for _, r := range repo.db.receipts {
		if r.Number == rcpt.Number || (r.AcademicYearID == rcpt.AcademicYearID && r.Sequence == rcpt.Sequence) {
			return receipt.Receipt{}, receipt.ErrNumberTaken
		}
	}
	rcpt.ID = uuid.New().String()
	repo.db.receipts[rcpt.ID] = rcpt
	return rcpt, nil
}

func (repo *receiptRepository) GetReceipt(_ context.Context, filter receipt.GetFilter, _ ...core.DBExecutor) (receipt.Receipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if rcpt, ok := repo.db.receipts[filter.ID]; ok {
			return rcpt, nil
		}
		return receipt.Receipt{}, receipt.ErrNotFound
	}
	for _, rcpt := range repo.db.receipts {
		if (filter.PaymentID != "" && rcpt.PaymentID == filter.PaymentID) ||
			(filter.PaymentID == "" && filter.Number != "" && rcpt.Number == filter.Number) {
			return rcpt, nil
		}
	}
	return receipt.Receipt{}, receipt.ErrNotFound
}

func (repo *receiptRepository) QueryReceipts(_ context.Context, filter *receipt.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]receipt.Receipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	receipts := make([]receipt.Receipt, 0, len(repo.db.receipts))
	for _, rcpt := range repo.db.receipts {
		if filter != nil {
			switch {
			case filter.StudentID != "" && rcpt.StudentID != filter.StudentID,
				filter.AcademicYearID != "" && rcpt.AcademicYearID != filter.AcademicYearID,
				filter.Number != "" && !strings.HasPrefix(strings.ToUpper(rcpt.Number), strings.ToUpper(filter.Number)),
				!filter.DateFrom.IsZero() && rcpt.GeneratedAt.Before(filter.DateFrom.Time),
				!filter.DateTo.IsZero() && !rcpt.GeneratedAt.Before(filter.DateTo.AddDate(0, 0, 1)),
				filter.EmailSent != "" && rcpt.EmailSent != (filter.EmailSent == "true"):
				continue
			}
		}
		receipts = append(receipts, rcpt)
	}

	sortBy(len(receipts), func(i, j int) { receipts[i], receipts[j] = receipts[j], receipts[i] }, ordering,
		map[string]lessFunc{
			"number":       func(i, j int) bool { return receipts[i].Number < receipts[j].Number },
			"generated_at": func(i, j int) bool { return receipts[i].GeneratedAt.Before(receipts[j].GeneratedAt) },
			"total":        func(i, j int) bool { return receipts[i].Total.LessThan(receipts[j].Total) },
		},
		func(i, j int) bool { return receipts[i].GeneratedAt.After(receipts[j].GeneratedAt) },
	)
	return receipts, nil
}

func (repo *receiptRepository) MarkEmailSent(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) (receipt.Receipt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rcpt, ok := repo.db.receipts[id]
	if !ok {
		return receipt.Receipt{}, receipt.ErrNotFound
	}
	rcpt.EmailSent = true
	rcpt.EmailSentAt = at.UTC()
	repo.db.receipts[id] = rcpt
	return rcpt, nil
}
