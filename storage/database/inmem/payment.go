package inmemdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, pmt payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	pmt.ID = uuid.New().String()
	repo.db.payments[pmt.ID] = pmt
	return pmt, nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	payments := make([]payment.Payment, 0, len(repo.db.payments))
	for _, pmt := range repo.db.payments {
		if filter != nil {
			switch {
			case filter.StudentID != "" && pmt.StudentID != filter.StudentID,
				filter.AcademicYearID != "" && pmt.AcademicYearID != filter.AcademicYearID,
				filter.Status != "" && pmt.Status != filter.Status,
				filter.Type != "" && pmt.Type != filter.Type,
				filter.Method != "" && pmt.Method != filter.Method,
				!filter.DateFrom.IsZero() && pmt.PaymentDate.Before(filter.DateFrom.Time),
				!filter.DateTo.IsZero() && pmt.PaymentDate.After(filter.DateTo.Time),
				filter.Search != "" && !containsFold(pmt.Reference, filter.Search) && !containsFold(pmt.Notes, filter.Search):
				continue
			}
		}
		payments = append(payments, pmt)
	}

	sortBy(len(payments), func(i, j int) { payments[i], payments[j] = payments[j], payments[i] }, ordering,
		map[string]lessFunc{
			"payment_date": func(i, j int) bool { return payments[i].PaymentDate.Before(payments[j].PaymentDate.Time) },
			"amount":       func(i, j int) bool { return payments[i].Amount.LessThan(payments[j].Amount) },
			"status":       func(i, j int) bool { return payments[i].Status < payments[j].Status },
			"type":         func(i, j int) bool { return payments[i].Type < payments[j].Type },
			"created_at":   func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) },
		},
		func(i, j int) bool {
			if !payments[i].PaymentDate.Equal(payments[j].PaymentDate.Time) {
				return payments[i].PaymentDate.After(payments[j].PaymentDate.Time)
			}
			return payments[i].CreatedAt.After(payments[j].CreatedAt)
		},
	)
	return payments, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, filter payment.GetFilter, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if pmt, ok := repo.db.payments[filter.ID]; ok {
		return pmt, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, pmt payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.payments[pmt.ID]; !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	repo.db.payments[pmt.ID] = pmt
	return pmt, nil
}

func (repo *paymentRepository) DeletePayment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.payments[id]; !ok {
		return payment.ErrNotFound
	}
	for _, rcpt := range repo.db.receipts {
		if rcpt.PaymentID == id {
			return payment.ErrHasReceipt
		}
	}
	delete(repo.db.payments, id)
	return nil
}

func (repo *paymentRepository) SummarizePayments(_ context.Context, yearID string, _ ...core.DBExecutor) ([]payment.StatusSummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byStatus := make(map[string]*payment.StatusSummary)
	for _, pmt := range repo.db.payments {
		if pmt.AcademicYearID != yearID {
			continue
		}
		s, ok := byStatus[pmt.Status]
		if !ok {
			s = &payment.StatusSummary{Status: pmt.Status, Amount: decimal.Zero, Discount: decimal.Zero, Total: decimal.Zero}
			byStatus[pmt.Status] = s
		}
		s.Count++
		s.Amount = s.Amount.Add(pmt.Amount)
		s.Discount = s.Discount.Add(pmt.Discount)
		s.Total = s.Total.Add(pmt.Total())
	}

	summaries := make([]payment.StatusSummary, 0, len(byStatus))
	for _, s := range byStatus {
		summaries = append(summaries, *s)
	}
	return summaries, nil
}
