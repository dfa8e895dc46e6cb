package receipt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/user"
	emailsvc "github.com/trezcool/risiti/services/email"
	"github.com/trezcool/risiti/services/receiptdoc"
	inmemdb "github.com/trezcool/risiti/storage/database/inmem"
	"github.com/trezcool/risiti/tests"
)

type fixture struct {
	svc      *receipt.Service
	settings *setting.Service
	users    user.Repository
	years    academicyear.Repository
	payments payment.Repository
	receipts receipt.Repository
	signer   user.User
	studID   string
	yearID   string

	// newService returns a service storing its receipts in repo
	newService func(repo receipt.Repository) *receipt.Service
}

func newFixture(t *testing.T) *fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	users := inmemdb.NewUserRepository(db)
	years := inmemdb.NewAcademicYearRepository(db)
	students := inmemdb.NewStudentRepository(db)
	payments := inmemdb.NewPaymentRepository(db)
	settings := setting.NewService(tx, inmemdb.NewSettingRepository(db), nil, logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	f := &fixture{
		settings: settings,
		users:    users,
		years:    years,
		payments: payments,
		newService: func(repo receipt.Repository) *receipt.Service {
			return receipt.NewService(
				tx, repo, payments, students, years, users,
				settings, receiptdoc.NewRenderer(), mailSvc, logger, conf,
			)
		},
	}
	f.receipts = inmemdb.NewReceiptRepository(db)
	f.svc = f.newService(f.receipts)
	f.signer = testutil.CreateUser(t, users, "Jane Bursar", "bursar@test.cd", "", user.RoleStaff, true)
	f.yearID = testutil.CreateYear(t, years, "2024-2025", core.NewDate(2024, time.September, 1), true).ID
	f.studID = testutil.CreateStudent(t, students, "ADM-001", "Amani", "Kabila", "amani@test.cd").ID
	return f
}

// failingRepo fails the calls whose error is set.
type failingRepo struct {
	receipt.Repository
	createErr error
	markErr   error
}

func (r failingRepo) CreateReceipt(ctx context.Context, rcpt receipt.Receipt, exec ...core.DBExecutor) (receipt.Receipt, error) {
	if r.createErr != nil {
		return receipt.Receipt{}, r.createErr
	}
	return r.Repository.CreateReceipt(ctx, rcpt, exec...)
}

func (r failingRepo) MarkEmailSent(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (receipt.Receipt, error) {
	if r.markErr != nil {
		return receipt.Receipt{}, r.markErr
	}
	return r.Repository.MarkEmailSent(ctx, id, at, exec...)
}

func newPayment(studentID, amount string) payment.Payment {
	now := time.Now().UTC()
	return payment.Payment{
		StudentID:   studentID,
		Amount:      decimal.RequireFromString(amount),
		Discount:    decimal.Zero,
		PaymentDate: core.DateOf(now),
		Type:        payment.TypeTuition,
		Method:      payment.MethodCash,
		Status:      payment.StatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (f *fixture) payment(t *testing.T, amount, discount, status string) payment.Payment {
	return testutil.CreatePayment(t, f.payments, f.studID, f.yearID, amount, discount, payment.TypeTuition, status)
}

func TestService_Issue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.payment(t, "500", "50", payment.StatusCompleted)
	rcpt, err := f.svc.Issue(ctx, first.ID, f.signer.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, rcpt.ID)
	assert.Equal(t, "RCT-2024-000001", rcpt.Number)
	assert.Equal(t, 1, rcpt.Sequence)
	assert.Equal(t, first.StudentID, rcpt.StudentID)
	assert.Equal(t, f.yearID, rcpt.AcademicYearID)
	assert.Equal(t, "450", rcpt.Total.String())
	assert.Equal(t, f.signer.ID, rcpt.SignedBy)
	assert.False(t, rcpt.GeneratedAt.IsZero())
	assert.False(t, rcpt.EmailSent)

	t.Run("idempotent", func(t *testing.T) {
		again, err := f.svc.Issue(ctx, first.ID, f.signer.ID)
		require.NoError(t, err)
		assert.Equal(t, rcpt, again)
	})

	t.Run("next number", func(t *testing.T) {
		pmt := f.payment(t, "100", "", payment.StatusCompleted)
		next, err := f.svc.Issue(ctx, pmt.ID, f.signer.ID)
		require.NoError(t, err)
		assert.Equal(t, "RCT-2024-000002", next.Number)
	})

	t.Run("amounts are copied", func(t *testing.T) {
		first.Amount = first.Amount.Add(first.Amount)
		_, err := f.payments.UpdatePayment(ctx, first)
		require.NoError(t, err)

		got, err := f.svc.GetByPayment(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "500", got.Amount.String())
	})

	t.Run("pending payment", func(t *testing.T) {
		pmt := f.payment(t, "100", "", payment.StatusPending)
		_, err := f.svc.Issue(ctx, pmt.ID, f.signer.ID)
		require.Error(t, err)

		verr, ok := errors.Cause(err).(*core.ValidationError)
		require.True(t, ok, "got %T", errors.Cause(err))
		assert.Equal(t, receipt.ErrPaymentNotCompleted, verr.Err)
		assert.Equal(t, []core.FieldError{{Field: "payment_id", Error: receipt.ErrPaymentNotCompleted.Error()}}, verr.Fields)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := f.svc.Issue(ctx, "lol", f.signer.ID)
		assert.Equal(t, payment.ErrNotFound, errors.Cause(err))
	})
}

func TestService_Issue_prefix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.settings.Set(ctx, map[string]string{setting.ReceiptPrefix: "inv"})
	require.NoError(t, err)

	rcpt, err := f.svc.Issue(ctx, f.payment(t, "100", "", payment.StatusCompleted).ID, f.signer.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-000001", rcpt.Number)
}

func TestService_Issue_yearsStartingTheSameYear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	summer := testutil.CreateYear(t, f.years, "2024 Summer", core.NewDate(2024, time.January, 1), false)

	first, err := f.svc.Issue(ctx, f.payment(t, "100", "", payment.StatusCompleted).ID, f.signer.ID)
	require.NoError(t, err)
	assert.Equal(t, "RCT-2024-000001", first.Number)

	pmt := testutil.CreatePayment(t, f.payments, f.studID, summer.ID, "80", "", payment.TypeExam, payment.StatusCompleted)
	second, err := f.svc.Issue(ctx, pmt.ID, f.signer.ID)
	require.NoError(t, err)
	assert.Equal(t, "RCT-2024-000002", second.Number)
	assert.Equal(t, summer.ID, second.AcademicYearID)

	third, err := f.svc.Issue(ctx, f.payment(t, "60", "", payment.StatusCompleted).ID, f.signer.ID)
	require.NoError(t, err)
	assert.Equal(t, "RCT-2024-000003", third.Number)
}

func TestService_RecordAndIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("saved together", func(t *testing.T) {
		pmt := newPayment(f.studID, "250")
		pmt.AcademicYearID = f.yearID

		saved, rcpt, err := f.svc.RecordAndIssue(ctx, pmt, f.signer.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, saved.ID, rcpt.PaymentID)
		assert.Equal(t, "RCT-2024-000001", rcpt.Number)

		got, err := f.svc.GetByPayment(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, rcpt.ID, got.ID)
	})

	t.Run("pending payment", func(t *testing.T) {
		pmt := newPayment(f.studID, "250")
		pmt.AcademicYearID = f.yearID
		pmt.Status = payment.StatusPending

		_, _, err := f.svc.RecordAndIssue(ctx, pmt, f.signer.ID)
		_, ok := errors.Cause(err).(*core.ValidationError)
		assert.True(t, ok, "got %v", err)
	})

	t.Run("payment discarded when the receipt fails", func(t *testing.T) {
		before, err := f.payments.QueryPayments(ctx, nil, nil)
		require.NoError(t, err)

		boom := errors.New("disk full")
		svc := f.newService(failingRepo{Repository: f.receipts, createErr: boom})
		pmt := newPayment(f.studID, "250")
		pmt.AcademicYearID = f.yearID

		_, _, err = svc.RecordAndIssue(ctx, pmt, f.signer.ID)
		assert.Equal(t, boom, errors.Cause(err))

		after, err := f.payments.QueryPayments(ctx, nil, nil)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("payment discarded when no number is free", func(t *testing.T) {
		before, err := f.payments.QueryPayments(ctx, nil, nil)
		require.NoError(t, err)

		svc := f.newService(failingRepo{Repository: f.receipts, createErr: receipt.ErrNumberTaken})
		pmt := newPayment(f.studID, "250")
		pmt.AcademicYearID = f.yearID

		_, _, err = svc.RecordAndIssue(ctx, pmt, f.signer.ID)
		assert.Equal(t, receipt.ErrAllocationExhausted, errors.Cause(err))

		after, err := f.payments.QueryPayments(ctx, nil, nil)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})
}

func TestService_SendEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rcpt, err := f.svc.Issue(ctx, f.payment(t, "300", "", payment.StatusCompleted).ID, f.signer.ID)
	require.NoError(t, err)

	t.Run("flagged", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		got, err := f.svc.SendEmail(ctx, rcpt.ID, receipt.SendEmail{})
		require.NoError(t, err)
		assert.True(t, got.EmailSent)

		msg, ok := emailsvc.LastSentMessage()
		require.True(t, ok)
		assert.Equal(t, "amani@test.cd", msg.To[0].Address)
	})

	t.Run("flag not saved", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		svc := f.newService(failingRepo{Repository: f.receipts, markErr: errors.New("connection reset")})

		got, err := svc.SendEmail(ctx, rcpt.ID, receipt.SendEmail{To: "parent@test.cd"})
		require.NoError(t, err)
		assert.Equal(t, rcpt.ID, got.ID)
		assert.True(t, got.EmailSent)
		assert.False(t, got.EmailSentAt.IsZero())

		assert.Len(t, emailsvc.SentMessages, 1)
	})
}

func TestService_Issue_concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 8
	pmts := make([]payment.Payment, n)
	for i := range pmts {
		pmts[i] = f.payment(t, "100", "", payment.StatusCompleted)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts = make([]receipt.Receipt, 0, n)
	)
	start := make(chan struct{})
	for _, pmt := range pmts {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			rcpt, err := f.svc.Issue(ctx, id, f.signer.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			receipts = append(receipts, rcpt)
			mu.Unlock()
		}(pmt.ID)
	}
	close(start)
	wg.Wait()

	require.Len(t, receipts, n)
	numbers := make(map[string]bool, n)
	sequences := make(map[int]bool, n)
	for _, r := range receipts {
		numbers[r.Number] = true
		sequences[r.Sequence] = true
	}
	assert.Len(t, numbers, n, "numbers must be unique")
	for seq := 1; seq <= n; seq++ {
		assert.True(t, sequences[seq], "sequence %d missing", seq)
	}
}

func TestService_Issue_samePaymentConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pmt := f.payment(t, "100", "", payment.StatusCompleted)

	const n = 8
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rcpt, err := f.svc.Issue(ctx, pmt.ID, f.signer.ID)
			if assert.NoError(t, err) {
				ids <- rcpt.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1, "a payment has a single receipt")
}

func TestService_Details(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rcpt, err := f.svc.Issue(ctx, f.payment(t, "300", "", payment.StatusCompleted).ID, f.signer.ID)
	require.NoError(t, err)

	t.Run("deleted signer", func(t *testing.T) {
		_, err := f.users.DeleteUsersByID(ctx, []string{f.signer.ID})
		require.NoError(t, err)

		d, err := f.svc.Details(ctx, rcpt.ID)
		require.NoError(t, err)
		assert.Equal(t, rcpt.ID, d.Receipt.ID)
		assert.Empty(t, d.Signer.Name)
		assert.Nil(t, d.Enrollment)
	})

	t.Run("unknown receipt", func(t *testing.T) {
		_, err := f.svc.Details(ctx, "lol")
		assert.Equal(t, receipt.ErrNotFound, errors.Cause(err))
	})
}
