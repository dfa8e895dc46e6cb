package sqlxrepos_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
	"github.com/trezcool/risiti/storage/database"
	sqlxrepos "github.com/trezcool/risiti/storage/database/sqlx"
	"github.com/trezcool/risiti/tests"
)

// These tests need a PostgreSQL server; they run when TEST_DATABASE is set.
var (
	db          *sqlx.DB
	usrRepo     user.Repository
	yearRepo    academicyear.Repository
	studentRepo student.Repository
	paymentRepo payment.Repository
	receiptRepo receipt.Repository
	settingRepo setting.Repository
)

func TestMain(m *testing.M) {
	if os.Getenv("TEST_DATABASE") == "" {
		os.Exit(0)
	}

	conf := testutil.NewConfig()
	conf.Database.Name = os.Getenv("TEST_DATABASE")
	logger := testutil.NewLogger(conf)

	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating test database", err)
	}
	var err error
	if db, err = database.Open(conf); err != nil {
		logger.Fatal("opening test database", err)
	}
	if err = database.Migrate(db.DB, logger); err != nil {
		logger.Fatal("migrating test database", err)
	}

	usrRepo = sqlxrepos.NewUserRepository(db)
	yearRepo = sqlxrepos.NewAcademicYearRepository(db)
	studentRepo = sqlxrepos.NewStudentRepository(db)
	paymentRepo = sqlxrepos.NewPaymentRepository(db)
	receiptRepo = sqlxrepos.NewReceiptRepository(db)
	settingRepo = sqlxrepos.NewSettingRepository(db)

	code := m.Run()
	_ = db.Close()
	os.Exit(code)
}

func resetDB(t *testing.T) {
	_, err := db.Exec("TRUNCATE receipt, payment, enrollment, student, setting, academic_year, app_user")
	require.NoError(t, err)
}

func TestUserRepository(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, false)

	t.Run("email taken", func(t *testing.T) {
		err := usrRepo.CheckEmailUniqueness(ctx, "admin@test.cd", nil)
		assert.Equal(t, user.ErrEmailExists, errors.Cause(err))
		assert.NoError(t, usrRepo.CheckEmailUniqueness(ctx, "admin@test.cd", []user.User{admin}))
	})

	t.Run("query", func(t *testing.T) {
		users, err := usrRepo.QueryUsers(ctx, &user.QueryFilter{IsActive: "false"}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, staff.ID, users[0].ID)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := usrRepo.GetUser(ctx, user.GetFilter{ID: "lol"})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("delete", func(t *testing.T) {
		n, err := usrRepo.DeleteUsersByID(ctx, []string{staff.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestReceiptRepository(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")
	first := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "500", "50", payment.TypeTuition, payment.StatusCompleted)
	second := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "100", "", payment.TypeExam, payment.StatusCompleted)

	newReceipt := func(pmt payment.Payment, seq int) receipt.Receipt {
		return receipt.Receipt{
			Number:         receipt.FormatNumber("RCT", year.Tag(), seq, 6),
			Sequence:       seq,
			PaymentID:      pmt.ID,
			StudentID:      pmt.StudentID,
			AcademicYearID: pmt.AcademicYearID,
			Amount:         pmt.Amount,
			Discount:       pmt.Discount,
			Total:          pmt.Total(),
			GeneratedAt:    time.Now().UTC(),
		}
	}

	scope := receipt.NumberScope("RCT", year.Tag())
	seq, err := receiptRepo.NextSequence(ctx, year.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	rcpt, err := receiptRepo.CreateReceipt(ctx, newReceipt(first, seq))
	require.NoError(t, err)

	t.Run("number taken", func(t *testing.T) {
		_, err := receiptRepo.CreateReceipt(ctx, newReceipt(second, 1))
		assert.Equal(t, receipt.ErrNumberTaken, errors.Cause(err))
	})

	t.Run("already issued", func(t *testing.T) {
		_, err := receiptRepo.CreateReceipt(ctx, newReceipt(first, 2))
		assert.Equal(t, receipt.ErrAlreadyIssued, errors.Cause(err))
	})

	t.Run("next sequence", func(t *testing.T) {
		seq, err := receiptRepo.NextSequence(ctx, year.ID, scope)
		require.NoError(t, err)
		assert.Equal(t, 2, seq)
	})

	t.Run("next sequence of a year sharing the scope", func(t *testing.T) {
		summer := testutil.CreateYear(t, yearRepo, "2024 Summer", core.NewDate(2024, time.June, 1), false)
		seq, err := receiptRepo.NextSequence(ctx, summer.ID, receipt.NumberScope("RCT", summer.Tag()))
		require.NoError(t, err)
		assert.Equal(t, 2, seq)

		seq, err = receiptRepo.NextSequence(ctx, summer.ID, receipt.NumberScope("INV", summer.Tag()))
		require.NoError(t, err)
		assert.Equal(t, 1, seq)
	})

	t.Run("get by number", func(t *testing.T) {
		got, err := receiptRepo.GetReceipt(ctx, receipt.GetFilter{Number: "RCT-2024-000001"})
		require.NoError(t, err)
		assert.Equal(t, rcpt.ID, got.ID)
		assert.Equal(t, "450", got.Total.String())
	})

	t.Run("mark email sent", func(t *testing.T) {
		got, err := receiptRepo.MarkEmailSent(ctx, rcpt.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, got.EmailSent)

		sent, err := receiptRepo.QueryReceipts(ctx, &receipt.QueryFilter{EmailSent: "true"}, nil)
		require.NoError(t, err)
		assert.Len(t, sent, 1)
	})

	t.Run("payment in use", func(t *testing.T) {
		err := paymentRepo.DeletePayment(ctx, first.ID)
		assert.Equal(t, payment.ErrHasReceipt, errors.Cause(err))
	})
}

// Concurrent issuers in real transactions never share a number.
func TestReceiptService_concurrentIssue(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	tx := database.NewTransactor(db)
	settingSvc := setting.NewService(tx, settingRepo, nil, logger)
	svc := receipt.NewService(tx, receiptRepo, paymentRepo, studentRepo, yearRepo, usrRepo, settingSvc, nil, nil, logger, conf)

	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "100", "", payment.TypeTuition, payment.StatusCompleted).ID
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool, n)
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			rcpt, err := svc.Issue(ctx, id, "")
			if assert.NoError(t, err) {
				mu.Lock()
				numbers[rcpt.Number] = true
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	assert.Len(t, numbers, n)
}
