package echoapi

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/user"
	exportsvc "github.com/trezcool/risiti/services/export"
	"github.com/trezcool/risiti/tests"
)

func Test_paymentApi_create(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	body := func(extra string) []byte {
		return []byte(`{"student_id":"` + st.ID + `","amount":"500","type":"tuition","method":"cash"` + extra + `}`)
	}

	t.Run("No current year", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/api/payments", token: token, body: body(""), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "academic_year_id", Error: "no current academic year"}}}),
		}
		rec := serve(&tt)
		checkCodeAndData(t, tt, rec)
	})

	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)

	tests := []httpTest{
		{
			name: "Discount above amount", body: body(`,"discount":"600"`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "discount", Error: "cannot be greater than amount"}}}),
		},
		{
			name: "New refunded payment", body: body(`,"status":"refunded"`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "status", Error: "a new payment cannot be refunded"}}}),
		},
		{
			name: "Unknown student", wantCode: http.StatusBadRequest,
			body: []byte(`{"student_id":"6c7ed0c4-2fd3-4a36-9b47-4d1d1e8e4b8a","amount":"500","type":"tuition","method":"cash"}`),
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "student_id", Error: "student not found"}}}),
		},
		{
			name: "Invalid method", body: []byte(`{"student_id":"` + st.ID + `","amount":"500","type":"tuition","method":"barter"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/payments"
		tt.token = token

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
			}
		})
	}

	t.Run("Recorded with receipt", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/api/payments", token: token, wantCode: http.StatusCreated,
			body: body(`,"discount":"50","reference":" TX-1 ","issue_receipt":true`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var resp PaymentResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, year.ID, resp.AcademicYearID, "defaults to the current year")
		assert.Equal(t, payment.StatusCompleted, resp.Status)
		assert.Equal(t, staff.ID, resp.CreatedBy)
		assert.Equal(t, "TX-1", resp.Reference)
		assert.Equal(t, core.DateOf(time.Now()), resp.PaymentDate)
		require.NotNil(t, resp.Receipt)
		assert.Equal(t, "RCT-2024-000001", resp.Receipt.Number)
		assert.Equal(t, "450", resp.Receipt.Total.String())
		assert.Equal(t, resp.ID, resp.Receipt.PaymentID)
		assert.Equal(t, staff.ID, resp.Receipt.SignedBy)
	})

	t.Run("Receipt in a year starting the same calendar year", func(t *testing.T) {
		summer := testutil.CreateYear(t, yearRepo, "2024 Summer", core.NewDate(2024, time.January, 1), false)
		tt := httpTest{
			method: http.MethodPost, path: "/api/payments", token: token, wantCode: http.StatusCreated,
			body: body(`,"academic_year_id":"` + summer.ID + `","issue_receipt":true`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var resp PaymentResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, summer.ID, resp.AcademicYearID)
		require.NotNil(t, resp.Receipt)
		assert.Equal(t, "RCT-2024-000002", resp.Receipt.Number)
	})

	t.Run("Pending payment gets no receipt", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/api/payments", token: token, wantCode: http.StatusCreated,
			body: body(`,"status":"pending","issue_receipt":true`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var resp PaymentResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, payment.StatusPending, resp.Status)
		assert.Nil(t, resp.Receipt)
	})
}

func Test_paymentApi_update(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	pending := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "300", "", payment.TypeExam, payment.StatusPending)
	completed := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "500", "50", payment.TypeTuition, payment.StatusCompleted)

	tests := []httpTest{
		{
			name: "Completed payment locked", method: http.MethodPut, path: "/api/payments/" + completed.ID,
			body: []byte(`{"amount":"600"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "amount", Error: "cannot be changed once the payment is completed"}}}),
		},
		{
			name: "Pending payment edited", method: http.MethodPut, path: "/api/payments/" + pending.ID,
			body: []byte(`{"amount":"350","notes":"second term"}`),
		},
		{
			name: "Completed to pending", method: http.MethodPut, path: "/api/payments/" + completed.ID + "/status",
			body: []byte(`{"status":"pending"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "status", Error: "cannot change from completed to pending"}}}),
		},
		{
			name: "Unknown status", method: http.MethodPut, path: "/api/payments/" + completed.ID + "/status",
			body: []byte(`{"status":"lol"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Pending to completed", method: http.MethodPut, path: "/api/payments/" + pending.ID + "/status",
			body: []byte(`{"status":"completed"}`),
		},
		{
			name: "Completed to refunded", method: http.MethodPut, path: "/api/payments/" + completed.ID + "/status",
			body: []byte(`{"status":"refunded"}`),
		},
	}
	for _, tt := range tests {
		tt.token = token

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
			}
		})
	}

	pmt, err := paymentRepo.GetPayment(context.Background(), payment.GetFilter{ID: pending.ID})
	require.NoError(t, err)
	assert.Equal(t, "350", pmt.Amount.String())
	assert.Equal(t, "second term", pmt.Notes)
	assert.Equal(t, payment.StatusCompleted, pmt.Status)

	pmt, err = paymentRepo.GetPayment(context.Background(), payment.GetFilter{ID: completed.ID})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, pmt.Status)
}

func Test_paymentApi_destroy(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	adminToken := getToken(t, admin)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	receipted := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "500", "", payment.TypeTuition, payment.StatusCompleted)
	plain := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "100", "", payment.TypeExam, payment.StatusCompleted)
	_, err := app.deps.ReceiptSvc.Issue(context.Background(), receipted.ID, admin.ID)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Admin required", path: "/api/payments/" + plain.ID, token: getToken(t, staff), wantCode: http.StatusForbidden},
		{
			name: "Receipted", path: "/api/payments/" + receipted.ID, token: adminToken, wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: payment.ErrHasReceipt.Error()}),
		},
		{name: "Deleted", path: "/api/payments/" + plain.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "Unknown", path: "/api/payments/" + plain.ID, token: adminToken, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
			}
		})
	}
}

func Test_paymentApi_query(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	tuition := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "500", "50", payment.TypeTuition, payment.StatusCompleted)
	exam := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "100", "", payment.TypeExam, payment.StatusCompleted)
	bus := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "80", "", payment.TypeTransport, payment.StatusPending)

	tests := []httpTest{
		{name: "status=pending", path: "/api/payments?status=pending", token: token, wantData: marchallList(t, bus)},
		{name: "type=exam", path: "/api/payments?type=EXAM", token: token, wantData: marchallList(t, exam)},
		{name: "order by amount", path: "/api/payments?ordering=amount", token: token, wantData: marchallList(t, bus, exam, tuition)},
		{name: "order by -amount", path: "/api/payments?ordering=-amount", token: token, wantData: marchallList(t, tuition, exam, bus)},
		{name: "invalid date", path: "/api/payments?date_from=garbage", token: token, wantCode: http.StatusBadRequest},
		{name: "export with invalid date", path: "/api/payments/export?date_to=garbage", token: getToken(t, admin), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
				assert.Contains(t, rec.Body.String(), "invalid date")
			}
		})
	}

	t.Run("Summary", func(t *testing.T) {
		tt := httpTest{path: "/api/payments/summary?academic_year=" + year.ID, token: token}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var summary payment.Summary
		unmarshal(t, rec, &summary)
		assert.Equal(t, year.ID, summary.AcademicYearID)
		assert.Equal(t, "550", summary.Collected.String())
		require.Len(t, summary.Statuses, len(payment.Statuses))
		for _, s := range summary.Statuses {
			switch s.Status {
			case payment.StatusCompleted:
				assert.Equal(t, 2, s.Count)
			case payment.StatusPending:
				assert.Equal(t, 1, s.Count)
				assert.Equal(t, "80", s.Total.String())
			default:
				assert.Equal(t, 0, s.Count)
			}
		}
	})

	t.Run("Export requires admin", func(t *testing.T) {
		tt := httpTest{path: "/api/payments/export", token: token, wantCode: http.StatusForbidden}
		rec := serve(&tt)
		checkCode(t, tt, rec)
	})

	t.Run("Export", func(t *testing.T) {
		tt := httpTest{path: "/api/payments/export", token: getToken(t, admin)}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		assert.Equal(t, exportsvc.ContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"payments-")
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx files are zip archives")
	})
}

func Test_paymentApi_issueReceipt(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	first := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "500", "", payment.TypeTuition, payment.StatusCompleted)
	second := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "100", "", payment.TypeExam, payment.StatusCompleted)
	pending := testutil.CreatePayment(t, paymentRepo, st.ID, year.ID, "80", "", payment.TypeTransport, payment.StatusPending)

	issue := func(t *testing.T, pmt payment.Payment) receipt.Receipt {
		tt := httpTest{method: http.MethodPost, path: "/api/payments/" + pmt.ID + "/receipt", token: token}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var rcpt receipt.Receipt
		unmarshal(t, rec, &rcpt)
		return rcpt
	}

	r1 := issue(t, first)
	r2 := issue(t, second)
	again := issue(t, first)

	assert.Equal(t, "RCT-2024-000001", r1.Number)
	assert.Equal(t, "RCT-2024-000002", r2.Number)
	assert.Equal(t, r1.ID, again.ID, "issuing twice returns the same receipt")
	assert.Equal(t, r1.Number, again.Number)

	t.Run("Pending payment", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: "/api/payments/" + pending.ID + "/receipt", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "payment_id", Error: receipt.ErrPaymentNotCompleted.Error()}}}),
		}
		rec := serve(&tt)
		checkCodeAndData(t, tt, rec)
	})
}
