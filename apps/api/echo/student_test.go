package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
	"github.com/trezcool/risiti/tests"
)

func Test_studentApi_query(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)

	amani := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")
	baraka := testutil.CreateStudent(t, studentRepo, "ADM-002", "Baraka", "Mutombo")
	chiku := testutil.CreateStudent(t, studentRepo, "ADM-003", "Chiku", "Ilunga")
	testutil.Enroll(t, studentRepo, amani.ID, year.ID, "Grade 5", "A")
	testutil.Enroll(t, studentRepo, chiku.ID, year.ID, "Grade 6", "")

	tests := []httpTest{
		{name: "Auth required", path: "/api/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Get all", path: "/api/students", token: token, wantData: marchallList(t, chiku, amani, baraka)},
		{name: "search=mutombo", path: "/api/students?search=mutombo", token: token, wantData: marchallList(t, baraka)},
		{name: "search=adm-003", path: "/api/students?search=adm-003", token: token, wantData: marchallList(t, chiku)},
		{name: "academic_year", path: "/api/students?academic_year=" + year.ID, token: token, wantData: marchallList(t, chiku, amani)},
		{name: "grade", path: "/api/students?grade=Grade%205", token: token, wantData: marchallList(t, amani)},
		{name: "order by admission_no", path: "/api/students?ordering=admission_no", token: token, wantData: marchallList(t, amani, baraka, chiku)},
		{name: "Unknown", path: "/api/students/lol", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()})},
		{name: "Retrieve", path: "/api/students/" + baraka.ID, token: token, wantData: marchallObj(t, baraka)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_create(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	tests := []httpTest{
		{
			name: "Missing names", body: []byte(`{"admission_no":"ADM-002"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{
				{Field: "first_name", Error: "this field is required"},
				{Field: "last_name", Error: "this field is required"},
			}}),
		},
		{
			name: "Born in the future", wantCode: http.StatusBadRequest,
			body: []byte(`{"admission_no":"ADM-002","first_name":"Baraka","last_name":"Mutombo","date_of_birth":"` +
				time.Now().AddDate(1, 0, 0).Format(core.DateLayout) + `"}`),
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "date_of_birth", Error: "cannot be in the future"}}}),
		},
		{
			name: "Admission number taken", wantCode: http.StatusConflict,
			body: []byte(`{"admission_no":" adm-001 ","first_name":"Baraka","last_name":"Mutombo"}`),
		},
		{
			name: "Created", wantCode: http.StatusCreated,
			body: []byte(`{"admission_no":" adm-002 ","first_name":"Baraka","last_name":"Mutombo","guardian_email":"Parent@Test.cd"}`),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/students"
		tt.token = token

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)
			if rec.Code == http.StatusCreated {
				var st student.Student
				unmarshal(t, rec, &st)
				assert.Equal(t, "ADM-002", st.AdmissionNo)
				assert.Equal(t, "parent@test.cd", st.GuardianEmail)
			}
		})
	}
}

func Test_studentApi_destroy(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)

	paid := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")
	testutil.CreatePayment(t, paymentRepo, paid.ID, year.ID, "100", "", payment.TypeTuition, payment.StatusCompleted)
	free := testutil.CreateStudent(t, studentRepo, "ADM-002", "Baraka", "Mutombo")

	tests := []httpTest{
		{name: "Admin required", path: "/api/students/" + free.ID, token: getToken(t, staff), wantCode: http.StatusForbidden},
		{name: "In use", path: "/api/students/" + paid.ID, token: getToken(t, admin), wantCode: http.StatusConflict},
		{name: "Deleted", path: "/api/students/" + free.ID, token: getToken(t, admin), wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			checkCode(t, tt, rec)
		})
	}
}

func Test_studentApi_enrollments(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	token := getToken(t, staff)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	st := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")

	path := "/api/students/" + st.ID + "/enrollments"
	var enr student.Enrollment

	t.Run("Unknown year", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: path, token: token, wantCode: http.StatusBadRequest,
			body: []byte(`{"academic_year_id":"6c7ed0c4-2fd3-4a36-9b47-4d1d1e8e4b8a","grade":"Grade 5"}`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)
	})
	t.Run("Enrolled", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: path, token: token, wantCode: http.StatusCreated,
			body: []byte(`{"academic_year_id":"` + year.ID + `","grade":" Grade 5 ","section":"A","fee":"1200.50"}`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		unmarshal(t, rec, &enr)
		assert.Equal(t, "Grade 5", enr.Grade)
		assert.Equal(t, student.EnrollmentActive, enr.Status)
		assert.Equal(t, "1200.5", enr.Fee.String())
	})
	t.Run("Enrolled twice", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost, path: path, token: token, wantCode: http.StatusConflict,
			body: []byte(`{"academic_year_id":"` + year.ID + `","grade":"Grade 6"}`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)
	})
	t.Run("List", func(t *testing.T) {
		tt := httpTest{path: path, token: token, wantData: marchallList(t, enr)}
		rec := serve(&tt)
		checkCodeAndData(t, tt, rec)
	})
	t.Run("Update", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPut, path: "/api/enrollments/" + enr.ID, token: token,
			body: []byte(`{"grade":"Grade 5","section":"B","fee":"1200.50","status":"withdrawn"}`),
		}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var updated student.Enrollment
		unmarshal(t, rec, &updated)
		assert.Equal(t, "B", updated.Section)
		assert.Equal(t, student.EnrollmentWithdrawn, updated.Status)
	})
	t.Run("Delete requires admin", func(t *testing.T) {
		tt := httpTest{method: http.MethodDelete, path: "/api/enrollments/" + enr.ID, token: token, wantCode: http.StatusForbidden}
		rec := serve(&tt)
		checkCode(t, tt, rec)
	})
	t.Run("Deleted", func(t *testing.T) {
		tt := httpTest{method: http.MethodDelete, path: "/api/enrollments/" + enr.ID, token: getToken(t, admin), wantCode: http.StatusNoContent}
		rec := serve(&tt)
		checkCode(t, tt, rec)
	})
	t.Run("Gone", func(t *testing.T) {
		tt := httpTest{path: "/api/enrollments/" + enr.ID, token: token, wantCode: http.StatusNotFound}
		rec := serve(&tt)
		checkCode(t, tt, rec)
	})
}

func Test_studentApi_queryPayments(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	year := testutil.CreateYear(t, yearRepo, "2024-2025", core.NewDate(2024, time.September, 1), true)
	amani := testutil.CreateStudent(t, studentRepo, "ADM-001", "Amani", "Kabila")
	baraka := testutil.CreateStudent(t, studentRepo, "ADM-002", "Baraka", "Mutombo")

	pmt := testutil.CreatePayment(t, paymentRepo, amani.ID, year.ID, "100", "", payment.TypeTuition, payment.StatusCompleted)
	testutil.CreatePayment(t, paymentRepo, baraka.ID, year.ID, "200", "", payment.TypeTuition, payment.StatusCompleted)

	// the student filter of the query string cannot widen the listing
	tt := httpTest{
		path: "/api/students/" + amani.ID + "/payments?student=" + baraka.ID, token: getToken(t, staff),
		wantData: marchallList(t, pmt),
	}
	rec := serve(&tt)
	checkCodeAndData(t, tt, rec)
}
