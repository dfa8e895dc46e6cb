package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
	emailsvc "github.com/trezcool/risiti/services/email"
	exportsvc "github.com/trezcool/risiti/services/export"
	"github.com/trezcool/risiti/services/receiptdoc"
	inmemdb "github.com/trezcool/risiti/storage/database/inmem"
	"github.com/trezcool/risiti/tests"
)

var (
	db          *inmemdb.DB
	app         *Server
	conf        *core.Config
	usrRepo     user.Repository
	yearRepo    academicyear.Repository
	studentRepo student.Repository
	paymentRepo payment.Repository
	receiptRepo receipt.Repository

	errNotAuthenticated = httpErr{Error: "user not authenticated"}
	errForbidden        = httpErr{Error: "permission denied"}
)

func TestMain(m *testing.M) {
	conf = testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	validate, translator := testutil.NewValidate(logger)

	// set up DB & repos
	db = inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	usrRepo = inmemdb.NewUserRepository(db)
	yearRepo = inmemdb.NewAcademicYearRepository(db)
	studentRepo = inmemdb.NewStudentRepository(db)
	paymentRepo = inmemdb.NewPaymentRepository(db)
	receiptRepo = inmemdb.NewReceiptRepository(db)
	settingRepo := inmemdb.NewSettingRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	settingSvc := setting.NewService(tx, settingRepo, nil /* cache */, logger)

	// set up server
	app = NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
		UserSvc:         user.NewService(usrRepo, mailSvc, conf),
		AcademicYearSvc: academicyear.NewService(tx, yearRepo),
		StudentSvc:      student.NewService(studentRepo, yearRepo),
		PaymentSvc:      payment.NewService(paymentRepo, studentRepo, yearRepo),
		ReceiptSvc: receipt.NewService(
			tx, receiptRepo, paymentRepo, studentRepo, yearRepo, usrRepo,
			settingSvc, receiptdoc.NewRenderer(), mailSvc, logger, conf,
		),
		SettingSvc: settingSvc,
		ExportSvc:  exportsvc.NewService(studentRepo, yearRepo),
	})

	os.Exit(m.Run())
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", bearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	resp, err := app.auth.loginResponse(usr)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return resp.Token
}

// serve runs tt against the app, defaulting to GET and 200.
func serve(tt *httpTest) *httptest.ResponseRecorder {
	if tt.method == "" {
		tt.method = http.MethodGet
	}
	if tt.wantCode == 0 {
		tt.wantCode = http.StatusOK
	}
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
