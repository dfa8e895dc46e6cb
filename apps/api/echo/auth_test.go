package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/user"
	"github.com/trezcool/risiti/tests"
)

func Test_authApi_login(t *testing.T) {
	db.Reset()

	testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog@test.cd", "", user.RoleStaff, false)

	login := func(email, pwd string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: pwd})
	}
	errInvalid := marchallObj(t, httpErr{Error: "Invalid email or password"})

	tests := []httpTest{
		{
			name: "Empty body", body: []byte("{}"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{
				{Field: "email", Error: "this field is required"},
				{Field: "password", Error: "this field is required"},
			}}),
		},
		{name: "Unknown email", body: login("lol@test.cd", testutil.DefaultPassword), wantCode: http.StatusBadRequest, wantData: errInvalid},
		{name: "Wrong password", body: login("staff@test.cd", "wrong"), wantCode: http.StatusBadRequest, wantData: errInvalid},
		{
			name: "Inactive user", body: login("ndog@test.cd", testutil.DefaultPassword), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/auth/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Logged in", func(t *testing.T) {
		tt := httpTest{method: http.MethodPost, path: "/api/auth/login", body: login(" STAFF@test.cd ", testutil.DefaultPassword)}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "staff@test.cd", resp.User.Email)
		assert.False(t, resp.User.LastLogin.IsZero())
		assert.True(t, resp.ExpiresAt.After(time.Now()))

		sess, err := app.auth.session(context.Background(), resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, sess.UserID)
	})
}

func Test_authenticator_gate(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog@test.cd", "", user.RoleStaff, true)
	naughtyToken := getToken(t, naughty)
	ghost := testutil.CreateUser(t, usrRepo, "Ghost", "ghost@test.cd", "", user.RoleStaff, true)
	ghostToken := getToken(t, ghost)

	// deactivated and deleted after their tokens were issued
	naughty.IsActive = false
	_, err := usrRepo.UpdateUser(context.Background(), naughty)
	require.NoError(t, err)
	_, err = usrRepo.DeleteUsersByID(context.Background(), []string{ghost.ID})
	require.NoError(t, err)

	foreign := &authenticator{conf: conf, signingKey: []byte("not the key"), method: app.auth.method}
	foreignToken, err := foreign.generateToken(foreign.userClaims(staff))
	require.NoError(t, err)

	expiredClaims := app.auth.userClaims(staff)
	expiredClaims.IssuedAt = time.Now().Add(-2 * time.Hour).Unix()
	expiredClaims.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	expiredToken, err := app.auth.generateToken(expiredClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "No token", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Malformed token", token: "lol", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Wrong signature", token: foreignToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Expired token", token: expiredToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Deactivated user", token: naughtyToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Deleted user", token: ghostToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "Authenticated", token: getToken(t, staff), wantData: marchallObj(t, staff)},
	}
	for _, tt := range tests {
		tt.path = "/api/auth/me"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Browser redirected to login", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/students")
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, conf.LoginPath, rec.Header().Get("Location"))
	})

	t.Run("Browser with expired token redirected to login", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/students", expiredToken)
		req.Header.Set("Accept", "text/html")
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, conf.LoginPath, rec.Header().Get("Location"))
	})

	t.Run("Session cookie", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/auth/me")
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: getToken(t, staff)})
		app.ServeHTTP(rec, req)

		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, staff)}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_adminMiddleware(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)

	t.Run("Staff denied", func(t *testing.T) {
		tt := httpTest{path: "/api/users", token: getToken(t, staff), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
		rec := serve(&tt)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Staff browser redirected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/users", getToken(t, staff))
		req.Header.Set("Accept", "text/html")
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, conf.DefaultPath, rec.Header().Get("Location"))
	})

	t.Run("Admin allowed", func(t *testing.T) {
		tt := httpTest{path: "/api/users", token: getToken(t, admin), wantData: marchallList(t, admin, staff)}
		rec := serve(&tt)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	db.Reset()

	staff := testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)

	oldIat := time.Now().Add(-2 * conf.JWTRefreshExpirationDelta).Unix() // older than threshold
	unrefreshableToken, err := app.auth.generateToken(app.auth.userClaims(staff, oldIat))
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{
			name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/auth/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Token refreshed", func(t *testing.T) {
		origIat := time.Now().Add(-time.Hour).Unix()
		token, err := app.auth.generateToken(app.auth.userClaims(staff, origIat))
		require.NoError(t, err)

		tt := httpTest{method: http.MethodPost, path: "/api/auth/token-refresh", token: token}
		rec := serve(&tt)
		checkCode(t, tt, rec)

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		claims, err := app.auth.parseToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, origIat, claims.OrigIssuedAt, "the original issue time is carried over")
		assert.Equal(t, staff.ID, claims.Subject)
	})
}

func Test_authApi_resetPassword(t *testing.T) {
	db.Reset()

	testutil.CreateUser(t, usrRepo, "Staff", "staff@test.cd", "", user.RoleStaff, true)
	success := marchallObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	tests := []httpTest{
		{
			name: "Invalid email", body: marchallObj(t, PasswordResetRequest{Email: "lol"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, errorResponse{Errors: []core.FieldError{{Field: "email", Error: "email must be a valid email address"}}}),
		},
		{name: "Unknown email", body: marchallObj(t, PasswordResetRequest{Email: "lol@test.cd"}), wantData: success},
		{name: "Known email", body: marchallObj(t, PasswordResetRequest{Email: "Staff@test.cd"}), wantData: success},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/auth/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&tt)
			checkCodeAndData(t, tt, rec)
		})
	}
}
