package echoapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/user"
)

const (
	sessionCookie = "session_token"
	bearerPrefix  = "Bearer "

	contextSessionKey = "session"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Session is the authenticated user of a request.
type Session struct {
	UserID       string
	Name         string
	Email        string
	Role         string
	OrigIssuedAt time.Time
	ExpiresAt    time.Time
}

func (s Session) IsAdmin() bool {
	return s.Role == user.RoleAdmin
}

// User returns the identity of the session, enough for logging.
func (s Session) User() user.User {
	return user.User{ID: s.UserID, Name: s.Name, Email: s.Email, Role: s.Role}
}

type sessionCtxKey struct{}

// SessionFromContext returns the session the gate stored in a request context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey{}).(Session)
	return sess, ok
}

func getContextSession(ctx echo.Context) (Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(Session); ok {
		return sess, nil
	}
	return Session{}, errUnauthorized
}

type authenticator struct {
	conf       *core.Config
	svc        *user.Service
	signingKey []byte
	method     jwt.SigningMethod
}

func newAuthenticator(conf *core.Config, svc *user.Service) *authenticator {
	return &authenticator{
		conf:       conf,
		svc:        svc,
		signingKey: []byte(conf.SecretKey),
		method:     jwt.SigningMethodHS256,
	}
}

func (a *authenticator) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.conf.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(a.method, claims)
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) parseToken(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.method.Alg() {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errUnauthorized
	}
	return claims, nil
}

func requestToken(req *http.Request) string {
	if auth := req.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimSpace(auth[len(bearerPrefix):])
	}
	if cookie, err := req.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// wantsHTML reports whether the client is a browser expecting a page rather than JSON.
func wantsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

// gate authenticates every request of the group it guards. The token comes from the
// Authorization header or the session cookie; the user must still exist and be active.
// Browsers are redirected to the login page instead of getting a 401.
func (a *authenticator) gate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := a.session(ctx.Request().Context(), requestToken(ctx.Request()))
		if err != nil {
			if errors.Cause(err) != errUnauthorized {
				return errors.Wrap(err, "opening session")
			}
			if wantsHTML(ctx.Request()) {
				return ctx.Redirect(http.StatusSeeOther, a.conf.LoginPath)
			}
			return errUnauthorized
		}

		ctx.Set(contextSessionKey, sess)
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(context.WithValue(req.Context(), sessionCtxKey{}, sess)))
		return next(ctx)
	}
}

func (a *authenticator) session(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, errUnauthorized
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return Session{}, errUnauthorized
	}

	usr, err := a.svc.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Session{}, errUnauthorized
		}
		return Session{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return Session{}, errUnauthorized
	}

	return Session{
		UserID:       usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
		OrigIssuedAt: time.Unix(claims.OrigIssuedAt, 0),
		ExpiresAt:    time.Unix(claims.ExpiresAt, 0),
	}, nil
}

func (a *authenticator) authenticate(ctx context.Context, email, pwd string) (user.User, error) {
	usr, err := a.svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = a.svc.SetLastLogin(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (a *authenticator) loginResponse(usr user.User, origIat ...int64) (LoginResponse, error) {
	claims := a.userClaims(usr, origIat...)
	token, err := a.generateToken(claims)
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "generating token")
	}
	return LoginResponse{Token: token, ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(), User: usr}, nil
}

func (a *authenticator) refresh(ctx echo.Context) (LoginResponse, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return LoginResponse{}, err
	}

	// check if refresh has not expired
	if time.Now().After(sess.OrigIssuedAt.Add(a.conf.JWTRefreshExpirationDelta)) {
		return LoginResponse{}, errRefreshExpired
	}

	usr, err := a.svc.GetByID(ctx.Request().Context(), sess.UserID)
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "finding user by ID")
	}
	return a.loginResponse(usr, sess.OrigIssuedAt.Unix())
}

type authApi struct {
	auth     *authenticator
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, auth *authenticator, validate *validator.Validate) {
	api := authApi{auth: auth, validate: validate}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, auth.gate)
	ag.GET("/me", api.me, auth.gate)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	resp, err := api.auth.loginResponse(usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	resp, err := api.auth.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) me(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.svc.GetByID(ctx.Request().Context(), sess.UserID)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.auth.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.auth.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		User      user.User `json:"user"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
