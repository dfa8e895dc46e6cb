package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
	exportsvc "github.com/trezcool/risiti/services/export"
)

type ServerDeps struct {
	Conf            *core.Config
	Logger          core.Logger
	Validate        *validator.Validate
	Translator      ut.Translator
	DisableReqLogs  bool
	UserSvc         *user.Service
	AcademicYearSvc *academicyear.Service
	StudentSvc      *student.Service
	PaymentSvc      *payment.Service
	ReceiptSvc      *receipt.Service
	SettingSvc      *setting.Service
	ExportSvc       *exportsvc.Service
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	auth     *authenticator
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     conf.Server.AllowedOrigins,
		AllowCredentials: true,
	}))
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	api := s.app.Group("/api")
	registerAuthAPI(api, s.auth, s.deps.Validate)

	// everything else needs a session
	g := api.Group("", s.auth.gate)
	admin := adminMiddleware(conf.DefaultPath)
	registerUserAPI(g, admin, s.deps.UserSvc, s.deps.Validate)
	registerAcademicYearAPI(g, admin, s.deps.AcademicYearSvc, s.deps.Validate)
	registerStudentAPI(g, admin, s.deps.StudentSvc, s.deps.PaymentSvc, s.deps.Validate)
	registerPaymentAPI(g, admin, s.deps.PaymentSvc, s.deps.ReceiptSvc, s.deps.ExportSvc, s.deps.Validate)
	registerReceiptAPI(g, admin, s.deps.ReceiptSvc, s.deps.SettingSvc, s.deps.ExportSvc, s.deps.Validate)
	registerSettingAPI(g, admin, s.deps.SettingSvc)
}

// Start listens on the configured address; failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
