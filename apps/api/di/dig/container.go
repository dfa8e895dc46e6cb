package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/risiti/apps/api/echo"
	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/receipt"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
	emailsvc "github.com/trezcool/risiti/services/email"
	exportsvc "github.com/trezcool/risiti/services/export"
	logsvc "github.com/trezcool/risiti/services/logger"
	"github.com/trezcool/risiti/services/receiptdoc"
	rediscache "github.com/trezcool/risiti/storage/cache/redis"
	"github.com/trezcool/risiti/storage/database"
	sqlxrepos "github.com/trezcool/risiti/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, loggerParam.Logger); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newTransactor(db *sqlx.DB) core.Transactor {
	return database.NewTransactor(db)
}

// newProfileCache returns nil when redis is not configured or unreachable; settings are then read from the DB.
func newProfileCache(conf *core.Config, logger core.Logger) setting.Cache {
	rdb := rediscache.Connect(context.Background(), conf, logger)
	if rdb == nil {
		return nil
	}
	return rediscache.NewProfileCache(rdb, conf.Redis.ProfileTTL)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newRenderer() receipt.Renderer {
	return receiptdoc.NewRenderer()
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	usrSvc *user.Service,
	yearSvc *academicyear.Service,
	studentSvc *student.Service,
	paymentSvc *payment.Service,
	receiptSvc *receipt.Service,
	settingSvc *setting.Service,
	exportSvc *exportsvc.Service,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		AcademicYearSvc: yearSvc,
		StudentSvc:      studentSvc,
		PaymentSvc:      paymentSvc,
		ReceiptSvc:      receiptSvc,
		SettingSvc:      settingSvc,
		ExportSvc:       exportSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newTransactor))
	must(c.Provide(newProfileCache))
	must(c.Provide(newEmailService))
	must(c.Provide(newRenderer))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewAcademicYearRepository, dig.As(new(academicyear.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(sqlxrepos.NewPaymentRepository, dig.As(new(payment.Repository))))
	must(c.Provide(sqlxrepos.NewReceiptRepository, dig.As(new(receipt.Repository))))
	must(c.Provide(sqlxrepos.NewSettingRepository, dig.As(new(setting.Repository))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(academicyear.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(payment.NewService))
	must(c.Provide(setting.NewService))
	must(c.Provide(receipt.NewService))
	must(c.Provide(exportsvc.NewService))

	must(c.Provide(newServer))
	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
