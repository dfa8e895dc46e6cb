// Command api serves the receipt backend's JSON API.
package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/risiti/apps/api/di/dig"
	echoapi "github.com/trezcool/risiti/apps/api/echo"
	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/user"
	"github.com/trezcool/risiti/storage/database"
)

type app struct {
	conf   *core.Config
	logger core.Logger
	db     *sqlx.DB
	cache  setting.Cache
	server *echoapi.Server
}

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		cache setting.Cache,
		validate *validator.Validate,
		translator ut.Translator,
		server *echoapi.Server,
	) {
		a := app{conf: conf, logger: logger, db: db, cache: cache, server: server}
		a.init(validate, translator)
		defer func() {
			if err := db.Close(); err != nil {
				dbLoggerParam.Logger.Fatal("Failed to close", err)
			}
		}()
		defer a.flush()

		a.startDebug()
		go server.Start()
		a.wait()
	}))
}

func (a app) init(validate *validator.Validate, translator ut.Translator) {
	a.logger.Info(fmt.Sprintf("Application initializing : version %q, env %s", a.conf.Build, a.conf.Env))

	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(a.conf, a.logger)
	user.LoadCommonPasswords(a.logger)

	version, err := database.Version(a.db.DB)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("reading schema version: %v", err), err)
	}
	a.logger.Info("database ready", map[string]interface{}{
		"db":             a.conf.Database.Name,
		"schema_version": version,
	})
	a.logger.Info("receipts", map[string]interface{}{
		"number_width":       a.conf.Receipt.NumberWidth,
		"max_alloc_attempts": a.conf.Receipt.MaxAllocAttempts,
		"profile_cache":      a.cache != nil,
	})
}

// startDebug serves /debug/pprof and /debug/vars on the debug host.
func (a app) startDebug() {
	expvar.NewString("build").Set(a.conf.Build)
	expvar.NewString("env").Set(a.conf.Env)
	expvar.NewInt("receipt_number_width").Set(int64(a.conf.Receipt.NumberWidth))

	go func() {
		if err := http.ListenAndServe(a.conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			a.logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}

// wait blocks until the server fails or a shutdown is requested, then drains it.
func (a app) wait() {
	select {
	case err := <-a.server.Errors():
		a.logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-a.server.ShutdownSignal():
		a.logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		ctx, cancel := context.WithTimeout(context.Background(), a.conf.Server.ShutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = a.server.Close(); err != nil {
				a.logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// flush sends the reports still queued by the logger.
func (a app) flush() {
	a.logger.Info("Application stopped")
	if c, ok := a.logger.(interface{ Close() }); ok {
		c.Close()
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
