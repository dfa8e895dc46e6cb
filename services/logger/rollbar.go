// Package logsvc reports log messages to Rollbar and echoes them to a standard logger.
package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/user"
)

type level struct {
	name   string
	report func(...interface{})
}

var (
	levelDebug = level{"DEBUG", rollbar.Debug}
	levelInfo  = level{"INFO", rollbar.Info}
	levelWarn  = level{"WARN", rollbar.Warning}
	levelError = level{"ERROR", rollbar.Error}
	levelFatal = level{"FATAL", rollbar.Critical}
)

// RollbarLogger sends every message to Rollbar (when enabled) and prints it on std.
// Debug messages are printed only in debug mode.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for queued reports to be sent.
func (l *RollbarLogger) Close() {
	rollbar.Close()
}

// args may hold an error, map[string]interface{} extras and the user.User concerned.
func (l *RollbarLogger) log(lvl level, msg string, args []interface{}) {
	var (
		usr    *user.User
		extras []string
		report = []interface{}{msg}
	)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if usr == nil {
				usr = &a
			}
		case map[string]interface{}:
			report = append(report, a)
			extras = append(extras, formatFields(a))
		case error:
			report = append(report, a)
			extras = append(extras, fmt.Sprintf("error=%q", a.Error()))
		default:
			report = append(report, a)
			extras = append(extras, fmt.Sprintf("%v", a))
		}
	}

	if usr != nil {
		rollbar.SetPerson(usr.ID, usr.Name, usr.Email)
		extras = append(extras, "user="+usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	lvl.report(report...)

	if lvl.name == levelDebug.name && !l.debug {
		return
	}
	line := lvl.name + ": " + msg
	if len(extras) > 0 {
		line += " | " + strings.Join(extras, " ")
	}
	l.std.Println(line)
}

func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(levelDebug, msg, args) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.log(levelInfo, msg, args) }
func (l *RollbarLogger) Warn(msg string, args ...interface{})  { l.log(levelWarn, msg, args) }
func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(levelError, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(levelFatal, msg, args)
	rollbar.Close()
	l.std.Fatal(msg)
}
