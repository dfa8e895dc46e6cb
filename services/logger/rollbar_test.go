package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/user"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	conf := &core.Config{Env: "TEST", TestMode: true, Debug: debug}
	logger := NewRollbarLogger(log.New(&buf, "", 0), conf)
	logger.Enable(false)
	return logger, &buf
}

func TestRollbarLogger(t *testing.T) {
	t.Run("extras", func(t *testing.T) {
		logger, buf := newTestLogger(false)
		usr := user.User{ID: "u1", Name: "Jane", Email: "jane@test.cd"}

		logger.Error(
			"issuing receipt",
			errors.New("boom"),
			map[string]interface{}{"payment": "p1", "attempt": 3},
			usr,
		)
		assert.Equal(t, "ERROR: issuing receipt | error=\"boom\" attempt=3 payment=p1 user=jane@test.cd\n", buf.String())
	})

	t.Run("debug hidden outside debug mode", func(t *testing.T) {
		logger, buf := newTestLogger(false)
		logger.Debug("allocating")
		logger.Info("started")
		assert.Equal(t, "INFO: started\n", buf.String())
	})

	t.Run("debug printed in debug mode", func(t *testing.T) {
		logger, buf := newTestLogger(true)
		logger.Debug("allocating")
		assert.Equal(t, "DEBUG: allocating\n", buf.String())
	})
}
