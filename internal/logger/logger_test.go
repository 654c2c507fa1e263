package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSensorcube_Logger_New(t *testing.T) {
	t.Parallel()

	t.Run("info level hides debug", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := New(&buf, false)
		log.Debug("source: listed tables", "tables", 5)
		require.Empty(t, buf.String())
		log.Info("pipeline: assembled array", "features", 4)
		require.Contains(t, buf.String(), "pipeline: assembled array")
		require.Contains(t, buf.String(), "features=4")
	})

	t.Run("verbose enables debug without colors for buffers", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		New(&buf, true).Debug("source: listed tables", "tables", 5)
		require.Contains(t, buf.String(), "source: listed tables")
		require.NotContains(t, buf.String(), "\x1b[")
	})
}
