package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		development bool
		debug       bool
	}{
		{name: "development", development: true, debug: true},
		{name: "production", development: false, debug: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := New(tt.development)
			require.NoError(t, err)
			require.NotNil(t, logger)
			require.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
			logger.Info("logger ready")
		})
	}
}
