package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid json", config: Config{Level: "info", Format: "json"}},
		{name: "valid console", config: Config{Level: "debug", Format: "console"}},
		{name: "bad level", config: Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "bad format", config: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_DefaultsWhenNil(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestTestLogger_Observes(t *testing.T) {
	tl := NewTestLogger()
	tl.Logger.Info("round complete")

	tl.AssertLogged(t, zapcore.InfoLevel, "round complete")
	assert.Len(t, tl.All(), 1)
}
