package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	prod := New("dm-service", "test", false)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, prod.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, prod.Core().Enabled(zapcore.ErrorLevel))

	dev := New("dm-service", "test", true)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}
